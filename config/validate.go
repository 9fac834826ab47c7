package config

import (
	"fmt"
	"strings"

	"peershield/crypto"
	"peershield/native/coverage"
)

// MinSecretLength is the shortest accepted RPC signing secret.
var MinSecretLength = 16

// Validate checks the loaded configuration before the node starts.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if strings.TrimSpace(c.Coverage.NativeDenom) == "" {
		return fmt.Errorf("coverage: NativeDenom must be set")
	}
	if strings.TrimSpace(c.Coverage.AddressPrefix) == "" {
		return fmt.Errorf("coverage: AddressPrefix must be set")
	}
	if strings.TrimSpace(c.Coverage.Arbiter) == "" {
		return fmt.Errorf("coverage: Arbiter must be set")
	}
	if _, err := crypto.NewBech32Validator(c.Coverage.AddressPrefix).ValidateAddress(c.Coverage.Arbiter); err != nil {
		return fmt.Errorf("coverage: invalid Arbiter: %w", err)
	}
	if _, err := coverage.ParsePoolPolicy(c.Coverage.PoolPolicy); err != nil {
		return fmt.Errorf("coverage: %w", err)
	}
	if len(c.RPC.JWTSecret) < MinSecretLength {
		return fmt.Errorf("rpc: JWTSecret must be at least %d bytes (set %s)", MinSecretLength, c.secretEnv())
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when RateLimitPerSecond is set")
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint must be set when enabled")
	}
	return nil
}

func (c *Config) secretEnv() string {
	if name := strings.TrimSpace(c.RPC.JWTSecretEnv); name != "" {
		return name
	}
	return DefaultSecretEnv
}

// EngineConfig converts the coverage section into engine settings. The
// arbiter is returned in canonical form.
func (c *Config) EngineConfig() (coverage.Config, error) {
	policy, err := coverage.ParsePoolPolicy(c.Coverage.PoolPolicy)
	if err != nil {
		return coverage.Config{}, err
	}
	arbiter, err := crypto.NewBech32Validator(c.Coverage.AddressPrefix).ValidateAddress(c.Coverage.Arbiter)
	if err != nil {
		return coverage.Config{}, fmt.Errorf("coverage: invalid Arbiter: %w", err)
	}
	return coverage.Config{
		Arbiter:     arbiter,
		NativeDenom: c.Coverage.NativeDenom,
		Policy:      policy,
	}, nil
}
