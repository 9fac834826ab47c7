package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultSecretEnv is consulted for the RPC signing secret when no other
// variable is configured.
const DefaultSecretEnv = "PEERSHIELD_RPC_SECRET"

type Config struct {
	DataDir     string    `toml:"DataDir"`
	Environment string    `toml:"Environment"`
	Coverage    Coverage  `toml:"coverage"`
	RPC         RPC       `toml:"rpc"`
	Logging     Logging   `toml:"logging"`
	Telemetry   Telemetry `toml:"telemetry"`
	Outbox      Outbox    `toml:"outbox"`
}

// Load loads the configuration from the given path. A missing file is
// created with default values.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = defaults.Environment
	}
	if strings.TrimSpace(cfg.Coverage.NativeDenom) == "" {
		cfg.Coverage.NativeDenom = defaults.Coverage.NativeDenom
	}
	if strings.TrimSpace(cfg.Coverage.AddressPrefix) == "" {
		cfg.Coverage.AddressPrefix = defaults.Coverage.AddressPrefix
	}
	if strings.TrimSpace(cfg.Coverage.PoolPolicy) == "" {
		cfg.Coverage.PoolPolicy = defaults.Coverage.PoolPolicy
	}
	if strings.TrimSpace(cfg.RPC.ListenAddress) == "" {
		cfg.RPC.ListenAddress = defaults.RPC.ListenAddress
	}
	if strings.TrimSpace(cfg.RPC.JWTSecretEnv) == "" {
		cfg.RPC.JWTSecretEnv = defaults.RPC.JWTSecretEnv
	}
	if strings.TrimSpace(cfg.RPC.JWTIssuer) == "" {
		cfg.RPC.JWTIssuer = defaults.RPC.JWTIssuer
	}
	if cfg.RPC.ReadHeaderTimeoutSecs <= 0 {
		cfg.RPC.ReadHeaderTimeoutSecs = defaults.RPC.ReadHeaderTimeoutSecs
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		cfg.RPC.MaxBodyBytes = defaults.RPC.MaxBodyBytes
	}
	if strings.TrimSpace(cfg.Outbox.Path) == "" {
		cfg.Outbox.Path = defaults.Outbox.Path
	}
}

func applyEnv(cfg *Config) {
	name := strings.TrimSpace(cfg.RPC.JWTSecretEnv)
	if name == "" {
		name = DefaultSecretEnv
	}
	if secret := strings.TrimSpace(os.Getenv(name)); secret != "" {
		cfg.RPC.JWTSecret = secret
	}
}

// Default returns the configuration written on first run. The arbiter and
// RPC secret are left blank and must be supplied by the operator.
func Default() *Config {
	return &Config{
		DataDir:     "./peershield-data",
		Environment: "dev",
		Coverage: Coverage{
			NativeDenom:   "uosmo",
			AddressPrefix: "osmo",
			PoolPolicy:    "check",
		},
		RPC: RPC{
			ListenAddress:         ":8080",
			JWTSecretEnv:          DefaultSecretEnv,
			JWTIssuer:             "peershield",
			RateLimitPerSecond:    20,
			RateLimitBurst:        40,
			ReadHeaderTimeoutSecs: 5,
			MaxBodyBytes:          1 << 20,
		},
		Logging: Logging{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
			Metrics:  true,
			Traces:   true,
		},
		Outbox: Outbox{Path: "outbox.db"},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// OutboxPath resolves the outbox database location.
func (c *Config) OutboxPath() string {
	if filepath.IsAbs(c.Outbox.Path) {
		return c.Outbox.Path
	}
	return filepath.Join(c.DataDir, c.Outbox.Path)
}

// StatePath is the LevelDB directory holding coverage state.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}
