package config

// Coverage holds the settings shared by every agreement.
type Coverage struct {
	// Arbiter is the only address allowed to set recipients, file claims and
	// approve agreements.
	Arbiter       string `toml:"Arbiter"`
	NativeDenom   string `toml:"NativeDenom"`
	AddressPrefix string `toml:"AddressPrefix"`
	// PoolPolicy is "check" or "reserve".
	PoolPolicy string `toml:"PoolPolicy"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	ListenAddress string `toml:"ListenAddress"`
	// JWTSecret signs caller bearer tokens. JWTSecretEnv names an
	// environment variable that overrides it when set.
	JWTSecret    string `toml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
	// RateLimitPerSecond and RateLimitBurst bound requests per client IP.
	// Zero disables the limiter.
	RateLimitPerSecond    float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst        int     `toml:"RateLimitBurst"`
	ReadHeaderTimeoutSecs int     `toml:"ReadHeaderTimeoutSecs"`
	MaxBodyBytes          int64   `toml:"MaxBodyBytes"`
	// TrustProxyHeaders keys the rate limiter by X-Forwarded-For. Leave it
	// off unless a reverse proxy in front of the node sets that header.
	TrustProxyHeaders bool `toml:"TrustProxyHeaders"`
}

// Logging configures structured log output.
type Logging struct {
	// File enables rotating file output in addition to stdout.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP trace and metric export.
type Telemetry struct {
	Enabled  bool              `toml:"Enabled"`
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	Metrics  bool              `toml:"Metrics"`
	Traces   bool              `toml:"Traces"`
}

// Outbox configures the transfer outbox database.
type Outbox struct {
	// Path is the SQLite file. Relative paths resolve against DataDir.
	Path string `toml:"Path"`
}
