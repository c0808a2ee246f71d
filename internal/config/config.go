// ABOUTME: Configuration loading and parsing for warden-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete warden-gateway configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Security  SecurityConfig   `yaml:"security"`
	Drift     DriftConfig      `yaml:"drift"`
	Prompts   []PromptConfig   `yaml:"prompts"`
	Resources []ResourceConfig `yaml:"resources"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	MCPPath  string `yaml:"mcp_path"` // defaults to /mcp
}

// DatabaseConfig holds session store configuration.
// Backend is "memory" or "sqlite"; Path is required for sqlite.
type DatabaseConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	JWTSecret  string   `yaml:"jwt_secret"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	AdminUsers []string `yaml:"admin_users"` // matched by user id or email

	// RequireAuthForDiscovery makes tools/list itself require authentication.
	RequireAuthForDiscovery bool `yaml:"require_auth_for_discovery"`

	// Stricter enforcement policies applied before authorization logic.
	RequireVerifiedEmail      bool `yaml:"require_verified_email"`
	RequireActiveSubscription bool `yaml:"require_active_subscription"`
}

// SecurityConfig holds enforcement chain configuration.
// Each stage is independently toggleable.
type SecurityConfig struct {
	Network   NetworkConfig   `yaml:"network"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Events    EventsConfig    `yaml:"events"`
	Enforce   EnforceConfig   `yaml:"enforce"`
}

// NetworkConfig holds IP filtering configuration
type NetworkConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowList        []string `yaml:"allow_list"` // exact IPs or CIDRs
	DenyList         []string `yaml:"deny_list"`
	BlockAnonymizers bool     `yaml:"block_anonymizers"`

	// TrustProxyHeader makes client IP extraction honor X-Forwarded-For.
	// Enable only behind a reverse proxy that overwrites the header;
	// otherwise any direct client can forge its source address.
	TrustProxyHeader bool `yaml:"trust_proxy_header"`

	AutoBlockDuration    time.Duration `yaml:"-"`
	AutoBlockDurationRaw string        `yaml:"auto_block_duration"`
}

// RateLimitConfig holds rate limiter configuration.
// Per-second rates with burst sizes for each caller tier, plus a global
// bucket and an optional adaptive mode that tightens limits under load.
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled"`
	GlobalRate     float64 `yaml:"global_rate"`
	GlobalBurst    int     `yaml:"global_burst"`
	AnonymousRate  float64 `yaml:"anonymous_rate"`
	AnonymousBurst int     `yaml:"anonymous_burst"`
	AuthRate       float64 `yaml:"auth_rate"`
	AuthBurst      int     `yaml:"auth_burst"`
	AdminRate      float64 `yaml:"admin_rate"`
	AdminBurst     int     `yaml:"admin_burst"`
	ToolRate       float64 `yaml:"tool_rate"`
	ToolBurst      int     `yaml:"tool_burst"`

	Adaptive          bool `yaml:"adaptive"`
	AdaptiveThreshold int  `yaml:"adaptive_threshold"` // in-flight requests before tightening
}

// EventsConfig holds security event logger configuration
type EventsConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxEvents      int  `yaml:"max_events"`      // ring buffer capacity
	BlockThreshold int  `yaml:"block_threshold"` // events per window before auto-block

	WindowDuration    time.Duration `yaml:"-"`
	WindowDurationRaw string        `yaml:"window"`

	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
	MaxUserAgents        int `yaml:"max_user_agents"`
}

// EnforceConfig holds structural auth enforcement configuration
type EnforceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DriftConfig holds schema drift monitor configuration
type DriftConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Sensitivity   string `yaml:"sensitivity"` // strict, moderate, loose
	AutoDisable   bool   `yaml:"auto_disable"`
	ApprovalsPath string `yaml:"approvals_path"` // TOML allow-list of approved changes

	Interval    time.Duration `yaml:"-"`
	IntervalRaw string        `yaml:"interval"`
}

// PromptConfig declares a named prompt template.
// Placeholders use {name} syntax and are substituted from caller arguments.
type PromptConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Template    string   `yaml:"template"`
	Arguments   []string `yaml:"arguments"`
}

// ResourceConfig declares a named static resource.
type ResourceConfig struct {
	Name     string `yaml:"name"`
	URI      string `yaml:"uri"`
	MimeType string `yaml:"mime_type"`
	Content  string `yaml:"content"`
	Path     string `yaml:"path"` // read from file instead of inline content
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default creates a configuration with sensible defaults for local use.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in zero-valued fields with defaults.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.MCPPath == "" {
		c.Server.MCPPath = "/mcp"
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "memory"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "warden-gateway"
	}
	if c.Security.RateLimit.GlobalRate == 0 {
		c.Security.RateLimit.GlobalRate = 100
		c.Security.RateLimit.GlobalBurst = 200
	}
	if c.Security.RateLimit.AnonymousRate == 0 {
		c.Security.RateLimit.AnonymousRate = 2
		c.Security.RateLimit.AnonymousBurst = 5
	}
	if c.Security.RateLimit.AuthRate == 0 {
		c.Security.RateLimit.AuthRate = 10
		c.Security.RateLimit.AuthBurst = 20
	}
	if c.Security.RateLimit.AdminRate == 0 {
		c.Security.RateLimit.AdminRate = 50
		c.Security.RateLimit.AdminBurst = 100
	}
	if c.Security.RateLimit.ToolRate == 0 {
		c.Security.RateLimit.ToolRate = 5
		c.Security.RateLimit.ToolBurst = 10
	}
	if c.Security.RateLimit.AdaptiveThreshold == 0 {
		c.Security.RateLimit.AdaptiveThreshold = 64
	}
	if c.Security.Events.MaxEvents == 0 {
		c.Security.Events.MaxEvents = 1000
	}
	if c.Security.Events.BlockThreshold == 0 {
		c.Security.Events.BlockThreshold = 10
	}
	if c.Security.Events.MaxRequestsPerMinute == 0 {
		c.Security.Events.MaxRequestsPerMinute = 120
	}
	if c.Security.Events.MaxUserAgents == 0 {
		c.Security.Events.MaxUserAgents = 5
	}
	if c.Drift.Sensitivity == "" {
		c.Drift.Sensitivity = "moderate"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Backend {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite backend")
		}
	default:
		return fmt.Errorf("database.backend must be memory or sqlite, got %q", c.Database.Backend)
	}

	if c.Security.Enforce.Enabled && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes when enforcement is enabled")
	}

	switch c.Drift.Sensitivity {
	case "strict", "moderate", "loose":
	default:
		return fmt.Errorf("drift.sensitivity must be strict, moderate, or loose, got %q", c.Drift.Sensitivity)
	}

	for _, p := range c.Prompts {
		if p.Name == "" {
			return fmt.Errorf("prompt entries require a name")
		}
	}
	for _, r := range c.Resources {
		if r.Name == "" || r.URI == "" {
			return fmt.Errorf("resource entries require a name and uri")
		}
		if r.Content != "" && r.Path != "" {
			return fmt.Errorf("resource %q: content and path are mutually exclusive", r.Name)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Security.Network.AutoBlockDurationRaw != "" {
		cfg.Security.Network.AutoBlockDuration, err = time.ParseDuration(cfg.Security.Network.AutoBlockDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing auto_block_duration %q: %w", cfg.Security.Network.AutoBlockDurationRaw, err)
		}
	}
	if cfg.Security.Network.AutoBlockDuration == 0 {
		cfg.Security.Network.AutoBlockDuration = 15 * time.Minute
	}

	if cfg.Security.Events.WindowDurationRaw != "" {
		cfg.Security.Events.WindowDuration, err = time.ParseDuration(cfg.Security.Events.WindowDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing events window %q: %w", cfg.Security.Events.WindowDurationRaw, err)
		}
	}
	if cfg.Security.Events.WindowDuration == 0 {
		cfg.Security.Events.WindowDuration = time.Minute
	}

	if cfg.Drift.IntervalRaw != "" {
		cfg.Drift.Interval, err = time.ParseDuration(cfg.Drift.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing drift interval %q: %w", cfg.Drift.IntervalRaw, err)
		}
	}
	if cfg.Drift.Interval == 0 {
		cfg.Drift.Interval = 5 * time.Minute
	}

	return nil
}
