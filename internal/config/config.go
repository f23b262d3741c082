// ABOUTME: Configuration loading and parsing for ward-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete ward-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Links     LinksConfig     `yaml:"links" toml:"links"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing" toml:"tracing"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // optional gRPC health endpoint
	// PublicURL is the externally visible base URL, used for the protected
	// resource metadata and the WWW-Authenticate challenge. When empty the
	// gateway derives it from the tailnet hostname or LocalURL.
	PublicURL string `yaml:"public_url" toml:"public_url"`
}

// LocalURL is the plain HTTP URL of the listener on http_addr. A host-less or
// wildcard address such as ":8080" maps to localhost.
func (s ServerConfig) LocalURL() string {
	host, port, err := net.SplitHostPort(s.HTTPAddr)
	if err != nil {
		return "http://" + s.HTTPAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTPS with tailnet certs on :443
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (modernc) or "sqlite3" (cgo)
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds the credential resolution configuration.
type AuthConfig struct {
	// Issuer is the trusted authorization server advertised to clients.
	Issuer               string              `yaml:"issuer" toml:"issuer"`
	AuthorizationServers []string            `yaml:"authorization_servers" toml:"authorization_servers"`
	Scopes               []string            `yaml:"scopes" toml:"scopes"`
	Signed               SignedTokenConfig   `yaml:"signed" toml:"signed"`
	Introspection        IntrospectionConfig `yaml:"introspection" toml:"introspection"`
}

// SignedTokenConfig configures the primary, self-contained token strategy.
type SignedTokenConfig struct {
	JWKSURL    string `yaml:"jwks_url" toml:"jwks_url"`
	Issuer     string `yaml:"issuer" toml:"issuer"`
	Audience   string `yaml:"audience" toml:"audience"`
	HMACSecret string `yaml:"hmac_secret" toml:"hmac_secret"`

	RefreshInterval    time.Duration `yaml:"-" toml:"-"`
	RefreshIntervalRaw string        `yaml:"refresh_interval" toml:"refresh_interval"`
}

// IntrospectionConfig configures the secondary, opaque token strategy.
type IntrospectionConfig struct {
	URL           string `yaml:"url" toml:"url"`
	Style         string `yaml:"style" toml:"style"` // "rfc7662" or "tokeninfo"
	ClientID      string `yaml:"client_id" toml:"client_id"`
	ClientSecret  string `yaml:"client_secret" toml:"client_secret"`
	Provider      string `yaml:"provider" toml:"provider"`
	EmailFallback *bool  `yaml:"email_fallback" toml:"email_fallback"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// EmailFallbackEnabled reports whether the email lookup fallback is on.
// It defaults to true when unset.
func (c IntrospectionConfig) EmailFallbackEnabled() bool {
	return c.EmailFallback == nil || *c.EmailFallback
}

// SessionConfig holds session registry limits
type SessionConfig struct {
	MaxSessions int `yaml:"max_sessions" toml:"max_sessions"`

	IdleTTL     time.Duration `yaml:"-" toml:"-"`
	CallTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IdleTTLRaw     string `yaml:"idle_ttl" toml:"idle_ttl"`
	CallTimeoutRaw string `yaml:"call_timeout" toml:"call_timeout"`
}

// LinksConfig holds link metadata fetching configuration
type LinksConfig struct {
	UserAgent string `yaml:"user_agent" toml:"user_agent"`

	FetchTimeout    time.Duration `yaml:"-" toml:"-"`
	FetchTimeoutRaw string        `yaml:"fetch_timeout" toml:"fetch_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TracingConfig holds OpenTelemetry export configuration
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// envOverrides lists the settings that can be overridden from the environment.
// Empty values leave the file configuration untouched.
type envOverrides struct {
	HTTPAddr         string `env:"WARD_HTTP_ADDR"`
	GRPCAddr         string `env:"WARD_GRPC_ADDR"`
	PublicURL        string `env:"WARD_PUBLIC_URL"`
	DBDriver         string `env:"WARD_DB_DRIVER"`
	DBPath           string `env:"WARD_DB_PATH"`
	JWTSecret        string `env:"WARD_JWT_SECRET"`
	JWKSURL          string `env:"WARD_JWKS_URL"`
	IntrospectionURL string `env:"WARD_INTROSPECTION_URL"`
	ClientID         string `env:"WARD_CLIENT_ID"`
	ClientSecret     string `env:"WARD_CLIENT_SECRET"`
	LogLevel         string `env:"WARD_LOG_LEVEL"`
	LogFormat        string `env:"WARD_LOG_FORMAT"`
	OTelEndpoint     string `env:"WARD_OTEL_ENDPOINT"`
}

// Defaults applied after parsing when a value is left empty.
const (
	DefaultDriver          = "sqlite"
	DefaultIdleTTL         = 30 * time.Minute
	DefaultCallTimeout     = 30 * time.Second
	DefaultFetchTimeout    = 5 * time.Second
	DefaultRefreshInterval = time.Hour
	DefaultIntrospectTime  = 5 * time.Second
	DefaultUserAgent       = "WardBot/1.0"
	DefaultProvider        = "google.com"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, WARD_*
// overrides are applied, and duration strings are parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.HTTPAddr, o.HTTPAddr)
	set(&cfg.Server.GRPCAddr, o.GRPCAddr)
	set(&cfg.Server.PublicURL, o.PublicURL)
	set(&cfg.Database.Driver, o.DBDriver)
	set(&cfg.Database.Path, o.DBPath)
	set(&cfg.Auth.Signed.HMACSecret, o.JWTSecret)
	set(&cfg.Auth.Signed.JWKSURL, o.JWKSURL)
	set(&cfg.Auth.Introspection.URL, o.IntrospectionURL)
	set(&cfg.Auth.Introspection.ClientID, o.ClientID)
	set(&cfg.Auth.Introspection.ClientSecret, o.ClientSecret)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Logging.Format, o.LogFormat)
	if o.OTelEndpoint != "" {
		cfg.Tracing.Endpoint = o.OTelEndpoint
		cfg.Tracing.Enabled = true
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDriver
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = DefaultIdleTTL
	}
	if cfg.Session.CallTimeout == 0 {
		cfg.Session.CallTimeout = DefaultCallTimeout
	}
	if cfg.Links.FetchTimeout == 0 {
		cfg.Links.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Links.UserAgent == "" {
		cfg.Links.UserAgent = DefaultUserAgent
	}
	if cfg.Auth.Signed.RefreshInterval == 0 {
		cfg.Auth.Signed.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Auth.Introspection.Timeout == 0 {
		cfg.Auth.Introspection.Timeout = DefaultIntrospectTime
	}
	if cfg.Auth.Introspection.Style == "" {
		cfg.Auth.Introspection.Style = "rfc7662"
	}
	if cfg.Auth.Introspection.Provider == "" {
		cfg.Auth.Introspection.Provider = DefaultProvider
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = cfg.Auth.Signed.Issuer
	}
	if len(cfg.Auth.AuthorizationServers) == 0 && cfg.Auth.Issuer != "" {
		cfg.Auth.AuthorizationServers = []string{cfg.Auth.Issuer}
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "ward-gateway"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil {
			return fmt.Errorf("server.public_url is invalid: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.public_url must be an absolute URL, got %q", c.Server.PublicURL)
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	signed := c.Auth.Signed
	intro := c.Auth.Introspection
	if signed.JWKSURL == "" && signed.HMACSecret == "" && intro.URL == "" {
		return fmt.Errorf("auth: configure auth.signed (jwks_url or hmac_secret) and/or auth.introspection.url")
	}
	// 401 challenges and the protected resource metadata must name one.
	if len(c.Auth.AuthorizationServers) == 0 {
		return fmt.Errorf("auth.issuer (or auth.authorization_servers) is required")
	}
	if intro.URL != "" {
		if intro.ClientID == "" {
			return fmt.Errorf("auth.introspection.client_id is required when introspection is enabled")
		}
		switch intro.Style {
		case "rfc7662", "tokeninfo":
		default:
			return fmt.Errorf("auth.introspection.style must be rfc7662 or tokeninfo, got %q", intro.Style)
		}
	}

	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.max_sessions must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"session.idle_ttl", cfg.Session.IdleTTLRaw, &cfg.Session.IdleTTL},
		{"session.call_timeout", cfg.Session.CallTimeoutRaw, &cfg.Session.CallTimeout},
		{"links.fetch_timeout", cfg.Links.FetchTimeoutRaw, &cfg.Links.FetchTimeout},
		{"auth.signed.refresh_interval", cfg.Auth.Signed.RefreshIntervalRaw, &cfg.Auth.Signed.RefreshInterval},
		{"auth.introspection.timeout", cfg.Auth.Introspection.TimeoutRaw, &cfg.Auth.Introspection.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
