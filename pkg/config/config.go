// Package config provides configuration structures and loading logic
// for the CSP addon and its dev server.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cspserve/cspserve/pkg/csp"
	"github.com/cspserve/cspserve/pkg/domain"
)

// Config holds the global configuration for the addon.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Policy     PolicyConfig     `yaml:"policy"`
	LiveReload LiveReloadConfig `yaml:"live_reload"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds configuration for the dev server.
type ServerConfig struct {
	Address     string `yaml:"address"`
	Host        string `yaml:"host"`
	Root        string `yaml:"root"`
	Environment string `yaml:"environment"`
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// TLSEnabled reports whether the server will terminate TLS.
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// PolicyConfig holds the declared base policy and its delivery settings.
type PolicyConfig struct {
	Enabled    *bool             `yaml:"enabled"`
	Delivery   []domain.Delivery `yaml:"delivery"`
	ReportOnly bool              `yaml:"report_only"`
	Directives csp.Policy        `yaml:"directives"`
}

// IsEnabled reports whether the addon is active. Defaults to true when
// the field is omitted.
func (c PolicyConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HasDelivery reports whether the given channel is configured.
func (c PolicyConfig) HasDelivery(d domain.Delivery) bool {
	for _, got := range c.Delivery {
		if got == d {
			return true
		}
	}
	return false
}

// LiveReloadConfig holds configuration for the live-reload endpoint the
// policy must keep reachable.
type LiveReloadConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	TLS     bool   `yaml:"tls"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultPolicy is the base policy applied when none is configured:
// deny by default, allow same-origin for the common content types.
func DefaultPolicy() csp.Policy {
	return csp.New().
		With(csp.DefaultSrc, csp.Sources(csp.None)).
		With(csp.ScriptSrc, csp.Sources(csp.Self)).
		With(csp.StyleSrc, csp.Sources(csp.Self)).
		With(csp.ImgSrc, csp.Sources(csp.Self)).
		With(csp.ConnectSrc, csp.Sources(csp.Self)).
		With(csp.FontSrc, csp.Sources(csp.Self)).
		With(csp.MediaSrc, csp.Sources(csp.Self))
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path loads defaults and overrides only.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:     ":4200",
			Environment: "development",
			Root:        "dist",
		},
		Policy: PolicyConfig{
			Delivery:   []domain.Delivery{domain.DeliveryHeader},
			ReportOnly: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Policy.Directives.Len() == 0 {
		cfg.Policy.Directives = DefaultPolicy()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("CSP_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("CSP_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("CSP_ROOT"); val != "" {
		cfg.Server.Root = val
	}
	if val := os.Getenv("CSP_ENV"); val != "" {
		cfg.Server.Environment = val
	}

	if val := os.Getenv("CSP_REPORT_ONLY"); val != "" {
		cfg.Policy.ReportOnly = val == "true"
	}
	if val := os.Getenv("CSP_ENABLED"); val != "" {
		enabled := val == "true"
		cfg.Policy.Enabled = &enabled
	}
	if val := os.Getenv("CSP_DELIVERY"); val != "" {
		cfg.Policy.Delivery = nil
		for _, d := range strings.Split(val, ",") {
			cfg.Policy.Delivery = append(cfg.Policy.Delivery, domain.Delivery(strings.TrimSpace(d)))
		}
	}

	if val := os.Getenv("CSP_LIVERELOAD"); val == "true" {
		cfg.LiveReload.Enabled = true
	}
	if val := os.Getenv("CSP_LIVERELOAD_HOST"); val != "" {
		cfg.LiveReload.Host = val
	}
	if val := os.Getenv("CSP_LIVERELOAD_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.LiveReload.Port = port
		}
	}

	if val := os.Getenv("CSP_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("CSP_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("CSP_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate performs comprehensive validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":4200"
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("%w: invalid address %q: %v", domain.ErrConfigInvalid, c.Address, err)
	}

	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "development"
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("%w: tls_cert_file and tls_key_file must be set together", domain.ErrConfigInvalid)
	}

	return nil
}

// Validate performs validation of policy configuration
func (c *PolicyConfig) Validate() error {
	if len(c.Delivery) == 0 {
		c.Delivery = []domain.Delivery{domain.DeliveryHeader}
	}

	seen := make(map[domain.Delivery]bool, len(c.Delivery))
	for _, d := range c.Delivery {
		switch d {
		case domain.DeliveryHeader, domain.DeliveryMeta:
		default:
			return fmt.Errorf("%w: %q (supported: header, meta)", domain.ErrUnknownDelivery, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate delivery channel %q", domain.ErrConfigInvalid, d)
		}
		seen[d] = true
	}

	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("%w: invalid log level %q, supported levels: debug, info, warn, error", domain.ErrConfigInvalid, c.Level)
	}
}

// Runtime resolves the environment-derived settings the request path
// needs. The result is immutable; handlers receive it by value.
func (c *Config) Runtime() domain.Runtime {
	host, portStr, _ := net.SplitHostPort(c.Server.Address)
	port, _ := strconv.Atoi(portStr)
	if c.Server.Host != "" {
		host = c.Server.Host
	}

	rt := domain.Runtime{
		Environment: c.Server.Environment,
		Host:        host,
		Port:        port,
		TLS:         c.Server.TLSEnabled(),

		LiveReload:     c.LiveReload.Enabled,
		LiveReloadHost: c.LiveReload.Host,
		LiveReloadPort: c.LiveReload.Port,
		LiveReloadTLS:  c.LiveReload.TLS,
	}
	if rt.LiveReloadHost == "" {
		rt.LiveReloadHost = host
	}
	if rt.LiveReloadPort == 0 {
		rt.LiveReloadPort = port
	}
	return rt
}
