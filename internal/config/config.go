// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxpay/gatekeeper/internal/ratelimit"
)

// Duration parses yaml values like "5m" or "90s" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the process configuration: server settings plus the tenant
// admission policies applied to the limiter at startup and on hot reload.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Limiter LimiterConfig  `yaml:"limiter"`
	Tenants []TenantPolicy `yaml:"tenants"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// Upstream is the URL tenant traffic is proxied to after admission.
	// Empty runs the admin surface alone.
	Upstream string `yaml:"upstream"`
}

type LimiterConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	MaxEntries      int      `yaml:"max_entries"`
	IETFHeaders     bool     `yaml:"ietf_headers"`
}

// TenantPolicy assigns a tenant to a catalog tier and optionally overrides
// selected ceilings on individual endpoints.
type TenantPolicy struct {
	ID        string           `yaml:"id"`
	Tier      string           `yaml:"tier"`
	Overrides []EndpointPolicy `yaml:"overrides"`
}

type EndpointPolicy struct {
	Endpoint          string `yaml:"endpoint"`
	Method            string `yaml:"method"`
	RequestsPerSecond *int   `yaml:"requests_per_second"`
	RequestsPerMinute *int   `yaml:"requests_per_minute"`
	RequestsPerHour   *int   `yaml:"requests_per_hour"`
	BurstMultiplier   *int   `yaml:"burst_multiplier"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Limiter: LimiterConfig{
			CleanupInterval: Duration(5 * time.Minute),
		},
	}
}

// Load reads a YAML config file, fills in defaults and applies environment
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.loadFromEnv()

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Limiter.CleanupInterval <= 0 {
		cfg.Limiter.CleanupInterval = Duration(5 * time.Minute)
	}
	return cfg, nil
}

// loadFromEnv lets deployment environments override the file.
func (c *Config) loadFromEnv() {
	if port := os.Getenv("GATEKEEPER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("GATEKEEPER_LOG_LEVEL"); level != "" {
		c.Server.LogLevel = level
	}
	if upstream := os.Getenv("GATEKEEPER_UPSTREAM"); upstream != "" {
		c.Server.Upstream = upstream
	}
}

// Apply pushes the tenant policies onto a running limiter. It stops at the
// first unknown tier so a typo in one policy cannot half-apply a file.
func (c *Config) Apply(l *ratelimit.Limiter) error {
	for _, tenant := range c.Tenants {
		if tenant.Tier != "" {
			if err := l.SetTier(tenant.ID, tenant.Tier); err != nil {
				return fmt.Errorf("tenant %q: %w", tenant.ID, err)
			}
		}
		for _, ep := range tenant.Overrides {
			l.SetEndpointOverride(tenant.ID, ep.Endpoint, ep.Method, ratelimit.Override{
				RequestsPerSecond: ep.RequestsPerSecond,
				RequestsPerMinute: ep.RequestsPerMinute,
				RequestsPerHour:   ep.RequestsPerHour,
				BurstMultiplier:   ep.BurstMultiplier,
			})
		}
	}
	return nil
}
