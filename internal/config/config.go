package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// Property keys.
const (
	KeyPageSize            = "page.size"
	KeyPollingFrequency    = "polling.frequency"
	KeyWatermarkExpression = "watermark.default.expression"
	KeyFlows               = "flows"
)

// EnvPrefix prefixes environment overrides, e.g. ACCOUNTSYNC_PAGE_SIZE.
const EnvPrefix = "ACCOUNTSYNC"

// Defaults.
const (
	DefaultPageSize         = 200
	DefaultPollingFrequency = 60000 // milliseconds
)

// Config holds the runtime properties of the sync template.
type Config struct {
	// PageSize is the number of rows fetched per poll query page.
	PageSize int

	// PollingFrequency is the interval between automatic poll triggers.
	PollingFrequency time.Duration

	// Watermark is the initial LastModifiedDate boundary of both pollers.
	// Only records modified strictly after it are picked up.
	Watermark time.Time

	// Flows is the flow configuration file; empty means the built-in one.
	Flows string

	Systems map[org.System]SystemConfig
}

// SystemConfig configures one org.
type SystemConfig struct {
	// Database is the SQLite path of the org, or ":memory:".
	Database string

	// IntegrationUser is the user id the template writes as. Changes made
	// by this user are not synced back.
	IntegrationUser string
}

func systemKey(s org.System, name string) string {
	return fmt.Sprintf("systems.%s.%s", strings.ToLower(string(s)), name)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPageSize, DefaultPageSize)
	v.SetDefault(KeyPollingFrequency, DefaultPollingFrequency)
	v.SetDefault(KeyWatermarkExpression, "")
	v.SetDefault(KeyFlows, "")
	for _, s := range org.Systems {
		v.SetDefault(systemKey(s, "database"), fmt.Sprintf("org-%s.db", strings.ToLower(string(s))))
		v.SetDefault(systemKey(s, "integration_user"), defaultIntegrationUser(s))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func defaultIntegrationUser(s org.System) string {
	return fmt.Sprintf("005%s000000000000IU", s)
}

// Load reads properties from path (YAML, TOML or JSON by extension) and
// the environment. Priority, highest first:
//  1. Environment variables with the ACCOUNTSYNC_ prefix
//  2. the file at path, when path is not empty
//  3. Built-in defaults
//
// An empty watermark expression means "now".
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return fromViper(v, time.Now().UTC())
}

func fromViper(v *viper.Viper, now time.Time) (*Config, error) {
	cfg := &Config{
		PageSize:         v.GetInt(KeyPageSize),
		PollingFrequency: time.Duration(v.GetInt64(KeyPollingFrequency)) * time.Millisecond,
		Flows:            v.GetString(KeyFlows),
		Systems:          make(map[org.System]SystemConfig, len(org.Systems)),
	}

	expr := strings.TrimSpace(v.GetString(KeyWatermarkExpression))
	if expr == "" {
		cfg.Watermark = now.Truncate(time.Millisecond)
	} else {
		wm, err := record.ParseTime(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyWatermarkExpression, err)
		}
		cfg.Watermark = wm
	}

	for _, s := range org.Systems {
		cfg.Systems[s] = SystemConfig{
			Database:        v.GetString(systemKey(s, "database")),
			IntegrationUser: v.GetString(systemKey(s, "integration_user")),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ForTestRun returns the properties used by integration test runs: pages
// of 1000, a 10 second polling frequency, the watermark at now, and
// in-memory orgs.
func ForTestRun(now time.Time) *Config {
	cfg := &Config{
		PageSize:         1000,
		PollingFrequency: 10000 * time.Millisecond,
		Watermark:        now.UTC().Truncate(time.Millisecond),
		Systems:          make(map[org.System]SystemConfig, len(org.Systems)),
	}
	for _, s := range org.Systems {
		cfg.Systems[s] = SystemConfig{
			Database:        ":memory:",
			IntegrationUser: defaultIntegrationUser(s),
		}
	}
	return cfg
}

// System returns the configuration of one org.
func (c *Config) System(s org.System) SystemConfig {
	return c.Systems[s]
}

// WatermarkExpression renders the watermark the way it is configured.
func (c *Config) WatermarkExpression() string {
	return record.FormatTime(c.Watermark)
}

// Validate checks that the properties describe a runnable template.
func (c *Config) Validate() error {
	var errs []error
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyPageSize, c.PageSize))
	}
	if c.PollingFrequency <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyPollingFrequency, c.PollingFrequency))
	}
	users := map[string]org.System{}
	for _, s := range org.Systems {
		sc, ok := c.Systems[s]
		if !ok {
			errs = append(errs, fmt.Errorf("system %s is not configured", s))
			continue
		}
		if sc.Database == "" {
			errs = append(errs, fmt.Errorf("%s is required", systemKey(s, "database")))
		}
		if sc.IntegrationUser == "" {
			errs = append(errs, fmt.Errorf("%s is required", systemKey(s, "integration_user")))
			continue
		}
		if other, dup := users[sc.IntegrationUser]; dup {
			errs = append(errs, fmt.Errorf("systems %s and %s share integration user %q", other, s, sc.IntegrationUser))
		}
		users[sc.IntegrationUser] = s
	}
	return errors.Join(errs...)
}
