package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flappah/netatmo2wow/pkg/reconcile"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// NETATMO2WOW_NETATMO_CLIENT_ID
const EnvPrefix = "NETATMO2WOW"

// ErrMissingCredentials is returned when the netatmo client credentials are absent
var ErrMissingCredentials = errors.New("netatmo client_id and client_secret are required")

// Config holds all configuration for the bridge
type Config struct {
	Netatmo   NetatmoConfig   `mapstructure:"netatmo"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	WOW       WOWConfig       `mapstructure:"wow"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  string          `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type NetatmoConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	// TokenExpiry is RFC 3339
	TokenExpiry string  `mapstructure:"token_expiry"`
	RedirectURI  string  `mapstructure:"redirect_uri"`
	DeviceID     string  `mapstructure:"device_id"`
	BaseURL      string  `mapstructure:"base_url"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst"`
}

// Expiry parses TokenExpiry. An empty or malformed value yields the zero
// time, which forces a refresh on first use.
func (n NetatmoConfig) Expiry() time.Time {
	t, err := time.Parse(time.RFC3339, n.TokenExpiry)
	if err != nil {
		return time.Time{}
	}
	return t
}

type ReconcileConfig struct {
	Timespan    time.Duration `mapstructure:"timespan"`
	Tolerance   time.Duration `mapstructure:"tolerance"`
	MergeMode   string        `mapstructure:"merge_mode"`
	Scale       string        `mapstructure:"scale"`
	Parallelism int           `mapstructure:"parallelism"`
}

// Options converts the section into pipeline options. Since is left for
// the caller.
func (r ReconcileConfig) Options() (reconcile.Options, error) {
	mode, err := reconcile.ParseMergeMode(r.MergeMode)
	if err != nil {
		return reconcile.Options{}, err
	}
	return reconcile.Options{
		Tolerance:   r.Tolerance,
		Mode:        mode,
		Scale:       r.Scale,
		Parallelism: r.Parallelism,
	}, nil
}

type WOWConfig struct {
	SiteID            string `mapstructure:"site_id"`
	AuthenticationKey string `mapstructure:"authentication_key"`
	BaseURL           string `mapstructure:"base_url"`
	SoftwareType      string `mapstructure:"software_type"`
}

// Enabled reports whether publishing to WOW is configured
func (w WOWConfig) Enabled() bool {
	return w.SiteID != "" && w.AuthenticationKey != ""
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN builds the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (or the default locations when path
// is empty) and applies environment overrides. A missing default file is
// not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netatmo2wow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".netatmo2wow"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.Netatmo.ClientID == "" || c.Netatmo.ClientSecret == "" {
		return ErrMissingCredentials
	}
	if _, err := reconcile.ParseMergeMode(c.Reconcile.MergeMode); err != nil {
		return err
	}
	if c.Reconcile.Timespan <= 0 {
		return fmt.Errorf("reconcile.timespan must be positive, got %s", c.Reconcile.Timespan)
	}
	if c.Reconcile.Tolerance < 0 {
		return fmt.Errorf("reconcile.tolerance must not be negative, got %s", c.Reconcile.Tolerance)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("netatmo.base_url", "https://api.netatmo.com")
	v.SetDefault("netatmo.redirect_uri", "http://localhost:8080/netatmo/callback")
	v.SetDefault("netatmo.rate_limit", 5.0)
	v.SetDefault("netatmo.rate_burst", 10)
	// registered so env overrides are picked up without a file entry
	v.SetDefault("netatmo.client_id", "")
	v.SetDefault("netatmo.client_secret", "")
	v.SetDefault("netatmo.username", "")
	v.SetDefault("netatmo.password", "")
	v.SetDefault("netatmo.access_token", "")
	v.SetDefault("netatmo.refresh_token", "")
	v.SetDefault("netatmo.token_expiry", "")
	v.SetDefault("netatmo.device_id", "")

	v.SetDefault("reconcile.timespan", "2h")
	v.SetDefault("reconcile.tolerance", reconcile.DefaultTolerance.String())
	v.SetDefault("reconcile.merge_mode", reconcile.MergeIntersection.String())
	v.SetDefault("reconcile.scale", reconcile.DefaultScale)
	v.SetDefault("reconcile.parallelism", 4)

	v.SetDefault("wow.site_id", "")
	v.SetDefault("wow.authentication_key", "")
	v.SetDefault("wow.base_url", "https://wow.metoffice.gov.uk")
	v.SetDefault("wow.software_type", "netatmo2wow")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "netatmo2wow")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "netatmo2wow")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule", "*/10 * * * *")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
