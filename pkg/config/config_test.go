package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flappah/netatmo2wow/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netatmo2wow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
netatmo:
  client_id: "cid"
  client_secret: "secret"
  device_id: "70:ee:50:00:00:01"
  token_expiry: "2024-03-01T12:00:00Z"

reconcile:
  timespan: 6h
  tolerance: 90s
  merge_mode: union
  parallelism: 2

wow:
  site_id: "123456"
  authentication_key: "abc"

database:
  enabled: true
  host: "db"
  name: "weather"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cid", cfg.Netatmo.ClientID)
	assert.Equal(t, "70:ee:50:00:00:01", cfg.Netatmo.DeviceID)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), cfg.Netatmo.Expiry())
	assert.Equal(t, 6*time.Hour, cfg.Reconcile.Timespan)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Tolerance)
	assert.True(t, cfg.WOW.Enabled())
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// defaults fill what the file leaves out
	assert.Equal(t, "https://api.netatmo.com", cfg.Netatmo.BaseURL)
	assert.Equal(t, "max", cfg.Reconcile.Scale)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "*/10 * * * *", cfg.Schedule)
	assert.Equal(t, "https://wow.metoffice.gov.uk", cfg.WOW.BaseURL)

	opts, err := cfg.Reconcile.Options()
	require.NoError(t, err)
	assert.Equal(t, reconcile.MergeUnion, opts.Mode)
	assert.Equal(t, 2, opts.Parallelism)
	assert.True(t, opts.Since.IsZero())

	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("NETATMO2WOW_NETATMO_CLIENT_SECRET", "from-env")
	t.Setenv("NETATMO2WOW_DATABASE_PORT", "5433")
	t.Setenv("NETATMO2WOW_WOW_SITE_ID", "env-site")

	path := writeConfig(t, `
netatmo:
  client_id: "cid"
  client_secret: "from-file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Netatmo.ClientSecret)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "env-site", cfg.WOW.SiteID)
	assert.False(t, cfg.WOW.Enabled(), "authentication key still missing")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Reconcile.Timespan)
	assert.Equal(t, reconcile.DefaultTolerance, cfg.Reconcile.Tolerance)
	assert.Equal(t, "intersection", cfg.Reconcile.MergeMode)
	assert.True(t, errors.Is(cfg.Validate(), ErrMissingCredentials))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Netatmo:   NetatmoConfig{ClientID: "cid", ClientSecret: "secret"},
			Reconcile: ReconcileConfig{Timespan: time.Hour, Tolerance: time.Minute},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing client id", func(c *Config) { c.Netatmo.ClientID = "" }, true},
		{"missing secret", func(c *Config) { c.Netatmo.ClientSecret = "" }, true},
		{"unknown merge mode", func(c *Config) { c.Reconcile.MergeMode = "outer" }, true},
		{"zero timespan", func(c *Config) { c.Reconcile.Timespan = 0 }, true},
		{"negative tolerance", func(c *Config) { c.Reconcile.Tolerance = -time.Second }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNetatmoConfig_ExpiryMalformed(t *testing.T) {
	assert.True(t, NetatmoConfig{TokenExpiry: "tomorrow"}.Expiry().IsZero())
	assert.True(t, NetatmoConfig{}.Expiry().IsZero())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
