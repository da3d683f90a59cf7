package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
url: http://plant.local:8080
log_level: debug
max_depth: 2
client:
  timeout: 10s
  stream:
    stop_timeout: 1s
    backoff:
      max: 20s
  queue:
    max_queued_updates: 50
discovery:
  interface: eth0
`)

	cfg, err := loadConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, "http://plant.local:8080", cfg.URL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxDepth)
	assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
	assert.Equal(t, time.Second, cfg.Client.Stream.StopTimeout)
	assert.Equal(t, 20*time.Second, cfg.Client.Stream.Backoff.Max)
	assert.Equal(t, 50, cfg.Client.Queue.MaxQueuedUpdates)
	assert.Equal(t, "eth0", cfg.Discovery.Interface)

	// Keys absent from the file keep their defaults.
	defaults := DefaultConfig()
	assert.Equal(t, defaults.Client.Stream.Backoff.Initial, cfg.Client.Stream.Backoff.Initial)
	assert.Equal(t, defaults.Client.Stream.MaxFrameSize, cfg.Client.Stream.MaxFrameSize)
	assert.Equal(t, defaults.Discovery.BrowseTimeout, cfg.Discovery.BrowseTimeout)
	assert.Equal(t, "callback", cfg.Delivery)
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = loadConfig(missing, true)
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "client: [unclosed")
	_, err := loadConfig(path, true)
	assert.Error(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "url: http://from-file\nlog_level: warn\nmax_depth: 3\nstate_file: /tmp/from-file.json\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var fv flagValues
	bindFlags(flags, &fv)
	require.NoError(t, flags.Parse([]string{"--config", path, "--url", "http://from-flag", "--timeout", "3s", "--state-file", "session.json"}))

	cfg, err := loadConfig(fv.config, flags.Changed("config"))
	require.NoError(t, err)
	fv.apply(flags, &cfg)

	assert.Equal(t, "http://from-flag", cfg.URL)
	assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "session.json", cfg.StateFile)
	// Unset flags do not clobber file values with flag defaults.
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.MaxDepth)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{"I3X_API_KEY": "k", "I3X_API_SECRET": "s", "I3X_URL": "http://env"}
	getenv := func(k string) string { return env[k] }

	cfg := DefaultConfig()
	cfg.APIKey = "explicit"
	cfg.applyEnv(getenv)

	assert.Equal(t, "explicit", cfg.APIKey)
	assert.Equal(t, "s", cfg.APISecret)
	assert.Equal(t, "http://env", cfg.URL)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		needServer bool
		wantErr    bool
	}{
		{"url set", func(c *Config) { c.URL = "http://x" }, true, false},
		{"discover", func(c *Config) { c.Discover = true }, true, false},
		{"no server", func(*Config) {}, true, true},
		{"no server offline", func(*Config) {}, false, false},
		{"bad delivery", func(c *Config) { c.URL = "http://x"; c.Delivery = "push" }, true, true},
		{"bad level", func(c *Config) { c.URL = "http://x"; c.LogLevel = "loud" }, true, true},
		{"negative depth", func(c *Config) { c.URL = "http://x"; c.MaxDepth = -1 }, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate(tt.needServer)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
