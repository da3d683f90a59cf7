package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/discovery"
)

// Config is the i3x command configuration. It is read from a YAML file
// and then overridden by flags given on the command line.
type Config struct {
	// URL is the server base URL. Empty with Discover set means browse
	// for a server.
	URL string `yaml:"url"`

	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	LogLevel    string `yaml:"log_level"`
	ProtocolLog string `yaml:"protocol_log"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Discover browses mDNS for a server when URL is empty.
	Discover bool `yaml:"discover"`

	// ServerName restricts discovery to one instance name.
	ServerName string `yaml:"server_name"`

	// MaxDepth is used for subscriptions made by watch and the shell.
	MaxDepth int `yaml:"max_depth"`

	// Delivery is the delivery mode used by watch (auto, callback, queue).
	Delivery string `yaml:"delivery"`

	// StateFile keeps the interactive shell's subscriptions across
	// restarts. Empty disables it.
	StateFile string `yaml:"state_file"`

	Discovery discovery.BrowserConfig `yaml:"discovery"`
	Client    client.Config           `yaml:"client"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		Delivery:  "callback",
		Discovery: discovery.DefaultBrowserConfig(),
		Client:    client.DefaultConfig(),
	}
}

// loadConfig reads path over the defaults. A missing file is not an error
// when path is the implicit default.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// flagValues holds the raw command-line flags.
type flagValues struct {
	config      string
	url         string
	apiKey      string
	apiSecret   string
	timeout     time.Duration
	logLevel    string
	protocolLog string
	discover    bool
	serverName  string
	metricsAddr string
	maxDepth    int
	delivery    string
	stateFile   string
}

func bindFlags(flags *pflag.FlagSet, v *flagValues) {
	flags.StringVarP(&v.config, "config", "c", defaultConfigPath(), "Configuration file path")
	flags.StringVarP(&v.url, "url", "u", "", "Server base URL")
	flags.StringVar(&v.apiKey, "api-key", "", "API key (also I3X_API_KEY)")
	flags.StringVar(&v.apiSecret, "api-secret", "", "API secret (also I3X_API_SECRET)")
	flags.DurationVar(&v.timeout, "timeout", client.DefaultConfig().Timeout, "Request timeout")
	flags.StringVar(&v.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&v.protocolLog, "protocol-log", "", "Write a protocol capture to this file")
	flags.BoolVar(&v.discover, "discover", false, "Find the server via mDNS when --url is not set")
	flags.StringVar(&v.serverName, "server-name", "", "Instance name to pick during discovery")
	flags.StringVar(&v.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.IntVar(&v.maxDepth, "max-depth", 0, "Child depth for subscriptions")
	flags.StringVar(&v.delivery, "delivery", "callback", "Delivery mode for watch: auto, callback, queue")
	flags.StringVar(&v.stateFile, "state-file", "", "Resume interactive subscriptions from this file")
}

// apply overrides cfg with every flag that was set explicitly.
func (v flagValues) apply(flags *pflag.FlagSet, cfg *Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}
	set("url", func() { cfg.URL = v.url })
	set("api-key", func() { cfg.APIKey = v.apiKey })
	set("api-secret", func() { cfg.APISecret = v.apiSecret })
	set("timeout", func() { cfg.Client.Timeout = v.timeout })
	set("log-level", func() { cfg.LogLevel = v.logLevel })
	set("protocol-log", func() { cfg.ProtocolLog = v.protocolLog })
	set("discover", func() { cfg.Discover = v.discover })
	set("server-name", func() { cfg.ServerName = v.serverName })
	set("metrics-addr", func() { cfg.MetricsAddr = v.metricsAddr })
	set("max-depth", func() { cfg.MaxDepth = v.maxDepth })
	set("delivery", func() { cfg.Delivery = v.delivery })
	set("state-file", func() { cfg.StateFile = v.stateFile })
}

// applyEnv fills credentials from the environment when still unset.
func (c *Config) applyEnv(getenv func(string) string) {
	if c.APIKey == "" {
		c.APIKey = getenv("I3X_API_KEY")
	}
	if c.APISecret == "" {
		c.APISecret = getenv("I3X_API_SECRET")
	}
	if c.URL == "" {
		c.URL = getenv("I3X_URL")
	}
}

// Validate checks values the client cannot check itself. needServer is
// false for commands that do not connect.
func (c *Config) Validate(needServer bool) error {
	if needServer && c.URL == "" && !c.Discover {
		return errors.New("no server: set --url, I3X_URL, url in the config file, or --discover")
	}
	if _, ok := client.ParseDelivery(c.Delivery); !ok {
		return fmt.Errorf("invalid delivery mode: %s (use: auto, callback, queue)", c.Delivery)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("invalid max depth: %d", c.MaxDepth)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s (use: debug, info, warn, error)", s)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "i3x", "config.yaml")
}
