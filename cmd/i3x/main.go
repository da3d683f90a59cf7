// Command i3x is a command-line client for i3X servers.
//
// It browses the server's address space, reads current and historical
// values, and follows subscriptions over the event stream.
//
// Usage:
//
//	i3x [flags] <command> [args]
//
// Flags:
//
//	--config string        Configuration file path (default: $XDG_CONFIG_HOME/i3x/config.yaml)
//	--url string           Server base URL
//	--api-key string       API key
//	--api-secret string    API secret
//	--timeout duration     Request timeout (default 30s)
//	--log-level string     Log level: debug, info, warn, error (default "info")
//	--protocol-log string  Write a protocol capture to this file
//	--discover             Find the server via mDNS when --url is not set
//	--metrics-addr string  Serve Prometheus metrics on this address
//
// Commands:
//
//	namespaces                     - List namespaces
//	types [namespace]              - List object types
//	relationships [namespace]      - List relationship types
//	objects [type-id]              - List objects
//	related <id> [relationship]    - List related objects
//	value <id> [depth]             - Read the last known value
//	history <id> [start] [end]     - Read historical values (RFC3339 bounds)
//	update <id> <json>             - Write a value
//	subs                           - List subscriptions on the server
//	watch <id>...                  - Subscribe and print changes until interrupted
//	discover                       - List servers found via mDNS
//	interactive                    - Start the interactive shell
//
// Examples:
//
//	# Follow two elements
//	i3x --url http://localhost:8080 watch pump-1 pump-2
//
//	# Capture a session for later analysis with i3x-log
//	i3x --discover --protocol-log session.ilog interactive
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/discovery"
	plog "github.com/i3x-protocol/i3x-go/pkg/log"
	"github.com/i3x-protocol/i3x-go/pkg/metrics"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("i3x", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: i3x [flags] <command> [args]\n\nFlags:")
		flags.PrintDefaults()
		fmt.Fprintln(stderr, "\nCommands: "+commandNames())
	}

	var fv flagValues
	bindFlags(flags, &fv)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("command required")
	}

	cfg, err := loadConfig(fv.config, flags.Changed("config"))
	if err != nil {
		return err
	}
	fv.apply(flags, &cfg)
	cfg.applyEnv(os.Getenv)

	name, cmdArgs := flags.Arg(0), flags.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		flags.Usage()
		return fmt.Errorf("unknown command: %s", name)
	}
	if err := cmd.checkArgs(cmdArgs); err != nil {
		return err
	}
	if err := cfg.Validate(!cmd.offline); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn("shutdown", "error", cerr)
		}
	}()

	if !cmd.offline {
		if err := a.connect(ctx); err != nil {
			return err
		}
	}
	return cmd.run(ctx, a, cmdArgs)
}

// logOutput lets the interactive shell take over log output.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *logOutput) Set(w io.Writer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.w = w
}

// app holds the collaborators shared by all commands.
type app struct {
	cfg         Config
	out         io.Writer
	logOut      *logOutput
	logger      *slog.Logger
	capture     *plog.FileLogger
	collector   *metrics.Collector
	metrics     *http.Server
	metricsAddr net.Addr
	client      *client.Client
}

func newApp(cfg Config, stdout, stderr io.Writer) (*app, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		out:       stdout,
		logOut:    &logOutput{w: stderr},
		collector: metrics.NewCollector(),
	}
	a.logger = slog.New(slog.NewTextHandler(a.logOut, &slog.HandlerOptions{Level: level}))

	var protocol []plog.Logger
	if cfg.ProtocolLog != "" {
		a.capture, err = plog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		protocol = append(protocol, a.capture)
	}
	if level <= slog.LevelDebug {
		protocol = append(protocol, plog.NewSlogAdapter(a.logger))
	}
	if len(protocol) > 0 {
		a.cfg.Client.ProtocolLogger = plog.NewMultiLogger(protocol...)
	}

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// serveMetrics exposes the collector on addr under /metrics.
func (a *app) serveMetrics(addr string) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(a.collector); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsAddr = ln.Addr()
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.metricsAddr.String())
	return nil
}

// connect resolves the server URL and connects the client.
func (a *app) connect(ctx context.Context) error {
	url := a.cfg.URL
	if url == "" {
		server, err := a.find(ctx)
		if err != nil {
			return err
		}
		if url, err = server.URL(); err != nil {
			return fmt.Errorf("discovered server %s: %w", server.InstanceName, err)
		}
		a.logger.Info("discovered server", "instance", server.InstanceName, "url", url)
	}

	cfg := a.cfg.Client
	if a.cfg.APIKey != "" || a.cfg.APISecret != "" {
		cfg.Auth = &transport.Credentials{APIKey: a.cfg.APIKey, APISecret: a.cfg.APISecret}
	}
	cfg.Logger = a.logger
	cfg.Metrics = a.collector

	c := client.New(url, cfg)
	c.OnError(func(_ *client.Client, err error) {
		a.logger.Warn("client error", "error", err)
	})
	c.OnDisconnect(func(*client.Client) {
		a.logger.Debug("disconnected", "url", url)
	})
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	a.client = c
	return nil
}

func (a *app) newBrowser() *discovery.MDNSBrowser {
	cfg := a.cfg.Discovery
	cfg.Logger = a.logger
	return discovery.NewMDNSBrowser(cfg)
}

func (a *app) find(ctx context.Context) (*discovery.Server, error) {
	browser := a.newBrowser()
	defer browser.Stop()

	filter := discovery.FilterCompatible()
	if a.cfg.ServerName != "" {
		filter = discovery.FilterAll(filter, discovery.FilterByName(a.cfg.ServerName))
	}
	a.logger.Info("browsing for i3X servers", "service", discovery.ServiceType)
	server, err := browser.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("discover server: %w", err)
	}
	return server, nil
}

// Close disconnects the client and releases the capture file and the
// metrics listener.
func (a *app) Close() error {
	var err error
	if a.client != nil {
		err = multierr.Append(err, a.client.Disconnect())
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = multierr.Append(err, a.metrics.Shutdown(ctx))
		cancel()
	}
	if a.capture != nil {
		err = multierr.Append(err, a.capture.Err())
		err = multierr.Append(err, a.capture.Close())
	}
	return err
}
