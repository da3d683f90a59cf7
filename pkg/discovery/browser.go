package discovery

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/i3x-protocol/i3x-go/pkg/version"
)

// Browser finds i3X servers on the local network.
type Browser interface {
	// Browse reports servers as they appear. The channel closes when ctx
	// is done or the browser is stopped.
	Browse(ctx context.Context) (<-chan *Server, error)

	// Find returns the first server matching filter. A nil filter
	// accepts any server.
	Find(ctx context.Context, filter FilterFunc) (*Server, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration `yaml:"browse_timeout"`

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string `yaml:"interface"`

	// Logger for operational logging. Nil disables logging.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FilterFunc selects servers.
type FilterFunc func(*Server) bool

// FilterByName accepts servers whose instance or display name is name.
func FilterByName(name string) FilterFunc {
	return func(s *Server) bool {
		return s.InstanceName == name || s.Name == name
	}
}

// FilterTLS accepts servers that require https.
func FilterTLS() FilterFunc {
	return func(s *Server) bool {
		return s.TLS
	}
}

// FilterCompatible accepts servers whose announced API version this
// library supports.
func FilterCompatible() FilterFunc {
	return func(s *Server) bool {
		return version.Supports(s.Version)
	}
}

// FilterAll accepts servers accepted by every non-nil filter.
func FilterAll(filters ...FilterFunc) FilterFunc {
	return func(s *Server) bool {
		for _, f := range filters {
			if f != nil && !f(s) {
				return false
			}
		}
		return true
	}
}

// browseFunc resolves service records until ctx is done. Records seen go
// to found, records whose TTL expired go to lost.
type browseFunc func(ctx context.Context, found, lost chan<- Entry) error

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	logger *slog.Logger
	browse browseFunc

	mu      sync.Mutex
	stopped bool
	cancels map[int]context.CancelFunc
	nextID  int
}

var _ Browser = (*MDNSBrowser)(nil)

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &MDNSBrowser{
		config:  config,
		logger:  logger,
		cancels: make(map[int]context.CancelFunc),
	}
	b.browse = b.zeroconfBrowse
	return b
}

// Browse searches for i3X servers. Services are aggregated by instance
// name: addresses from multiple interfaces are combined into a single
// Server, emitted once when first seen. A server whose addresses all
// expire is forgotten and emitted again if it reappears.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Server, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrBrowserStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()

	out := make(chan *Server)
	found := make(chan Entry)
	lost := make(chan Entry)

	// Process entries with aggregation
	go func() {
		defer close(out)
		defer b.release(id)

		servers := make(map[string]*Server)
		for {
			select {
			case entry := <-found:
				svc, err := entryToServer(entry)
				if err != nil {
					b.logger.Debug("ignoring service", "instance", entry.Instance, "error", err)
					continue
				}

				if existing, ok := servers[svc.InstanceName]; ok {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				servers[svc.InstanceName] = svc
				emitted := *svc
				emitted.Addresses = append([]string(nil), svc.Addresses...)
				select {
				case out <- &emitted:
				case <-ctx.Done():
					return
				}

			case entry := <-lost:
				if existing, ok := servers[entry.Instance]; ok {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(servers, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// Start browsing in background
	go func() {
		if err := b.browse(ctx, found, lost); err != nil && ctx.Err() == nil {
			b.logger.Warn("mDNS browse failed", "error", err)
			cancel()
		}
	}()

	return out, nil
}

// Find browses until a server matches filter. Without a deadline on ctx
// it gives up after BrowseTimeout.
func (b *MDNSBrowser) Find(ctx context.Context, filter FilterFunc) (*Server, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range results {
		if filter == nil || filter(svc) {
			return svc, nil
		}
	}
	return nil, ErrNotFound
}

// Stop stops all active browsing operations. Browse fails afterwards.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *MDNSBrowser) release(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
}

// zeroconfBrowse runs a zeroconf browse and converts its entries.
func (b *MDNSBrowser) zeroconfBrowse(ctx context.Context, found, lost chan<- Entry) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		for {
			select {
			case e := <-entries:
				if e == nil {
					continue
				}
				select {
				case found <- entryFromZeroconf(e):
				case <-ctx.Done():
					return
				}
			case e := <-removed:
				if e == nil {
					continue
				}
				select {
				case lost <- entryFromZeroconf(e):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("unknown interface, browsing on all", "interface", b.config.Interface, "error", err)
		}
	}

	return opts
}

func entryFromZeroconf(e *zeroconf.ServiceEntry) Entry {
	return Entry{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		IPv4:     e.AddrIPv4,
		IPv6:     e.AddrIPv6,
		Text:     e.Text,
	}
}

// entryToServer converts a resolved entry to a Server.
func entryToServer(e Entry) (*Server, error) {
	s := &Server{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    e.addresses(),
	}
	if err := DecodeServerTXT(StringsToTXTRecords(e.Text), s); err != nil {
		return nil, err
	}
	return s, nil
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses of entry from the list.
func removeAddresses(addresses []string, entry Entry) []string {
	toRemove := make(map[string]bool)
	for _, addr := range entry.addresses() {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
