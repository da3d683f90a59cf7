package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of i3X servers.
	ServiceType = "_i3x._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// BrowseTimeout is the default timeout for Find.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyPath    = "path" // Base path of the API (optional, default "/")
	TXTKeyTLS     = "tls"  // "1" when the server requires https
	TXTKeyVersion = "ver"  // API version (optional)
	TXTKeyName    = "name" // Display name (optional)
)

// Discovery errors.
var (
	ErrNotFound         = errors.New("service not found")
	ErrInvalidTXTRecord = errors.New("invalid TXT record format")
	ErrBrowserStopped   = errors.New("browser stopped")
	ErrNoAddresses      = errors.New("service has no addresses")
)

// Server is an i3X server announced on the local network. Addresses from
// several interfaces are merged into one Server per instance name.
type Server struct {
	InstanceName string
	Host         string
	Port         int
	Addresses    []string

	// Path is the API base path announced in TXT, "/" when absent.
	Path    string
	TLS     bool
	Version string
	Name    string
}

// URL returns the base URL of the server using its first address, or
// the host name when it announced no addresses.
func (s *Server) URL() (string, error) {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	if host == "" {
		return "", ErrNoAddresses
	}

	scheme := "http"
	if s.TLS {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(s.Port)),
		Path:   s.Path,
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), nil
}

// Entry is one resolved service record as seen on one interface.
type Entry struct {
	Instance string
	Host     string
	Port     int
	IPv4     []net.IP
	IPv6     []net.IP
	Text     []string
}

// addresses returns the entry's IPs as strings, IPv4 first.
func (e Entry) addresses() []string {
	addrs := make([]string, 0, len(e.IPv4)+len(e.IPv6))
	for _, ip := range e.IPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.IPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}
