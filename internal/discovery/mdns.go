// ABOUTME: mDNS service discovery for the remote control endpoint
// ABOUTME: Advertises a running cuebox as _cuebox._tcp and looks up others
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/harperreed/cuebox/internal/version"
	"github.com/hashicorp/mdns"
	log "github.com/sirupsen/logrus"
)

// ServiceType is the DNS-SD service advertised by cuebox
const ServiceType = "_cuebox._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
}

// QueryFunc runs one mDNS query; mdns.Query in production
type QueryFunc func(*mdns.QueryParam) error

// Manager handles mDNS operations
type Manager struct {
	config Config
	query  QueryFunc

	mu     sync.Mutex
	server *mdns.Server
}

// ServerInfo describes a discovered cuebox
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port for dialing
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	return &Manager{config: config, query: mdns.Query}
}

// WithQuery replaces the query function
func (m *Manager) WithQuery(q QueryFunc) *Manager {
	m.query = q
	return m
}

// Advertise announces this instance until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/ws", "version=" + version.Version},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	log.Infof("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)
	return nil
}

// Lookup queries for cuebox instances for up to timeout. Duplicate
// answers for the same host and port are collapsed.
func (m *Manager) Lookup(ctx context.Context, timeout time.Duration) ([]ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []ServerInfo
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		seen := make(map[string]bool)
		for entry := range entries {
			info, ok := toServerInfo(entry)
			if !ok || seen[info.Addr()] {
				continue
			}
			seen[info.Addr()] = true
			log.Debugf("Discovered cuebox: %s at %s", info.Name, info.Addr())
			found = append(found, info)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Domain = "local"
	params.Timeout = timeout
	params.Entries = entries

	errChan := make(chan error, 1)
	go func() {
		errChan <- m.query(params)
		close(entries)
	}()

	select {
	case err := <-errChan:
		<-collected
		if err != nil {
			return found, fmt.Errorf("mdns query: %w", err)
		}
		return found, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop withdraws the advertisement
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		if err := m.server.Shutdown(); err != nil {
			log.Warnf("mDNS shutdown error: %v", err)
		}
		m.server = nil
	}
}

func toServerInfo(entry *mdns.ServiceEntry) (ServerInfo, bool) {
	if entry == nil || entry.Port == 0 {
		return ServerInfo{}, false
	}
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return ServerInfo{}, false
	}
	return ServerInfo{Name: entry.Name, Host: host, Port: entry.Port}, true
}

// getLocalIPs returns non-loopback IPv4 addresses of up interfaces
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
