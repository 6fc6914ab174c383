package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/logging"
)

const (
	// ServiceType is the mDNS service type devices advertise under
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is used when an announcement carries no port
	DefaultPort = 80

	// MarkerKey is the TXT key that identifies a devadmin announcement
	MarkerKey = "devadmin"
)

// TXT record keys
const (
	txtVersion = "version"
	txtPath    = "path"
	txtMode    = "mode"
)

// Announcement is what a device publishes about itself.
type Announcement struct {
	Instance  string
	Port      int
	Version   string
	SetupPath string
	Mode      string
}

// TXT renders the announcement as TXT record entries.
func (a Announcement) TXT() []string {
	txt := []string{MarkerKey + "=1"}
	if a.Version != "" {
		txt = append(txt, txtVersion+"="+a.Version)
	}
	if a.SetupPath != "" {
		txt = append(txt, txtPath+"="+a.SetupPath)
	}
	if a.Mode != "" {
		txt = append(txt, txtMode+"="+a.Mode)
	}
	return txt
}

// Advertiser publishes the admin HTTP service over mDNS.
type Advertiser struct {
	logger *zap.Logger

	mu     sync.Mutex
	server *zeroconf.Server
	ann    Announcement
}

// NewAdvertiser creates an Advertiser that is not yet publishing.
func NewAdvertiser(logger *zap.Logger) *Advertiser {
	return &Advertiser{logger: logging.OrNop(logger)}
}

// Start registers the service. Calling Start again replaces the previous
// registration.
func (a *Advertiser) Start(ann Announcement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	if ann.Port == 0 {
		ann.Port = DefaultPort
	}

	server, err := zeroconf.Register(ann.Instance, ServiceType, ServiceDomain, ann.Port, ann.TXT(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	a.ann = ann

	a.logger.Info("mDNS service registered",
		zap.String("instance", ann.Instance),
		zap.Int("port", ann.Port),
	)
	return nil
}

// SetMode updates the mode TXT entry of a running registration.
func (a *Advertiser) SetMode(mode string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ann.Mode = mode
	if a.server != nil {
		a.server.SetText(a.ann.TXT())
	}
}

// Shutdown withdraws the registration. Safe to call when not started.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Info("mDNS service withdrawn", zap.String("instance", a.ann.Instance))
}

// Scanner finds devadmin devices on the local network
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices collects every device that answers before the timeout.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	seen := make(map[string]bool)
	devices := make([]*Device, 0)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			device := parseServiceEntry(entry)
			if device == nil || seen[device.Address()] {
				continue
			}
			seen[device.Address()] = true
			devices = append(devices, device)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once the context ends.
	<-done
	return devices, nil
}

// WaitForDevice returns the first device whose instance name or hostname
// matches name.
func (s *Scanner) WaitForDevice(ctx context.Context, name string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	deviceChan := make(chan *Device, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			device := parseServiceEntry(entry)
			if device != nil && device.Matches(name) {
				select {
				case deviceChan <- device:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-deviceChan:
		return device, nil
	case <-ctx.Done():
		select {
		case device := <-deviceChan:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("device %q not found within %s", name, s.Timeout)
	}
}

// Matches reports whether name refers to this device, ignoring case and
// any ".local." suffix.
func (d *Device) Matches(name string) bool {
	want := trimLocal(name)
	return want != "" && (strings.EqualFold(want, d.Instance) || strings.EqualFold(want, trimLocal(d.Hostname)))
}

func trimLocal(name string) string {
	name = strings.TrimSuffix(name, ".")
	return strings.TrimSuffix(name, ".local")
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry carries no devadmin marker or no address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}
	if _, ok := metadata[MarkerKey]; !ok {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Version:      metadata[txtVersion],
		SetupPath:    metadata[txtPath],
		Mode:         metadata[txtMode],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
