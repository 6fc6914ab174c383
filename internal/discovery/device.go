package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is a devadmin instance found on the local network
type Device struct {
	// Instance is the advertised mDNS instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "sensor-17.local.")
	Hostname string

	// IP is the first advertised address, IPv4 preferred
	IP string

	// Port is the admin HTTP port
	Port int

	// Version is the firmware version from the TXT record
	Version string

	// SetupPath is where the setup page is served
	SetupPath string

	// Mode is the network mode at the time of the announcement
	Mode string

	// Metadata holds every TXT record entry
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable description of the device
func (d *Device) String() string {
	name := d.Instance
	if name == "" {
		name = d.Hostname
	}
	if d.Version != "" {
		return fmt.Sprintf("%s (firmware %s) at %s", name, d.Version, d.Address())
	}
	return fmt.Sprintf("%s at %s", name, d.Address())
}

// Address returns host:port, bracketing IPv6 addresses
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	return "http://" + d.Address()
}

// SetupURL returns the URL of the device's setup page
func (d *Device) SetupURL() string {
	path := d.SetupPath
	if path == "" {
		path = "/setup"
	}
	return d.BaseURL() + path
}

// GetMetadata retrieves a TXT value by key, or "" if absent
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
