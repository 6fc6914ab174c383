package core

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// NetworkMode is the device's current network role.
type NetworkMode int32

const (
	ModeUnconfigured NetworkMode = iota
	ModeConnectingStation
	ModeConnected
	ModeAccessPointFallback
)

// String returns the wire name used in status documents and logs
func (m NetworkMode) String() string {
	switch m {
	case ModeUnconfigured:
		return "unconfigured"
	case ModeConnectingStation:
		return "connecting"
	case ModeConnected:
		return "connected"
	case ModeAccessPointFallback:
		return "access_point"
	default:
		return "unknown"
	}
}

// MarshalText lets NetworkMode appear by name in JSON status documents.
func (m NetworkMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name. Unknown names are an error.
func (m *NetworkMode) UnmarshalText(text []byte) error {
	for mode := ModeUnconfigured; mode <= ModeAccessPointFallback; mode++ {
		if mode.String() == string(text) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown network mode %q", text)
}

// Device is the owned context shared by every component of one admin
// instance. It replaces process-wide globals so tests can run several
// independent devices side by side.
type Device struct {
	// Hostname is the device's own name, answered as <hostname> and <hostname>.local
	Hostname string

	// SetupPath is where captive redirects point (e.g. "/setup")
	SetupPath string

	// FirmwareVersion is reported by the status endpoint
	FirmwareVersion string

	state     atomic.Pointer[NetworkState]
	claimed   atomic.Bool
	startedAt time.Time

	listenersMu sync.Mutex
	listeners   []func(NetworkMode, net.IP)
}

// NewDevice creates a device context in Unconfigured mode
func NewDevice(hostname, setupPath string) *Device {
	if setupPath == "" {
		setupPath = "/setup"
	}
	d := &Device{
		Hostname:  hostname,
		SetupPath: setupPath,
		startedAt: time.Now(),
	}
	d.state.Store(&NetworkState{Mode: ModeUnconfigured})
	return d
}

// NetworkState is a mode together with the address it was set with.
// Values are never modified once published.
type NetworkState struct {
	Mode    NetworkMode
	Address net.IP
}

// State returns the current mode and address as one consistent pair.
func (d *Device) State() NetworkState {
	return *d.state.Load()
}

// Mode returns the current network mode.
func (d *Device) Mode() NetworkMode {
	return d.state.Load().Mode
}

// Address returns the device's current address, nil when unconfigured.
func (d *Device) Address() net.IP {
	return d.state.Load().Address
}

// Uptime returns the time since the device context was created
func (d *Device) Uptime() time.Duration {
	return time.Since(d.startedAt)
}

// IsOwnHost reports whether host (optionally with port) names this device.
func (d *Device) IsOwnHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}

	if addr := d.Address(); addr != nil {
		if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil && ip.Equal(addr) {
			return true
		}
	}

	name := strings.ToLower(d.Hostname)
	return name != "" && (host == name || host == name+".local")
}

// OnTransition registers fn to be called after every mode change.
// Callbacks run on the writer's goroutine and must not block.
func (d *Device) OnTransition(fn func(NetworkMode, net.IP)) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// ModeWriter is the only handle able to change a Device's mode.
type ModeWriter struct {
	d *Device
}

// ClaimModeWriter hands out the single mode writer. It panics if called
// twice on the same Device: the network mode has exactly one owner.
func (d *Device) ClaimModeWriter() *ModeWriter {
	if !d.claimed.CompareAndSwap(false, true) {
		panic("core: mode writer already claimed")
	}
	return &ModeWriter{d: d}
}

// Set transitions the device to mode with the given address.
func (w *ModeWriter) Set(mode NetworkMode, addr net.IP) {
	if addr != nil {
		addr = append(net.IP(nil), addr...)
	}
	w.d.state.Store(&NetworkState{Mode: mode, Address: addr})

	w.d.listenersMu.Lock()
	listeners := append([]func(NetworkMode, net.IP){}, w.d.listeners...)
	w.d.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(mode, addr)
	}
}
