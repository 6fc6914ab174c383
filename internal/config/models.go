package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DNSDisabled as network.dns_listen turns the captive DNS responder off
const DNSDisabled = "off"

// Config is the admin server configuration file.
type Config struct {
	Version    int              `yaml:"version"`
	Device     DeviceConfig     `yaml:"device"`
	HTTP       HTTPConfig       `yaml:"http"`
	Network    NetworkConfig    `yaml:"network"`
	Firmware   FirmwareConfig   `yaml:"firmware"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Setup      SetupConfig      `yaml:"setup,omitempty"`
}

// DeviceConfig identifies the device
type DeviceConfig struct {
	Hostname        string `yaml:"hostname,omitempty"`         // Empty means os.Hostname()
	SetupPath       string `yaml:"setup_path"`                 // Captive redirect target
	FirmwareVersion string `yaml:"firmware_version,omitempty"` // Reported by /status
	Title           string `yaml:"title,omitempty"`            // Setup page title
}

// HTTPConfig configures the admin HTTP surface
type HTTPConfig struct {
	Listen   string `yaml:"listen"`
	Username string `yaml:"username,omitempty"` // Basic auth gate; empty disables it
	Password string `yaml:"password,omitempty"`

	// CertFile and KeyFile switch the admin surface to HTTPS. Captive
	// redirects only work over plain HTTP, so leave them empty on devices
	// that rely on the access point fallback.
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
}

// NetworkConfig configures the network bootstrap
type NetworkConfig struct {
	Interface      string        `yaml:"interface"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	DNSListen      string        `yaml:"dns_listen"` // DNSDisabled turns captive DNS off

	// Station holds the saved credentials for the network to join
	Station *Credentials `yaml:"station,omitempty"`

	// AccessPoint overrides the generated fallback network
	AccessPoint *AccessPointConfig `yaml:"access_point,omitempty"`
}

// AccessPointConfig is the fallback network. RedirectHost, when set, is
// the host captive redirects send clients to instead of the device address.
type AccessPointConfig struct {
	SSID         string `yaml:"ssid"`
	Passphrase   string `yaml:"passphrase,omitempty"`
	RedirectHost string `yaml:"redirect_host,omitempty"`
}

// Credentials is an SSID and passphrase pair
type Credentials struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// FirmwareConfig configures the firmware region and restart
type FirmwareConfig struct {
	ImagePath      string        `yaml:"image_path"`
	Capacity       int64         `yaml:"capacity"`
	Magic          string        `yaml:"magic,omitempty"` // Hex, e.g. "e9"
	RestartMethod  string        `yaml:"restart_method"`  // system, command or none
	RestartCommand []string      `yaml:"restart_command,omitempty"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	Watchdog       string        `yaml:"watchdog,omitempty"` // e.g. /dev/watchdog
}

// FilesystemConfig configures the file browser
type FilesystemConfig struct {
	Root   string `yaml:"root"`
	WebDAV bool   `yaml:"webdav"`
}

// DiscoveryConfig configures mDNS advertisement
type DiscoveryConfig struct {
	Advertise bool `yaml:"advertise"`
}

// SetupConfig lists the options shown on the setup page
type SetupConfig struct {
	Options []OptionConfig `yaml:"options,omitempty"`
}

// OptionConfig declares one setup page option. Kind is one of text,
// secret, number, bool or select.
type OptionConfig struct {
	Key     string   `yaml:"key"`
	Label   string   `yaml:"label,omitempty"`
	Kind    string   `yaml:"kind,omitempty"`
	Group   string   `yaml:"group,omitempty"`
	Choices []string `yaml:"choices,omitempty"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Default any      `yaml:"default,omitempty"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	c := &Config{Version: 1}
	c.applyDefaults()
	c.Discovery.Advertise = true
	return c
}

func (c *Config) applyDefaults() {
	if c.Device.SetupPath == "" {
		c.Device.SetupPath = "/setup"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":80"
	}
	if c.Network.Interface == "" {
		c.Network.Interface = "wlan0"
	}
	if c.Network.ConnectTimeout <= 0 {
		c.Network.ConnectTimeout = 10 * time.Second
	}
	if c.Network.PollInterval <= 0 {
		c.Network.PollInterval = 250 * time.Millisecond
	}
	if c.Network.DNSListen == "" {
		c.Network.DNSListen = ":53"
	}
	if c.Firmware.ImagePath == "" {
		c.Firmware.ImagePath = "/var/lib/devadmin/firmware.bin"
	}
	if c.Firmware.Capacity <= 0 {
		c.Firmware.Capacity = 64 << 20
	}
	if c.Firmware.RestartMethod == "" {
		c.Firmware.RestartMethod = "system"
	}
	if c.Firmware.RestartDelay <= 0 {
		c.Firmware.RestartDelay = time.Second
	}
	if c.Filesystem.Root == "" {
		c.Filesystem.Root = "/var/lib/devadmin/fs"
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}
	if !strings.HasPrefix(c.Device.SetupPath, "/") {
		return fmt.Errorf("device.setup_path must start with '/': %q", c.Device.SetupPath)
	}
	if (c.HTTP.Username == "") != (c.HTTP.Password == "") {
		return fmt.Errorf("http.username and http.password must be set together")
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return fmt.Errorf("http.cert_file and http.key_file must be set together")
	}
	if ap := c.Network.AccessPoint; ap != nil {
		if ap.SSID == "" {
			return fmt.Errorf("network.access_point.ssid is required when access_point is set")
		}
		if ap.Passphrase != "" && len(ap.Passphrase) < 8 {
			return fmt.Errorf("network.access_point.passphrase must be at least 8 characters")
		}
		if strings.ContainsAny(ap.RedirectHost, "/:") {
			return fmt.Errorf("network.access_point.redirect_host must be a bare host name: %q", ap.RedirectHost)
		}
	}
	seen := make(map[string]bool, len(c.Setup.Options))
	for i, opt := range c.Setup.Options {
		if opt.Key == "" {
			return fmt.Errorf("setup.options[%d].key is required", i)
		}
		if seen[opt.Key] {
			return fmt.Errorf("setup.options: duplicate key %q", opt.Key)
		}
		seen[opt.Key] = true
	}
	if _, err := c.Firmware.MagicBytes(); err != nil {
		return err
	}
	switch c.Firmware.RestartMethod {
	case "system", "none":
	case "command":
		if len(c.Firmware.RestartCommand) == 0 {
			return fmt.Errorf("firmware.restart_command is required for restart_method \"command\"")
		}
	default:
		return fmt.Errorf("unknown firmware.restart_method %q", c.Firmware.RestartMethod)
	}
	return nil
}

// MagicBytes decodes the configured image magic.
func (f FirmwareConfig) MagicBytes() ([]byte, error) {
	if f.Magic == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(f.Magic, "0x"))
	if err != nil {
		return nil, fmt.Errorf("firmware.magic is not valid hex: %w", err)
	}
	return b, nil
}

// SetStation records the credentials of a network that was joined
// successfully, so the next boot tries it first.
func (c *Config) SetStation(ssid, passphrase string) {
	c.Network.Station = &Credentials{SSID: ssid, Passphrase: passphrase}
}

// ClearStation forgets the saved station network.
func (c *Config) ClearStation() {
	c.Network.Station = nil
}
