package discovery

import (
	"net"
	"reflect"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, ipv4, ipv6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = ipv4
	e.AddrIPv6 = ipv6
	e.Text = txt
	return e
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name        string
		entry       *zeroconf.ServiceEntry
		wantNil     bool
		wantIP      string
		wantPort    int
		wantVersion string
		wantMode    string
	}{
		{
			name: "devadmin device with IPv4",
			entry: entry("sensor-17", "sensor-17.local.", 80,
				[]net.IP{net.ParseIP("192.168.4.16")}, nil,
				"devadmin=1", "version=1.4.2", "path=/setup", "mode=connected"),
			wantIP:      "192.168.4.16",
			wantPort:    80,
			wantVersion: "1.4.2",
			wantMode:    "connected",
		},
		{
			name: "IPv6 only",
			entry: entry("sensor-18", "sensor-18.local.", 8080,
				nil, []net.IP{net.ParseIP("fe80::2")}, "devadmin=1"),
			wantIP:   "fe80::2",
			wantPort: 8080,
		},
		{
			name: "missing port defaults to 80",
			entry: entry("sensor-19", "sensor-19.local.", 0,
				[]net.IP{net.ParseIP("10.0.0.5")}, nil, "devadmin"),
			wantIP:   "10.0.0.5",
			wantPort: 80,
		},
		{
			name: "ordinary web server without marker",
			entry: entry("printer", "printer.local.", 80,
				[]net.IP{net.ParseIP("192.168.1.1")}, nil, "path=/"),
			wantNil: true,
		},
		{
			name:    "no addresses",
			entry:   entry("sensor-20", "sensor-20.local.", 80, nil, nil, "devadmin=1"),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if d != nil {
					t.Fatalf("parseServiceEntry() = %v, want nil", d)
				}
				return
			}
			if d == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if d.IP != tt.wantIP {
				t.Errorf("IP = %q, want %q", d.IP, tt.wantIP)
			}
			if d.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", d.Port, tt.wantPort)
			}
			if d.Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", d.Version, tt.wantVersion)
			}
			if d.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", d.Mode, tt.wantMode)
			}
			if d.Instance != tt.entry.Instance {
				t.Errorf("Instance = %q, want %q", d.Instance, tt.entry.Instance)
			}
			if d.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt not set")
			}
		})
	}
}

func TestAnnouncementTXT(t *testing.T) {
	tests := []struct {
		name string
		ann  Announcement
		want []string
	}{
		{
			name: "marker only",
			ann:  Announcement{Instance: "x"},
			want: []string{"devadmin=1"},
		},
		{
			name: "all fields",
			ann:  Announcement{Version: "2.0", SetupPath: "/setup", Mode: "access-point"},
			want: []string{"devadmin=1", "version=2.0", "path=/setup", "mode=access-point"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ann.TXT(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TXT() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnnouncementRoundTrip(t *testing.T) {
	ann := Announcement{Instance: "sensor-17", Port: 8080, Version: "1.0", SetupPath: "/admin", Mode: "connected"}
	d := parseServiceEntry(entry(ann.Instance, "sensor-17.local.", ann.Port,
		[]net.IP{net.ParseIP("192.168.1.9")}, nil, ann.TXT()...))
	if d == nil {
		t.Fatal("announcement not recognised")
	}
	if d.SetupURL() != "http://192.168.1.9:8080/admin" {
		t.Errorf("SetupURL() = %q", d.SetupURL())
	}
	if d.Version != ann.Version || d.Mode != ann.Mode {
		t.Errorf("parsed %+v from %+v", d, ann)
	}
}

func TestAdvertiserShutdownWithoutStart(t *testing.T) {
	a := NewAdvertiser(nil)
	a.SetMode("connected")
	a.Shutdown()
}

func TestNewScanner(t *testing.T) {
	if s := NewScanner(); s.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", s.Timeout, DefaultScanTimeout)
	}
}
