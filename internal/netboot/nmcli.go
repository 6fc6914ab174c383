package netboot

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/logging"
)

// DefaultAPConnection is the NetworkManager connection name used for the
// fallback access point.
const DefaultAPConnection = "devadmin-ap"

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLIStack drives NetworkManager through the nmcli command line tool.
type NMCLIStack struct {
	// Interface is the wireless device, e.g. "wlan0"
	Interface string

	// APConnection names the hotspot connection profile
	APConnection string

	// JoinWait is passed to nmcli --wait for station joins
	JoinWait time.Duration

	Run    CommandRunner
	Logger *zap.Logger
}

// NewNMCLIStack creates a stack for the given wireless interface.
func NewNMCLIStack(iface string, logger *zap.Logger) *NMCLIStack {
	return &NMCLIStack{
		Interface:    iface,
		APConnection: DefaultAPConnection,
		JoinWait:     DefaultConnectTimeout,
		Run:          execRunner,
		Logger:       logging.OrNop(logger),
	}
}

func (s *NMCLIStack) nmcli(ctx context.Context, args ...string) ([]byte, error) {
	run := s.Run
	if run == nil {
		run = execRunner
	}
	logging.OrNop(s.Logger).Debug("running nmcli", zap.Strings("args", redact(args)))

	out, err := run(ctx, "nmcli", args...)
	if err != nil {
		return out, fmt.Errorf("nmcli %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// JoinStation implements Stack. The connection profile is named after the
// SSID so StationAddress can tell this link from an older one.
func (s *NMCLIStack) JoinStation(ctx context.Context, ssid, passphrase string) error {
	wait := int(s.JoinWait / time.Second)
	if wait <= 0 {
		wait = 10
	}
	args := []string{"--wait", strconv.Itoa(wait), "device", "wifi", "connect", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	args = append(args, "ifname", s.Interface, "name", ssid)

	_, err := s.nmcli(ctx, args...)
	return err
}

// StationAddress implements Stack. Only the connection profile created by
// JoinStation for ssid counts; the access point and any older station link
// do not.
func (s *NMCLIStack) StationAddress(ctx context.Context, ssid string) (net.IP, error) {
	out, err := s.nmcli(ctx, "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "device", "show", s.Interface)
	if err != nil {
		return nil, err
	}
	st := parseDeviceShow(string(out))
	if !st.connected || st.connection == s.apConnection() || st.connection != ssid {
		return nil, nil
	}
	return st.address, nil
}

// StartAccessPoint implements Stack
func (s *NMCLIStack) StartAccessPoint(ctx context.Context, cfg AccessPointConfig) (net.IP, error) {
	args := []string{"device", "wifi", "hotspot", "ifname", s.Interface, "con-name", s.apConnection(), "ssid", cfg.SSID}
	if cfg.Passphrase != "" {
		args = append(args, "password", cfg.Passphrase)
	}
	if _, err := s.nmcli(ctx, args...); err != nil {
		return nil, err
	}

	out, err := s.nmcli(ctx, "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS", "device", "show", s.Interface)
	if err != nil {
		return nil, err
	}
	st := parseDeviceShow(string(out))
	if st.address == nil {
		return nil, fmt.Errorf("access point %q has no IPv4 address", cfg.SSID)
	}
	return st.address, nil
}

// StopAccessPoint implements Stack
func (s *NMCLIStack) StopAccessPoint(ctx context.Context) error {
	_, err := s.nmcli(ctx, "connection", "down", s.apConnection())
	return err
}

// Disconnect implements Stack
func (s *NMCLIStack) Disconnect(ctx context.Context) error {
	_, err := s.nmcli(ctx, "device", "disconnect", s.Interface)
	return err
}

// Scan implements Stack. Hidden networks are skipped and each SSID is
// reported once, at its strongest signal.
func (s *NMCLIStack) Scan(ctx context.Context) ([]Network, error) {
	out, err := s.nmcli(ctx, "-t", "-f", "SSID,SIGNAL,SECURITY,BSSID,CHAN",
		"device", "wifi", "list", "ifname", s.Interface, "--rescan", "yes")
	if err != nil {
		return nil, err
	}
	return parseWifiList(string(out)), nil
}

func (s *NMCLIStack) apConnection() string {
	if s.APConnection == "" {
		return DefaultAPConnection
	}
	return s.APConnection
}

type deviceState struct {
	connected  bool
	connection string
	address    net.IP
}

// parseDeviceShow reads terse "device show" output:
//
//	GENERAL.STATE:100 (connected)
//	GENERAL.CONNECTION:home
//	IP4.ADDRESS[1]:192.168.1.20/24
func parseDeviceShow(output string) deviceState {
	var st deviceState
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch {
		case key == "GENERAL.STATE":
			st.connected = strings.HasPrefix(value, "100")
		case key == "GENERAL.CONNECTION":
			st.connection = value
		case strings.HasPrefix(key, "IP4.ADDRESS") && st.address == nil:
			if ip, _, err := net.ParseCIDR(value); err == nil {
				st.address = ip.To4()
			}
		}
	}
	return st
}

// parseWifiList reads terse "device wifi list" output where colons inside
// a field are escaped as "\:".
func parseWifiList(output string) []Network {
	best := make(map[string]Network)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) < 5 || fields[0] == "" {
			continue
		}
		signal, _ := strconv.Atoi(fields[1])
		channel, _ := strconv.Atoi(fields[4])
		n := Network{
			SSID:     fields[0],
			Signal:   signal,
			Security: fields[2],
			BSSID:    fields[3],
			Channel:  channel,
		}
		if prev, ok := best[n.SSID]; !ok || n.Signal > prev.Signal {
			best[n.SSID] = n
		}
	}

	networks := make([]Network, 0, len(best))
	for _, n := range best {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool {
		if networks[i].Signal != networks[j].Signal {
			return networks[i].Signal > networks[j].Signal
		}
		return networks[i].SSID < networks[j].SSID
	})
	return networks
}

func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "password" {
			out[i+1] = "********"
		}
	}
	return out
}
