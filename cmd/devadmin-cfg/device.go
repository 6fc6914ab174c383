package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/muurk/devadmin/internal/client"
	"github.com/muurk/devadmin/internal/discovery"
	"github.com/muurk/devadmin/internal/logging"
	"github.com/muurk/devadmin/internal/ui"
)

// Connection flags shared by every device command
var (
	deviceAddr   string
	username     string
	password     string
	askPassword  bool
	timeout      time.Duration
	outputFormat string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceAddr, "device", "d", "", "Device address, URL or mDNS name (default: discover)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Basic auth user")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Basic auth password")
	rootCmd.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "Prompt for the basic auth password")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "HTTP request timeout")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format (text, json)")
}

// isDirectAddress reports whether target can be dialled without mDNS: a
// URL, an IP address or a host:port pair.
func isDirectAddress(target string) bool {
	if strings.Contains(target, "://") {
		return true
	}
	if net.ParseIP(target) != nil {
		return true
	}
	if _, _, err := net.SplitHostPort(target); err == nil {
		return true
	}
	return strings.Count(target, ".") > 1
}

// resolveDevice turns --device into a base URL. A bare name is looked up
// over mDNS first and used as a hostname when nothing answers. Without
// --device exactly one advertised device must be present.
func resolveDevice(ctx context.Context) (string, error) {
	scanner := discovery.NewScanner()

	if deviceAddr != "" {
		if isDirectAddress(deviceAddr) {
			return deviceAddr, nil
		}
		dev, err := scanner.WaitForDevice(ctx, deviceAddr)
		if err != nil {
			logging.Debug("mDNS lookup failed, using name as hostname")
			return deviceAddr, nil
		}
		return dev.BaseURL(), nil
	}

	fmt.Fprintln(os.Stderr, "No device specified, discovering over mDNS...")
	devices, err := scanner.ScanForDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	switch len(devices) {
	case 0:
		return "", fmt.Errorf("no devices found; use --device to give an address")
	case 1:
		fmt.Fprintf(os.Stderr, "Found %s\n\n", devices[0])
		return devices[0].BaseURL(), nil
	default:
		names := make([]string, len(devices))
		for i, d := range devices {
			names[i] = d.Instance + " (" + d.Address() + ")"
		}
		return "", fmt.Errorf("multiple devices found: %s; use --device to pick one", strings.Join(names, ", "))
	}
}

// newClient resolves the device and applies the connection flags.
func newClient(ctx context.Context) (*client.Client, error) {
	base, err := resolveDevice(ctx)
	if err != nil {
		return nil, err
	}

	c := client.NewClient(base)
	c.SetTimeout(timeout)
	c.Logger = logging.Named("client")

	if askPassword {
		pw, err := promptPassword("Password: ")
		if err != nil {
			return nil, err
		}
		password = pw
	}
	if username != "" {
		c.SetAuth(username, password)
	}
	return c, nil
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-password needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// deviceFailure prints the error box for a client error and returns err.
func deviceFailure(title string, err error) error {
	ui.PrintFailure(title, err, ui.HintLines(client.GetTroubleshootingHint(err)))
	return fmt.Errorf("%s", client.GetShortErrorMessage(err))
}
