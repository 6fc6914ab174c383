package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/devadmin/internal/client"
	"github.com/muurk/devadmin/internal/discovery"
	"github.com/muurk/devadmin/internal/ui"
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(connectCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find devadmin devices on the network",
	Long: `Browse mDNS for devices advertising the devadmin admin server and list
every device that answers before the timeout.`,
	Example: `  # Scan for 5 seconds (default)
  devadmin-cfg scan

  # Longer scan for busy networks
  devadmin-cfg scan --scan-timeout 15s`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for devices")
}

func runScan(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout

	if outputFormat != "json" {
		fmt.Printf("Scanning for devices (timeout: %s)...\n\n", scanTimeout)
	}
	devices, err := scanner.ScanForDevices(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(devices)
	}

	if len(devices) == 0 {
		ui.PrintWarning("No devices found",
			ui.Field{Key: "Check", Value: "the device is powered on"},
			ui.Field{Key: "Access point", Value: "join <hostname>-XXXX if the device fell back"},
			ui.Field{Key: "Manual", Value: "use --device with an IP address"},
		)
		return nil
	}

	rows := make([][]string, len(devices))
	for i, d := range devices {
		rows[i] = []string{d.Instance, d.Address(), d.Mode, d.Version, d.SetupURL()}
	}
	fmt.Println(ui.RenderTable([]string{"NAME", "ADDRESS", "MODE", "VERSION", "SETUP"}, rows))
	fmt.Printf("\nFound %d device(s). Use --device <address> with other commands.\n", len(devices))
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device status",
	Long: `Fetch the status document of a device: network mode, address, uptime,
filesystem usage, the firmware upload channel and the active image digest.`,
	Example: `  devadmin-cfg status --device 192.168.4.1
  devadmin-cfg status --device kitchen --format json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	st, err := c.Status(ctx)
	if err != nil {
		return deviceFailure("Status", err)
	}
	if outputFormat == "json" {
		return printJSON(st)
	}

	fields := []ui.Field{
		{Key: "Hostname", Value: st.Hostname},
		{Key: "Version", Value: st.Version},
		{Key: "Mode", Value: st.Mode.String()},
		{Key: "Address", Value: st.Address},
		{Key: "Uptime", Value: (time.Duration(st.UptimeSeconds) * time.Second).String()},
		{Key: "Upload", Value: st.Upload.State.String()},
	}
	if st.Upload.Current != nil {
		fields = append(fields, ui.Field{Key: "Upload progress",
			Value: ui.FormatBytes(st.Upload.Current.Written) + " / " + ui.FormatBytes(st.Upload.Current.Declared)})
	}
	if last := st.Upload.Last; last != nil {
		v := last.State.String()
		if last.Error != "" {
			v += ": " + last.Error
		}
		if last.RestartPending {
			v += " (restart pending)"
		}
		fields = append(fields, ui.Field{Key: "Last upload", Value: v})
	}
	if st.ImageDigest != "" {
		fields = append(fields, ui.Field{Key: "Image BLAKE3", Value: st.ImageDigest})
	}
	if fs := st.Filesystem; fs != nil {
		fields = append(fields, ui.Field{Key: "Filesystem",
			Value: ui.FormatBytes(int64(fs.Used)) + " used of " + ui.FormatBytes(int64(fs.Total))})
	}
	if ap := st.AccessPoint; ap != nil {
		fields = append(fields,
			ui.Field{Key: "Access point", Value: ap.SSID},
			ui.Field{Key: "Captive DNS", Value: strconv.FormatBool(st.CaptiveDNS)},
		)
	}
	if p := st.Pending; p != nil {
		fields = append(fields, ui.Field{Key: "Joining", Value: p.SSID + " until " + p.Deadline.Format(time.TimeOnly)})
	}

	ui.PrintHeader("Device status", c.BaseURL)
	fmt.Println(ui.RenderDetails(fields...))
	return nil
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List wireless networks visible to the device",
	Example: `  devadmin-cfg networks --device 192.168.4.1`,
	RunE:    runNetworks,
}

func runNetworks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	networks, err := c.Networks(ctx)
	if err != nil {
		return deviceFailure("Network scan", err)
	}
	if outputFormat == "json" {
		return printJSON(networks)
	}
	if len(networks) == 0 {
		fmt.Println("The device sees no wireless networks.")
		return nil
	}

	rows := make([][]string, len(networks))
	for i, n := range networks {
		security := n.Security
		if security == "" {
			security = "open"
		}
		rows[i] = []string{n.SSID, strconv.Itoa(n.Signal) + "%", security, strconv.Itoa(n.Channel)}
	}
	fmt.Println(ui.RenderTable([]string{"SSID", "SIGNAL", "SECURITY", "CHANNEL"}, rows))
	return nil
}

var (
	passphrase     string
	askPassphrase  bool
	connectTimeout time.Duration
)

var connectCmd = &cobra.Command{
	Use:   "connect <ssid>",
	Short: "Ask the device to join a wireless network",
	Long: `Ask the device to join a wireless network. The call waits until the
device reports the outcome. On success the credentials are saved on the
device; on failure the device restores its previous network, usually its
own access point, so it stays reachable.

The device changes address when it joins, so the response is the last
thing this command hears from it on the old address.`,
	Example: `  # Join a WPA network, prompting for the passphrase
  devadmin-cfg connect home --ask-passphrase --device 192.168.4.1

  # Join an open network with a longer timeout
  devadmin-cfg connect cafe --join-timeout 30s --device 192.168.4.1`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&passphrase, "passphrase", "", "Network passphrase")
	connectCmd.Flags().BoolVar(&askPassphrase, "ask-passphrase", false, "Prompt for the network passphrase")
	connectCmd.Flags().DurationVar(&connectTimeout, "join-timeout", 0, "How long the device may take to join (default: device setting)")
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ssid := args[0]

	if askPassphrase {
		pw, err := promptPassword("Passphrase for " + ssid + ": ")
		if err != nil {
			return err
		}
		passphrase = pw
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:       "Join network",
		Command:     "devadmin-cfg connect",
		Params:      []ui.Field{{Key: "Device", Value: c.BaseURL}, {Key: "SSID", Value: ssid}},
		StepNames:   []string{"Join " + ssid},
		Interactive: ui.IsTerminal(os.Stdout) && outputFormat != "json",
		Hint:        hintFor,
	})
	return runner.Run(ctx, func(ctx context.Context, rep ui.Reporter) ([]ui.Field, error) {
		rep.Step(1, ui.StepRunning, "")
		res, err := c.Connect(ctx, ssid, passphrase, connectTimeout)
		if err != nil {
			rep.Step(1, ui.StepFailed, "")
			return nil, err
		}
		rep.Step(1, ui.StepComplete, res.Address)
		return []ui.Field{
			{Key: "Address", Value: res.Address},
			{Key: "Saved", Value: strconv.FormatBool(res.Saved)},
		}, nil
	})
}

func hintFor(err error) []string {
	return ui.HintLines(client.GetTroubleshootingHint(err))
}
