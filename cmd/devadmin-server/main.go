// Devadmin-server is the on-device administration service.
//
// It joins the saved wireless network or falls back to a self-hosted access
// point with a captive portal, then serves the setup page, firmware updates
// and the filesystem browser over HTTP.
//
// Usage:
//
//	devadmin-server serve [flags]
//
// See 'devadmin-server serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/config"
	"github.com/muurk/devadmin/internal/logging"
	"github.com/muurk/devadmin/internal/server"
	"github.com/muurk/devadmin/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devadmin-server",
	Short: "Device administration server",
	Long: `The administration service for a network-connected device.

On start it joins the saved wireless network. When none is saved, or the
join does not complete in time, it starts its own access point and answers
every DNS query with its own address so phones open the setup page.

For discovery and firmware uploads from a workstation, use 'devadmin-cfg'.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

var (
	configPath string
	logLevel   string
	listenAddr string
	noDNS      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the administration server",
	Long: `Start the administration server.

The configuration is read from --config, or from the default location
(/etc/devadmin/config.yaml when running as root). A missing file runs
with defaults, which start the access point straight away.`,
	Example: `  # Run with the default configuration
  devadmin-server serve

  # Run with an explicit config and debug logging
  devadmin-server serve --config ./devadmin.yaml --log-level debug

  # Listen on a different port for local testing, without captive DNS
  devadmin-server serve --listen 127.0.0.1:8080 --no-dns`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: OS config dir)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Override http.listen from the config")
	serveCmd.Flags().BoolVar(&noDNS, "no-dns", false, "Disable the captive DNS responder")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.HTTP.Listen = listenAddr
	}
	if noDNS {
		cfg.Network.DNSListen = config.DNSDisabled
	}
	if cfg.Device.FirmwareVersion == "" {
		cfg.Device.FirmwareVersion = version.Version
	}

	logger := logging.GetLogger()
	logger.Info("starting devadmin-server",
		zap.String("version", version.Full()),
		zap.String("config", path),
	)

	srv, err := server.New(server.Options{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}
	return path, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load the configuration the way 'serve' would, apply defaults and
print it as YAML. Use --write to create the file with the defaults filled in.`,
	RunE: runConfig,
}

var writeConfig bool

func init() {
	configCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: OS config dir)")
	configCmd.Flags().BoolVar(&writeConfig, "write", false, "Write the effective configuration back to the file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if writeConfig {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	}

	out, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("devadmin-server %s (commit: %s) %s\n", version.Version, version.Commit, version.Platform())
	},
}
