// Devadmin-cfg is the workstation utility for devadmin devices.
//
// It finds devices over mDNS, reads their status, asks them to join a
// wireless network and uploads firmware images.
//
// Usage:
//
//	devadmin-cfg [command] [flags]
//
// See 'devadmin-cfg --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/devadmin/internal/logging"
	"github.com/muurk/devadmin/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devadmin-cfg",
	Short: "devadmin device utility",
	Long: `A utility for devices running devadmin-server.

Finds devices on the local network, shows their status, asks them to join
a wireless network and uploads firmware images.

Set DEVADMIN_LOG_LEVEL=debug to see what the tool is doing underneath.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("devadmin-cfg %s (commit: %s) %s\n", version.Version, version.Commit, version.Platform())
	},
}
