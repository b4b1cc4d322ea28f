// Witransfer finds other WiTransfer instances on the local network.
//
// Each running instance broadcasts a small JSON announcement over UDP and
// listens for the announcements of others, building a live list of peers.
// Optionally the same announcement is advertised over mDNS and the peer
// list is published to local tools over a websocket feed.
//
// Usage:
//
//	witransfer [command] [flags]
//
// Running without arguments starts discovery with the configured defaults.
// See 'witransfer --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/witransfer/witransfer/internal/urls"
	"github.com/witransfer/witransfer/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "witransfer",
	Short: "WiTransfer LAN peer discovery",
	Long: `Discover other WiTransfer instances on the local network.

Every instance announces itself by UDP broadcast on a shared port and
listens for the announcements of others. Peers appear as soon as their
first announcement arrives.

If no command is specified, discovery starts with the configured defaults.

Documentation: ` + urls.Repository,
	Version:       version.Version,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: discover when no subcommand provided
		return runDiscover(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "witransfer %s\n", version.Full())
	},
}
