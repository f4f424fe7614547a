package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "streamcast",
		Short: "In-process WebSocket broadcast server",
		Long: `streamcast fans messages out to WebSocket subscribers.

Browsers connect to /ws and subscribe to named streams over a small JSON
envelope. A local producer triggers a broadcast by POSTing
{"stream": ..., "data": ...} to /v1/broadcast; the trigger only accepts
loopback callers. Delivery is best-effort and in-memory — nothing is
persisted or replayed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("streamcast %s (%s)\n", version, commit)
		},
	}
}
