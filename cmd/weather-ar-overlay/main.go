// Package main provides the weather-ar-overlay binary entry point.
// It serves the AR weather panel (frame transform, panel text and screen
// events) for a renderer, or simulates it on the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "weather-ar-overlay"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "AR weather overlay service",
		Long: `weather-ar-overlay keeps a floating weather panel anchored in AR space.

Device orientation and acceleration arrive over HTTP (or from a synthetic
source); weather data is refreshed from remote providers every few seconds.
Renderers read the panel frame and text from the HTTP API or its event stream.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), simulateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}
