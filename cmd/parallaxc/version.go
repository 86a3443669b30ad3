package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is the parallaxc version. Overridden at build time via -ldflags.
var Version = "0.1.0-dev"

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the parallaxc version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := color.New(color.FgCyan, color.Bold).Sprint("parallaxc")
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", name, Version, runtime.Version())
			return err
		},
	}
}
