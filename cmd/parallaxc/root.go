package main

import (
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gogpu/parallax"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	NoColor bool
}

// NewRootCommand creates the root command for the parallaxc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "parallaxc",
		Short: "parallax kernel compiler",
		Long:  "Compile parallax IR modules into SPIR-V compute kernels and inspect the results.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.NoColor {
				color.NoColor = true
			}
			if opts.Verbose {
				parallax.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging to stderr")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewDisCommand())
	cmd.AddCommand(NewVerifyCommand())
	cmd.AddCommand(NewFingerprintCommand())
	cmd.AddCommand(NewABICommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
