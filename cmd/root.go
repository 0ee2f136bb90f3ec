package cmd

import (
	"fmt"
	"io"
	"os"
	"streamspace/config"
	"streamspace/logging"

	"github.com/spf13/cobra"
)

const cliExecutable = "streamspace"

// Version is set at build time with -ldflags "-X streamspace/cmd.Version=..."
var Version = "dev"

// app carries the loaded configuration to subcommands
type app struct {
	configFile string
	cfg        config.Config
	logCloser  io.Closer
}

// NewCommand constructs the top-level CLI command
func NewCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Streamspace downloads torrents for streaming and reports progress live",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), a.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg

			closer, err := logging.Setup(cfg.Log)
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			a.logCloser = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Configuration file path (YAML)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newHashCommand())
	cmd.AddCommand(newWatchCommand(a))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cliExecutable, Version)
			return err
		},
	}
}
