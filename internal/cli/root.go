// Package cli wires the configuration, workspace, remote client and
// engine into the pagemirror commands.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/pagemirror/internal/config"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagemirror",
		Short: "Mirror a local content tree into a remote content store",
		Long: `Pagemirror watches a folder tree of pages and posts and reconciles
every change with a remote content store: folder moves into the trash
zone, renames, new-entity promotion, metadata edits and content edits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to a config file (default: search pagemirror.yaml)")
	root.PersistentFlags().String("root", "", "Watched tree root (overrides config)")
	root.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().Bool("assume-yes", false, "Approve oversized folder action batches without prompting")

	root.AddCommand(NewWatchCommand())
	root.AddCommand(NewScanCommand())
	root.AddCommand(NewVersionCommand())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for a command,
// applying flag overrides on top of file and environment values.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if cmd.Flags().Changed("root") {
		cfg.Root, _ = cmd.Flags().GetString("root")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("assume-yes") {
		cfg.AssumeYes, _ = cmd.Flags().GetBool("assume-yes")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return cfg, log.Logger.Level(level), nil
}
