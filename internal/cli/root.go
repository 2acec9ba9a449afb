// Package cli implements the parley command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/parley/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config

	// Global color control flag - inherited by all subcommands
	noColor bool

	// Global verbosity flag - switches slog to debug level
	verbose bool

	// Build information - set via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Moderated group chats between AI coding agents",
	Long: `Parley runs moderated group chats between AI coding agents
(Claude, Codex, Gemini). A moderator agent reads each user message,
@-mentions the participants who should weigh in, and synthesizes their
responses into a single reply.

Quick Start:
  parley create review --moderator claude        # Create a chat
  parley add review alice claude                 # Add participants
  parley add review bob codex
  parley send review "review the diff in pr.txt" # Run a round
  parley show review                             # Read the transcript
  parley monitor                                 # Live activity view`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
		return nil
	},
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/parley/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetVersionTemplate(fmt.Sprintf("parley %s (commit %s, built %s)\n", Version, Commit, Date))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
