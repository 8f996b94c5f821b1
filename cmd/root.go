package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/iksnae/analyst-stream/internal/config"
	"github.com/iksnae/analyst-stream/internal/view"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	cfgFile  string
	dbPath   string
	logLevel string
	plain    bool
	version  string = "dev"
	commit   string = "unknown"
	date     string = "unknown"

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "analyst-stream",
	Short: "Record, replay and inspect trading-analyst chat streams",
	Long: `A CLI for the streamed conversations of a trading-strategy analyst assistant.

Conversations arrive as UI-message stream events (JSONL or SSE). Each stream is
assembled into messages, the latest AFL strategy is extracted from tool output
or code fences, and every strategy can be combined into a composite vote.

Features:
  • Import recorded streams into a local SQLite event store
  • Replay a conversation exactly as it streamed
  • Tail a live stream file and render it as it grows
  • Show conversations with tool cards and highlighted strategies
  • Export in multiple formats (JSONL, Markdown, YAML, JSON)

Quick Start:
  analyst-stream import run.jsonl        # Record a stream
  analyst-stream list                    # List conversations
  analyst-stream show <id>               # View a conversation
  analyst-stream watch live.jsonl        # Follow a stream as it is written`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			loaded.Database = dbPath
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded

		internal.SetLogLevel(internal.ParseLogLevel(cfg.LogLevel))
		if verbose {
			internal.SetVerbose(true)
		}
		if cfg.File != "" {
			internal.LogDebug("Using config file %s", cfg.File)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	internal.SyncLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.analyst-stream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Event database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: error, warn, info, debug")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colors and styling")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// openStore opens the configured event store, creating and migrating it when needed
func openStore() (*internal.EventStore, error) {
	store, err := internal.OpenEventStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	return store, nil
}

func newCacheManager() *internal.CacheManager {
	return internal.NewCacheManager(cfg.CacheDir())
}

func newLoader(store *internal.EventStore) *internal.TranscriptLoader {
	return internal.NewTranscriptLoader(store, newCacheManager(), cfg.NewReducer(), cfg.Workers)
}

func newViewRenderer() (*view.Renderer, error) {
	return view.NewRenderer(cfg.NewRendererRegistry(), view.Options{
		Width:     cfg.Render.Width,
		Style:     cfg.Render.Style,
		CodeTheme: cfg.Render.CodeTheme,
		Plain:     plain || !internal.IsTerminal(os.Stdout),
	})
}
