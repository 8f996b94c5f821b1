package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/cobra"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that analyst-stream can open and replay its event store",
	Long: `Check the health of analyst-stream by verifying:
  • Configuration loading
  • Data directory access
  • Event database schema
  • Conversation count and a sample replay
  • Renderer registry and cache state

This command is useful for debugging storage issues, especially in CI/CD environments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Analyst Stream Health Check"))
		fmt.Fprintln(out)

		step(out, 1, "Loading configuration")
		if cfg.File != "" {
			ok(out, "Config loaded from "+cfg.File)
		} else {
			warn(out, "No config file, using defaults")
		}
		detail(out, "Data dir: %s", cfg.DataDir)
		detail(out, "Database: %s", cfg.Database)
		detail(out, "Workers: %d, multi-tab: %t", cfg.Workers, cfg.MultiTab)
		fmt.Fprintln(out)

		step(out, 2, "Checking data directory")
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			fail(out, "Data directory is not writable", err)
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		ok(out, "Data directory accessible")
		fmt.Fprintln(out)

		step(out, 3, "Opening event database")
		store, err := openStore()
		if err != nil {
			fail(out, "Failed to open event database", err)
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		defer store.Close()
		version, err := internal.CurrentSchemaVersion(store.DB())
		if err != nil {
			fail(out, "Failed to read schema version", err)
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		if version != internal.SchemaVersion() {
			warn(out, fmt.Sprintf("Schema version %d, expected %d", version, internal.SchemaVersion()))
		} else {
			ok(out, fmt.Sprintf("Schema version %d", version))
		}
		fmt.Fprintln(out)

		step(out, 4, "Counting conversations")
		records, err := store.ListConversations(cmd.Context())
		if err != nil {
			fail(out, "Failed to list conversations", err)
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		if len(records) == 0 {
			warn(out, "No conversations recorded yet (use 'analyst-stream import')")
		} else {
			ok(out, fmt.Sprintf("%d conversation(s) recorded", len(records)))
			loader := internal.NewTranscriptLoader(store, nil, cfg.NewReducer(), 1)
			if t, err := loader.Load(cmd.Context(), records[0].ID); err != nil {
				warn(out, fmt.Sprintf("Latest conversation does not replay: %v", err))
			} else {
				ok(out, fmt.Sprintf("Latest conversation replays: %d message(s), %d strategy(ies)", len(t.Messages), len(t.Artifacts)))
				ledger := internal.NewToolCallLedger()
				ledger.Record(t.Messages)
				if open := ledger.Len() - len(ledger.Terminal()); open > 0 {
					warn(out, fmt.Sprintf("%d of %d tool call(s) never finished", open, ledger.Len()))
				} else {
					ok(out, fmt.Sprintf("%d tool call(s), all finished", ledger.Len()))
				}
			}
		}
		fmt.Fprintln(out)

		step(out, 5, "Checking renderers and cache")
		reg := cfg.NewRendererRegistry()
		ok(out, fmt.Sprintf("%d tool renderer(s) registered", len(reg.Tools())))
		if verbose {
			for _, tool := range reg.Tools() {
				r, _ := reg.Lookup(tool)
				detail(out, "%s -> %s", tool, r)
			}
		}
		rev, err := store.Revision(cmd.Context())
		if err != nil {
			fail(out, "Failed to read store revision", err)
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		if valid, _ := newCacheManager().IsCacheValid(store.Path(), rev); valid {
			ok(out, "Transcript cache is current")
		} else {
			warn(out, "Transcript cache is stale or empty; it is rebuilt on the next export")
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, successStyle.Render("✅ Health check passed"))
		return nil
	},
}

func step(out io.Writer, n int, msg string) {
	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Step %d: %s...", n, msg)))
}

func ok(out io.Writer, msg string) {
	fmt.Fprintln(out, successStyle.Render("✅ "+msg))
}

func warn(out io.Writer, msg string) {
	fmt.Fprintln(out, warningStyle.Render("⚠️  "+msg))
}

func fail(out io.Writer, msg string, err error) {
	fmt.Fprintln(out, errorStyle.Render("❌ "+msg+":"), err)
}

func detail(out io.Writer, format string, args ...any) {
	if verbose {
		fmt.Fprintf(out, "   "+format+"\n", args...)
	}
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
