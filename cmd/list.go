package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/cobra"
)

var (
	listClearCache bool
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listRow is one conversation line of the list output
type listRow struct {
	record    internal.ConversationRecord
	messages  int
	artifacts int
	status    string
	cached    bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conversations",
	Long:  `List all conversations in the event store, most recently updated first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cache := newCacheManager()
		if listClearCache {
			if err := cache.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		records, err := store.ListConversations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}

		rows := make([]listRow, 0, len(records))
		cached := cachedEntries(cmd.Context(), cache, store)
		for _, rec := range records {
			row := listRow{record: rec}
			if entry, ok := cached[rec.ID]; ok {
				row.messages = entry.MessageCount
				row.artifacts = entry.Artifacts
				row.status = entry.Status
				row.cached = true
			}
			rows = append(rows, row)
		}

		displayConversations(cmd.OutOrStdout(), rows)
		return nil
	},
}

// cachedEntries returns the cache index by id when it matches the store
func cachedEntries(ctx context.Context, cache *internal.CacheManager, store *internal.EventStore) map[string]internal.TranscriptIndexEntry {
	out := make(map[string]internal.TranscriptIndexEntry)
	rev, err := store.Revision(ctx)
	if err != nil {
		return out
	}
	valid, err := cache.IsCacheValid(store.Path(), rev)
	if err != nil || !valid {
		return out
	}
	index, err := cache.LoadIndex()
	if err != nil {
		return out
	}
	for _, entry := range index.Transcripts {
		out[entry.ID] = entry
	}
	return out
}

func displayConversations(out io.Writer, rows []listRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No conversations recorded"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Found %d conversation(s)", len(rows))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Events")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Strategies")+"\t"+titleStyle.Render("Updated")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, row := range rows {
		title := row.record.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		messages, strategies := dateStyle.Render("—"), dateStyle.Render("—")
		if row.cached {
			messages = countStyle.Render(strconv.Itoa(row.messages))
			strategies = countStyle.Render(strconv.Itoa(row.artifacts))
			if row.status != "" && row.status != string(internal.StreamFinished) {
				strategies += " " + statusStyle.Render(row.status)
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(row.record.ID),
			title,
			countStyle.Render(strconv.Itoa(row.record.EventCount)),
			messages,
			strategies,
			dateStyle.Render(relativeDate(row.record.UpdatedAt, time.Now())),
		)
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("Tip: any unique id prefix works, e.g. `analyst-stream show "+shortID(rows[0].record.ID)+"`"))
}

func relativeDate(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	t = t.Local()
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listClearCache, "clear-cache", false, "Clear cache before listing")
}
