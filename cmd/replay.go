package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/analyst-stream/internal"
	"github.com/iksnae/analyst-stream/internal/view"
	"github.com/spf13/cobra"
)

var (
	replayDelay    time.Duration
	replayMultiTab bool
	replayQuiet    bool
)

var (
	turnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	artifactNoticeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFD700")).
				Bold(true)
)

// replayCmd streams a recorded conversation through the live controller
var replayCmd = &cobra.Command{
	Use:   "replay <conversation-id>",
	Short: "Replay a conversation as it streamed",
	Long: `Feed a recorded conversation's events through the conversation controller
turn by turn, announcing strategies as they are extracted, then draw the final view.

--delay paces events to approximate the original stream.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.FindConversation(ctx, args[0])
		if err != nil {
			return err
		}
		events, err := store.LoadEvents(ctx, rec.ID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("conversation %s has no events", rec.ID)
		}

		renderer, err := newViewRenderer()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		progress := &replayProgress{out: out, quiet: replayQuiet}
		conv := internal.NewConversation(rec.ID, nil,
			internal.WithReducer(cfg.NewReducer()),
			internal.WithMultiTab(replayMultiTab || cfg.MultiTab),
			internal.WithUpdateHook(progress.update),
		)

		snap, err := replayTurns(ctx, conv, events, replayDelay, progress)
		if err != nil {
			return err
		}
		renderSummary(out, renderer, snap)
		return nil
	},
}

// replayTurns pumps each recorded turn under its own generation token
func replayTurns(ctx context.Context, conv *internal.Conversation, events []internal.StreamEvent, delay time.Duration, progress *replayProgress) (internal.ConversationSnapshot, error) {
	turns := internal.SplitTurns(events)
	for i, turn := range turns {
		progress.turn(i+1, len(turns))
		req := conv.Begin()
		if err := internal.Pump(ctx, conv, req.Token, paced(ctx, turn, delay)); err != nil {
			return conv.Snapshot(), err
		}
	}
	return conv.Snapshot(), nil
}

// paced sends events with delay between them; the channel closes early when ctx ends
func paced(ctx context.Context, events []internal.StreamEvent, delay time.Duration) <-chan internal.StreamEvent {
	ch := make(chan internal.StreamEvent)
	go func() {
		defer close(ch)
		for i, ev := range events {
			if i > 0 && delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// replayProgress prints short notices as the controller reports changes
type replayProgress struct {
	out       io.Writer
	quiet     bool
	lastCode  string
	strategy  int
	lastState internal.TransportStatus
}

func (p *replayProgress) turn(n, total int) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, turnStyle.Render(fmt.Sprintf("▶ Turn %d/%d", n, total)))
}

func (p *replayProgress) update(snap internal.ConversationSnapshot) {
	if p.quiet {
		return
	}
	if code := snap.State.LatestCode(); code != "" && code != p.lastCode {
		p.lastCode = code
		p.strategy++
		source := ""
		if snap.State.Artifact != nil {
			source = string(snap.State.Artifact.Source)
		}
		fmt.Fprintln(p.out, artifactNoticeStyle.Render(fmt.Sprintf("  ★ Strategy %d extracted (%s)", p.strategy, source)))
	}
	if snap.Status != p.lastState {
		p.lastState = snap.Status
		if snap.Status == internal.StatusError && snap.Banner != nil {
			fmt.Fprintln(p.out, "  ✗ "+snap.Banner.Message)
		}
	}
}

func renderSummary(out io.Writer, renderer *view.Renderer, snap internal.ConversationSnapshot) {
	fmt.Fprintln(out)
	renderer.RenderSnapshot(out, snap)
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().DurationVar(&replayDelay, "delay", 0, "Pause between events, e.g. 20ms")
	replayCmd.Flags().BoolVar(&replayMultiTab, "multi-tab", false, "Open a tab for every extracted strategy")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the final view")
}
