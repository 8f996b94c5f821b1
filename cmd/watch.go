package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/iksnae/analyst-stream/internal/view"
	"github.com/iksnae/analyst-stream/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchRecord   bool
	watchTitle    string
	watchMultiTab bool
)

// watchCmd follows a stream file that another process is writing
var watchCmd = &cobra.Command{
	Use:   "watch <stream-file>",
	Short: "Follow a live stream file",
	Long: `Tail a JSONL or SSE stream file as it is written and render each turn when it
completes. The file does not need to exist yet. Press Ctrl-C to stop; the
message list is kept exactly as it was when stopped.

With --record the events seen are stored as a new conversation on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		renderer, err := newViewRenderer()
		if err != nil {
			return err
		}

		tailer, err := watch.NewTailer(args[0], cfg.Watch.PollInterval)
		if err != nil {
			return fmt.Errorf("failed to create tailer: %w", err)
		}
		if err := tailer.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch %s: %w", args[0], err)
		}
		defer tailer.Stop()

		rec := &eventRecorder{}
		live := &liveView{out: cmd.OutOrStdout(), renderer: renderer}
		conv := internal.NewConversation(args[0], nil,
			internal.WithReducer(cfg.NewReducer()),
			internal.WithMultiTab(watchMultiTab || cfg.MultiTab),
			internal.WithUpdateHook(live.update),
		)

		internal.PrintInfo(fmt.Sprintf("Watching %s (Ctrl-C to stop)", args[0]))
		err = internal.PumpTurns(ctx, conv, rec.tee(ctx, tailer.Events()))
		stopped := errors.Is(err, context.Canceled)
		if err != nil && !stopped {
			return err
		}

		stats := tailer.Stats()
		internal.LogInfo("Read %d event(s), %d malformed line(s)", stats.Events, stats.Malformed)
		if stopped {
			live.final(conv.Snapshot())
		}

		if watchRecord {
			return recordEvents(rec.events(), watchTitle, args[0])
		}
		return nil
	},
}

// eventRecorder keeps a copy of every event passing through it
type eventRecorder struct {
	mu   sync.Mutex
	seen []internal.StreamEvent
}

func (r *eventRecorder) tee(ctx context.Context, in <-chan internal.StreamEvent) <-chan internal.StreamEvent {
	out := make(chan internal.StreamEvent)
	go func() {
		defer close(out)
		for ev := range in {
			r.mu.Lock()
			r.seen = append(r.seen, ev)
			r.mu.Unlock()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (r *eventRecorder) events() []internal.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]internal.StreamEvent(nil), r.seen...)
}

// recordEvents stores events as a new conversation. It runs after Ctrl-C, so it
// does not use the command context.
func recordEvents(events []internal.StreamEvent, title, path string) error {
	if len(events) == 0 {
		internal.PrintWarning("No events to record")
		return nil
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	rec, err := store.CreateConversation(ctx, titleFor(title, path))
	if err != nil {
		return err
	}
	if err := store.AppendEvents(ctx, rec.ID, events); err != nil {
		return err
	}
	internal.PrintSuccess(fmt.Sprintf("Recorded %d event(s) as %s", len(events), rec.ID))
	return nil
}

// liveView renders each turn once it settles
type liveView struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *view.Renderer
	status   internal.TransportStatus
	lastCode string
}

func (v *liveView) update(snap internal.ConversationSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.status
	v.status = snap.Status
	if prev != internal.StatusStreaming || snap.Status == internal.StatusStreaming {
		return
	}
	// a turn just ended: draw its last message and any new strategy
	if i := internal.LastAssistantIndex(snap.Messages); i >= 0 {
		msg := snap.Messages[i]
		v.renderer.RenderPlan(v.out, v.renderer.Registry().Plan(msg, false), msg)
	}
	if snap.Banner != nil {
		v.renderer.RenderBanner(v.out, snap.Banner)
	}
	if code := snap.State.LatestCode(); code != "" && code != v.lastCode {
		v.lastCode = code
		if snap.MultiTab {
			v.renderer.RenderArtifacts(v.out, snap.Artifacts)
		} else {
			v.renderer.RenderCode(v.out, code)
		}
	}
}

func (v *liveView) final(snap internal.ConversationSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "\nStopped with %d message(s), %d active tool call(s)\n", len(snap.Messages), snap.State.ActiveToolCount)
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchRecord, "record", false, "Store the watched events as a conversation on exit")
	watchCmd.Flags().StringVar(&watchTitle, "title", "", "Title for the recorded conversation")
	watchCmd.Flags().BoolVar(&watchMultiTab, "multi-tab", false, "Open a tab for every extracted strategy")
}
