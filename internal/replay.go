package internal

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ReplayResult is the outcome of folding a recorded stream
type ReplayResult struct {
	Messages   []Message
	State      DerivedState
	Artifacts  ArtifactCollection
	Status     StreamStatus
	ErrorText  string
	EventCount int
	Snapshots  int
}

// EventLoader loads recorded events for a conversation
type EventLoader interface {
	LoadEvents(ctx context.Context, id string) ([]StreamEvent, error)
}

// Replayer rebuilds conversations from recorded events
type Replayer struct {
	loader  EventLoader
	reducer *Reducer
}

// NewReplayer creates a Replayer; a nil reducer uses the defaults
func NewReplayer(loader EventLoader, reducer *Reducer) *Replayer {
	if reducer == nil {
		reducer = defaultReducer
	}
	return &Replayer{loader: loader, reducer: reducer}
}

// ReplayEvents folds events through an assembler, deriving state after every
// snapshot the way a live view would, and collects each new artifact as a tab.
func (r *Replayer) ReplayEvents(events []StreamEvent) *ReplayResult {
	asm := NewStreamAssembler(nil)
	res := &ReplayResult{EventCount: len(events)}

	for _, ev := range events {
		msgs, changed := asm.Apply(ev)
		if !changed {
			continue
		}
		res.Snapshots++
		next, isNew := r.reducer.Derive(msgs, res.State)
		res.State = next
		if isNew && next.Artifact != nil {
			a := next.Artifact
			res.Artifacts, _ = res.Artifacts.Add(a.Code, ArtifactMeta{Source: a.Source, MessageID: a.MessageID, ToolName: a.ToolName})
		}
	}

	res.Messages = asm.Messages()
	res.Status = asm.Status()
	res.ErrorText = asm.ErrorText()
	return res
}

// Replay loads and folds one conversation
func (r *Replayer) Replay(ctx context.Context, id string) (*ReplayResult, error) {
	events, err := r.loader.LoadEvents(ctx, id)
	if err != nil {
		return nil, &ReplayError{ConversationID: id, Err: err}
	}
	if len(events) == 0 {
		return nil, &ReplayError{ConversationID: id, Err: fmt.Errorf("no recorded events")}
	}
	return r.ReplayEvents(events), nil
}

// ReplayAll replays conversations concurrently. Conversations that fail are
// logged and skipped; only context cancellation aborts the batch.
func (r *Replayer) ReplayAll(ctx context.Context, records []ConversationRecord, workers int) ([]*Transcript, error) {
	if workers <= 0 {
		workers = 4
	}
	normalizer := NewNormalizer()
	out := make([]*Transcript, len(records))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Replay(gctx, rec.ID)
			if err != nil {
				LogWarn("Failed to replay %s: %v", rec.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			t, err := normalizer.NormalizeReplay(rec, res)
			if err != nil {
				LogDebug("Skipping %s: %v", rec.ID, err)
				return nil
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	transcripts := make([]*Transcript, 0, len(out))
	for _, t := range out {
		if t != nil {
			transcripts = append(transcripts, t)
		}
	}
	if failed > 0 {
		LogInfo("Replayed %d conversations, %d failed", len(transcripts), failed)
	}
	return transcripts, nil
}
