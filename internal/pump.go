package internal

import (
	"context"
	"errors"
)

// Pump feeds events into conv under token until the stream ends.
// A cancelled context stops the request and leaves the list as it is.
// A closed channel without a terminal event counts as a finished stream.
func Pump(ctx context.Context, conv *Conversation, token GenerationToken, events <-chan StreamEvent) error {
	_, err := pumpTurn(ctx, conv, token, events)
	return err
}

// pumpTurn reports closed when the channel ran dry rather than hitting a terminal event
func pumpTurn(ctx context.Context, conv *Conversation, token GenerationToken, events <-chan StreamEvent) (closed bool, err error) {
	asm := NewStreamAssembler(conv.Messages())

	for {
		select {
		case <-ctx.Done():
			if err := conv.Stop(token); err != nil && !errors.Is(err, ErrStaleGeneration) {
				return false, err
			}
			return false, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return true, ignoreStale(conv.Finish(token))
			}

			msgs, changed := asm.Apply(ev)
			if changed {
				err := conv.Apply(token, msgs)
				if errors.Is(err, ErrStaleGeneration) {
					LogDebug("Stream for %s superseded, dropping remaining events", token)
					return false, err
				}
				if err != nil {
					LogWarn("Skipping event %s: %v", describeEvent(ev), err)
				}
			}

			switch ev.Canonical().Type {
			case EventFinish:
				return false, ignoreStale(conv.Finish(token))
			case EventAbort:
				return false, ignoreStale(conv.Stop(token))
			case EventError:
				return false, ignoreStale(conv.Fail(token, &TransportError{Message: asm.ErrorText(), Retryable: true}))
			}
		}
	}
}

// PumpTurns feeds a multi-turn recording into conv, issuing a fresh token
// for every turn, until the channel closes or ctx is cancelled.
func PumpTurns(ctx context.Context, conv *Conversation, events <-chan StreamEvent) error {
	for {
		req := conv.Begin()
		closed, err := pumpTurn(ctx, conv, req.Token, events)
		if err != nil || closed {
			return err
		}
	}
}

// PumpEvents replays a recorded slice through Pump
func PumpEvents(ctx context.Context, conv *Conversation, token GenerationToken, events []StreamEvent) error {
	feedCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return Pump(ctx, conv, token, feed(feedCtx, events))
}

// feed sends events on a channel that closes after the last one or when ctx ends
func feed(ctx context.Context, events []StreamEvent) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// SplitTurns cuts a recording into turns, each ending at a terminal event.
// Trailing events without a terminal event form a final open turn.
func SplitTurns(events []StreamEvent) [][]StreamEvent {
	var turns [][]StreamEvent
	start := 0
	for i, ev := range events {
		if IsTerminalEvent(ev.Canonical().Type) {
			turns = append(turns, events[start:i+1])
			start = i + 1
		}
	}
	if start < len(events) {
		turns = append(turns, events[start:])
	}
	return turns
}

func ignoreStale(err error) error {
	if errors.Is(err, ErrStaleGeneration) {
		return nil
	}
	return err
}
