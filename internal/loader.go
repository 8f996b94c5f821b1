package internal

import (
	"context"
	"errors"
)

// TranscriptLoader serves transcripts from the cache, replaying from the store on a miss
type TranscriptLoader struct {
	store    *EventStore
	cache    *CacheManager
	replayer *Replayer
	workers  int
}

// NewTranscriptLoader creates a loader; cache may be nil to always replay
func NewTranscriptLoader(store *EventStore, cache *CacheManager, reducer *Reducer, workers int) *TranscriptLoader {
	return &TranscriptLoader{
		store:    store,
		cache:    cache,
		replayer: NewReplayer(store, reducer),
		workers:  workers,
	}
}

// Replayer returns the loader's replayer
func (l *TranscriptLoader) Replayer() *Replayer {
	return l.replayer
}

// LoadAll returns every replayable conversation
func (l *TranscriptLoader) LoadAll(ctx context.Context) ([]*Transcript, error) {
	rev := l.revision(ctx)
	if rev != "" {
		if valid, _ := l.cache.IsCacheValid(l.store.Path(), rev); valid {
			transcripts, err := l.cache.LoadAllTranscripts()
			if err == nil {
				LogDebug("Loaded %d transcript(s) from cache", len(transcripts))
				return transcripts, nil
			}
			LogWarn("Failed to load cache: %v, replaying...", err)
		}
	}

	records, err := l.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	transcripts, err := l.replayer.ReplayAll(ctx, records, l.workers)
	if err != nil {
		return nil, err
	}

	if rev != "" {
		if err := l.cache.SaveTranscripts(transcripts, l.store.Path(), rev); err != nil {
			LogWarn("Failed to update cache: %v", err)
		}
	}
	return transcripts, nil
}

// Load returns one conversation by id or unique id prefix
func (l *TranscriptLoader) Load(ctx context.Context, idOrPrefix string) (*Transcript, error) {
	rec, err := l.store.FindConversation(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	if rev := l.revision(ctx); rev != "" {
		if valid, _ := l.cache.IsCacheValid(l.store.Path(), rev); valid {
			if t, err := l.cache.LoadTranscript(rec.ID); err == nil {
				return t, nil
			}
		}
	}

	res, err := l.replayer.Replay(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	t, err := NewNormalizer().NormalizeReplay(*rec, res)
	if err != nil {
		return nil, &ReplayError{ConversationID: rec.ID, Err: err}
	}
	return t, nil
}

// revision returns the store revision, or "" when the cache is disabled or the
// revision cannot be read
func (l *TranscriptLoader) revision(ctx context.Context) string {
	if l.cache == nil {
		return ""
	}
	rev, err := l.store.Revision(ctx)
	if err != nil {
		LogWarn("Skipping cache: %v", err)
		return ""
	}
	return rev
}

// IsNotFound reports whether err means the conversation does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound)
}
