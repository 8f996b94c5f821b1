package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConversationRecord is a stored conversation header
type ConversationRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	CreatedAt  time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"updated_at"`
	EventCount int       `json:"eventCount" yaml:"event_count"`
}

// EventStore persists conversations and their recorded stream events
type EventStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewEventStore wraps an already migrated database
func NewEventStore(db *sql.DB, path string) *EventStore {
	return &EventStore{db: db, path: path, now: time.Now}
}

// OpenEventStore opens the database at path and applies migrations
func OpenEventStore(path string) (*EventStore, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "migrate", Err: err}
	}
	return NewEventStore(db, path), nil
}

// Close closes the database
func (s *EventStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *EventStore) Path() string {
	return s.path
}

// DB exposes the underlying handle for diagnostics
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// NewConversationID generates a sortable conversation id
func NewConversationID() string {
	return ulid.Make().String()
}

func (s *EventStore) wrap(op string, err error) error {
	return &StorageError{Path: s.path, Op: op, Err: err}
}

// CreateConversation inserts an empty conversation
func (s *EventStore) CreateConversation(ctx context.Context, title string) (*ConversationRecord, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	rec := &ConversationRecord{
		ID:        NewConversationID(),
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		rec.ID, rec.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, s.wrap("exec", fmt.Errorf("insert conversation: %w", err))
	}
	return rec, nil
}

const conversationColumns = `c.id, c.title, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM stream_events e WHERE e.conversation_id = c.id)`

type scanFunc func(dest ...any) error

func scanConversation(scan scanFunc) (ConversationRecord, error) {
	var rec ConversationRecord
	var created, updated int64
	if err := scan(&rec.ID, &rec.Title, &created, &updated, &rec.EventCount); err != nil {
		return ConversationRecord{}, err
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, nil
}

// GetConversation loads one conversation header
func (s *EventStore) GetConversation(ctx context.Context, id string) (*ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations c WHERE c.id = ?", id)
	rec, err := scanConversation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, s.wrap("query", err)
	}
	return &rec, nil
}

// ListConversations returns all conversations, most recently updated first
func (s *EventStore) ListConversations(ctx context.Context) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+conversationColumns+" FROM conversations c ORDER BY c.updated_at DESC, c.id DESC")
	if err != nil {
		return nil, s.wrap("query", err)
	}
	defer rows.Close()

	var out []ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, s.wrap("query", fmt.Errorf("scan failed: %w", err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("query", err)
	}
	return out, nil
}

// FindConversation resolves a full id or a unique id prefix
func (s *EventStore) FindConversation(ctx context.Context, idOrPrefix string) (*ConversationRecord, error) {
	if rec, err := s.GetConversation(ctx, idOrPrefix); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	all, err := s.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	var match *ConversationRecord
	for i := range all {
		if strings.HasPrefix(strings.ToUpper(all[i].ID), strings.ToUpper(idOrPrefix)) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous conversation id prefix %q", idOrPrefix)
			}
			match = &all[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, idOrPrefix)
	}
	return match, nil
}

// RenameConversation changes a conversation title
func (s *EventStore) RenameConversation(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		strings.TrimSpace(title), s.now().UTC().UnixMilli(), id)
	if err != nil {
		return s.wrap("exec", err)
	}
	return expectOneRow(res, id)
}

// DeleteConversation removes a conversation and its events
func (s *EventStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return s.wrap("exec", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return nil
}

// AppendEvents stores events after the conversation's existing ones
func (s *EventStore) AppendEvents(ctx context.Context, id string, events []StreamEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("exec", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE id = ?", id).Scan(&exists); err != nil {
		return s.wrap("query", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM stream_events WHERE conversation_id = ?", id).Scan(&seq); err != nil {
		return s.wrap("query", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO stream_events (conversation_id, seq, type, payload, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return s.wrap("exec", err)
	}
	defer stmt.Close()

	now := s.now().UTC().UnixMilli()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return s.wrap("exec", fmt.Errorf("encode event: %w", err))
		}
		seq++
		if _, err := stmt.ExecContext(ctx, id, seq, string(ev.Type), string(payload), now); err != nil {
			return s.wrap("exec", fmt.Errorf("insert event %d: %w", seq, err))
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, id); err != nil {
		return s.wrap("exec", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("exec", err)
	}
	return nil
}

// LoadEvents returns a conversation's events in recorded order.
// Payloads that no longer decode are logged and skipped.
func (s *EventStore) LoadEvents(ctx context.Context, id string) ([]StreamEvent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT seq, payload FROM stream_events WHERE conversation_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, s.wrap("query", err)
	}
	defer rows.Close()

	var events []StreamEvent
	for rows.Next() {
		var seq int64
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, s.wrap("query", fmt.Errorf("scan failed: %w", err))
		}
		ev, err := ParseStreamEvent([]byte(payload))
		if err != nil {
			LogWarn("Skipping stored event: %v", &ParseError{Source: "store", Key: fmt.Sprintf("%s/%d", id, seq), Err: err})
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("query", err)
	}
	return events, nil
}

// Revision summarizes the store contents. It changes whenever a conversation
// is created, renamed, deleted or appended to.
func (s *EventStore) Revision(ctx context.Context) (string, error) {
	var conversations, events, updated int64
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM conversations),
		(SELECT COALESCE(MAX(updated_at), 0) FROM conversations),
		(SELECT COUNT(*) FROM stream_events)`).Scan(&conversations, &updated, &events)
	if err != nil {
		return "", s.wrap("query", err)
	}
	return fmt.Sprintf("%d-%d-%d", conversations, updated, events), nil
}

// EventTypeCounts tallies stored events by type
func (s *EventStore) EventTypeCounts(ctx context.Context, id string) (map[EventType]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM stream_events WHERE conversation_id = ? GROUP BY type", id)
	if err != nil {
		return nil, s.wrap("query", err)
	}
	defer rows.Close()

	counts := make(map[EventType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, s.wrap("query", err)
		}
		counts[EventType(t)] = n
	}
	return counts, rows.Err()
}
