package watch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/iksnae/analyst-stream/internal"
)

// Tailer follows a recorded stream file as it grows and emits decoded events.
// The file may not exist yet; its directory is watched so creation is noticed.
type Tailer struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	path    string
	poll    time.Duration
	events  chan internal.StreamEvent
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	offset  int64
	partial []byte
	line    int
	stats   Stats
}

// Stats tracks tailer activity
type Stats struct {
	Events     int
	Malformed  int
	Reads      int
	Truncated  int
	Done       bool
	LastRead   time.Time
	LastOffset int64
}

// NewTailer creates a tailer for path. poll is a fallback re-read interval for
// filesystems that drop notifications; zero disables it.
func NewTailer(path string, poll time.Duration) (*Tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	return &Tailer{
		watcher: watcher,
		path:    abs,
		poll:    poll,
		events:  make(chan internal.StreamEvent, 64),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Events returns the event channel; it is closed when the tailer stops or reads [DONE]
func (t *Tailer) Events() <-chan internal.StreamEvent {
	return t.events
}

// Stats returns a copy of the tailer counters
func (t *Tailer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Start begins following the file. It does not block.
func (t *Tailer) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.mu.Unlock()

	if err := t.watcher.Add(filepath.Dir(t.path)); err != nil {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		return err
	}
	internal.LogDebug("Tailer: watching %s", t.path)

	go t.run(ctx)
	return nil
}

// Stop stops the tailer and waits for its goroutine to exit
func (t *Tailer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopCh)
	<-t.doneCh

	if err := t.watcher.Close(); err != nil {
		internal.LogError("Tailer: error closing watcher: %v", err)
	}
}

// Done is closed when the run loop has exited
func (t *Tailer) Done() <-chan struct{} {
	return t.doneCh
}

func (t *Tailer) run(ctx context.Context) {
	defer close(t.doneCh)
	defer close(t.events)

	var tick <-chan time.Time
	if t.poll > 0 {
		ticker := time.NewTicker(t.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	// pick up whatever was written before Start
	if t.drain(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return

		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if t.drain(ctx) {
				return
			}

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			internal.LogWarn("Tailer error: %v", err)

		case <-tick:
			if t.drain(ctx) {
				return
			}
		}
	}
}

// drain reads newly appended complete lines and emits their events.
// It reports true when the stream is finished or the tailer must exit.
func (t *Tailer) drain(ctx context.Context) bool {
	data, err := t.readNew()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			internal.LogWarn("Tailer: read %s: %v", t.path, err)
		}
		return false
	}
	if len(data) == 0 {
		return false
	}

	buf := append(t.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := buf[:i]
		buf = buf[i+1:]
		t.line++

		ev, kind, err := internal.DecodeLine(line)
		switch kind {
		case internal.LineSkip:
			continue
		case internal.LineDone:
			t.mu.Lock()
			t.stats.Done = true
			t.mu.Unlock()
			return true
		}
		if err != nil {
			t.mu.Lock()
			t.stats.Malformed++
			t.mu.Unlock()
			internal.LogWarn("Skipping malformed event: %v", &internal.ParseError{Source: filepath.Base(t.path), Key: lineKey(t.line), Err: err})
			continue
		}

		select {
		case t.events <- ev:
			t.mu.Lock()
			t.stats.Events++
			t.mu.Unlock()
		case <-ctx.Done():
			return true
		case <-t.stopCh:
			return true
		}
	}
	t.partial = append([]byte(nil), buf...)
	return false
}

func (t *Tailer) readNew() ([]byte, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		// truncated or replaced: start over
		internal.LogInfo("Tailer: %s was truncated, rereading", t.path)
		t.offset = 0
		t.partial = nil
		t.mu.Lock()
		t.stats.Truncated++
		t.mu.Unlock()
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-t.offset))
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	t.mu.Lock()
	t.stats.Reads++
	t.stats.LastRead = time.Now()
	t.stats.LastOffset = t.offset
	t.mu.Unlock()
	return data, nil
}

func lineKey(n int) string {
	return "line " + strconv.Itoa(n)
}
