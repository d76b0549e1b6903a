// Package autosave buffers in-progress drafts in memory and periodically
// flushes the ones that changed to persistent storage.
package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultInterval is the flush period when none is configured.
const DefaultInterval = 30 * time.Second

// Entry is one buffered draft.
type Entry struct {
	Key       string
	OwnerID   string
	Step      int
	Payload   json.RawMessage
	UpdatedAt time.Time
	version   uint64
}

// Empty reports whether the payload carries no content worth saving.
func (e Entry) Empty() bool {
	trimmed := bytes.TrimSpace(e.Payload)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}

// Buffer holds the latest version of each draft and tracks which ones have
// changed since the last flush.
type Buffer struct {
	mu      sync.Mutex
	entries map[string]Entry
	dirty   map[string]uint64
	seq     uint64
}

func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[string]Entry), dirty: make(map[string]uint64)}
}

// Put replaces the buffered entry for e.Key and marks it dirty.
func (b *Buffer) Put(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	e.version = b.seq
	e.Payload = append(json.RawMessage(nil), e.Payload...)
	b.entries[e.Key] = e
	b.dirty[e.Key] = e.version
}

// Get returns the buffered entry for key.
func (b *Buffer) Get(key string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	return e, ok
}

// Discard drops key from the buffer, for example after the draft is submitted.
func (b *Buffer) Discard(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	delete(b.dirty, key)
}

// Len reports the number of buffered entries, clean or dirty.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dirty reports the number of entries waiting to be flushed.
func (b *Buffer) Dirty() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirty)
}

func (b *Buffer) pending() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.dirty))
	for key := range b.dirty {
		out = append(out, b.entries[key])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out
}

// release drops e from the buffer unless the entry changed after e was taken.
// Once flushed, reads fall back to the stored copy.
func (b *Buffer) release(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty[e.Key] == e.version {
		delete(b.dirty, e.Key)
		delete(b.entries, e.Key)
	}
}

// SaveFunc persists a single entry.
type SaveFunc func(ctx context.Context, e Entry) error

// Flusher periodically writes dirty, non-empty entries through save.
type Flusher struct {
	buffer   *Buffer
	save     SaveFunc
	interval time.Duration
	logger   *slog.Logger
}

func NewFlusher(buffer *Buffer, save SaveFunc, interval time.Duration, logger *slog.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{buffer: buffer, save: save, interval: interval, logger: logger.With("component", "autosave")}
}

// Flush writes every dirty entry once and evicts it. Empty entries are evicted
// without being written. Failed entries stay dirty for the next round.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	if f == nil || f.buffer == nil || f.save == nil {
		return 0, errors.New("autosave flusher not configured")
	}

	saved := 0
	var errs []error
	for _, e := range f.buffer.pending() {
		if e.Empty() {
			f.buffer.release(e)
			continue
		}
		if err := f.save(ctx, e); err != nil {
			errs = append(errs, err)
			f.logger.WarnContext(ctx, "draft autosave failed", "draft_id", e.Key, "owner_id", e.OwnerID, "error", err)
			continue
		}
		f.buffer.release(e)
		saved++
	}
	return saved, errors.Join(errs...)
}

// Run flushes every interval until ctx is cancelled, then flushes once more
// using a fresh context bounded by finalTimeout.
func (f *Flusher) Run(ctx context.Context, finalTimeout time.Duration) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), finalTimeout)
			n, err := f.Flush(finalCtx)
			cancel()
			if err != nil {
				f.logger.Error("final draft flush failed", "error", err, "saved", n)
				return
			}
			f.logger.Info("final draft flush completed", "saved", n)
			return
		case <-ticker.C:
			if n, _ := f.Flush(ctx); n > 0 {
				f.logger.DebugContext(ctx, "drafts autosaved", "saved", n)
			}
		}
	}
}
