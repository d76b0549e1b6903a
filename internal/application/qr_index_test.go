package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/eventflow/internal/persistence"
)

type countingAttendees struct {
	*memoryStore
	byCode int
}

func (c *countingAttendees) GetAttendeeByQRCode(ctx context.Context, code string) (persistence.Attendee, error) {
	c.byCode++
	return c.memoryStore.GetAttendeeByQRCode(ctx, code)
}

func TestQRIndex_Lookup(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedEvent(store, "e1", "published", 10, testNow.Add(time.Hour))
	seedEvent(store, "e2", "published", 10, testNow.Add(time.Hour))
	seedAttendee(store, "a1", "e1", "Ann", "pending")
	repo := &countingAttendees{memoryStore: store}

	index, err := NewQRIndex(repo, 4)
	if err != nil {
		t.Fatalf("NewQRIndex failed: %v", err)
	}
	ctx := context.Background()

	attendee, err := index.Lookup(ctx, "e1", " qr-a1 ")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if attendee.ID != "a1" || repo.byCode != 1 {
		t.Fatalf("unexpected lookup %#v after %d store reads", attendee, repo.byCode)
	}

	if _, err := index.Lookup(ctx, "e1", "qr-a1"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if repo.byCode != 1 {
		t.Fatalf("expected the second lookup to be served from the cache")
	}

	if _, err := index.Lookup(ctx, "e2", "qr-a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected codes to be scoped to their event, got %v", err)
	}
	if _, err := index.Lookup(ctx, "e1", "  "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a blank code, got %v", err)
	}

	store.mu.Lock()
	delete(store.attendees, "a1")
	store.mu.Unlock()
	if _, err := index.Lookup(ctx, "e1", "qr-a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound once the attendee is gone, got %v", err)
	}
	if index.Len() != 0 {
		t.Fatalf("expected the stale code to be evicted, got %d cached", index.Len())
	}
}

func TestQRIndex_Bounded(t *testing.T) {
	t.Parallel()

	index, err := NewQRIndex(newMemoryStore(), 2)
	if err != nil {
		t.Fatalf("NewQRIndex failed: %v", err)
	}
	index.Remember("c1", "e1", "a1")
	index.Remember("c2", "e1", "a2")
	index.Remember("c3", "e1", "a3")
	if index.Len() != 2 {
		t.Fatalf("expected the index to stay at its size, got %d", index.Len())
	}
	index.Forget("c3")
	index.Remember("", "e1", "a4")
	if index.Len() != 1 {
		t.Fatalf("expected forget to drop the code and blank codes to be ignored, got %d", index.Len())
	}

	var nilIndex *QRIndex
	if nilIndex.Len() != 0 {
		t.Fatalf("expected a nil index to be empty")
	}
}
