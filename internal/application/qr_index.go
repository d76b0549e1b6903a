package application

import (
	"context"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/eventflow/internal/persistence"
)

// DefaultQRCacheSize bounds the ticket code index when no size is configured.
const DefaultQRCacheSize = 1024

type qrTarget struct {
	eventID    string
	attendeeID string
}

// QRIndex maps ticket codes to attendees. Hits are served from a bounded LRU
// and misses fall through to the attendee store.
type QRIndex struct {
	cache     *lru.Cache[string, qrTarget]
	attendees persistence.AttendeeRepository
}

// NewQRIndex builds an index holding at most size codes.
func NewQRIndex(attendees persistence.AttendeeRepository, size int) (*QRIndex, error) {
	if size <= 0 {
		size = DefaultQRCacheSize
	}
	cache, err := lru.New[string, qrTarget](size)
	if err != nil {
		return nil, err
	}
	return &QRIndex{cache: cache, attendees: attendees}, nil
}

// Remember records the owner of a code.
func (x *QRIndex) Remember(code, eventID, attendeeID string) {
	if x == nil || code == "" {
		return
	}
	x.cache.Add(code, qrTarget{eventID: eventID, attendeeID: attendeeID})
}

// Forget drops a code, used when its attendee disappears.
func (x *QRIndex) Forget(code string) {
	if x == nil {
		return
	}
	x.cache.Remove(code)
}

// Len reports the number of cached codes.
func (x *QRIndex) Len() int {
	if x == nil {
		return 0
	}
	return x.cache.Len()
}

// Lookup returns the attendee holding code within eventID. A code issued for
// a different event is reported as ErrNotFound.
func (x *QRIndex) Lookup(ctx context.Context, eventID, code string) (Attendee, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Attendee{}, ErrNotFound
	}
	if x == nil || x.attendees == nil {
		return Attendee{}, errors.New("qr index not configured")
	}

	if target, ok := x.cache.Get(code); ok {
		if target.eventID != eventID {
			return Attendee{}, ErrNotFound
		}
		rec, err := x.attendees.GetAttendee(ctx, target.attendeeID)
		if err == nil {
			return attendeeFromRecord(rec), nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return Attendee{}, mapRepoError(err)
		}
		x.cache.Remove(code)
	}

	rec, err := x.attendees.GetAttendeeByQRCode(ctx, code)
	if err != nil {
		return Attendee{}, mapRepoError(err)
	}
	x.Remember(code, rec.EventID, rec.ID)
	if rec.EventID != eventID {
		return Attendee{}, ErrNotFound
	}
	return attendeeFromRecord(rec), nil
}
