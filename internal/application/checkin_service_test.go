package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/checkin"
)

type checkInFixture struct {
	store *memoryStore
	pub   *publisherStub
	svc   *CheckInService
}

func newCheckInFixture(t *testing.T) checkInFixture {
	t.Helper()

	store := newMemoryStore()
	codes, err := NewQRIndex(store, 16)
	if err != nil {
		t.Fatalf("NewQRIndex failed: %v", err)
	}
	seedEvent(store, "e1", "published", 100, testNow.Add(time.Hour))
	seedEvent(store, "e2", "published", 100, testNow.Add(time.Hour))
	seedAttendee(store, "a1", "e1", "Ann Lee", "pending")
	seedAttendee(store, "a2", "e1", "Anna Berg", "pending")
	seedAttendee(store, "a3", "e1", "Cat Moss", "no-show")
	seedAttendee(store, "b1", "e2", "Dan Ortiz", "pending")

	pub := &publisherStub{}
	svc := NewCheckInService(store, store, codes, pub, 5, fixedClock(testNow))
	return checkInFixture{store: store, pub: pub, svc: svc}
}

func TestCheckInService_ProcessScan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	usher := principalFor("s1", access.RoleUsher)

	t.Run("first scan succeeds and the second is a duplicate", func(t *testing.T) {
		t.Parallel()

		f := newCheckInFixture(t)
		result, err := f.svc.ProcessScan(ctx, usher, "e1", "qr-a1")
		if err != nil {
			t.Fatalf("ProcessScan failed: %v", err)
		}
		if result.Outcome.Kind != checkin.KindSuccess {
			t.Fatalf("expected success, got %#v", result.Outcome)
		}
		if result.Counters.CheckedIn != 1 || result.Counters.Remaining != 1 || result.Counters.NoShow != 1 {
			t.Fatalf("unexpected counters %#v", result.Counters)
		}
		stored := f.store.attendees["a1"]
		if stored.CheckInStatus != "checked-in" || stored.CheckInTime == nil || !stored.CheckInTime.Equal(testNow) || stored.CheckedInBy != "s1" {
			t.Fatalf("expected check-in to be persisted, got %#v", stored)
		}

		result, err = f.svc.ProcessScan(ctx, usher, "e1", " qr-a1 ")
		if err != nil {
			t.Fatalf("ProcessScan failed: %v", err)
		}
		if result.Outcome.Kind != checkin.KindDuplicate {
			t.Fatalf("expected duplicate, got %#v", result.Outcome)
		}
		if result.Counters.CheckedIn != 1 {
			t.Fatalf("expected counters to be unchanged, got %#v", result.Counters)
		}

		activity, err := f.svc.RecentActivity(ctx, usher, "e1")
		if err != nil {
			t.Fatalf("RecentActivity failed: %v", err)
		}
		if len(activity) != 2 || activity[0].Kind != checkin.KindDuplicate || activity[1].Kind != checkin.KindSuccess {
			t.Fatalf("expected newest first activity, got %#v", activity)
		}
	})

	t.Run("unknown and foreign codes are invalid and not logged", func(t *testing.T) {
		t.Parallel()

		f := newCheckInFixture(t)
		for _, code := range []string{"nope", "qr-b1", ""} {
			result, err := f.svc.ProcessScan(ctx, usher, "e1", code)
			if err != nil {
				t.Fatalf("ProcessScan(%q) failed: %v", code, err)
			}
			if result.Outcome.Kind != checkin.KindInvalid {
				t.Fatalf("ProcessScan(%q) = %s, want invalid", code, result.Outcome.Kind)
			}
		}
		if f.store.attendees["b1"].CheckInStatus != "pending" {
			t.Fatalf("expected a code from another event to change nothing")
		}
		activity, err := f.svc.RecentActivity(ctx, usher, "e1")
		if err != nil {
			t.Fatalf("RecentActivity failed: %v", err)
		}
		if len(activity) != 0 {
			t.Fatalf("expected invalid scans to stay out of the log, got %#v", activity)
		}
	})

	t.Run("no-shows are rejected", func(t *testing.T) {
		t.Parallel()

		f := newCheckInFixture(t)
		result, err := f.svc.ProcessScan(ctx, usher, "e1", "qr-a3")
		if err != nil {
			t.Fatalf("ProcessScan failed: %v", err)
		}
		if result.Outcome.Kind != checkin.KindRejected {
			t.Fatalf("expected rejected, got %#v", result.Outcome)
		}
		if f.store.attendees["a3"].CheckInStatus != "no-show" {
			t.Fatalf("expected no-show to stay in place")
		}
	})

	t.Run("a scan that loses the race reports a duplicate", func(t *testing.T) {
		t.Parallel()

		f := newCheckInFixture(t)
		f.store.beforeCheckIn = func(id string) {
			f.store.beforeCheckIn = nil
			if err := f.store.MarkCheckedIn(ctx, id, testNow.Add(-time.Second), "s2"); err != nil {
				t.Errorf("competing check-in failed: %v", err)
			}
		}

		result, err := f.svc.ProcessScan(ctx, usher, "e1", "qr-a1")
		if err != nil {
			t.Fatalf("ProcessScan failed: %v", err)
		}
		if result.Outcome.Kind != checkin.KindDuplicate {
			t.Fatalf("expected duplicate after losing the race, got %#v", result.Outcome)
		}
		if f.store.attendees["a1"].CheckedInBy != "s2" {
			t.Fatalf("expected the winning door to keep the check-in")
		}
	})

	t.Run("requires check-in permission and a published event", func(t *testing.T) {
		t.Parallel()

		f := newCheckInFixture(t)
		seedEvent(f.store, "draft", "draft", 10, testNow.Add(time.Hour))

		if _, err := f.svc.ProcessScan(ctx, principalFor("u1", access.RoleAttendee), "e1", "qr-a1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := f.svc.ProcessScan(ctx, usher, "draft", "qr-a1"); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if _, err := f.svc.ProcessScan(ctx, usher, "missing", "qr-a1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCheckInService_ManualCheckIn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	usher := principalFor("s1", access.RoleUsher)

	cases := []struct {
		name  string
		query string
		want  checkin.Kind
		id    string
	}{
		{"unique name", "berg", checkin.KindSuccess, "a2"},
		{"exact email wins", "a1@example.com", checkin.KindSuccess, "a1"},
		{"ambiguous name", "ann", checkin.KindInvalid, ""},
		{"no match", "zed", checkin.KindInvalid, ""},
		{"other event", "dan", checkin.KindInvalid, ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newCheckInFixture(t)
			result, err := f.svc.ManualCheckIn(ctx, usher, "e1", tc.query)
			if err != nil {
				t.Fatalf("ManualCheckIn failed: %v", err)
			}
			if result.Outcome.Kind != tc.want {
				t.Fatalf("ManualCheckIn(%q) = %s, want %s", tc.query, result.Outcome.Kind, tc.want)
			}
			if tc.id != "" && f.store.attendees[tc.id].CheckInStatus != "checked-in" {
				t.Fatalf("expected %s to be checked in", tc.id)
			}
			if tc.id == "" && result.Counters.CheckedIn != 0 {
				t.Fatalf("expected nothing to change, got %#v", result.Counters)
			}
		})
	}
}

func TestCheckInService_MarkNoShowsAndCounters(t *testing.T) {
	t.Parallel()

	f := newCheckInFixture(t)
	ctx := context.Background()
	manager := principalFor("m1", access.RoleManager)

	if _, err := f.svc.MarkNoShows(ctx, principalFor("s1", access.RoleUsher), "e1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ushers not to mark no-shows, got %v", err)
	}

	if _, err := f.svc.ProcessScan(ctx, manager, "e1", "qr-a1"); err != nil {
		t.Fatalf("ProcessScan failed: %v", err)
	}
	marked, err := f.svc.MarkNoShows(ctx, manager, "e1")
	if err != nil {
		t.Fatalf("MarkNoShows failed: %v", err)
	}
	if marked != 1 {
		t.Fatalf("expected only the pending attendee to be marked, got %d", marked)
	}

	counters, err := f.svc.Counters(ctx, manager, "e1")
	if err != nil {
		t.Fatalf("Counters failed: %v", err)
	}
	want := checkin.Counters{Total: 3, CheckedIn: 1, NoShow: 2, Remaining: 0}
	if counters != want {
		t.Fatalf("Counters = %#v, want %#v", counters, want)
	}
	if f.store.attendees["b1"].CheckInStatus != "pending" {
		t.Fatalf("expected other events to be untouched")
	}

	types := f.pub.types()
	if len(types) != 2 || types[0] != "checkin.success" || types[1] != "checkin.no_shows" {
		t.Fatalf("unexpected published messages %v", types)
	}

	if _, err := f.svc.Counters(ctx, principalFor("u1", access.RoleAttendee), "e1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
