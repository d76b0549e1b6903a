package checkin

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestApply(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	earlier := now.Add(-15 * time.Minute)

	tests := []struct {
		name       string
		in         Record
		wantKind   Kind
		wantStatus Status
		wantTime   *time.Time
	}{
		{
			name:       "pending becomes checked in",
			in:         Record{ID: "a1", Name: "Ada", Status: StatusPending},
			wantKind:   KindSuccess,
			wantStatus: StatusCheckedIn,
			wantTime:   &now,
		},
		{
			name:       "checked in is a duplicate",
			in:         Record{ID: "a1", Name: "Ada", Status: StatusCheckedIn, CheckInTime: &earlier},
			wantKind:   KindDuplicate,
			wantStatus: StatusCheckedIn,
			wantTime:   &earlier,
		},
		{
			name:       "no-show is rejected",
			in:         Record{ID: "a1", Name: "Ada", Status: StatusNoShow},
			wantKind:   KindRejected,
			wantStatus: StatusNoShow,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, outcome := Apply(tc.in, now)
			if outcome.Kind != tc.wantKind {
				t.Fatalf("expected kind %s, got %s", tc.wantKind, outcome.Kind)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, got.Status)
			}
			switch {
			case tc.wantTime == nil && got.CheckInTime != nil:
				t.Fatalf("expected no check-in time, got %v", got.CheckInTime)
			case tc.wantTime != nil && (got.CheckInTime == nil || !got.CheckInTime.Equal(*tc.wantTime)):
				t.Fatalf("expected check-in time %v, got %v", tc.wantTime, got.CheckInTime)
			}
			if outcome.Attendee == nil || outcome.Attendee.ID != tc.in.ID {
				t.Fatalf("expected outcome to carry the attendee, got %+v", outcome.Attendee)
			}
			if outcome.Title == "" || outcome.Message == "" {
				t.Fatalf("expected title and message, got %+v", outcome)
			}
		})
	}
}

func TestApplyTwiceYieldsDuplicate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	first, outcome := Apply(Record{ID: "a1", Status: StatusPending}, now)
	if outcome.Kind != KindSuccess {
		t.Fatalf("first scan: expected success, got %s", outcome.Kind)
	}

	second, outcome := Apply(first, now.Add(time.Minute))
	if outcome.Kind != KindDuplicate {
		t.Fatalf("second scan: expected duplicate, got %s", outcome.Kind)
	}
	if !second.CheckInTime.Equal(now) {
		t.Fatalf("duplicate scan must keep the original time, got %v", second.CheckInTime)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"pending":    StatusPending,
		"Registered": StatusPending,
		"checked-in": StatusCheckedIn,
		"no_show":    StatusNoShow,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStatus("cancelled"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestMatchAndResolve(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "att-001", Name: "Grace Hopper", Email: "grace@navy.example"},
		{ID: "att-002", Name: "Alan Turing", Email: "alan@bletchley.example"},
		{ID: "att-003", Name: "Alan Kay", Email: "kay@parc.example"},
	}

	if got := Match(records, "GRACE"); len(got) != 1 || got[0].ID != "att-001" {
		t.Fatalf("expected grace by name, got %+v", got)
	}
	if got := Match(records, "parc"); len(got) != 1 || got[0].ID != "att-003" {
		t.Fatalf("expected kay by email, got %+v", got)
	}
	if got := Match(records, "att-00"); len(got) != 3 {
		t.Fatalf("expected all by id prefix, got %d", len(got))
	}
	if got := Match(records, "   "); got != nil {
		t.Fatalf("expected no matches for blank query, got %+v", got)
	}

	if _, n, ok := Resolve(records, "alan"); ok || n != 2 {
		t.Fatalf("expected ambiguous alan, got ok=%v n=%d", ok, n)
	}
	rec, _, ok := Resolve(records, "alan@bletchley.example")
	if !ok || rec.ID != "att-002" {
		t.Fatalf("expected exact email to resolve, got %+v ok=%v", rec, ok)
	}
	if _, n, ok := Resolve(records, "nobody"); ok || n != 0 {
		t.Fatalf("expected no match, got ok=%v n=%d", ok, n)
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	c := Count([]Record{
		{Status: StatusPending},
		{Status: StatusCheckedIn},
		{Status: StatusCheckedIn},
		{Status: StatusNoShow},
	})
	want := Counters{Total: 4, CheckedIn: 2, NoShow: 1, Remaining: 1}
	if c != want {
		t.Fatalf("expected %+v, got %+v", want, c)
	}
}

func TestActivityLogKeepsNewestFirstWithinCapacity(t *testing.T) {
	t.Parallel()

	log := NewActivityLog(3)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		log.Record(Outcome{Kind: KindSuccess, Message: fmt.Sprintf("m%d", i), At: base.Add(time.Duration(i) * time.Minute)})
	}

	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"m4", "m3", "m2"} {
		if entries[i].Message != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, entries[i].Message)
		}
	}
}

func TestActivityLogSkipsInvalid(t *testing.T) {
	t.Parallel()

	log := NewActivityLog(0)
	if log.Record(Invalid("bogus", time.Now())) {
		t.Fatalf("invalid outcome should not be recorded")
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log, got %d", log.Len())
	}
	log.Record(Outcome{Kind: KindRejected})
	if log.Len() != 1 {
		t.Fatalf("expected rejected outcome to be recorded")
	}
}

func TestActivityLogConcurrentRecord(t *testing.T) {
	t.Parallel()

	log := NewActivityLog(DefaultActivityCapacity)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Record(Outcome{Kind: KindSuccess})
		}()
	}
	wg.Wait()

	if log.Len() != DefaultActivityCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultActivityCapacity, log.Len())
	}
}
