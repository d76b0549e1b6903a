package listview

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type row struct {
	id       string
	title    string
	status   string
	capacity float64
	startsAt time.Time
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func rowSchema() Schema[row] {
	return Schema[row]{
		ID: func(r row) string { return r.id },
		Strings: map[string]func(row) string{
			"title":  func(r row) string { return r.title },
			"status": func(r row) string { return r.status },
		},
		Numbers: map[string]func(row) float64{
			"capacity": func(r row) float64 { return r.capacity },
		},
		Times: map[string]func(row) time.Time{
			"start_at": func(r row) time.Time { return r.startsAt },
		},
		Searchable: []func(row) string{
			func(r row) string { return r.title },
		},
		Date: func(r row) time.Time { return r.startsAt },
	}
}

func sampleRows() []row {
	return []row{
		{id: "e1", title: "go meetup", status: "published", capacity: 50, startsAt: now.Add(3 * 24 * time.Hour)},
		{id: "e2", title: "Alpha Summit", status: "draft", capacity: 500, startsAt: now.Add(20 * 24 * time.Hour)},
		{id: "e3", title: "Retro Night", status: "published", capacity: 50, startsAt: now.Add(-2 * 24 * time.Hour)},
		{id: "e4", title: "beta launch", status: "cancelled", capacity: 120, startsAt: now.Add(60 * 24 * time.Hour)},
	}
}

func ids(rows []row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.id
	}
	return out
}

func TestApplyFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{name: "no filters keeps raw order", want: []string{"e1", "e2", "e3", "e4"}},
		{name: "all is not a constraint", filters: Filters{"status": "all", KeyDateRange: "all"}, want: []string{"e1", "e2", "e3", "e4"}},
		{name: "exact status", filters: Filters{"status": "published"}, want: []string{"e1", "e3"}},
		{name: "search is case insensitive", filters: Filters{KeySearch: "ALPHA"}, want: []string{"e2"}},
		{name: "upcoming", filters: Filters{KeyDateRange: "upcoming"}, want: []string{"e1", "e2", "e4"}},
		{name: "this week", filters: Filters{KeyDateRange: "this-week"}, want: []string{"e1"}},
		{name: "this month", filters: Filters{KeyDateRange: "this-month"}, want: []string{"e1", "e2"}},
		{name: "past", filters: Filters{KeyDateRange: "past"}, want: []string{"e3"}},
		{name: "combined", filters: Filters{"status": "published", KeyDateRange: "upcoming"}, want: []string{"e1"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Apply(rowSchema(), sampleRows(), tc.filters, SortState{}, now)
			if err != nil {
				t.Fatalf("Apply returned error: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, ids(got))
			}
		})
	}
}

func TestApplySortIsStable(t *testing.T) {
	t.Parallel()

	got, err := Apply(rowSchema(), sampleRows(), nil, SortState{Key: "capacity"}, now)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if want := []string{"e1", "e3", "e4", "e2"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("ascending capacity: expected %v, got %v", want, ids(got))
	}

	got, _ = Apply(rowSchema(), sampleRows(), nil, SortState{Key: "capacity", Direction: Descending}, now)
	if want := []string{"e2", "e4", "e1", "e3"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("descending capacity: expected %v, got %v", want, ids(got))
	}
}

func TestApplySortStringsIgnoreCase(t *testing.T) {
	t.Parallel()

	got, err := Apply(rowSchema(), sampleRows(), nil, SortState{Key: "title"}, now)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if want := []string{"e2", "e4", "e1", "e3"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}

	got, _ = Apply(rowSchema(), sampleRows(), nil, SortState{Key: "start_at", Direction: Descending}, now)
	if want := []string{"e4", "e2", "e1", "e3"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	raw := sampleRows()
	if _, err := Apply(rowSchema(), raw, Filters{"status": "published"}, SortState{Key: "title", Direction: Descending}, now); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !reflect.DeepEqual(raw, sampleRows()) {
		t.Fatalf("input was modified")
	}
}

func TestApplyUnknownKeys(t *testing.T) {
	t.Parallel()

	if _, err := Apply(rowSchema(), sampleRows(), Filters{"venue": "x"}, SortState{}, now); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField for filter, got %v", err)
	}
	if _, err := Apply(rowSchema(), sampleRows(), nil, SortState{Key: "venue"}, now); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField for sort, got %v", err)
	}
	if _, err := Apply(rowSchema(), sampleRows(), Filters{KeyDateRange: "next-year"}, SortState{}, now); err == nil {
		t.Fatalf("expected error for unknown date range")
	}
}

func TestDaysUntilRoundsUp(t *testing.T) {
	t.Parallel()

	if got := DaysUntil(now.Add(time.Minute), now); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := DaysUntil(now, now); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := DaysUntil(now.Add(-25*time.Hour), now); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func TestSortStateToggle(t *testing.T) {
	t.Parallel()

	s := SortState{}.Toggle("title")
	if s.Key != "title" || s.Direction != Ascending {
		t.Fatalf("new key should sort ascending, got %+v", s)
	}
	s = s.Toggle("title")
	if s.Direction != Descending {
		t.Fatalf("same key should flip, got %+v", s)
	}
	s = s.Toggle("title")
	if s.Direction != Ascending {
		t.Fatalf("same key should flip back, got %+v", s)
	}
	s = SortState{Key: "title", Direction: Descending}.Toggle("capacity")
	if s.Key != "capacity" || s.Direction != Ascending {
		t.Fatalf("switching key should reset to ascending, got %+v", s)
	}
}

func TestParseSort(t *testing.T) {
	t.Parallel()

	s, err := ParseSort("-start_at", "")
	if err != nil || s.Key != "start_at" || s.Direction != Descending {
		t.Fatalf("unexpected %+v (%v)", s, err)
	}
	s, err = ParseSort("title", "DESC")
	if err != nil || s.Direction != Descending {
		t.Fatalf("unexpected %+v (%v)", s, err)
	}
	if _, err := ParseSort("title", "sideways"); err == nil {
		t.Fatalf("expected error for bad direction")
	}
}

func TestSelectAllUsesFilteredView(t *testing.T) {
	t.Parallel()

	schema := rowSchema()
	view, err := Apply(schema, sampleRows(), Filters{"status": "published"}, SortState{}, now)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	sel := SelectAll(schema, view)
	if want := []string{"e1", "e3"}; !reflect.DeepEqual(sel.IDs(), want) {
		t.Fatalf("expected %v, got %v", want, sel.IDs())
	}
	if sel.Has("e2") {
		t.Fatalf("rows outside the view must not be selected")
	}

	sel.Toggle("e1")
	sel.Toggle("e4")
	if want := []string{"e3", "e4"}; !reflect.DeepEqual(sel.IDs(), want) {
		t.Fatalf("expected %v after toggles, got %v", want, sel.IDs())
	}
	sel.Clear()
	if sel.Len() != 0 {
		t.Fatalf("expected empty selection after Clear")
	}
}
