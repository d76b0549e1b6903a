// Package listview filters and sorts in-memory collections for the list
// endpoints and keeps the selection used by bulk actions.
package listview

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Filter keys with special handling. Any other key must name a string field
// of the schema and is matched exactly.
const (
	KeySearch    = "search"
	KeyDateRange = "dateRange"
)

// ErrUnknownField is returned when a filter or sort key is not part of the schema.
var ErrUnknownField = errors.New("listview: unknown field")

// Schema describes how a row type is filtered and sorted.
type Schema[T any] struct {
	ID         func(T) string
	Strings    map[string]func(T) string
	Numbers    map[string]func(T) float64
	Times      map[string]func(T) time.Time
	Searchable []func(T) string
	// Date is the field the dateRange filter applies to. Nil disables the filter.
	Date func(T) time.Time
}

// Filters maps filter keys to values. Empty values and "all" mean no constraint.
type Filters map[string]string

// Active reports whether value constrains the view.
func Active(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && !strings.EqualFold(v, "all")
}

// Apply filters raw and sorts the result. raw is never modified.
func Apply[T any](schema Schema[T], raw []T, filters Filters, order SortState, now time.Time) ([]T, error) {
	preds, err := schema.predicates(filters, now)
	if err != nil {
		return nil, err
	}
	less, err := schema.comparator(order)
	if err != nil {
		return nil, err
	}

	view := make([]T, 0, len(raw))
rows:
	for _, row := range raw {
		for _, keep := range preds {
			if !keep(row) {
				continue rows
			}
		}
		view = append(view, row)
	}

	if less != nil {
		sort.SliceStable(view, func(i, j int) bool {
			if order.Direction == Descending {
				return less(view[j], view[i])
			}
			return less(view[i], view[j])
		})
	}
	return view, nil
}

func (s Schema[T]) predicates(filters Filters, now time.Time) ([]func(T) bool, error) {
	var preds []func(T) bool
	for key, value := range filters {
		if !Active(value) {
			continue
		}
		value := strings.TrimSpace(value)

		switch key {
		case KeySearch:
			needle := strings.ToLower(value)
			fields := s.Searchable
			preds = append(preds, func(row T) bool {
				for _, field := range fields {
					if strings.Contains(strings.ToLower(field(row)), needle) {
						return true
					}
				}
				return false
			})
		case KeyDateRange:
			if s.Date == nil {
				return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
			}
			r, err := ParseDateRange(value)
			if err != nil {
				return nil, err
			}
			date := s.Date
			preds = append(preds, func(row T) bool { return r.Contains(date(row), now) })
		default:
			field, ok := s.Strings[key]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
			}
			preds = append(preds, func(row T) bool { return field(row) == value })
		}
	}
	return preds, nil
}

func (s Schema[T]) comparator(order SortState) (func(a, b T) bool, error) {
	if order.Key == "" {
		return nil, nil
	}
	if field, ok := s.Numbers[order.Key]; ok {
		return func(a, b T) bool { return field(a) < field(b) }, nil
	}
	if field, ok := s.Times[order.Key]; ok {
		return func(a, b T) bool { return field(a).Before(field(b)) }, nil
	}
	if field, ok := s.Strings[order.Key]; ok {
		return func(a, b T) bool { return strings.ToLower(field(a)) < strings.ToLower(field(b)) }, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownField, order.Key)
}

// DateRange is a relative window around now.
type DateRange string

const (
	RangeAll       DateRange = "all"
	RangeUpcoming  DateRange = "upcoming"
	RangeThisWeek  DateRange = "this-week"
	RangeThisMonth DateRange = "this-month"
	RangePast      DateRange = "past"
)

// ParseDateRange validates a range name.
func ParseDateRange(value string) (DateRange, error) {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(value))); r {
	case "", RangeAll:
		return RangeAll, nil
	case RangeUpcoming, RangeThisWeek, RangeThisMonth, RangePast:
		return r, nil
	}
	return "", fmt.Errorf("listview: unknown date range %q", value)
}

// DaysUntil returns ceil((target-now)/24h).
func DaysUntil(target, now time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}

// Contains reports whether target falls inside the range relative to now.
func (r DateRange) Contains(target, now time.Time) bool {
	days := DaysUntil(target, now)
	switch r {
	case RangeUpcoming:
		return days >= 0
	case RangeThisWeek:
		return days >= 0 && days <= 7
	case RangeThisMonth:
		return days >= 0 && days <= 30
	case RangePast:
		return days < 0
	default:
		return true
	}
}
