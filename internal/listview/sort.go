package listview

import (
	"fmt"
	"strings"
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection accepts asc/desc in any case. Empty means ascending.
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("listview: unknown sort direction %q", value)
}

// SortState is the current sort key and direction.
type SortState struct {
	Key       string
	Direction Direction
}

// Toggle flips the direction when key is already selected and otherwise
// selects key in ascending order.
func (s SortState) Toggle(key string) SortState {
	if s.Key == key {
		if s.Direction == Ascending {
			return SortState{Key: key, Direction: Descending}
		}
		return SortState{Key: key, Direction: Ascending}
	}
	return SortState{Key: key, Direction: Ascending}
}

// ParseSort reads "key" or "-key" (descending) as used in query strings.
// An explicit order value overrides the prefix.
func ParseSort(sortParam, orderParam string) (SortState, error) {
	key := strings.TrimSpace(sortParam)
	dir := Ascending
	if strings.HasPrefix(key, "-") {
		key = strings.TrimPrefix(key, "-")
		dir = Descending
	}
	if strings.TrimSpace(orderParam) != "" {
		d, err := ParseDirection(orderParam)
		if err != nil {
			return SortState{}, err
		}
		dir = d
	}
	return SortState{Key: key, Direction: dir}, nil
}
