package listview

import (
	"sort"
	"sync"
)

// Selection is a set of row ids chosen for a bulk action. It does not follow
// filter or sort changes.
type Selection struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSelection returns a selection holding ids.
func NewSelection(ids ...string) *Selection {
	s := &Selection{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// SelectAll returns a selection of exactly the ids in view.
func SelectAll[T any](schema Schema[T], view []T) *Selection {
	s := NewSelection()
	for _, row := range view {
		if id := schema.ID(row); id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// Toggle adds id when absent and removes it otherwise.
func (s *Selection) Toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

func (s *Selection) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the selected ids in lexical order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
