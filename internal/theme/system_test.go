package theme

import (
	"context"
	"sync"
)

// pushedPreference is a SystemPreference whose value the test pushes.
type pushedPreference struct {
	mu      sync.Mutex
	current Preference
	next    int
	subs    map[int]func(Preference)
}

func newPushedPreference(initial Preference) *pushedPreference {
	return &pushedPreference{current: initial, subs: make(map[int]func(Preference))}
}

func (b *pushedPreference) Current(context.Context) (Preference, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, nil
}

func (b *pushedPreference) Subscribe(fn func(Preference)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Set updates the preference and notifies subscribers synchronously.
func (b *pushedPreference) Set(p Preference) {
	b.mu.Lock()
	b.current = p
	fns := make([]func(Preference), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// Subscribers reports the number of active subscriptions.
func (b *pushedPreference) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
