package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator yields "<prefix>-1", "<prefix>-2", ... and is safe for
// concurrent use, so it can back both id and token generation in services.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next for injection. A nil generator yields empty strings,
// which the repositories reject.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence at 1.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
