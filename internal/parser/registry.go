package parser

import (
	"fmt"
	"sync"
)

// Registry is a typed parser registry keyed by stable id. Parsers are
// registered once at startup and resolved at dispatch and resume time.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{parsers: map[string]Parser{}}
}

// Register adds a parser. Duplicate ids are an error: fragments reference
// parsers by id and the mapping must stay unambiguous.
func (r *Registry) Register(p Parser) error {
	if p == nil || p.ID() == "" {
		return fmt.Errorf("parser: registry: parser with non-empty id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[p.ID()]; exists {
		return fmt.Errorf("parser: registry: duplicate id %q", p.ID())
	}
	r.parsers[p.ID()] = p
	r.order = append(r.order, p.ID())
	return nil
}

// Get resolves a parser by id.
func (r *Registry) Get(id string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[id]
	return p, ok
}

// All returns the parsers in registration order.
func (r *Registry) All() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Parser, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.parsers[id])
	}
	return out
}
