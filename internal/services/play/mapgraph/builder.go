package mapgraph

import (
	"sync"

	"github.com/louisbranch/storyloom/internal/services/play/state"
)

// Builder holds the live graph and serializes merges into it.
type Builder struct {
	mu      sync.Mutex
	graph   Graph
	ceiling int
}

// NewBuilder returns an empty builder that keeps at most ceiling nodes.
func NewBuilder(ceiling int) *Builder {
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	return &Builder{ceiling: ceiling}
}

// Observe merges a location observation and returns the new graph.
func (b *Builder) Observe(loc state.Location, hint *Hint) Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph = Merge(b.graph, loc, hint, b.ceiling)
	return b.graph
}

// Graph returns the latest graph. The result shares no maps with the builder.
func (b *Builder) Graph() Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.graph.clone()
}

// Reset forgets every node, as on a session switch.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph = Graph{}
}
