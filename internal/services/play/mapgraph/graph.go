package mapgraph

import (
	"sort"

	"github.com/louisbranch/storyloom/internal/services/play/state"
)

// DefaultCeiling is the default maximum number of nodes kept.
const DefaultCeiling = 40

// Node is a known location.
type Node struct {
	ID                     string
	Name                   string
	DangerLevel            string
	IsCurrent              bool
	IsUnlocked             bool
	IsReachableFromCurrent bool
	LastSeenAt             uint64
}

// Edge is a directed path between two known locations.
type Edge struct {
	ID          string
	From        string
	To          string
	TravelLabel string
	IsActive    bool
}

// Graph is an immutable map snapshot. Step counts observations and orders
// eviction.
type Graph struct {
	Nodes map[string]Node
	Edges map[string]Edge
	Step  uint64
}

// Hint decides which known nodes count as unlocked. A nil *Hint means the
// backend sent none, so reachable nodes become unlocked and stay so.
type Hint struct {
	AvailableIDs []string
	AllUnlocked  bool
}

// EdgeID returns the identifier of the edge from -> to.
func EdgeID(from, to string) string {
	return from + "->" + to
}

// Current returns the node flagged as current.
func (g Graph) Current() (Node, bool) {
	for _, n := range g.Nodes {
		if n.IsCurrent {
			return n, true
		}
	}
	return Node{}, false
}

// SortedNodes returns nodes ordered by id.
func (g Graph) SortedNodes() []Node {
	out := make([]Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortedEdges returns edges ordered by id.
func (g Graph) SortedEdges() []Edge {
	out := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g Graph) clone() Graph {
	out := Graph{
		Nodes: make(map[string]Node, len(g.Nodes)+1),
		Edges: make(map[string]Edge, len(g.Edges)),
		Step:  g.Step,
	}
	for id, n := range g.Nodes {
		out.Nodes[id] = n
	}
	for id, e := range g.Edges {
		out.Edges[id] = e
	}
	return out
}

// Merge folds an observed location into prev and returns the new graph.
// Observations with an empty location id return an unchanged copy. A
// ceiling below one uses DefaultCeiling.
func Merge(prev Graph, observed state.Location, hint *Hint, ceiling int) Graph {
	next := prev.clone()
	if observed.ID == "" {
		return next
	}
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	next.Step++

	for id, n := range next.Nodes {
		n.IsCurrent = false
		n.IsReachableFromCurrent = false
		next.Nodes[id] = n
	}
	for id, e := range next.Edges {
		e.IsActive = false
		next.Edges[id] = e
	}

	current := upsert(next.Nodes, observed.ID, observed.Name, observed.DangerLevel)
	current.IsCurrent = true
	current.IsUnlocked = true
	current.LastSeenAt = next.Step
	next.Nodes[current.ID] = current

	for _, dest := range observed.Destinations {
		if dest.ID == "" || dest.ID == observed.ID {
			continue
		}
		n := upsert(next.Nodes, dest.ID, dest.Name, dest.DangerLevel)
		n.IsReachableFromCurrent = true
		n.LastSeenAt = next.Step
		next.Nodes[n.ID] = n

		edgeID := EdgeID(observed.ID, dest.ID)
		edge := next.Edges[edgeID]
		edge.ID = edgeID
		edge.From = observed.ID
		edge.To = dest.ID
		edge.IsActive = true
		if dest.TravelLabel != "" {
			edge.TravelLabel = dest.TravelLabel
		}
		next.Edges[edgeID] = edge
	}

	unlocked := unlockRule(hint)
	for id, n := range next.Nodes {
		n.IsUnlocked = n.IsCurrent || unlocked(n)
		next.Nodes[id] = n
	}

	evict(&next, ceiling)
	return next
}

// upsert returns the node for id with name and danger refreshed when the
// observation provides them.
func upsert(nodes map[string]Node, id, name, danger string) Node {
	n, ok := nodes[id]
	if !ok {
		n = Node{ID: id}
	}
	if name != "" {
		n.Name = name
	}
	if danger != "" {
		n.DangerLevel = danger
	}
	return n
}

// unlockRule decides a node's unlocked flag. Without a hint a node stays
// unlocked once it has been reachable.
func unlockRule(hint *Hint) func(Node) bool {
	if hint == nil {
		return func(n Node) bool { return n.IsUnlocked || n.IsReachableFromCurrent }
	}
	if hint.AllUnlocked {
		return func(Node) bool { return true }
	}
	allowed := make(map[string]struct{}, len(hint.AvailableIDs))
	for _, id := range hint.AvailableIDs {
		allowed[id] = struct{}{}
	}
	return func(n Node) bool {
		_, ok := allowed[n.ID]
		return ok
	}
}

// evict drops the least recently observed non-current nodes until the graph
// fits the ceiling, then drops edges left dangling.
func evict(g *Graph, ceiling int) {
	excess := len(g.Nodes) - ceiling
	if excess <= 0 {
		return
	}
	candidates := make([]Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if !n.IsCurrent {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LastSeenAt != candidates[j].LastSeenAt {
			return candidates[i].LastSeenAt < candidates[j].LastSeenAt
		}
		return candidates[i].ID < candidates[j].ID
	})
	for i := 0; i < excess && i < len(candidates); i++ {
		delete(g.Nodes, candidates[i].ID)
	}
	for id, e := range g.Edges {
		_, fromOK := g.Nodes[e.From]
		_, toOK := g.Nodes[e.To]
		if !fromOK || !toOK {
			delete(g.Edges, id)
		}
	}
}
