package mapgraph

import (
	"fmt"
	"testing"

	"github.com/louisbranch/storyloom/internal/services/play/state"
)

func TestMergeFirstObservation(t *testing.T) {
	g := Merge(Graph{}, state.Location{
		ID:          "inn",
		Name:        "The Gilded Goose",
		DangerLevel: "safe",
		Destinations: []state.Destination{
			{ID: "market", Name: "Market", TravelLabel: "walk east"},
			{ID: "docks", Name: "Docks"},
		},
	}, nil, DefaultCeiling)

	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Fatalf("nodes=%d edges=%d, want 3 and 2", len(g.Nodes), len(g.Edges))
	}
	cur, ok := g.Current()
	if !ok || cur.ID != "inn" || !cur.IsUnlocked {
		t.Fatalf("current = %+v", cur)
	}
	market := g.Nodes["market"]
	if !market.IsReachableFromCurrent || !market.IsUnlocked {
		t.Fatalf("market = %+v", market)
	}
	edge := g.Edges[EdgeID("inn", "market")]
	if !edge.IsActive || edge.TravelLabel != "walk east" || edge.From != "inn" || edge.To != "market" {
		t.Fatalf("edge = %+v", edge)
	}
}

func TestMergeDoesNotMutatePrevious(t *testing.T) {
	first := Merge(Graph{}, state.Location{ID: "inn", Destinations: []state.Destination{{ID: "market"}}}, nil, DefaultCeiling)
	second := Merge(first, state.Location{ID: "market"}, nil, DefaultCeiling)

	if !first.Nodes["inn"].IsCurrent || first.Nodes["market"].IsCurrent {
		t.Fatal("previous graph was mutated")
	}
	if !first.Edges[EdgeID("inn", "market")].IsActive {
		t.Fatal("previous edge was mutated")
	}
	if second.Edges[EdgeID("inn", "market")].IsActive {
		t.Fatal("edge from old current should be inactive")
	}
}

func TestMergePreservesKnownNameAndDanger(t *testing.T) {
	g := Merge(Graph{}, state.Location{ID: "inn", Destinations: []state.Destination{{ID: "crypt", Name: "Old Crypt", DangerLevel: "deadly"}}}, nil, DefaultCeiling)
	g = Merge(g, state.Location{ID: "crypt"}, nil, DefaultCeiling)

	crypt := g.Nodes["crypt"]
	if crypt.Name != "Old Crypt" || crypt.DangerLevel != "deadly" {
		t.Fatalf("crypt = %+v", crypt)
	}
}

func TestHintControlsUnlocking(t *testing.T) {
	loc := state.Location{ID: "gate", Destinations: []state.Destination{{ID: "keep"}, {ID: "moat"}}}

	g := Merge(Graph{}, loc, &Hint{AvailableIDs: []string{"moat"}}, DefaultCeiling)
	if g.Nodes["keep"].IsUnlocked || !g.Nodes["moat"].IsUnlocked {
		t.Fatalf("keep=%v moat=%v", g.Nodes["keep"].IsUnlocked, g.Nodes["moat"].IsUnlocked)
	}

	g = Merge(Graph{}, loc, &Hint{AvailableIDs: []string{}}, DefaultCeiling)
	if g.Nodes["keep"].IsUnlocked || g.Nodes["moat"].IsUnlocked {
		t.Fatal("explicit empty hint should lock every destination")
	}

	g = Merge(Graph{}, loc, &Hint{AvailableIDs: []string{}, AllUnlocked: true}, DefaultCeiling)
	if !g.Nodes["keep"].IsUnlocked || !g.Nodes["moat"].IsUnlocked {
		t.Fatal("all_unlocked should unlock every destination")
	}
}

func TestHintRecomputesEveryKnownNode(t *testing.T) {
	g := Merge(Graph{}, state.Location{ID: "a", Destinations: []state.Destination{{ID: "b"}, {ID: "c"}}}, nil, DefaultCeiling)
	g = Merge(g, state.Location{ID: "b", Destinations: []state.Destination{{ID: "a"}}}, &Hint{AvailableIDs: []string{"a"}}, DefaultCeiling)

	assertUnlocked(t, g, map[string]bool{"a": true, "b": true, "c": false})
}

func TestUnlockAcrossHintSequence(t *testing.T) {
	steps := []struct {
		loc  state.Location
		hint *Hint
		want map[string]bool
	}{
		{
			loc:  state.Location{ID: "a", Destinations: []state.Destination{{ID: "b"}, {ID: "c"}}},
			want: map[string]bool{"a": true, "b": true, "c": true},
		},
		{
			loc:  state.Location{ID: "b", Destinations: []state.Destination{{ID: "d"}}},
			hint: &Hint{AvailableIDs: []string{"c"}},
			want: map[string]bool{"a": false, "b": true, "c": true, "d": false},
		},
		{
			loc:  state.Location{ID: "d"},
			want: map[string]bool{"a": false, "b": true, "c": true, "d": true},
		},
		{
			loc:  state.Location{ID: "c", Destinations: []state.Destination{{ID: "e"}}},
			hint: &Hint{AllUnlocked: true},
			want: map[string]bool{"a": true, "b": true, "c": true, "d": true, "e": true},
		},
		{
			loc:  state.Location{ID: "e"},
			hint: &Hint{AvailableIDs: []string{}},
			want: map[string]bool{"a": false, "b": false, "c": false, "d": false, "e": true},
		},
		{
			loc:  state.Location{ID: "a", Destinations: []state.Destination{{ID: "b"}}},
			want: map[string]bool{"a": true, "b": true, "c": false, "d": false, "e": true},
		},
	}

	g := Graph{}
	for i, step := range steps {
		g = Merge(g, step.loc, step.hint, DefaultCeiling)
		t.Run(fmt.Sprintf("step %d", i), func(t *testing.T) {
			assertUnlocked(t, g, step.want)
		})
	}
}

func assertUnlocked(t *testing.T, g Graph, want map[string]bool) {
	t.Helper()
	if len(g.Nodes) != len(want) {
		t.Fatalf("nodes = %d, want %d", len(g.Nodes), len(want))
	}
	for id, unlocked := range want {
		n, ok := g.Nodes[id]
		if !ok {
			t.Fatalf("missing node %s", id)
		}
		if n.IsUnlocked != unlocked {
			t.Errorf("%s unlocked = %v, want %v", id, n.IsUnlocked, unlocked)
		}
	}
}

func TestMergeIgnoresEmptyLocation(t *testing.T) {
	g := Merge(Graph{}, state.Location{ID: "inn"}, nil, DefaultCeiling)
	next := Merge(g, state.Location{}, nil, DefaultCeiling)
	if next.Step != g.Step || len(next.Nodes) != 1 {
		t.Fatalf("empty observation changed graph: %+v", next)
	}
}

func TestEvictionKeepsCeilingAndDropsOldest(t *testing.T) {
	b := NewBuilder(DefaultCeiling)
	for i := 0; i < 45; i++ {
		b.Observe(state.Location{ID: fmt.Sprintf("loc-%02d", i)}, nil)
	}
	g := b.Graph()

	if len(g.Nodes) != DefaultCeiling {
		t.Fatalf("nodes = %d, want %d", len(g.Nodes), DefaultCeiling)
	}
	for i := 0; i < 5; i++ {
		if _, ok := g.Nodes[fmt.Sprintf("loc-%02d", i)]; ok {
			t.Fatalf("loc-%02d should have been evicted", i)
		}
	}
	cur, ok := g.Current()
	if !ok || cur.ID != "loc-44" {
		t.Fatalf("current = %+v", cur)
	}

	var kept []string
	for _, n := range g.SortedNodes() {
		if !n.IsCurrent {
			kept = append(kept, n.ID)
		}
	}
	if len(kept) != DefaultCeiling-1 {
		t.Fatalf("non-current nodes = %d, want %d", len(kept), DefaultCeiling-1)
	}
	for i, id := range kept {
		if want := fmt.Sprintf("loc-%02d", i+5); id != want {
			t.Fatalf("kept[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestEvictionDropsDanglingEdgesAndSparesCurrent(t *testing.T) {
	g := Merge(Graph{}, state.Location{ID: "hub", Destinations: []state.Destination{{ID: "a"}, {ID: "b"}}}, nil, 2)

	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}
	if _, ok := g.Nodes["hub"]; !ok {
		t.Fatal("current node must survive eviction")
	}
	if _, ok := g.Nodes["a"]; ok {
		t.Fatal("tie on recency should evict the lowest id first")
	}
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.To]; !ok {
			t.Fatalf("dangling edge %s", e.ID)
		}
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(g.Edges))
	}
}

func TestRevisitRefreshesRecency(t *testing.T) {
	b := NewBuilder(3)
	b.Observe(state.Location{ID: "a"}, nil)
	b.Observe(state.Location{ID: "b"}, nil)
	b.Observe(state.Location{ID: "c"}, nil)
	b.Observe(state.Location{ID: "a"}, nil)
	g := b.Observe(state.Location{ID: "d"}, nil)

	if _, ok := g.Nodes["b"]; ok {
		t.Fatal("b is the least recently seen and should be evicted")
	}
	if _, ok := g.Nodes["a"]; !ok {
		t.Fatal("revisited a should survive")
	}
}

func TestBuilderResetAndIsolation(t *testing.T) {
	b := NewBuilder(0)
	b.Observe(state.Location{ID: "inn"}, nil)
	g := b.Graph()
	delete(g.Nodes, "inn")
	if len(b.Graph().Nodes) != 1 {
		t.Fatal("caller mutation leaked into builder")
	}
	b.Reset()
	if len(b.Graph().Nodes) != 0 {
		t.Fatal("reset should clear nodes")
	}
}

func TestSortedAccessors(t *testing.T) {
	g := Merge(Graph{}, state.Location{ID: "m", Destinations: []state.Destination{{ID: "z"}, {ID: "a"}}}, nil, DefaultCeiling)
	nodes := g.SortedNodes()
	if nodes[0].ID != "a" || nodes[2].ID != "z" {
		t.Fatalf("nodes = %+v", nodes)
	}
	edges := g.SortedEdges()
	if edges[0].ID != "m->a" {
		t.Fatalf("edges = %+v", edges)
	}
}
