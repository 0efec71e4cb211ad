package mapgraph

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/louisbranch/storyloom/internal/services/play/state"
)

var locationIDs = []string{"a", "b", "c", "d", "e", "f", "g", "h"}

func genLocation() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("a", "b", "c", "d", "e", "f", "g", "h"),
		gen.SliceOfN(3, gen.IntRange(0, len(locationIDs)-1)),
	).Map(func(values []interface{}) state.Location {
		loc := state.Location{ID: values[0].(string)}
		for _, idx := range values[1].([]int) {
			loc.Destinations = append(loc.Destinations, state.Destination{ID: locationIDs[idx]})
		}
		return loc
	})
}

// Property: after any observation sequence there is exactly one current node
// (the last observed), edges only join present nodes, and the ceiling holds.
func TestGraphInvariants(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("graph invariants hold", prop.ForAll(
		func(locs []state.Location, ceiling int) bool {
			g := Graph{}
			for _, loc := range locs {
				g = Merge(g, loc, nil, ceiling)
			}
			if len(locs) == 0 {
				return len(g.Nodes) == 0
			}
			currents := 0
			for _, n := range g.Nodes {
				if n.IsCurrent {
					currents++
					if n.ID != locs[len(locs)-1].ID {
						return false
					}
				}
			}
			if currents != 1 || len(g.Nodes) > ceiling {
				return false
			}
			for id, e := range g.Edges {
				_, fromOK := g.Nodes[e.From]
				_, toOK := g.Nodes[e.To]
				if !fromOK || !toOK || id != EdgeID(e.From, e.To) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genLocation()),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

// Property: with an explicit hint, every node other than the current one is
// unlocked exactly when the hint names it.
func TestHintDecidesEveryNode(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("hint membership decides unlocking", prop.ForAll(
		func(locs []state.Location, last state.Location, allowed []int) bool {
			g := Graph{}
			for _, loc := range locs {
				g = Merge(g, loc, nil, DefaultCeiling)
			}
			hint := &Hint{AvailableIDs: []string{}}
			members := make(map[string]bool, len(allowed))
			for _, idx := range allowed {
				hint.AvailableIDs = append(hint.AvailableIDs, locationIDs[idx])
				members[locationIDs[idx]] = true
			}
			g = Merge(g, last, hint, DefaultCeiling)
			for id, n := range g.Nodes {
				if n.IsUnlocked != (n.IsCurrent || members[id]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genLocation()),
		genLocation(),
		gen.SliceOf(gen.IntRange(0, len(locationIDs)-1)),
	))

	properties.TestingRun(t)
}
