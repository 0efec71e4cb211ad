// Package mapgraph accumulates the locations the player has seen into a
// bounded directed graph.
//
// Merge is pure: it derives a new Graph from the previous one and an
// observed location without touching the input. The graph keeps at most a
// configured number of nodes; when it grows past that, the nodes observed
// longest ago are evicted first, and the current node is never evicted.
package mapgraph
