// Package state holds the client's narrative snapshot and the reducer that
// folds backend state deltas into it.
//
// A Snapshot is immutable once published. The Reducer builds the next
// snapshot from a private copy and publishes it with a single atomic store,
// so readers observe either the whole pre-delta or the whole post-delta
// state and never a partial merge.
//
// Deltas distinguish three cases per field: absent (unchanged), explicit
// null, and a value. Optional carries that distinction through JSON decoding.
package state
