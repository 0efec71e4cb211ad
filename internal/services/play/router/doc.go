// Package router applies one turn's stream events to the client stores.
//
// A Turn moves Idle -> NarratorOpen -> NarratorClosed -> Done for the
// narrator, while character streams open and close independently, keyed by
// character id. Every event is checked against the request guard first; an
// event for a superseded or orphaned request is dropped before it can touch
// any store. Once a turn is Done, further events are ignored.
//
// turn_complete closes whatever is still streaming, optionally materializes
// inline narration and responses, then commits the state delta and the map
// observation. turn_error closes open streams and raises one notification
// without touching narrative state.
package router
