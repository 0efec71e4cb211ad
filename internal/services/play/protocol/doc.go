// Package protocol defines the events carried by a streamed turn.
//
// Every record on the wire is a JSON object with a "type" discriminator. The
// set of event types is closed: Decode maps each known type to its own Go
// struct and rejects everything else, so downstream code switches over
// concrete types instead of probing untyped payloads.
package protocol
