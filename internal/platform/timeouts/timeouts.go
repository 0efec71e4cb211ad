// Package timeouts defines shared timeout constants used across the play
// client. Keeping them in one place makes the durations discoverable.
package timeouts

import "time"

// TurnStream caps the whole lifetime of one streamed turn, from request to the
// last frame. Narration from the backend can take tens of seconds.
const TurnStream = 90 * time.Second

// Fetch caps a single attempt of a non-streaming backend request.
const Fetch = 10 * time.Second

// Shutdown limits how long telemetry and storage are given to flush on exit.
const Shutdown = 5 * time.Second

// RetryMaxElapsed bounds the total time spent retrying a non-streaming fetch.
const RetryMaxElapsed = 30 * time.Second
