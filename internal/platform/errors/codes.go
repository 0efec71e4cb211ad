// Package errors provides structured error handling for the play client.
//
// Errors carry a machine-readable Code plus an internal message for logs.
// User-facing text is produced separately by the notifier from the code and
// metadata, so a Message never reaches the player verbatim.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"

	// Transport errors
	CodeTransportFailed  Code = "TRANSPORT_FAILED"
	CodeTransportStatus  Code = "TRANSPORT_STATUS"
	CodeTransportTimeout Code = "TRANSPORT_TIMEOUT"
	CodeStreamIncomplete Code = "STREAM_INCOMPLETE"

	// Turn errors
	CodeTurnFailed Code = "TURN_FAILED"

	// Session errors
	CodeSessionMissing Code = "SESSION_MISSING"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// Retryable reports whether a failure with this code is worth retrying by
// re-submitting the same input.
func (c Code) Retryable() bool {
	switch c {
	case CodeTransportFailed, CodeTransportTimeout, CodeStreamIncomplete:
		return true
	default:
		return false
	}
}
