// Package turn runs one player turn end to end.
//
// A Runner claims a request id from the guard, echoes the player input into
// the transcript, opens the backend event stream and feeds every decoded
// event to the router until the turn completes or the stream ends. Stream
// terminations are classified so that cancellation and supersession stay
// silent while genuine transport failures and timeouts reach the player as
// notifications.
package turn
