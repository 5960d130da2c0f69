// Package stream implements reconnecting duplex feeds over websockets. Each
// Channel owns at most one live connection, retries unexpected closes on a
// fixed backoff and hands decoded messages to a Dispatcher.
package stream

// State is the lifecycle state of a Channel.
type State int

const (
	// Idle means not connected and not trying to be.
	Idle State = iota
	// Connecting means a dial is in flight.
	Connecting
	// Connected means the transport is live and subscribed.
	Connected
	// Closed means the transport dropped unexpectedly and a retry is pending.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
