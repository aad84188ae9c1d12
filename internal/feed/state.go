package feed

// State is the writer's position in its reader lifecycle
type State int

const (
	StateAwaitingReader State = iota // Blocked until the encoder opens the pipe
	StateActive                      // Writing clips or silence
	StateDisconnected                // Reader went away, handle being closed
	StateStopped                     // Stop signal observed, loop exited
)

func (s State) String() string {
	switch s {
	case StateAwaitingReader:
		return "awaiting_reader"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}
