package hibiki

// State represents the player lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StatePlaying
	StatePaused
	StateDisconnecting
	StateDisconnected
	StateDestroying
	StateDestroyed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// LoopMode controls how the queue advances on normal track completion.
type LoopMode int

const (
	LoopNone  LoopMode = iota // Advance normally
	LoopTrack                 // Replay the finished track
	LoopQueue                 // Recycle the finished track to the queue tail
)

// String returns the string representation of the loop mode.
func (l LoopMode) String() string {
	switch l {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}
