package feed

// State is a connection lifecycle state of the streaming client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateBackoff
	// StateTerminated is entered only through Shutdown or context
	// cancellation and is never left.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
