package runtime

// State is a client lifecycle state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	// StateRetrying is reserved for a reconnect policy. Nothing enters it yet,
	// but Connect and Disconnect treat it like connecting.
	StateRetrying State = "retrying"
)

func (s State) String() string { return string(s) }
