package node

// NodeState represents the lifecycle state of a Node.
type NodeState int

const (
	// NodeStateInitialized means the node is created but not started.
	NodeStateInitialized NodeState = iota

	// NodeStateRunning means the transport is up and messages flow.
	NodeStateRunning

	// NodeStateStopped means the node has been shut down. It cannot be
	// restarted.
	NodeStateStopped
)

// String returns a human-readable name for the state.
func (s NodeState) String() string {
	switch s {
	case NodeStateInitialized:
		return "Initialized"
	case NodeStateRunning:
		return "Running"
	case NodeStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// CanStart returns true if Start() can be called in this state.
func (s NodeState) CanStart() bool {
	return s == NodeStateInitialized
}
