package domain

import "fmt"

// NodeState represents the power state of a node inside a mapping.
type NodeState int

const (
	// NodeStateUnknown is the state of a node the mapping does not contain.
	NodeStateUnknown NodeState = iota
	// NodeStateOnline is a node able to host running and sleeping VMs.
	NodeStateOnline
	// NodeStateOffline is a powered-off node. It hosts nothing.
	NodeStateOffline
)

func (s NodeState) String() string {
	switch s {
	case NodeStateOnline:
		return "online"
	case NodeStateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Node identifies a physical host. Identifiers are allocated by a Model.
type Node int

// NoNode is used where an action has no source or destination node.
const NoNode Node = -1

// ID returns the numeric identifier of the node.
func (n Node) ID() int { return int(n) }

func (n Node) String() string {
	if n == NoNode {
		return "none"
	}
	return fmt.Sprintf("node#%d", int(n))
}
