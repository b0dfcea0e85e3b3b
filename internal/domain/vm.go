package domain

import "fmt"

// VMState represents the state of a virtual machine inside a mapping.
type VMState int

const (
	// VMStateUnknown is the state of a VM the mapping does not contain.
	VMStateUnknown VMState = iota
	// VMStateReady is a VM known to the datacenter but not hosted anywhere.
	VMStateReady
	// VMStateRunning is a VM executing on an online node.
	VMStateRunning
	// VMStateSleeping is a suspended VM whose image stays on a node.
	VMStateSleeping
	// VMStateKilled is a next-state only value: the VM leaves the mapping.
	VMStateKilled
)

func (s VMState) String() string {
	switch s {
	case VMStateReady:
		return "ready"
	case VMStateRunning:
		return "running"
	case VMStateSleeping:
		return "sleeping"
	case VMStateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// VM identifies a virtual machine. Identifiers are allocated by a Model.
type VM int

// ID returns the numeric identifier of the VM.
func (v VM) ID() int { return int(v) }

func (v VM) String() string { return fmt.Sprintf("vm#%d", int(v)) }

// Element is either a VM or a Node.
type Element interface {
	ID() int
	String() string
}
