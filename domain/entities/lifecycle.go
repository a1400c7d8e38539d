package entities

import "fmt"

// State represents a plugin's position in its lifecycle.
//
// The legal progression is Installed -> Starting -> Active -> Stopping ->
// Stopped. Any non-terminal state may drop to Failed. Stopped and Failed
// are terminal: a plugin never leaves them, and restarting means disposing
// of the handle and creating a new one.
type State uint8

const (
	// StateInstalled is the initial state: the plugin exists but has not
	// been initialized.
	StateInstalled State = iota

	// StateStarting means initialization is in progress.
	StateStarting

	// StateActive means the plugin is serving requests. This is the only
	// state in which requests are accepted.
	StateActive

	// StateStopping means shutdown is in progress; in-flight requests are
	// draining.
	StateStopping

	// StateStopped is the terminal state after a clean shutdown.
	StateStopped

	// StateFailed is the terminal state after an unrecoverable error.
	StateFailed
)

// StateInvalid is the sentinel reported when a handle is not recognized by
// the runtime. It is never stored in a live plugin context.
const StateInvalid State = 255

// transitions maps each state to its legal successors. Stopped and Failed
// have no outgoing edges.
var transitions = map[State][]State{
	StateInstalled: {StateStarting, StateFailed},
	StateStarting:  {StateActive, StateFailed},
	StateActive:    {StateStopping, StateFailed},
	StateStopping:  {StateStopped, StateFailed},
	StateStopped:   nil,
	StateFailed:    nil,
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// CanHandleRequests reports whether a plugin in state s accepts requests.
// Only Active plugins do; Starting and Stopping plugins reject them.
func (s State) CanHandleRequests() bool {
	return s == StateActive
}

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
