package profile

// State tracks the sampling run lifecycle. Transitions are driven only
// by the single-threaded loop: INIT -> ATTACHED on successful attach and
// buffer open, ATTACHED -> SAMPLING on the first tick, SAMPLING ->
// DRAINING on target exit or stop signal, DRAINING -> TERMINATED once
// every resource is released. No row is emitted after TERMINATED.
type State int32

const (
	StateInit State = iota
	StateAttached
	StateSampling
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAttached:
		return "ATTACHED"
	case StateSampling:
		return "SAMPLING"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	}

	return "UNKNOWN"
}
