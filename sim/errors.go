package sim

import "errors"

// Error taxonomy for the simulator. Callers match with errors.Is; the
// returned errors wrap these sentinels with event and clock context.
var (
	// ErrInvalidConfiguration is returned by Config.Validate and NewSimulator
	// for non-positive rates, capacities, server counts or durations and for
	// unknown policy, process or distribution names.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyQueue is returned by EventQueue.PopEarliest when nothing is pending.
	// The run loop treats it as normal termination.
	ErrEmptyQueue = errors.New("event queue is empty")

	// ErrUnknownServer means a completion referenced a server id that is not in the pool.
	ErrUnknownServer = errors.New("unknown server")

	// ErrInconsistentState means server bookkeeping (load vs in-flight set) was violated.
	ErrInconsistentState = errors.New("inconsistent server state")

	// ErrPastEvent is returned by Simulator.Schedule for an event earlier than
	// the clock, or with a negative or NaN time.
	ErrPastEvent = errors.New("event scheduled in the past")

	// ErrAlreadyFinished is returned when Run or Step is called after the run has finished.
	ErrAlreadyFinished = errors.New("simulation already finished")
)
