// Package flash implements the firmware upload pipeline: the family-specific
// upload strategies wrapping external flashing tools, and the orchestrator
// that runs them as cancellable background jobs with a progress stream.
package flash

import "time"

// Phase is a named stage in the upload state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseErasing    Phase = "erasing"
	PhaseWriting    Phase = "writing"
	PhaseVerifying  Phase = "verifying"
	PhaseResetting  Phase = "resetting"
	PhaseCancelling Phase = "cancelling"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal reports whether no transition leaves this phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

// Event is one progress update for a job. Percent is the overall completion
// and never decreases within a job. Exactly one event per job has Terminal
// set, and it is the last one.
type Event struct {
	JobID    uint64
	Phase    Phase
	Percent  int
	Message  string
	Terminal bool
}

// Status is the terminal outcome class of a job.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is the single terminal outcome of a job, delivered strictly after
// its last Event. Err is nil unless Status is StatusFailed.
type Result struct {
	JobID    uint64
	Status   Status
	Err      error
	Duration time.Duration
}
