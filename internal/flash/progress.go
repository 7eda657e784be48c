package flash

import "sync"

// phaseBands maps each working phase onto its slice of the overall 0–100
// percent range. Parsers report per-phase percentages; the tracker projects
// them into the band so the job-level number keeps moving forward.
var phaseBands = map[Phase][2]int{
	PhaseConnecting: {0, 10},
	PhaseErasing:    {10, 25},
	PhaseWriting:    {25, 85},
	PhaseVerifying:  {85, 95},
	PhaseResetting:  {95, 100},
}

// Reporter is how a strategy publishes progress during Execute. Phase moves
// the state machine (and rejects illegal transitions); Percent reports
// completion within the current phase.
type Reporter interface {
	Phase(p Phase, message string) error
	Percent(phasePct float64, message string)
	Message(message string)
	Current() Phase
}

// tracker converts raw strategy progress into the job's Event stream,
// enforcing phase order via the state machine and overall-percent
// monotonicity via clamping. Safe for one producing goroutine; the mutex
// guards against Cancel observing state mid-update.
type tracker struct {
	jobID   uint64
	emit    func(Event)
	mu      sync.Mutex
	machine *machine
	last    int
}

func newTracker(jobID uint64, emit func(Event)) *tracker {
	return &tracker{jobID: jobID, emit: emit, machine: newMachine()}
}

// Phase advances the state machine and emits an event at the phase's band
// floor. Re-entering the current phase only updates the message.
func (tr *tracker) Phase(p Phase, message string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	same := tr.machine.Phase() == p
	if err := tr.machine.Advance(p); err != nil {
		return err
	}
	if same && message == "" {
		return nil
	}

	pct := tr.last
	if band, ok := phaseBands[p]; ok && band[0] > pct {
		pct = band[0]
	}
	tr.emitLocked(p, pct, message, false)
	return nil
}

// Percent reports completion within the current phase as 0–100 and emits an
// event when the overall percent advanced by at least a whole point, or when
// a message is attached.
func (tr *tracker) Percent(phasePct float64, message string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	p := tr.machine.Phase()
	band, ok := phaseBands[p]
	if !ok {
		return
	}

	if phasePct < 0 {
		phasePct = 0
	} else if phasePct > 100 {
		phasePct = 100
	}
	overall := band[0] + int(phasePct/100*float64(band[1]-band[0]))

	if overall <= tr.last && message == "" {
		return
	}
	tr.emitLocked(p, overall, message, false)
}

// Message emits an informational event at the current phase and percent.
func (tr *tracker) Message(message string) {
	if message == "" {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.emitLocked(tr.machine.Phase(), tr.last, message, false)
}

// rewind resets the phase machine so the next attempt can re-enter
// Connecting. The percent clamp is kept, so the overall number never moves
// backwards across attempts.
func (tr *tracker) rewind() {
	tr.mu.Lock()
	tr.machine = newMachine()
	tr.mu.Unlock()
}

// Current returns the phase the job is in.
func (tr *tracker) Current() Phase {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.machine.Phase()
}

// Terminal drives the machine into a terminal phase and emits the final
// event. On success the percent snaps to 100.
func (tr *tracker) Terminal(p Phase, message string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if p == PhaseCancelled {
		// Route through cancelling so the transition stays legal from any
		// working phase.
		if tr.machine.Phase() != PhaseCancelling {
			tr.machine.Advance(PhaseCancelling)
		}
	}
	tr.machine.Advance(p)

	pct := tr.last
	if p == PhaseDone {
		pct = 100
	}
	tr.emitLocked(p, pct, message, true)
}

func (tr *tracker) emitLocked(p Phase, pct int, message string, terminal bool) {
	if pct < tr.last {
		pct = tr.last
	}
	if pct > 100 {
		pct = 100
	}
	tr.last = pct
	tr.emit(Event{
		JobID:    tr.jobID,
		Phase:    p,
		Percent:  pct,
		Message:  message,
		Terminal: terminal,
	})
}
