package flash

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Transition event names for the upload state machine.
const (
	evConnect   = "connect"
	evErase     = "erase"
	evWrite     = "write"
	evVerify    = "verify"
	evReset     = "reset"
	evFinish    = "finish"
	evCancel    = "cancel"
	evCancelled = "cancelled"
	evFail      = "fail"
)

// phaseEvents maps a target phase to the event that reaches it.
var phaseEvents = map[Phase]string{
	PhaseConnecting: evConnect,
	PhaseErasing:    evErase,
	PhaseWriting:    evWrite,
	PhaseVerifying:  evVerify,
	PhaseResetting:  evReset,
	PhaseDone:       evFinish,
	PhaseCancelling: evCancel,
	PhaseCancelled:  evCancelled,
	PhaseFailed:     evFail,
}

var nonTerminal = []string{
	string(PhaseIdle),
	string(PhaseConnecting),
	string(PhaseErasing),
	string(PhaseWriting),
	string(PhaseVerifying),
	string(PhaseResetting),
}

// machine enforces the shared upload phase order:
//
//	Idle → Connecting → (Erasing) → Writing → Verifying → (Resetting) → Done
//
// Cancelling is reachable from any non-terminal phase, Failed from anywhere
// that is not already terminal. Done, Failed and Cancelled absorb.
type machine struct {
	fsm *fsm.FSM
}

func newMachine() *machine {
	return &machine{fsm: fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: evConnect, Src: []string{string(PhaseIdle)}, Dst: string(PhaseConnecting)},
			{Name: evErase, Src: []string{string(PhaseConnecting)}, Dst: string(PhaseErasing)},
			{Name: evWrite, Src: []string{string(PhaseConnecting), string(PhaseErasing)}, Dst: string(PhaseWriting)},
			{Name: evVerify, Src: []string{string(PhaseWriting)}, Dst: string(PhaseVerifying)},
			{Name: evReset, Src: []string{string(PhaseVerifying)}, Dst: string(PhaseResetting)},
			{Name: evFinish, Src: []string{string(PhaseVerifying), string(PhaseResetting)}, Dst: string(PhaseDone)},
			{Name: evCancel, Src: nonTerminal, Dst: string(PhaseCancelling)},
			{Name: evCancelled, Src: append(append([]string{}, nonTerminal...), string(PhaseCancelling)), Dst: string(PhaseCancelled)},
			{Name: evFail, Src: append(append([]string{}, nonTerminal...), string(PhaseCancelling)), Dst: string(PhaseFailed)},
		},
		fsm.Callbacks{},
	)}
}

// Phase returns the current phase.
func (m *machine) Phase() Phase {
	return Phase(m.fsm.Current())
}

// Advance moves the machine to the target phase. Advancing to the phase the
// machine is already in is a no-op, which keeps connect retries simple.
func (m *machine) Advance(to Phase) error {
	if m.Phase() == to {
		return nil
	}
	name, ok := phaseEvents[to]
	if !ok {
		return fmt.Errorf("no transition to phase %q", to)
	}
	if err := m.fsm.Event(context.Background(), name); err != nil {
		return fmt.Errorf("illegal transition %s → %s: %w", m.Phase(), to, err)
	}
	return nil
}
