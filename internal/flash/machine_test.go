package flash

import "testing"

func TestMachineHappyPath(t *testing.T) {
	m := newMachine()
	steps := []Phase{PhaseConnecting, PhaseErasing, PhaseWriting, PhaseVerifying, PhaseResetting, PhaseDone}
	for _, p := range steps {
		if err := m.Advance(p); err != nil {
			t.Fatalf("advance to %s: %v", p, err)
		}
		if m.Phase() != p {
			t.Fatalf("phase = %s, want %s", m.Phase(), p)
		}
	}
}

func TestMachineSkipsOptionalPhases(t *testing.T) {
	// STM32 path with no distinct erase invocation and done straight from verify.
	m := newMachine()
	for _, p := range []Phase{PhaseConnecting, PhaseWriting, PhaseVerifying, PhaseDone} {
		if err := m.Advance(p); err != nil {
			t.Fatalf("advance to %s: %v", p, err)
		}
	}
}

func TestMachineRejectsBackwardTransition(t *testing.T) {
	m := newMachine()
	m.Advance(PhaseConnecting)
	m.Advance(PhaseWriting)
	if err := m.Advance(PhaseErasing); err == nil {
		t.Fatal("expected writing → erasing to be rejected")
	}
}

func TestMachineSamePhaseIsNoop(t *testing.T) {
	m := newMachine()
	m.Advance(PhaseConnecting)
	if err := m.Advance(PhaseConnecting); err != nil {
		t.Fatalf("re-entering current phase should be a no-op, got %v", err)
	}
}

func TestMachineCancelFromAnyNonTerminal(t *testing.T) {
	for _, start := range []Phase{PhaseConnecting, PhaseErasing, PhaseWriting, PhaseVerifying, PhaseResetting} {
		m := newMachine()
		m.Advance(PhaseConnecting)
		if start != PhaseConnecting {
			if start == PhaseErasing || start == PhaseWriting {
				m.Advance(start)
			} else {
				m.Advance(PhaseWriting)
				m.Advance(PhaseVerifying)
				if start == PhaseResetting {
					m.Advance(PhaseResetting)
				}
			}
		}
		if err := m.Advance(PhaseCancelling); err != nil {
			t.Fatalf("cancel from %s: %v", start, err)
		}
		if err := m.Advance(PhaseCancelled); err != nil {
			t.Fatalf("cancelled from cancelling: %v", err)
		}
	}
}

func TestMachineTerminalAbsorbs(t *testing.T) {
	m := newMachine()
	m.Advance(PhaseConnecting)
	m.Advance(PhaseWriting)
	m.Advance(PhaseVerifying)
	m.Advance(PhaseDone)

	for _, p := range []Phase{PhaseConnecting, PhaseCancelling, PhaseFailed} {
		if err := m.Advance(p); err == nil {
			t.Fatalf("expected transition out of done to %s to fail", p)
		}
	}
	if !m.Phase().Terminal() {
		t.Fatal("done should be terminal")
	}
}

func TestMachineFailFromAnywhere(t *testing.T) {
	m := newMachine()
	if err := m.Advance(PhaseFailed); err != nil {
		t.Fatalf("fail from idle: %v", err)
	}

	m = newMachine()
	m.Advance(PhaseConnecting)
	m.Advance(PhaseCancelling)
	if err := m.Advance(PhaseFailed); err != nil {
		t.Fatalf("fail from cancelling: %v", err)
	}
}
