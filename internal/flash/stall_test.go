package flash

import (
	"context"
	"testing"
	"time"
)

func TestStallWatchFiresWithoutOutput(t *testing.T) {
	w := newStallWatch(context.Background(), 10*time.Millisecond)
	defer w.stop()

	select {
	case <-w.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("watch never fired")
	}
	if !w.stalled() {
		t.Fatalf("fired for the wrong reason: %v", context.Cause(w.ctx))
	}
}

func TestStallWatchSetTimeoutExtendsDeadline(t *testing.T) {
	w := newStallWatch(context.Background(), 20*time.Millisecond)
	defer w.stop()

	w.setTimeout(2 * time.Second)
	time.Sleep(100 * time.Millisecond)
	if w.stalled() {
		t.Fatal("watch fired despite extended deadline")
	}
}

func TestPhaseDeadlineDoublesForErase(t *testing.T) {
	base := 30 * time.Second
	if got := phaseDeadline(PhaseErasing, base); got != 2*base {
		t.Errorf("erase deadline = %v, want %v", got, 2*base)
	}
	for _, p := range []Phase{PhaseConnecting, PhaseWriting, PhaseVerifying, PhaseResetting} {
		if got := phaseDeadline(p, base); got != base {
			t.Errorf("%s deadline = %v, want %v", p, got, base)
		}
	}
}
