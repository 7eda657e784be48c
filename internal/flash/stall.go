package flash

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errStalled = errors.New("tool produced no output within the phase timeout")

// stallWatch cancels its context when the tool stops producing output for
// longer than the current deadline. Each phase installs its own timeout by
// calling setTimeout; every output line calls touch to push the deadline out.
type stallWatch struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu    sync.Mutex
	timer *time.Timer
	d     time.Duration
}

func newStallWatch(parent context.Context, d time.Duration) *stallWatch {
	ctx, cancel := context.WithCancelCause(parent)
	w := &stallWatch{ctx: ctx, cancel: cancel, d: d}
	w.timer = time.AfterFunc(d, func() { cancel(errStalled) })
	return w
}

func (w *stallWatch) touch() {
	w.mu.Lock()
	w.timer.Reset(w.d)
	w.mu.Unlock()
}

func (w *stallWatch) setTimeout(d time.Duration) {
	w.mu.Lock()
	w.d = d
	w.timer.Reset(d)
	w.mu.Unlock()
}

func (w *stallWatch) stop() {
	w.mu.Lock()
	w.timer.Stop()
	w.mu.Unlock()
	w.cancel(nil)
}

// phaseDeadline picks the stall deadline for a phase. Erase is the one step
// that legitimately goes silent for a long stretch.
func phaseDeadline(p Phase, base time.Duration) time.Duration {
	if p == PhaseErasing {
		return 2 * base
	}
	return base
}

// stalled reports whether the watch fired, as opposed to the parent
// context being cancelled for some other reason.
func (w *stallWatch) stalled() bool {
	return errors.Is(context.Cause(w.ctx), errStalled)
}
