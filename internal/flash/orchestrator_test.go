package flash

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/buckleypaul/surge/internal/config"
	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/firmware"
	"github.com/buckleypaul/surge/internal/transport"
)

// fakeStrategy scripts Prepare and Execute and counts Prepare calls.
type fakeStrategy struct {
	family  device.Family
	prepare func(int) error // attempt number, nil means success
	execute func(ctx context.Context, rep Reporter) error

	mu       sync.Mutex
	prepares int
}

func (f *fakeStrategy) Family() device.Family { return f.family }

func (f *fakeStrategy) Prepare(_ context.Context, t transport.Transport, art firmware.Artifact) (*Ready, error) {
	f.mu.Lock()
	f.prepares++
	n := f.prepares
	f.mu.Unlock()
	if f.prepare != nil {
		if err := f.prepare(n); err != nil {
			return nil, err
		}
	}
	return &Ready{Transport: t, Artifact: art}, nil
}

func (f *fakeStrategy) Execute(ctx context.Context, _ *Ready, rep Reporter) error {
	if f.execute != nil {
		return f.execute(ctx, rep)
	}
	return nil
}

func (f *fakeStrategy) prepareCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepares
}

func happyExecute(_ context.Context, rep Reporter) error {
	rep.Phase(PhaseConnecting, "connecting")
	rep.Phase(PhaseWriting, "writing")
	rep.Percent(100, "")
	rep.Phase(PhaseVerifying, "verifying")
	return nil
}

func newTestOrchestrator(t *testing.T, s *fakeStrategy, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithStrategy(s)}, opts...)
	return NewOrchestrator(config.Defaults(), zap.NewNop(), opts...)
}

func drain(t *testing.T, job *Job) ([]Event, Result) {
	t.Helper()
	var events []Event
	for e := range job.Events {
		events = append(events, e)
	}
	select {
	case res := <-job.Result:
		return events, res
	case <-time.After(5 * time.Second):
		t.Fatal("no result after events closed")
		return nil, Result{}
	}
}

func TestSubmitRejectsUnknownFamily(t *testing.T) {
	o := newTestOrchestrator(t, &fakeStrategy{family: device.FamilyESP32})

	mystery := transport.Transport{Name: "/dev/ttyS0"}
	_, err := o.Submit(context.Background(), mystery, firmware.Artifact{})
	if err == nil {
		t.Fatal("expected unknown-family rejection")
	}
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("rejection is not a typed upload error: %v", err)
	}
}

func TestSubmitRejectsBusyTransport(t *testing.T) {
	release := make(chan struct{})
	s := &fakeStrategy{
		family: device.FamilyESP32,
		execute: func(ctx context.Context, rep Reporter) error {
			rep.Phase(PhaseConnecting, "")
			<-release
			return nil
		},
	}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if KindOf(err) != ErrTransportBusy {
		t.Fatalf("want ErrTransportBusy, got %v", err)
	}
	if got := s.prepareCount(); got != 1 {
		t.Errorf("rejected submit still reached Prepare: %d calls", got)
	}

	close(release)
	if _, res := drain(t, job); res.Status != StatusSuccess {
		t.Fatalf("first job = %v", res.Status)
	}

	// The transport frees up once the job finishes.
	job2, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatalf("resubmit after completion: %v", err)
	}
	drain(t, job2)
}

func TestJobEmitsExactlyOneTerminalEventLast(t *testing.T) {
	s := &fakeStrategy{family: device.FamilyESP32, execute: happyExecute}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	events, res := drain(t, job)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	terminals := 0
	for i, e := range events {
		if e.Terminal {
			terminals++
			if i != len(events)-1 {
				t.Errorf("terminal event at index %d of %d", i, len(events))
			}
			if e.Phase != PhaseDone || e.Percent != 100 {
				t.Errorf("terminal event = %+v", e)
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want 1", terminals)
	}

	last := -1
	for _, e := range events {
		if e.Percent < last {
			t.Fatalf("percent regressed: %d after %d", e.Percent, last)
		}
		last = e.Percent
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := &fakeStrategy{
		family: device.FamilyESP32,
		execute: func(ctx context.Context, rep Reporter) error {
			rep.Phase(PhaseConnecting, "")
			rep.Phase(PhaseWriting, "")
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	job.Cancel()
	job.Cancel()

	events, res := drain(t, job)
	if res.Status != StatusCancelled {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	final := events[len(events)-1]
	if final.Phase != PhaseCancelled || !final.Terminal {
		t.Fatalf("final event = %+v", final)
	}

	job.Cancel() // after completion, still a no-op
}

func TestJobCeilingTimesOut(t *testing.T) {
	s := &fakeStrategy{
		family: device.FamilyESP32,
		execute: func(ctx context.Context, rep Reporter) error {
			rep.Phase(PhaseConnecting, "")
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := newTestOrchestrator(t, s, WithCeiling(50*time.Millisecond))

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	_, res := drain(t, job)

	if res.Status != StatusFailed {
		t.Fatalf("status = %v", res.Status)
	}
	if KindOf(res.Err) != ErrTimeout {
		t.Fatalf("want ErrTimeout, got %v", res.Err)
	}
}

func TestConnectFailureRetriesOnce(t *testing.T) {
	s := &fakeStrategy{
		family: device.FamilyESP32,
		prepare: func(attempt int) error {
			if attempt == 1 {
				return newError(ErrDeviceUnreachable, PhaseConnecting, "no sync")
			}
			return nil
		},
		execute: happyExecute,
	}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	_, res := drain(t, job)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if got := s.prepareCount(); got != 2 {
		t.Fatalf("prepare calls = %d, want 2", got)
	}
}

func TestConnectFailureAfterEraseIsRetried(t *testing.T) {
	// A full-erase flow advances to Erasing before the write invocation can
	// still lose the device at connect. The retry must be able to re-enter
	// Connecting from a fresh machine.
	attempts := 0
	s := &fakeStrategy{
		family: device.FamilyESP32,
		execute: func(ctx context.Context, rep Reporter) error {
			attempts++
			if err := rep.Phase(PhaseConnecting, ""); err != nil {
				return err
			}
			if err := rep.Phase(PhaseErasing, ""); err != nil {
				return err
			}
			if attempts == 1 {
				return newError(ErrDeviceUnreachable, PhaseConnecting, "lost sync after erase")
			}
			rep.Phase(PhaseWriting, "")
			rep.Percent(100, "")
			rep.Phase(PhaseVerifying, "")
			return nil
		},
	}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	events, res := drain(t, job)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if attempts != 2 {
		t.Fatalf("execute calls = %d, want 2", attempts)
	}
	last := -1
	for _, e := range events {
		if e.Percent < last {
			t.Fatalf("percent regressed across retry: %d after %d", e.Percent, last)
		}
		last = e.Percent
	}
}

func TestVerificationMismatchIsNeverRetried(t *testing.T) {
	s := &fakeStrategy{
		family: device.FamilyESP32,
		execute: func(ctx context.Context, rep Reporter) error {
			rep.Phase(PhaseConnecting, "")
			rep.Phase(PhaseWriting, "")
			return newError(ErrVerificationMismatch, PhaseVerifying, "hash mismatch")
		},
	}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	_, res := drain(t, job)

	if res.Status != StatusFailed || KindOf(res.Err) != ErrVerificationMismatch {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if got := s.prepareCount(); got != 1 {
		t.Fatalf("prepare calls = %d, want 1", got)
	}
}

func TestMidWriteDeviceLossFailsWithoutRetry(t *testing.T) {
	s := &fakeStrategy{
		family: device.FamilyESP32,
		execute: func(ctx context.Context, rep Reporter) error {
			rep.Phase(PhaseConnecting, "")
			rep.Phase(PhaseWriting, "")
			rep.Percent(40, "")
			return newError(ErrDeviceUnreachable, PhaseWriting, "port vanished")
		},
	}
	o := newTestOrchestrator(t, s)

	job, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatal(err)
	}
	_, res := drain(t, job)

	if res.Status != StatusFailed || KindOf(res.Err) != ErrDeviceUnreachable {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if got := s.prepareCount(); got != 1 {
		t.Fatalf("mid-write failure was retried: %d prepares", got)
	}

	// And the transport is free again.
	s.execute = happyExecute
	job2, err := o.Submit(context.Background(), cp210x(), firmware.Artifact{})
	if err != nil {
		t.Fatalf("transport still locked: %v", err)
	}
	drain(t, job2)
}
