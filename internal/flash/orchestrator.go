package flash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buckleypaul/surge/internal/config"
	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/firmware"
	"github.com/buckleypaul/surge/internal/transport"
)

var errJobCancelled = errors.New("job cancelled")

// Job is a handle to one background upload. Events delivers progress until
// the terminal event, then closes; Result delivers exactly one outcome
// strictly after Events closes. Callers must drain Events.
type Job struct {
	ID        uint64
	Transport transport.Transport
	Family    device.Family
	Events    <-chan Event
	Result    <-chan Result

	cancel context.CancelCauseFunc
}

// Cancel requests cooperative cancellation. Safe to call repeatedly and
// after the job finished; the first call wins, the rest are no-ops.
func (j *Job) Cancel() {
	j.cancel(errJobCancelled)
}

// Orchestrator runs uploads as background jobs: one job per transport at a
// time, each with a wall-clock ceiling, cooperative cancellation, and a
// progress event stream.
type Orchestrator struct {
	strategies map[device.Family]Strategy
	log        *zap.Logger

	ceiling        time.Duration
	connectRetries int

	mu     sync.Mutex
	nextID uint64
	active map[string]*Job // keyed by transport name
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithCeiling overrides the wall-clock limit a job may run for.
func WithCeiling(d time.Duration) Option {
	return func(o *Orchestrator) { o.ceiling = d }
}

// WithConnectRetries sets how many automatic retries a connect-phase
// device failure gets.
func WithConnectRetries(n int) Option {
	return func(o *Orchestrator) { o.connectRetries = n }
}

// WithLogger replaces the default logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithStrategy registers or replaces the strategy for its family.
func WithStrategy(s Strategy) Option {
	return func(o *Orchestrator) { o.strategies[s.Family()] = s }
}

// NewOrchestrator builds an orchestrator with both family strategies wired
// from cfg. Options can override any of it, including the strategies.
func NewOrchestrator(cfg config.Config, log *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		strategies:     map[device.Family]Strategy{},
		log:            log.Named("orchestrator"),
		ceiling:        time.Duration(cfg.JobCeilingSec) * time.Second,
		connectRetries: cfg.ConnectRetries,
		active:         make(map[string]*Job),
	}
	o.strategies[device.FamilySTM32] = NewSTM32Strategy(cfg, log)
	o.strategies[device.FamilyESP32] = NewESP32Strategy(cfg, log)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit starts an upload on the given transport and returns its handle.
// It fails fast, before any strategy work, when the family is unknown or the
// transport already has an active job.
func (o *Orchestrator) Submit(ctx context.Context, t transport.Transport, art firmware.Artifact) (*Job, error) {
	family := device.Classify(t)
	strategy, ok := o.strategies[family]
	if !ok {
		return nil, newError(ErrUnknown, PhaseIdle, "cannot flash %s: unrecognized device family", t.Name)
	}

	o.mu.Lock()
	if _, busy := o.active[t.Name]; busy {
		o.mu.Unlock()
		return nil, newError(ErrTransportBusy, PhaseIdle, "%s already has an active job", t.Name)
	}
	o.nextID++
	id := o.nextID

	events := make(chan Event, 64)
	result := make(chan Result, 1)
	jobCtx, timeoutCancel := context.WithTimeout(ctx, o.ceiling)
	jobCtx, cancel := context.WithCancelCause(jobCtx)

	job := &Job{
		ID:        id,
		Transport: t,
		Family:    family,
		Events:    events,
		Result:    result,
		cancel:    cancel,
	}
	o.active[t.Name] = job
	o.mu.Unlock()

	go o.run(jobCtx, timeoutCancel, job, strategy, art, events, result)
	return job, nil
}

// CancelAll cancels every active job.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	jobs := make([]*Job, 0, len(o.active))
	for _, j := range o.active {
		jobs = append(jobs, j)
	}
	o.mu.Unlock()
	for _, j := range jobs {
		j.Cancel()
	}
}

// Active returns the job currently holding the named transport, or nil.
func (o *Orchestrator) Active(transportName string) *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[transportName]
}

func (o *Orchestrator) run(ctx context.Context, timeoutCancel context.CancelFunc,
	job *Job, strategy Strategy, art firmware.Artifact,
	events chan<- Event, result chan<- Result) {

	started := time.Now()
	tr := newTracker(job.ID, func(e Event) { events <- e })
	log := o.log.With(zap.Uint64("job", job.ID), zap.String("port", job.Transport.Name))

	err := o.attempt(ctx, job, strategy, art, tr)

	var res Result
	switch {
	case err == nil:
		tr.Terminal(PhaseDone, "upload complete")
		res = Result{JobID: job.ID, Status: StatusSuccess}
		log.Info("upload complete", zap.Duration("took", time.Since(started)))

	case context.Cause(ctx) == errJobCancelled:
		tr.Terminal(PhaseCancelled, "cancelled by user")
		res = Result{JobID: job.ID, Status: StatusCancelled}
		log.Info("upload cancelled")

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		terr := newError(ErrTimeout, tr.Current(), "exceeded %s job ceiling", o.ceiling)
		tr.Terminal(PhaseFailed, terr.Detail)
		res = Result{JobID: job.ID, Status: StatusFailed, Err: terr}
		log.Warn("upload timed out", zap.Duration("ceiling", o.ceiling))

	case ctx.Err() != nil:
		// Parent context died; treat like a cancel.
		tr.Terminal(PhaseCancelled, "cancelled")
		res = Result{JobID: job.ID, Status: StatusCancelled}

	default:
		tr.Terminal(PhaseFailed, err.Error())
		res = Result{JobID: job.ID, Status: StatusFailed, Err: err}
		log.Warn("upload failed", zap.Error(err))
	}
	res.Duration = time.Since(started)

	timeoutCancel()
	job.cancel(nil)

	o.mu.Lock()
	delete(o.active, job.Transport.Name)
	o.mu.Unlock()

	// Events closes before the result is sent so consumers always observe
	// the terminal event first.
	close(events)
	result <- res
	close(result)
}

// attempt runs Prepare and Execute, granting connect-phase device failures
// the configured number of automatic retries. Verification mismatches and
// artifact problems are never retried.
func (o *Orchestrator) attempt(ctx context.Context, job *Job, strategy Strategy,
	art firmware.Artifact, tr *tracker) error {

	var err error
	for try := 0; ; try++ {
		err = o.once(ctx, job, strategy, art, tr)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if try >= o.connectRetries || !retriable(err) {
			return err
		}
		tr.Message(fmt.Sprintf("device unreachable, retrying (%d/%d)", try+1, o.connectRetries))
		o.log.Info("retrying after connect failure", zap.Uint64("job", job.ID), zap.Int("attempt", try+1))
		// The failed attempt may have advanced past Connecting (an erase
		// before the connect loss, say); rewind so Execute can start over.
		tr.rewind()
		time.Sleep(500 * time.Millisecond)
	}
}

func (o *Orchestrator) once(ctx context.Context, job *Job, strategy Strategy,
	art firmware.Artifact, tr *tracker) error {

	ready, err := strategy.Prepare(ctx, job.Transport, art)
	if err != nil {
		return err
	}
	return strategy.Execute(ctx, ready, tr)
}

// retriable is true only for device failures during connect. Anything the
// device already partially executed is not safe to blindly repeat.
func retriable(err error) bool {
	return KindOf(err) == ErrDeviceUnreachable && PhaseOf(err) == PhaseConnecting
}
