package bufferhold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/analysis"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/hold"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/retry"
)

// Stop reasons recorded in the report
const (
	StopEOS         = "eos"
	StopError       = "error"
	StopLimit       = "limit"
	StopInterrupted = "interrupted"
	StopRequested   = "stopped"
	StopLaunch      = "launch_failed"
)

// BufferObservation describes one received buffer
type BufferObservation struct {
	Buffer  uint64
	Elapsed time.Duration
	PTS     time.Duration
	HasPTS  bool
	Size    int

	// Interval to the previous PTS, valid when HasInterval
	Interval    time.Duration
	HasInterval bool

	// Held is the number of held buffers before this one was added
	Held int

	// Gap is set when a PTS discontinuity was detected at this buffer
	Gap *Gap
}

// Stats is a live snapshot of a running test
type Stats struct {
	RunID       string        `json:"run_id"`
	Buffers     uint64        `json:"buffers"`
	Gaps        int           `json:"gaps"`
	Dropped     uint64        `json:"estimated_dropped"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Held        int           `json:"held"`
	QoSMessages uint64        `json:"qos_messages"`
	Warnings    uint64        `json:"warnings"`
	Restarts    uint32        `json:"restarts"`
}

// Option configures a Test
type Option func(*Test)

// WithCapture replaces the GStreamer session, mostly for tests and
// alternative sources.
func WithCapture(c Capture) Option {
	return func(t *Test) { t.capture = c }
}

// WithBufferObserver is called on the streaming thread for every buffer,
// before the hold is applied.
func WithBufferObserver(fn func(BufferObservation)) Option {
	return func(t *Test) { t.onBuffer = fn }
}

// WithEventObserver is called from the bus monitor for every bus event.
func WithEventObserver(fn func(Event)) Option {
	return func(t *Test) { t.onEvent = fn }
}

// WithMetrics records the run into a Prometheus recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(t *Test) { t.metrics = r }
}

// WithRetryDelays overrides the start retry backoff delays.
func WithRetryDelays(initial, maxDelay time.Duration) Option {
	return func(t *Test) {
		t.retryCfg.RetryDelay = initial
		t.retryCfg.MaxRetryDelay = maxDelay
	}
}

// Test is one buffer-hold run
type Test struct {
	cfg      Config
	runID    string
	launch   string
	capture  Capture
	holdTime time.Duration

	tracker  *analysis.Tracker
	held     *hold.Queue
	metrics  *metrics.Recorder
	onBuffer func(BufferObservation)
	onEvent  func(Event)

	retryCfg retry.Config
	restarts uint32

	// Lifecycle
	started      atomic.Bool
	limitReached atomic.Bool
	mu           sync.Mutex
	cancel       context.CancelFunc
	stopRequest  bool

	// Bus telemetry, guarded by busMu
	busMu       sync.Mutex
	warnings    []string
	qosMessages uint64
	qosDropped  uint64
}

// NewTest creates a test with fail-fast validation
//
// The configuration is validated and the launch string is built at
// construction time. The GStreamer session is created lazily by Run, so
// NewTest does not require a GStreamer runtime.
func NewTest(cfg Config, opts ...Option) (*Test, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("buffer-hold: invalid config: %w", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.StartRetries

	t := &Test{
		cfg:      cfg,
		runID:    uuid.New().String(),
		launch:   cfg.Launch(),
		holdTime: time.Duration(cfg.HoldTimeMS) * time.Millisecond,
		tracker:  analysis.NewTracker(cfg.FPS),
		held:     hold.NewQueue(cfg.HoldBuffers),
		retryCfg: retryCfg,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.capture == nil {
		t.capture = pipeline.NewSession(t.launch, cfg.requires()...)
	}

	slog.Info("buffer-hold: test created",
		"run_id", t.runID,
		"source", cfg.Source,
		"resolution", cfg.Resolution.String(),
		"fps", cfg.FPS,
		"hold_time_ms", cfg.HoldTimeMS,
		"hold_buffers", cfg.HoldBuffers,
		"num_buffers", cfg.NumBuffers,
	)

	return t, nil
}

// RunID returns the unique id of this run
func (t *Test) RunID() string {
	return t.runID
}

// Config returns the test configuration
func (t *Test) Config() Config {
	return t.cfg
}

// Launch returns the pipeline description of the capture
func (t *Test) Launch() string {
	return t.capture.Launch()
}

// Check verifies that the capture can be built, for captures that
// support it. Errors wrap ErrLaunch.
func (t *Test) Check() error {
	c, ok := t.capture.(pipeline.Checker)
	if !ok {
		return nil
	}
	return c.Check()
}

// Run executes the test until the buffer limit, EOS, a pipeline error,
// Stop, or ctx cancellation.
//
// Held buffers are released after the pipeline has been torn down. The
// returned report is never nil. The error wraps ErrLaunch when the
// pipeline could not be started, or is a *BusError when the pipeline
// failed while running; cancellation is not an error.
func (t *Test) Run(ctx context.Context) (*Report, error) {
	if !t.started.CompareAndSwap(false, true) {
		return nil, errors.New("buffer-hold: test already run")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	stopNow := t.stopRequest
	t.mu.Unlock()
	if stopNow {
		cancel()
	}

	startedAt := time.Now()
	slog.Info("buffer-hold: starting", "run_id", t.runID, "launch", t.launch)

	h := &handler{t: t}
	state := &retry.State{Retries: &t.restarts}
	err := retry.Run(runCtx, func(ctx context.Context) error {
		return t.capture.Run(ctx, h)
	}, t.retryCfg, state, t.shouldRestart)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	released := t.held.Drain()
	t.metrics.SetHeld(0)
	if released > 0 {
		slog.Debug("buffer-hold: released held buffers", "count", released)
	}

	report := t.buildReport(startedAt, ctx.Err() != nil, err)

	slog.Info("buffer-hold: finished",
		"run_id", t.runID,
		"buffers", report.Buffers,
		"gaps", len(report.Gaps),
		"estimated_dropped", report.EstimatedDropped,
		"stop_reason", report.StopReason,
	)

	return report, err
}

// shouldRestart allows a start retry only while nothing has been received
// and the failure is not a build without GStreamer support.
func (t *Test) shouldRestart(err error) bool {
	if t.tracker.Count() > 0 || t.limitReached.Load() {
		return false
	}
	if errors.Is(err, pipeline.ErrCGORequired) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopRequest
}

// Stop requests the run to end. It never blocks, so it is safe to call
// from the streaming thread or a signal handler, and may be called more
// than once.
func (t *Test) Stop() {
	t.mu.Lock()
	t.stopRequest = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stats returns a live snapshot (thread-safe)
func (t *Test) Stats() Stats {
	p := t.tracker.Progress()

	t.busMu.Lock()
	qos := t.qosMessages
	warnings := uint64(len(t.warnings))
	t.busMu.Unlock()

	return Stats{
		RunID:       t.runID,
		Buffers:     p.Buffers,
		Gaps:        p.Gaps,
		Dropped:     p.Dropped,
		Elapsed:     p.Elapsed,
		Held:        t.held.Len(),
		QoSMessages: qos,
		Warnings:    warnings,
		Restarts:    atomic.LoadUint32(&t.restarts),
	}
}

func (t *Test) buildReport(startedAt time.Time, interrupted bool, runErr error) *Report {
	summary := analysis.Summarize(t.tracker.Snapshot(), t.cfg.FPS)
	holdStats := t.held.Stats()
	width, height := t.cfg.Resolution.Dimensions()

	t.busMu.Lock()
	defer t.busMu.Unlock()

	r := &Report{
		RunID:            t.runID,
		StartedAt:        startedAt,
		Config:           t.cfg,
		Launch:           t.launch,
		Width:            width,
		Height:           height,
		Duration:         summary.Duration,
		Buffers:          summary.Buffers,
		ExpectedFrames:   summary.ExpectedFrames,
		ActualFPS:        summary.ActualFPS,
		Gaps:             summary.Gaps,
		EstimatedDropped: summary.EstimatedDropped,
		DropRate:         summary.DropRate,
		Intervals:        summary.Intervals,
		PeakHeld:         holdStats.Peak,
		Evicted:          holdStats.Evicted,
		QoSMessages:      t.qosMessages,
		QoSDropped:       t.qosDropped,
		Warnings:         append([]string(nil), t.warnings...),
		Restarts:         atomic.LoadUint32(&t.restarts),
	}

	var busErr *BusError
	switch {
	case errors.As(runErr, &busErr):
		r.StopReason = StopError
		r.Error = &ErrorInfo{
			Category: busErr.Category.String(),
			Message:  busErr.Message,
			Debug:    busErr.Debug,
		}
	case runErr != nil:
		r.StopReason = StopLaunch
		r.Error = &ErrorInfo{Category: "launch", Message: runErr.Error()}
	case t.limitReached.Load():
		r.StopReason = StopLimit
	case interrupted:
		r.StopReason = StopInterrupted
	case t.stopped():
		r.StopReason = StopRequested
	default:
		r.StopReason = StopEOS
	}

	return r
}

func (t *Test) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopRequest
}

// handler adapts a Test to pipeline.Handler
type handler struct {
	t *Test
}

// OnBuffer runs on the streaming thread
//
// Order matters: the observation is emitted with the number of buffers
// held before this one, then the hold time elapses, then the buffer is
// retained.
func (h *handler) OnBuffer(buf Buffer) {
	t := h.t
	if t.limitReached.Load() {
		// Late buffers between the stop request and teardown
		return
	}

	pts, hasPTS := buf.PTS()
	held := t.held.Len()
	obs := t.tracker.Observe(pts, hasPTS, time.Now())

	t.metrics.Buffer(obs.Interval, obs.HasInterval)
	if obs.Gap != nil {
		t.metrics.Gap(obs.Gap.Frames)
		slog.Debug("buffer-hold: pts gap",
			"buffer", obs.Buffer,
			"frames", obs.Gap.Frames,
			"interval", obs.Gap.Interval,
		)
	}

	if t.onBuffer != nil {
		t.onBuffer(BufferObservation{
			Buffer:      obs.Buffer,
			Elapsed:     obs.Elapsed,
			PTS:         obs.PTS,
			HasPTS:      obs.HasPTS,
			Size:        buf.Size(),
			Interval:    obs.Interval,
			HasInterval: obs.HasInterval,
			Held:        held,
			Gap:         obs.Gap,
		})
	}

	if t.holdTime > 0 {
		time.Sleep(t.holdTime)
	}

	if t.cfg.HoldBuffers > 0 {
		t.held.Push(hold.Release(buf.Retain()))
		t.metrics.SetHeld(t.held.Len())
	}

	if t.cfg.NumBuffers > 0 && obs.Buffer >= uint64(t.cfg.NumBuffers) {
		if t.limitReached.CompareAndSwap(false, true) {
			slog.Info("buffer-hold: buffer limit reached", "num_buffers", t.cfg.NumBuffers)
			t.Stop()
		}
	}
}

// OnEvent runs on the bus monitor goroutine
func (h *handler) OnEvent(ev Event) {
	t := h.t
	t.metrics.BusMessage(ev.Kind.String())

	t.busMu.Lock()
	switch ev.Kind {
	case EventWarning:
		t.warnings = append(t.warnings, ev.Message)
	case EventQoS:
		t.qosMessages++
		t.qosDropped = ev.Dropped
	}
	t.busMu.Unlock()

	if ev.Kind == EventQoS {
		t.metrics.QoSDropped(ev.Dropped)
	}

	if t.onEvent != nil {
		t.onEvent(ev)
	}
}
