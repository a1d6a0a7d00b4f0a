// Package host drives a rulekit Process at a fixed frame rate and connects it to
// the outside world: configuration reloads, scheduled restarts and the status
// endpoint. Everything that touches the Process happens between two frames on
// the loop goroutine.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/rulekit"
	"github.com/GoCodeAlone/rulekit/config"
	"github.com/GoCodeAlone/rulekit/health"
	"github.com/GoCodeAlone/rulekit/logging"
)

// Static errors for the host
var (
	ErrNoProcess       = errors.New("host has no process")
	ErrInvalidFrame    = errors.New("frame duration must be positive")
	ErrShutdownTimeout = errors.New("process did not stop in time")
)

// DefaultShutdownFrames bounds the number of frames spent unwinding after the
// context is cancelled.
const DefaultShutdownFrames = 600

// Host owns the frame loop of one Process.
type Host struct {
	proc   *rulekit.Process
	clock  *rulekit.FrameClock
	frame  time.Duration
	logger *logging.Facade

	health *health.Aggregator

	changes <-chan config.Change
	reload  func() error

	restart   cron.Schedule
	nextCycle time.Time

	statusAddr     string
	server         *http.Server
	shutdownFrames int
	now            func() time.Time
}

// Option configures a Host.
type Option func(*Host) error

// WithFrameDuration sets the time between two frames.
func WithFrameDuration(d time.Duration) Option {
	return func(h *Host) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidFrame, d)
		}
		h.frame = d
		return nil
	}
}

// WithLogger sets the facade used for host lines.
func WithLogger(f *logging.Facade) Option {
	return func(h *Host) error {
		h.logger = f
		return nil
	}
}

// WithHealth publishes a process snapshot into agg after every frame.
func WithHealth(agg *health.Aggregator) Option {
	return func(h *Host) error {
		h.health = agg
		return nil
	}
}

// WithStatusServer serves the health router on addr while Run is active.
// It implies WithHealth with the default checkers unless one was given.
func WithStatusServer(addr string) Option {
	return func(h *Host) error {
		h.statusAddr = addr
		return nil
	}
}

// WithConfigReload calls reload between frames whenever changes delivers.
func WithConfigReload(changes <-chan config.Change, reload func() error) Option {
	return func(h *Host) error {
		h.changes = changes
		h.reload = reload
		return nil
	}
}

// WithRestartSchedule restarts the process each time schedule fires.
func WithRestartSchedule(schedule cron.Schedule) Option {
	return func(h *Host) error {
		h.restart = schedule
		return nil
	}
}

// WithShutdownFrames overrides DefaultShutdownFrames.
func WithShutdownFrames(n int) Option {
	return func(h *Host) error {
		h.shutdownFrames = n
		return nil
	}
}

// WithNow replaces the wall clock used for restart scheduling.
func WithNow(now func() time.Time) Option {
	return func(h *Host) error {
		h.now = now
		return nil
	}
}

// New creates a host for proc, which must have been built with clock.
func New(proc *rulekit.Process, clock *rulekit.FrameClock, opts ...Option) (*Host, error) {
	if proc == nil {
		return nil, ErrNoProcess
	}
	h := &Host{
		proc:           proc,
		clock:          clock,
		frame:          time.Second / 60,
		logger:         logging.NewText(io.Discard),
		shutdownFrames: DefaultShutdownFrames,
		now:            time.Now,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.statusAddr != "" && h.health == nil {
		h.health = health.NewAggregator()
	}
	if h.restart != nil {
		h.nextCycle = h.restart.Next(h.now())
	}
	return h, nil
}

// Process returns the driven process.
func (h *Host) Process() *rulekit.Process {
	return h.proc
}

// Health returns the aggregator fed by the loop, or nil.
func (h *Host) Health() *health.Aggregator {
	return h.health
}

// NextRestart returns when the restart schedule fires next, or the zero time.
func (h *Host) NextRestart() time.Time {
	return h.nextCycle
}

// Step runs one frame: pending host requests first, then FixedUpdate, Update and
// LateUpdate, then the health snapshot.
func (h *Host) Step(dt time.Duration) {
	h.between()
	h.clock.Advance(dt)
	h.proc.FixedUpdate()
	h.proc.Update()
	h.proc.LateUpdate()
	if h.health != nil {
		h.health.Publish(h.proc.Snapshot())
	}
}

// between applies requests that arrived since the previous frame.
func (h *Host) between() {
	if h.changes != nil {
		select {
		case change, ok := <-h.changes:
			if !ok {
				h.changes = nil
				break
			}
			h.logger.Info(logging.DefaultTag, "Configuration changed", "path", change.Path, "op", change.Op)
			if h.reload != nil {
				if err := h.reload(); err != nil {
					h.logger.Exception(logging.DefaultTag, fmt.Errorf("reload configuration: %w", err))
				}
			}
		default:
		}
	}

	if h.restart != nil {
		if now := h.now(); !now.Before(h.nextCycle) {
			h.nextCycle = h.restart.Next(now)
			if h.proc.State() == rulekit.ProcessRunning || h.proc.State() == rulekit.ProcessPaused {
				h.logger.Info(logging.DefaultTag, "Scheduled restart", "next", h.nextCycle)
				h.proc.Restart()
			}
		}
	}
}

// Run starts the process when needed and drives it until it stops or ctx is
// cancelled. On cancellation the process is stopped and unwound for at most the
// configured number of shutdown frames.
func (h *Host) Run(ctx context.Context) error {
	if h.proc.State() == rulekit.ProcessCreated {
		h.proc.Start()
	}
	if h.statusAddr != "" {
		h.startStatus()
		defer h.stopStatus()
	}

	ticker := time.NewTicker(h.frame)
	defer ticker.Stop()

	for !h.proc.Done() {
		select {
		case <-ctx.Done():
			return h.shutdown()
		case <-ticker.C:
			h.Step(h.frame)
		}
	}
	h.logger.Info(logging.DefaultTag, "Process stopped", "frames", h.clock.FrameCount())
	return nil
}

func (h *Host) shutdown() error {
	switch h.proc.State() {
	case rulekit.ProcessRunning, rulekit.ProcessPaused:
		h.proc.Stop()
	case rulekit.ProcessCreated, rulekit.ProcessStopping, rulekit.ProcessStopped:
	}
	for i := 0; i < h.shutdownFrames && !h.proc.Done(); i++ {
		h.Step(h.frame)
	}
	if !h.proc.Done() {
		return fmt.Errorf("%w after %d frames", ErrShutdownTimeout, h.shutdownFrames)
	}
	h.logger.Info(logging.DefaultTag, "Process stopped on shutdown", "frames", h.clock.FrameCount())
	return nil
}

func (h *Host) startStatus() {
	h.server = &http.Server{
		Addr:              h.statusAddr,
		Handler:           health.NewRouter(h.health),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		h.logger.Info(logging.DefaultTag, "Starting status server", "address", h.statusAddr)
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error(logging.DefaultTag, "Status server error", "error", err)
		}
	}()
}

func (h *Host) stopStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Warning(logging.DefaultTag, "Status server shutdown", "error", err)
	}
}
