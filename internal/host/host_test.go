package host

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rulekit"
	"github.com/GoCodeAlone/rulekit/config"
	"github.com/GoCodeAlone/rulekit/health"
	"github.com/GoCodeAlone/rulekit/logging"
)

type countRule struct {
	rulekit.BaseRule
	updates int
}

func (r *countRule) Initialize() error { r.MarkInitialized(); return nil }
func (r *countRule) Update() error     { r.updates++; return nil }
func (r *countRule) Unload() error     { r.MarkUnloaded(); return nil }

func newProcess(t *testing.T) (*rulekit.Process, *rulekit.FrameClock) {
	t.Helper()
	clock := rulekit.NewFrameClock()
	svc := &rulekit.Setup{Name: "svc", Rules: func() []rulekit.Rule { return []rulekit.Rule{&countRule{}} }}
	proc, err := rulekit.NewProcess(svc, rulekit.WithClock(clock))
	require.NoError(t, err)
	return proc, clock
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrNoProcess)

	proc, clock := newProcess(t)
	_, err = New(proc, clock, WithFrameDuration(0))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	h, err := New(proc, clock, WithStatusServer("127.0.0.1:0"))
	require.NoError(t, err)
	assert.NotNil(t, h.Health(), "status server implies an aggregator")
	assert.Same(t, proc, h.Process())
}

func TestStep_PublishesSnapshot(t *testing.T) {
	proc, clock := newProcess(t)
	agg := health.NewAggregator()
	h, err := New(proc, clock, WithHealth(agg))
	require.NoError(t, err)

	proc.Start()
	h.Step(time.Second / 60)
	h.Step(time.Second / 60)

	snap, ok := agg.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Frame)
	require.NotNil(t, snap.Service)
	assert.True(t, snap.Service.Ready)
	assert.True(t, agg.IsReady(context.Background()))

	r, ok := rulekit.RuleOf[*countRule](proc.Service())
	require.True(t, ok)
	assert.Equal(t, 1, r.updates)
}

func TestStep_ConfigReload(t *testing.T) {
	proc, clock := newProcess(t)
	changes := make(chan config.Change, 1)
	reloads := 0
	var buf bytes.Buffer
	h, err := New(proc, clock,
		WithLogger(logging.NewText(&buf)),
		WithConfigReload(changes, func() error {
			reloads++
			if reloads == 2 {
				return errors.New("broken file")
			}
			return nil
		}))
	require.NoError(t, err)
	proc.Start()

	h.Step(time.Millisecond)
	assert.Equal(t, 0, reloads)

	changes <- config.Change{Path: "host.yaml", Op: "WRITE"}
	h.Step(time.Millisecond)
	assert.Equal(t, 1, reloads)

	changes <- config.Change{Path: "host.yaml", Op: "WRITE"}
	h.Step(time.Millisecond)
	assert.Equal(t, 2, reloads)
	assert.Contains(t, buf.String(), "broken file")

	close(changes)
	h.Step(time.Millisecond)
	assert.Equal(t, 2, reloads)
}

func TestStep_ScheduledRestart(t *testing.T) {
	proc, clock := newProcess(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h, err := New(proc, clock,
		WithRestartSchedule(cron.Every(time.Minute)),
		WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), h.NextRestart())

	var states []string
	require.NoError(t, proc.RegisterObserver(rulekit.NewFunctionalObserver("states", func(_ context.Context, e rulekit.CloudEvent) error {
		var data rulekit.ProcessStateEvent
		if err := e.DataAs(&data); err != nil {
			return err
		}
		states = append(states, data.To)
		return nil
	}), rulekit.EventTypeProcessState))

	proc.Start()
	for i := 0; i < 3; i++ {
		h.Step(time.Millisecond)
	}
	first := proc.Service()

	now = now.Add(time.Minute)
	for i := 0; i < 10 && proc.Service() == first; i++ {
		h.Step(time.Millisecond)
	}
	assert.NotSame(t, first, proc.Service())
	assert.Equal(t, rulekit.ProcessRunning, proc.State())
	assert.Equal(t, now.Add(time.Minute), h.NextRestart())
	assert.Equal(t, []string{"running", "stopping", "stopped", "running"}, states)
}

func TestRun_CancelStopsProcess(t *testing.T) {
	proc, clock := newProcess(t)
	h, err := New(proc, clock, WithFrameDuration(time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))
	assert.True(t, proc.Done())
	assert.Positive(t, clock.FrameCount())
}

func TestRun_ShutdownTimeout(t *testing.T) {
	clock := rulekit.NewFrameClock()
	svc := &rulekit.Setup{Name: "svc", Rules: func() []rulekit.Rule { return []rulekit.Rule{&stuckUnload{}} }}
	proc, err := rulekit.NewProcess(svc, rulekit.WithClock(clock))
	require.NoError(t, err)
	h, err := New(proc, clock, WithFrameDuration(time.Millisecond), WithShutdownFrames(3))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Run(ctx), ErrShutdownTimeout)
	assert.Equal(t, rulekit.ProcessStopping, proc.State())
}

// stuckUnload never confirms its unload.
type stuckUnload struct {
	rulekit.BaseRule
}

func (r *stuckUnload) Initialize() error { r.MarkInitialized(); return nil }
func (r *stuckUnload) Update() error     { return nil }
func (r *stuckUnload) Unload() error     { return nil }
