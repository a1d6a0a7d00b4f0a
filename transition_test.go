package rulekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate is a Transition confirmed by the test.
type gate struct {
	act      *TransitionActivity
	enters   int
	exits    int
	progress []float64
	override float64
}

func (g *gate) Enter(a *TransitionActivity) {
	g.act, g.enters = a, g.enters+1
	if g.override > 0 {
		a.ReportProgress(g.override)
		a.ReportAction("loading")
	}
}

func (g *gate) Exit(a *TransitionActivity) {
	g.act, g.exits = a, g.exits+1
}

func (g *gate) Progress(_ *TransitionActivity, progress float64, _ string) {
	g.progress = append(g.progress, progress)
}

func TestTransition_GatesReady(t *testing.T) {
	clock, _ := newTestClock()
	var events eventLog
	g := &gate{}
	a, b := newA("a", nil), newB("b", nil)
	b.holdInit = true
	m := NewModule(&Setup{
		Name:       "loading",
		Rules:      rules(a, b),
		Transition: func() Transition { return g },
	}, WithModuleClock(clock), WithModuleObserver(events.observer("ev"), EventTypeModuleReady))

	step(clock, m, 1)
	require.NotNil(t, m.Transition())
	assert.Equal(t, TransitionStarting, m.Transition().State())
	assert.Equal(t, 1, g.enters)
	assert.Equal(t, []float64{0.5}, g.progress)

	b.MarkInitialized()
	step(clock, m, 1)
	assert.Equal(t, StateUpdateRules, m.State())
	assert.False(t, m.Ready(), "not ready before the transition confirms")
	assert.Empty(t, events.events)

	g.act.ConfirmStarted()
	step(clock, m, 1)
	assert.Equal(t, TransitionActive, m.Transition().State())
	assert.True(t, m.Ready())
	assert.Len(t, events.events, 1)
	assert.Equal(t, 1.0, m.Transition().Progress())

	requireViolation(t, ErrInvalidTransition, g.act.ConfirmStopped)
}

func TestTransition_DelaysUnload(t *testing.T) {
	clock, _ := newTestClock()
	g := &gate{}
	m := NewModule(&Setup{
		Name:       "leaving",
		Rules:      rules(newA("a", nil)),
		Transition: func() Transition { return g },
	}, WithModuleClock(clock))

	step(clock, m, 1)
	g.act.ConfirmStarted()
	step(clock, m, 1)
	require.True(t, m.Ready())

	m.AskUnload()
	step(clock, m, 3)
	assert.Equal(t, StateUnloadRules, m.State())
	assert.Equal(t, TransitionStopping, m.Transition().State())
	assert.Equal(t, 1, g.exits)
	requireViolation(t, ErrInvalidTransition, g.act.ConfirmStarted)

	g.act.ConfirmStopped()
	step(clock, m, 1)
	assert.Equal(t, TransitionInactive, m.Transition().State())
	step(clock, m, 1)
	assert.Equal(t, StateUnloaded, m.State())
}

func TestTransition_ReportedProgress(t *testing.T) {
	clock, _ := newTestClock()
	g := &gate{override: 0.25}
	a := newA("a", nil)
	a.holdInit = true
	m := NewModule(&Setup{
		Name:       "progress",
		Rules:      rules(a),
		Transition: func() Transition { return g },
	}, WithModuleClock(clock))

	step(clock, m, 2)
	assert.Equal(t, []float64{0.25, 0.25}, g.progress)
	assert.Equal(t, "loading", m.Transition().Action())

	snap := m.Snapshot()
	require.NotNil(t, snap.Transition)
	assert.Equal(t, TransitionSnapshot{State: "starting", Progress: 0.25, Action: "loading"}, *snap.Transition)
}

func TestTransitionActivity_ClampsProgress(t *testing.T) {
	a := newTransitionActivity(&gate{})
	a.ReportProgress(3)
	assert.Equal(t, 1.0, a.Progress())
	a.ReportProgress(-1)
	assert.Equal(t, 0.0, a.Progress())
	assert.Equal(t, "inactive", a.State().String())
}
