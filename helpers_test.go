package rulekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Static errors for tests
var (
	errBoom   = errors.New("boom")
	errUnload = errors.New("unload failed")
)

const frame = time.Second / 60

// wall is a manual wall clock for FrameClock.WithNow.
type wall struct {
	mu sync.Mutex
	t  time.Time
}

func (w *wall) now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.t
}

func (w *wall) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.t = w.t.Add(d)
}

func newTestClock() (*FrameClock, *wall) {
	w := &wall{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewFrameClock(WithNow(w.now)), w
}

// probe is a configurable rule body shared by the test rule types below. Each
// concrete type gets its own RuleID.
type probe struct {
	BaseRule
	name string
	log  *[]string

	holdInit   bool
	holdUnload bool
	initErr    error
	updateErr  error
	unloadErr  error
	updatePan  any

	onInit   func()
	onUpdate func()
	onUnload func()

	inits   int
	updates int
	unloads int
}

func (p *probe) record(event string) {
	if p.log != nil {
		*p.log = append(*p.log, p.name+"."+event)
	}
}

func (p *probe) Initialize() error {
	p.inits++
	p.record("init")
	if p.onInit != nil {
		p.onInit()
	}
	if p.initErr != nil {
		return p.initErr
	}
	if !p.holdInit {
		p.MarkInitialized()
	}
	return nil
}

func (p *probe) Update() error {
	p.updates++
	p.record("update")
	if p.onUpdate != nil {
		p.onUpdate()
	}
	if p.updatePan != nil {
		panic(p.updatePan)
	}
	return p.updateErr
}

func (p *probe) Unload() error {
	p.unloads++
	p.record("unload")
	if p.onUnload != nil {
		p.onUnload()
	}
	if p.unloadErr != nil {
		return p.unloadErr
	}
	if !p.holdUnload {
		p.MarkUnloaded()
	}
	return nil
}

type ruleA struct{ probe }
type ruleB struct{ probe }
type ruleC struct{ probe }

func newA(name string, log *[]string) *ruleA { return &ruleA{probe{name: name, log: log}} }
func newB(name string, log *[]string) *ruleB { return &ruleB{probe{name: name, log: log}} }
func newC(name string, log *[]string) *ruleC { return &ruleC{probe{name: name, log: log}} }

// fixedRule also takes part in FixedUpdate and LateUpdate.
type fixedRule struct {
	probe
	fixed int
	late  int
}

func (r *fixedRule) FixedUpdate() error { r.fixed++; return nil }
func (r *fixedRule) LateUpdate() error  { r.late++; return nil }

// rules returns a factory that always hands back the same instances. Tests that
// run Setup twice build fresh rules instead.
func rules(rs ...Rule) func() []Rule {
	return func() []Rule { return rs }
}

// step advances the clock and runs one full frame on m.
func step(clock *FrameClock, m *Module, n int) {
	for range n {
		clock.Advance(frame)
		m.FixedUpdate()
		m.Update()
		m.LateUpdate()
	}
}

// stepProcess advances the clock and runs one full frame on p.
func stepProcess(clock *FrameClock, p *Process, n int) {
	for range n {
		clock.Advance(frame)
		p.FixedUpdate()
		p.Update()
		p.LateUpdate()
	}
}

// eventLog collects events of the given types.
type eventLog struct {
	events []CloudEvent
}

func (l *eventLog) observer(id string) Observer {
	return NewFunctionalObserver(id, func(_ context.Context, e CloudEvent) error {
		l.events = append(l.events, e)
		return nil
	})
}

func (l *eventLog) failures(t *testing.T, eventType string) []RuleFailureEvent {
	t.Helper()
	var out []RuleFailureEvent
	for _, e := range l.events {
		if e.Type() != eventType {
			continue
		}
		var data RuleFailureEvent
		require.NoError(t, e.DataAs(&data))
		out = append(out, data)
	}
	return out
}

func (l *eventLog) switches(t *testing.T) []ModeSwitchEvent {
	t.Helper()
	var out []ModeSwitchEvent
	for _, e := range l.events {
		if e.Type() != EventTypeModeSwitched {
			continue
		}
		var data ModeSwitchEvent
		require.NoError(t, e.DataAs(&data))
		out = append(out, data)
	}
	return out
}

// requireViolation asserts that fn panics with a ContractViolation wrapping target.
func requireViolation(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		rec := recover()
		require.NotNil(t, rec, "expected a contract violation")
		err, ok := rec.(error)
		require.True(t, ok, "panic value %v is not an error", rec)
		var cv *ContractViolation
		require.ErrorAs(t, err, &cv)
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.ErrorIs(t, err, target)
	}()
	fn()
}

func modeNames(modes []*Module) []string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.Name()
	}
	return names
}
