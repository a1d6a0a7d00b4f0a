package rulekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter interface {
	Count() int
}

type tally struct{ n int }

func (t *tally) Count() int { return t.n }

var (
	tallyKey      = NewKey[counter]("tally")
	tallyNameKey  = NewKey[string]("tally")
	limitKey      = NewKey[int]("limit")
	greetingKey   = NewKey[string]("greeting")
	missingKey    = NewKey[counter]("missing")
	optionalCount = NewKey[counter]("optional")
)

type provRule struct {
	probe
	value counter
}

func (r *provRule) Provides() []Provision { return []Provision{Provide(tallyKey, r.value)} }

// nameRule provides a string under the same key name as tallyKey.
type nameRule struct{ probe }

func (r *nameRule) Provides() []Provision { return []Provision{Provide(tallyNameKey, "not a counter")} }

type consRule struct {
	probe
	deps []Dependency
}

func (r *consRule) Dependencies() []Dependency { return r.deps }

func newCons(deps ...Dependency) *consRule {
	return &consRule{probe: probe{name: "cons"}, deps: deps}
}

func TestResolve_NearestScopeFirst(t *testing.T) {
	clock, _ := newTestClock()
	svcTally, modeTally := &tally{n: 1}, &tally{n: 2}
	fromRule := Require(tallyKey, RuleDependency)
	fromService := Require(tallyKey, ServiceDependency)
	cons := newCons(fromRule, fromService)

	proc, err := NewProcess(
		&Setup{Name: "svc", Rules: rules(&provRule{probe: probe{name: "svc"}, value: svcTally})},
		WithClock(clock),
		WithInitialMode(&Setup{Name: "mode", Rules: rules(&provRule{probe: probe{name: "mode"}, value: modeTally}, cons)}),
	)
	require.NoError(t, err)
	proc.Start()
	stepProcess(clock, proc, 1)

	require.Equal(t, StateUpdateRules, proc.CurrentMode().State())
	assert.Same(t, modeTally, fromRule.Get())
	assert.Same(t, svcTally, fromService.Get())
	assert.True(t, fromRule.Bound())
}

func TestResolve_SubmoduleWalksParentThenService(t *testing.T) {
	clock, _ := newTestClock()
	modeTally := &tally{n: 2}
	slot := Require(tallyKey, RuleDependency)

	proc, err := NewProcess(
		&Setup{Name: "svc", Rules: rules(&provRule{probe: probe{name: "svc"}, value: &tally{n: 1}})},
		WithClock(clock),
		WithInitialMode(&Setup{Name: "mode", Rules: rules(&provRule{probe: probe{name: "mode"}, value: modeTally})}),
	)
	require.NoError(t, err)
	proc.Start()
	stepProcess(clock, proc, 1)

	sub, err := proc.AddSubmodule(&Setup{Name: "sub", RequiredParent: "mode", Rules: rules(newCons(slot))})
	require.NoError(t, err)
	stepProcess(clock, proc, 1)

	assert.Equal(t, StateUpdateRules, sub.State())
	assert.Same(t, modeTally, slot.Get())
}

func TestResolve_TypeMismatchFallsThroughToOuterScope(t *testing.T) {
	clock, _ := newTestClock()
	svcTally := &tally{n: 1}
	slot := Require(tallyKey, RuleDependency)

	proc, err := NewProcess(
		&Setup{Name: "svc", Rules: rules(&provRule{probe: probe{name: "svc"}, value: svcTally})},
		WithClock(clock),
		WithInitialMode(&Setup{Name: "mode", Rules: rules(&nameRule{probe{name: "names"}}, newCons(slot))}),
	)
	require.NoError(t, err)
	proc.Start()
	stepProcess(clock, proc, 1)

	assert.Same(t, svcTally, slot.Get())
}

func TestResolve_ConfigurationValues(t *testing.T) {
	clock, _ := newTestClock()
	limit := Require(limitKey, ConfigDependency)
	greeting := Require(greetingKey, ConfigDependency)
	opt := Optional(optionalCount, RuleDependency)
	store := NewMapConfigStore(map[string]any{"limit": "42", "greeting": "hello"})

	m := NewModule(&Setup{Name: "cfg", Rules: rules(newCons(limit, greeting, opt))},
		WithModuleClock(clock), WithModuleConfig(store))
	step(clock, m, 1)

	require.Equal(t, StateUpdateRules, m.State())
	assert.Equal(t, 42, limit.Get())
	assert.Equal(t, "hello", greeting.Get())
	assert.False(t, opt.Bound())
	assert.Nil(t, opt.Get())
}

func TestResolve_NumericConfigurationIsConverted(t *testing.T) {
	limit := Require(limitKey, ConfigDependency)
	store := NewMapConfigStore(map[string]any{"limit": float64(7)})
	chain := []providerScope{configScope{store: store}}

	require.NoError(t, resolveSlot("*rulekit.consRule", limit, chain))
	assert.Equal(t, 7, limit.Get())

	store.Set("limit", "seven")
	err := resolveSlot("*rulekit.consRule", limit, chain)
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.ErrorIs(t, err, ErrDependencyTypeMismatch)
	assert.False(t, limit.Bound())
}

func TestResolve_MissingRequiredUnloadsByDefault(t *testing.T) {
	clock, _ := newTestClock()
	var log []string
	cons := newCons(Require(missingKey, RuleDependency))
	cons.log = &log
	m := NewModule(&Setup{Name: "deps", Rules: rules(cons)}, WithModuleClock(clock))

	step(clock, m, 1)
	assert.Equal(t, StateUnloaded, m.State())
	assert.True(t, m.Failed())
	assert.Empty(t, log, "rules are never initialized without their dependencies")

	var depErr *DependencyError
	require.ErrorAs(t, m.Err(), &depErr)
	assert.ErrorIs(t, m.Err(), ErrDependencyNotFound)
	assert.Equal(t, "missing", depErr.Key)
	assert.Equal(t, RuleDependency, depErr.Kind)
	assert.Equal(t, []string{"deps", "configuration"}, depErr.Searched)
}

func TestResolve_BlocksUntilProvided(t *testing.T) {
	clock, _ := newTestClock()
	var events eventLog
	limit := Require(limitKey, ConfigDependency)
	store := NewMapConfigStore(nil)
	m := NewModule(&Setup{
		Name:            "blocked",
		Rules:           rules(newCons(limit)),
		ExceptionPolicy: &ExceptionPolicy{Load: Continue, Update: SkipFrame, Unload: Continue},
	}, WithModuleClock(clock), WithModuleConfig(store), WithModuleObserver(events.observer("ev"), EventTypeRuleFailed))

	step(clock, m, 5)
	assert.Equal(t, StateDependencyInjection, m.State())
	assert.Len(t, events.failures(t, EventTypeRuleFailed), 1, "a steady failure is reported once")

	store.Set("limit", 5)
	step(clock, m, 1)
	assert.Equal(t, StateUpdateRules, m.State())
	assert.Equal(t, 5, limit.Get())
}

func TestProviderSet_KeepsFirstProvider(t *testing.T) {
	set := newProviderSet("m")
	first, second := &tally{n: 1}, &tally{n: 2}
	assert.Empty(t, set.add("first", &provRule{value: first}))
	assert.Equal(t, []string{"tally"}, set.add("second", &provRule{value: second}))

	v, ok := set.provision("tally")
	require.True(t, ok)
	assert.Same(t, first, v)
	assert.Equal(t, RuleID("first"), set.owners["tally"])
}
