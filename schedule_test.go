package rulekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulePattern_Includes(t *testing.T) {
	for freq := 0; freq <= 255; freq++ {
		for off := 0; off <= 255; off++ {
			p := SchedulePattern{Frequency: uint8(freq), Offset: uint8(off)}
			for f := int64(-3); f <= 300; f++ {
				want := f >= 0 && freq != 0 && f%int64(freq) == int64(off%max(freq, 1))
				if got := p.Includes(f); got != want {
					t.Fatalf("(%d,%d).Includes(%d) = %v, want %v", freq, off, f, got, want)
				}
			}
		}
	}
}

func TestNewSchedulePattern(t *testing.T) {
	p := NewSchedulePattern(4, 9)
	assert.Equal(t, SchedulePattern{Frequency: 4, Offset: 1}, p)
	assert.Equal(t, "every 4 (+1)", p.String())

	assert.Equal(t, SchedulePattern{Frequency: 0, Offset: 7}, NewSchedulePattern(0, 7))
	assert.Equal(t, "never", Never.String())
	assert.True(t, EveryFrame.Includes(0))
	assert.False(t, Never.Includes(0))
}

func TestModule_SchedulesRules(t *testing.T) {
	clock, _ := newTestClock()
	a, b := newA("a", nil), newB("b", nil)
	m := NewModule(&Setup{
		Name:           "sched",
		Rules:          rules(a, b),
		UpdateSchedule: Schedule{RuleIDFor[*ruleB](): {Frequency: 3, Offset: 1}},
	}, WithModuleClock(clock))

	step(clock, m, 1)
	require.Equal(t, StateUpdateRules, m.State())
	assert.Zero(t, a.updates, "no update on the frame reaching UpdateRules")

	// Update frames 0..6: b fires on 1 and 4.
	step(clock, m, 7)
	assert.Equal(t, 7, a.updates)
	assert.Equal(t, 2, b.updates)
}

func TestModule_FixedAndLateTables(t *testing.T) {
	clock, _ := newTestClock()
	f := &fixedRule{probe: probe{name: "f"}}
	m := NewModule(&Setup{
		Name:                "ticks",
		Rules:               rules(f),
		UpdateSchedule:      Schedule{RuleIDFor[*fixedRule](): Never},
		LateUpdateSchedule:  Schedule{RuleIDFor[*fixedRule](): {Frequency: 2}},
		FixedUpdateSchedule: Schedule{RuleIDFor[*fixedRule](): EveryFrame},
	}, WithModuleClock(clock))

	step(clock, m, 5)
	assert.Zero(t, f.updates)
	assert.Equal(t, 4, f.fixed)
	// Late frames 0..4 with frequency 2.
	assert.Equal(t, 3, f.late)
}

func TestModule_ScheduleContractViolations(t *testing.T) {
	t.Run("missing hook", func(t *testing.T) {
		m := NewModule(&Setup{
			Name:                "bad",
			Rules:               rules(newA("a", nil)),
			FixedUpdateSchedule: Schedule{RuleIDFor[*ruleA](): EveryFrame},
		})
		requireViolation(t, ErrMissingTickHook, m.Update)
	})
	t.Run("unknown rule", func(t *testing.T) {
		m := NewModule(&Setup{
			Name:           "bad",
			Rules:          rules(newA("a", nil)),
			UpdateSchedule: Schedule{RuleIDFor[*ruleB](): EveryFrame},
		})
		requireViolation(t, ErrUnknownRuleID, m.Update)
	})
}
