package demo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rulekit"
)

func step(clock *rulekit.FrameClock, proc *rulekit.Process) {
	clock.Advance(100 * time.Millisecond)
	proc.FixedUpdate()
	proc.Update()
	proc.LateUpdate()
}

// runUntil steps the process until cond holds, giving background loaders a
// chance to finish between frames.
func runUntil(t *testing.T, clock *rulekit.FrameClock, proc *rulekit.Process, frames int, cond func() bool) {
	t.Helper()
	for i := 0; i < frames; i++ {
		if cond() {
			return
		}
		step(clock, proc)
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met after %d frames", frames)
}

func TestDemo_LobbyToArena(t *testing.T) {
	clock := rulekit.NewFrameClock()
	store := rulekit.NewMapConfigStore(map[string]any{
		"demo.lobbySeconds": 1,
		"demo.rosterSize":   "2",
		"demo.greeting":     "Hello",
	})
	proc, setups, err := NewProcess(Deps{Clock: clock}, LobbyName,
		rulekit.WithClock(clock), rulekit.WithConfigStore(store))
	require.NoError(t, err)
	assert.Len(t, setups, 5)

	proc.Start()
	runUntil(t, clock, proc, 200, func() bool {
		m := proc.CurrentMode()
		return m != nil && m.Name() == LobbyName && m.Ready()
	})

	loader, ok := rulekit.RuleOf[*RosterLoader](proc.CurrentMode())
	require.True(t, ok)
	assert.Equal(t, []string{"player-1", "player-2"}, loader.roster.Players)

	runUntil(t, clock, proc, 200, func() bool {
		m := proc.CurrentMode()
		return m != nil && m.Name() == ArenaName && m.Ready()
	})
	require.Len(t, proc.Modes(), 1)

	runUntil(t, clock, proc, 20, func() bool {
		subs := proc.Submodules()
		return len(subs) == 1 && subs[0].Ready()
	})
	assert.Equal(t, HudName, proc.Submodules()[0].Name())

	board, ok := rulekit.RuleOf[*MessageBoard](proc.Service())
	require.True(t, ok)
	assert.GreaterOrEqual(t, board.Board().Total(), 4)
	assert.Empty(t, proc.Errors())

	proc.Stop()
	runUntil(t, clock, proc, 50, proc.Done)
}

func TestDemo_FailingRoundFallsBack(t *testing.T) {
	clock := rulekit.NewFrameClock()
	store := rulekit.NewMapConfigStore(map[string]any{"demo.failRound": 1})
	proc, _, err := NewProcess(Deps{Clock: clock}, ArenaName,
		rulekit.WithClock(clock), rulekit.WithConfigStore(store))
	require.NoError(t, err)

	proc.Start()
	runUntil(t, clock, proc, RoundFrames+50, func() bool {
		m := proc.CurrentMode()
		return m != nil && m.Name() == SafeName && m.Ready()
	})

	errs := proc.Errors()
	require.NotEmpty(t, errs)
	assert.True(t, errors.Is(errs[0], ErrRoundFailed))
	var ruleErr *rulekit.RuleError
	require.ErrorAs(t, errs[0], &ruleErr)
	assert.Equal(t, ArenaName, ruleErr.Module)
	assert.Equal(t, rulekit.RuleIDFor[*Match](), ruleErr.Rule)
}

func TestDemo_UnknownMode(t *testing.T) {
	_, _, err := NewProcess(Deps{}, "nowhere")
	assert.ErrorIs(t, err, ErrUnknownSetup)
}

func TestDemo_PhysicsOnlyOnFixedUpdate(t *testing.T) {
	clock := rulekit.NewFrameClock()
	proc, _, err := NewProcess(Deps{Clock: clock}, ArenaName, rulekit.WithClock(clock))
	require.NoError(t, err)
	proc.Start()
	runUntil(t, clock, proc, 20, func() bool { return proc.CurrentMode().Ready() })

	physics, ok := rulekit.RuleOf[*Physics](proc.CurrentMode())
	require.True(t, ok)
	before := physics.Steps()
	for i := 0; i < 5; i++ {
		step(clock, proc)
	}
	assert.Equal(t, before+5, physics.Steps())
}
