// Package demo holds the small service and modes driven by rulekitd.
//
// The "core" service keeps a frame counter and a message board for the modes.
// "lobby" greets, loads a roster asynchronously and moves on to "arena" after a
// few seconds. "arena" runs rounds and carries the optional "hud" submodule; a
// round can be configured to fail so the fallback to "safe" can be observed.
package demo

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/rulekit"
	"github.com/GoCodeAlone/rulekit/config"
)

// ErrUnknownSetup is returned for a mode name the demo does not define.
var ErrUnknownSetup = errors.New("unknown demo setup")

// Setup names.
const (
	ServiceName = "core"
	LobbyName   = "lobby"
	ArenaName   = "arena"
	SafeName    = "safe"
	HudName     = "hud"
)

// Configuration keys read by the demo rules.
var (
	GreetingKey   = rulekit.NewKey[string]("demo.greeting")
	LobbyTimeKey  = rulekit.NewKey[int]("demo.lobbySeconds")
	RoundsKey     = rulekit.NewKey[int]("demo.rounds")
	FailRoundKey  = rulekit.NewKey[int]("demo.failRound")
	RosterSizeKey = rulekit.NewKey[int]("demo.rosterSize")
)

// Capabilities shared between rules.
var (
	FramesKey = rulekit.NewKey[FrameCounter]("demo.frames")
	BoardKey  = rulekit.NewKey[*Board]("demo.board")
	RosterKey = rulekit.NewKey[*Roster]("demo.roster")
	ScoreKey  = rulekit.NewKey[*Score]("demo.score")
)

// Deps carries what the demo rules need from the host.
type Deps struct {
	Logger rulekit.Logger
	Clock  rulekit.TimeProvider
	// Switch changes the current mode. The host wires it to Process.SwitchMode.
	Switch func(setup *rulekit.Setup)
	// Attach adds a submodule to the current mode. Optional.
	Attach func(setup *rulekit.Setup)
	// RosterDelay simulates the time the lobby takes to load its roster.
	RosterDelay time.Duration
}

func (d Deps) logger() rulekit.Logger {
	if d.Logger == nil {
		return rulekit.NopLogger{}
	}
	return d.Logger
}

// Setups builds the demo setups keyed by name.
func Setups(d Deps) config.SetupMap {
	safe := &rulekit.Setup{
		Name:            SafeName,
		RequiredService: ServiceName,
		Rules: func() []rulekit.Rule {
			return []rulekit.Rule{&Idle{log: d.logger()}}
		},
		UpdateSchedule: rulekit.Schedule{
			rulekit.RuleIDFor[*Idle](): rulekit.NewSchedulePattern(60, 0),
		},
	}

	hud := &rulekit.Setup{
		Name:           HudName,
		RequiredParent: ArenaName,
		Rules: func() []rulekit.Rule {
			return []rulekit.Rule{NewScoreboard(d.logger())}
		},
		LateUpdateSchedule: rulekit.Schedule{
			rulekit.RuleIDFor[*Scoreboard](): rulekit.NewSchedulePattern(30, 0),
		},
	}

	arena := &rulekit.Setup{
		Name:            ArenaName,
		RequiredService: ServiceName,
		Rules: func() []rulekit.Rule {
			return []rulekit.Rule{NewMatch(d.logger(), d.Attach, hud), &Physics{}}
		},
		ExceptionPolicy: &rulekit.ExceptionPolicy{
			Load:                  rulekit.UnloadModule,
			Update:                rulekit.SwitchToFallback,
			Unload:                rulekit.Continue,
			SkipUnloadIfException: true,
			FallbackMode:          safe,
		},
		FixedUpdateSchedule: rulekit.Schedule{
			rulekit.RuleIDFor[*Physics](): rulekit.EveryFrame,
		},
		UpdateSchedule: rulekit.Schedule{
			rulekit.RuleIDFor[*Physics](): rulekit.Never,
		},
		Transition: func() rulekit.Transition { return &LogTransition{log: d.logger()} },
	}

	var next func()
	if d.Switch != nil {
		next = func() { d.Switch(arena) }
	}

	lobby := &rulekit.Setup{
		Name:            LobbyName,
		RequiredService: ServiceName,
		Rules: func() []rulekit.Rule {
			return []rulekit.Rule{
				NewGreeter(d.logger(), d.Clock, next),
				NewRosterLoader(d.RosterDelay),
			}
		},
		InitOrder:  []rulekit.RuleID{rulekit.RuleIDFor[*RosterLoader](), rulekit.RuleIDFor[*Greeter]()},
		Transition: func() rulekit.Transition { return &LogTransition{log: d.logger()} },
	}

	core := &rulekit.Setup{
		Name: ServiceName,
		Rules: func() []rulekit.Rule {
			return []rulekit.Rule{&FrameTracker{}, NewMessageBoard(d.logger())}
		},
		UpdateSchedule: rulekit.Schedule{
			rulekit.RuleIDFor[*MessageBoard](): rulekit.NewSchedulePattern(10, 5),
		},
	}

	return config.SetupMap{
		ServiceName: core,
		LobbyName:   lobby,
		ArenaName:   arena,
		SafeName:    safe,
		HudName:     hud,
	}
}

// NewProcess builds the demo process. Deps.Switch and Deps.Attach default to the
// process's own SwitchMode and AddSubmodule; failures there are logged.
func NewProcess(d Deps, initialMode string, opts ...rulekit.Option) (*rulekit.Process, config.SetupMap, error) {
	var proc *rulekit.Process
	if d.Switch == nil {
		d.Switch = func(setup *rulekit.Setup) {
			if err := proc.SwitchMode(setup); err != nil {
				d.logger().Error("Switch mode failed", "tag", "demo", "mode", setup.Name, "error", err)
			}
		}
	}
	if d.Attach == nil {
		d.Attach = func(setup *rulekit.Setup) {
			if _, err := proc.AddSubmodule(setup); err != nil {
				d.logger().Error("Attach submodule failed", "tag", "demo", "submodule", setup.Name, "error", err)
			}
		}
	}
	setups := Setups(d)
	if initialMode != "" {
		mode, ok := setups.Lookup(initialMode)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSetup, initialMode)
		}
		opts = append(opts, rulekit.WithInitialMode(mode))
	}
	service, _ := setups.Lookup(ServiceName)
	var err error
	proc, err = rulekit.NewProcess(service, opts...)
	if err != nil {
		return nil, nil, err
	}
	return proc, setups, nil
}
