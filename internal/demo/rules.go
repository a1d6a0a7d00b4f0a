package demo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/rulekit"
)

// ErrRoundFailed is returned by Match on the configured failing round.
var ErrRoundFailed = errors.New("round failed")

// FrameCounter exposes the number of frames the service has updated.
type FrameCounter interface {
	Frames() int64
}

// Board collects messages posted by modes. The service drains it periodically.
type Board struct {
	mu       sync.Mutex
	messages []string
	total    int
}

// Post adds a message.
func (b *Board) Post(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, fmt.Sprintf(format, args...))
	b.total++
}

// Drain returns and clears pending messages.
func (b *Board) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.messages
	b.messages = nil
	return out
}

// Total is the number of messages ever posted.
func (b *Board) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Roster is the player list loaded by the lobby.
type Roster struct {
	Players []string
}

// Score is the arena state read by the hud.
type Score struct {
	Round  int
	Points map[string]int
}

// FrameTracker counts service frames and provides FramesKey.
type FrameTracker struct {
	rulekit.BaseRule
	frames int64
}

func (r *FrameTracker) Provides() []rulekit.Provision {
	return []rulekit.Provision{rulekit.Provide[FrameCounter](FramesKey, r)}
}

func (r *FrameTracker) Frames() int64 { return r.frames }

func (r *FrameTracker) Initialize() error {
	r.frames = 0
	r.MarkInitialized()
	return nil
}

func (r *FrameTracker) Update() error {
	r.frames++
	return nil
}

func (r *FrameTracker) Unload() error {
	r.MarkUnloaded()
	return nil
}

// MessageBoard provides the Board and logs what was posted.
type MessageBoard struct {
	rulekit.BaseRule
	log   rulekit.Logger
	board *Board
}

func NewMessageBoard(log rulekit.Logger) *MessageBoard {
	return &MessageBoard{log: log, board: &Board{}}
}

func (r *MessageBoard) Provides() []rulekit.Provision {
	return []rulekit.Provision{rulekit.Provide(BoardKey, r.board)}
}

func (r *MessageBoard) Board() *Board { return r.board }

func (r *MessageBoard) Initialize() error {
	r.MarkInitialized()
	return nil
}

func (r *MessageBoard) Update() error {
	for _, msg := range r.board.Drain() {
		r.log.Info(msg, "tag", "demo")
	}
	return nil
}

func (r *MessageBoard) Unload() error {
	for _, msg := range r.board.Drain() {
		r.log.Info(msg, "tag", "demo")
	}
	r.MarkUnloaded()
	return nil
}

// RosterLoader fills the Roster in the background and signals completion with
// MarkInitialized.
type RosterLoader struct {
	rulekit.BaseRule
	size   *rulekit.Slot[int]
	delay  time.Duration
	roster *Roster
	wg     sync.WaitGroup
}

func NewRosterLoader(delay time.Duration) *RosterLoader {
	return &RosterLoader{
		size:   rulekit.Optional(RosterSizeKey, rulekit.ConfigDependency),
		delay:  delay,
		roster: &Roster{},
	}
}

func (r *RosterLoader) Provides() []rulekit.Provision {
	return []rulekit.Provision{rulekit.Provide(RosterKey, r.roster)}
}

func (r *RosterLoader) Dependencies() []rulekit.Dependency {
	return []rulekit.Dependency{r.size}
}

func (r *RosterLoader) Initialize() error {
	n := r.size.Get()
	if n <= 0 {
		n = 4
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		time.Sleep(r.delay)
		players := make([]string, n)
		for i := range players {
			players[i] = fmt.Sprintf("player-%d", i+1)
		}
		r.roster.Players = players
		r.MarkInitialized()
	}()
	return nil
}

func (r *RosterLoader) Update() error { return nil }

func (r *RosterLoader) Unload() error {
	r.wg.Wait()
	r.MarkUnloaded()
	return nil
}

// Greeter welcomes the roster and switches to the next mode once the lobby time
// has elapsed.
type Greeter struct {
	rulekit.BaseRule
	log   rulekit.Logger
	clock rulekit.TimeProvider
	next  func()

	greeting *rulekit.Slot[string]
	seconds  *rulekit.Slot[int]
	frames   *rulekit.Slot[FrameCounter]
	board    *rulekit.Slot[*Board]
	roster   *rulekit.Slot[*Roster]

	started  time.Duration
	greeted  bool
	switched bool
}

func NewGreeter(log rulekit.Logger, clock rulekit.TimeProvider, next func()) *Greeter {
	return &Greeter{
		log:      log,
		clock:    clock,
		next:     next,
		greeting: rulekit.Optional(GreetingKey, rulekit.ConfigDependency),
		seconds:  rulekit.Optional(LobbyTimeKey, rulekit.ConfigDependency),
		frames:   rulekit.Require(FramesKey, rulekit.ServiceDependency),
		board:    rulekit.Require(BoardKey, rulekit.ServiceDependency),
		roster:   rulekit.Require(RosterKey, rulekit.RuleDependency),
	}
}

func (r *Greeter) Dependencies() []rulekit.Dependency {
	return []rulekit.Dependency{r.greeting, r.seconds, r.frames, r.board, r.roster}
}

func (r *Greeter) Initialize() error {
	r.started = r.clock.Time()
	r.greeted = false
	r.MarkInitialized()
	return nil
}

// Update greets on the first frame: the roster is only complete once every rule
// of the lobby has initialized.
func (r *Greeter) Update() error {
	if !r.greeted {
		r.greeted = true
		greeting := r.greeting.Get()
		if greeting == "" {
			greeting = "Welcome"
		}
		for _, p := range r.roster.Get().Players {
			r.board.Get().Post("%s, %s", greeting, p)
		}
	}
	if r.switched || r.next == nil {
		return nil
	}
	wait := time.Duration(max(r.seconds.Get(), 1)) * time.Second
	if r.clock.Time()-r.started < wait {
		return nil
	}
	r.switched = true
	r.log.Info("Lobby time elapsed", "tag", "demo", "players", len(r.roster.Get().Players))
	r.board.Get().Post("lobby closed at service frame %d", r.frames.Get().Frames())
	r.next()
	return nil
}

func (r *Greeter) Unload() error {
	r.MarkUnloaded()
	return nil
}

// Match plays rounds and provides the Score to the hud submodule.
type Match struct {
	rulekit.BaseRule
	log    rulekit.Logger
	attach func(setup *rulekit.Setup)
	hud    *rulekit.Setup

	rounds    *rulekit.Slot[int]
	failRound *rulekit.Slot[int]
	board     *rulekit.Slot[*Board]
	roster    *rulekit.Slot[*Roster]

	score    *Score
	frame    int
	attached bool
}

// RoundFrames is the length of one round.
const RoundFrames = 120

func NewMatch(log rulekit.Logger, attach func(setup *rulekit.Setup), hud *rulekit.Setup) *Match {
	return &Match{
		log:       log,
		attach:    attach,
		hud:       hud,
		rounds:    rulekit.Optional(RoundsKey, rulekit.ConfigDependency),
		failRound: rulekit.Optional(FailRoundKey, rulekit.ConfigDependency),
		board:     rulekit.Require(BoardKey, rulekit.ServiceDependency),
		roster:    rulekit.Optional(RosterKey, rulekit.RuleDependency),
		score:     &Score{Points: make(map[string]int)},
	}
}

func (r *Match) Provides() []rulekit.Provision {
	return []rulekit.Provision{rulekit.Provide(ScoreKey, r.score)}
}

func (r *Match) Dependencies() []rulekit.Dependency {
	return []rulekit.Dependency{r.rounds, r.failRound, r.board, r.roster}
}

func (r *Match) Score() *Score { return r.score }

func (r *Match) Initialize() error {
	r.score.Round = 1
	r.board.Get().Post("arena open")
	r.MarkInitialized()
	return nil
}

func (r *Match) Update() error {
	if !r.attached && r.attach != nil && r.hud != nil {
		r.attached = true
		r.attach(r.hud)
	}
	r.frame++
	if r.frame%RoundFrames != 0 {
		return nil
	}
	round := r.score.Round
	if fail := r.failRound.Get(); fail > 0 && round == fail {
		r.log.Warn("Failing round on purpose", "tag", "demo", "round", round)
		return fmt.Errorf("%w: round %d", ErrRoundFailed, round)
	}
	players := []string{"house"}
	if roster := r.roster.Get(); roster != nil && len(roster.Players) > 0 {
		players = roster.Players
	}
	winner := players[round%len(players)]
	r.score.Points[winner]++
	r.board.Get().Post("round %d won by %s", round, winner)
	if limit := r.rounds.Get(); limit <= 0 || round < limit {
		r.score.Round++
	}
	return nil
}

func (r *Match) Unload() error {
	r.board.Get().Post("arena closed after %d rounds", r.score.Round)
	r.MarkUnloaded()
	return nil
}

// Physics only takes part in FixedUpdate.
type Physics struct {
	rulekit.BaseRule
	steps int
}

func (r *Physics) Steps() int { return r.steps }

func (r *Physics) Initialize() error {
	r.MarkInitialized()
	return nil
}

func (r *Physics) Update() error { return nil }

func (r *Physics) FixedUpdate() error {
	r.steps++
	return nil
}

func (r *Physics) Unload() error {
	r.MarkUnloaded()
	return nil
}

// Scoreboard is the hud rule. It reads the parent mode's Score.
type Scoreboard struct {
	rulekit.BaseRule
	log   rulekit.Logger
	score *rulekit.Slot[*Score]
	board *rulekit.Slot[*Board]
	shown int
}

func NewScoreboard(log rulekit.Logger) *Scoreboard {
	return &Scoreboard{
		log:   log,
		score: rulekit.Require(ScoreKey, rulekit.RuleDependency),
		board: rulekit.Require(BoardKey, rulekit.ServiceDependency),
	}
}

func (r *Scoreboard) Dependencies() []rulekit.Dependency {
	return []rulekit.Dependency{r.score, r.board}
}

func (r *Scoreboard) Initialize() error {
	r.log.Debug("Scoreboard attached", "tag", "demo")
	r.MarkInitialized()
	return nil
}

func (r *Scoreboard) Update() error { return nil }

func (r *Scoreboard) LateUpdate() error {
	if round := r.score.Get().Round; round != r.shown {
		r.shown = round
		r.board.Get().Post("hud: round %d", round)
	}
	return nil
}

func (r *Scoreboard) Unload() error {
	r.MarkUnloaded()
	return nil
}

// Idle keeps the safe mode alive.
type Idle struct {
	rulekit.BaseRule
	log   rulekit.Logger
	ticks int
}

func (r *Idle) Ticks() int { return r.ticks }

func (r *Idle) Initialize() error {
	r.log.Warn("Running in safe mode", "tag", "demo")
	r.MarkInitialized()
	return nil
}

func (r *Idle) Update() error {
	r.ticks++
	return nil
}

func (r *Idle) Unload() error {
	r.MarkUnloaded()
	return nil
}

// LogTransition confirms both windows right away and logs their progress.
type LogTransition struct {
	log rulekit.Logger
}

func (t *LogTransition) Enter(a *rulekit.TransitionActivity) {
	a.ReportAction("loading")
	a.ConfirmStarted()
}

func (t *LogTransition) Exit(a *rulekit.TransitionActivity) {
	a.ReportAction("unloading")
	a.ConfirmStopped()
}

func (t *LogTransition) Progress(_ *rulekit.TransitionActivity, progress float64, action string) {
	t.log.Debug("Transition progress", "tag", rulekit.TagTransition, "progress", progress, "action", action)
}
