// Package rulekit is a frame-driven runtime that groups rules into modules, drives
// each module through Setup, DependencyInjection, InitializeRules, UpdateRules and
// UnloadRules, binds typed dependencies between rules, schedules rule updates at
// sub-frame granularity and applies recovery policies when a rule fails or stalls.
//
// Everything runs on the caller's goroutine: the host calls Process.FixedUpdate,
// Process.Update and Process.LateUpdate once per frame and the whole tree is
// driven synchronously from there.
//
// Basic usage:
//
//	clock := rulekit.NewFrameClock()
//	proc, err := rulekit.NewProcess(serviceSetup,
//		rulekit.WithClock(clock),
//		rulekit.WithInitialMode(menuSetup),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	proc.Start()
//	for !proc.Done() {
//		clock.Advance(frameTime)
//		proc.Update()
//	}
package rulekit

import (
	"fmt"
	"time"
)

// ModuleState is the phase of a module.
type ModuleState int

const (
	StateSetup ModuleState = iota
	StateDependencyInjection
	StateInitializeRules
	StateUpdateRules
	StateUnloadRules
	StateUnloaded
)

func (s ModuleState) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateDependencyInjection:
		return "dependency_injection"
	case StateInitializeRules:
		return "initialize_rules"
	case StateUpdateRules:
		return "update_rules"
	case StateUnloadRules:
		return "unload_rules"
	case StateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("ModuleState(%d)", int(s))
	}
}

// group maps a phase to its exception policy group.
func (s ModuleState) group() PhaseGroup {
	switch s {
	case StateSetup, StateDependencyInjection, StateInitializeRules:
		return PhaseLoad
	case StateUpdateRules:
		return PhaseUpdate
	case StateUnloadRules, StateUnloaded:
		return PhaseUnload
	default:
		return PhaseLoad
	}
}

// ModuleRole tells where a module sits in a Process tree.
type ModuleRole int

const (
	RoleStandalone ModuleRole = iota
	RoleService
	RoleMode
	RoleSubmodule
)

func (r ModuleRole) String() string {
	switch r {
	case RoleStandalone:
		return "standalone"
	case RoleService:
		return "service"
	case RoleMode:
		return "mode"
	case RoleSubmodule:
		return "submodule"
	default:
		return fmt.Sprintf("ModuleRole(%d)", int(r))
	}
}

// environment is shared by every module of a Process.
type environment struct {
	logger Logger
	clock  TimeProvider
	config ConfigStore
	events *eventHub
	tasks  []ExtensionTask
	source string
	record func(err error)
}

func newEnvironment() *environment {
	logger := Logger(NopLogger{})
	return &environment{
		logger: logger,
		clock:  NewFrameClock(),
		events: newEventHub(logger),
		source: "rulekit",
	}
}

// escalation is implemented by the owner of a module that can carry out
// process-scoped reactions.
type escalation func(m *Module, reaction Reaction, err error)

// Module is an ordered set of rules sharing one phase state machine, scheduling
// tables and policies. A Module must only be driven from one goroutine.
type Module struct {
	setup *Setup
	env   *environment
	role  ModuleRole

	parent  *Module
	service *Module

	state      ModuleState
	generation int

	rules        []Rule
	ids          []RuleID
	index        map[RuleID]int
	ticking      [3][]int
	unloadCalled []bool
	cleaned      []bool

	sched      *scheduler
	providers  *providerSet
	exceptions ExceptionPolicy
	perf       PerformancePolicy
	watch      *watchdog
	transition *TransitionActivity

	paused        bool
	unloadAsked   bool
	reload        bool
	released      bool
	failed        bool
	halt          bool
	skipping      bool
	skipFrame     int64
	tickStart     time.Duration
	injectFailure string
	readySent     bool

	escalate escalation
	lastErr  error
}

// ModuleOption configures a standalone module.
type ModuleOption func(*Module)

// WithModuleLogger sets the logger of a standalone module.
func WithModuleLogger(logger Logger) ModuleOption {
	return func(m *Module) {
		m.env.logger = logger
		m.env.events.logger = logger
	}
}

// WithModuleClock sets the time provider of a standalone module.
func WithModuleClock(clock TimeProvider) ModuleOption {
	return func(m *Module) {
		m.env.clock = clock
	}
}

// WithModuleConfig sets the configuration store of a standalone module.
func WithModuleConfig(store ConfigStore) ModuleOption {
	return func(m *Module) {
		m.env.config = store
	}
}

// WithModuleParent chains parent into the dependency search of a standalone module.
func WithModuleParent(parent *Module) ModuleOption {
	return func(m *Module) {
		m.parent = parent
	}
}

// WithModuleService sets the service scope of a standalone module.
func WithModuleService(service *Module) ModuleOption {
	return func(m *Module) {
		m.service = service
	}
}

// WithModuleObserver registers an observer on the module's own event hub.
func WithModuleObserver(observer Observer, eventTypes ...string) ModuleOption {
	return func(m *Module) {
		_ = m.env.events.register(observer, eventTypes...)
	}
}

// NewModule creates a module outside any Process. It starts in StateSetup; the
// first Update tick builds its rules.
func NewModule(setup *Setup, opts ...ModuleOption) *Module {
	if setup == nil {
		violate("NewModule", ErrNilSetup, "")
	}
	m := newModule(setup, newEnvironment(), RoleStandalone)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newModule(setup *Setup, env *environment, role ModuleRole) *Module {
	m := &Module{
		setup:      setup,
		env:        env,
		role:       role,
		exceptions: setup.exceptionPolicy(),
		perf:       setup.performancePolicy(),
	}
	m.watch = newWatchdog(m.perf)
	if setup.Transition != nil {
		m.transition = newTransitionActivity(setup.Transition())
	}
	return m
}

// Name returns the setup name.
func (m *Module) Name() string {
	return m.setup.Name
}

// Setup returns the descriptor the module was built from.
func (m *Module) Setup() *Setup {
	return m.setup
}

// Role returns where the module sits in its Process.
func (m *Module) Role() ModuleRole {
	return m.role
}

// State returns the current phase.
func (m *Module) State() ModuleState {
	return m.state
}

// Generation counts the Setup passes, starting at 1 after the first Setup.
func (m *Module) Generation() int {
	return m.generation
}

// Paused reports whether the module is frozen.
func (m *Module) Paused() bool {
	return m.paused
}

// Pause freezes the module. State is retained.
func (m *Module) Pause() {
	m.paused = true
}

// Resume unfreezes a paused module.
func (m *Module) Resume() {
	m.paused = false
}

// Transition returns the transition activity, or nil.
func (m *Module) Transition() *TransitionActivity {
	return m.transition
}

// Err returns the last error captured by the module.
func (m *Module) Err() error {
	return m.lastErr
}

// Failed reports whether the module is unloading or unloaded because of an error.
func (m *Module) Failed() bool {
	return m.failed
}

// Ready reports whether the module updates its rules and its transition, if any,
// confirmed the end of the loading window.
func (m *Module) Ready() bool {
	if m.state != StateUpdateRules {
		return false
	}
	return m.transition == nil || m.transition.State() == TransitionActive
}

// Rules returns the rules in initialization order.
func (m *Module) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}

// Rule returns the rule with the given id.
func (m *Module) Rule(id RuleID) (Rule, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.rules[i], true
}

// RuleOf returns the rule of type R in m.
func RuleOf[R Rule](m *Module) (R, bool) {
	r, ok := m.Rule(RuleIDFor[R]())
	if !ok {
		var zero R
		return zero, false
	}
	typed, ok := r.(R)
	return typed, ok
}

// AskUnload requests UnloadRules. It is honored on the next Update tick; calling it
// several times before then has the same effect as calling it once.
func (m *Module) AskUnload() {
	m.unloadAsked = true
}

// Update runs the phase machine and, in UpdateRules, the rules due on the Update table.
func (m *Module) Update() {
	m.tick(TickUpdate)
}

// FixedUpdate runs the rules due on the FixedUpdate table while in UpdateRules.
func (m *Module) FixedUpdate() {
	m.tick(TickFixedUpdate)
}

// LateUpdate runs the rules due on the LateUpdate table while in UpdateRules.
func (m *Module) LateUpdate() {
	m.tick(TickLateUpdate)
}

func (m *Module) log() Logger {
	return m.env.logger
}

func (m *Module) frameNo() int64 {
	return m.env.clock.FrameCount()
}

func (m *Module) skippedThisFrame() bool {
	return m.skipping && m.skipFrame == m.frameNo()
}

// haltedIn reports whether rule processing of the current tick must stop.
func (m *Module) haltedIn(s ModuleState) bool {
	return m.paused || m.halt || m.state != s || m.skippedThisFrame()
}

func (m *Module) tick(c TickCategory) {
	if m.paused || m.state == StateUnloaded {
		return
	}
	m.halt = false
	if m.skippedThisFrame() {
		return
	}
	m.skipping = false

	if c != TickUpdate {
		if m.state == StateUpdateRules {
			m.updateRules(c)
		}
		return
	}

	m.tickStart = m.env.clock.RealtimeSinceStartup()
	m.collectAsyncErrors()
	if m.unloadAsked {
		m.unloadAsked = false
		m.log().Info("Unload requested", "tag", TagModule, "module", m.Name())
		m.beginUnload(false)
	}

	for !m.paused && !m.halt && !m.skippedThisFrame() {
		before := m.state
		switch m.state {
		case StateSetup:
			m.runSetup()
		case StateDependencyInjection:
			m.inject()
		case StateInitializeRules:
			m.initializeRules()
		case StateUpdateRules:
			m.updateRules(TickUpdate)
		case StateUnloadRules:
			m.unloadRules()
		case StateUnloaded:
		}
		if m.state == before || m.state == StateUpdateRules || m.state == StateUnloaded {
			break
		}
	}
	m.tickTransition()
	if !m.readySent && m.Ready() {
		m.readySent = true
		m.log().Info("Module ready", "tag", TagModule, "module", m.Name(), "generation", m.generation)
		m.emit(EventTypeModuleReady, PhaseEvent{Module: m.Name(), From: StateInitializeRules.String(), To: StateUpdateRules.String()})
	}
}

func (m *Module) setState(s ModuleState) {
	if m.state == s {
		return
	}
	from := m.state
	m.state = s
	m.log().Debug("Module phase", "tag", TagModule, "module", m.Name(), "from", from.String(), "to", s.String())
	m.emit(EventTypeModulePhase, PhaseEvent{Module: m.Name(), From: from.String(), To: s.String()})
}

func (m *Module) emit(eventType string, data any) {
	m.env.events.emit(eventType, m.env.source+"/"+m.Name(), data)
}

func (m *Module) tasks() []ExtensionTask {
	tasks := make([]ExtensionTask, 0, len(m.env.tasks)+len(m.setup.Tasks))
	tasks = append(tasks, m.env.tasks...)
	return append(tasks, m.setup.Tasks...)
}

// runSetup builds the rule set, the ordering and the scheduling tables.
func (m *Module) runSetup() {
	m.failed = false
	m.released = false
	m.readySent = false
	m.injectFailure = ""
	m.watch.reset()
	if m.transition != nil {
		m.transition.start()
	}

	for _, task := range m.tasks() {
		if err := task.BeforeSetup(m); err != nil {
			m.raise("", PhaseLoad, fmt.Errorf("%w: %w", ErrTaskFailed, err))
			if m.haltedIn(StateSetup) {
				return
			}
		}
	}
	m.generation++

	var built []Rule
	if m.setup.Rules != nil {
		built = m.setup.Rules()
	}
	declared := make(map[RuleID]Rule, len(built))
	declaredIDs := make([]RuleID, 0, len(built))
	for _, r := range built {
		id := RuleIDOf(r)
		if _, dup := declared[id]; dup {
			violate("Setup", ErrDuplicateRuleID, "module %s, rule %s", m.Name(), id)
		}
		declared[id] = r
		declaredIDs = append(declaredIDs, id)
	}

	ordered := make([]RuleID, 0, len(built))
	placed := make(map[RuleID]bool, len(built))
	for _, id := range m.setup.InitOrder {
		if _, ok := declared[id]; !ok {
			violate("Setup", ErrUnknownRuleID, "module %s init order names %s", m.Name(), id)
		}
		if placed[id] {
			violate("Setup", ErrDuplicateRuleID, "module %s init order repeats %s", m.Name(), id)
		}
		placed[id] = true
		ordered = append(ordered, id)
	}
	for _, id := range declaredIDs {
		if !placed[id] {
			ordered = append(ordered, id)
		}
	}

	m.rules = make([]Rule, len(ordered))
	m.ids = ordered
	m.index = make(map[RuleID]int, len(ordered))
	m.unloadCalled = make([]bool, len(ordered))
	m.cleaned = make([]bool, len(ordered))
	for i, id := range ordered {
		m.rules[i] = declared[id]
		m.index[id] = i
	}

	tables := []Schedule{m.setup.UpdateSchedule, m.setup.FixedUpdateSchedule, m.setup.LateUpdateSchedule}
	for c, table := range tables {
		for id := range table {
			i, ok := m.index[id]
			if !ok {
				violate("Setup", ErrUnknownRuleID, "module %s schedules %s on %s", m.Name(), id, TickCategory(c))
			}
			if !hasHook(m.rules[i], TickCategory(c)) {
				violate("Setup", ErrMissingTickHook, "module %s, rule %s, %s", m.Name(), id, TickCategory(c))
			}
		}
	}
	m.sched = newScheduler(tables[0], tables[1], tables[2])
	for c := range m.ticking {
		m.ticking[c] = m.ticking[c][:0]
		for i, r := range m.rules {
			if hasHook(r, TickCategory(c)) {
				m.ticking[c] = append(m.ticking[c], i)
			}
		}
	}

	m.log().Info("Module set up", "tag", TagModule, "module", m.Name(), "role", m.role.String(), "rules", len(m.rules), "generation", m.generation)
	m.setState(StateDependencyInjection)
}

func hasHook(r Rule, c TickCategory) bool {
	switch c {
	case TickUpdate:
		return true
	case TickFixedUpdate:
		_, ok := r.(FixedUpdater)
		return ok
	case TickLateUpdate:
		_, ok := r.(LateUpdater)
		return ok
	default:
		return false
	}
}

// inject rebuilds the provider map and binds every declared slot.
func (m *Module) inject() {
	m.providers = newProviderSet(m.Name())
	for i, r := range m.rules {
		for _, key := range m.providers.add(m.ids[i], r) {
			m.log().Warn("Capability already provided in module, keeping first provider",
				"tag", TagDependency, "module", m.Name(), "rule", string(m.ids[i]), "key", key, "provider", string(m.providers.owners[key]))
		}
	}

	err := resolveRules(m.ids, m.rules, m.chainFor)
	if err != nil {
		// The module stays in DependencyInjection and retries on later ticks unless
		// the reaction moves it elsewhere; a steady failure is only reported once.
		if msg := err.Error(); msg != m.injectFailure {
			m.injectFailure = msg
			m.raise("", PhaseLoad, err)
		}
		return
	}
	m.injectFailure = ""
	m.log().Debug("Dependencies injected", "tag", TagDependency, "module", m.Name())
	m.setState(StateInitializeRules)
}

// chainFor lists the scopes searched for a slot of the given kind, nearest first.
// Parent and service links are borrowed references walked on demand.
func (m *Module) chainFor(kind DependencyKind) []providerScope {
	var chain []providerScope
	seen := make(map[*Module]bool)
	add := func(x *Module) {
		if x == nil || seen[x] || x.providers == nil {
			return
		}
		seen[x] = true
		chain = append(chain, x.providers)
	}
	switch kind {
	case RuleDependency:
		for s := m; s != nil; s = s.parent {
			add(s)
		}
		add(m.service)
	case ServiceDependency:
		if m.service != nil {
			add(m.service)
		} else if m.role == RoleService {
			add(m)
		}
	case ConfigDependency:
	}
	return append(chain, configScope{store: m.env.config})
}

// overBudget reports whether the per-frame time cap has been reached.
func (m *Module) overBudget() bool {
	if m.perf.MaxFrameDuration <= 0 {
		return false
	}
	return m.env.clock.RealtimeSinceStartup()-m.tickStart >= m.perf.MaxFrameDuration
}

func (m *Module) initializeRules() {
	dt := m.env.clock.DeltaTime()
	for i, r := range m.rules {
		if r.core().State() != RuleInitializing {
			continue
		}
		m.checkStall(i, m.watch.pending(m.ids[i], PhaseLoad, dt))
		if m.haltedIn(StateInitializeRules) {
			return
		}
	}

	started := 0
	for i, r := range m.rules {
		if r.core().State() != RuleUnused {
			continue
		}
		if started > 0 && m.overBudget() {
			break
		}
		started++
		m.afterHook(i, PhaseLoad, baseInitialize(r))
		if m.haltedIn(StateInitializeRules) {
			return
		}
	}

	for _, r := range m.rules {
		b := r.core()
		if b.State() != RuleInitialized && !b.ErrorDetected() {
			return
		}
	}
	if m.transition != nil {
		m.transition.complete()
	}
	m.sched.reset()
	m.setState(StateUpdateRules)
}

func (m *Module) updateRules(c TickCategory) {
	m.sched.advance(c)
	for _, i := range m.ticking[c] {
		r := m.rules[i]
		if r.core().State() != RuleInitialized || !m.sched.due(c, m.ids[i]) {
			continue
		}
		start := m.env.clock.RealtimeSinceStartup()
		err := baseUpdate(r, c)
		elapsed := m.env.clock.RealtimeSinceStartup() - start
		m.afterHook(i, PhaseUpdate, err)
		if m.haltedIn(StateUpdateRules) {
			return
		}
		if r.core().State() == RuleInitialized {
			m.checkStall(i, m.watch.call(m.ids[i], PhaseUpdate, elapsed))
			if m.haltedIn(StateUpdateRules) {
				return
			}
		}
	}
}

func (m *Module) unloadRules() {
	dt := m.env.clock.DeltaTime()
	for i := len(m.rules) - 1; i >= 0; i-- {
		var phase PhaseGroup
		switch m.rules[i].core().State() {
		case RuleUnloading:
			phase = PhaseUnload
		case RuleInitializing:
			phase = PhaseLoad
		case RuleUnused, RuleInitialized, RuleUnloaded:
			continue
		}
		m.checkStall(i, m.watch.pending(m.ids[i], phase, dt))
		if m.haltedIn(StateUnloadRules) {
			return
		}
	}

	processed := 0
	for i := len(m.rules) - 1; i >= 0; i-- {
		r := m.rules[i]
		b := r.core()
		switch b.State() {
		case RuleInitialized:
			if processed > 0 && m.overBudget() {
				return
			}
			processed++
			m.unloadCalled[i] = true
			m.afterHook(i, PhaseUnload, baseUnload(r))
		case RuleUnloaded:
			if !b.ErrorDetected() || m.cleaned[i] || m.unloadCalled[i] {
				continue
			}
			if processed > 0 && m.overBudget() {
				return
			}
			processed++
			m.cleanup(i)
		case RuleUnused, RuleInitializing, RuleUnloading:
		}
		if m.haltedIn(StateUnloadRules) {
			return
		}
	}

	for i, r := range m.rules {
		switch r.core().State() {
		case RuleInitializing, RuleInitialized, RuleUnloading:
			return
		case RuleUnloaded:
			if r.core().ErrorDetected() && !m.cleaned[i] && !m.unloadCalled[i] {
				return
			}
		case RuleUnused:
		}
	}
	if m.transition != nil {
		m.transition.complete()
		if m.transition.State() != TransitionInactive {
			return
		}
	}
	m.finishUnload()
}

// cleanup gives a failed rule the chance to release resources unless the policy
// skips it. The hook runs inside a synchronous Unloading window so it may call
// MarkUnloaded as usual; its outcome is only logged.
func (m *Module) cleanup(i int) {
	m.cleaned[i] = true
	if m.exceptions.SkipUnloadIfException {
		m.log().Debug("Skipping unload of failed rule", "tag", TagModule, "module", m.Name(), "rule", string(m.ids[i]))
		return
	}
	b := m.rules[i].core()
	b.state.Store(int32(RuleUnloading))
	err := guard(m.rules[i].Unload)
	b.state.CompareAndSwap(int32(RuleUnloading), int32(RuleUnloaded))
	if pending := b.takeError(); err == nil {
		err = pending
	}
	if err != nil {
		m.log().Warn("Failed rule unload hook returned an error", "tag", TagModule, "module", m.Name(), "rule", string(m.ids[i]), "error", err)
	}
}

func (m *Module) finishUnload() {
	m.setState(StateUnloaded)
	if m.generation > 0 {
		for _, task := range m.tasks() {
			task.AfterUnload(m)
		}
	}
	m.log().Info("Module unloaded", "tag", TagModule, "module", m.Name(), "failed", m.failed)
	m.emit(EventTypeModuleUnloaded, PhaseEvent{Module: m.Name(), From: StateUnloadRules.String(), To: StateUnloaded.String()})
	m.providers = nil

	if m.reload {
		m.reload = false
		m.rules, m.ids, m.index = nil, nil, nil
		m.log().Info("Reloading module", "tag", TagModule, "module", m.Name())
		m.setState(StateSetup)
	}
}

// beginUnload moves the module to UnloadRules from any earlier phase. An unload
// requested from outside wins over a pending reload.
func (m *Module) beginUnload(dueToError bool) {
	if !dueToError {
		m.released = true
		m.reload = false
	}
	switch m.state {
	case StateUnloadRules, StateUnloaded:
		return
	case StateSetup, StateDependencyInjection, StateInitializeRules, StateUpdateRules:
	}
	if dueToError {
		m.failed = true
	}
	m.setState(StateUnloadRules)
	if m.transition != nil {
		m.transition.stop()
	}
}

func (m *Module) tickTransition() {
	if m.transition == nil {
		return
	}
	before := m.transition.State()
	switch m.state {
	case StateSetup, StateDependencyInjection, StateInitializeRules, StateUpdateRules:
		m.transition.tick(m.initializedFraction())
	case StateUnloadRules:
		m.transition.tick(1 - m.initializedFraction())
	case StateUnloaded:
	}
	if after := m.transition.State(); after != before {
		m.log().Debug("Transition state", "tag", TagTransition, "module", m.Name(), "from", before.String(), "to", after.String())
	}
}

func (m *Module) initializedFraction() float64 {
	if len(m.rules) == 0 {
		if m.state == StateUpdateRules {
			return 1
		}
		return 0
	}
	n := 0
	for _, r := range m.rules {
		if r.core().State() == RuleInitialized {
			n++
		}
	}
	return float64(n) / float64(len(m.rules))
}

// afterHook routes the outcome of a hook call.
func (m *Module) afterHook(i int, phase PhaseGroup, err error) {
	b := m.rules[i].core()
	if err != nil {
		b.fail(err)
	}
	if pending := b.takeError(); pending != nil {
		m.watch.forget(m.ids[i], phase)
		m.raise(m.ids[i], phase, pending)
	}
}

// collectAsyncErrors picks up MarkError calls made outside hook calls.
func (m *Module) collectAsyncErrors() {
	for i, r := range m.rules {
		if err := r.core().takeError(); err != nil {
			m.raise(m.ids[i], m.state.group(), err)
			if m.paused || m.halt {
				return
			}
		}
	}
}

func (m *Module) checkStall(i int, verdicts []stallVerdict) {
	for _, v := range verdicts {
		data := RuleFailureEvent{Module: m.Name(), Rule: string(v.Rule), Phase: v.Phase.String(), Fatal: v.Severity == stallFatal}
		if v.Severity == stallWarning {
			data.Error = fmt.Sprintf("pending for %s", v.Elapsed)
			m.log().Warn("Rule stalling", "tag", TagWatchdog, "module", m.Name(), "rule", string(v.Rule),
				"phase", v.Phase.String(), "elapsed", v.Elapsed, "occurrence", v.Occurrence)
			m.emit(EventTypeRuleStalled, data)
			continue
		}
		err := fmt.Errorf("%w: %s pending for %s during %s", ErrRuleStalled, v.Rule, v.Elapsed, v.Phase)
		data.Error = err.Error()
		m.emit(EventTypeRuleStalled, data)
		if m.rules[i].core().fail(err) {
			m.afterHook(i, v.Phase, nil)
		}
		return
	}
}

// raise records an application error and applies the configured reaction.
func (m *Module) raise(id RuleID, phase PhaseGroup, err error) {
	var ruleErr error = err
	if id != "" {
		ruleErr = &RuleError{Module: m.Name(), Rule: id, Phase: phase, Err: err}
	}
	m.lastErr = ruleErr
	if m.env.record != nil {
		m.env.record(ruleErr)
	}
	reaction := m.exceptions.ReactionFor(phase)
	m.log().Error("Rule error", "tag", TagModule, "module", m.Name(), "rule", string(id),
		"phase", phase.String(), "reaction", reaction.String(), "error", err)
	m.emit(EventTypeRuleFailed, RuleFailureEvent{
		Module: m.Name(), Rule: string(id), Phase: phase.String(), Reaction: reaction.String(), Error: err.Error(), Fatal: true,
	})
	m.react(reaction, ruleErr)
}

func (m *Module) react(reaction Reaction, err error) {
	if reaction.processScoped() {
		m.halt = true
		if m.escalate != nil {
			m.escalate(m, reaction, err)
			return
		}
		m.reactLocally(reaction)
		return
	}
	switch reaction {
	case Continue:
	case SkipFrame:
		m.skipping = true
		m.skipFrame = m.frameNo()
	case PauseModule:
		m.paused = true
	case UnloadModule:
		m.beginUnload(true)
	case ReloadModule:
		if m.released {
			m.log().Warn("Reload ignored, module is being released", "tag", TagModule, "module", m.Name())
			return
		}
		m.reload = true
		m.beginUnload(true)
	case SwitchToFallback, PauseAll, StopAll:
	default:
		violate("react", ErrUnknownReaction, "%d", int(reaction))
	}
}

// reactLocally is the fallback of process-scoped reactions for modules without a Process.
func (m *Module) reactLocally(reaction Reaction) {
	switch reaction {
	case PauseAll:
		m.paused = true
	case SwitchToFallback, StopAll:
		m.beginUnload(true)
	case Continue, SkipFrame, PauseModule, UnloadModule, ReloadModule:
	}
}
