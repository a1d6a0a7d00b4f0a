package rulekit

import (
	"fmt"

	"github.com/google/uuid"
)

// ProcessState is the lifecycle state of a Process.
type ProcessState int

const (
	ProcessCreated ProcessState = iota
	ProcessRunning
	ProcessPaused
	ProcessStopping
	ProcessStopped
)

func (s ProcessState) String() string {
	switch s {
	case ProcessCreated:
		return "created"
	case ProcessRunning:
		return "running"
	case ProcessPaused:
		return "paused"
	case ProcessStopping:
		return "stopping"
	case ProcessStopped:
		return "stopped"
	default:
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
}

// maxErrorHistory bounds Process.Errors.
const maxErrorHistory = 64

// modeEntry is one element of the mode stack.
type modeEntry struct {
	module     *Module
	submodules []*Module

	// next replaces the mode once it has fully unloaded.
	next   *Setup
	reason string
}

func (e *modeEntry) leaving() bool {
	s := e.module.State()
	return s == StateUnloadRules || s == StateUnloaded
}

func (e *modeEntry) topSubmodule() *Module {
	if len(e.submodules) == 0 {
		return nil
	}
	return e.submodules[len(e.submodules)-1]
}

// Process is the root of a module tree: one persistent service module plus a
// stack of mode modules, each of which may carry submodules. The host drives it
// with FixedUpdate, Update and LateUpdate once per frame.
type Process struct {
	id   string
	name string
	env  *environment

	serviceSetup *Setup
	initialMode  *Setup

	state   ProcessState
	service *Module
	modes   []*modeEntry
	queued  []*Module
	restart bool

	errs []error
}

// NewProcess creates a process around the given service setup. Nothing runs until Start.
func NewProcess(service *Setup, opts ...Option) (*Process, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service", ErrNilSetup)
	}
	p := &Process{
		id:           uuid.New().String(),
		name:         service.Name,
		env:          newEnvironment(),
		serviceSetup: service,
	}
	p.env.record = p.record
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.env.source = "rulekit/" + p.name
	if p.initialMode != nil {
		if err := p.checkService(p.initialMode); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ID returns the unique id of the process instance.
func (p *Process) ID() string {
	return p.id
}

// Name returns the process name, the service setup name unless WithName was used.
func (p *Process) Name() string {
	return p.name
}

// State returns the lifecycle state.
func (p *Process) State() ProcessState {
	return p.state
}

// Done reports whether the process has stopped and no restart is pending.
func (p *Process) Done() bool {
	return p.state == ProcessStopped
}

// Clock returns the time provider shared by every module.
func (p *Process) Clock() TimeProvider {
	return p.env.clock
}

// Logger returns the process logger.
func (p *Process) Logger() Logger {
	return p.env.logger
}

// Service returns the service module, or nil before Start.
func (p *Process) Service() *Module {
	return p.service
}

// CurrentMode returns the mode at the top of the stack, or nil.
func (p *Process) CurrentMode() *Module {
	if e := p.top(); e != nil {
		return e.module
	}
	return nil
}

// Modes returns the mode stack, bottom first.
func (p *Process) Modes() []*Module {
	out := make([]*Module, len(p.modes))
	for i, e := range p.modes {
		out[i] = e.module
	}
	return out
}

// Submodules returns the submodules of the current mode.
func (p *Process) Submodules() []*Module {
	e := p.top()
	if e == nil {
		return nil
	}
	return append([]*Module(nil), e.submodules...)
}

// Errors returns the most recent application errors, oldest first.
func (p *Process) Errors() []error {
	return append([]error(nil), p.errs...)
}

func (p *Process) record(err error) {
	p.errs = append(p.errs, err)
	if over := len(p.errs) - maxErrorHistory; over > 0 {
		p.errs = append(p.errs[:0], p.errs[over:]...)
	}
}

// RegisterObserver implements Subject.
func (p *Process) RegisterObserver(observer Observer, eventTypes ...string) error {
	return p.env.events.register(observer, eventTypes...)
}

// UnregisterObserver implements Subject.
func (p *Process) UnregisterObserver(observer Observer) error {
	return p.env.events.unregister(observer)
}

// GetObservers implements Subject.
func (p *Process) GetObservers() []ObserverInfo {
	return p.env.events.info()
}

func (p *Process) setState(s ProcessState) {
	if p.state == s {
		return
	}
	from := p.state
	p.state = s
	p.env.logger.Info("Process state changed", "tag", TagProcess, "process", p.name, "from", from.String(), "to", s.String())
	p.env.events.emit(EventTypeProcessState, p.env.source, ProcessStateEvent{Process: p.name, From: from.String(), To: s.String()})
}

// Start creates the service module and the initial mode. Starting a process that is
// already running is a contract violation.
func (p *Process) Start() {
	switch p.state {
	case ProcessCreated, ProcessStopped:
	case ProcessRunning, ProcessPaused, ProcessStopping:
		violate("Start", ErrProcessAlreadyStart, "state is %s", p.state)
	}
	p.service = newModule(p.serviceSetup, p.env, RoleService)
	p.service.escalate = p.escalate
	p.modes, p.queued = nil, nil
	p.setState(ProcessRunning)
	if p.initialMode != nil {
		p.pushMode(p.initialMode, "initial", "")
	}
}

// Stop unwinds the submodules, the modes from the top down and finally the
// service over the following frames. Stopping a process that is not running is a
// contract violation.
func (p *Process) Stop() {
	switch p.state {
	case ProcessRunning, ProcessPaused:
	case ProcessCreated, ProcessStopping, ProcessStopped:
		violate("Stop", ErrProcessNotStarted, "state is %s", p.state)
	}
	p.beginStop()
}

func (p *Process) beginStop() {
	p.setState(ProcessStopping)
	p.dropQueued()
	p.service.Resume()
	for _, e := range p.modes {
		e.next = nil
		e.module.Resume()
		for _, sub := range e.submodules {
			sub.Resume()
		}
	}
	p.unwind()
}

// Restart stops the process and starts it again from the same service and initial
// mode setups once the stop has completed.
func (p *Process) Restart() {
	p.env.logger.Info("Process restart requested", "tag", TagProcess, "process", p.name, "state", p.state.String())
	switch p.state {
	case ProcessCreated, ProcessStopped:
		p.Start()
	case ProcessRunning, ProcessPaused:
		p.restart = true
		p.beginStop()
	case ProcessStopping:
		p.restart = true
	}
}

// Pause freezes every module of the process without discarding state.
func (p *Process) Pause() {
	if p.state != ProcessRunning {
		violate("Pause", ErrProcessNotStarted, "state is %s", p.state)
	}
	p.setState(ProcessPaused)
}

// Resume continues a paused process.
func (p *Process) Resume() {
	if p.state != ProcessPaused {
		violate("Resume", ErrProcessNotStarted, "state is %s", p.state)
	}
	p.setState(ProcessRunning)
}

func (p *Process) checkService(setup *Setup) error {
	if setup.RequiredService != "" && setup.RequiredService != p.serviceSetup.Name {
		return fmt.Errorf("%w: %s needs %s, process runs %s", ErrRequiredServiceMissing, setup.Name, setup.RequiredService, p.serviceSetup.Name)
	}
	return nil
}

func (p *Process) requireStarted(op string) {
	switch p.state {
	case ProcessRunning, ProcessPaused:
	case ProcessCreated, ProcessStopping, ProcessStopped:
		violate(op, ErrProcessNotStarted, "state is %s", p.state)
	}
}

// PushMode puts a new mode on top of the stack. The previous mode keeps its state
// but is no longer ticked. While the current mode is unloading the new mode is
// queued and stacked once the pending pop or replacement has completed.
func (p *Process) PushMode(setup *Setup) (*Module, error) {
	if setup == nil {
		violate("PushMode", ErrNilSetup, "")
	}
	p.requireStarted("PushMode")
	if err := p.checkService(setup); err != nil {
		return nil, err
	}
	e := p.top()
	if e == nil {
		return p.pushMode(setup, "push", ""), nil
	}
	if e.leaving() {
		m := p.newMode(setup)
		p.queued = append(p.queued, m)
		p.env.logger.Info("Mode push queued", "tag", TagProcess, "mode", setup.Name, "behind", e.module.Name())
		return m, nil
	}
	return p.pushMode(setup, "push", e.module.Name()), nil
}

func (p *Process) newMode(setup *Setup) *Module {
	m := newModule(setup, p.env, RoleMode)
	m.service = p.service
	m.escalate = p.escalate
	return m
}

// pushMode stacks a mode built from setup. from names the mode it follows.
func (p *Process) pushMode(setup *Setup, reason, from string) *Module {
	m := p.newMode(setup)
	p.stackMode(m, reason, from)
	return m
}

func (p *Process) stackMode(m *Module, reason, from string) {
	p.modes = append(p.modes, &modeEntry{module: m})
	p.env.logger.Info("Mode pushed", "tag", TagProcess, "mode", m.Name(), "reason", reason, "depth", len(p.modes))
	p.env.events.emit(EventTypeModeSwitched, p.env.source, ModeSwitchEvent{From: from, To: m.Name(), Reason: reason})
}

// stackQueued stacks the modes pushed while the previous top was unloading.
func (p *Process) stackQueued() {
	queued := p.queued
	p.queued = nil
	for _, m := range queued {
		from := ""
		if cur := p.CurrentMode(); cur != nil {
			from = cur.Name()
		}
		p.stackMode(m, "push", from)
	}
}

func (p *Process) dropQueued() {
	for _, m := range p.queued {
		p.env.logger.Info("Queued mode dropped", "tag", TagProcess, "mode", m.Name())
	}
	p.queued = nil
}

// SwitchMode unloads the current mode and replaces it with a mode built from setup.
// Without a current mode it behaves like PushMode.
func (p *Process) SwitchMode(setup *Setup) error {
	if setup == nil {
		violate("SwitchMode", ErrNilSetup, "")
	}
	p.requireStarted("SwitchMode")
	if err := p.checkService(setup); err != nil {
		return err
	}
	e := p.top()
	if e == nil {
		p.pushMode(setup, "switch", "")
		return nil
	}
	e.next, e.reason = setup, "switch"
	e.module.beginUnload(false)
	return nil
}

// PopMode unloads the current mode. The mode below becomes current once the unload
// completes. Popping an empty stack is a contract violation.
func (p *Process) PopMode() {
	p.requireStarted("PopMode")
	e := p.top()
	if e == nil {
		violate("PopMode", ErrNoModeToPop, "")
	}
	e.next = nil
	e.module.beginUnload(false)
}

// AddSubmodule attaches a submodule to the current mode. The mode must be the
// setup's RequiredParent when one is named.
func (p *Process) AddSubmodule(setup *Setup) (*Module, error) {
	if setup == nil {
		violate("AddSubmodule", ErrNilSetup, "")
	}
	p.requireStarted("AddSubmodule")
	if err := p.checkService(setup); err != nil {
		return nil, err
	}
	e := p.top()
	if e == nil {
		return nil, fmt.Errorf("%w: %s has no mode to attach to", ErrRequiredParentMissing, setup.Name)
	}
	if setup.RequiredParent != "" && setup.RequiredParent != e.module.Name() {
		return nil, fmt.Errorf("%w: %s needs %s, current mode is %s", ErrRequiredParentMissing, setup.Name, setup.RequiredParent, e.module.Name())
	}
	m := newModule(setup, p.env, RoleSubmodule)
	m.parent = e.module
	m.service = p.service
	m.escalate = p.escalate
	e.submodules = append(e.submodules, m)
	p.env.logger.Info("Submodule attached", "tag", TagProcess, "submodule", setup.Name, "mode", e.module.Name())
	return m, nil
}

func (p *Process) top() *modeEntry {
	if len(p.modes) == 0 {
		return nil
	}
	return p.modes[len(p.modes)-1]
}

func (p *Process) entryOf(m *Module) *modeEntry {
	for _, e := range p.modes {
		if e.module == m {
			return e
		}
		for _, sub := range e.submodules {
			if sub == m {
				return e
			}
		}
	}
	return nil
}

// FixedUpdate runs the FixedUpdate tick of the tree.
func (p *Process) FixedUpdate() {
	p.tick(TickFixedUpdate)
}

// Update runs the Update tick of the tree and applies pending stack changes.
func (p *Process) Update() {
	p.tick(TickUpdate)
}

// LateUpdate runs the LateUpdate tick of the tree.
func (p *Process) LateUpdate() {
	p.tick(TickLateUpdate)
}

func (p *Process) ticking() bool {
	return p.state == ProcessRunning || p.state == ProcessStopping
}

func (p *Process) tick(c TickCategory) {
	if !p.ticking() {
		return
	}
	p.service.tick(c)
	if !p.ticking() {
		return
	}
	if p.service.State() == StateUpdateRules || p.state == ProcessStopping {
		if e := p.top(); e != nil {
			p.tickMode(e, c)
		}
	}
	if c == TickUpdate && p.ticking() {
		p.reap()
	}
}

// tickMode ticks a mode and its current submodule. A mode leaving UnloadRules with
// submodules still attached waits until they have unloaded.
func (p *Process) tickMode(e *modeEntry, c TickCategory) {
	if e.module.State() == StateUnloadRules && len(e.submodules) > 0 {
		for i := len(e.submodules) - 1; i >= 0; i-- {
			sub := e.submodules[i]
			sub.Resume()
			sub.beginUnload(false)
			sub.tick(c)
			if !p.ticking() {
				return
			}
		}
		return
	}
	e.module.tick(c)
	if !p.ticking() {
		return
	}
	if sub := e.topSubmodule(); sub != nil {
		if e.module.State() == StateUpdateRules || p.state == ProcessStopping {
			sub.tick(c)
		}
	}
}

// reap removes unloaded modules and carries out pending mode replacements.
func (p *Process) reap() {
	if e := p.top(); e != nil {
		live := e.submodules[:0]
		for _, sub := range e.submodules {
			if sub.State() == StateUnloaded {
				p.env.logger.Info("Submodule removed", "tag", TagProcess, "submodule", sub.Name(), "mode", e.module.Name())
				continue
			}
			live = append(live, sub)
		}
		e.submodules = live

		if e.module.State() == StateUnloaded && len(e.submodules) == 0 {
			p.modes = p.modes[:len(p.modes)-1]
			p.env.logger.Info("Mode removed", "tag", TagProcess, "mode", e.module.Name(), "failed", e.module.Failed())
			if e.next != nil && p.state != ProcessStopping {
				p.pushMode(e.next, e.reason, e.module.Name())
			} else if cur := p.CurrentMode(); cur != nil {
				p.env.events.emit(EventTypeModeSwitched, p.env.source, ModeSwitchEvent{From: e.module.Name(), To: cur.Name(), Reason: "pop"})
			}
			if p.state != ProcessStopping {
				p.stackQueued()
			}
		}
	}

	if p.service.State() == StateUnloaded && p.state != ProcessStopping {
		p.env.logger.Error("Service unloaded, stopping process", "tag", TagProcess, "process", p.name, "error", p.service.Err())
		p.beginStop()
		return
	}
	if p.state == ProcessStopping {
		p.unwind()
	}
}

// unwind asks the innermost remaining module to unload and completes the stop once
// the service is gone.
func (p *Process) unwind() {
	if e := p.top(); e != nil {
		e.module.beginUnload(false)
		return
	}
	if p.service.State() != StateUnloaded {
		p.service.beginUnload(false)
		return
	}
	p.setState(ProcessStopped)
	if p.restart {
		p.restart = false
		p.Start()
	}
}

// escalate carries out the process-scoped reactions chosen by a module.
func (p *Process) escalate(m *Module, reaction Reaction, err error) {
	p.env.logger.Warn("Reaction escalated to process", "tag", TagProcess, "module", m.Name(), "reaction", reaction.String(), "error", err)
	switch reaction {
	case PauseAll:
		if p.state == ProcessRunning {
			p.setState(ProcessPaused)
		}
	case StopAll:
		if p.state == ProcessRunning || p.state == ProcessPaused {
			p.beginStop()
		}
	case SwitchToFallback:
		p.fallback(m)
	case Continue, SkipFrame, PauseModule, UnloadModule, ReloadModule:
		m.react(reaction, err)
	}
}

// fallback unloads the failing mode and queues its fallback setup. A submodule
// failure replaces its parent mode.
func (p *Process) fallback(m *Module) {
	e := p.entryOf(m)
	if e == nil {
		p.env.logger.Error("No mode to replace, stopping process", "tag", TagProcess, "module", m.Name(), "error", ErrNoFallbackMode)
		p.record(fmt.Errorf("%w: %s is not a mode", ErrNoFallbackMode, m.Name()))
		if p.state == ProcessRunning || p.state == ProcessPaused {
			p.beginStop()
		}
		return
	}
	setup := m.exceptions.FallbackMode
	if setup == nil && m != e.module {
		setup = e.module.exceptions.FallbackMode
	}
	if setup == nil {
		p.env.logger.Error("Fallback mode missing, unloading mode", "tag", TagProcess, "mode", e.module.Name())
		p.record(fmt.Errorf("%w: %s", ErrNoFallbackMode, e.module.Name()))
	} else if err := p.checkService(setup); err != nil {
		p.record(err)
		setup = nil
	}
	if p.state != ProcessStopping {
		e.next, e.reason = setup, "fallback"
	}
	if m != e.module {
		m.beginUnload(true)
	}
	e.module.beginUnload(true)
}
