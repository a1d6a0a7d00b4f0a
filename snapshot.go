package rulekit

// RuleSnapshot is the serializable view of a rule.
type RuleSnapshot struct {
	ID            string `json:"id" yaml:"id"`
	State         string `json:"state" yaml:"state"`
	ErrorDetected bool   `json:"errorDetected,omitempty" yaml:"errorDetected,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// TransitionSnapshot is the serializable view of a TransitionActivity.
type TransitionSnapshot struct {
	State    string  `json:"state" yaml:"state"`
	Progress float64 `json:"progress" yaml:"progress"`
	Action   string  `json:"action,omitempty" yaml:"action,omitempty"`
}

// ModuleSnapshot is the serializable view of a module and its submodules.
type ModuleSnapshot struct {
	Name       string              `json:"name" yaml:"name"`
	Role       string              `json:"role" yaml:"role"`
	State      string              `json:"state" yaml:"state"`
	Generation int                 `json:"generation" yaml:"generation"`
	Paused     bool                `json:"paused,omitempty" yaml:"paused,omitempty"`
	Ready      bool                `json:"ready" yaml:"ready"`
	Failed     bool                `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error      string              `json:"error,omitempty" yaml:"error,omitempty"`
	Rules      []RuleSnapshot      `json:"rules" yaml:"rules"`
	Transition *TransitionSnapshot `json:"transition,omitempty" yaml:"transition,omitempty"`
	Submodules []ModuleSnapshot    `json:"submodules,omitempty" yaml:"submodules,omitempty"`
}

// ProcessSnapshot is the serializable view of a whole process.
type ProcessSnapshot struct {
	ID      string           `json:"id" yaml:"id"`
	Name    string           `json:"name" yaml:"name"`
	State   string           `json:"state" yaml:"state"`
	Frame   int64            `json:"frame" yaml:"frame"`
	Service *ModuleSnapshot  `json:"service,omitempty" yaml:"service,omitempty"`
	Modes   []ModuleSnapshot `json:"modes" yaml:"modes"`
	Errors  []string         `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Snapshot captures the module state. It must be called from the ticking goroutine.
func (m *Module) Snapshot() ModuleSnapshot {
	s := ModuleSnapshot{
		Name:       m.Name(),
		Role:       m.role.String(),
		State:      m.state.String(),
		Generation: m.generation,
		Paused:     m.paused,
		Ready:      m.Ready(),
		Failed:     m.failed,
		Rules:      make([]RuleSnapshot, 0, len(m.rules)),
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
	}
	for i, r := range m.rules {
		b := r.core()
		rs := RuleSnapshot{ID: string(m.ids[i]), State: b.State().String(), ErrorDetected: b.ErrorDetected()}
		if err := b.Err(); err != nil {
			rs.Error = err.Error()
		}
		s.Rules = append(s.Rules, rs)
	}
	if t := m.transition; t != nil {
		s.Transition = &TransitionSnapshot{State: t.State().String(), Progress: t.Progress(), Action: t.Action()}
	}
	return s
}

// Snapshot captures the whole tree. It must be called from the ticking goroutine.
func (p *Process) Snapshot() ProcessSnapshot {
	s := ProcessSnapshot{
		ID:    p.id,
		Name:  p.name,
		State: p.state.String(),
		Frame: p.env.clock.FrameCount(),
		Modes: make([]ModuleSnapshot, 0, len(p.modes)),
	}
	if p.service != nil {
		svc := p.service.Snapshot()
		s.Service = &svc
	}
	for _, e := range p.modes {
		ms := e.module.Snapshot()
		for _, sub := range e.submodules {
			ms.Submodules = append(ms.Submodules, sub.Snapshot())
		}
		s.Modes = append(s.Modes, ms)
	}
	for _, err := range p.errs {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}
