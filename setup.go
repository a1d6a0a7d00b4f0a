package rulekit

// Setup describes a module: how to build its rules and which tables and policies
// govern them. One Setup can produce many Module instances (a reload or a fallback
// always builds fresh rules through Rules).
type Setup struct {
	// Name identifies the module. It is used in logs, events, RequiredParent checks
	// and dependency error messages.
	Name string

	// Rules builds a fresh rule set. It is called on every entry into the Setup phase.
	Rules func() []Rule

	// InitOrder lists rule ids in initialization order. Rules missing from the list
	// follow in the order returned by Rules. Unload order is always the reverse.
	InitOrder []RuleID

	UpdateSchedule      Schedule
	FixedUpdateSchedule Schedule
	LateUpdateSchedule  Schedule

	// ExceptionPolicy defaults to DefaultExceptionPolicy when nil.
	ExceptionPolicy *ExceptionPolicy
	// PerformancePolicy defaults to DefaultPerformancePolicy when nil.
	PerformancePolicy *PerformancePolicy

	// RequiredService names the service setup a Process must run for this mode.
	RequiredService string
	// RequiredParent names the mode a submodule must be attached to. Its rules join
	// the dependency search chain between the submodule and the service.
	RequiredParent string

	// Transition builds the optional TransitionActivity hooks of the module.
	Transition func() Transition

	// Tasks run after the process-wide extension tasks.
	Tasks []ExtensionTask
}

// ExtensionTask is a host hook run at the boundaries of a module's life: before
// each Setup and after each Unload completes.
type ExtensionTask interface {
	BeforeSetup(m *Module) error
	AfterUnload(m *Module)
}

// TaskFuncs adapts plain functions to ExtensionTask. Nil functions are skipped.
type TaskFuncs struct {
	Before func(m *Module) error
	After  func(m *Module)
}

func (t TaskFuncs) BeforeSetup(m *Module) error {
	if t.Before == nil {
		return nil
	}
	return t.Before(m)
}

func (t TaskFuncs) AfterUnload(m *Module) {
	if t.After != nil {
		t.After(m)
	}
}

func (s *Setup) exceptionPolicy() ExceptionPolicy {
	if s.ExceptionPolicy == nil {
		return DefaultExceptionPolicy()
	}
	return *s.ExceptionPolicy
}

func (s *Setup) performancePolicy() PerformancePolicy {
	if s.PerformancePolicy == nil {
		return DefaultPerformancePolicy()
	}
	return *s.PerformancePolicy
}
