package rulekit

import "fmt"

// Option configures a Process.
type Option func(*Process) error

// WithName overrides the process name used in logs and event sources.
func WithName(name string) Option {
	return func(p *Process) error {
		if name == "" {
			return fmt.Errorf("%w: empty process name", ErrContractViolation)
		}
		p.name = name
		return nil
	}
}

// WithLogger sets the logger shared by the process and its modules.
func WithLogger(logger Logger) Option {
	return func(p *Process) error {
		if logger == nil {
			return ErrLoggerNotSet
		}
		p.env.logger = logger
		p.env.events.logger = logger
		return nil
	}
}

// WithClock injects the time provider. It must be set once, at construction.
func WithClock(clock TimeProvider) Option {
	return func(p *Process) error {
		p.env.clock = clock
		return nil
	}
}

// WithConfigStore sets the store behind ConfigDependency slots.
func WithConfigStore(store ConfigStore) Option {
	return func(p *Process) error {
		p.env.config = store
		return nil
	}
}

// WithExtensionTasks adds process-wide tasks. They run before the tasks of each Setup.
func WithExtensionTasks(tasks ...ExtensionTask) Option {
	return func(p *Process) error {
		p.env.tasks = append(p.env.tasks, tasks...)
		return nil
	}
}

// WithInitialMode pushes setup on Start, and again on every restart.
func WithInitialMode(setup *Setup) Option {
	return func(p *Process) error {
		p.initialMode = setup
		return nil
	}
}

// WithObserver registers an observer before the process emits its first event.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(p *Process) error {
		return p.RegisterObserver(observer, eventTypes...)
	}
}
