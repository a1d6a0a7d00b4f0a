package rulekit

import (
	"errors"
	"fmt"
)

// Engine errors
var (
	// Contract violations
	ErrContractViolation   = errors.New("contract violation")
	ErrInvalidRuleState    = errors.New("rule is not in the required state")
	ErrDuplicateRuleID     = errors.New("duplicate rule id in module")
	ErrUnknownRuleID       = errors.New("unknown rule id")
	ErrMissingTickHook     = errors.New("rule does not implement the scheduled tick hook")
	ErrProcessAlreadyStart = errors.New("process already started")
	ErrProcessNotStarted   = errors.New("process not started")
	ErrNoModeToPop         = errors.New("no mode to pop")
	ErrRuleNotOwned        = errors.New("rule is not attached to a module")
	ErrNilSetup            = errors.New("setup is nil")
	ErrInvalidTransition   = errors.New("transition is not in the required state")
	ErrUnknownReaction     = errors.New("unknown exception reaction")

	// Rule errors routed through the exception policy
	ErrRuleFailed   = errors.New("rule failed")
	ErrRulePanicked = errors.New("rule panicked")
	ErrRuleStalled  = errors.New("rule stalled")
	ErrTaskFailed   = errors.New("extension task failed")

	// Dependency resolution errors
	ErrDependencyNotFound     = errors.New("required dependency not found")
	ErrDependencyTypeMismatch = errors.New("dependency does not satisfy the requested type")

	// Process composition errors
	ErrRequiredServiceMissing = errors.New("process is not running the required service")
	ErrRequiredParentMissing  = errors.New("current mode is not the required parent")
	ErrNoFallbackMode         = errors.New("no fallback mode configured")
	ErrLoggerNotSet           = errors.New("logger not set")
)

// ContractViolation is the panic value used for programming errors. It is never routed
// through an ExceptionPolicy.
type ContractViolation struct {
	Op  string
	Err error
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrContractViolation, c.Op, c.Err)
}

func (c *ContractViolation) Unwrap() []error {
	return []error{ErrContractViolation, c.Err}
}

// violate panics with a ContractViolation.
func violate(op string, err error, format string, args ...any) {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	panic(&ContractViolation{Op: op, Err: err})
}

// RuleError is an application-raised error captured by the module owning the rule.
type RuleError struct {
	Module string
	Rule   RuleID
	Phase  PhaseGroup
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("module %s: rule %s failed during %s: %v", e.Module, e.Rule, e.Phase, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// DependencyError reports a required slot that could not be bound.
type DependencyError struct {
	Rule     RuleID
	Key      string
	Kind     DependencyKind
	Searched []string
	Err      error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%v: rule %s needs %q (%s), searched %v", e.Err, e.Rule, e.Key, e.Kind, e.Searched)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
