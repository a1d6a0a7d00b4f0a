package rulekit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// RuleID identifies a rule inside its module. It is derived from the rule's concrete type.
type RuleID string

// RuleIDOf returns the id of a rule instance.
func RuleIDOf(r Rule) RuleID {
	return RuleID(fmt.Sprintf("%T", r))
}

// RuleIDFor returns the id of rule type R, usually a pointer type such as *MoveRule.
func RuleIDFor[R Rule]() RuleID {
	var zero R
	return RuleID(fmt.Sprintf("%T", zero))
}

// RuleState is the lifecycle state of a rule.
type RuleState int32

const (
	RuleUnused RuleState = iota
	RuleInitializing
	RuleInitialized
	RuleUnloading
	RuleUnloaded
)

func (s RuleState) String() string {
	switch s {
	case RuleUnused:
		return "unused"
	case RuleInitializing:
		return "initializing"
	case RuleInitialized:
		return "initialized"
	case RuleUnloading:
		return "unloading"
	case RuleUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("RuleState(%d)", int32(s))
	}
}

func (s RuleState) active() bool {
	switch s {
	case RuleInitializing, RuleInitialized, RuleUnloading:
		return true
	case RuleUnused, RuleUnloaded:
		return false
	default:
		return false
	}
}

// Rule is the atomic unit of behavior driven by a Module.
//
// Concrete rules embed BaseRule and implement the three hooks. Initialize and
// Unload may return before their work is done; the rule then calls
// MarkInitialized or MarkUnloaded later, from any goroutine, and the module
// notices on its next tick. A hook that returns an error or panics is treated
// as if the rule had called MarkError.
//
// A failed rule still gets one Unload call during UnloadRules unless the
// module's ExceptionPolicy sets SkipUnloadIfException. That call must finish
// its work before returning.
type Rule interface {
	Initialize() error
	Update() error
	Unload() error

	core() *BaseRule
}

// FixedUpdater is implemented by rules that take part in the FixedUpdate tick.
type FixedUpdater interface {
	FixedUpdate() error
}

// LateUpdater is implemented by rules that take part in the LateUpdate tick.
type LateUpdater interface {
	LateUpdate() error
}

// BaseRule carries the lifecycle state every rule shares. Embed it by value.
type BaseRule struct {
	state         atomic.Int32
	errorDetected atomic.Bool

	mu      sync.Mutex
	pending error
	last    error
}

func (b *BaseRule) core() *BaseRule {
	return b
}

// State returns the current lifecycle state.
func (b *BaseRule) State() RuleState {
	return RuleState(b.state.Load())
}

// ErrorDetected reports whether the rule left its lifecycle through the error path.
func (b *BaseRule) ErrorDetected() bool {
	return b.errorDetected.Load()
}

// Err returns the error that ended the rule, if any.
func (b *BaseRule) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// MarkInitialized signals the end of asynchronous initialization.
// Calling it outside the Initializing state is a contract violation.
func (b *BaseRule) MarkInitialized() {
	if !b.state.CompareAndSwap(int32(RuleInitializing), int32(RuleInitialized)) {
		violate("MarkInitialized", ErrInvalidRuleState, "state is %s", b.State())
	}
}

// MarkUnloaded signals the end of asynchronous unloading.
// Calling it outside the Unloading state is a contract violation.
func (b *BaseRule) MarkUnloaded() {
	if !b.state.CompareAndSwap(int32(RuleUnloading), int32(RuleUnloaded)) {
		violate("MarkUnloaded", ErrInvalidRuleState, "state is %s", b.State())
	}
}

// MarkError moves the rule straight to Unloaded and reports err to the owning module.
// It is valid from Initializing, Initialized and Unloading.
func (b *BaseRule) MarkError(err error) {
	if !b.fail(err) {
		violate("MarkError", ErrInvalidRuleState, "state is %s", b.State())
	}
}

func (b *BaseRule) fail(err error) bool {
	for {
		s := RuleState(b.state.Load())
		if !s.active() {
			return false
		}
		if b.state.CompareAndSwap(int32(s), int32(RuleUnloaded)) {
			break
		}
	}
	if err == nil {
		err = ErrRuleFailed
	}
	b.errorDetected.Store(true)
	b.mu.Lock()
	b.pending = err
	b.last = err
	b.mu.Unlock()
	return true
}

// takeError hands a pending error over to the module exactly once.
func (b *BaseRule) takeError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.pending
	b.pending = nil
	return err
}

func (b *BaseRule) transition(from, to RuleState, op string) {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		violate(op, ErrInvalidRuleState, "expected %s, state is %s", from, b.State())
	}
}

// baseInitialize moves r from Unused to Initializing and runs its Initialize hook.
func baseInitialize(r Rule) error {
	r.core().transition(RuleUnused, RuleInitializing, "BaseInitialize")
	return guard(r.Initialize)
}

// baseUpdate runs the hook of category c. r must be Initialized.
func baseUpdate(r Rule, c TickCategory) error {
	if s := r.core().State(); s != RuleInitialized {
		violate("BaseUpdate", ErrInvalidRuleState, "expected %s, state is %s", RuleInitialized, s)
	}
	switch c {
	case TickUpdate:
		return guard(r.Update)
	case TickFixedUpdate:
		return guard(r.(FixedUpdater).FixedUpdate)
	case TickLateUpdate:
		return guard(r.(LateUpdater).LateUpdate)
	default:
		violate("BaseUpdate", ErrContractViolation, "unknown tick category %d", int(c))
		return nil
	}
}

// baseUnload moves r from Initialized to Unloading and runs its Unload hook.
func baseUnload(r Rule) error {
	r.core().transition(RuleInitialized, RuleUnloading, "BaseUnload")
	return guard(r.Unload)
}

// guard runs a hook, turning an escaping panic into ErrRulePanicked. Contract
// violations are re-raised untouched.
func guard(hook func() error) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		var cv *ContractViolation
		if e, ok := rec.(error); ok && errors.As(e, &cv) {
			panic(rec)
		}
		err = fmt.Errorf("%w: %v", ErrRulePanicked, rec)
	}()
	return hook()
}
