package rulekit

import (
	"fmt"
	"sync/atomic"
)

// TransitionState is the state of a TransitionActivity.
type TransitionState int32

const (
	TransitionInactive TransitionState = iota
	TransitionStarting
	TransitionActive
	TransitionStopping
)

func (s TransitionState) String() string {
	switch s {
	case TransitionInactive:
		return "inactive"
	case TransitionStarting:
		return "starting"
	case TransitionActive:
		return "active"
	case TransitionStopping:
		return "stopping"
	default:
		return fmt.Sprintf("TransitionState(%d)", int32(s))
	}
}

// Transition is the presentation side of a module's loading and unloading window,
// a loading screen for instance. Enter and Exit start the visuals; the implementation
// calls ConfirmStarted / ConfirmStopped on the activity once they are done, possibly
// on a later frame.
type Transition interface {
	Enter(a *TransitionActivity)
	Exit(a *TransitionActivity)
	Progress(a *TransitionActivity, progress float64, action string)
}

// TransitionActivity pairs a Transition with one module. Starting overlaps
// Setup..InitializeRules and Stopping overlaps UnloadRules; each ends once both the
// module work and the Transition confirmation are in.
type TransitionActivity struct {
	hooks Transition
	state TransitionState

	progress   float64
	action     string
	overridden bool

	confirmed atomic.Bool
	workDone  bool
}

func newTransitionActivity(hooks Transition) *TransitionActivity {
	return &TransitionActivity{hooks: hooks}
}

// State returns the current state.
func (a *TransitionActivity) State() TransitionState {
	return a.state
}

// Progress returns the last progress value in [0, 1].
func (a *TransitionActivity) Progress() float64 {
	return a.progress
}

// Action returns the last reported action label.
func (a *TransitionActivity) Action() string {
	return a.action
}

// ReportProgress overrides the default progress (fraction of initialized rules) for
// the current Starting or Stopping window.
func (a *TransitionActivity) ReportProgress(p float64) {
	a.progress = min(max(p, 0), 1)
	a.overridden = true
}

// ReportAction sets the label shown next to the progress.
func (a *TransitionActivity) ReportAction(action string) {
	a.action = action
}

// ConfirmStarted is called by the Transition once its entry is complete.
func (a *TransitionActivity) ConfirmStarted() {
	if a.state != TransitionStarting {
		violate("ConfirmStarted", ErrInvalidTransition, "state is %s", a.state)
	}
	a.confirmed.Store(true)
}

// ConfirmStopped is called by the Transition once its exit is complete.
func (a *TransitionActivity) ConfirmStopped() {
	if a.state != TransitionStopping {
		violate("ConfirmStopped", ErrInvalidTransition, "state is %s", a.state)
	}
	a.confirmed.Store(true)
}

func (a *TransitionActivity) start() {
	if a.state != TransitionInactive {
		return
	}
	a.enter(TransitionStarting)
	a.hooks.Enter(a)
}

func (a *TransitionActivity) stop() {
	switch a.state {
	case TransitionStarting, TransitionActive:
		a.enter(TransitionStopping)
		a.hooks.Exit(a)
	case TransitionInactive, TransitionStopping:
	}
}

func (a *TransitionActivity) enter(s TransitionState) {
	a.state = s
	a.overridden = false
	a.workDone = false
	a.confirmed.Store(false)
}

// complete records that the module side of the current window is finished.
func (a *TransitionActivity) complete() {
	a.workDone = true
}

// tick forwards progress to the Transition and closes the window when both sides are done.
func (a *TransitionActivity) tick(defaultProgress float64) {
	switch a.state {
	case TransitionStarting, TransitionStopping:
	case TransitionInactive, TransitionActive:
		return
	}
	if !a.overridden {
		a.progress = defaultProgress
	}
	a.hooks.Progress(a, a.progress, a.action)
	if !a.workDone || !a.confirmed.Load() {
		return
	}
	if a.state == TransitionStarting {
		a.enter(TransitionActive)
	} else {
		a.enter(TransitionInactive)
	}
}
