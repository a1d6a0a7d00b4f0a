// Package health aggregates liveness and readiness of a rulekit process and serves
// them over HTTP.
//
// A Process must only be touched from its frame loop, so checks never call it:
// the loop publishes a Snapshot into the Aggregator once per frame and checks read
// the latest published copy.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/rulekit"
)

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusUnknown:
		return 2
	case StatusCritical:
		return 3
	default:
		return 2
	}
}

// worse returns the more severe of a and b.
func worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// CheckType selects which probe a check contributes to.
type CheckType string

const (
	CheckTypeLiveness  CheckType = "liveness"
	CheckTypeReadiness CheckType = "readiness"
	CheckTypeGeneral   CheckType = "general"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name      string    `json:"name"`
	Type      CheckType `json:"type"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Checker inspects a published snapshot.
type Checker interface {
	Name() string
	Type() CheckType
	Check(ctx context.Context, snap *rulekit.ProcessSnapshot) (Status, string)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	CheckName string
	CheckType CheckType
	Fn        func(ctx context.Context, snap *rulekit.ProcessSnapshot) (Status, string)
}

func (c CheckerFunc) Name() string    { return c.CheckName }
func (c CheckerFunc) Type() CheckType { return c.CheckType }

func (c CheckerFunc) Check(ctx context.Context, snap *rulekit.ProcessSnapshot) (Status, string) {
	return c.Fn(ctx, snap)
}

// ProcessAlive fails once the process has stopped.
func ProcessAlive() Checker {
	return CheckerFunc{CheckName: "process", CheckType: CheckTypeLiveness, Fn: func(_ context.Context, snap *rulekit.ProcessSnapshot) (Status, string) {
		switch snap.State {
		case rulekit.ProcessRunning.String():
			return StatusHealthy, snap.State
		case rulekit.ProcessPaused.String(), rulekit.ProcessStopping.String(), rulekit.ProcessCreated.String():
			return StatusWarning, snap.State
		default:
			return StatusCritical, snap.State
		}
	}}
}

// ServiceReady requires the service module to be updating its rules.
func ServiceReady() Checker {
	return CheckerFunc{CheckName: "service", CheckType: CheckTypeReadiness, Fn: func(_ context.Context, snap *rulekit.ProcessSnapshot) (Status, string) {
		if snap.Service == nil {
			return StatusCritical, "no service module"
		}
		if !snap.Service.Ready {
			return StatusCritical, fmt.Sprintf("service %s is %s", snap.Service.Name, snap.Service.State)
		}
		return StatusHealthy, snap.Service.Name
	}}
}

// ModeReady requires the current mode, when there is one, to be ready.
func ModeReady() Checker {
	return CheckerFunc{CheckName: "mode", CheckType: CheckTypeReadiness, Fn: func(_ context.Context, snap *rulekit.ProcessSnapshot) (Status, string) {
		if len(snap.Modes) == 0 {
			return StatusHealthy, "no mode"
		}
		cur := snap.Modes[len(snap.Modes)-1]
		if cur.Paused {
			return StatusWarning, fmt.Sprintf("mode %s is paused", cur.Name)
		}
		if !cur.Ready {
			return StatusCritical, fmt.Sprintf("mode %s is %s", cur.Name, cur.State)
		}
		return StatusHealthy, cur.Name
	}}
}

// RecentErrors warns once the error history holds at least threshold entries.
func RecentErrors(threshold int) Checker {
	return CheckerFunc{CheckName: "errors", CheckType: CheckTypeGeneral, Fn: func(_ context.Context, snap *rulekit.ProcessSnapshot) (Status, string) {
		n := len(snap.Errors)
		if threshold > 0 && n >= threshold {
			return StatusWarning, fmt.Sprintf("%d errors, last: %s", n, snap.Errors[n-1])
		}
		return StatusHealthy, fmt.Sprintf("%d errors", n)
	}}
}

// DefaultCheckers are the checks registered by NewAggregator when none are given.
func DefaultCheckers() []Checker {
	return []Checker{ProcessAlive(), ServiceReady(), ModeReady(), RecentErrors(16)}
}
