package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/rulekit"
)

// Static errors for health package
var (
	ErrHealthCheckNotFound  = errors.New("health check not found")
	ErrHealthCheckDuplicate = errors.New("health check already registered")
	ErrNoSnapshot           = errors.New("no process snapshot published")
)

// AggregatedStatus is the combined outcome of every check.
type AggregatedStatus struct {
	OverallStatus   Status        `json:"overall_status"`
	ReadinessStatus Status        `json:"readiness_status"`
	LivenessStatus  Status        `json:"liveness_status"`
	Timestamp       time.Time     `json:"timestamp"`
	Checks          []CheckResult `json:"checks"`
}

// Aggregator runs registered checks against the latest published snapshot.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker

	snapshot atomic.Pointer[rulekit.ProcessSnapshot]
	now      func() time.Time
}

// NewAggregator creates an aggregator with checkers, or DefaultCheckers when none are given.
func NewAggregator(checkers ...Checker) *Aggregator {
	if len(checkers) == 0 {
		checkers = DefaultCheckers()
	}
	return &Aggregator{checkers: checkers, now: time.Now}
}

// Publish stores the snapshot taken by the frame loop.
func (a *Aggregator) Publish(snap rulekit.ProcessSnapshot) {
	a.snapshot.Store(&snap)
}

// Snapshot returns the latest published snapshot.
func (a *Aggregator) Snapshot() (*rulekit.ProcessSnapshot, bool) {
	snap := a.snapshot.Load()
	return snap, snap != nil
}

// Register adds a check. Names must be unique.
func (a *Aggregator) Register(checker Checker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.checkers {
		if c.Name() == checker.Name() {
			return fmt.Errorf("%w: %s", ErrHealthCheckDuplicate, checker.Name())
		}
	}
	a.checkers = append(a.checkers, checker)
	return nil
}

// Unregister removes a check by name.
func (a *Aggregator) Unregister(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range a.checkers {
		if c.Name() == name {
			a.checkers = append(a.checkers[:i], a.checkers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
}

// CheckAll runs every check. Readiness and liveness take the worst status of their
// checks; the overall status covers all of them. Without a snapshot everything is
// unknown.
func (a *Aggregator) CheckAll(ctx context.Context) AggregatedStatus {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	now := a.now()
	status := AggregatedStatus{
		OverallStatus:   StatusHealthy,
		ReadinessStatus: StatusHealthy,
		LivenessStatus:  StatusHealthy,
		Timestamp:       now,
		Checks:          make([]CheckResult, 0, len(checkers)),
	}
	snap, ok := a.Snapshot()
	if !ok {
		status.OverallStatus, status.ReadinessStatus, status.LivenessStatus = StatusUnknown, StatusUnknown, StatusUnknown
		return status
	}
	for _, c := range checkers {
		s, msg := c.Check(ctx, snap)
		status.Checks = append(status.Checks, CheckResult{Name: c.Name(), Type: c.Type(), Status: s, Message: msg, Timestamp: now})
		status.OverallStatus = worse(status.OverallStatus, s)
		switch c.Type() {
		case CheckTypeLiveness:
			status.LivenessStatus = worse(status.LivenessStatus, s)
		case CheckTypeReadiness:
			status.ReadinessStatus = worse(status.ReadinessStatus, s)
		case CheckTypeGeneral:
		}
	}
	return status
}

// CheckOne runs a single check by name.
func (a *Aggregator) CheckOne(ctx context.Context, name string) (CheckResult, error) {
	a.mu.RLock()
	var found Checker
	for _, c := range a.checkers {
		if c.Name() == name {
			found = c
			break
		}
	}
	a.mu.RUnlock()
	if found == nil {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}
	snap, ok := a.Snapshot()
	if !ok {
		return CheckResult{}, ErrNoSnapshot
	}
	s, msg := found.Check(ctx, snap)
	return CheckResult{Name: name, Type: found.Type(), Status: s, Message: msg, Timestamp: a.now()}, nil
}

// IsLive reports whether no liveness check is critical.
func (a *Aggregator) IsLive(ctx context.Context) bool {
	s := a.CheckAll(ctx).LivenessStatus
	return s == StatusHealthy || s == StatusWarning
}

// IsReady reports whether every readiness check is healthy.
func (a *Aggregator) IsReady(ctx context.Context) bool {
	return a.CheckAll(ctx).ReadinessStatus == StatusHealthy
}
