// Observer pattern interfaces for lifecycle events. Events use the CloudEvents
// specification so hosts can forward them to external systems unchanged.

package rulekit

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of engine events.
type Observer interface {
	// OnEvent is called synchronously on the frame that produced the event.
	// Observers should return quickly; errors are logged and otherwise ignored.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration tracking.
	ObserverID() string
}

// Subject is implemented by Process.
type Subject interface {
	// RegisterObserver adds an observer. An empty eventTypes list subscribes to everything.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// GetObservers returns information about registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by modules and the process.
const (
	EventTypeModulePhase    = "com.rulekit.module.phase"
	EventTypeModuleReady    = "com.rulekit.module.ready"
	EventTypeModuleUnloaded = "com.rulekit.module.unloaded"
	EventTypeRuleFailed     = "com.rulekit.rule.failed"
	EventTypeRuleStalled    = "com.rulekit.rule.stalled"
	EventTypeProcessState   = "com.rulekit.process.state"
	EventTypeModeSwitched   = "com.rulekit.mode.switched"
)

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements Observer by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
