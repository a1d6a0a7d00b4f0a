package rulekit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// NewCloudEvent creates a CloudEvent with a time-ordered id.
func NewCloudEvent(eventType, source string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// generateEventID uses UUIDv7 so ids sort by emission time.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
	order        int
}

// eventHub delivers events to observers in registration order on the caller's
// goroutine, keeping delivery inside the frame that produced the event.
type eventHub struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	next      int
	logger    Logger
	now       func() time.Time
}

func newEventHub(logger Logger) *eventHub {
	return &eventHub{observers: make(map[string]*observerRegistration), logger: logger, now: time.Now}
}

func (h *eventHub) register(observer Observer, eventTypes ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	order := h.next
	if existing, ok := h.observers[observer.ObserverID()]; ok {
		order = existing.order
	} else {
		h.next++
	}
	h.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: h.now(),
		order:        order,
	}
	h.logger.Debug("Observer registered", "tag", TagProcess, "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (h *eventHub) unregister(observer Observer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.observers, observer.ObserverID())
	return nil
}

func (h *eventHub) info() []ObserverInfo {
	regs := h.sorted()
	info := make([]ObserverInfo, 0, len(regs))
	for _, r := range regs {
		types := make([]string, 0, len(r.eventTypes))
		for t := range r.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		info = append(info, ObserverInfo{ID: r.observer.ObserverID(), EventTypes: types, RegisteredAt: r.registeredAt})
	}
	return info
}

func (h *eventHub) sorted() []*observerRegistration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	regs := make([]*observerRegistration, 0, len(h.observers))
	for _, r := range h.observers {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })
	return regs
}

func (h *eventHub) emit(eventType, source string, data any) {
	regs := h.sorted()
	if len(regs) == 0 {
		return
	}
	event := NewCloudEvent(eventType, source, data)
	if err := event.Validate(); err != nil {
		h.logger.Error("Invalid CloudEvent", "tag", TagProcess, "eventType", eventType, "error", err)
		return
	}
	for _, r := range regs {
		if len(r.eventTypes) > 0 && !r.eventTypes[eventType] {
			continue
		}
		h.deliver(r.observer, event)
	}
}

func (h *eventHub) deliver(observer Observer, event cloudevents.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Observer panicked", "tag", TagProcess, "observerID", observer.ObserverID(), "event", event.Type(), "panic", fmt.Sprint(rec))
		}
	}()
	if err := observer.OnEvent(context.Background(), event); err != nil {
		h.logger.Error("Observer error", "tag", TagProcess, "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// Event payloads.

// PhaseEvent is the data of EventTypeModulePhase.
type PhaseEvent struct {
	Module string `json:"module"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// RuleFailureEvent is the data of EventTypeRuleFailed and EventTypeRuleStalled.
type RuleFailureEvent struct {
	Module   string `json:"module"`
	Rule     string `json:"rule"`
	Phase    string `json:"phase"`
	Reaction string `json:"reaction,omitempty"`
	Error    string `json:"error"`
	Fatal    bool   `json:"fatal"`
}

// ProcessStateEvent is the data of EventTypeProcessState.
type ProcessStateEvent struct {
	Process string `json:"process"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// ModeSwitchEvent is the data of EventTypeModeSwitched.
type ModeSwitchEvent struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}
