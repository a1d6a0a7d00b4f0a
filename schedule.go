package rulekit

import "fmt"

// SchedulePattern decides on which frames a rule updates. A rule scheduled with
// (Frequency, Offset) updates on frame f when f >= 0 and f mod Frequency == Offset.
// Frequency 0 never updates.
type SchedulePattern struct {
	Frequency uint8 `yaml:"frequency" toml:"frequency" json:"frequency"`
	Offset    uint8 `yaml:"offset" toml:"offset" json:"offset"`
}

// EveryFrame is the default pattern.
var EveryFrame = SchedulePattern{Frequency: 1}

// Never disables a rule on a tick category.
var Never = SchedulePattern{}

// NewSchedulePattern normalizes offset into [0, frequency).
func NewSchedulePattern(frequency, offset uint8) SchedulePattern {
	if frequency >= 1 {
		offset %= frequency
	}
	return SchedulePattern{Frequency: frequency, Offset: offset}
}

// Includes reports whether the pattern fires on frame.
func (p SchedulePattern) Includes(frame int64) bool {
	if p.Frequency == 0 || frame < 0 {
		return false
	}
	return frame%int64(p.Frequency) == int64(p.Offset%p.Frequency)
}

func (p SchedulePattern) String() string {
	if p.Frequency == 0 {
		return "never"
	}
	return fmt.Sprintf("every %d (+%d)", p.Frequency, p.Offset%p.Frequency)
}

// TickCategory identifies one of the three per-frame tick calls.
type TickCategory int

const (
	TickUpdate TickCategory = iota
	TickFixedUpdate
	TickLateUpdate
)

func (c TickCategory) String() string {
	switch c {
	case TickUpdate:
		return "update"
	case TickFixedUpdate:
		return "fixed_update"
	case TickLateUpdate:
		return "late_update"
	default:
		return fmt.Sprintf("tick(%d)", int(c))
	}
}

// Schedule maps rule ids to patterns for one tick category. A nil Schedule
// schedules every rule with EveryFrame.
type Schedule map[RuleID]SchedulePattern

// scheduler holds the three tables of a module together with their frame counters.
// Counters start at -1 so nothing fires before the module reaches UpdateRules.
type scheduler struct {
	tables [3]map[RuleID]SchedulePattern
	frames [3]int64
}

func newScheduler(update, fixed, late Schedule) *scheduler {
	s := &scheduler{frames: [3]int64{-1, -1, -1}}
	for i, table := range []Schedule{update, fixed, late} {
		s.tables[i] = make(map[RuleID]SchedulePattern, len(table))
		for id, p := range table {
			s.tables[i][id] = NewSchedulePattern(p.Frequency, p.Offset)
		}
	}
	return s
}

func (s *scheduler) pattern(c TickCategory, id RuleID) SchedulePattern {
	if p, ok := s.tables[c][id]; ok {
		return p
	}
	return EveryFrame
}

// advance moves the category counter and returns the new frame.
func (s *scheduler) advance(c TickCategory) int64 {
	s.frames[c]++
	return s.frames[c]
}

func (s *scheduler) frame(c TickCategory) int64 {
	return s.frames[c]
}

func (s *scheduler) due(c TickCategory, id RuleID) bool {
	return s.pattern(c, id).Includes(s.frames[c])
}

func (s *scheduler) reset() {
	s.frames = [3]int64{-1, -1, -1}
}
