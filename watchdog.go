package rulekit

import "time"

type stallSeverity int

const (
	stallWarning stallSeverity = iota
	stallFatal
)

// stallVerdict is one timeout occurrence for a rule.
type stallVerdict struct {
	Rule       RuleID
	Phase      PhaseGroup
	Severity   stallSeverity
	Occurrence int
	Elapsed    time.Duration
}

type stallKey struct {
	id    RuleID
	phase PhaseGroup
}

type stallEntry struct {
	elapsed  time.Duration
	reported int
}

// watchdog counts timeout occurrences per rule and phase. The first
// NbWarningsBeforeException occurrences are warnings, the next one is fatal.
type watchdog struct {
	policy  PerformancePolicy
	entries map[stallKey]*stallEntry
}

func newWatchdog(policy PerformancePolicy) *watchdog {
	return &watchdog{policy: policy, entries: make(map[stallKey]*stallEntry)}
}

func (w *watchdog) enabled(phase PhaseGroup) bool {
	return w.policy.CheckStallingRules && w.policy.timeout(phase) > 0
}

// pending accumulates dt for a rule still waiting on its completion mark.
func (w *watchdog) pending(id RuleID, phase PhaseGroup, dt time.Duration) []stallVerdict {
	if !w.enabled(phase) {
		return nil
	}
	e := w.entry(id, phase)
	e.elapsed += dt
	return w.report(id, phase, e, int(e.elapsed/w.policy.timeout(phase)))
}

// call records the duration of one synchronous hook call; each call at or above the
// timeout is one occurrence.
func (w *watchdog) call(id RuleID, phase PhaseGroup, d time.Duration) []stallVerdict {
	if !w.enabled(phase) || d < w.policy.timeout(phase) {
		return nil
	}
	e := w.entry(id, phase)
	e.elapsed += d
	return w.report(id, phase, e, e.reported+1)
}

func (w *watchdog) report(id RuleID, phase PhaseGroup, e *stallEntry, occurrences int) []stallVerdict {
	var out []stallVerdict
	limit := max(w.policy.NbWarningsBeforeException, 0)
	for e.reported < occurrences && e.reported <= limit {
		e.reported++
		v := stallVerdict{Rule: id, Phase: phase, Severity: stallWarning, Occurrence: e.reported, Elapsed: e.elapsed}
		if e.reported > limit {
			v.Severity = stallFatal
		}
		out = append(out, v)
	}
	return out
}

func (w *watchdog) entry(id RuleID, phase PhaseGroup) *stallEntry {
	k := stallKey{id: id, phase: phase}
	e, ok := w.entries[k]
	if !ok {
		e = &stallEntry{}
		w.entries[k] = e
	}
	return e
}

// forget drops the counters of a rule once it completed or failed.
func (w *watchdog) forget(id RuleID, phase PhaseGroup) {
	delete(w.entries, stallKey{id: id, phase: phase})
}

func (w *watchdog) reset() {
	clear(w.entries)
}
