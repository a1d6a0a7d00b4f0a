package rulekit

import (
	"fmt"
	"time"
)

// PhaseGroup groups module phases for exception handling.
type PhaseGroup int

const (
	// PhaseLoad covers Setup, DependencyInjection and InitializeRules.
	PhaseLoad PhaseGroup = iota
	PhaseUpdate
	PhaseUnload
)

func (g PhaseGroup) String() string {
	switch g {
	case PhaseLoad:
		return "load"
	case PhaseUpdate:
		return "update"
	case PhaseUnload:
		return "unload"
	default:
		return fmt.Sprintf("PhaseGroup(%d)", int(g))
	}
}

// Reaction is what a module does when one of its rules fails.
type Reaction int

const (
	// Continue swallows the error.
	Continue Reaction = iota
	// SkipFrame aborts the remaining rule calls of the module for this frame.
	SkipFrame
	// PauseModule freezes the module until Resume is called.
	PauseModule
	// UnloadModule starts UnloadRules immediately.
	UnloadModule
	// ReloadModule unloads the module then runs Setup again with fresh rules.
	ReloadModule
	// SwitchToFallback unloads the mode and replaces it with the policy's FallbackMode.
	SwitchToFallback
	// PauseAll pauses the whole Process.
	PauseAll
	// StopAll unwinds modes then the service and stops the Process.
	StopAll
)

var reactionNames = map[Reaction]string{
	Continue:         "continue",
	SkipFrame:        "skip_frame",
	PauseModule:      "pause_module",
	UnloadModule:     "unload_module",
	ReloadModule:     "reload_module",
	SwitchToFallback: "switch_to_fallback",
	PauseAll:         "pause_all",
	StopAll:          "stop_all",
}

func (r Reaction) String() string {
	if name, ok := reactionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reaction(%d)", int(r))
}

// ParseReaction parses the snake_case name of a reaction.
func ParseReaction(s string) (Reaction, error) {
	for r, name := range reactionNames {
		if name == s {
			return r, nil
		}
	}
	return Continue, fmt.Errorf("%w: %q", ErrUnknownReaction, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Reaction) MarshalText() ([]byte, error) {
	name, ok := reactionNames[r]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownReaction, int(r))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reaction) UnmarshalText(text []byte) error {
	parsed, err := ParseReaction(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// processScoped reports whether the reaction must be carried out by the Process.
func (r Reaction) processScoped() bool {
	switch r {
	case SwitchToFallback, PauseAll, StopAll:
		return true
	case Continue, SkipFrame, PauseModule, UnloadModule, ReloadModule:
		return false
	default:
		return false
	}
}

// ExceptionPolicy configures the reaction of a module per phase group.
type ExceptionPolicy struct {
	Load   Reaction `yaml:"load" toml:"load" json:"load"`
	Update Reaction `yaml:"update" toml:"update" json:"update"`
	Unload Reaction `yaml:"unload" toml:"unload" json:"unload"`

	// SkipUnloadIfException skips the Unload hook of a rule that failed.
	SkipUnloadIfException bool `yaml:"skipUnloadIfException" toml:"skip_unload_if_exception" json:"skipUnloadIfException"`

	// FallbackMode replaces the failing mode when the reaction is SwitchToFallback.
	FallbackMode *Setup `yaml:"-" toml:"-" json:"-"`
}

// DefaultExceptionPolicy unloads on load errors, skips the frame on update errors and
// carries on when unloading.
func DefaultExceptionPolicy() ExceptionPolicy {
	return ExceptionPolicy{Load: UnloadModule, Update: SkipFrame, Unload: Continue}
}

// ReactionFor returns the configured reaction of group g.
func (p ExceptionPolicy) ReactionFor(g PhaseGroup) Reaction {
	switch g {
	case PhaseLoad:
		return p.Load
	case PhaseUpdate:
		return p.Update
	case PhaseUnload:
		return p.Unload
	default:
		violate("ReactionFor", ErrContractViolation, "unknown phase group %d", int(g))
		return Continue
	}
}

// PerformancePolicy bounds the time a module spends per frame and watches for rules
// that never signal asynchronous completion.
type PerformancePolicy struct {
	// MaxFrameDuration caps InitializeRules/UnloadRules work per frame. Zero means no cap.
	MaxFrameDuration time.Duration `yaml:"maxFrameDuration" toml:"max_frame_duration" json:"maxFrameDuration"`

	CheckStallingRules        bool          `yaml:"checkStallingRules" toml:"check_stalling_rules" json:"checkStallingRules"`
	NbWarningsBeforeException int           `yaml:"nbWarningsBeforeException" toml:"nb_warnings_before_exception" json:"nbWarningsBeforeException"`
	InitStallingTimeout       time.Duration `yaml:"initStallingTimeout" toml:"init_stalling_timeout" json:"initStallingTimeout"`
	UpdateStallingTimeout     time.Duration `yaml:"updateStallingTimeout" toml:"update_stalling_timeout" json:"updateStallingTimeout"`
	UnloadStallingTimeout     time.Duration `yaml:"unloadStallingTimeout" toml:"unload_stalling_timeout" json:"unloadStallingTimeout"`
}

// DefaultPerformancePolicy is tuned for a 60 frames per second host.
func DefaultPerformancePolicy() PerformancePolicy {
	return PerformancePolicy{
		MaxFrameDuration:          10 * time.Millisecond,
		CheckStallingRules:        true,
		NbWarningsBeforeException: 3,
		InitStallingTimeout:       10 * time.Second,
		UpdateStallingTimeout:     200 * time.Millisecond,
		UnloadStallingTimeout:     10 * time.Second,
	}
}

func (p PerformancePolicy) timeout(g PhaseGroup) time.Duration {
	switch g {
	case PhaseLoad:
		return p.InitStallingTimeout
	case PhaseUpdate:
		return p.UpdateStallingTimeout
	case PhaseUnload:
		return p.UnloadStallingTimeout
	default:
		return 0
	}
}
