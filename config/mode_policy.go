package config

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/rulekit"
)

// Duration is a time.Duration written as "250ms", "10s" in configuration files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// ModePolicy overrides the policies of one setup. Unset fields keep the value
// already on the setup, or the engine default.
type ModePolicy struct {
	Exception   *ExceptionOverrides   `yaml:"exception" toml:"exception" json:"exception"`
	Performance *PerformanceOverrides `yaml:"performance" toml:"performance" json:"performance"`
}

// ExceptionOverrides mirrors rulekit.ExceptionPolicy with a fallback setup name.
type ExceptionOverrides struct {
	Load                  *rulekit.Reaction `yaml:"load" toml:"load" json:"load"`
	Update                *rulekit.Reaction `yaml:"update" toml:"update" json:"update"`
	Unload                *rulekit.Reaction `yaml:"unload" toml:"unload" json:"unload"`
	SkipUnloadIfException *bool             `yaml:"skipUnloadIfException" toml:"skip_unload_if_exception" json:"skipUnloadIfException"`
	Fallback              string            `yaml:"fallback" toml:"fallback" json:"fallback"`
}

// PerformanceOverrides mirrors rulekit.PerformancePolicy.
type PerformanceOverrides struct {
	MaxFrameDuration          *Duration `yaml:"maxFrameDuration" toml:"max_frame_duration" json:"maxFrameDuration"`
	CheckStallingRules        *bool     `yaml:"checkStallingRules" toml:"check_stalling_rules" json:"checkStallingRules"`
	NbWarningsBeforeException *int      `yaml:"nbWarningsBeforeException" toml:"nb_warnings_before_exception" json:"nbWarningsBeforeException"`
	InitStallingTimeout       *Duration `yaml:"initStallingTimeout" toml:"init_stalling_timeout" json:"initStallingTimeout"`
	UpdateStallingTimeout     *Duration `yaml:"updateStallingTimeout" toml:"update_stalling_timeout" json:"updateStallingTimeout"`
	UnloadStallingTimeout     *Duration `yaml:"unloadStallingTimeout" toml:"unload_stalling_timeout" json:"unloadStallingTimeout"`
}

func (p ModePolicy) validate() error {
	if perf := p.Performance; perf != nil {
		if perf.NbWarningsBeforeException != nil && *perf.NbWarningsBeforeException < 0 {
			return fmt.Errorf("nbWarningsBeforeException must not be negative")
		}
		for name, d := range map[string]*Duration{
			"maxFrameDuration":      perf.MaxFrameDuration,
			"initStallingTimeout":   perf.InitStallingTimeout,
			"updateStallingTimeout": perf.UpdateStallingTimeout,
			"unloadStallingTimeout": perf.UnloadStallingTimeout,
		} {
			if d != nil && *d < 0 {
				return fmt.Errorf("%s must not be negative", name)
			}
		}
	}
	return nil
}

// Apply overlays p on setup. A fallback name is resolved through setups.
func (p ModePolicy) Apply(setup *rulekit.Setup, setups Setups) error {
	if ex := p.Exception; ex != nil {
		policy := rulekit.DefaultExceptionPolicy()
		if setup.ExceptionPolicy != nil {
			policy = *setup.ExceptionPolicy
		}
		setIf(&policy.Load, ex.Load)
		setIf(&policy.Update, ex.Update)
		setIf(&policy.Unload, ex.Unload)
		setIf(&policy.SkipUnloadIfException, ex.SkipUnloadIfException)
		if ex.Fallback != "" {
			fallback, ok := setups.Lookup(ex.Fallback)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownFallbackMode, ex.Fallback)
			}
			policy.FallbackMode = fallback
		}
		setup.ExceptionPolicy = &policy
	}

	if perf := p.Performance; perf != nil {
		policy := rulekit.DefaultPerformancePolicy()
		if setup.PerformancePolicy != nil {
			policy = *setup.PerformancePolicy
		}
		setDuration(&policy.MaxFrameDuration, perf.MaxFrameDuration)
		setIf(&policy.CheckStallingRules, perf.CheckStallingRules)
		setIf(&policy.NbWarningsBeforeException, perf.NbWarningsBeforeException)
		setDuration(&policy.InitStallingTimeout, perf.InitStallingTimeout)
		setDuration(&policy.UpdateStallingTimeout, perf.UpdateStallingTimeout)
		setDuration(&policy.UnloadStallingTimeout, perf.UnloadStallingTimeout)
		setup.PerformancePolicy = &policy
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
