// Package config holds the host configuration document of a rulekit process:
// frame pacing, logging, the status endpoint, scheduled restarts, the flat values
// fed into the process configuration store and per-mode policy overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/rulekit"
)

// HostConfig is the document read by Load.
type HostConfig struct {
	// FrameRate is the number of frames the host drives per second.
	FrameRate int `yaml:"frameRate" toml:"frame_rate" json:"frameRate" default:"60"`

	Service     string `yaml:"service" toml:"service" json:"service" required:"true"`
	InitialMode string `yaml:"initialMode" toml:"initial_mode" json:"initialMode"`

	Log    LogConfig    `yaml:"log" toml:"log" json:"log"`
	Status StatusConfig `yaml:"status" toml:"status" json:"status"`

	// RestartSchedule is a standard cron expression or descriptor such as "@every 1h".
	RestartSchedule string `yaml:"restartSchedule" toml:"restart_schedule" json:"restartSchedule"`

	// EnvPrefix selects the environment variables fed into the configuration store.
	EnvPrefix string `yaml:"envPrefix" toml:"env_prefix" json:"envPrefix" default:"RULEKIT_"`
	// Sources lists extra files fed into the configuration store, in order.
	Sources []string `yaml:"sources" toml:"sources" json:"sources"`
	// Values are fed into the configuration store before Sources and the environment.
	Values map[string]any `yaml:"values" toml:"values" json:"values"`

	// Modes holds policy overrides keyed by setup name.
	Modes map[string]ModePolicy `yaml:"modes" toml:"modes" json:"modes"`

	// Watch reloads the configuration store when the file changes.
	Watch bool `yaml:"watch" toml:"watch" json:"watch"`
}

// LogConfig configures logging.Facade.
type LogConfig struct {
	Level  string   `yaml:"level" toml:"level" json:"level" default:"info"`
	Tags   []string `yaml:"tags" toml:"tags" json:"tags"`
	Format string   `yaml:"format" toml:"format" json:"format" default:"text"`
}

// StatusConfig configures the health endpoints.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Address string `yaml:"address" toml:"address" json:"address" default:":8089"`
}

var logLevels = []string{"debug", "info", "warning", "error", "exception", "fatal"}

// FrameDuration is the wall time of one frame at FrameRate.
func (c *HostConfig) FrameDuration() time.Duration {
	if c.FrameRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FrameRate)
}

// RestartParsed returns the parsed restart schedule, or nil when none is set.
func (c *HostConfig) RestartParsed() (cron.Schedule, error) {
	if c.RestartSchedule == "" {
		return nil, nil
	}
	schedule, err := cron.ParseStandard(c.RestartSchedule)
	if err != nil {
		return nil, fmt.Errorf("%w: restartSchedule %q: %w", ErrInvalidConfig, c.RestartSchedule, err)
	}
	return schedule, nil
}

// Validate implements Validator.
func (c *HostConfig) Validate() error {
	if c.FrameRate <= 0 || c.FrameRate > 1000 {
		return fmt.Errorf("%w: frameRate must be in 1..1000, got %d", ErrInvalidConfig, c.FrameRate)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Log.Format)
	}
	if _, err := c.RestartParsed(); err != nil {
		return err
	}
	for name, mode := range c.Modes {
		if err := mode.validate(); err != nil {
			return fmt.Errorf("%w: mode %s: %w", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// Load reads the file at path, picking the decoder from its extension, then applies
// defaults and validates the result.
func Load(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg := &HostConfig{}
	if err := Decode(filepath.Ext(path), data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if err := Prepare(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals data in the format named by ext (".yaml", ".yml", ".toml", ".json").
func Decode(ext string, data []byte, cfg any) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
}

// Prepare applies defaults, checks required fields and runs Validate when cfg
// implements Validator.
func Prepare(cfg any) error {
	if err := ProcessDefaults(cfg); err != nil {
		return err
	}
	if err := ValidateRequired(cfg); err != nil {
		return err
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Setups resolves setup names into descriptors.
type Setups interface {
	Lookup(name string) (*rulekit.Setup, bool)
}

// SetupMap is a Setups backed by a map.
type SetupMap map[string]*rulekit.Setup

func (m SetupMap) Lookup(name string) (*rulekit.Setup, bool) {
	s, ok := m[name]
	return s, ok
}

// ApplyModes overlays the Modes overrides on the matching setups.
func (c *HostConfig) ApplyModes(setups Setups) error {
	for name, policy := range c.Modes {
		setup, ok := setups.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: modes.%s does not name a setup", ErrInvalidConfig, name)
		}
		if err := policy.Apply(setup, setups); err != nil {
			return fmt.Errorf("mode %s: %w", name, err)
		}
	}
	return nil
}
