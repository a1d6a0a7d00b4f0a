package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rulekit"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAMLAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "host.yaml", `
service: arena
initialMode: menu
values:
  hud:
    speed: 4
modes:
  menu:
    exception:
      update: pause_module
      fallback: lobby
    performance:
      maxFrameDuration: 5ms
      nbWarningsBeforeException: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.FrameRate)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8089", cfg.Status.Address)
	assert.Equal(t, "RULEKIT_", cfg.EnvPrefix)
	assert.Equal(t, time.Second/60, cfg.FrameDuration())

	menu := cfg.Modes["menu"]
	require.NotNil(t, menu.Exception)
	require.NotNil(t, menu.Exception.Update)
	assert.Equal(t, rulekit.PauseModule, *menu.Exception.Update)
	require.NotNil(t, menu.Performance)
	assert.Equal(t, Duration(5*time.Millisecond), *menu.Performance.MaxFrameDuration)
}

func TestLoad_TOMLAndJSON(t *testing.T) {
	tomlPath := writeConfig(t, "host.toml", `
service = "arena"
frame_rate = 30
restart_schedule = "@every 1h"

[log]
level = "debug"
tags = ["module", "process"]
`)
	cfg, err := Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.Equal(t, []string{"module", "process"}, cfg.Log.Tags)
	schedule, err := cfg.RestartParsed()
	require.NoError(t, err)
	require.NotNil(t, schedule)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(time.Hour), schedule.Next(start))

	jsonPath := writeConfig(t, "host.json", `{"service": "arena", "status": {"enabled": true, "address": "127.0.0.1:9000"}}`)
	cfg, err = Load(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Status.Address)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"missing service", "a.yaml", "frameRate: 30\n", ErrRequiredFieldMissing},
		{"bad frame rate", "b.yaml", "service: x\nframeRate: -1\n", ErrInvalidConfig},
		{"bad log level", "c.yaml", "service: x\nlog:\n  level: loud\n", ErrInvalidConfig},
		{"bad cron", "d.yaml", "service: x\nrestartSchedule: every day\n", ErrInvalidConfig},
		{"negative warnings", "e.yaml", "service: x\nmodes:\n  m:\n    performance:\n      nbWarningsBeforeException: -1\n", ErrInvalidConfig},
		{"unknown format", "f.ini", "service=x", ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := writeConfig(t, "bad.yaml", "modes:\n  m:\n    exception:\n      load: explode\n")
	_, err = Load(bad)
	assert.ErrorIs(t, err, rulekit.ErrUnknownReaction)
}

func TestProcessDefaults_Validation(t *testing.T) {
	type inner struct {
		Name  string        `default:"inner"`
		Delay time.Duration `default:"250ms"`
	}
	type sample struct {
		Count int      `default:"3"`
		Ratio float64  `default:"0.5"`
		On    bool     `default:"true"`
		Tags  []string `default:"[\"a\",\"b\"]"`
		Set   string   `default:"unused"`
		Inner inner
		Ptr   *inner
	}
	s := sample{Set: "kept"}
	require.NoError(t, ProcessDefaults(&s))
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 0.5, s.Ratio, 1e-9)
	assert.True(t, s.On)
	assert.Equal(t, []string{"a", "b"}, s.Tags)
	assert.Equal(t, "kept", s.Set)
	assert.Equal(t, "inner", s.Inner.Name)
	assert.Equal(t, 250*time.Millisecond, s.Inner.Delay)
	assert.Nil(t, s.Ptr)

	assert.ErrorIs(t, ProcessDefaults(nil), ErrConfigNil)
	assert.ErrorIs(t, ProcessDefaults(s), ErrConfigNotPointer)
	n := 1
	assert.ErrorIs(t, ProcessDefaults(&n), ErrConfigNotStruct)

	type badDefault struct {
		Count int `default:"many"`
	}
	assert.Error(t, ProcessDefaults(&badDefault{}))
}

func TestValidateRequired(t *testing.T) {
	type nested struct {
		ID string `required:"true"`
	}
	type sample struct {
		Name   string  `required:"true"`
		Nested nested  `yaml:"nested"`
		Ptr    *nested `required:"true"`
	}
	err := ValidateRequired(&sample{})
	require.ErrorIs(t, err, ErrRequiredFieldMissing)
	assert.Contains(t, err.Error(), "Name")
	assert.Contains(t, err.Error(), "Nested.ID")
	assert.Contains(t, err.Error(), "Ptr")

	assert.NoError(t, ValidateRequired(&sample{Name: "x", Nested: nested{ID: "1"}, Ptr: &nested{ID: "2"}}))
}

func TestModePolicy_Apply(t *testing.T) {
	update := rulekit.SwitchToFallback
	skip := true
	warnings := 2
	timeout := Duration(3 * time.Second)
	lobby := &rulekit.Setup{Name: "lobby"}
	menu := &rulekit.Setup{Name: "menu"}
	setups := SetupMap{"menu": menu, "lobby": lobby}

	policy := ModePolicy{
		Exception:   &ExceptionOverrides{Update: &update, SkipUnloadIfException: &skip, Fallback: "lobby"},
		Performance: &PerformanceOverrides{NbWarningsBeforeException: &warnings, InitStallingTimeout: &timeout},
	}
	require.NoError(t, policy.Apply(menu, setups))

	require.NotNil(t, menu.ExceptionPolicy)
	assert.Equal(t, rulekit.UnloadModule, menu.ExceptionPolicy.Load)
	assert.Equal(t, rulekit.SwitchToFallback, menu.ExceptionPolicy.Update)
	assert.Equal(t, rulekit.Continue, menu.ExceptionPolicy.Unload)
	assert.True(t, menu.ExceptionPolicy.SkipUnloadIfException)
	assert.Same(t, lobby, menu.ExceptionPolicy.FallbackMode)

	require.NotNil(t, menu.PerformancePolicy)
	defaults := rulekit.DefaultPerformancePolicy()
	assert.Equal(t, 2, menu.PerformancePolicy.NbWarningsBeforeException)
	assert.Equal(t, 3*time.Second, menu.PerformancePolicy.InitStallingTimeout)
	assert.Equal(t, defaults.UpdateStallingTimeout, menu.PerformancePolicy.UpdateStallingTimeout)
	assert.Equal(t, defaults.MaxFrameDuration, menu.PerformancePolicy.MaxFrameDuration)

	bad := ModePolicy{Exception: &ExceptionOverrides{Fallback: "nowhere"}}
	assert.ErrorIs(t, bad.Apply(menu, setups), ErrUnknownFallbackMode)

	cfg := &HostConfig{Modes: map[string]ModePolicy{"ghost": {}}}
	assert.ErrorIs(t, cfg.ApplyModes(setups), ErrInvalidConfig)
}

func TestHostConfig_FillStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte("hud:\n  speed: 8\n  color: red\n"), 0o600))
	t.Setenv("RULEKIT_FILLSTORE__COLOR", "blue")

	cfg := &HostConfig{
		Values:    map[string]any{"hud": map[string]any{"speed": 4, "size": 2}},
		Sources:   []string{"extra.yaml"},
		EnvPrefix: "RULEKIT_FILLSTORE__",
	}
	store := rulekit.NewMapConfigStore(nil)
	require.NoError(t, cfg.FillStore(store, dir))

	v, ok := store.Lookup("hud.speed")
	require.True(t, ok)
	assert.Equal(t, 8, v)
	v, _ = store.Lookup("hud.size")
	assert.Equal(t, 2, v)
	v, _ = store.Lookup("hud.color")
	assert.Equal(t, "red", v)
	v, _ = store.Lookup("color")
	assert.Equal(t, "blue", v)

	cfg.Sources = []string{"extra.ini"}
	assert.Error(t, cfg.FillStore(store, dir))
}

func TestWatcher_ReportsWrites(t *testing.T) {
	path := writeConfig(t, "host.yaml", "service: arena\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("service: arena\nframeRate: 30\n"), 0o600))

	select {
	case change := <-w.Changes():
		assert.Equal(t, w.Path(), change.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
