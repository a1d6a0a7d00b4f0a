package feeders

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlFeeder_Values(t *testing.T) {
	path := writeFile(t, "config.yaml", `
hud:
  speed: 4
  title: Arena
debug: true
`)
	values, err := NewYamlFeeder(path).Values()
	require.NoError(t, err)
	assert.Equal(t, 4, values["hud.speed"])
	assert.Equal(t, "Arena", values["hud.title"])
	assert.Equal(t, true, values["debug"])
	assert.Len(t, values, 3)
}

func TestYamlFeeder_Errors(t *testing.T) {
	_, err := YamlFeeder{}.Values()
	assert.ErrorIs(t, err, ErrFeederPathEmpty)

	_, err = NewYamlFeeder(filepath.Join(t.TempDir(), "missing.yaml")).Values()
	assert.ErrorIs(t, err, ErrFeederRead)

	bad := writeFile(t, "bad.yaml", "hud: [unclosed")
	_, err = NewYamlFeeder(bad).Values()
	assert.ErrorIs(t, err, ErrFeederDecode)
}

func TestTomlFeeder_Values(t *testing.T) {
	path := writeFile(t, "config.toml", `
debug = false

[hud]
speed = 4
ratio = 0.5
`)
	values, err := NewTomlFeeder(path).Values()
	require.NoError(t, err)
	assert.Equal(t, int64(4), values["hud.speed"])
	assert.InDelta(t, 0.5, values["hud.ratio"], 1e-9)
	assert.Equal(t, false, values["debug"])
}

func TestJSONFeeder_Values(t *testing.T) {
	path := writeFile(t, "config.json", `{"hud": {"speed": 4, "tags": ["a", "b"]}, "name": "arena"}`)
	values, err := NewJSONFeeder(path).Values()
	require.NoError(t, err)
	assert.Equal(t, json.Number("4"), values["hud.speed"])
	assert.Equal(t, []any{"a", "b"}, values["hud.tags"])
	assert.Equal(t, "arena", values["name"])
}

func TestEnvFeeder_Values(t *testing.T) {
	feeder := EnvFeeder{
		Prefix: "RULEKIT_",
		Inspect: func() []string {
			return []string{
				"RULEKIT_HUD__SPEED=4",
				"RULEKIT_HUD__RATIO=0.25",
				"RULEKIT_DEBUG=true",
				"RULEKIT_TITLE=Arena",
				"RULEKIT_=ignored",
				"OTHER_VALUE=1",
			}
		},
	}
	values, err := feeder.Values()
	require.NoError(t, err)
	assert.EqualValues(t, 4, values["hud.speed"])
	assert.EqualValues(t, 0.25, values["hud.ratio"])
	assert.Equal(t, true, values["debug"])
	assert.Equal(t, "Arena", values["title"])
	assert.NotContains(t, values, "other_value")
	assert.Len(t, values, 4)
}

func TestEnvFeeder_ProcessEnvironment(t *testing.T) {
	t.Setenv("RULEKIT_TEST_FEEDER__NAME", "from-env")
	values, err := NewEnvFeeder("RULEKIT_TEST_").Values()
	require.NoError(t, err)
	assert.Equal(t, "from-env", values["feeder.name"])
}

func TestDotEnvFeeder_Values(t *testing.T) {
	path := writeFile(t, "app.env", `
# comment
export HUD__SPEED=4
TITLE="007"
NAME='arena'
`)
	values, err := NewDotEnvFeeder(path).Values()
	require.NoError(t, err)
	assert.EqualValues(t, 4, values["hud.speed"])
	assert.Equal(t, "007", values["title"])
	assert.Equal(t, "arena", values["name"])

	bad := writeFile(t, "bad.env", "NOT A PAIR\n")
	_, err = NewDotEnvFeeder(bad).Values()
	assert.ErrorIs(t, err, ErrDotEnvInvalidLine)
}

func TestForFile(t *testing.T) {
	tests := []struct {
		path string
		want Feeder
	}{
		{"c.yaml", YamlFeeder{Path: "c.yaml"}},
		{"c.YML", YamlFeeder{Path: "c.YML"}},
		{"c.toml", TomlFeeder{Path: "c.toml"}},
		{"c.json", JSONFeeder{Path: "c.json"}},
		{"c.env", DotEnvFeeder{Path: "c.env"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ForFile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ForFile("c.ini")
	assert.ErrorIs(t, err, ErrUnknownFileFormat)
}
