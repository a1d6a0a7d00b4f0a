package feeders

import (
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// EnvFeeder reads environment variables starting with Prefix. The prefix is
// stripped, the rest is lower-cased and "__" becomes the key separator:
// RULEKIT_HUD__SPEED=4 feeds "hud.speed" with Prefix "RULEKIT_".
type EnvFeeder struct {
	Prefix string

	// Inspect lists the environment. It defaults to os.Environ.
	Inspect func() []string
}

// NewEnvFeeder creates a feeder over the process environment.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix, Inspect: os.Environ}
}

func (e EnvFeeder) Values() (map[string]any, error) {
	inspect := e.Inspect
	if inspect == nil {
		inspect = os.Environ
	}
	out := make(map[string]any)
	for _, kv := range inspect() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, e.Prefix) {
			continue
		}
		key := envKey(strings.TrimPrefix(name, e.Prefix))
		if key == "" {
			continue
		}
		out[key] = inferValue(value)
	}
	return out, nil
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "__", Separator)
}

var inferOrder = []reflect.Type{
	reflect.TypeFor[int64](),
	reflect.TypeFor[float64](),
	reflect.TypeFor[bool](),
}

// inferValue types a raw string with the first of int64, float64 or bool that
// accepts it; anything else stays a string.
func inferValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	for _, t := range inferOrder {
		if v, err := cast.FromType(trimmed, t); err == nil {
			return v
		}
	}
	return raw
}
