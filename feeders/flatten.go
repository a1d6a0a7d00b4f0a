// Package feeders loads flat key/value configuration for rulekit.ConfigStore from
// YAML, TOML and JSON files, .env files and the process environment.
//
// Nested documents are flattened with "." separators, so the YAML document
//
//	hud:
//	  speed: 4
//
// feeds the key "hud.speed". Every feeder satisfies rulekit.Feeder.
package feeders

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Separator joins nested keys.
const Separator = "."

// Feeder matches rulekit.Feeder.
type Feeder interface {
	Values() (map[string]any, error)
}

// flatten walks nested maps into dst. Slices and scalars are leaves.
func flatten(prefix string, src any, dst map[string]any) error {
	switch v := src.(type) {
	case map[string]any:
		for k, child := range v {
			if err := flatten(join(prefix, k), child, dst); err != nil {
				return err
			}
		}
	case map[any]any:
		for k, child := range v {
			key, ok := k.(string)
			if !ok {
				return fmt.Errorf("%w: %T at %q", ErrUnsupportedKeyType, k, prefix)
			}
			if err := flatten(join(prefix, key), child, dst); err != nil {
				return err
			}
		}
	default:
		if prefix != "" {
			dst[prefix] = v
		}
	}
	return nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// ForFile picks the feeder matching the file extension.
func ForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	case ".env":
		return NewDotEnvFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFileFormat, path)
	}
}

// MapFeeder feeds an in-memory document, flattened like the file feeders.
type MapFeeder map[string]any

func (m MapFeeder) Values() (map[string]any, error) {
	out := make(map[string]any)
	if err := flatten("", map[string]any(m), out); err != nil {
		return nil, err
	}
	return out, nil
}
