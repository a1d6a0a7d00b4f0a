package feeders

import (
	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path string
}

func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Values decodes the file and returns its flattened keys. Tables become key prefixes.
func (t TomlFeeder) Values() (map[string]any, error) {
	if t.Path == "" {
		return nil, ErrFeederPathEmpty
	}
	var doc map[string]any
	if _, err := toml.DecodeFile(t.Path, &doc); err != nil {
		return nil, wrapDecodeError("toml", t.Path, err)
	}
	out := make(map[string]any)
	if err := flatten("", doc, out); err != nil {
		return nil, wrapDecodeError("toml", t.Path, err)
	}
	return out, nil
}
