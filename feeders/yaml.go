package feeders

import (
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Values reads the file and returns its flattened keys.
func (y YamlFeeder) Values() (map[string]any, error) {
	if y.Path == "" {
		return nil, ErrFeederPathEmpty
	}
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, wrapReadError(y.Path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, wrapDecodeError("yaml", y.Path, err)
	}
	out := make(map[string]any)
	if err := flatten("", doc, out); err != nil {
		return nil, wrapDecodeError("yaml", y.Path, err)
	}
	return out, nil
}
