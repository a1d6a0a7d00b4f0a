package feeders

import (
	"bytes"
	"encoding/json"
	"os"
)

// JSONFeeder is a feeder that reads JSON files. Numbers are kept as json.Number so
// integer values survive until a slot converts them.
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

func (j JSONFeeder) Values() (map[string]any, error) {
	if j.Path == "" {
		return nil, ErrFeederPathEmpty
	}
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, wrapReadError(j.Path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, wrapDecodeError("json", j.Path, err)
	}
	out := make(map[string]any)
	if err := flatten("", doc, out); err != nil {
		return nil, wrapDecodeError("json", j.Path, err)
	}
	return out, nil
}
