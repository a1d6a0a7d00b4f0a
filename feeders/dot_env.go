package feeders

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DotEnvFeeder is a feeder that reads .env files. Keys follow the EnvFeeder
// rules; real environment variables are not consulted.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a new DotEnvFeeder that reads from the specified .env file
func NewDotEnvFeeder(filePath string) DotEnvFeeder {
	return DotEnvFeeder{Path: filePath}
}

func (f DotEnvFeeder) Values() (map[string]any, error) {
	if f.Path == "" {
		return nil, ErrFeederPathEmpty
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, wrapReadError(f.Path, err)
	}
	defer file.Close()

	out := make(map[string]any)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		name, value, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w at line %d: %s", ErrDotEnvInvalidLine, lineNum, line)
		}
		if !strings.HasPrefix(name, f.Prefix) {
			continue
		}
		key := envKey(strings.TrimPrefix(name, f.Prefix))
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if unquoted, quoted := unquote(value); quoted {
			out[key] = unquoted
			continue
		}
		out[key] = inferValue(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapReadError(f.Path, err)
	}
	return out, nil
}

// unquote strips matching single or double quotes. Quoted values stay strings.
func unquote(v string) (string, bool) {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1], true
		}
	}
	return v, false
}
