package logging

import "github.com/GoCodeAlone/rulekit"

// DefaultTag is used for engine lines that carry no "tag" argument.
const DefaultTag = "rulekit"

// engineLogger adapts a Facade to rulekit.Logger, taking the tag from the
// "tag" key/value pair of each call.
type engineLogger struct {
	f *Facade
}

// Engine returns the facade as a rulekit.Logger.
func (f *Facade) Engine() rulekit.Logger {
	return engineLogger{f: f}
}

func (e engineLogger) Info(msg string, args ...any)  { e.log(LevelInfo, msg, args) }
func (e engineLogger) Error(msg string, args ...any) { e.log(LevelError, msg, args) }
func (e engineLogger) Warn(msg string, args ...any)  { e.log(LevelWarning, msg, args) }
func (e engineLogger) Debug(msg string, args ...any) { e.log(LevelDebug, msg, args) }

func (e engineLogger) log(l Level, msg string, args []any) {
	tag, rest := splitTag(args)
	e.f.Log(l, tag, msg, rest...)
}

// splitTag removes the first "tag" pair from args.
func splitTag(args []any) (string, []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || key != "tag" {
			continue
		}
		tag, ok := args[i+1].(string)
		if !ok {
			continue
		}
		rest := make([]any, 0, len(args)-2)
		rest = append(rest, args[:i]...)
		rest = append(rest, args[i+2:]...)
		return tag, rest
	}
	return DefaultTag, args
}
