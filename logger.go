package rulekit

// Logger defines the interface for engine logging.
// The engine uses structured logging with key-value pairs so embedding hosts
// can control how engine logs appear.
//
// Every engine log line carries a "tag" key naming the subsystem that produced
// it ("module", "process", "watchdog", "transition", "dependency"), which lets
// a tag-filtering facade such as logging.Facade drop whole subsystems:
//
//	logger.Info("Module ready", "tag", "module", "module", "hud")
//
// This shape is compatible with log/slog, so *slog.Logger satisfies it directly.
//
// Logger implementations must tolerate concurrent calls: rules are allowed to
// complete asynchronous work on other goroutines and may log from there.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for recoverable rule errors routed through an ExceptionPolicy.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for stall warnings and ignored configuration.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// Tags used on engine log lines.
const (
	TagModule     = "module"
	TagProcess    = "process"
	TagWatchdog   = "watchdog"
	TagTransition = "transition"
	TagDependency = "dependency"
)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
