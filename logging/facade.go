// Package logging is the process-wide logging facade of a rulekit host. It adds
// severities, a minimum level and a tag filter on top of log/slog and is safe for
// concurrent use, so rules finishing work on other goroutines may log freely.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level orders severities. Warning and Error are recoverable, Fatal ends the process.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelException
	LevelFatal
)

var levelNames = [...]string{"debug", "info", "warning", "error", "exception", "fatal"}

// ErrUnknownLevel is returned by ParseLevel.
var ErrUnknownLevel = errors.New("unknown log level")

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int32(l))
}

// ParseLevel accepts the lower- or upper-case level names.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, s) {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// slog levels for the severities slog has no name for.
const (
	slogException = slog.LevelError + 2
	slogFatal     = slog.LevelError + 4
)

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelException:
		return slogException
	case LevelFatal:
		return slogFatal
	default:
		return slog.LevelInfo
	}
}

// Facade filters by level and tag and forwards to a slog.Logger.
type Facade struct {
	logger *slog.Logger
	min    atomic.Int32

	mu   sync.RWMutex
	tags map[string]struct{}

	exit func(code int)
}

// Option configures a Facade.
type Option func(*Facade)

// WithMinLevel sets the initial minimum level.
func WithMinLevel(l Level) Option {
	return func(f *Facade) {
		f.min.Store(int32(l))
	}
}

// WithTags sets the initial tag allow-set.
func WithTags(tags ...string) Option {
	return func(f *Facade) {
		f.setTags(tags)
	}
}

// WithExit replaces os.Exit as the action taken after a Fatal line.
func WithExit(exit func(code int)) Option {
	return func(f *Facade) {
		f.exit = exit
	}
}

// New creates a facade writing through handler.
func New(handler slog.Handler, opts ...Option) *Facade {
	f := &Facade{logger: slog.New(handler), exit: os.Exit}
	f.min.Store(int32(LevelInfo))
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HandlerOptions lets slog handlers through every level and names the extra ones.
func HandlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey || len(groups) > 0 {
				return a
			}
			level, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			switch level {
			case slogException:
				a.Value = slog.StringValue("EXCEPTION")
			case slogFatal:
				a.Value = slog.StringValue("FATAL")
			}
			return a
		},
	}
}

// NewText creates a facade with a slog text handler on w.
func NewText(w io.Writer, opts ...Option) *Facade {
	return New(slog.NewTextHandler(w, HandlerOptions()), opts...)
}

// NewJSON creates a facade with a slog JSON handler on w.
func NewJSON(w io.Writer, opts ...Option) *Facade {
	return New(slog.NewJSONHandler(w, HandlerOptions()), opts...)
}

// SetMinLevel changes the minimum level.
func (f *Facade) SetMinLevel(l Level) {
	f.min.Store(int32(l))
}

// MinLevel returns the minimum level.
func (f *Facade) MinLevel() Level {
	return Level(f.min.Load())
}

// SetTags replaces the tag allow-set. No tags means every tag is logged.
func (f *Facade) SetTags(tags ...string) {
	f.setTags(tags)
}

func (f *Facade) setTags(tags []string) {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	f.mu.Lock()
	f.tags = set
	f.mu.Unlock()
}

// Enabled reports whether a line of level l with tag would be written. Fatal lines
// are always written.
func (f *Facade) Enabled(l Level, tag string) bool {
	if l == LevelFatal {
		return true
	}
	if l < f.MinLevel() {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.tags) == 0 {
		return true
	}
	_, ok := f.tags[tag]
	return ok
}

// Log writes msg with tag and key/value args at level l.
func (f *Facade) Log(l Level, tag, msg string, args ...any) {
	if !f.Enabled(l, tag) {
		return
	}
	attrs := make([]any, 0, len(args)+2)
	attrs = append(attrs, "tag", tag)
	attrs = append(attrs, args...)
	f.logger.Log(context.Background(), l.slog(), msg, attrs...)
}

func (f *Facade) Debug(tag, msg string, args ...any)   { f.Log(LevelDebug, tag, msg, args...) }
func (f *Facade) Info(tag, msg string, args ...any)    { f.Log(LevelInfo, tag, msg, args...) }
func (f *Facade) Warning(tag, msg string, args ...any) { f.Log(LevelWarning, tag, msg, args...) }
func (f *Facade) Error(tag, msg string, args ...any)   { f.Log(LevelError, tag, msg, args...) }

// Exception logs err with its message.
func (f *Facade) Exception(tag string, err error, args ...any) {
	if err == nil {
		return
	}
	f.Log(LevelException, tag, err.Error(), append([]any{"error", err}, args...)...)
}

// Fatal logs msg regardless of filters and then calls the exit hook with code 1.
func (f *Facade) Fatal(tag, msg string, args ...any) {
	f.Log(LevelFatal, tag, msg, args...)
	f.exit(1)
}
