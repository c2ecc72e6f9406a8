// Package log builds the process logger.
//
// Console output is split by severity: errors go to stderr, everything else
// to stdout, colored when the stream is a terminal. An optional log file
// receives JSON records at the same level.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// LevelTrace is below Debug and enables raw HID dumps.
const LevelTrace slog.Level = -8

var levelNames = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// SetupLogger installs and returns the default logger. The returned closers
// belong to the caller.
func SetupLogger(logLevel, logFile string) (*slog.Logger, []io.Closer, error) {
	level := ParseLevel(logLevel)
	handlers := []slog.Handler{
		NewLevelFilter(below(slog.LevelError), consoleHandler(os.Stdout, level)),
		NewLevelFilter(atLeast(slog.LevelError), consoleHandler(os.Stderr, slog.LevelError)),
	}

	var closers []io.Closer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: traceName,
		}))
	}

	logger := slog.New(NewMultiHandler(handlers...))
	slog.SetDefault(logger)
	return logger, closers, nil
}

func below(lvl slog.Level) func(slog.Level) bool {
	return func(l slog.Level) bool { return l < lvl }
}

func atLeast(lvl slog.Level) func(slog.Level) bool {
	return func(l slog.Level) bool { return l >= lvl }
}

// traceName writes LevelTrace as "TRACE" instead of "DEBUG-4".
func traceName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(l))
		}
	}
	return a
}

func consoleHandler(f *os.File, level slog.Level) slog.Handler {
	return &colorHandler{w: f, level: level, color: term.IsTerminal(int(f.Fd()))}
}

// MultiHandler sends each record to every handler that accepts its level.
type MultiHandler struct{ hs []slog.Handler }

// NewMultiHandler combines hs.
func NewMultiHandler(hs ...slog.Handler) slog.Handler { return MultiHandler{hs: hs} }

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m MultiHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	out := make([]slog.Handler, 0, len(m.hs))
	for _, h := range m.hs {
		out = append(out, fn(h))
	}
	return MultiHandler{hs: out}
}

// LevelFilter passes only the levels accepted by its predicate to the
// wrapped handler.
type LevelFilter struct {
	pass func(slog.Level) bool
	h    slog.Handler
}

// NewLevelFilter wraps h.
func NewLevelFilter(pass func(slog.Level) bool, h slog.Handler) LevelFilter {
	return LevelFilter{pass: pass, h: h}
}

func (f LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.pass(level) && f.h.Enabled(ctx, level)
}

func (f LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if !f.pass(r.Level) {
		return nil
	}
	return f.h.Handle(ctx, r)
}

func (f LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewLevelFilter(f.pass, f.h.WithAttrs(attrs))
}

func (f LevelFilter) WithGroup(name string) slog.Handler {
	return NewLevelFilter(f.pass, f.h.WithGroup(name))
}

// colorHandler prints "time LEVEL message k=v ..." lines.
type colorHandler struct {
	w     io.Writer
	level slog.Leveler
	color bool
	attrs []slog.Attr
	group string
}

const (
	ansiReset  = "\033[0m"
	ansiGray   = "\033[90m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[32m"
	ansiBlue   = "\033[34m"
	ansiPurple = "\033[35m"
)

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *colorHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansiRed
	case l >= slog.LevelWarn:
		return ansiYellow
	case l >= slog.LevelInfo:
		return ansiGreen
	case l >= slog.LevelDebug:
		return ansiBlue
	case l >= LevelTrace:
		return ansiPurple
	}
	return ansiReset
}

func levelName(l slog.Level) string {
	if l >= LevelTrace && l < slog.LevelDebug {
		return "TRACE"
	}
	return l.String()
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(h.paint(ansiGray, r.Time.Format("15:04:05.000")))
	sb.WriteByte(' ')
	sb.WriteString(h.paint(levelColor(r.Level), fmt.Sprintf("%5s", levelName(r.Level))))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.group, a)
		return true
	})
	sb.WriteByte('\n')
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func writeAttr(sb *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	sb.WriteByte(' ')
	if group != "" {
		sb.WriteString(group + ".")
	}
	fmt.Fprintf(sb, "%s=%s", a.Key, a.Value.Resolve().String())
}

// WithAttrs bakes the current group into the attribute keys.
func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	nh.group = name
	return &nh
}
