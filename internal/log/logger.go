/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log provides centralized slog-based logging for the application.
// Records are enriched with the project and scene ids carried on the
// context, secrets are masked and inline resource payloads are shortened
// before any handler sees them.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gostoryboard/internal/version"

	// lumberjack is optional; used only if file logging is enabled
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization.
// Values can be provided directly or via environment variables:
//   - GSB_LOG_LEVEL=debug|info|warn|error
//   - GSB_LOG_FORMAT=console|json
//   - GSB_LOG_FILE=<path> (enables file logging with rotation)
//   - GSB_LOG_SOURCE=true|false (include source)
//
// Defaults: INFO level, console format, no source.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string // optional path for file logging (rotated)
	// Rotation limits for File; zero selects 10 MB, 3 backups, 28 days.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console receives console output; defaults to os.Stderr.
	Console io.Writer
}

// AppName is attached to every record as the "app" attribute.
const AppName = "storyboard"

var (
	defaultLoggerMu sync.RWMutex
	defaultLogger   *slog.Logger
	// rotating is the file writer of the current logger, closed on re-init.
	rotating *lj.Logger
)

// L returns the default application logger, initializing from env if needed.
func L() *slog.Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}
	// lazy init from env
	Init(FromEnv())
	defaultLoggerMu.RLock()
	l = defaultLogger
	defaultLoggerMu.RUnlock()
	return l
}

// Init configures the global logger and sets slog.Default as well.
// Calling it again replaces the logger and closes the previous log file.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var handlers []slog.Handler
	if format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(console, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	} else {
		handlers = append(handlers, &prettyTextHandler{opts: prettyOpts{Level: lvl, AddSource: opts.AddSource}, w: console, mu: &sync.Mutex{}})
	}

	var w *lj.Logger
	if strings.TrimSpace(opts.File) != "" {
		w = &lj.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	}

	h := handlers[0]
	if len(handlers) > 1 {
		h = multiHandler(handlers...)
	}
	logger := slog.New(withEnricher(h)).With(
		slog.String("app", AppName),
		slog.String("ver", version.Version),
	)

	defaultLoggerMu.Lock()
	prev := rotating
	defaultLogger = logger
	rotating = w
	defaultLoggerMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(logger)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("GSB_LOG_LEVEL", "info"),
		Format:    getenv("GSB_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("GSB_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("GSB_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type ctxKey int

const (
	projectKey ctxKey = iota
	sceneKey
)

// ContextWithProject tags ctx so records logged with it carry project=<id>.
func ContextWithProject(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, projectKey, id)
}

// ContextWithScene tags ctx so records logged with it carry scene=<id>.
func ContextWithScene(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, sceneKey, id)
}

// parseLevel converts a string to slog.Level.
func parseLevel(s string) slog.Leveler {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// secretKeys are masked wherever they appear, group members included.
var secretKeys = map[string]bool{
	"token":         true,
	"password":      true,
	"dsn":           true,
	"authorization": true,
	"secret":        true,
}

// maxPayloadLog bounds how much of a data: URI reaches the log.
const maxPayloadLog = 48

// sanitize masks secrets and shortens inline payloads.
func sanitize(a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "***")
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		in := a.Value.Group()
		out := make([]slog.Attr, len(in))
		for i, g := range in {
			out[i] = sanitize(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		if s := a.Value.String(); strings.HasPrefix(s, "data:") && len(s) > maxPayloadLog {
			return slog.String(a.Key, s[:maxPayloadLog]+"...("+strconv.Itoa(len(s))+" bytes)")
		}
	}
	return a
}

func sanitizeAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = sanitize(a)
	}
	return out
}

// multiHandler fans out log records to multiple handlers.
func multiHandler(handlers ...slog.Handler) slog.Handler { return &multi{hs: handlers} }

type multi struct{ hs []slog.Handler }

func (m *multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multi) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithAttrs(attrs)
	}
	return &multi{hs: res}
}

func (m *multi) WithGroup(name string) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithGroup(name)
	}
	return &multi{hs: res}
}

// enrich adds the context ids, sanitizes attributes and passes the record on.
func withEnricher(h slog.Handler) slog.Handler { return &enrich{next: h} }

type enrich struct{ next slog.Handler }

func (e *enrich) Enabled(ctx context.Context, level slog.Level) bool {
	return e.next.Enabled(ctx, level)
}

func (e *enrich) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(sanitize(a))
		return true
	})
	if ctx != nil {
		if id, ok := ctx.Value(projectKey).(string); ok && id != "" {
			out.AddAttrs(slog.String("project", id))
		}
		if id, ok := ctx.Value(sceneKey).(int); ok {
			out.AddAttrs(slog.Int("scene", id))
		}
	}
	return e.next.Handle(ctx, out)
}

func (e *enrich) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &enrich{next: e.next.WithAttrs(sanitizeAll(attrs))}
}
func (e *enrich) WithGroup(name string) slog.Handler { return &enrich{next: e.next.WithGroup(name)} }

// prettyTextHandler prints human-friendly, one-line logs:
// ts level msg key=val... Values with spaces are quoted.
type prettyTextHandler struct {
	opts   prettyOpts
	w      io.Writer
	mu     *sync.Mutex
	attrs  []string // preformatted, group prefix applied
	groups []string
}

type prettyOpts struct {
	Level     slog.Leveler
	AddSource bool
}

func (h *prettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *prettyTextHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *prettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	b := &strings.Builder{}
	b.Grow(256)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(time.RFC3339))
	b.WriteString(" ")
	b.WriteString(levelString(r.Level))
	if r.Message != "" {
		b.WriteString(" ")
		b.WriteString(r.Message)
	}
	for _, a := range h.attrs {
		b.WriteString(" ")
		b.WriteString(a)
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(b, prefix, a)
		return true
	})
	if h.opts.AddSource {
		if src := r.Source(); src != nil && src.File != "" {
			b.WriteString(" src=")
			b.WriteString(src.File)
			b.WriteString(":")
			b.WriteString(strconv.Itoa(src.Line))
		}
	}
	b.WriteString("\n")
	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			writeAttr(b, p, g)
		}
		return
	}
	b.WriteString(" ")
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteString("=")
	b.WriteString(attrValueString(a.Value))
}

func (h *prettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	prefix := h.prefix()
	for _, a := range attrs {
		writeAttr(&b, prefix, a)
	}
	na := append([]string(nil), h.attrs...)
	if s := strings.TrimPrefix(b.String(), " "); s != "" {
		na = append(na, s)
	}
	return &prettyTextHandler{opts: h.opts, w: h.w, mu: h.lock(), attrs: na, groups: h.groups}
}

func (h *prettyTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	ng := append(append([]string(nil), h.groups...), name)
	return &prettyTextHandler{opts: h.opts, w: h.w, mu: h.lock(), attrs: h.attrs, groups: ng}
}

// lock returns the mutex shared by every handler derived from the same writer.
func (h *prettyTextHandler) lock() *sync.Mutex {
	if h.mu == nil {
		h.mu = &sync.Mutex{}
	}
	return h.mu
}

func levelString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return l.String()
	}
}

func attrValueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}
