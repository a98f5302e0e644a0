// Package logging builds the structured slog logger used throughout the
// daemon, wrapping a JSON handler with a secret-redaction layer.
//
// Grounded on the teacher's internal/observability/logging.go context-attribute
// pattern, narrowed to spec §4.9/§7/P6: every log record passes through a
// redacting handler before it reaches its sink.
package logging

import (
	"context"
	"log/slog"
	"os"
	"regexp"
)

// secretKeyPattern matches a quoted key known to carry sensitive values.
// Case-insensitive per spec §4.9.
var secretKeyPattern = regexp.MustCompile(`(?i)(PASSWORD|KEY|SECRET|AUTH|TOKEN|CREDENTIAL)`)

// quotedPairPattern matches a `'key': 'value'` substring (single-quoted,
// Python-repr style, as produced by the original source's dict logging)
// so redaction can replace only the value half.
var quotedPairPattern = regexp.MustCompile(`'([^']*)':\s*'([^']*)'`)

const redacted = "***"

// Redact rewrites any `'key': 'value'` substring of msg whose key matches
// secretKeyPattern, replacing the value with "***". Non-matching
// substrings are left untouched. This is P6's textual contract: it
// operates on the rendered string value of a field, not on structured
// key/value pairs, since the engine invoker forwards raw subprocess
// output lines that may themselves contain such substrings.
func Redact(s string) string {
	return quotedPairPattern.ReplaceAllStringFunc(s, func(pair string) string {
		m := quotedPairPattern.FindStringSubmatch(pair)
		if m == nil || !secretKeyPattern.MatchString(m[1]) {
			return pair
		}
		return "'" + m[1] + "': '" + redacted + "'"
	})
}

// redactingHandler wraps a slog.Handler, redacting the Message and every
// string-valued Attr of each Record before passing it on.
type redactingHandler struct {
	next slog.Handler
}

// NewHandler wraps next with secret redaction. next is typically
// slog.NewJSONHandler(os.Stdout, ...), matching the teacher's
// stdout-JSON logging convention.
func NewHandler(next slog.Handler) slog.Handler {
	return &redactingHandler{next: next}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, Redact(a.Value.String()))
	}
	return a
}

// New builds the process-wide logger: a JSON handler over stdout at the
// given level, wrapped in the redaction layer. level is one of slog's
// names ("debug", "info", "warn", "error"); unrecognized values default
// to info, matching the teacher's lenient level-parsing.
func New(level string) *slog.Logger {
	return slog.New(NewHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
