package relayer

import (
	"strings"
	"unicode"

	"go.uber.org/zap/zapcore"
)

// sanitizingCore replaces control characters in messages and string fields. Memos are attacker controlled and end
// up in log lines.
type sanitizingCore struct {
	zapcore.Core
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' {
			return '\x1A' // Substitute character
		}
		return r
	}, s)
}

func sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if f.Type == zapcore.StringType {
			f.String = sanitize(f.String)
		}
		out[i] = f
	}
	return out
}

func (c sanitizingCore) With(fields []zapcore.Field) zapcore.Core {
	return sanitizingCore{c.Core.With(sanitizeFields(fields))}
}

func (c sanitizingCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c sanitizingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = sanitize(entry.Message)
	return c.Core.Write(entry, sanitizeFields(fields))
}
