package logger

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that forwards records to l.
// If l is nil, it returns nil.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogAdapter{log: l}
}

// StdLogger bridges l to APIs that want a *log.Logger, such as
// http.Server.ErrorLog. Lines are logged at level.
func StdLogger(l *Logger, level slog.Level) *log.Logger {
	if l == nil {
		l = Nop()
	}
	return slog.NewLogLogger(NewSlogHandler(l), level)
}

type slogAdapter struct {
	log    *Logger
	groups []string
	attrs  []slog.Attr
}

func (h *slogAdapter) Enabled(_ context.Context, level slog.Level) bool {
	current := h.log.GetLevel()
	return current != LevelNone && fromSlogLevel(level) >= current
}

func (h *slogAdapter) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)

	for _, attr := range h.attrs {
		writeAttr(&b, attr, h.groups)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, attr, h.groups)
		return true
	})

	message := strings.TrimSpace(b.String())
	switch fromSlogLevel(record.Level) {
	case LevelError:
		h.log.Error("%s", message)
	case LevelWarn:
		h.log.Warn("%s", message)
	case LevelInfo:
		h.log.Info("%s", message)
	default:
		h.log.Debug("%s", message)
	}
	return nil
}

func (h *slogAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogAdapter{
		log:    h.log,
		groups: append([]string(nil), h.groups...),
		attrs:  merged,
	}
}

func (h *slogAdapter) WithGroup(name string) slog.Handler {
	groups := append([]string(nil), h.groups...)
	if name != "" {
		groups = append(groups, name)
	}
	return &slogAdapter{
		log:    h.log,
		groups: groups,
		attrs:  append([]slog.Attr(nil), h.attrs...),
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func writeAttr(b *strings.Builder, attr slog.Attr, groups []string) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, a := range attr.Value.Group() {
			writeAttr(b, a, nested)
		}
		return
	}

	key := attr.Key
	if key == "" {
		key = "attr"
	}
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	fmt.Fprintf(b, " %s=%v", key, attr.Value)
}
