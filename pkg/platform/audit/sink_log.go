package audit

import (
	"context"
	"log/slog"
)

// LogSink writes audit events as structured log lines. It is the fallback
// sink when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	attrs := []any{
		"type", string(event.Type),
		"category", string(event.Category),
		"timestamp", event.Timestamp,
		"request_id", event.RequestID,
	}
	if !event.UserID.IsNil() {
		attrs = append(attrs, "user_id", event.UserID.String())
	}
	if !event.SessionID.IsNil() {
		attrs = append(attrs, "session_id", event.SessionID.String())
	}
	if event.Identifier != "" {
		attrs = append(attrs, "identifier", event.Identifier)
	}
	if event.IP != "" {
		attrs = append(attrs, "ip", event.IP)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}

	level := slog.LevelInfo
	if event.Category == CategorySecurity {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "audit event", attrs...)
	return nil
}
