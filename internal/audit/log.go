// Package audit is the service's forensic trail: structured audit log lines
// for operator and sync actions, and the durable webhook event log.
//
// Event names follow a dotted subject.verb scheme, e.g. "oauth.authorized",
// "token.refreshed", "webhook.recorded", "meeting.host_updated".
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"chronosync.org/internal/auth"
	"chronosync.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so audit
// lines can be correlated with the HTTP access log.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one audit line. The request id and the authenticated
// actor are pulled from the context when present; fields carry the
// event-specific detail.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	attrs := make([]slog.Attr, 0, 4+len(fields))
	attrs = append(attrs, slog.String("event", event))
	if rid := requestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if actor, ok := auth.UserIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("actor", actor))
	}
	if len(fields) > 0 {
		group := make([]any, 0, len(fields))
		for k, v := range fields {
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("fields", group...))
	}

	obs.Logger().LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
