// Package audit records security relevant events (logins, role changes,
// denied actions) as structured log lines.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"worktrack.org/internal/auth"
	"worktrack.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and principal context.
// Caller fields are nested under "fields" so they never shadow the envelope.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		entry["user_id"] = p.ID
		entry["role"] = string(p.Role)
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	obs.Logger().WithFields(entry).Info("audit")
	return nil
}
