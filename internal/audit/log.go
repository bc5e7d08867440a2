package audit

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"assettrack.org/internal/auth"
	"assettrack.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// SetLogger overrides the destination logger. Passing nil restores the
// process-wide default.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func activeLogger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger != nil {
		return logger
	}
	return obs.Logger()
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and user context.
// Sync passes, handover transitions and welcome pack generation all go
// through here so operators get one searchable stream.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", userID))
	}
	if len(fields) > 0 {
		zf = append(zf, zap.Any("fields", fields))
	}
	activeLogger().Info(event, zf...)
	return nil
}
