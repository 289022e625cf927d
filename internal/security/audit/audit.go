package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger emits structured audit records for every security-relevant action.
// Audit lines are ordinary slog output so they ship with the rest of the logs.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	al.logger.InfoContext(ctx, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogLogin(ctx context.Context, tenantID, userID, status string) {
	al.LogAction(ctx, tenantID, userID, "login", "session", "", status, "")
}

func (al *Logger) LogSignup(ctx context.Context, tenantID, userID, status string) {
	al.LogAction(ctx, tenantID, userID, "signup", "user", userID, status, "")
}

func (al *Logger) LogLicense(ctx context.Context, tenantID, userID, action, licenseKey, status string) {
	al.LogAction(ctx, tenantID, userID, action, "license", licenseKey, status, "")
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", "denied", reason)
}
