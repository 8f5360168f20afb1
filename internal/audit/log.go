// Package audit writes security-relevant events (logins, logouts, mapping and
// account changes) as structured log lines.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"distributor.app/internal/auth"
	"distributor.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Event names.
const (
	EventLogin          = "auth.login"
	EventLoginFailed    = "auth.login.failed"
	EventLogout         = "auth.logout"
	EventMappingCreated = "mapping.created"
	EventMappingDeleted = "mapping.deleted"
	EventUserCreated    = "user.created"
	EventUserUpdated    = "user.updated"
	EventUserDeleted    = "user.deleted"
	EventRoleCreated    = "role.created"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the identifier stored by WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the acting
// account. Secrets must not be passed in fields.
func LogEvent(ctx context.Context, event string, fields logrus.Fields) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestID(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && p.Account != nil {
		entry["actor_id"] = p.Account.ID
		entry["actor_email"] = p.Account.Email
	}
	for k, v := range fields {
		if _, reserved := entry[k]; reserved {
			continue
		}
		entry[k] = v
	}
	obs.Logger().WithFields(entry).Info(event)
	return nil
}
