package middleware

import (
	"context"

	authsession "github.com/angelmondragon/kiosk-backend/pkg/auth/session"
)

type contextKey string

const (
	ctxPersonID contextKey = "person_id"
	ctxOrgGuid  contextKey = "org_guid"
	ctxRole     contextKey = "role"
)

func PersonIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxPersonID).(string); ok {
		return v
	}
	return ""
}

func OrgGuidFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOrgGuid).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithCaller seeds the context with the authenticated caller's identity.
func WithCaller(ctx context.Context, sess authsession.Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxPersonID, sess.PersonID.String())
	ctx = context.WithValue(ctx, ctxOrgGuid, sess.OrgGuid)
	return context.WithValue(ctx, ctxRole, string(sess.Role))
}
