package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/kiosk-backend/api/responses"
	pkgAuth "github.com/angelmondragon/kiosk-backend/pkg/auth"
	"github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// caller's identity. When a session checker is supplied the token must also
// map to a live session in the cache.
func Auth(cfg config.JWTConfig, verifier session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), token)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx := WithCaller(r.Context(), session.Session{
				PersonID: claims.PersonID,
				OrgGuid:  claims.OrgGuid,
				Role:     claims.Role,
			})

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"person_id": claims.PersonID.String(),
					"org_guid":  claims.OrgGuid,
					"role":      string(claims.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
