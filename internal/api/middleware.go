package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campusbooking/pkg/authn"
)

type AuthOptions struct {
	Keys authn.Keys
	// DevHeaders lets local callers without a token identify themselves with
	// X-User-ID and X-User-Role. Never enabled in prod.
	DevHeaders bool
	Now        func() time.Time
	Log        logrus.FieldLogger
}

// Authenticate establishes the caller from `Authorization: Bearer <JWT>` and
// attaches the identity to the request context.
func Authenticate(opts AuthOptions) func(http.Handler) http.Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				id, err := opts.Keys.Verify(strings.TrimSpace(authz[7:]), now())
				if err != nil {
					if opts.Log != nil {
						opts.Log.WithError(err).Debug("rejected access token")
					}
					WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}

			if opts.DevHeaders {
				userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
				if userID != "" {
					role, err := authn.ParseRole(r.Header.Get("X-User-Role"))
					if err != nil {
						role = authn.RoleStudent
					}
					id := &authn.Identity{UserID: userID, Role: role}
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
		})
	}
}

// RequireApprover lets through staff and admins only.
func RequireApprover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
			return
		}
		if !id.Role.CanApprove() {
			WriteError(w, http.StatusForbidden, "FORBIDDEN", "staff role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
