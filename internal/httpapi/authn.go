package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/maulvi-zm/trackure/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate verifies the bearer token and resolves it to an active local
// user. Everything behind it can rely on auth.IdentityFromContext.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="trackure"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.deps.Verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="trackure", error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			a.log.WithError(err).Error("token verification failed")
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		user, err := a.deps.Users.UserByEmail(r.Context(), claims.Principal())
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unknown or inactive user")
				return
			}
			a.log.WithError(err).Error("user lookup failed")
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !user.IsActive {
			writeError(w, r, http.StatusUnauthorized, "unknown or inactive user")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{ID: user.ID, Email: user.Email})
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
