package auth

// REQUEST FLOW:
//  1. The client sends "Authorization: Bearer <token>" (or the token cookie).
//  2. RequireAuth validates it with the TokenService; no database is involved.
//  3. The token subject is stored in the request context as the owner.
//  4. Handlers read it back with OwnerFromContext and pass it to the run
//     service, which scopes every lookup to that owner.

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey keeps this package's context values out of reach of others.
type contextKey string

const ownerKey contextKey = "owner"

// CookieName is the cookie a browser client may carry the token in.
const CookieName = "token"

// RequireAuth rejects requests without a valid token with 401 and stores the
// token subject for OwnerFromContext otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := extractOwner(r, tokens)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// OptionalAuth records the owner when a valid token is present and lets
// anonymous requests through unchanged.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner, err := extractOwner(r, tokens); err == nil {
				r = r.WithContext(WithOwner(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithOwner returns a copy of ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the authenticated owner, or ("", false) for an
// anonymous request.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey).(string)
	return owner, ok && owner != ""
}

// extractOwner reads the token from "Authorization: Bearer" or, failing
// that, the token cookie.
func extractOwner(r *http.Request, tokens *TokenService) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return tokens.Validate(strings.TrimSpace(token))
		}
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="csv-extractor"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "valid authentication required",
	})
}
