package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Verifier checks access tokens.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

type uidKey struct{}

func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey{}, uid)
}

// UIDFromContext returns the uid set by Middleware.
func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidKey{}).(string)
	return uid, ok && uid != ""
}

// BearerToken extracts the access token from the Authorization header.
// Browsers cannot set headers on websocket handshakes, so upgrades may
// carry it in the access_token query parameter instead.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// Middleware rejects requests without a valid access token and stores the
// token subject in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "missing_token")
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				unauthorized(w, "invalid_token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUID(r.Context(), claims.Subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
