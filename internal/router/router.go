package router

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/catalog"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/qrscan"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// Hijack lets websocket upgrades through the wrapper.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. The camera
// stays available to the app's own origin for badge scanning.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(self), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				// 30 days
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth     *auth.Handler
	Verifier auth.Verifier
	Sessions *session.Registry
	Session  *session.Handler
	User     *user.Handler
	Scan     *qrscan.Handler
	Catalog  *catalog.Handler
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(h Handlers, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/auth/anonymous", h.Auth.Anonymous)
	mux.HandleFunc("POST /api/auth/token", h.Auth.Token)
	mux.HandleFunc("GET /api/auth/jwks.json", h.Auth.JWKS)

	mux.HandleFunc("GET /api/catalog", h.Catalog.List)
	mux.HandleFunc("GET /api/badges", h.User.Badges)
	mux.HandleFunc("GET /api/leaderboard", h.User.Leaderboard)

	// the live session authenticates itself and may sign in anonymously
	mux.HandleFunc("GET /api/session", h.Session.Connect)

	authed := func(fn http.HandlerFunc) http.Handler {
		return auth.Middleware(h.Verifier)(h.Sessions.Middleware()(fn))
	}
	mux.Handle("GET /api/me", authed(h.User.Me))
	mux.Handle("POST /api/me", authed(h.User.Create))
	mux.Handle("PATCH /api/me", authed(h.User.Update))
	mux.Handle("POST /api/me/bookmarks/{eventID}/toggle", authed(h.User.ToggleBookmark))
	mux.Handle("POST /api/me/connections", authed(h.User.AddConnection))
	mux.Handle("PUT /api/me/notification-permission", authed(h.Session.Permission))
	mux.Handle("GET /api/me/qr", authed(h.Scan.QR))
	mux.Handle("GET /api/scan", authed(h.Scan.Scan))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
