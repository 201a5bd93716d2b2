package session

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
)

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Middleware resolves the session of the authenticated uid for the
// duration of the request and exposes its manager to user handlers. It
// must run after auth.Middleware.
func (r *Registry) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			uid, ok := auth.UIDFromContext(req.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			s, err := r.Acquire(req.Context(), uid)
			if err != nil {
				r.logger.Warnw("acquire session failed", "uid", uid, "err", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "profile store unavailable"})
				return
			}
			defer r.Release(uid)
			ctx := user.WithManager(WithSession(req.Context(), s), s.Manager)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

type Handler struct {
	registry *Registry
	hub      *notice.Hub
	signer   auth.Signer
	upgrader websocket.Upgrader
	base     context.Context
	logger   *zap.SugaredLogger
}

func NewHandler(base context.Context, registry *Registry, hub *notice.Hub, signer auth.Signer, upgrader websocket.Upgrader, logger *zap.SugaredLogger) *Handler {
	return &Handler{registry: registry, hub: hub, signer: signer, upgrader: upgrader, base: base, logger: logger}
}

type permissionRequest struct {
	Permission notice.Permission `json:"permission"`
}

// Permission records the notification permission reported by a device.
func (h *Handler) Permission(w http.ResponseWriter, r *http.Request) {
	s, ok := FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Permission.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "permission must be default, granted or denied"})
		return
	}
	s.SetPermission(req.Permission)
	writeJSON(w, http.StatusOK, map[string]any{"permission": s.Permission()})
}

type inbound struct {
	Type       string            `json:"type"`
	Permission notice.Permission `json:"permission,omitempty"`
}

// Connect upgrades a device to its live session. The device may present a
// previous access token; without one it is signed in anonymously.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	device := auth.NewDeviceAuth(h.signer, r.URL.Query().Get("client_id"))
	if token := auth.BearerToken(r); token != "" {
		if err := device.Restore(token); err != nil {
			h.logger.Debugw("stale token presented, signing in anew", "err", err)
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("session upgrade failed", "err", err)
		return
	}
	client := h.hub.NewClient(conn)
	go client.WritePump()

	ctx, cancel := context.WithCancel(h.base)
	boot := NewBootstrapper(device, h.registry, client, BootstrapOptions{
		Tokens: func() any {
			if t := device.Tokens(); t != nil {
				return t
			}
			return nil
		},
		OnSession: func(s *Session) { h.hub.Bind(client, s.UID) },
	}, h.logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		boot.Run(ctx)
	}()

	client.ReadPump(func(data []byte) {
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		switch msg.Type {
		case "permission":
			s := boot.Session()
			if s == nil || !msg.Permission.Valid() {
				return
			}
			s.SetPermission(msg.Permission)
		case "profile":
			if s := boot.Session(); s != nil {
				client.Publish(notice.Event(notice.TypeProfile, s.Manager.Snapshot()))
			}
		}
	})

	cancel()
	<-done
	h.hub.Remove(client)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
