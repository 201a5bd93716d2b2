package qrscan

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
)

type Handler struct {
	upgrader websocket.Upgrader
	opts     Options
	// base is cancelled on server shutdown; hijacked sockets outlive
	// request contexts.
	base   context.Context
	logger *zap.SugaredLogger
}

func NewHandler(base context.Context, opts Options, upgrader websocket.Upgrader, logger *zap.SugaredLogger) *Handler {
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Handler{upgrader: upgrader, opts: opts, base: base, logger: logger}
}

// socketPublisher writes notices straight to one scan socket.
type socketPublisher struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zap.SugaredLogger
}

func (p *socketPublisher) Publish(n notice.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := p.conn.WriteJSON(n); err != nil {
		p.logger.Debugw("scan socket write failed", "err", err)
	}
}

// Scan upgrades to a frame stream and runs one scan session on it. The
// socket closes once a connection is made or scanning stops.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	m, ok := user.ManagerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("scan upgrade failed", "err", err)
		return
	}

	logger := h.logger.With("uid", m.UID())
	src := NewSocketSource(conn, logger)
	ctx, cancel := context.WithCancel(h.base)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	opts := h.opts
	opts.Logger = logger
	sc := NewScanner(m, &socketPublisher{conn: conn, logger: logger}, opts)
	if err := sc.Run(ctx, src); err != nil {
		logger.Debugw("scan ended", "state", sc.State().String(), "err", err)
		return
	}
	logger.Debugw("scan ended", "state", sc.State().String())
}

// QR serves the caller's own badge as a PNG QR code.
func (h *Handler) QR(w http.ResponseWriter, r *http.Request) {
	m, ok := user.ManagerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p := m.Snapshot()
	if p == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no profile"})
		return
	}
	size := 320
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 64 && n <= 2048 {
			size = n
		}
	}
	img, err := Encode(p.PublicProfile, size)
	if err != nil {
		h.logger.Warnw("render badge qr failed", "uid", m.UID(), "err", err)
		http.Error(w, "could not render badge", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}
