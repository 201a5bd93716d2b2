package notice

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Client is one device socket registered with the hub. All writes to the
// underlying connection happen on the WritePump goroutine.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Notice
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	uid string
}

// Hub tracks device sockets per identity and implements Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // uid -> set of clients
	logger  *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// NewClient wraps conn. The client receives nothing from Notify until Bind.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan Notice, sendBuffer),
		done: make(chan struct{}),
	}
}

// Bind registers c under uid so identity-wide notices reach it.
func (h *Hub) Bind(c *Client, uid string) {
	c.mu.Lock()
	prev := c.uid
	c.uid = uid
	c.mu.Unlock()

	h.mu.Lock()
	if prev != "" {
		h.detachLocked(c, prev)
	}
	if _, ok := h.clients[uid]; !ok {
		h.clients[uid] = make(map[*Client]struct{})
	}
	h.clients[uid][c] = struct{}{}
	n := len(h.clients[uid])
	h.mu.Unlock()

	h.logger.Debugw("ws client bound", "uid", uid, "clients", n)
}

// Remove unregisters c and closes its connection.
func (h *Hub) Remove(c *Client) {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()

	if uid != "" {
		h.mu.Lock()
		h.detachLocked(c, uid)
		h.mu.Unlock()
	}
	c.close()
	h.logger.Debugw("ws client removed", "uid", uid)
}

func (h *Hub) detachLocked(c *Client, uid string) {
	if set, ok := h.clients[uid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, uid)
		}
	}
}

// Notify delivers n to every device bound to uid.
func (h *Hub) Notify(uid string, n Notice) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[uid]))
	for c := range h.clients[uid] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Publish(n)
	}
}

// Connected reports how many devices are bound to uid.
func (h *Hub) Connected(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[uid])
}

// Publish queues n for this device. A full buffer drops the notice rather
// than blocking the caller.
func (c *Client) Publish(n Notice) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- n:
	case <-c.done:
	default:
		c.hub.logger.Warnw("ws send buffer full, dropping notice", "type", n.Type, "id", n.ID)
	}
}

// WritePump writes queued notices and keepalive pings until the client is
// removed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case n := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(n); err != nil {
				c.hub.logger.Debugw("ws write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump consumes inbound messages, handing each text message to fn,
// until the peer goes away. Pongs extend the read deadline.
func (c *Client) ReadPump(fn func([]byte)) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debugw("ws read failed", "err", err)
			}
			return
		}
		if mt == websocket.TextMessage && fn != nil {
			fn(data)
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
