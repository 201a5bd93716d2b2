package qrscan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// ErrCameraDenied is returned by a FrameSource when the device refused
// camera access. It is terminal.
var ErrCameraDenied = errors.New("camera access denied")

// FrameSource yields camera frames on demand. Next returns io.EOF when
// the stream ends. Close releases the camera.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

const maxFrameBytes = 8 << 20

type control struct {
	Type string `json:"type"`
}

// SocketSource reads frames from a device websocket. Binary messages are
// JPEG, PNG or WebP images; text messages are control messages.
type SocketSource struct {
	conn   *websocket.Conn
	logger *zap.SugaredLogger
	once   sync.Once
	err    error
}

func NewSocketSource(conn *websocket.Conn, logger *zap.SugaredLogger) *SocketSource {
	conn.SetReadLimit(maxFrameBytes)
	return &SocketSource{conn: conn, logger: logger}
}

func (s *SocketSource) Next(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		switch mt {
		case websocket.BinaryMessage:
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				s.logger.Debugw("undecodable frame", "bytes", len(data), "err", err)
				continue
			}
			return img, nil
		case websocket.TextMessage:
			var c control
			if err := json.Unmarshal(data, &c); err != nil {
				continue
			}
			switch c.Type {
			case "camera-denied":
				return nil, ErrCameraDenied
			case "stop":
				return nil, io.EOF
			}
		}
	}
}

// Close ends the stream, which tells the device to release its camera.
func (s *SocketSource) Close() error {
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.err = s.conn.Close()
	})
	return s.err
}
