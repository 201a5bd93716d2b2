// Package qrscan runs the badge scanning flow: camera frames are pulled
// from the device, decoded as QR codes, validated as attendee badges and
// forwarded to the profile manager as new connections.
package qrscan

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

type State int

const (
	StateIdle State = iota
	StateScanning
	StateProcessing
	StateConnected
	StateCameraDenied
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateProcessing:
		return "processing"
	case StateConnected:
		return "connected"
	case StateCameraDenied:
		return "camera-denied"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Connector records a scanned peer. *user.Manager implements it.
type Connector interface {
	AddConnection(ctx context.Context, peer entity.PublicProfile) (*entity.Profile, error)
}

type Options struct {
	Cooldown       time.Duration
	MaxSurfaceEdge int
	Decoder        Decoder
	Clock          clockwork.Clock
	Logger         *zap.SugaredLogger
}

// Scanner drives one scan session. While a code is being handled, and for
// Cooldown after a rejected code, further frames are pulled but dropped.
type Scanner struct {
	conn    Connector
	pub     notice.Publisher
	dec     Decoder
	surface *Surface
	clock   clockwork.Clock
	cool    time.Duration
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	state      State
	processing bool
	rearm      clockwork.Timer
}

func NewScanner(conn Connector, pub notice.Publisher, opts Options) *Scanner {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 2 * time.Second
	}
	if opts.MaxSurfaceEdge <= 0 {
		opts.MaxSurfaceEdge = 1024
	}
	if opts.Decoder == nil {
		opts.Decoder = NewDecoder()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Scanner{
		conn:    conn,
		pub:     pub,
		dec:     opts.Decoder,
		surface: NewSurface(opts.MaxSurfaceEdge),
		clock:   opts.Clock,
		cool:    opts.Cooldown,
		logger:  opts.Logger,
	}
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a code is being handled or the cooldown runs.
func (s *Scanner) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Reset returns a finished scanner to Idle so Run can be called again.
func (s *Scanner) Reset() {
	s.mu.Lock()
	s.stopRearmLocked()
	s.processing = false
	s.mu.Unlock()
	s.setState(StateIdle)
}

// Run pulls frames from src until a connection is made, the camera is
// denied, the stream ends or ctx is cancelled. src is always closed.
func (s *Scanner) Run(ctx context.Context, src FrameSource) error {
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Debugw("close frame source", "err", err)
		}
	}()
	defer func() {
		s.mu.Lock()
		s.stopRearmLocked()
		s.mu.Unlock()
	}()

	s.setState(StateScanning)
	for {
		frame, err := src.Next(ctx)
		switch {
		case errors.Is(err, ErrCameraDenied):
			s.setState(StateCameraDenied)
			s.pub.Publish(notice.Warning("Camera access denied", "Allow camera access in your browser settings to scan badges."))
			return err
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			s.setState(StateStopped)
			return nil
		case err != nil:
			s.setState(StateStopped)
			return err
		}

		if !s.acquire() {
			continue
		}
		if s.handle(ctx, frame) {
			return nil
		}
	}
}

// handle makes one decode attempt and reports whether a connection was
// made.
func (s *Scanner) handle(ctx context.Context, frame image.Image) bool {
	text, err := s.dec.Decode(s.surface.Draw(frame))
	if err != nil {
		s.release()
		return false
	}

	s.setState(StateProcessing)
	peer, err := ParsePayload(text)
	if err != nil {
		s.logger.Debugw("invalid badge scanned", "err", err)
		s.pub.Publish(notice.Toast(notice.KindDestructive, "Invalid QR code", "That code is not a conference badge."))
		s.cooldown()
		return false
	}

	// The manager raises its own notices for rejected connections.
	if _, err := s.conn.AddConnection(ctx, peer); err != nil {
		s.logger.Debugw("connection rejected", "peer", peer.WhatsappNumber, "err", err)
		s.cooldown()
		return false
	}
	s.setState(StateConnected)
	return true
}

func (s *Scanner) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

func (s *Scanner) release() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

func (s *Scanner) cooldown() {
	s.setState(StateScanning)
	s.mu.Lock()
	s.stopRearmLocked()
	s.rearm = s.clock.AfterFunc(s.cool, s.release)
	s.mu.Unlock()
}

func (s *Scanner) stopRearmLocked() {
	if s.rearm != nil {
		s.rearm.Stop()
		s.rearm = nil
	}
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed {
		s.pub.Publish(notice.Event(notice.TypeScanState, map[string]string{"state": st.String()}))
	}
}
