package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
)

// AuthStream is the auth state of one device.
type AuthStream interface {
	OnAuthStateChange(fn func(uid string)) (unsubscribe func())
	SignInAnonymously(ctx context.Context) (string, error)
}

// Acquirer hands out sessions. *Registry implements it.
type Acquirer interface {
	Acquire(ctx context.Context, uid string) (*Session, error)
	Release(uid string)
}

// Identity is the payload of identity notices.
type Identity struct {
	UID   string `json:"uid,omitempty"`
	State string `json:"state"`
	// Tokens is set when the identity was issued on this connection.
	Tokens any `json:"tokens,omitempty"`
}

// Bootstrapper brings one device from no identity to a loaded profile:
// it signs in anonymously when the device has no identity and acquires
// the session once one is known. A failed sign-in is reported and not
// retried.
type Bootstrapper struct {
	auth     AuthStream
	sessions Acquirer
	pub      notice.Publisher
	tokens   func() any
	onReady  func(*Session)
	logger   *zap.SugaredLogger

	events chan string

	mu      sync.Mutex
	current *Session
}

type BootstrapOptions struct {
	// Tokens returns freshly issued tokens to hand to the device, if any.
	Tokens func() any
	// OnSession runs once the session of a new identity is acquired.
	OnSession func(*Session)
}

func NewBootstrapper(auth AuthStream, sessions Acquirer, pub notice.Publisher, opts BootstrapOptions, logger *zap.SugaredLogger) *Bootstrapper {
	if opts.Tokens == nil {
		opts.Tokens = func() any { return nil }
	}
	if opts.OnSession == nil {
		opts.OnSession = func(*Session) {}
	}
	return &Bootstrapper{
		auth:     auth,
		sessions: sessions,
		pub:      pub,
		tokens:   opts.Tokens,
		onReady:  opts.OnSession,
		logger:   logger,
		events:   make(chan string, 8),
	}
}

// Run handles auth state changes until ctx is done, then releases the
// session it holds.
func (b *Bootstrapper) Run(ctx context.Context) {
	unsubscribe := b.auth.OnAuthStateChange(func(uid string) {
		select {
		case b.events <- uid:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()
	defer b.release()

	for {
		select {
		case <-ctx.Done():
			return
		case uid := <-b.events:
			b.handle(ctx, uid)
		}
	}
}

func (b *Bootstrapper) handle(ctx context.Context, uid string) {
	if uid == "" {
		b.release()
		b.publishIdentity("", user.StateAuthenticating)
		if _, err := b.auth.SignInAnonymously(ctx); err != nil {
			b.logger.Warnw("anonymous sign-in failed", "err", err)
			b.pub.Publish(notice.Toast(notice.KindDestructive, "Sign-in failed", "We could not sign you in. Please reload the app."))
		}
		// success arrives as a new auth state
		return
	}
	if cur := b.Session(); cur != nil && cur.UID == uid {
		return
	}
	b.release()

	b.publishIdentity(uid, user.StateAuthenticating)
	s, err := b.sessions.Acquire(ctx, uid)
	if err != nil {
		b.logger.Warnw("load profile failed", "uid", uid, "err", err)
		b.pub.Publish(notice.Toast(notice.KindDestructive, "Could not load your profile", "Please check your connection and reload the app."))
		return
	}
	b.mu.Lock()
	b.current = s
	b.mu.Unlock()
	b.onReady(s)
	b.publishIdentity(uid, s.Manager.State())
	b.pub.Publish(notice.Event(notice.TypeProfile, s.Manager.Snapshot()))
}

func (b *Bootstrapper) publishIdentity(uid string, st user.State) {
	id := Identity{UID: uid, State: st.String()}
	if uid != "" {
		id.Tokens = b.tokens()
	}
	b.pub.Publish(notice.Event(notice.TypeIdentity, id))
}

// Session returns the session of the current identity, or nil.
func (b *Bootstrapper) Session() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Bootstrapper) release() {
	b.mu.Lock()
	cur := b.current
	b.current = nil
	b.mu.Unlock()
	if cur != nil {
		b.sessions.Release(cur.UID)
	}
}
