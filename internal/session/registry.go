// Package session holds the live state of signed-in attendees: one
// profile manager per identity, the device notification permission, and
// the reminder schedule derived from both.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
)

// Rescheduler is the reminder scheduler as seen by a session.
type Rescheduler interface {
	Reschedule(uid string, bookmarks []string, perm notice.Permission) int
	Cancel(uid string)
}

// Session is the live state of one identity. It stays alive while any
// device or request holds it.
type Session struct {
	UID     string
	Manager *user.Manager

	reminders Rescheduler
	refs      int

	mu   sync.Mutex
	perm notice.Permission

	lmu    sync.Mutex
	loaded bool

	// serializes snapshot+reschedule so the latest bookmarks always win
	rmu sync.Mutex
}

func (s *Session) Permission() notice.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perm
}

// SetPermission records the device notification permission and
// reschedules reminders under it.
func (s *Session) SetPermission(p notice.Permission) {
	s.mu.Lock()
	changed := s.perm != p
	s.perm = p
	s.mu.Unlock()
	if changed {
		s.reschedule()
	}
}

func (s *Session) reschedule() {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	var bookmarks []string
	if p := s.Manager.Snapshot(); p != nil {
		bookmarks = p.BookmarkedEventIDs
	}
	s.reminders.Reschedule(s.UID, bookmarks, s.Permission())
}

func (s *Session) load(ctx context.Context) error {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if s.loaded {
		return nil
	}
	if err := s.Manager.Load(ctx); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

// Registry owns every live Session.
type Registry struct {
	store     user.Store
	notifier  notice.Notifier
	reminders Rescheduler
	opts      user.Options
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(store user.Store, notifier notice.Notifier, reminders Rescheduler, opts user.Options, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		store:     store,
		notifier:  notifier,
		reminders: reminders,
		opts:      opts,
		logger:    logger,
		sessions:  map[string]*Session{},
	}
}

// Acquire returns the session of uid, creating it and loading its profile
// on first use. Every successful Acquire must be paired with Release.
func (r *Registry) Acquire(ctx context.Context, uid string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[uid]
	if !ok {
		s = r.newSession(uid)
		r.sessions[uid] = s
	}
	s.refs++
	r.mu.Unlock()

	if err := s.load(ctx); err != nil {
		r.Release(uid)
		return nil, err
	}
	return s, nil
}

func (r *Registry) newSession(uid string) *Session {
	opts := r.opts
	s := &Session{UID: uid, reminders: r.reminders, perm: notice.PermissionDefault}
	opts.Permission = s.Permission
	s.Manager = user.NewManager(uid, r.store, r.notifier, opts)
	s.Manager.OnBookmarksChange(func([]string) { s.reschedule() })
	r.logger.Debugw("session created", "uid", uid)
	return s
}

// Release drops one reference. The last release cancels the reminders
// and pending notices of the identity.
func (r *Registry) Release(uid string) {
	r.mu.Lock()
	s, ok := r.sessions[uid]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, uid)
	r.mu.Unlock()

	s.Manager.Close()
	r.reminders.Cancel(uid)
	r.logger.Debugw("session closed", "uid", uid)
}

// Get returns the live session of uid without taking a reference.
func (r *Registry) Get(uid string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uid]
	return s, ok
}

// Len counts live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
