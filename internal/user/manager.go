package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-companion-go/internal/user/repo"
)

var (
	ErrNoIdentity       = errors.New("no authenticated identity")
	ErrNoProfile        = errors.New("no current profile")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrSelfConnection   = errors.New("cannot connect to yourself")
	ErrAlreadyConnected = errors.New("already connected")
	ErrProfileExists    = errors.New("profile already exists")
	ErrNumberInUse      = errors.New("number belongs to a connection")
	ErrPersist          = errors.New("persist profile")
)

// State is the profile lifecycle of one device session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateNoProfile
	StateHasProfile
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateNoProfile:
		return "no-profile"
	case StateHasProfile:
		return "has-profile"
	}
	return "unknown"
}

// Store persists profiles. ProfileRepo is the production implementation.
type Store interface {
	Get(ctx context.Context, uid string) (*entity.Profile, error)
	Create(ctx context.Context, p *entity.Profile) error
	Merge(ctx context.Context, uid string, patch entity.Update) error
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Clock            clockwork.Clock
	BadgeNoticeDelay time.Duration
	// Permission reports the device notification permission.
	Permission func() notice.Permission
	Logger     *zap.SugaredLogger
}

// Manager owns the in-memory profile of one identity and is the only
// writer of its users/{uid} document. Operations are serialized; each
// reads the latest state, awaits persistence and only then publishes.
type Manager struct {
	uid        string
	store      Store
	notifier   notice.Notifier
	clock      clockwork.Clock
	badgeDelay time.Duration
	permission func() notice.Permission
	logger     *zap.SugaredLogger
	validate   *validator.Validate

	mu      sync.Mutex
	state   State
	profile *entity.Profile
	timers  map[int]clockwork.Timer
	timerID int
	closed  bool

	lmu       sync.Mutex
	listeners []func([]string)
}

func NewManager(uid string, store Store, notifier notice.Notifier, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BadgeNoticeDelay <= 0 {
		opts.BadgeNoticeDelay = time.Second
	}
	if opts.Permission == nil {
		opts.Permission = func() notice.Permission { return notice.PermissionDefault }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	state := StateAuthenticating
	if uid == "" {
		state = StateUnauthenticated
	}
	return &Manager{
		uid:        uid,
		store:      store,
		notifier:   notifier,
		clock:      opts.Clock,
		badgeDelay: opts.BadgeNoticeDelay,
		permission: opts.Permission,
		logger:     opts.Logger.With("uid", uid),
		validate:   validator.New(),
		state:      state,
		timers:     map[int]clockwork.Timer{},
	}
}

func (m *Manager) UID() string { return m.uid }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current profile, or nil.
func (m *Manager) Snapshot() *entity.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile.Clone()
}

// OnBookmarksChange registers fn to receive the bookmark set after every
// persisted change to it.
func (m *Manager) OnBookmarksChange(fn func(bookmarks []string)) {
	m.lmu.Lock()
	m.listeners = append(m.listeners, fn)
	m.lmu.Unlock()
}

// Load reads the profile of the identity. A missing document is the
// NoProfile state, not an error.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.uid == "" {
		m.mu.Unlock()
		return ErrNoIdentity
	}
	p, err := m.store.Get(ctx, m.uid)
	switch {
	case errors.Is(err, userrepo.ErrNotFound):
		m.profile = nil
		m.state = StateNoProfile
	case err != nil:
		m.mu.Unlock()
		return fmt.Errorf("load profile %s: %w", m.uid, err)
	default:
		p.UID = m.uid
		p.Normalize(nil)
		m.profile = p
		m.state = StateHasProfile
	}
	bookmarks := m.bookmarksLocked()
	m.mu.Unlock()

	m.logger.Debugw("profile loaded", "state", m.State().String())
	if bookmarks != nil {
		m.emitBookmarks(bookmarks)
	}
	return nil
}

// SaveUser creates the profile of a first-time visitor and signals
// navigation to the home view. On failure the state is left unchanged.
func (m *Manager) SaveUser(ctx context.Context, reg entity.Registration) (*entity.Profile, error) {
	m.mu.Lock()
	if m.uid == "" {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindDestructive, "Not signed in", "Please wait for sign-in to finish and try again."))
		return nil, ErrNoIdentity
	}
	// only NoProfile may create; an existing profile is never replaced
	if m.profile != nil {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindInfo, "Profile already exists", "Edit your profile instead."))
		return nil, ErrProfileExists
	}
	if err := m.validate.Struct(reg); err != nil {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindDestructive, "Incomplete profile", "Name, organisation and WhatsApp number are required."))
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	p := entity.NewProfile(m.uid, reg)
	if err := m.store.Create(ctx, p); err != nil {
		m.mu.Unlock()
		m.logger.Warnw("create profile failed", "err", err)
		m.notify(notice.Toast(notice.KindDestructive, "Could not save profile", "Please check your connection and try again."))
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	m.profile = p
	m.state = StateHasProfile
	out := p.Clone()
	m.mu.Unlock()

	m.logger.Infow("profile created", "points", out.Points)
	m.notify(notice.Event(notice.TypeProfile, out.Clone()))
	m.notify(notice.Toast(notice.KindSuccess, "Welcome, "+out.Name+"!", "Your profile is ready. You earned the Early Bird badge."))
	m.notify(notice.Navigate("/"))
	m.emitBookmarks(out.BookmarkedEventIDs)
	return out, nil
}

// UpdateUser merges upd into the current profile and persists only the
// present fields. Memory is updated only after the write succeeds.
func (m *Manager) UpdateUser(ctx context.Context, upd entity.Update) (*entity.Profile, error) {
	m.mu.Lock()
	// the identity key may not collide with a connection
	if upd.WhatsappNumber != nil && m.profile != nil && m.profile.IsConnected(*upd.WhatsappNumber) {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindInfo, "Number already used", "That WhatsApp number belongs to one of your connections."))
		return nil, ErrNumberInUse
	}
	err := m.updateLocked(ctx, upd)
	out := m.profile.Clone()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.notify(notice.Event(notice.TypeProfile, out.Clone()))
	if upd.BookmarkedEventIDs != nil {
		m.emitBookmarks(out.BookmarkedEventIDs)
	}
	return out, nil
}

func (m *Manager) updateLocked(ctx context.Context, upd entity.Update) error {
	if m.profile == nil {
		m.notify(notice.Toast(notice.KindDestructive, "No profile", "Create your profile first."))
		return ErrNoProfile
	}
	merged := upd.ApplyTo(m.profile)
	merged.Normalize(m.profile)
	patch := upd.PatchFrom(merged)
	if err := m.store.Merge(ctx, m.uid, patch); err != nil {
		m.logger.Warnw("update profile failed", "err", err)
		m.notify(notice.Toast(notice.KindDestructive, "Could not update profile", "Your change was not saved. Please try again."))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	m.profile = merged
	return nil
}

// ToggleBookmark adds or removes eventID, adjusting points by 2 (never
// below zero). It reports whether the event is bookmarked afterwards.
func (m *Manager) ToggleBookmark(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	if m.profile == nil {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindDestructive, "No profile", "Create your profile first."))
		return false, ErrNoProfile
	}
	cur := m.profile
	adding := !cur.IsBookmarked(eventID)

	bookmarks := make([]string, 0, len(cur.BookmarkedEventIDs)+1)
	points := cur.Points
	if adding {
		bookmarks = append(bookmarks, cur.BookmarkedEventIDs...)
		bookmarks = append(bookmarks, eventID)
		points += entity.BookmarkPoints
	} else {
		for _, id := range cur.BookmarkedEventIDs {
			if id != eventID {
				bookmarks = append(bookmarks, id)
			}
		}
		points = max(points-entity.BookmarkPoints, 0)
	}

	err := m.updateLocked(ctx, entity.Update{BookmarkedEventIDs: &bookmarks, Points: &points})
	applied := m.bookmarksLocked()
	out := m.profile.Clone()
	m.mu.Unlock()
	if err != nil {
		return !adding, err
	}

	m.notify(notice.Event(notice.TypeProfile, out))

	if adding && m.permission() == notice.PermissionDefault {
		m.notify(notice.PermissionRequest())
	}
	if adding {
		m.notify(notice.Toast(notice.KindSuccess, "Bookmarked", "We'll remind you before it starts. +2 points"))
	} else {
		m.notify(notice.Toast(notice.KindInfo, "Bookmark removed", "-2 points"))
	}
	m.emitBookmarks(applied)
	return adding, nil
}

// AddConnection records peer after checking, in order, that a profile
// exists, that peer is not the owner and that peer is not yet connected.
func (m *Manager) AddConnection(ctx context.Context, peer entity.PublicProfile) (*entity.Profile, error) {
	m.mu.Lock()
	cur := m.profile
	if cur == nil {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindDestructive, "No profile", "Create your profile before connecting."))
		return nil, ErrNoProfile
	}
	if peer.WhatsappNumber == cur.WhatsappNumber {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindInfo, "That's you!", "You can't connect with yourself."))
		return nil, ErrSelfConnection
	}
	if cur.IsConnected(peer.WhatsappNumber) {
		m.mu.Unlock()
		m.notify(notice.Toast(notice.KindInfo, "Already connected", "You are already connected with "+peer.Name+"."))
		return nil, ErrAlreadyConnected
	}

	conns := append(append([]entity.Connection{}, cur.Connections...), entity.Connection{
		PublicProfile: peer,
		ConnectedAt:   m.clock.Now().UTC(),
	})
	points := cur.Points + entity.ConnectionPoints
	upd := entity.Update{Connections: &conns, Points: &points}

	unlocked := false
	if len(conns) >= entity.SocialButterflyAfter && !cur.HasBadge(entity.BadgeSocialButterfly) {
		badges := append(append([]string{}, cur.UnlockedBadges...), entity.BadgeSocialButterfly)
		upd.UnlockedBadges = &badges
		unlocked = true
	}

	if err := m.updateLocked(ctx, upd); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	out := m.profile.Clone()
	if unlocked {
		m.scheduleBadgeNoticeLocked(entity.BadgeSocialButterfly)
	}
	m.mu.Unlock()

	m.logger.Infow("connection added", "peer", peer.WhatsappNumber, "connections", len(out.Connections), "badge_unlocked", unlocked)
	m.notify(notice.Event(notice.TypeProfile, out.Clone()))
	m.notify(notice.Toast(notice.KindSuccess, "Connection made!", "You connected with "+peer.Name+". +5 points"))
	return out, nil
}

// Close cancels pending delayed notices.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.closed = true
}

func (m *Manager) scheduleBadgeNoticeLocked(badgeID string) {
	if m.closed {
		return
	}
	b, ok := entity.LookupBadge(badgeID)
	if !ok {
		return
	}
	m.timerID++
	id := m.timerID
	// Delayed so it does not overlap the connection notice.
	m.timers[id] = m.clock.AfterFunc(m.badgeDelay, func() {
		m.mu.Lock()
		_, pending := m.timers[id]
		delete(m.timers, id)
		m.mu.Unlock()
		if pending {
			m.notify(notice.Toast(notice.KindSuccess, "Badge unlocked: "+b.Name, b.Description))
		}
	})
}

// pendingNotices counts delayed notices not yet delivered.
func (m *Manager) pendingNotices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manager) bookmarksLocked() []string {
	if m.profile == nil {
		return nil
	}
	return append([]string{}, m.profile.BookmarkedEventIDs...)
}

func (m *Manager) emitBookmarks(bookmarks []string) {
	m.lmu.Lock()
	fns := append([]func([]string){}, m.listeners...)
	m.lmu.Unlock()
	for _, fn := range fns {
		fn(append([]string{}, bookmarks...))
	}
}

func (m *Manager) notify(n notice.Notice) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(m.uid, n)
}
