package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	docrepo "github.com/ovaphlow/pitchfork/service-companion-go/internal/document/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-companion-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/database"
)

type call struct {
	uid       string
	bookmarks []string
	perm      notice.Permission
}

type fakeReminders struct {
	mu        sync.Mutex
	calls     []call
	cancelled []string
}

func (f *fakeReminders) Reschedule(uid string, bookmarks []string, perm notice.Permission) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{uid, append([]string{}, bookmarks...), perm})
	if perm != notice.PermissionGranted {
		return 0
	}
	return len(bookmarks)
}

func (f *fakeReminders) Cancel(uid string) {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, uid)
	f.mu.Unlock()
}

func (f *fakeReminders) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeReminders) wasCancelled(uid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.cancelled, uid)
}

type fakeAuth struct {
	mu    sync.Mutex
	uid   string
	fn    func(string)
	fail  error
	calls int
}

func (a *fakeAuth) OnAuthStateChange(fn func(string)) func() {
	a.mu.Lock()
	a.fn = fn
	uid := a.uid
	a.mu.Unlock()
	fn(uid)
	return func() {}
}

func (a *fakeAuth) SignInAnonymously(context.Context) (string, error) {
	a.mu.Lock()
	a.calls++
	if a.fail != nil {
		a.mu.Unlock()
		return "", a.fail
	}
	a.uid = "anon-1"
	fn := a.fn
	a.mu.Unlock()
	fn("anon-1")
	return "anon-1", nil
}

func (a *fakeAuth) signIns() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type published struct {
	mu sync.Mutex
	ns []notice.Notice
}

func (p *published) Publish(n notice.Notice) {
	p.mu.Lock()
	p.ns = append(p.ns, n)
	p.mu.Unlock()
}

func (p *published) identities() []Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Identity
	for _, n := range p.ns {
		if n.Type == notice.TypeIdentity {
			out = append(out, n.Data.(Identity))
		}
	}
	return out
}

func (p *published) has(pred func(notice.Notice) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.ContainsFunc(p.ns, pred)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newRegistry(t *testing.T) (*Registry, *userrepo.ProfileRepo, *fakeReminders) {
	t.Helper()
	profiles := userrepo.NewProfileRepo(docrepo.NewDocumentRepo(database.OpenTest(t)))
	rem := &fakeReminders{}
	logger := zaptest.NewLogger(t).Sugar()
	return NewRegistry(profiles, nil, rem, user.Options{Logger: logger}, logger), profiles, rem
}

func TestBootstrapSignsInAnonymously(t *testing.T) {
	t.Parallel()
	reg, _, rem := newRegistry(t)
	fa := &fakeAuth{}
	pub := &published{}
	ready := make(chan *Session, 1)
	b := NewBootstrapper(fa, reg, pub, BootstrapOptions{OnSession: func(s *Session) { ready <- s }}, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	var s *Session
	select {
	case s = <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("no session")
	}
	if s.UID != "anon-1" || s.Manager.State() != user.StateNoProfile {
		t.Fatalf("session uid=%q state=%v", s.UID, s.Manager.State())
	}
	eventually(t, func() bool {
		ids := pub.identities()
		return len(ids) > 0 && ids[len(ids)-1].State == "no-profile"
	})
	if ids := pub.identities(); ids[0].UID != "" || ids[0].State != "authenticating" {
		t.Fatalf("first identity notice = %+v", ids[0])
	}
	if fa.signIns() != 1 {
		t.Fatalf("sign-ins = %d", fa.signIns())
	}

	cancel()
	<-done
	if reg.Len() != 0 || !rem.wasCancelled("anon-1") {
		t.Fatalf("session not released: len=%d", reg.Len())
	}
}

func TestBootstrapLoadsExistingProfile(t *testing.T) {
	t.Parallel()
	reg, profiles, rem := newRegistry(t)
	p := entity.NewProfile("u1", entity.Registration{PublicProfile: entity.PublicProfile{Name: "Ada", LocalOrganisation: "Labs", WhatsappNumber: "+1"}})
	p.BookmarkedEventIDs = []string{"keynote"}
	if err := profiles.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	fa := &fakeAuth{uid: "u1"}
	pub := &published{}
	b := NewBootstrapper(fa, reg, pub, BootstrapOptions{}, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	eventually(t, func() bool { return b.Session() != nil })
	if st := b.Session().Manager.State(); st != user.StateHasProfile {
		t.Fatalf("state = %v", st)
	}
	eventually(t, func() bool {
		return pub.has(func(n notice.Notice) bool { return n.Type == notice.TypeProfile && n.Data != nil })
	})
	if fa.signIns() != 0 {
		t.Fatal("signed in although an identity existed")
	}
	if got := rem.last(); got.uid != "u1" || !slices.Equal(got.bookmarks, []string{"keynote"}) || got.perm != notice.PermissionDefault {
		t.Fatalf("reschedule on load = %+v", got)
	}
}

func TestBootstrapSignInFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	reg, _, _ := newRegistry(t)
	fa := &fakeAuth{fail: errors.New("auth unavailable")}
	pub := &published{}
	b := NewBootstrapper(fa, reg, pub, BootstrapOptions{}, zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	eventually(t, func() bool {
		return pub.has(func(n notice.Notice) bool { return n.Kind == notice.KindDestructive })
	})
	time.Sleep(50 * time.Millisecond)
	if fa.signIns() != 1 {
		t.Fatalf("sign-in attempts = %d", fa.signIns())
	}
	if b.Session() != nil || reg.Len() != 0 {
		t.Fatal("session created without identity")
	}
	ids := pub.identities()
	if len(ids) != 1 || ids[0].State != "authenticating" {
		t.Fatalf("identity notices = %+v", ids)
	}
}

func TestRegistryRefCountingAndReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _, rem := newRegistry(t)

	a, err := reg.Acquire(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Acquire(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a != b || reg.Len() != 1 {
		t.Fatal("second acquire created a new session")
	}

	form := entity.Registration{PublicProfile: entity.PublicProfile{Name: "Ada", LocalOrganisation: "Labs", WhatsappNumber: "+1"}}
	if _, err := a.Manager.SaveUser(ctx, form); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Manager.ToggleBookmark(ctx, "keynote"); err != nil {
		t.Fatal(err)
	}
	if got := rem.last(); !slices.Equal(got.bookmarks, []string{"keynote"}) || got.perm != notice.PermissionDefault {
		t.Fatalf("reschedule after toggle = %+v", got)
	}

	a.SetPermission(notice.PermissionGranted)
	if got := rem.last(); got.perm != notice.PermissionGranted || !slices.Equal(got.bookmarks, []string{"keynote"}) {
		t.Fatalf("reschedule after grant = %+v", got)
	}

	reg.Release("u1")
	if _, ok := reg.Get("u1"); !ok || rem.wasCancelled("u1") {
		t.Fatal("session released while still referenced")
	}
	reg.Release("u1")
	if _, ok := reg.Get("u1"); ok || !rem.wasCancelled("u1") {
		t.Fatal("session not released")
	}
}
