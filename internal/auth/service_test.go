package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/database"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func newService(t *testing.T) (*auth.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	cfg := auth.Config{Issuer: "test", AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour, BcryptCost: 4}
	svc := auth.NewServiceWithKey(database.OpenTest(t), cfg, signingKey(t), clock, zaptest.NewLogger(t).Sugar())
	return svc, clock
}

func TestSignInAnonymouslyAndVerify(t *testing.T) {
	t.Parallel()
	svc, clock := newService(t)

	tokens, err := svc.SignInAnonymously(context.Background(), "web")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if tokens.UID == "" || tokens.TokenType != "Bearer" || tokens.ExpiresIn != 900 {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	claims, err := svc.Verify(tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != tokens.UID || claims.Issuer != "test" {
		t.Fatalf("claims = %+v", claims)
	}

	clock.Advance(16 * time.Minute)
	if _, err := svc.Verify(tokens.AccessToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
	if _, err := svc.Verify("not-a-token"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.SignInAnonymously(ctx, "web")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.UID != first.UID || second.RefreshToken == first.RefreshToken {
		t.Fatalf("rotation failed: %+v", second)
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("reused refresh token accepted: %v", err)
	}

	id, _, _ := strings.Cut(second.RefreshToken, ".")
	for _, bad := range []string{"", "nodot", id + ".wrong-secret", "unknown.secret"} {
		if _, err := svc.Refresh(ctx, bad); !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("Refresh(%q) = %v", bad, err)
		}
	}
}

func TestRefreshExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newService(t)

	tokens, err := svc.SignInAnonymously(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(25 * time.Hour)
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expired refresh accepted: %v", err)
	}
	if err := svc.PruneExpired(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	tokens, err := svc.SignInAnonymously(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	h := auth.Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := auth.UIDFromContext(r.Context())
		_, _ = w.Write([]byte(uid))
	}))

	tests := []struct {
		name    string
		header  string
		query   string
		upgrade bool
		status  int
	}{
		{"header", "Bearer " + tokens.AccessToken, "", false, http.StatusOK},
		{"lowercase scheme", "bearer " + tokens.AccessToken, "", false, http.StatusOK},
		{"query on upgrade", "", "?access_token=" + tokens.AccessToken, true, http.StatusOK},
		{"query on plain request", "", "?access_token=" + tokens.AccessToken, false, http.StatusUnauthorized},
		{"missing", "", "", false, http.StatusUnauthorized},
		{"invalid", "Bearer nope", "", false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && rec.Body.String() != tokens.UID {
				t.Fatalf("uid = %q", rec.Body.String())
			}
		})
	}
}

func TestDeviceAuth(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	d := auth.NewDeviceAuth(svc, "web")

	var mu sync.Mutex
	var seen []string
	unsubscribe := d.OnAuthStateChange(func(uid string) {
		mu.Lock()
		seen = append(seen, uid)
		mu.Unlock()
	})

	uid, err := d.SignInAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.UID() != uid || d.Tokens() == nil {
		t.Fatalf("device state uid=%q tokens=%v", d.UID(), d.Tokens())
	}

	restored := auth.NewDeviceAuth(svc, "web")
	if err := restored.Restore(d.Tokens().AccessToken); err != nil || restored.UID() != uid {
		t.Fatalf("restore: %v uid=%q", err, restored.UID())
	}
	if err := restored.Restore("bad"); err == nil {
		t.Fatal("restore accepted a bad token")
	}

	unsubscribe()
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "" || seen[1] != uid {
		t.Fatalf("auth state events = %v", seen)
	}
}
