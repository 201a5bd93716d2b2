package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

type listFunc func(ctx context.Context) ([]*entity.Profile, error)

func (f listFunc) List(ctx context.Context) ([]*entity.Profile, error) { return f(ctx) }

func TestLeaderboard(t *testing.T) {
	t.Parallel()
	mk := func(name string, points int) *entity.Profile {
		p := entity.NewProfile(name, entity.Registration{PublicProfile: entity.PublicProfile{Name: name, WhatsappNumber: "+" + name}})
		p.Points = points
		return p
	}
	src := listFunc(func(context.Context) ([]*entity.Profile, error) {
		return []*entity.Profile{mk("carol", 12), mk("alice", 30), mk("bob", 12), mk("dave", 5)}, nil
	})

	rows, err := user.Leaderboard(context.Background(), src, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		name string
		rank int
	}{{"alice", 1}, {"bob", 2}, {"carol", 2}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i, w := range want {
		if rows[i].Name != w.name || rows[i].Rank != w.rank {
			t.Fatalf("row %d = %+v, want %s rank %d", i, rows[i], w.name, w.rank)
		}
	}

	failing := listFunc(func(context.Context) ([]*entity.Profile, error) { return nil, errors.New("down") })
	if _, err := user.Leaderboard(context.Background(), failing, 0); err == nil {
		t.Fatal("expected error")
	}
}
