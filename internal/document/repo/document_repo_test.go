package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/document/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/database"
)

type doc struct {
	Name   string   `json:"name,omitempty"`
	Points *int     `json:"points,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func intPtr(v int) *int { return &v }

func TestDocumentRepoGetMissing(t *testing.T) {
	t.Parallel()
	r := repo.NewDocumentRepo(database.OpenTest(t))

	var got doc
	err := r.Get(context.Background(), "users", "nobody", &got)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentRepoSetReplaceAndMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := repo.NewDocumentRepo(database.OpenTest(t))

	if err := r.Set(ctx, "users", "u1", doc{Name: "Ada", Points: intPtr(10), Tags: []string{"a"}}, repo.SetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// merge keeps fields absent from the patch
	if err := r.Set(ctx, "users", "u1", doc{Points: intPtr(12)}, repo.SetOptions{Merge: true}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	var got doc
	if err := r.Get(ctx, "users", "u1", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Ada" || got.Points == nil || *got.Points != 12 || len(got.Tags) != 1 {
		t.Fatalf("unexpected merged doc: %+v", got)
	}

	// a plain set replaces the whole document
	if err := r.Set(ctx, "users", "u1", doc{Name: "Grace"}, repo.SetOptions{}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got = doc{}
	if err := r.Get(ctx, "users", "u1", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Grace" || got.Points != nil || got.Tags != nil {
		t.Fatalf("unexpected replaced doc: %+v", got)
	}
}

func TestDocumentRepoMergeCreatesMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := repo.NewDocumentRepo(database.OpenTest(t))

	if err := r.Set(ctx, "users", "u2", doc{Name: "Linus"}, repo.SetOptions{Merge: true}); err != nil {
		t.Fatalf("merge into missing: %v", err)
	}
	var got doc
	if err := r.Get(ctx, "users", "u2", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Linus" {
		t.Fatalf("unexpected doc: %+v", got)
	}
}

func TestDocumentRepoList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := repo.NewDocumentRepo(database.OpenTest(t))

	for _, k := range []string{"b", "a", "c"} {
		if err := r.Set(ctx, "users", k, doc{Name: k}, repo.SetOptions{}); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := r.Set(ctx, "other", "z", doc{Name: "z"}, repo.SetOptions{}); err != nil {
		t.Fatalf("set other: %v", err)
	}

	bodies, err := r.List(ctx, "users")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bodies) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(bodies))
	}
	var first doc
	if err := json.Unmarshal(bodies[0], &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Name != "a" {
		t.Fatalf("expected key order, first=%q", first.Name)
	}
}
