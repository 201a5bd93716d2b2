package repo

import (
	"context"
	"encoding/json"
	"fmt"

	docrepo "github.com/ovaphlow/pitchfork/service-companion-go/internal/document/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

// Collection holds one profile document per uid.
const Collection = "users"

// ErrNotFound is returned when no profile exists for a uid.
var ErrNotFound = docrepo.ErrNotFound

// Documents is the slice of the document store the profile repo needs.
type Documents interface {
	Get(ctx context.Context, collection, key string, dst any) error
	Set(ctx context.Context, collection, key string, value any, opts docrepo.SetOptions) error
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
}

// ProfileRepo maps profiles onto users/{uid} documents.
type ProfileRepo struct {
	docs Documents
}

func NewProfileRepo(docs Documents) *ProfileRepo { return &ProfileRepo{docs: docs} }

// Get loads the profile for uid or returns ErrNotFound.
func (r *ProfileRepo) Get(ctx context.Context, uid string) (*entity.Profile, error) {
	var p entity.Profile
	if err := r.docs.Get(ctx, Collection, uid, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create writes p as a whole document, replacing any previous one.
func (r *ProfileRepo) Create(ctx context.Context, p *entity.Profile) error {
	if p.UID == "" {
		return fmt.Errorf("create profile: empty uid")
	}
	return r.docs.Set(ctx, Collection, p.UID, p, docrepo.SetOptions{})
}

// Merge writes only the fields present in patch.
func (r *ProfileRepo) Merge(ctx context.Context, uid string, patch entity.Update) error {
	return r.docs.Set(ctx, Collection, uid, patch, docrepo.SetOptions{Merge: true})
}

// List decodes every stored profile. Undecodable documents are skipped.
func (r *ProfileRepo) List(ctx context.Context) ([]*entity.Profile, error) {
	bodies, err := r.docs.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Profile, 0, len(bodies))
	for _, b := range bodies {
		var p entity.Profile
		if err := json.Unmarshal(b, &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}
