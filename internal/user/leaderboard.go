package user

import (
	"context"
	"sort"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

// Lister reads every stored profile.
type Lister interface {
	List(ctx context.Context) ([]*entity.Profile, error)
}

// Standing is one leaderboard row. Only public fields are exposed.
type Standing struct {
	Rank              int    `json:"rank"`
	Name              string `json:"name"`
	LocalOrganisation string `json:"localOrganisation"`
	ImageURL          string `json:"imageUrl,omitempty"`
	Points            int    `json:"points"`
	Badges            int    `json:"badges"`
}

// Leaderboard ranks profiles by points, highest first. Equal points share
// a rank and are ordered by name.
func Leaderboard(ctx context.Context, l Lister, limit int) ([]Standing, error) {
	profiles, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Points != profiles[j].Points {
			return profiles[i].Points > profiles[j].Points
		}
		return profiles[i].Name < profiles[j].Name
	})
	if limit > 0 && len(profiles) > limit {
		profiles = profiles[:limit]
	}
	out := make([]Standing, 0, len(profiles))
	for i, p := range profiles {
		rank := i + 1
		if i > 0 && p.Points == profiles[i-1].Points {
			rank = out[i-1].Rank
		}
		out = append(out, Standing{
			Rank:              rank,
			Name:              p.Name,
			LocalOrganisation: p.LocalOrganisation,
			ImageURL:          p.ImageURL,
			Points:            max(p.Points, 0),
			Badges:            len(p.UnlockedBadges),
		})
	}
	return out, nil
}
