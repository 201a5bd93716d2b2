package entity

const (
	BadgeEarlyBird       = "early-bird"
	BadgeSocialButterfly = "social-butterfly"
)

// Badge is an achievement record. Icons are resolved by the client.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var badges = []Badge{
	{ID: BadgeEarlyBird, Name: "Early Bird", Description: "Joined the conference companion."},
	{ID: BadgeSocialButterfly, Name: "Social Butterfly", Description: "Connected with 5 attendees."},
}

// Badges lists every badge that can be unlocked.
func Badges() []Badge {
	return append([]Badge{}, badges...)
}

// LookupBadge returns the badge record for id.
func LookupBadge(id string) (Badge, bool) {
	for _, b := range badges {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}
