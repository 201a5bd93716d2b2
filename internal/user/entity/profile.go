package entity

import "time"

// Point values and thresholds of the gamification rules.
const (
	InitialPoints        = 10
	BookmarkPoints       = 2
	ConnectionPoints     = 5
	SocialButterflyAfter = 5
)

// PublicProfile is an attendee as seen by other attendees. It is also the
// JSON payload carried by badge QR codes.
type PublicProfile struct {
	Name              string `json:"name" validate:"required"`
	LocalOrganisation string `json:"localOrganisation" validate:"required"`
	// WhatsappNumber is the identity key between attendees.
	WhatsappNumber string `json:"whatsappNumber" validate:"required"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// Connection is a peer recorded through a QR exchange.
type Connection struct {
	PublicProfile
	ConnectedAt time.Time `json:"connectedAt"`
}

// Profile is the durable record of one attendee, stored as users/{uid}.
type Profile struct {
	PublicProfile
	UID                string       `json:"uid"`
	Role               string       `json:"role,omitempty"`
	BookmarkedEventIDs []string     `json:"bookmarkedEventIds"`
	Connections        []Connection `json:"connections"`
	Points             int          `json:"points"`
	UnlockedBadges     []string     `json:"unlockedBadges"`
}

// Registration is what the welcome form collects.
type Registration struct {
	PublicProfile
	Role string `json:"role,omitempty"`
}

// NewProfile builds the profile of a first-time visitor.
func NewProfile(uid string, reg Registration) *Profile {
	return &Profile{
		PublicProfile:      reg.PublicProfile,
		UID:                uid,
		Role:               reg.Role,
		BookmarkedEventIDs: []string{},
		Connections:        []Connection{},
		Points:             InitialPoints,
		UnlockedBadges:     []string{BadgeEarlyBird},
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.BookmarkedEventIDs = append([]string{}, p.BookmarkedEventIDs...)
	c.Connections = append([]Connection{}, p.Connections...)
	c.UnlockedBadges = append([]string{}, p.UnlockedBadges...)
	return &c
}

func (p *Profile) IsBookmarked(eventID string) bool {
	for _, id := range p.BookmarkedEventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

func (p *Profile) HasBadge(badgeID string) bool {
	for _, id := range p.UnlockedBadges {
		if id == badgeID {
			return true
		}
	}
	return false
}

// IsConnected reports whether a connection with the given number exists.
func (p *Profile) IsConnected(whatsappNumber string) bool {
	for _, c := range p.Connections {
		if c.WhatsappNumber == whatsappNumber {
			return true
		}
	}
	return false
}

// Normalize restores the profile invariants after an arbitrary merge:
// points are floored at zero, bookmarks and badges are de-duplicated,
// connections keep the first entry per number and never include the
// owner, and every badge unlocked in prev stays unlocked.
func (p *Profile) Normalize(prev *Profile) {
	if p.Points < 0 {
		p.Points = 0
	}
	p.BookmarkedEventIDs = dedupe(p.BookmarkedEventIDs)

	badges := p.UnlockedBadges
	if prev != nil {
		badges = append(append([]string{}, prev.UnlockedBadges...), badges...)
	}
	p.UnlockedBadges = dedupe(badges)

	seen := make(map[string]struct{}, len(p.Connections))
	conns := make([]Connection, 0, len(p.Connections))
	for _, c := range p.Connections {
		if c.WhatsappNumber == p.WhatsappNumber {
			continue
		}
		if _, dup := seen[c.WhatsappNumber]; dup {
			continue
		}
		seen[c.WhatsappNumber] = struct{}{}
		conns = append(conns, c)
	}
	p.Connections = conns
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
