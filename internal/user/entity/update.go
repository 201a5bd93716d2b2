package entity

// Update is a partial profile. Nil fields are absent; its JSON encoding is
// the merge patch written to the store. The uid cannot be updated.
type Update struct {
	Name               *string       `json:"name,omitempty"`
	LocalOrganisation  *string       `json:"localOrganisation,omitempty"`
	WhatsappNumber     *string       `json:"whatsappNumber,omitempty"`
	ImageURL           *string       `json:"imageUrl,omitempty"`
	Role               *string       `json:"role,omitempty"`
	BookmarkedEventIDs *[]string     `json:"bookmarkedEventIds,omitempty"`
	Connections        *[]Connection `json:"connections,omitempty"`
	Points             *int          `json:"points,omitempty"`
	UnlockedBadges     *[]string     `json:"unlockedBadges,omitempty"`
}

// Empty reports whether no field is set.
func (u Update) Empty() bool {
	return u.Name == nil && u.LocalOrganisation == nil && u.WhatsappNumber == nil &&
		u.ImageURL == nil && u.Role == nil && u.BookmarkedEventIDs == nil &&
		u.Connections == nil && u.Points == nil && u.UnlockedBadges == nil
}

// ApplyTo returns a copy of p with the present fields replaced.
func (u Update) ApplyTo(p *Profile) *Profile {
	out := p.Clone()
	if u.Name != nil {
		out.Name = *u.Name
	}
	if u.LocalOrganisation != nil {
		out.LocalOrganisation = *u.LocalOrganisation
	}
	if u.WhatsappNumber != nil {
		out.WhatsappNumber = *u.WhatsappNumber
	}
	if u.ImageURL != nil {
		out.ImageURL = *u.ImageURL
	}
	if u.Role != nil {
		out.Role = *u.Role
	}
	if u.BookmarkedEventIDs != nil {
		out.BookmarkedEventIDs = append([]string{}, (*u.BookmarkedEventIDs)...)
	}
	if u.Connections != nil {
		out.Connections = append([]Connection{}, (*u.Connections)...)
	}
	if u.Points != nil {
		out.Points = *u.Points
	}
	if u.UnlockedBadges != nil {
		out.UnlockedBadges = append([]string{}, (*u.UnlockedBadges)...)
	}
	return out
}

// PatchFrom re-points every present field of u at the value held by p,
// so the persisted patch carries normalized values.
func (u Update) PatchFrom(p *Profile) Update {
	c := p.Clone()
	out := Update{}
	if u.Name != nil {
		out.Name = &c.Name
	}
	if u.LocalOrganisation != nil {
		out.LocalOrganisation = &c.LocalOrganisation
	}
	if u.WhatsappNumber != nil {
		out.WhatsappNumber = &c.WhatsappNumber
	}
	if u.ImageURL != nil {
		out.ImageURL = &c.ImageURL
	}
	if u.Role != nil {
		out.Role = &c.Role
	}
	if u.BookmarkedEventIDs != nil {
		out.BookmarkedEventIDs = &c.BookmarkedEventIDs
	}
	if u.Connections != nil {
		out.Connections = &c.Connections
	}
	if u.Points != nil {
		out.Points = &c.Points
	}
	if u.UnlockedBadges != nil {
		out.UnlockedBadges = &c.UnlockedBadges
	}
	return out
}
