package qrscan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

// ErrInvalidPayload means a decoded QR code is not an attendee badge.
var ErrInvalidPayload = errors.New("invalid qr payload")

var validate = validator.New()

// ParsePayload decodes the badge JSON carried by a QR code. name,
// localOrganisation and whatsappNumber must be present and non-empty.
func ParsePayload(raw string) (entity.PublicProfile, error) {
	var p entity.PublicProfile
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return entity.PublicProfile{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	p.Name = strings.TrimSpace(p.Name)
	p.LocalOrganisation = strings.TrimSpace(p.LocalOrganisation)
	p.WhatsappNumber = strings.TrimSpace(p.WhatsappNumber)
	if err := validate.Struct(p); err != nil {
		return entity.PublicProfile{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p, nil
}
