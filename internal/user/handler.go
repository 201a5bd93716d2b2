package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

// Handler exposes the profile operations of the authenticated caller.
// Routes under /api/me expect a Manager in the request context.
type Handler struct {
	profiles Lister
	logger   *zap.SugaredLogger
}

func NewHandler(profiles Lister, logger *zap.SugaredLogger) *Handler {
	return &Handler{profiles: profiles, logger: logger}
}

type meResponse struct {
	State   string          `json:"state"`
	Profile *entity.Profile `json:"profile,omitempty"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	p := m.Snapshot()
	if p == nil {
		h.writeJSON(w, http.StatusNotFound, meResponse{State: m.State().String()})
		return
	}
	h.writeJSON(w, http.StatusOK, meResponse{State: m.State().String(), Profile: p})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	var reg entity.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		h.logger.Debugw("invalid profile payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	p, err := m.SaveUser(r.Context(), reg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// editRequest is the subset of fields an attendee may edit directly.
// Points, badges and connections only change through the game rules.
type editRequest struct {
	Name              *string `json:"name" validate:"omitnil,min=1"`
	LocalOrganisation *string `json:"localOrganisation" validate:"omitnil,min=1"`
	WhatsappNumber    *string `json:"whatsappNumber" validate:"omitnil,min=1"`
	ImageURL          *string `json:"imageUrl"`
	Role              *string `json:"role"`
}

var validate = validator.New()

// normalize trims the badge fields so blanks are caught by validation.
func (e *editRequest) normalize() {
	for _, f := range []*string{e.Name, e.LocalOrganisation, e.WhatsappNumber} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid update payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	req.normalize()
	if err := validate.Struct(req); err != nil {
		h.logger.Debugw("blank profile field", "err", err)
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "name, localOrganisation and whatsappNumber cannot be blank"})
		return
	}
	upd := entity.Update{
		Name:              req.Name,
		LocalOrganisation: req.LocalOrganisation,
		WhatsappNumber:    req.WhatsappNumber,
		ImageURL:          req.ImageURL,
		Role:              req.Role,
	}
	if upd.Empty() {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to update"})
		return
	}
	p, err := m.UpdateUser(r.Context(), upd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	eventID := r.PathValue("eventID")
	if eventID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing event id"})
		return
	}
	bookmarked, err := m.ToggleBookmark(r.Context(), eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"bookmarked": bookmarked, "profile": m.Snapshot()})
}

func (h *Handler) AddConnection(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	var peer entity.PublicProfile
	if err := json.NewDecoder(r.Body).Decode(&peer); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	p, err := m.AddConnection(r.Context(), peer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) Badges(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, entity.Badges())
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	rows, err := Leaderboard(r.Context(), h.profiles, limit)
	if err != nil {
		h.logger.Warnw("leaderboard failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "leaderboard unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) manager(w http.ResponseWriter, r *http.Request) (*Manager, bool) {
	m, ok := ManagerFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return m, ok
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoIdentity):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, ErrNoProfile):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no profile"})
	case errors.Is(err, ErrInvalidProfile):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "name, localOrganisation and whatsappNumber are required"})
	case errors.Is(err, ErrSelfConnection):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "cannot connect to yourself"})
	case errors.Is(err, ErrProfileExists):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "profile already exists"})
	case errors.Is(err, ErrNumberInUse):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "whatsappNumber belongs to one of your connections"})
	case errors.Is(err, ErrAlreadyConnected):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "already connected"})
	case errors.Is(err, ErrPersist):
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "could not save profile"})
	default:
		h.logger.Warnw("profile operation failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
