package catalog

import (
	"encoding/json"
	"net/http"
)

type Handler struct {
	c *Catalog
}

func NewHandler(c *Catalog) *Handler { return &Handler{c: c} }

// List serves the catalog, optionally filtered by ?kind=event|training.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	items := h.c.All()
	if kind != "" {
		filtered := items[:0]
		for _, it := range items {
			if it.Kind == kind {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}
