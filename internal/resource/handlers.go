package resource

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campusbooking/internal/api"
)

type Handlers struct {
	Catalog Catalog
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	var kind Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := ParseKind(raw)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "kind must be room or equipment")
			return
		}
		kind = k
	}

	items, err := h.Catalog.List(r.Context(), kind)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	if items == nil {
		items = []Resource{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error())
		return
	}
	res, err := h.Catalog.Get(r.Context(), Ref{Kind: kind, ID: chi.URLParam(r, "id")})
	if errors.Is(err, ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", string(kind)+" not found")
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"resource": res})
}
