package approval

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"campusbooking/internal/api"
	"campusbooking/internal/booking"
)

// Handlers is the staff approval queue. Routes are mounted behind
// api.RequireApprover.
type Handlers struct {
	Bookings *booking.Service
	Validate *validator.Validate
}

func (h Handlers) Pending(w http.ResponseWriter, r *http.Request) {
	items, err := h.Bookings.PendingBookings(r.Context())
	if err != nil {
		booking.WriteErr(w, err)
		return
	}
	booking.WriteList(w, items)
}

func (h Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	id := api.IdentityFromContext(r.Context())
	if id == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}
	b, err := h.Bookings.ApproveBooking(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		booking.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

type RejectRequest struct {
	RejectionReason string `json:"rejectionReason" validate:"required,max=1000"`
}

func (h Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	id := api.IdentityFromContext(r.Context())
	if id == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, string(booking.KindValidation), "invalid json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, string(booking.KindValidation), booking.ValidationMessage(err))
		return
	}

	b, err := h.Bookings.RejectBooking(r.Context(), chi.URLParam(r, "id"), id.UserID, req.RejectionReason)
	if err != nil {
		booking.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}
