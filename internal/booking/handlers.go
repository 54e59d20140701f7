package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"campusbooking/internal/api"
	"campusbooking/internal/events"
	"campusbooking/internal/resource"
)

type Handlers struct {
	Service  *Service
	Validate *validator.Validate
}

type CreateRequest struct {
	ResourceType string    `json:"resourceType" validate:"required"`
	ResourceID   string    `json:"resourceId" validate:"required,max=128"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Reason       string    `json:"reason" validate:"required,max=1000"`
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	id := api.IdentityFromContext(r.Context())
	if id == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, string(KindValidation), "invalid json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, string(KindValidation), ValidationMessage(err))
		return
	}

	b, err := h.Service.RequestBooking(r.Context(), id.UserID, resource.Kind(req.ResourceType), req.ResourceID, req.StartTime, req.EndTime, req.Reason)
	if err != nil {
		WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]any{"booking": b})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.visibleBooking(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) Events(w http.ResponseWriter, r *http.Request) {
	b, ok := h.visibleBooking(w, r)
	if !ok {
		return
	}
	items, err := h.Service.Events(r.Context(), b.ID)
	if err != nil {
		WriteErr(w, err)
		return
	}
	if items == nil {
		items = []events.Event{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id := api.IdentityFromContext(r.Context())
	if id == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}
	b, err := h.Service.CancelBooking(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h Handlers) Upcoming(w http.ResponseWriter, r *http.Request) {
	h.listMine(w, r, h.Service.UpcomingForUser)
}

func (h Handlers) Past(w http.ResponseWriter, r *http.Request) {
	h.listMine(w, r, h.Service.PastForUser)
}

// Availability answers GET /resources/{kind}/{id}/availability?start=&end=
// with RFC 3339 bounds.
func (h Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := time.Parse(time.RFC3339, q.Get("start"))
	end, err2 := time.Parse(time.RFC3339, q.Get("end"))
	if err1 != nil || err2 != nil {
		api.WriteError(w, http.StatusBadRequest, string(KindInvalidInterval), "start and end must be RFC 3339 timestamps")
		return
	}

	kind := resource.Kind(chi.URLParam(r, "kind"))
	av, err := h.Service.CheckAvailability(r.Context(), kind, chi.URLParam(r, "id"), start, end)
	if err != nil {
		WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"resource":     resource.Ref{Kind: kind, ID: chi.URLParam(r, "id")},
		"startTime":    start.UTC(),
		"endTime":      end.UTC(),
		"availability": av,
	})
}

func (h Handlers) listMine(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID string) ([]Booking, error)) {
	id := api.IdentityFromContext(r.Context())
	if id == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return
	}
	items, err := list(r.Context(), id.UserID)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteList(w, items)
}

// visibleBooking loads the {id} booking if the caller owns it or may approve.
func (h Handlers) visibleBooking(w http.ResponseWriter, r *http.Request) (*Booking, bool) {
	id := api.IdentityFromContext(r.Context())
	if id == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
		return nil, false
	}
	b, err := h.Service.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteErr(w, err)
		return nil, false
	}
	if b.UserID != id.UserID && !id.Role.CanApprove() {
		api.WriteError(w, http.StatusForbidden, string(KindNotOwner), "you can only view your own bookings")
		return nil, false
	}
	return b, true
}

// WriteList writes {"items": [...]}, never null.
func WriteList(w http.ResponseWriter, items []Booking) {
	if items == nil {
		items = []Booking{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WriteErr maps workflow errors onto the API error envelope. Anything that
// is not a workflow error is reported as an opaque 500.
func WriteErr(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	api.WriteError(w, StatusCode(e.Kind), string(e.Kind), msg)
}

func StatusCode(k Kind) int {
	switch k {
	case KindInvalidInterval, KindValidation:
		return http.StatusBadRequest
	case KindResourceNotFound, KindBookingNotFound:
		return http.StatusNotFound
	case KindResourceUnavailable, KindInvalidStateTransition:
		return http.StatusConflict
	case KindNotOwner:
		return http.StatusForbidden
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationMessage names the first failed field rule.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
	return "invalid request"
}
