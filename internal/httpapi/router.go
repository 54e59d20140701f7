package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"campusbooking/internal/api"
	"campusbooking/internal/approval"
	"campusbooking/internal/booking"
	"campusbooking/internal/resource"
	"campusbooking/pkg/authn"
	"campusbooking/pkg/config"
)

type Dependencies struct {
	Cfg      config.Config
	Log      logrus.FieldLogger
	Bookings *booking.Service
	Catalog  resource.Catalog
	// Redis is optional; it backs the rate limiter when set.
	Redis *redis.Client
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(api.CORSMiddleware(api.CORSOptions{
		AllowedOrigins: deps.Cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAgeSeconds:  600,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	bookingLimit, err := api.RateLimit("bookings", deps.Cfg.RateLimit.Bookings, deps.Redis, deps.Log)
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	resourceHandlers := resource.Handlers{Catalog: deps.Catalog}
	bookingHandlers := booking.Handlers{Service: deps.Bookings, Validate: validate}
	approvalHandlers := approval.Handlers{Bookings: deps.Bookings, Validate: validate}

	// v1
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.Authenticate(api.AuthOptions{
			Keys: authn.Keys{
				Secret:   deps.Cfg.JWT.Secret,
				Issuer:   deps.Cfg.JWT.Issuer,
				Audience: deps.Cfg.JWT.Audience,
			},
			// Dev: falls back to X-User-ID / X-User-Role if Authorization is missing.
			DevHeaders: deps.Cfg.AppEnv != "prod",
			Log:        deps.Log,
		}))

		r.Get("/resources", resourceHandlers.List)
		r.Get("/resources/{kind}/{id}", resourceHandlers.Get)
		r.Get("/resources/{kind}/{id}/availability", bookingHandlers.Availability)

		r.With(bookingLimit).Post("/bookings", bookingHandlers.Create)
		r.Get("/bookings/{id}", bookingHandlers.Get)
		r.Get("/bookings/{id}/events", bookingHandlers.Events)
		r.Post("/bookings/{id}/cancel", bookingHandlers.Cancel)

		r.Get("/me/bookings/upcoming", bookingHandlers.Upcoming)
		r.Get("/me/bookings/past", bookingHandlers.Past)

		// Staff approval queue
		r.Group(func(r chi.Router) {
			r.Use(api.RequireApprover)
			r.Get("/approvals/pending", approvalHandlers.Pending)
			r.Post("/approvals/{id}/approve", approvalHandlers.Approve)
			r.Post("/approvals/{id}/reject", approvalHandlers.Reject)
		})
	})

	return r, nil
}
