// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer: server-rendered HTML
// pages for browsers and a JSON API under /api.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/service"
)

// Handler holds all HTTP handlers for the carnival app.
type Handler struct {
	catalog  *service.CatalogService
	auth     *service.AuthService
	bookings *service.BookingService
	pages    *pages
	logger   *slog.Logger
}

// New constructs a Handler and parses the page templates.
func New(
	catalog *service.CatalogService,
	auth *service.AuthService,
	bookings *service.BookingService,
	logger *slog.Logger,
) (*Handler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	return &Handler{
		catalog:  catalog,
		auth:     auth,
		bookings: bookings,
		pages:    p,
		logger:   logger,
	}, nil
}

// Router builds the full route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(h.logger))

	r.Get("/health", HealthCheck)

	// Browser pages
	r.Group(func(r chi.Router) {
		r.Use(h.LoadUser)

		r.Get("/", h.Dashboard)
		r.Get("/register", h.RegisterPage)
		r.Post("/register", h.RegisterSubmit)
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.LoginSubmit)
		r.Post("/logout", h.LogoutSubmit)

		r.Group(func(r chi.Router) {
			r.Use(requirePage)
			r.Get("/book/{id}", h.BookPage)
			r.Post("/book/{id}", h.BookSubmit)
			r.Get("/bookings", h.BookingsPage)
		})
	})

	// JSON API
	r.Route("/api", func(r chi.Router) {
		r.Use(CORS)
		r.Use(h.LoadUser)

		r.Get("/rides", h.ListRides)
		r.Get("/rides/{id}", h.GetRide)
		r.Get("/stats", h.GetStats)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireAPI)
			r.Post("/rides/{id}/bookings", h.CreateBooking)
			r.Get("/bookings", h.ListBookings)
		})
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// rideID parses the {id} path parameter. A malformed id is a validation
// error; a non-positive one can never name a ride and is not found.
func rideID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, &service.ValidationError{Field: "id", Message: "ride id must be a number"}
	}
	if id <= 0 {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

// writeServiceError maps a service error onto the JSON error envelope.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride not found")
	case errors.Is(err, repository.ErrInsufficientTickets):
		writeError(w, http.StatusConflict, "not enough tickets available")
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
