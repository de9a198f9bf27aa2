package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
)

// ListRides handles GET /api/rides
// Returns the catalog partitioned into major and family rides.
func (h *Handler) ListRides(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.catalog.ListRides(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

// GetRide handles GET /api/rides/{id}
func (h *Handler) GetRide(w http.ResponseWriter, r *http.Request) {
	id, err := rideID(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	ride, err := h.catalog.GetRide(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// GetStats handles GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Register handles POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/login
// Returns a bearer token for the new session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.LoginResponse{Token: token, User: user})
}

// Logout handles POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), requestToken(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBooking handles POST /api/rides/{id}/bookings
// Books tickets for the authenticated user.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := rideID(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req model.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	booking, err := h.bookings.Book(r.Context(), UserFrom(r.Context()), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListBookings handles GET /api/bookings
// Returns the authenticated user's bookings, most recent first.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListBookings(r.Context(), UserFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}
