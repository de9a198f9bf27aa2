package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/service"
)

const msgRideNotFound = "Ride not found!"

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Dashboard handles GET /
// Shows the ride catalog and the dashboard counters.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.catalog.ListRides(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, pageDashboard, pageData{Title: "Dashboard", Catalog: catalog, Stats: stats})
}

// RegisterPage handles GET /register
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pageRegister, pageData{Title: "Register"})
}

// RegisterSubmit handles POST /register
func (h *Handler) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		setFlash(w, flashError, "Invalid form submission.")
		redirect(w, r, "/register")
		return
	}
	_, err := h.auth.Register(r.Context(), model.RegisterRequest{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
		Confirm:  r.PostForm.Get("confirm_password"),
		FullName: r.PostForm.Get("full_name"),
	})
	if err != nil {
		switch {
		case service.IsValidation(err),
			errors.Is(err, service.ErrUsernameTaken),
			errors.Is(err, service.ErrEmailTaken):
			setFlash(w, flashError, capitalize(err.Error())+"!")
			redirect(w, r, "/register")
		default:
			h.internalError(w, r, err)
		}
		return
	}
	setFlash(w, flashSuccess, "Registration successful! Please log in.")
	redirect(w, r, "/login")
}

// LoginPage handles GET /login
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if UserFrom(r.Context()) != nil {
		redirect(w, r, "/")
		return
	}
	h.render(w, r, pageLogin, pageData{Title: "Login"})
}

// LoginSubmit handles POST /login
// Sets the session cookie on success.
func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		setFlash(w, flashError, "Invalid form submission.")
		redirect(w, r, "/login")
		return
	}
	token, user, err := h.auth.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			setFlash(w, flashError, "Invalid username or password!")
			redirect(w, r, "/login")
			return
		}
		h.internalError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	setFlash(w, flashSuccess, fmt.Sprintf("Welcome back, %s!", user.FullName))
	redirect(w, r, "/")
}

// LogoutSubmit handles POST /logout
func (h *Handler) LogoutSubmit(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), requestToken(r)); err != nil {
		h.internalError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	setFlash(w, flashSuccess, "You have been logged out.")
	redirect(w, r, "/login")
}

// BookPage handles GET /book/{id}
func (h *Handler) BookPage(w http.ResponseWriter, r *http.Request) {
	id, err := rideID(r)
	if err != nil {
		setFlash(w, flashError, msgRideNotFound)
		redirect(w, r, "/")
		return
	}
	ride, err := h.catalog.GetRide(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			setFlash(w, flashError, msgRideNotFound)
			redirect(w, r, "/")
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, pageBook, pageData{Title: "Book " + ride.Name, Ride: ride})
}

// BookSubmit handles POST /book/{id}
// Form fields: name, age, quantity (defaults to 1).
func (h *Handler) BookSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := rideID(r)
	if err != nil {
		setFlash(w, flashError, msgRideNotFound)
		redirect(w, r, "/")
		return
	}
	back := fmt.Sprintf("/book/%d", id)

	req, err := parseBookingForm(r)
	if err != nil {
		setFlash(w, flashError, capitalize(err.Error())+"!")
		redirect(w, r, back)
		return
	}

	booking, err := h.bookings.Book(r.Context(), UserFrom(r.Context()), id, req)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			setFlash(w, flashError, capitalize(verr.Error())+"!")
			redirect(w, r, back)
		case errors.Is(err, repository.ErrNotFound):
			setFlash(w, flashError, msgRideNotFound)
			redirect(w, r, "/")
		case errors.Is(err, repository.ErrInsufficientTickets):
			setFlash(w, flashError, "Not enough tickets available!")
			redirect(w, r, back)
		case errors.Is(err, service.ErrUnauthenticated):
			setFlash(w, flashError, err.Error())
			redirect(w, r, "/login")
		default:
			h.internalError(w, r, err)
		}
		return
	}
	setFlash(w, flashSuccess, fmt.Sprintf("Successfully booked %d ticket(s) for %s!", booking.Quantity, booking.RideName))
	redirect(w, r, "/")
}

// BookingsPage handles GET /bookings
func (h *Handler) BookingsPage(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListBookings(r.Context(), UserFrom(r.Context()))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, pageBookings, pageData{Title: "My Bookings", Bookings: bookings})
}

func parseBookingForm(r *http.Request) (model.BookingRequest, error) {
	if err := r.ParseForm(); err != nil {
		return model.BookingRequest{}, &service.ValidationError{Field: "form", Message: "invalid form submission"}
	}
	req := model.BookingRequest{RiderName: r.PostForm.Get("name"), Quantity: 1}

	age, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("age")))
	if err != nil {
		return req, &service.ValidationError{Field: "age", Message: "age must be a whole number"}
	}
	req.RiderAge = age

	if q := strings.TrimSpace(r.PostForm.Get("quantity")); q != "" {
		if req.Quantity, err = strconv.Atoi(q); err != nil {
			return req, &service.ValidationError{Field: "quantity", Message: "quantity must be a whole number"}
		}
	}
	return req, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
