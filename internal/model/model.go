// Package model defines the core domain types for the carnival booking system.
package model

import "time"

// RideCategory is one of the two fixed kinds of ride.
type RideCategory string

const (
	CategoryMajor  RideCategory = "Major Ride"
	CategoryFamily RideCategory = "Family Ride"
)

// Valid reports whether c is a known category.
func (c RideCategory) Valid() bool {
	return c == CategoryMajor || c == CategoryFamily
}

// User is a registered account. Users are never updated or deleted.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ride is a bookable attraction. AvailableTickets is only ever changed by
// a successful booking and never drops below zero.
type Ride struct {
	ID               int64        `json:"id" yaml:"-"`
	Name             string       `json:"name" yaml:"name"`
	Category         RideCategory `json:"type" yaml:"type"`
	Price            int64        `json:"price" yaml:"price"`
	AvailableTickets int          `json:"available_tickets" yaml:"available_tickets"`
	Schedule         string       `json:"schedule" yaml:"schedule"`
	AgeLimit         string       `json:"age_limit" yaml:"age_limit"`
	HeightLimit      string       `json:"height_limit" yaml:"height_limit"`
}

// SoldOut returns true when no tickets remain.
func (r Ride) SoldOut() bool {
	return r.AvailableTickets <= 0
}

// TotalFor returns the price of quantity tickets at the ride's current price.
func (r Ride) TotalFor(quantity int) int64 {
	return r.Price * int64(quantity)
}

// Booking records one successful booking request. RideName and UnitPrice
// are copied from the ride at booking time so later ride edits do not
// rewrite history.
type Booking struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	RideID     int64     `json:"ride_id"`
	RiderName  string    `json:"name"`
	RiderAge   int       `json:"age"`
	RideName   string    `json:"ride_name"`
	UnitPrice  int64     `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	TotalPrice int64     `json:"total_price"`
	BookedAt   time.Time `json:"booking_time"`
}

// NewBooking builds the booking row for req against the ride as it was
// read inside the booking transaction.
func NewBooking(ride *Ride, req BookingRequest, bookedAt time.Time) *Booking {
	return &Booking{
		UserID:     req.UserID,
		RideID:     ride.ID,
		RiderName:  req.RiderName,
		RiderAge:   req.RiderAge,
		RideName:   ride.Name,
		UnitPrice:  ride.Price,
		Quantity:   req.Quantity,
		TotalPrice: ride.TotalFor(req.Quantity),
		BookedAt:   bookedAt,
	}
}

// Session binds an opaque session id to a user until it expires or is
// deleted by logout.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Catalog is the ride listing partitioned by category.
type Catalog struct {
	Major  []Ride `json:"major_rides"`
	Family []Ride `json:"family_rides"`
}

// All returns every ride in the catalog, major rides first.
func (c *Catalog) All() []Ride {
	all := make([]Ride, 0, len(c.Major)+len(c.Family))
	all = append(all, c.Major...)
	return append(all, c.Family...)
}

// Stats summarises the dashboard counters.
type Stats struct {
	TotalRides       int `json:"total_rides"`
	TicketsAvailable int `json:"total_tickets"`
	TotalBookings    int `json:"total_bookings"`
}

// BookingRequest is the validated input to the booking engine.
type BookingRequest struct {
	UserID    int64  `json:"-"`
	RideID    int64  `json:"-"`
	RiderName string `json:"name"`
	RiderAge  int    `json:"age"`
	Quantity  int    `json:"quantity"`
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm_password"`
	FullName string `json:"full_name"`
}

// LoginRequest is the payload for starting a session.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by the JSON login endpoint.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
