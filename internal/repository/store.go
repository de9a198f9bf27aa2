// Package repository defines the persistence contracts of the booking
// system and implements them on PostgreSQL with pgx. The sqlitestore and
// mongostore subpackages implement the same contracts on other engines.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientTickets is returned when a booking asks for more tickets
// than the ride has left.
var ErrInsufficientTickets = errors.New("not enough tickets available")

// ErrDuplicateUsername is returned when the username is already registered.
var ErrDuplicateUsername = errors.New("username already registered")

// ErrDuplicateEmail is returned when the email is already registered and
// the username is free. A user whose username and email are both taken
// gets ErrDuplicateUsername.
var ErrDuplicateEmail = errors.New("email already registered")

// RideStore reads the ride catalog.
type RideStore interface {
	List(ctx context.Context) ([]model.Ride, error)
	Get(ctx context.Context, id int64) (*model.Ride, error)
	Count(ctx context.Context) (int, error)
	// Seed inserts rides only when the table is empty and reports how many
	// rows it wrote.
	Seed(ctx context.Context, rides []model.Ride) (int, error)
}

// UserStore persists accounts.
type UserStore interface {
	// Create inserts u and sets u.ID.
	Create(ctx context.Context, u *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Count(ctx context.Context) (int, error)
}

// BookingStore records bookings.
type BookingStore interface {
	// Book checks availability, decrements the ride's counter and inserts
	// the booking as one atomic unit per ride. It returns ErrNotFound for
	// an unknown ride and ErrInsufficientTickets, with nothing written,
	// when req.Quantity exceeds the remaining tickets.
	Book(ctx context.Context, req model.BookingRequest) (*model.Booking, error)
	// ListByUser returns the user's bookings, most recent first.
	ListByUser(ctx context.Context, userID int64) ([]model.Booking, error)
	Count(ctx context.Context) (int, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

// Store bundles one backend's repositories.
type Store struct {
	Rides    RideStore
	Users    UserStore
	Bookings BookingStore
	Sessions SessionStore

	closeFn func() error
}

// NewStore assembles a Store. closeFn releases the backend and may be nil.
func NewStore(rides RideStore, users UserStore, bookings BookingStore, sessions SessionStore, closeFn func() error) *Store {
	return &Store{
		Rides:    rides,
		Users:    users,
		Bookings: bookings,
		Sessions: sessions,
		closeFn:  closeFn,
	}
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}
