package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/broker"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
)

// Publisher is the subset of broker.Publisher the booking flow needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// BookingService validates booking requests and delegates the
// concurrency-safe reservation to the repository layer.
type BookingService struct {
	bookings  repository.BookingStore
	publisher Publisher
	logger    *slog.Logger
}

// NewBookingService constructs a BookingService. publisher may be nil.
func NewBookingService(bookings repository.BookingStore, publisher Publisher, logger *slog.Logger) *BookingService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BookingService{bookings: bookings, publisher: publisher, logger: logger}
}

// MaxRiderAge is the oldest rider age accepted on a booking.
const MaxRiderAge = 150

// Book reserves req.Quantity tickets on rideID for user.
func (s *BookingService) Book(ctx context.Context, user *model.User, rideID int64, req model.BookingRequest) (*model.Booking, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	req.RiderName = strings.TrimSpace(req.RiderName)
	switch {
	case req.RiderName == "":
		return nil, invalid("name", "rider name is required")
	case req.RiderAge < 0:
		return nil, invalid("age", "age must not be negative")
	case req.RiderAge > MaxRiderAge:
		return nil, invalid("age", fmt.Sprintf("age must be at most %d", MaxRiderAge))
	case req.Quantity < 1:
		return nil, invalid("quantity", "quantity must be at least 1")
	}
	if rideID <= 0 {
		return nil, repository.ErrNotFound
	}
	req.UserID = user.ID
	req.RideID = rideID

	booking, err := s.bookings.Book(ctx, req)
	if err != nil {
		// Surface domain errors directly so handlers can set correct HTTP status.
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInsufficientTickets) {
			return nil, err
		}
		return nil, fmt.Errorf("book ride: %w", err)
	}

	s.logger.Info("booking created",
		"booking_id", booking.ID,
		"user_id", booking.UserID,
		"ride_id", booking.RideID,
		"quantity", booking.Quantity,
		"total_price", booking.TotalPrice,
	)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, broker.RoutingBookingCreated, booking); err != nil {
			s.logger.Warn("failed to publish booking event", "booking_id", booking.ID, "error", err)
		}
	}
	return booking, nil
}

// ListBookings returns the user's bookings, most recent first.
func (s *BookingService) ListBookings(ctx context.Context, user *model.User) ([]model.Booking, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	bookings, err := s.bookings.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	return bookings, nil
}
