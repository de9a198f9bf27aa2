package service

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
)

// CatalogService serves read-only views of the rides.
type CatalogService struct {
	rides    repository.RideStore
	bookings repository.BookingStore
}

// NewCatalogService constructs a CatalogService with its dependencies.
func NewCatalogService(rides repository.RideStore, bookings repository.BookingStore) *CatalogService {
	return &CatalogService{rides: rides, bookings: bookings}
}

// ListRides returns every ride, partitioned by category.
func (s *CatalogService) ListRides(ctx context.Context) (*model.Catalog, error) {
	rides, err := s.rides.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	catalog := &model.Catalog{Major: []model.Ride{}, Family: []model.Ride{}}
	for _, ride := range rides {
		switch ride.Category {
		case model.CategoryMajor:
			catalog.Major = append(catalog.Major, ride)
		case model.CategoryFamily:
			catalog.Family = append(catalog.Family, ride)
		}
	}
	return catalog, nil
}

// GetRide returns a single ride or repository.ErrNotFound.
func (s *CatalogService) GetRide(ctx context.Context, id int64) (*model.Ride, error) {
	if id <= 0 {
		return nil, repository.ErrNotFound
	}
	return s.rides.Get(ctx, id)
}

// Stats returns the dashboard counters.
func (s *CatalogService) Stats(ctx context.Context) (*model.Stats, error) {
	rides, err := s.rides.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	bookings, err := s.bookings.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	stats := &model.Stats{TotalRides: len(rides), TotalBookings: bookings}
	for _, ride := range rides {
		stats.TicketsAvailable += ride.AvailableTickets
	}
	return stats, nil
}
