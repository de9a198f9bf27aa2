package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/broker"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/database"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository/sqlitestore"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/seed"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/service"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/session"
)

// mockPublisher records published messages.
type mockPublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads []any
	err      error
}

func (m *mockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, routingKey)
	m.payloads = append(m.payloads, payload)
	return m.err
}

type fixture struct {
	store    *repository.Store
	catalog  *service.CatalogService
	auth     *service.AuthService
	bookings *service.BookingService
	pub      *mockPublisher
}

func newFixture(t *testing.T, authOpts ...service.AuthOption) *fixture {
	t.Helper()
	pool, err := database.OpenSQLite(filepath.Join(t.TempDir(), "carnival.db"), 4, nil)
	require.NoError(t, err)
	st := sqlitestore.New(pool)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, seed.Bootstrap(context.Background(), st, seed.Options{AdminPassword: "admin123"}))

	pub := &mockPublisher{}
	opts := append([]service.AuthOption{service.WithBcryptCost(bcrypt.MinCost)}, authOpts...)
	return &fixture{
		store:    st,
		catalog:  service.NewCatalogService(st.Rides, st.Bookings),
		auth:     service.NewAuthService(st.Users, st.Sessions, session.NewIssuer("test-secret"), time.Hour, nil, opts...),
		bookings: service.NewBookingService(st.Bookings, pub, nil),
		pub:      pub,
	}
}

func (f *fixture) register(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), model.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret",
		Confirm:  "secret",
		FullName: "User " + username,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) ride(t *testing.T, name string) model.Ride {
	t.Helper()
	catalog, err := f.catalog.ListRides(context.Background())
	require.NoError(t, err)
	for _, r := range catalog.All() {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("ride %q not found", name)
	return model.Ride{}
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

func TestCatalog_ListRidesPartitions(t *testing.T) {
	f := newFixture(t)
	catalog, err := f.catalog.ListRides(context.Background())
	require.NoError(t, err)

	require.Len(t, catalog.Major, 3)
	require.Len(t, catalog.Family, 3)
	for _, r := range catalog.Major {
		assert.Equal(t, model.CategoryMajor, r.Category)
	}
	for _, r := range catalog.Family {
		assert.Equal(t, model.CategoryFamily, r.Category)
	}
}

func TestCatalog_GetRideNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.GetRide(context.Background(), 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.catalog.GetRide(context.Background(), 0)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCatalog_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice")

	stats, err := f.catalog.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalRides: 6, TicketsAvailable: 400, TotalBookings: 0}, *stats)

	_, err = f.bookings.Book(ctx, user, f.ride(t, "Tea Cups").ID, model.BookingRequest{RiderName: "Sam", RiderAge: 7, Quantity: 4})
	require.NoError(t, err)

	stats, err = f.catalog.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 396, stats.TicketsAvailable)
	assert.Equal(t, 1, stats.TotalBookings)
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

func TestRegister_PasswordMismatchCreatesNoUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, model.RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "one", Confirm: "two", FullName: "Alice",
	})
	assert.ErrorIs(t, err, service.ErrPasswordMismatch)
	assert.True(t, service.IsValidation(err))

	_, err = f.store.Users.GetByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		req   model.RegisterRequest
		field string
	}{
		{"missing username", model.RegisterRequest{Email: "a@b.co", Password: "p", Confirm: "p", FullName: "A"}, "username"},
		{"spaces in username", model.RegisterRequest{Username: "a b", Email: "a@b.co", Password: "p", Confirm: "p", FullName: "A"}, "username"},
		{"bad email", model.RegisterRequest{Username: "a", Email: "nope", Password: "p", Confirm: "p", FullName: "A"}, "email"},
		{"missing full name", model.RegisterRequest{Username: "a", Email: "a@b.co", Password: "p", Confirm: "p"}, "full_name"},
		{"missing password", model.RegisterRequest{Username: "a", Email: "a@b.co", FullName: "A"}, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tc.req)
			var verr *service.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRegister_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.auth.Register(ctx, model.RegisterRequest{
		Username: "alice", Email: "new@example.com", Password: "p", Confirm: "p", FullName: "A",
	})
	assert.ErrorIs(t, err, service.ErrUsernameTaken)

	_, err = f.auth.Register(ctx, model.RegisterRequest{
		Username: "alice2", Email: "ALICE@example.com", Password: "p", Confirm: "p", FullName: "A",
	})
	assert.ErrorIs(t, err, service.ErrEmailTaken)
}

func TestLogin_EstablishesSessionForStoredUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	token, user, err := f.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	authed, err := f.auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, authed.ID)
	assert.Equal(t, "alice", authed.Username)
}

func TestLogin_SeededAdmin(t *testing.T) {
	f := newFixture(t)
	_, user, err := f.auth.Login(context.Background(), seed.AdminUsername, "admin123")
	require.NoError(t, err)
	assert.Equal(t, seed.AdminFullName, user.FullName)
}

func TestLogin_WrongCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	for _, tc := range []struct{ user, pass string }{
		{"alice", "wrong"},
		{"nobody", "secret"},
		{"", ""},
	} {
		token, user, err := f.auth.Login(context.Background(), tc.user, tc.pass)
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
		assert.Empty(t, token)
		assert.Nil(t, user)
	}
}

func TestLogout_InvalidatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	token, _, err := f.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, f.auth.Logout(ctx, token))

	_, err = f.auth.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	assert.NoError(t, f.auth.Logout(ctx, token))
	assert.NoError(t, f.auth.Logout(ctx, "garbage"))
}

func TestAuthenticate_RejectsTamperedAndForeignTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	token, _, err := f.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	flip := "A"
	if parts[2][0] == 'A' {
		flip = "B"
	}
	tampered := parts[0] + "." + parts[1] + "." + flip + parts[2][1:]
	_, err = f.auth.Authenticate(ctx, tampered)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	foreign, err := session.NewIssuer("other-secret").Issue("whatever", 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, foreign)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = f.auth.Authenticate(ctx, "")
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestAuthenticate_ExpiredSession(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	f := newFixture(t, service.WithClock(func() time.Time { return past }))
	ctx := context.Background()
	f.register(t, "alice")

	// Issued two hours ago with a one hour TTL.
	token, _, err := f.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

// ─── Booking ──────────────────────────────────────────────────────────────────

func TestBook_ComputesTotal(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice")
	carousel := f.ride(t, "Carousel")

	b, err := f.bookings.Book(context.Background(), user, carousel.ID, model.BookingRequest{
		RiderName: "  Sam  ", RiderAge: 8, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.TotalPrice)
	assert.Equal(t, "Sam", b.RiderName)
	assert.Equal(t, user.ID, b.UserID)

	require.Len(t, f.pub.keys, 1)
	assert.Equal(t, broker.RoutingBookingCreated, f.pub.keys[0])
	assert.Equal(t, b, f.pub.payloads[0])
}

func TestBook_PublishFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	user := f.register(t, "alice")

	_, err := f.bookings.Book(context.Background(), user, f.ride(t, "Carousel").ID, model.BookingRequest{
		RiderName: "Sam", RiderAge: 8, Quantity: 1,
	})
	assert.NoError(t, err)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice")
	id := f.ride(t, "Carousel").ID

	tests := []struct {
		name  string
		req   model.BookingRequest
		field string
	}{
		{"zero quantity", model.BookingRequest{RiderName: "Sam", RiderAge: 8, Quantity: 0}, "quantity"},
		{"negative quantity", model.BookingRequest{RiderName: "Sam", RiderAge: 8, Quantity: -3}, "quantity"},
		{"blank name", model.BookingRequest{RiderName: "  ", RiderAge: 8, Quantity: 1}, "name"},
		{"negative age", model.BookingRequest{RiderName: "Sam", RiderAge: -1, Quantity: 1}, "age"},
		{"age over limit", model.BookingRequest{RiderName: "Sam", RiderAge: service.MaxRiderAge + 1, Quantity: 1}, "age"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.bookings.Book(ctx, user, id, tc.req)
			var verr *service.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	ride, err := f.catalog.GetRide(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 80, ride.AvailableTickets)
}

func TestBook_RequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.bookings.Book(context.Background(), nil, 1, model.BookingRequest{RiderName: "Sam", Quantity: 1})
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = f.bookings.ListBookings(context.Background(), nil)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestBook_UnknownRide(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice")
	_, err := f.bookings.Book(context.Background(), user, 999, model.BookingRequest{RiderName: "Sam", Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBook_OverbookingChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice")
	ride := f.ride(t, "Dragon Coaster")

	_, err := f.bookings.Book(ctx, user, ride.ID, model.BookingRequest{RiderName: "Sam", RiderAge: 14, Quantity: ride.AvailableTickets + 1})
	assert.ErrorIs(t, err, repository.ErrInsufficientTickets)

	after, err := f.catalog.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.AvailableTickets, after.AvailableTickets)

	bookings, err := f.bookings.ListBookings(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.Empty(t, f.pub.keys)
}

func TestBook_FerrisWheelTwoConcurrentForty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ferris := f.ride(t, "Ferris Wheel")
	require.Equal(t, 60, ferris.AvailableTickets)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, u := range []*model.User{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.bookings.Book(ctx, u, ferris.ID, model.BookingRequest{RiderName: u.Username, RiderAge: 30, Quantity: 40})
		}()
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrInsufficientTickets):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	after, err := f.catalog.GetRide(ctx, ferris.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, after.AvailableTickets)
}

func TestBook_ConcurrentMixedQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice")
	ride := f.ride(t, "Mini Train") // 100 tickets

	quantities := []int{7, 13, 5, 20, 9, 11, 3, 17, 8, 14, 6, 12, 10, 4, 19}
	accepted := make([]bool, len(quantities))
	var wg sync.WaitGroup
	for i, q := range quantities {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.Book(ctx, user, ride.ID, model.BookingRequest{RiderName: "Sam", RiderAge: 5, Quantity: q})
			if err == nil {
				accepted[i] = true
				return
			}
			assert.ErrorIs(t, err, repository.ErrInsufficientTickets)
		}()
	}
	wg.Wait()

	sum := 0
	for i, ok := range accepted {
		if ok {
			sum += quantities[i]
		}
	}
	assert.LessOrEqual(t, sum, 100)

	after, err := f.catalog.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, 100-sum, after.AvailableTickets)
	assert.GreaterOrEqual(t, after.AvailableTickets, 0)

	bookings, err := f.bookings.ListBookings(ctx, user)
	require.NoError(t, err)
	booked := 0
	for _, b := range bookings {
		booked += b.Quantity
	}
	assert.Equal(t, sum, booked)
}

func TestListBookings_IsolatedPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	id := f.ride(t, "Carousel").ID

	_, err := f.bookings.Book(ctx, alice, id, model.BookingRequest{RiderName: "A", RiderAge: 9, Quantity: 1})
	require.NoError(t, err)
	_, err = f.bookings.Book(ctx, bob, id, model.BookingRequest{RiderName: "B", RiderAge: 9, Quantity: 2})
	require.NoError(t, err)

	got, err := f.bookings.ListBookings(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice.ID, got[0].UserID)
	assert.Equal(t, "A", got[0].RiderName)

	got, err = f.bookings.ListBookings(ctx, bob)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bob.ID, got[0].UserID)
}
