//go:build integration

package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository/mongostore"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/seed"
)

func newMongoStore(t *testing.T) *repository.Store {
	t.Helper()
	st := openMongoStore(t)
	n, err := st.Rides.Seed(context.Background(), seed.DefaultRides())
	require.NoError(t, err)
	require.Equal(t, 6, n)
	return st
}

// openMongoStore returns a store on a fresh, empty database.
func openMongoStore(t *testing.T) *repository.Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://127.0.0.1:27017"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongostore.Connect(ctx, uri)
	require.NoError(t, err)

	dbName := fmt.Sprintf("carnival_test_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = client.Database(dbName).Drop(context.Background()) })

	st, err := mongostore.New(ctx, client, dbName, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMongo_UsersAndLedger(t *testing.T) {
	st := newMongoStore(t)
	ctx := context.Background()

	alice := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", FullName: "Alice", CreatedAt: time.Now().UTC()}
	bob := &model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x", FullName: "Bob", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.Users.Create(ctx, alice))
	require.NoError(t, st.Users.Create(ctx, bob))
	assert.NotEqual(t, alice.ID, bob.ID)

	err := st.Users.Create(ctx, &model.User{Username: "alice", Email: "c@example.com", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
	err = st.Users.Create(ctx, &model.User{Username: "carol", Email: "bob@example.com", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	const carousel = 4
	b, err := st.Bookings.Book(ctx, model.BookingRequest{UserID: alice.ID, RideID: carousel, RiderName: "A", RiderAge: 8, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.TotalPrice)
	_, err = st.Bookings.Book(ctx, model.BookingRequest{UserID: bob.ID, RideID: carousel, RiderName: "B", RiderAge: 8, Quantity: 1})
	require.NoError(t, err)

	got, err := st.Bookings.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
	assert.True(t, b.BookedAt.Equal(got[0].BookedAt))

	_, err = st.Bookings.Book(ctx, model.BookingRequest{UserID: bob.ID, RideID: 999, RiderName: "B", Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMongo_FerrisWheelConcurrent(t *testing.T) {
	st := newMongoStore(t)
	ctx := context.Background()

	u := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", FullName: "Alice", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.Users.Create(ctx, u))

	const ferris = 3
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Bookings.Book(ctx, model.BookingRequest{UserID: u.ID, RideID: ferris, RiderName: "Sam", RiderAge: 30, Quantity: 40})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			assert.ErrorIs(t, err, repository.ErrInsufficientTickets)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	ride, err := st.Rides.Get(ctx, ferris)
	require.NoError(t, err)
	assert.Equal(t, 20, ride.AvailableTickets)
}

func TestMongo_ConcurrentBootstrapSeedsOnce(t *testing.T) {
	st := openMongoStore(t)
	ctx := context.Background()

	const starts = 8
	var wg sync.WaitGroup
	errs := make([]error, starts)
	for i := 0; i < starts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = seed.Bootstrap(ctx, st, seed.Options{AdminPassword: "admin123"})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	rides, err := st.Rides.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rides, 6)
	total := 0
	for _, r := range rides {
		total += r.AvailableTickets
	}
	assert.Equal(t, 400, total)

	users, err := st.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, users)
}
