package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/database"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository/sqlitestore"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/seed"
)

func TestDefaultRides(t *testing.T) {
	rides := seed.DefaultRides()
	require.Len(t, rides, 6)

	byName := make(map[string]model.Ride)
	for _, r := range rides {
		byName[r.Name] = r
	}
	ferris := byName["Ferris Wheel"]
	assert.Equal(t, model.CategoryMajor, ferris.Category)
	assert.Equal(t, int64(100), ferris.Price)
	assert.Equal(t, 60, ferris.AvailableTickets)
	assert.Equal(t, "9:00 AM - 9:00 PM", ferris.Schedule)

	carousel := byName["Carousel"]
	assert.Equal(t, model.CategoryFamily, carousel.Category)
	assert.Equal(t, int64(50), carousel.Price)
}

func TestParseRides_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":       "rides: [",
		"empty":          "rides: []",
		"missing name":   "rides:\n  - type: Major Ride\n    price: 1\n",
		"unknown type":   "rides:\n  - name: X\n    type: Water Ride\n",
		"negative price": "rides:\n  - name: X\n    type: Major Ride\n    price: -1\n",
		"negative stock": "rides:\n  - name: X\n    type: Family Ride\n    available_tickets: -5\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := seed.ParseRides([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRides_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rides.yaml")
	doc := "rides:\n  - name: Bumper Cars\n    type: Family Ride\n    price: 70\n    available_tickets: 30\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rides, err := seed.LoadRides(path)
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, "Bumper Cars", rides[0].Name)

	_, err = seed.LoadRides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	rides, err = seed.LoadRides("")
	require.NoError(t, err)
	assert.Len(t, rides, 6)
}

func TestBootstrap_Idempotent(t *testing.T) {
	pool, err := database.OpenSQLite(filepath.Join(t.TempDir(), "carnival.db"), 2, nil)
	require.NoError(t, err)
	st := sqlitestore.New(pool)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	opts := seed.Options{AdminPassword: "admin123"}
	require.NoError(t, seed.Bootstrap(ctx, st, opts))
	require.NoError(t, seed.Bootstrap(ctx, st, opts))

	rides, err := st.Rides.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, rides)

	users, err := st.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, users)

	admin, err := st.Users.GetByUsername(ctx, seed.AdminUsername)
	require.NoError(t, err)
	assert.Equal(t, seed.AdminEmail, admin.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin123")))
}

func TestBootstrap_Concurrent(t *testing.T) {
	pool, err := database.OpenSQLite(filepath.Join(t.TempDir(), "carnival.db"), 4, nil)
	require.NoError(t, err)
	st := sqlitestore.New(pool)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
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

	rides, err := st.Rides.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, rides)
	users, err := st.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, users)
}
