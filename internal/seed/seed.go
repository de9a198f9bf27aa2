// Package seed holds the default ride catalog and the first-run bootstrap
// that fills an empty store with rides and an admin account.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
)

//go:embed rides.yaml
var defaultRides []byte

// Admin account created when the users table is empty.
const (
	AdminUsername = "admin"
	AdminEmail    = "admin@carnival.com"
	AdminFullName = "Administrator"
)

type catalogFile struct {
	Rides []model.Ride `yaml:"rides"`
}

// DefaultRides returns the built-in catalog.
func DefaultRides() []model.Ride {
	rides, err := ParseRides(defaultRides)
	if err != nil {
		panic(fmt.Sprintf("seed: embedded rides.yaml: %v", err))
	}
	return rides
}

// LoadRides reads a catalog file. An empty path returns the built-in catalog.
func LoadRides(path string) ([]model.Ride, error) {
	if path == "" {
		return DefaultRides(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rides file: %w", err)
	}
	rides, err := ParseRides(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rides, nil
}

// ParseRides decodes and validates a YAML catalog.
func ParseRides(data []byte) ([]model.Ride, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rides: %w", err)
	}
	if len(file.Rides) == 0 {
		return nil, fmt.Errorf("parse rides: catalog is empty")
	}
	for i := range file.Rides {
		r := &file.Rides[i]
		r.Name = strings.TrimSpace(r.Name)
		switch {
		case r.Name == "":
			return nil, fmt.Errorf("ride %d: name is required", i+1)
		case !r.Category.Valid():
			return nil, fmt.Errorf("ride %q: unknown type %q", r.Name, r.Category)
		case r.Price < 0:
			return nil, fmt.Errorf("ride %q: price must not be negative", r.Name)
		case r.AvailableTickets < 0:
			return nil, fmt.Errorf("ride %q: available_tickets must not be negative", r.Name)
		}
	}
	return file.Rides, nil
}

// Options controls Bootstrap.
type Options struct {
	Rides         []model.Ride
	AdminPassword string
	Now           time.Time
	Logger        *slog.Logger
}

// Bootstrap seeds rides into an empty rides table and creates the admin
// account when no users exist. Running it again is a no-op.
func Bootstrap(ctx context.Context, store *repository.Store, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rides := opts.Rides
	if rides == nil {
		rides = DefaultRides()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	inserted, err := store.Rides.Seed(ctx, rides)
	if err != nil {
		return fmt.Errorf("seed rides: %w", err)
	}
	if inserted > 0 {
		logger.Info("seeded ride catalog", "rides", inserted)
	}

	users, err := store.Users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := &model.User{
		Username:     AdminUsername,
		Email:        AdminEmail,
		PasswordHash: string(hash),
		FullName:     AdminFullName,
		CreatedAt:    now.UTC(),
	}
	if err := store.Users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			// Another process bootstrapped first.
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("created admin account", "username", admin.Username)
	return nil
}
