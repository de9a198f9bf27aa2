package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
)

// NewPostgresStore returns a Store backed by pool. Closing the Store closes
// the pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return NewStore(
		NewRideRepository(pool),
		NewUserRepository(pool),
		NewBookingRepository(pool),
		NewSessionRepository(pool),
		func() error { pool.Close(); return nil },
	)
}

// RideRepository handles persistence for rides.
type RideRepository struct {
	db *pgxpool.Pool
}

// NewRideRepository constructs a RideRepository.
func NewRideRepository(db *pgxpool.Pool) *RideRepository {
	return &RideRepository{db: db}
}

const rideColumns = `id, name, type, price, available_tickets, schedule, age_limit, height_limit`

func scanRide(row pgx.Row) (*model.Ride, error) {
	var r model.Ride
	if err := row.Scan(&r.ID, &r.Name, &r.Category, &r.Price, &r.AvailableTickets,
		&r.Schedule, &r.AgeLimit, &r.HeightLimit); err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns all rides ordered by id.
func (r *RideRepository) List(ctx context.Context) ([]model.Ride, error) {
	rows, err := r.db.Query(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	var rides []model.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, *ride)
	}
	return rides, rows.Err()
}

// Get returns a single ride or ErrNotFound.
func (r *RideRepository) Get(ctx context.Context, id int64) (*model.Ride, error) {
	ride, err := scanRide(r.db.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return ride, nil
}

// Count returns the number of rides.
func (r *RideRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rides`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rides: %w", err)
	}
	return n, nil
}

// Seed inserts rides when the table is empty. The table lock keeps two
// servers starting at once from seeding twice.
func (r *RideRepository) Seed(ctx context.Context, rides []model.Ride) (n int, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `LOCK TABLE rides IN EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("lock rides: %w", err)
	}
	var existing int
	if err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM rides`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("count rides: %w", err)
	}
	if existing > 0 {
		return 0, tx.Commit(ctx)
	}

	for _, ride := range rides {
		_, err = tx.Exec(ctx,
			`INSERT INTO rides (name, type, price, available_tickets, schedule, age_limit, height_limit)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ride.Name, string(ride.Category), ride.Price, ride.AvailableTickets,
			ride.Schedule, ride.AgeLimit, ride.HeightLimit,
		)
		if err != nil {
			return 0, fmt.Errorf("insert ride %q: %w", ride.Name, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(rides), nil
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u and fills in its generated id. A unique violation is
// reported as ErrDuplicateUsername or ErrDuplicateEmail; when both are
// taken the username wins.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, full_name, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "users_email_key" {
				// A taken username is reported ahead of a taken email.
				var taken bool
				lookup := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, u.Username).Scan(&taken)
				if lookup == nil && taken {
					return ErrDuplicateUsername
				}
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, password_hash, full_name, created_at`

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetByUsername returns the user with the given username or ErrNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getBy(ctx, "username = $1", username)
}

// GetByID returns the user with the given id or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getBy(ctx, "id = $1", id)
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// BookingRepository handles persistence for bookings.
type BookingRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db, now: time.Now}
}

// Book performs a concurrency-safe booking inside a single transaction.
//
// A naive read-then-write lets two requests both read 60 remaining tickets,
// both pass a "40 <= 60" check, and both decrement, leaving -20. Here the
// ride row is read with SELECT ... FOR UPDATE, which holds a row-level lock
// until COMMIT or ROLLBACK, so bookings for the same ride run one at a time
// while bookings for different rides proceed in parallel.
func (r *BookingRepository) Book(ctx context.Context, req model.BookingRequest) (booking *model.Booking, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ride, err := scanRide(tx.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, req.RideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock ride row: %w", err)
	}

	if req.Quantity > ride.AvailableTickets {
		return nil, ErrInsufficientTickets
	}

	_, err = tx.Exec(ctx,
		`UPDATE rides SET available_tickets = available_tickets - $2 WHERE id = $1`,
		ride.ID, req.Quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement available_tickets: %w", err)
	}

	booking = model.NewBooking(ride, req, r.now().UTC())
	err = tx.QueryRow(ctx,
		`INSERT INTO bookings (user_id, name, age, ride_id, ride_name, unit_price, quantity, total_price, booking_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		booking.UserID, booking.RiderName, booking.RiderAge, booking.RideID, booking.RideName,
		booking.UnitPrice, booking.Quantity, booking.TotalPrice, booking.BookedAt,
	).Scan(&booking.ID)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return booking, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, ride_id, name, age, ride_name, unit_price, quantity, total_price, booking_time
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY booking_time DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.RideID, &b.RiderName, &b.RiderAge, &b.RideName,
			&b.UnitPrice, &b.Quantity, &b.TotalPrice, &b.BookedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// Count returns the number of bookings.
func (r *BookingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return n, nil
}

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns a session or ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
