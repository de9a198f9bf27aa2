// Package sqlitestore implements the repository contracts on SQLite, the
// engine the carnival app has always shipped with for single-host use.
//
// Writers are serialized by BEGIN IMMEDIATE, so the conditional UPDATE in
// Book is both the availability check and the decrement.
package sqlitestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/database"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// DB wraps a connection pool with the Take/Put discipline used by every
// repository in this package.
type DB struct {
	pool *database.SQLitePool
	now  func() time.Time
}

// New returns a Store backed by pool. Closing the Store closes the pool.
func New(pool *database.SQLitePool) *repository.Store {
	db := &DB{pool: pool, now: time.Now}
	return repository.NewStore(
		&RideRepository{db: db},
		&UserRepository{db: db},
		&BookingRepository{db: db},
		&SessionRepository{db: db},
		pool.Close,
	)
}

func (d *DB) with(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)
	return fn(conn)
}

func count(conn *sqlite.Conn, table string) (int, error) {
	var n int
	err := sqlitex.Execute(conn, `SELECT COUNT(*) FROM `+table, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// RideRepository handles persistence for rides.
type RideRepository struct {
	db *DB
}

const rideColumns = `id, name, type, price, available_tickets, schedule, age_limit, height_limit`

func readRide(stmt *sqlite.Stmt) model.Ride {
	return model.Ride{
		ID:               stmt.ColumnInt64(0),
		Name:             stmt.ColumnText(1),
		Category:         model.RideCategory(stmt.ColumnText(2)),
		Price:            stmt.ColumnInt64(3),
		AvailableTickets: stmt.ColumnInt(4),
		Schedule:         stmt.ColumnText(5),
		AgeLimit:         stmt.ColumnText(6),
		HeightLimit:      stmt.ColumnText(7),
	}
}

func getRide(conn *sqlite.Conn, id int64) (*model.Ride, error) {
	var ride *model.Ride
	err := sqlitex.Execute(conn, `SELECT `+rideColumns+` FROM rides WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r := readRide(stmt)
			ride = &r
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get ride: %w", err)
	}
	if ride == nil {
		return nil, repository.ErrNotFound
	}
	return ride, nil
}

// List returns all rides ordered by id.
func (r *RideRepository) List(ctx context.Context) ([]model.Ride, error) {
	var rides []model.Ride
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+rideColumns+` FROM rides ORDER BY id`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rides = append(rides, readRide(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	return rides, nil
}

// Get returns a single ride or repository.ErrNotFound.
func (r *RideRepository) Get(ctx context.Context, id int64) (*model.Ride, error) {
	var ride *model.Ride
	err := r.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		ride, err = getRide(conn, id)
		return err
	})
	return ride, err
}

// Count returns the number of rides.
func (r *RideRepository) Count(ctx context.Context) (n int, err error) {
	err = r.db.with(ctx, func(conn *sqlite.Conn) error {
		n, err = count(conn, "rides")
		return err
	})
	return n, err
}

// Seed inserts rides when the table is empty.
func (r *RideRepository) Seed(ctx context.Context, rides []model.Ride) (int, error) {
	inserted := 0
	err := r.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer endFn(&err)

		existing, err := count(conn, "rides")
		if err != nil || existing > 0 {
			return err
		}
		for _, ride := range rides {
			err = sqlitex.Execute(conn,
				`INSERT INTO rides (name, type, price, available_tickets, schedule, age_limit, height_limit)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					ride.Name, string(ride.Category), ride.Price, ride.AvailableTickets,
					ride.Schedule, ride.AgeLimit, ride.HeightLimit,
				}})
			if err != nil {
				return fmt.Errorf("insert ride %q: %w", ride.Name, err)
			}
		}
		inserted = len(rides)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *DB
}

// Create inserts u and fills in its generated id.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.with(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT INTO users (username, email, password_hash, full_name, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				u.Username, u.Email, u.PasswordHash, u.FullName, formatTime(u.CreatedAt),
			}})
		if err != nil {
			if isUniqueViolation(err) {
				return duplicateUser(conn, u.Username, err)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		u.ID = conn.LastInsertRowID()
		return nil
	})
}

func isUniqueViolation(err error) bool {
	return sqlite.ErrCode(err) == sqlite.ResultConstraintUnique
}

// duplicateUser names the conflict behind a failed user insert. SQLite
// reports a single index, so a taken username is looked up explicitly and
// reported ahead of a taken email.
func duplicateUser(conn *sqlite.Conn, username string, err error) error {
	if !strings.Contains(err.Error(), "users.email") {
		return repository.ErrDuplicateUsername
	}
	taken := false
	lookup := sqlitex.Execute(conn, `SELECT 1 FROM users WHERE username = ?`, &sqlitex.ExecOptions{
		Args: []any{username},
		ResultFunc: func(*sqlite.Stmt) error {
			taken = true
			return nil
		},
	})
	if lookup == nil && taken {
		return repository.ErrDuplicateUsername
	}
	return repository.ErrDuplicateEmail
}

const userColumns = `id, username, email, password_hash, full_name, created_at`

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		user    *model.User
		created string
	)
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+userColumns+` FROM users WHERE `+where, &sqlitex.ExecOptions{
			Args: []any{arg},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = &model.User{
					ID:           stmt.ColumnInt64(0),
					Username:     stmt.ColumnText(1),
					Email:        stmt.ColumnText(2),
					PasswordHash: stmt.ColumnText(3),
					FullName:     stmt.ColumnText(4),
				}
				created = stmt.ColumnText(5)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, repository.ErrNotFound
	}
	if user.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername returns the user with the given username or repository.ErrNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getBy(ctx, "username = ?", username)
}

// GetByID returns the user with the given id or repository.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getBy(ctx, "id = ?", id)
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (n int, err error) {
	err = r.db.with(ctx, func(conn *sqlite.Conn) error {
		n, err = count(conn, "users")
		return err
	})
	return n, err
}

// BookingRepository handles persistence for bookings.
type BookingRepository struct {
	db *DB
}

// Book decrements the ride's counter only if enough tickets remain and
// records the booking, all inside one IMMEDIATE transaction.
func (r *BookingRepository) Book(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	var booking *model.Booking
	err := r.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer endFn(&err)

		err = sqlitex.Execute(conn,
			`UPDATE rides SET available_tickets = available_tickets - ?
			 WHERE id = ? AND available_tickets >= ?`,
			&sqlitex.ExecOptions{Args: []any{req.Quantity, req.RideID, req.Quantity}})
		if err != nil {
			return fmt.Errorf("decrement available_tickets: %w", err)
		}
		if conn.Changes() == 0 {
			if _, err = getRide(conn, req.RideID); err != nil {
				return err
			}
			return repository.ErrInsufficientTickets
		}

		ride, err := getRide(conn, req.RideID)
		if err != nil {
			return err
		}
		booking = model.NewBooking(ride, req, r.db.now())
		err = sqlitex.Execute(conn,
			`INSERT INTO bookings (user_id, name, age, ride_id, ride_name, unit_price, quantity, total_price, booking_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				booking.UserID, booking.RiderName, booking.RiderAge, booking.RideID, booking.RideName,
				booking.UnitPrice, booking.Quantity, booking.TotalPrice, formatTime(booking.BookedAt),
			}})
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		booking.ID = conn.LastInsertRowID()
		booking.BookedAt = booking.BookedAt.UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, user_id, ride_id, name, age, ride_name, unit_price, quantity, total_price, booking_time
			 FROM bookings
			 WHERE user_id = ?
			 ORDER BY booking_time DESC, id DESC`,
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					b := model.Booking{
						ID:         stmt.ColumnInt64(0),
						UserID:     stmt.ColumnInt64(1),
						RideID:     stmt.ColumnInt64(2),
						RiderName:  stmt.ColumnText(3),
						RiderAge:   stmt.ColumnInt(4),
						RideName:   stmt.ColumnText(5),
						UnitPrice:  stmt.ColumnInt64(6),
						Quantity:   stmt.ColumnInt(7),
						TotalPrice: stmt.ColumnInt64(8),
					}
					var err error
					if b.BookedAt, err = parseTime(stmt.ColumnText(9)); err != nil {
						return err
					}
					bookings = append(bookings, b)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// Count returns the number of bookings.
func (r *BookingRepository) Count(ctx context.Context) (n int, err error) {
	err = r.db.with(ctx, func(conn *sqlite.Conn) error {
		n, err = count(conn, "bookings")
		return err
	})
	return n, err
}

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *DB
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.db.with(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				s.ID, s.UserID, formatTime(s.CreatedAt), formatTime(s.ExpiresAt),
			}})
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// Get returns a session or repository.ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var (
		session          *model.Session
		created, expires string
	)
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					session = &model.Session{ID: stmt.ColumnText(0), UserID: stmt.ColumnInt64(1)}
					created, expires = stmt.ColumnText(2), stmt.ColumnText(3)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, repository.ErrNotFound
	}
	if session.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if session.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.with(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM sessions WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}})
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}
