// Package mongostore implements the repository contracts on MongoDB.
//
// Ride availability is guarded by a conditional FindOneAndUpdate: the
// filter only matches while available_tickets >= quantity, so the check and
// the decrement happen in one single-document atomic operation. The booking
// insert that follows is compensated if it fails.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
)

const (
	ridesCollection    = "rides"
	usersCollection    = "users"
	bookingsCollection = "bookings"
	sessionsCollection = "sessions"
	countersCollection = "counters"

	emailIndex = "users_email_unique"
	seedMarker = "rides_seeded"
)

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// New ensures indexes on db and returns a Store backed by it. Closing the
// Store disconnects client.
func New(ctx context.Context, client *mongo.Client, dbName string, logger *slog.Logger) (*repository.Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db := client.Database(dbName)
	if err := ensureIndexes(ctx, db); err != nil {
		return nil, err
	}
	logger.Info("connected to mongo", "database", dbName)

	ids := &sequences{col: db.Collection(countersCollection)}
	rides := db.Collection(ridesCollection)
	return repository.NewStore(
		&RideRepository{col: rides, ids: ids},
		&UserRepository{col: db.Collection(usersCollection), ids: ids},
		&BookingRepository{
			col:    db.Collection(bookingsCollection),
			rides:  rides,
			ids:    ids,
			now:    time.Now,
			logger: logger,
		},
		&SessionRepository{col: db.Collection(sessionsCollection)},
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		},
	), nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_username_unique"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	_, err = db.Collection(bookingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "booking_time", Value: -1}},
		Options: options.Index().SetName("bookings_user_time"),
	})
	if err != nil {
		return fmt.Errorf("bookings indexes: %w", err)
	}
	return nil
}

// sequences hands out integer ids so documents keep the same id shape as
// the SQL backends.
type sequences struct {
	col *mongo.Collection
}

func (s *sequences) next(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return doc.Seq, nil
}

type rideDoc struct {
	ID               int64  `bson:"_id"`
	Name             string `bson:"name"`
	Type             string `bson:"type"`
	Price            int64  `bson:"price"`
	AvailableTickets int    `bson:"available_tickets"`
	Schedule         string `bson:"schedule"`
	AgeLimit         string `bson:"age_limit"`
	HeightLimit      string `bson:"height_limit"`
}

func (d rideDoc) model() model.Ride {
	return model.Ride{
		ID:               d.ID,
		Name:             d.Name,
		Category:         model.RideCategory(d.Type),
		Price:            d.Price,
		AvailableTickets: d.AvailableTickets,
		Schedule:         d.Schedule,
		AgeLimit:         d.AgeLimit,
		HeightLimit:      d.HeightLimit,
	}
}

// RideRepository handles persistence for rides.
type RideRepository struct {
	col *mongo.Collection
	ids *sequences
}

// List returns all rides ordered by id.
func (r *RideRepository) List(ctx context.Context) ([]model.Ride, error) {
	cur, err := r.col.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer cur.Close(ctx)

	var rides []model.Ride
	for cur.Next(ctx) {
		var d rideDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode ride: %w", err)
		}
		rides = append(rides, d.model())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list rides cursor: %w", err)
	}
	return rides, nil
}

// Get returns a single ride or repository.ErrNotFound.
func (r *RideRepository) Get(ctx context.Context, id int64) (*model.Ride, error) {
	var d rideDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get ride: %w", err)
	}
	ride := d.model()
	return &ride, nil
}

// Count returns the number of rides.
func (r *RideRepository) Count(ctx context.Context) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count rides: %w", err)
	}
	return int(n), nil
}

// Seed inserts rides when the collection is empty. Only the caller that
// creates the seed marker in counters inserts, so concurrent starts on an
// empty database seed once.
func (r *RideRepository) Seed(ctx context.Context, rides []model.Ride) (int, error) {
	existing, err := r.Count(ctx)
	if err != nil || existing > 0 || len(rides) == 0 {
		return 0, err
	}
	claimed, err := r.claimSeed(ctx)
	if err != nil || !claimed {
		return 0, err
	}
	n, err := r.insert(ctx, rides)
	if err != nil {
		// Let a later start retry.
		_, _ = r.ids.col.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": seedMarker})
		return 0, err
	}
	return n, nil
}

func (r *RideRepository) claimSeed(ctx context.Context) (bool, error) {
	res, err := r.ids.col.UpdateOne(ctx,
		bson.M{"_id": seedMarker},
		bson.M{"$setOnInsert": bson.M{"at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim ride seed: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

func (r *RideRepository) insert(ctx context.Context, rides []model.Ride) (int, error) {
	docs := make([]any, 0, len(rides))
	for _, ride := range rides {
		id, err := r.ids.next(ctx, ridesCollection)
		if err != nil {
			return 0, err
		}
		docs = append(docs, rideDoc{
			ID:               id,
			Name:             ride.Name,
			Type:             string(ride.Category),
			Price:            ride.Price,
			AvailableTickets: ride.AvailableTickets,
			Schedule:         ride.Schedule,
			AgeLimit:         ride.AgeLimit,
			HeightLimit:      ride.HeightLimit,
		})
	}
	if _, err := r.col.InsertMany(ctx, docs); err != nil {
		return 0, fmt.Errorf("insert rides: %w", err)
	}
	return len(docs), nil
}

type userDoc struct {
	ID           int64     `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	FullName     string    `bson:"full_name"`
	CreatedAt    time.Time `bson:"created_at"`
}

// UserRepository handles persistence for users.
type UserRepository struct {
	col *mongo.Collection
	ids *sequences
}

// Create inserts u and fills in its generated id.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	id, err := r.ids.next(ctx, usersCollection)
	if err != nil {
		return err
	}
	_, err = r.col.InsertOne(ctx, userDoc{
		ID:           id,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), emailIndex) {
				// A taken username is reported ahead of a taken email.
				taken, cerr := r.col.CountDocuments(ctx, bson.M{"username": u.Username}, options.Count().SetLimit(1))
				if cerr == nil && taken > 0 {
					return repository.ErrDuplicateUsername
				}
				return repository.ErrDuplicateEmail
			}
			return repository.ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var d userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &model.User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		FullName:     d.FullName,
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

// GetByUsername returns the user with the given username or repository.ErrNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

// GetByID returns the user with the given id or repository.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

type bookingDoc struct {
	ID          int64     `bson:"_id"`
	UserID      int64     `bson:"user_id"`
	RideID      int64     `bson:"ride_id"`
	Name        string    `bson:"name"`
	Age         int       `bson:"age"`
	RideName    string    `bson:"ride_name"`
	UnitPrice   int64     `bson:"unit_price"`
	Quantity    int       `bson:"quantity"`
	TotalPrice  int64     `bson:"total_price"`
	BookingTime time.Time `bson:"booking_time"`
}

// BookingRepository handles persistence for bookings.
type BookingRepository struct {
	col    *mongo.Collection
	rides  *mongo.Collection
	ids    *sequences
	now    func() time.Time
	logger *slog.Logger
}

// Book reserves the tickets on the ride document, then records the booking.
// If the booking cannot be recorded the reservation is handed back.
func (r *BookingRepository) Book(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	var d rideDoc
	err := r.rides.FindOneAndUpdate(ctx,
		bson.M{"_id": req.RideID, "available_tickets": bson.M{"$gte": req.Quantity}},
		bson.M{"$inc": bson.M{"available_tickets": -req.Quantity}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("reserve tickets: %w", err)
		}
		n, err := r.rides.CountDocuments(ctx, bson.M{"_id": req.RideID})
		if err != nil {
			return nil, fmt.Errorf("post-check ride: %w", err)
		}
		if n == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, repository.ErrInsufficientTickets
	}

	ride := d.model()
	// BSON dates carry millisecond precision.
	booking := model.NewBooking(&ride, req, r.now().UTC().Truncate(time.Millisecond))
	booking.ID, err = r.ids.next(ctx, bookingsCollection)
	if err == nil {
		_, err = r.col.InsertOne(ctx, bookingDoc{
			ID:          booking.ID,
			UserID:      booking.UserID,
			RideID:      booking.RideID,
			Name:        booking.RiderName,
			Age:         booking.RiderAge,
			RideName:    booking.RideName,
			UnitPrice:   booking.UnitPrice,
			Quantity:    booking.Quantity,
			TotalPrice:  booking.TotalPrice,
			BookingTime: booking.BookedAt,
		})
	}
	if err != nil {
		r.release(ctx, req)
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return booking, nil
}

func (r *BookingRepository) release(ctx context.Context, req model.BookingRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := r.rides.UpdateOne(ctx,
		bson.M{"_id": req.RideID},
		bson.M{"$inc": bson.M{"available_tickets": req.Quantity}},
	)
	if err != nil {
		r.logger.Error("failed to release reserved tickets",
			"ride_id", req.RideID, "quantity", req.Quantity, "error", err)
	}
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "booking_time", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer cur.Close(ctx)

	var bookings []model.Booking
	for cur.Next(ctx) {
		var d bookingDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode booking: %w", err)
		}
		bookings = append(bookings, model.Booking{
			ID:         d.ID,
			UserID:     d.UserID,
			RideID:     d.RideID,
			RiderName:  d.Name,
			RiderAge:   d.Age,
			RideName:   d.RideName,
			UnitPrice:  d.UnitPrice,
			Quantity:   d.Quantity,
			TotalPrice: d.TotalPrice,
			BookedAt:   d.BookingTime.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list bookings cursor: %w", err)
	}
	return bookings, nil
}

// Count returns the number of bookings.
func (r *BookingRepository) Count(ctx context.Context) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return int(n), nil
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	col *mongo.Collection
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.col.InsertOne(ctx, sessionDoc{
		ID:        s.ID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns a session or repository.ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var d sessionDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &model.Session{
		ID:        d.ID,
		UserID:    d.UserID,
		CreatedAt: d.CreatedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
	}, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
