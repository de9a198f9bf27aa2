package database

// PostgresSchema creates the users, rides, bookings and sessions tables.
// The available_tickets check keeps the inventory invariant even if a
// caller bypasses the repository.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rides (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	type              TEXT NOT NULL,
	price             BIGINT NOT NULL,
	available_tickets INTEGER NOT NULL CHECK (available_tickets >= 0),
	schedule          TEXT NOT NULL,
	age_limit         TEXT NOT NULL,
	height_limit      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bookings (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users (id),
	name         TEXT NOT NULL,
	age          INTEGER NOT NULL,
	ride_id      BIGINT NOT NULL REFERENCES rides (id),
	ride_name    TEXT NOT NULL,
	unit_price   BIGINT NOT NULL,
	quantity     INTEGER NOT NULL CHECK (quantity > 0),
	total_price  BIGINT NOT NULL,
	booking_time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS bookings_user_time ON bookings (user_id, booking_time DESC);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users (id),
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// SQLiteSchema is the SQLite flavour of PostgresSchema. Timestamps are
// stored as RFC 3339 text in UTC.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rides (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	type              TEXT NOT NULL,
	price             INTEGER NOT NULL,
	available_tickets INTEGER NOT NULL CHECK (available_tickets >= 0),
	schedule          TEXT NOT NULL,
	age_limit         TEXT NOT NULL,
	height_limit      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bookings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL REFERENCES users (id),
	name         TEXT NOT NULL,
	age          INTEGER NOT NULL,
	ride_id      INTEGER NOT NULL REFERENCES rides (id),
	ride_name    TEXT NOT NULL,
	unit_price   INTEGER NOT NULL,
	quantity     INTEGER NOT NULL CHECK (quantity > 0),
	total_price  INTEGER NOT NULL,
	booking_time TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS bookings_user_time ON bookings (user_id, booking_time DESC);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users (id),
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`
