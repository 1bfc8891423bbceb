package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the PostgreSQL layout used by the pg repositories.
const Schema = `
CREATE TABLE IF NOT EXISTS trains (
	train_id     BIGSERIAL PRIMARY KEY,
	train_name   TEXT NOT NULL,
	train_number TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS routes (
	route_id            BIGSERIAL PRIMARY KEY,
	train_id            BIGINT NOT NULL REFERENCES trains(train_id),
	source_station      TEXT NOT NULL,
	destination_station TEXT NOT NULL,
	departure_time      TIME NOT NULL,
	arrival_time        TIME NOT NULL,
	price_cents         BIGINT NOT NULL CHECK (price_cents >= 0)
);

CREATE TABLE IF NOT EXISTS users (
	user_id  BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email    TEXT NOT NULL,
	role     TEXT NOT NULL DEFAULT 'Regular'
);

CREATE TABLE IF NOT EXISTS seats (
	seat_id      BIGSERIAL PRIMARY KEY,
	train_id     BIGINT NOT NULL,
	route_id     BIGINT NOT NULL REFERENCES routes(route_id),
	compartment  TEXT NOT NULL,
	class_type   TEXT NOT NULL,
	seat_number  TEXT NOT NULL,
	berth_type   TEXT NOT NULL,
	is_available BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (train_id, route_id, seat_number)
);

CREATE TABLE IF NOT EXISTS bookings (
	booking_id     BIGSERIAL PRIMARY KEY,
	pnr            TEXT NOT NULL UNIQUE,
	user_id        BIGINT NOT NULL,
	seat_id        BIGINT REFERENCES seats(seat_id),
	train_id       BIGINT NOT NULL,
	route_id       BIGINT NOT NULL,
	passenger_name TEXT NOT NULL,
	passenger_age  INT NOT NULL CHECK (passenger_age BETWEEN 1 AND 120),
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS bookings_confirmed_seat_uq
	ON bookings (seat_id) WHERE status = 'Confirmed';
CREATE INDEX IF NOT EXISTS bookings_user_idx ON bookings (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS payments (
	payment_id   BIGSERIAL PRIMARY KEY,
	booking_id   BIGINT NOT NULL UNIQUE REFERENCES bookings(booking_id),
	amount_cents BIGINT NOT NULL,
	status       TEXT NOT NULL,
	provider_ref TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS queue_entries (
	entry_id     BIGSERIAL PRIMARY KEY,
	kind         TEXT NOT NULL,
	booking_id   BIGINT NOT NULL REFERENCES bookings(booking_id),
	user_id      BIGINT NOT NULL,
	train_id     BIGINT NOT NULL,
	route_id     BIGINT NOT NULL,
	position     INT NOT NULL,
	status       TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS queue_entries_scope_idx
	ON queue_entries (train_id, route_id, kind, status, position);
`

func ApplySchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
