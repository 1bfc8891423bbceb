package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
)

type PGCatalogRepository struct {
	db DB
}

func NewCatalogRepository(db DB) *PGCatalogRepository {
	return &PGCatalogRepository{db: db}
}

func (r *PGCatalogRepository) GetTrain(ctx context.Context, id int64) (*domain.Train, error) {
	var t domain.Train
	err := r.db.QueryRow(ctx, `SELECT train_id, train_name, train_number FROM trains WHERE train_id=$1`, id).
		Scan(&t.ID, &t.Name, &t.Number)
	if err != nil {
		return nil, classify(err)
	}
	return &t, nil
}

func (r *PGCatalogRepository) GetRoute(ctx context.Context, id int64) (*domain.Route, error) {
	var route domain.Route
	var departure, arrival pgtype.Time
	err := r.db.QueryRow(ctx, `SELECT route_id, train_id, source_station, destination_station, departure_time, arrival_time, price_cents
		FROM routes WHERE route_id=$1`, id).
		Scan(&route.ID, &route.TrainID, &route.SourceStation, &route.DestinationStation, &departure, &arrival, &route.PriceCents)
	if err != nil {
		return nil, classify(err)
	}
	route.DepartureTime = formatClock(departure)
	route.ArrivalTime = formatClock(arrival)
	return &route, nil
}

// SearchRoutes matches stations case-insensitively by substring and counts
// the seats still available on each hit.
func (r *PGCatalogRepository) SearchRoutes(ctx context.Context, source, destination string) ([]domain.RouteSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.train_id, t.train_name, t.train_number,
		       r.route_id, r.source_station, r.destination_station, r.departure_time, r.arrival_time, r.price_cents,
		       (SELECT COUNT(*) FROM seats s WHERE s.train_id = r.train_id AND s.route_id = r.route_id AND s.is_available)
		FROM trains t
		JOIN routes r ON t.train_id = r.train_id
		WHERE r.source_station ILIKE '%' || $1 || '%'
		  AND r.destination_station ILIKE '%' || $2 || '%'
		ORDER BY t.train_name, r.route_id`, source, destination)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	results := make([]domain.RouteSummary, 0)
	for rows.Next() {
		var s domain.RouteSummary
		var departure, arrival pgtype.Time
		if err := rows.Scan(&s.Train.ID, &s.Train.Name, &s.Train.Number,
			&s.Route.ID, &s.Route.SourceStation, &s.Route.DestinationStation, &departure, &arrival, &s.Route.PriceCents,
			&s.AvailableSeats); err != nil {
			return nil, classify(err)
		}
		s.Route.TrainID = s.Train.ID
		s.Route.DepartureTime = formatClock(departure)
		s.Route.ArrivalTime = formatClock(arrival)
		results = append(results, s)
	}
	return results, classify(rows.Err())
}

// CreateTrain and CreateRoute are used by the seeding tool only.
func (r *PGCatalogRepository) CreateTrain(ctx context.Context, t *domain.Train) error {
	return classify(r.db.QueryRow(ctx, `INSERT INTO trains (train_name, train_number) VALUES ($1, $2)
		ON CONFLICT (train_number) DO UPDATE SET train_name = EXCLUDED.train_name
		RETURNING train_id`, t.Name, t.Number).Scan(&t.ID))
}

func (r *PGCatalogRepository) CreateRoute(ctx context.Context, route *domain.Route) error {
	return classify(r.db.QueryRow(ctx, `INSERT INTO routes (train_id, source_station, destination_station, departure_time, arrival_time, price_cents)
		VALUES ($1, $2, $3, $4::text::time, $5::text::time, $6)
		RETURNING route_id`,
		route.TrainID, route.SourceStation, route.DestinationStation, route.DepartureTime, route.ArrivalTime, route.PriceCents).
		Scan(&route.ID))
}

type PGUserDirectory struct {
	db DB
}

func NewUserDirectory(db DB) *PGUserDirectory {
	return &PGUserDirectory{db: db}
}

func (d *PGUserDirectory) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := d.db.QueryRow(ctx, `SELECT user_id, username, email, role FROM users WHERE user_id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Role)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (d *PGUserDirectory) CreateUser(ctx context.Context, u *domain.User) error {
	return classify(d.db.QueryRow(ctx, `INSERT INTO users (username, email, role) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role
		RETURNING user_id`, u.Username, u.Email, u.Role).Scan(&u.ID))
}

// formatClock renders a TIME column as "HH:MM".
func formatClock(t pgtype.Time) string {
	if !t.Valid {
		return ""
	}
	minutes := t.Microseconds / 60_000_000
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

var (
	_ CatalogRepository = (*PGCatalogRepository)(nil)
	_ UserDirectory     = (*PGUserDirectory)(nil)
)
