package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx so the store can run inside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads vehicles, drivers and booking assignments.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a store backed by the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("fleet: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

// NewPostgresStoreWithQuerier binds the store to an arbitrary querier, typically a transaction.
func NewPostgresStoreWithQuerier(q Querier) *PostgresStore {
	if q == nil {
		panic("fleet: querier required")
	}
	return &PostgresStore{db: q}
}

func (s *PostgresStore) ListVehicles(ctx context.Context, companyID int64) ([]Vehicle, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(vehicle_type, ''), COALESCE(vehicle_number, ''), seats
		FROM vehicles
		WHERE company_id = $1 AND is_active AND NOT is_deleted
		ORDER BY seats, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("fleet: query vehicles: %w", err)
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.Type, &v.Number, &v.Seats); err != nil {
			return nil, fmt.Errorf("fleet: scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fleet: iterate vehicles: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListDrivers(ctx context.Context, companyID int64) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(country_code, ''), COALESCE(phone_number, '')
		FROM drivers
		WHERE company_id = $1 AND is_active AND NOT is_deleted
		ORDER BY id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("fleet: query drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.CountryCode, &d.Phone); err != nil {
			return nil, fmt.Errorf("fleet: scan driver: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fleet: iterate drivers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) BookedResources(ctx context.Context, companyID int64, date time.Time, excludeBookingID int64) ([]int64, []int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT COALESCE(ba.vehicle_id, 0), COALESCE(ba.driver_id, 0)
		FROM booking_assignments ba
		JOIN bookings b ON b.id = ba.booking_id
		WHERE b.company_id = $1
		  AND b.travel_date = $2::date
		  AND NOT b.is_deleted
		  AND b.id <> $3
	`, companyID, date.Format("2006-01-02"), excludeBookingID)
	if err != nil {
		return nil, nil, fmt.Errorf("fleet: query assignments: %w", err)
	}
	defer rows.Close()

	var vehicles, drivers []int64
	for rows.Next() {
		var vehicleID, driverID int64
		if err := rows.Scan(&vehicleID, &driverID); err != nil {
			return nil, nil, fmt.Errorf("fleet: scan assignment: %w", err)
		}
		if vehicleID > 0 {
			vehicles = append(vehicles, vehicleID)
		}
		if driverID > 0 {
			drivers = append(drivers, driverID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("fleet: iterate assignments: %w", err)
	}
	return vehicles, drivers, nil
}
