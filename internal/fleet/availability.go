package fleet

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("tourbot.internal.fleet")

// AssignmentStore reads the fleet and the resources already held by bookings.
type AssignmentStore interface {
	ListVehicles(ctx context.Context, companyID int64) ([]Vehicle, error)
	ListDrivers(ctx context.Context, companyID int64) ([]Driver, error)
	// BookedResources returns the vehicle and driver ids held by non-deleted bookings on date.
	// Assignments of excludeBookingID (0 for none) are ignored.
	BookedResources(ctx context.Context, companyID int64, date time.Time, excludeBookingID int64) (vehicleIDs, driverIDs []int64, err error)
}

// Resolver narrows a company's fleet to what is free on a date.
type Resolver struct {
	store AssignmentStore
}

// NewResolver wires a resolver to its store.
func NewResolver(store AssignmentStore) *Resolver {
	if store == nil {
		panic("fleet: assignment store required")
	}
	return &Resolver{store: store}
}

// Available returns the vehicles and drivers not held by another booking on date.
// Resources held by excludeBookingID stay available so a booking being edited keeps its own.
func (r *Resolver) Available(ctx context.Context, companyID int64, date time.Time, excludeBookingID *int64) (Pool, error) {
	ctx, span := tracer.Start(ctx, "fleet.available")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("company_id", companyID),
		attribute.String("travel_date", date.Format("2006-01-02")),
	)

	vehicles, err := r.store.ListVehicles(ctx, companyID)
	if err != nil {
		return Pool{}, fmt.Errorf("fleet: list vehicles: %w", err)
	}
	drivers, err := r.store.ListDrivers(ctx, companyID)
	if err != nil {
		return Pool{}, fmt.Errorf("fleet: list drivers: %w", err)
	}
	bookedVehicles, bookedDrivers, err := r.store.BookedResources(ctx, companyID, date, derefID(excludeBookingID))
	if err != nil {
		return Pool{}, fmt.Errorf("fleet: booked resources: %w", err)
	}

	takenV := toSet(bookedVehicles)
	takenD := toSet(bookedDrivers)

	pool := Pool{
		Vehicles: make([]Vehicle, 0, len(vehicles)),
		Drivers:  make([]Driver, 0, len(drivers)),
	}
	for _, v := range vehicles {
		if _, taken := takenV[v.ID]; !taken {
			pool.Vehicles = append(pool.Vehicles, v)
		}
	}
	for _, d := range drivers {
		if _, taken := takenD[d.ID]; !taken {
			pool.Drivers = append(pool.Drivers, d)
		}
	}
	span.SetAttributes(
		attribute.Int("vehicles_free", len(pool.Vehicles)),
		attribute.Int("drivers_free", len(pool.Drivers)),
	)
	return pool, nil
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
