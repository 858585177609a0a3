// Package fleet models the vehicles and drivers a company can assign to bookings,
// and decides which of them can carry a group on a given date.
package fleet

import (
	"fmt"
	"sort"
	"strings"
)

// Vehicle is a unit of seat capacity owned by a company.
type Vehicle struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Number string `json:"number,omitempty"`
	Seats  int    `json:"seats"`
}

// Label renders a short human description like "Toyota HiAce (Van)".
func (v Vehicle) Label() string {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		name = fmt.Sprintf("Vehicle #%d", v.ID)
	}
	if t := strings.TrimSpace(v.Type); t != "" {
		return fmt.Sprintf("%s (%s)", name, t)
	}
	return name
}

// Driver is independently assignable from vehicles.
type Driver struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Option is a computed grouping of vehicles that together seat the group. Never persisted.
type Option struct {
	Vehicles   []Vehicle `json:"vehicles"`
	TotalSeats int       `json:"total_seats"`
}

// VehicleIDs lists the vehicle ids of the option in order.
func (o Option) VehicleIDs() []int64 {
	ids := make([]int64, 0, len(o.Vehicles))
	for _, v := range o.Vehicles {
		ids = append(ids, v.ID)
	}
	return ids
}

// Describe joins vehicle labels with " + ".
func (o Option) Describe() string {
	labels := make([]string, 0, len(o.Vehicles))
	for _, v := range o.Vehicles {
		labels = append(labels, v.Label())
	}
	return strings.Join(labels, " + ")
}

// Pool is what is free to offer for a date.
type Pool struct {
	Vehicles []Vehicle
	Drivers  []Driver
}

// Assignment is one persisted (vehicle, driver) pair of a booking.
type Assignment struct {
	BookingID int64
	VehicleID *int64
	DriverID  *int64
	Seats     int
}

// Conflicts returns the requested vehicle ids that are not free in the pool, sorted and de-duplicated.
func (p Pool) Conflicts(vehicleIDs []int64) []int64 {
	free := make(map[int64]struct{}, len(p.Vehicles))
	for _, v := range p.Vehicles {
		free[v.ID] = struct{}{}
	}
	var out []int64
	seen := make(map[int64]struct{}, len(vehicleIDs))
	for _, id := range vehicleIDs {
		if _, ok := free[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
