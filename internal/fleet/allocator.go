package fleet

import (
	"errors"
	"sort"
)

const (
	// MaxSeatWaste bounds how many empty seats a multi-vehicle option may carry.
	MaxSeatWaste = 2
	// MaxOptions caps how many options are presented to the guest.
	MaxOptions = 5
)

// ErrInvalidSeatCount is returned when the required seat count is not positive.
var ErrInvalidSeatCount = errors.New("fleet: required seats must be positive")

// Allocate ranks the ways the given vehicles can seat requiredSeats passengers.
// The tightest single vehicle anchors the result; pairs are offered only when they
// are no larger than that anchor and waste at most MaxSeatWaste seats.
func Allocate(vehicles []Vehicle, requiredSeats int) ([]Option, error) {
	if requiredSeats <= 0 {
		return nil, ErrInvalidSeatCount
	}

	candidates := make([]Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v.Seats > 0 {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return []Option{}, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Seats != candidates[j].Seats {
			return candidates[i].Seats < candidates[j].Seats
		}
		return candidates[i].ID < candidates[j].ID
	})

	var options []Option
	var bestSingle *Vehicle
	for i := range candidates {
		if candidates[i].Seats >= requiredSeats {
			bestSingle = &candidates[i]
			break
		}
	}
	if bestSingle != nil {
		options = append(options, Option{Vehicles: []Vehicle{*bestSingle}, TotalSeats: bestSingle.Seats})
	}

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			seats := candidates[i].Seats + candidates[j].Seats
			if seats < requiredSeats {
				continue
			}
			if bestSingle != nil && seats > bestSingle.Seats {
				continue
			}
			if seats-requiredSeats > MaxSeatWaste {
				continue
			}
			options = append(options, Option{
				Vehicles:   []Vehicle{candidates[i], candidates[j]},
				TotalSeats: seats,
			})
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.TotalSeats != b.TotalSeats {
			return a.TotalSeats < b.TotalSeats
		}
		if len(a.Vehicles) != len(b.Vehicles) {
			return len(a.Vehicles) < len(b.Vehicles)
		}
		return lessIDs(a.VehicleIDs(), b.VehicleIDs())
	})

	if len(options) > MaxOptions {
		options = options[:MaxOptions]
	}
	if options == nil {
		options = []Option{}
	}
	return options, nil
}

func lessIDs(a, b []int64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
