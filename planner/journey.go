package planner

import (
	"time"

	"tidbyt.dev/transit/model"
)

// A Leg is either a *Ride or a *Walk.
type Leg interface {
	Start() time.Time
	End() time.Time
	leg()
}

// Continuous occupancy of a single trip.
type Ride struct {
	BoardStop  model.Stop
	AlightStop model.Stop
	RouteID    string
	RouteName  string
	RouteType  model.RouteType
	TripID     string
	Headsign   string
	Departure  time.Time
	Arrival    time.Time

	// Number of hops ridden
	Stops int

	// Realtime adjustments already included in Departure and
	// Arrival.
	DepartureDelay time.Duration
	ArrivalDelay   time.Duration
}

type Walk struct {
	FromStop   model.Stop
	ToStop     model.Stop
	DistanceKm float64
	Duration   time.Duration
	Departure  time.Time
	Arrival    time.Time
}

func (r *Ride) Start() time.Time { return r.Departure }
func (r *Ride) End() time.Time   { return r.Arrival }
func (*Ride) leg()               {}

func (w *Walk) Start() time.Time { return w.Departure }
func (w *Walk) End() time.Time   { return w.Arrival }
func (*Walk) leg()               {}

type Journey struct {
	// Derived from the legs, so identical itineraries get
	// identical IDs.
	ID string

	Legs              []Leg
	Departure         time.Time
	Arrival           time.Time
	Duration          time.Duration
	WalkingDistanceKm float64
	Transfers         int
}

// Reports whether j is at least as good as o on departure (later is
// better), arrival, transfers and walking, and strictly better on at
// least one of them.
func (j *Journey) dominates(o *Journey) bool {
	if j.Departure.Before(o.Departure) ||
		j.Arrival.After(o.Arrival) ||
		j.Transfers > o.Transfers ||
		j.WalkingDistanceKm > o.WalkingDistanceKm {
		return false
	}
	return j.Departure.After(o.Departure) ||
		j.Arrival.Before(o.Arrival) ||
		j.Transfers < o.Transfers ||
		j.WalkingDistanceKm < o.WalkingDistanceKm
}

// Orders by arrival, transfers, walking, latest departure and ID.
func less(a, b *Journey) bool {
	if !a.Arrival.Equal(b.Arrival) {
		return a.Arrival.Before(b.Arrival)
	}
	if a.Transfers != b.Transfers {
		return a.Transfers < b.Transfers
	}
	if a.WalkingDistanceKm != b.WalkingDistanceKm {
		return a.WalkingDistanceKm < b.WalkingDistanceKm
	}
	if !a.Departure.Equal(b.Departure) {
		return a.Departure.After(b.Departure)
	}
	return a.ID < b.ID
}

type Result struct {
	Journeys []Journey

	// Number of labels expanded.
	Expansions int

	// Non-nil if the search stopped early, due to the expansion
	// budget or the context. Wraps model.ErrBudgetExceeded.
	Truncated error
}
