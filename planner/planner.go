package planner

import (
	"context"
	"fmt"
	"math"
	"time"

	"tidbyt.dev/transit/feed"
	"tidbyt.dev/transit/graph"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/realtime"
)

const (
	DefaultPerRouteDepartures = 2
	DefaultMaxBoardings       = 48
	DefaultMaxWait            = 90 * time.Minute
	DefaultRideLookahead      = 3

	DefaultMaxTransfers  = 3
	DefaultMaxWalkKm     = 1.0
	DefaultWalkSpeedKmh  = 5.0
	DefaultResults       = 3
	DefaultMaxExpansions = 50000
	DefaultMaxDuration   = 4 * time.Hour
)

// Tuning knobs for the search. Zero values are replaced by defaults.
type Options struct {
	// Departures boarded per (route, direction) from a single label.
	PerRouteDepartures int

	// Total departures boarded from a single label.
	MaxBoardings int

	// Longest wait considered when boarding. Before the first ride it
	// is counted from the first feasible departure, so the next trip
	// is always found however far off it is.
	MaxWait time.Duration

	// Number of downstream stops labelled per boarding.
	RideLookahead int

	Heuristic Heuristic
}

func DefaultOptions() Options {
	return Options{
		PerRouteDepartures: DefaultPerRouteDepartures,
		MaxBoardings:       DefaultMaxBoardings,
		MaxWait:            DefaultMaxWait,
		RideLookahead:      DefaultRideLookahead,
		Heuristic:          CruiseHeuristic{SpeedKmh: DefaultCruiseSpeedKmh},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PerRouteDepartures <= 0 {
		o.PerRouteDepartures = d.PerRouteDepartures
	}
	if o.MaxBoardings <= 0 {
		o.MaxBoardings = d.MaxBoardings
	}
	if o.MaxWait <= 0 {
		o.MaxWait = d.MaxWait
	}
	if o.RideLookahead <= 0 {
		o.RideLookahead = d.RideLookahead
	}
	if o.Heuristic == nil {
		o.Heuristic = d.Heuristic
	}
	return o
}

// Per query limits. MaxTransfers and MaxWalkKm are taken literally,
// so zero means none. For the remaining fields zero selects the
// default.
type Constraints struct {
	MaxTransfers  int
	MaxWalkKm     float64
	WalkSpeedKmh  float64
	Results       int
	Modes         []model.RouteType
	MaxExpansions int
	MaxDuration   time.Duration
}

func DefaultConstraints() Constraints {
	return Constraints{
		MaxTransfers:  DefaultMaxTransfers,
		MaxWalkKm:     DefaultMaxWalkKm,
		WalkSpeedKmh:  DefaultWalkSpeedKmh,
		Results:       DefaultResults,
		MaxExpansions: DefaultMaxExpansions,
		MaxDuration:   DefaultMaxDuration,
	}
}

func (c Constraints) Validate() error {
	switch {
	case c.MaxTransfers < 0:
		return fmt.Errorf("max transfers %d: %w", c.MaxTransfers, model.ErrInvalidConstraint)
	case c.MaxWalkKm < 0 || math.IsNaN(c.MaxWalkKm):
		return fmt.Errorf("max walk %f km: %w", c.MaxWalkKm, model.ErrInvalidConstraint)
	case c.WalkSpeedKmh < 0 || math.IsNaN(c.WalkSpeedKmh):
		return fmt.Errorf("walk speed %f km/h: %w", c.WalkSpeedKmh, model.ErrInvalidConstraint)
	case c.Results < 0:
		return fmt.Errorf("results %d: %w", c.Results, model.ErrInvalidConstraint)
	case c.MaxExpansions < 0:
		return fmt.Errorf("max expansions %d: %w", c.MaxExpansions, model.ErrInvalidConstraint)
	case c.MaxDuration < 0:
		return fmt.Errorf("max duration %s: %w", c.MaxDuration, model.ErrInvalidConstraint)
	}
	return nil
}

func (c Constraints) withDefaults() Constraints {
	d := DefaultConstraints()
	if c.WalkSpeedKmh == 0 {
		c.WalkSpeedKmh = d.WalkSpeedKmh
	}
	if c.Results == 0 {
		c.Results = d.Results
	}
	if c.MaxExpansions == 0 {
		c.MaxExpansions = d.MaxExpansions
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = d.MaxDuration
	}
	return c
}

type Request struct {
	Origin      string
	Destination string
	DepartAfter time.Time
	Constraints Constraints
}

// Plans journeys over an immutable graph. Safe for concurrent use.
type Planner struct {
	graph    *graph.Graph
	calendar *feed.ServiceCalendar
	location *time.Location
	opts     Options
}

func New(g *graph.Graph, calendar *feed.ServiceCalendar, location *time.Location, opts Options) *Planner {
	if location == nil {
		location = time.UTC
	}
	return &Planner{
		graph:    g,
		calendar: calendar,
		location: location,
		opts:     opts.withDefaults(),
	}
}

func (p *Planner) Graph() *graph.Graph {
	return p.graph
}

// Finds up to Constraints.Results journeys departing no earlier than
// req.DepartAfter. The overlay may be nil. Exhausting the search
// without finding a path is not an error.
func (p *Planner) Plan(ctx context.Context, req Request, overlay *realtime.Overlay) (*Result, error) {
	if err := req.Constraints.Validate(); err != nil {
		return nil, err
	}
	if overlay != nil && overlay.Graph() != p.graph {
		return nil, fmt.Errorf("realtime overlay built for another graph: %w", model.ErrInvalidInput)
	}

	origins, err := p.resolve(req.Origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	destinations, err := p.resolve(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	s := newSearch(p, req, overlay, origins, destinations)
	for _, o := range origins {
		if s.dest[o] {
			return &Result{Journeys: []Journey{}}, nil
		}
	}

	return s.run(ctx), nil
}

// Stations resolve to their child stops, if they have any.
func (p *Planner) resolve(id string) ([]int32, error) {
	i, ok := p.graph.StopIndex(id)
	if !ok {
		return nil, fmt.Errorf("stop '%s': %w", id, model.ErrNotFound)
	}

	if p.graph.Stop(i).LocationType != model.LocationTypeStation {
		return []int32{i}, nil
	}

	stops := []int32{}
	for _, child := range p.graph.Store().Children(id) {
		if ci, ok := p.graph.StopIndex(child); ok {
			stops = append(stops, ci)
		}
	}
	if len(stops) == 0 {
		stops = append(stops, i)
	}
	return stops, nil
}
