package transit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tidbyt.dev/transit/feed"
	"tidbyt.dev/transit/graph"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/planner"
	"tidbyt.dev/transit/realtime"
	"tidbyt.dev/transit/search"
	"tidbyt.dev/transit/spatial"
	"tidbyt.dev/transit/storage"
)

type BuildOptions struct {
	Graph   graph.Options
	Planner planner.Options

	// Spatial grid cell size. Zero selects spatial.DefaultCellKm.
	CellKm float64
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Graph:   graph.DefaultOptions(),
		Planner: planner.DefaultOptions(),
		CellKm:  spatial.DefaultCellKm,
	}
}

// An immutable, fully indexed static feed. A Snapshot is never
// modified after BuildSnapshot returns, so any number of queries can
// run against it concurrently.
type Snapshot struct {
	Store   *feed.Store
	Spatial *spatial.Index
	Text    *search.Index
	Graph   *graph.Graph
	Planner *planner.Planner

	// Set when the snapshot was loaded from storage.
	Metadata *storage.FeedMetadata

	BuiltAt time.Time
}

type NearbyStop struct {
	Stop       model.Stop
	DistanceKm float64
}

func BuildSnapshot(pf *feed.ParsedFeed, opts BuildOptions) (*Snapshot, error) {
	store, err := feed.NewStore(pf)
	if err != nil {
		return nil, fmt.Errorf("indexing feed: %w", err)
	}

	index := spatial.New(store.Stops(), opts.CellKm)

	g, err := graph.Build(store, index, opts.Graph)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}

	return &Snapshot{
		Store:   store,
		Spatial: index,
		Text:    search.New(store.Stops()),
		Graph:   g,
		Planner: planner.New(g, store.Calendar, store.Location, opts.Planner),
		BuiltAt: time.Now(),
	}, nil
}

// Ranks stops and stations by how well their name, code or
// description matches query. A limit of 0 returns all matches.
func (s *Snapshot) SearchStopsByName(query string, limit int) ([]model.Stop, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", model.ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("negative limit: %w", model.ErrInvalidInput)
	}
	return s.Text.Search(query, limit), nil
}

// Returns stops within radiusKm of lat,lon, closest first. A limit of
// 0 returns all of them.
func (s *Snapshot) FindStopsNearby(lat, lon, radiusKm float64, limit int) ([]NearbyStop, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude %f: %w", lat, model.ErrInvalidInput)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude %f: %w", lon, model.ErrInvalidInput)
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm < 0 {
		return nil, fmt.Errorf("radius %f: %w", radiusKm, model.ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("negative limit: %w", model.ErrInvalidInput)
	}

	neighbors := s.Spatial.FindNearby(lat, lon, radiusKm, limit)
	stops := make([]NearbyStop, 0, len(neighbors))
	for _, n := range neighbors {
		stops = append(stops, NearbyStop{Stop: n.Stop, DistanceKm: n.DistanceKm})
	}
	return stops, nil
}

// Plans journeys between two stops or stations. The overlay may be
// nil, in which case the static schedule applies.
func (s *Snapshot) PlanJourney(
	ctx context.Context,
	origin string,
	destination string,
	departAfter time.Time,
	constraints planner.Constraints,
	overlay *realtime.Overlay,
) (*planner.Result, error) {
	return s.Planner.Plan(ctx, planner.Request{
		Origin:      origin,
		Destination: destination,
		DepartAfter: departAfter,
		Constraints: constraints,
	}, overlay)
}

// Compiles realtime data against this snapshot's graph.
func (s *Snapshot) Overlay(f *realtime.Feed) *realtime.Overlay {
	return realtime.NewOverlay(s.Graph, f)
}

func (s *Snapshot) Stop(id string) (model.Stop, error) {
	stop, ok := s.Store.Stop(id)
	if !ok {
		return model.Stop{}, fmt.Errorf("stop '%s': %w", id, model.ErrNotFound)
	}
	return stop, nil
}

func (s *Snapshot) Trip(id string) (model.Trip, error) {
	trip, ok := s.Store.Trip(id)
	if !ok {
		return model.Trip{}, fmt.Errorf("trip '%s': %w", id, model.ErrNotFound)
	}
	return trip, nil
}

func (s *Snapshot) Route(id string) (model.Route, error) {
	route, ok := s.Store.Route(id)
	if !ok {
		return model.Route{}, fmt.Errorf("route '%s': %w", id, model.ErrNotFound)
	}
	return route, nil
}
