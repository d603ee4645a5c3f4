package graph

import (
	"fmt"
	"sort"

	"tidbyt.dev/transit/feed"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/spatial"
)

const (
	DefaultWalkRadiusKm           = 0.5
	DefaultMaxNeighbors           = 16
	DefaultTransferSeconds  int32 = 180
	NoChange                int32 = -1
)

type Options struct {
	// Stops within this distance are connected by footpaths.
	WalkRadiusKm float64

	// Max number of proximity footpaths leaving a single stop.
	MaxNeighbors int

	// Used for explicit transfers lacking min_transfer_time.
	DefaultTransferSeconds int32
}

func DefaultOptions() Options {
	return Options{
		WalkRadiusKm:           DefaultWalkRadiusKm,
		MaxNeighbors:           DefaultMaxNeighbors,
		DefaultTransferSeconds: DefaultTransferSeconds,
	}
}

// One hop of a trip, between two consecutive stop times. Times are
// seconds since service day midnight, and may exceed 24h.
type Ride struct {
	From      int32
	To        int32
	Trip      int32
	Hop       int32
	Departure int32
	Arrival   int32
}

// A walking connection. The walking time is computed at query time
// as max(MinSeconds, DistanceKm / speed).
type Footpath struct {
	From       int32
	To         int32
	DistanceKm float64
	MinSeconds int32
	Explicit   bool
}

// A trip with its stop times flattened into parallel slices, one
// entry per stop time.
type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID int8
	RouteType   model.RouteType

	Stops      []int32
	Sequences  []uint32
	Arrivals   []int32
	Departures []int32
}

// Connection graph over interned stops. Immutable once built.
type Graph struct {
	store *feed.Store

	stopIdx map[string]int32
	stops   []model.Stop

	trips   []Trip
	tripIdx map[string]int32

	departures [][]Ride
	footpaths  [][]Footpath
	between    map[[2]int32][]Ride
	change     []int32

	maxTime int32
}

func seconds(st *model.StopTime) (int32, int32) {
	return int32(st.ArrivalTime().Seconds()), int32(st.DepartureTime().Seconds())
}

// Derives ride edges from every trip's stop times, and footpaths from
// explicit transfers and stop proximity.
func Build(store *feed.Store, index *spatial.Index, opts Options) (*Graph, error) {
	if opts.WalkRadiusKm < 0 || opts.MaxNeighbors < 0 || opts.DefaultTransferSeconds < 0 {
		return nil, fmt.Errorf("negative graph option: %w", model.ErrInvalidInput)
	}

	g := &Graph{
		store:   store,
		stopIdx: map[string]int32{},
		stops:   store.Stops(),
		tripIdx: map[string]int32{},
		between: map[[2]int32][]Ride{},
	}

	for i, stop := range g.stops {
		g.stopIdx[stop.ID] = int32(i)
	}
	g.departures = make([][]Ride, len(g.stops))
	g.footpaths = make([][]Footpath, len(g.stops))
	g.change = make([]int32, len(g.stops))

	for _, trip := range store.Trips() {
		sts := store.StopTimes(trip.ID)
		if len(sts) < 2 {
			continue
		}
		route, _ := store.Route(trip.RouteID)

		t := Trip{
			ID:          trip.ID,
			RouteID:     trip.RouteID,
			ServiceID:   trip.ServiceID,
			Headsign:    trip.Headsign,
			DirectionID: trip.DirectionID,
			RouteType:   route.Type,
			Stops:       make([]int32, len(sts)),
			Sequences:   make([]uint32, len(sts)),
			Arrivals:    make([]int32, len(sts)),
			Departures:  make([]int32, len(sts)),
		}
		for i := range sts {
			t.Stops[i] = g.stopIdx[sts[i].StopID]
			t.Sequences[i] = sts[i].StopSequence
			t.Arrivals[i], t.Departures[i] = seconds(&sts[i])
			g.maxTime = max(g.maxTime, t.Arrivals[i], t.Departures[i])
		}

		ti := int32(len(g.trips))
		g.trips = append(g.trips, t)
		g.tripIdx[t.ID] = ti

		for hop := 0; hop < len(sts)-1; hop++ {
			r := Ride{
				From:      t.Stops[hop],
				To:        t.Stops[hop+1],
				Trip:      ti,
				Hop:       int32(hop),
				Departure: t.Departures[hop],
				Arrival:   t.Arrivals[hop+1],
			}
			g.departures[r.From] = append(g.departures[r.From], r)
			key := [2]int32{r.From, r.To}
			g.between[key] = append(g.between[key], r)
		}
	}

	for _, deps := range g.departures {
		sort.Slice(deps, func(i, j int) bool {
			if deps[i].Departure != deps[j].Departure {
				return deps[i].Departure < deps[j].Departure
			}
			return g.trips[deps[i].Trip].ID < g.trips[deps[j].Trip].ID
		})
	}

	g.buildFootpaths(index, opts)

	return g, nil
}

func (g *Graph) buildFootpaths(index *spatial.Index, opts Options) {
	type pair [2]int32

	forbidden := map[pair]bool{}
	explicit := map[pair]Footpath{}
	order := []pair{}
	changed := map[int32]bool{}

	// Transfers between stations apply to their platforms, where
	// rides actually depart and arrive. Platform level records
	// are applied first, and so take precedence.
	transfers := g.store.Transfers()
	for _, stationLevel := range []bool{false, true} {
		for _, t := range transfers {
			from, to := g.stopIdx[t.FromStopID], g.stopIdx[t.ToStopID]
			if (g.isStation(from) || g.isStation(to)) != stationLevel {
				continue
			}

			if from == to {
				for _, p := range g.platforms(from) {
					if changed[p] {
						continue
					}
					changed[p] = true
					switch t.Type {
					case model.TransferTypeNotPossible:
						g.change[p] = NoChange
					case model.TransferTypeTimed:
						g.change[p] = 0
					default:
						g.change[p] = minSeconds(t, opts)
					}
				}
				continue
			}

			for _, a := range g.platforms(from) {
				for _, b := range g.platforms(to) {
					p := pair{a, b}
					if a == b {
						continue
					}
					if _, dup := explicit[p]; dup {
						continue
					}
					if forbidden[p] {
						continue
					}
					if t.Type == model.TransferTypeNotPossible {
						forbidden[p] = true
						continue
					}
					sa, sb := g.stops[a], g.stops[b]
					fp := Footpath{
						From:       a,
						To:         b,
						DistanceKm: spatial.Haversine(sa.Lat, sa.Lon, sb.Lat, sb.Lon),
						MinSeconds: minSeconds(t, opts),
						Explicit:   true,
					}
					if t.Type == model.TransferTypeTimed {
						fp.MinSeconds = 0
					}
					order = append(order, p)
					explicit[p] = fp
				}
			}
		}
	}

	for _, p := range order {
		g.footpaths[p[0]] = append(g.footpaths[p[0]], explicit[p])
	}

	if index == nil || opts.WalkRadiusKm == 0 {
		g.sortFootpaths()
		return
	}

	for from, stop := range g.stops {
		if stop.LocationType != model.LocationTypeStop {
			continue
		}
		n := 0
		for _, nb := range index.FindNearby(stop.Lat, stop.Lon, opts.WalkRadiusKm, 0) {
			if opts.MaxNeighbors > 0 && n >= opts.MaxNeighbors {
				break
			}
			to, ok := g.stopIdx[nb.Stop.ID]
			if !ok || int(to) == from || nb.Stop.LocationType != model.LocationTypeStop {
				continue
			}
			p := pair{int32(from), to}
			if forbidden[p] {
				continue
			}
			n++
			if _, merged := explicit[p]; merged {
				continue
			}
			g.footpaths[from] = append(g.footpaths[from], Footpath{
				From:       int32(from),
				To:         to,
				DistanceKm: nb.DistanceKm,
			})
		}
	}

	g.sortFootpaths()
}

func (g *Graph) isStation(i int32) bool {
	return g.stops[i].LocationType == model.LocationTypeStation
}

// Boarding stops of a station, or the stop itself.
func (g *Graph) platforms(i int32) []int32 {
	if !g.isStation(i) {
		return []int32{i}
	}
	var out []int32
	for _, id := range g.store.Children(g.stops[i].ID) {
		c, ok := g.stopIdx[id]
		if ok && g.stops[c].LocationType == model.LocationTypeStop {
			out = append(out, c)
		}
	}
	return out
}

func (g *Graph) sortFootpaths() {
	for _, fps := range g.footpaths {
		sort.Slice(fps, func(i, j int) bool {
			if fps[i].DistanceKm != fps[j].DistanceKm {
				return fps[i].DistanceKm < fps[j].DistanceKm
			}
			return g.stops[fps[i].To].ID < g.stops[fps[j].To].ID
		})
	}
}

func minSeconds(t model.Transfer, opts Options) int32 {
	if t.MinTransferTime > 0 {
		return t.MinTransferTime
	}
	return opts.DefaultTransferSeconds
}

func (g *Graph) Store() *feed.Store {
	return g.store
}

func (g *Graph) NumStops() int {
	return len(g.stops)
}

func (g *Graph) StopIndex(id string) (int32, bool) {
	i, ok := g.stopIdx[id]
	return i, ok
}

func (g *Graph) Stop(i int32) model.Stop {
	return g.stops[i]
}

func (g *Graph) NumTrips() int {
	return len(g.trips)
}

func (g *Graph) TripIndex(id string) (int32, bool) {
	i, ok := g.tripIdx[id]
	return i, ok
}

func (g *Graph) Trip(i int32) *Trip {
	return &g.trips[i]
}

// Ride edges leaving a stop, ordered by departure and trip ID.
func (g *Graph) Departures(stop int32) []Ride {
	return g.departures[stop]
}

// All ride edges from one stop directly to another.
func (g *Graph) Between(from, to int32) []Ride {
	return g.between[[2]int32{from, to}]
}

// Footpaths leaving a stop, closest first.
func (g *Graph) Footpaths(stop int32) []Footpath {
	return g.footpaths[stop]
}

// Minimum time needed to change vehicles at a stop, or NoChange if
// changing there is not possible.
func (g *Graph) ChangeSeconds(stop int32) int32 {
	return g.change[stop]
}

// Latest scheduled arrival or departure in the feed.
func (g *Graph) MaxTime() int32 {
	return g.maxTime
}
