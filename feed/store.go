package feed

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/transit/model"
)

// Immutable, indexed view of a ParsedFeed. All lookups are read only
// and safe for concurrent use.
type Store struct {
	Location *time.Location
	Calendar *ServiceCalendar

	stops     []model.Stop
	stopIdx   map[string]int
	children  map[string][]string
	routes    map[string]*model.Route
	trips     []model.Trip
	tripIdx   map[string]int
	stopTimes map[string][]model.StopTime
	transfers []model.Transfer
}

// Validates the feed and builds the Store.
//
// In addition to referential integrity, every trip's stop times must
// have strictly increasing stop_sequence and be time-monotonic, and
// the parent station hierarchy must be acyclic.
func NewStore(pf *ParsedFeed) (*Store, error) {
	tz := pf.Timezone
	if tz == "" && len(pf.Agencies) > 0 {
		tz = pf.Agencies[0].Timezone
	}
	if tz == "" {
		return nil, fmt.Errorf("missing feed timezone: %w", model.ErrInvalidInput)
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone '%s': %w", tz, model.ErrInvalidInput)
	}

	s := &Store{
		Location:  location,
		Calendar:  NewServiceCalendar(pf.Calendars, pf.CalendarDates),
		stopIdx:   map[string]int{},
		children:  map[string][]string{},
		routes:    map[string]*model.Route{},
		tripIdx:   map[string]int{},
		stopTimes: map[string][]model.StopTime{},
	}

	s.stops = append([]model.Stop{}, pf.Stops...)
	sort.SliceStable(s.stops, func(i, j int) bool { return s.stops[i].ID < s.stops[j].ID })
	for i, stop := range s.stops {
		if stop.ID == "" {
			return nil, fmt.Errorf("stop without id: %w", model.ErrInvalidInput)
		}
		if _, dup := s.stopIdx[stop.ID]; dup {
			return nil, fmt.Errorf("duplicate stop '%s': %w", stop.ID, model.ErrInvalidInput)
		}
		s.stopIdx[stop.ID] = i
	}
	if err := s.indexParents(); err != nil {
		return nil, err
	}

	for i := range pf.Routes {
		route := pf.Routes[i]
		if _, dup := s.routes[route.ID]; dup {
			return nil, fmt.Errorf("duplicate route '%s': %w", route.ID, model.ErrInvalidInput)
		}
		s.routes[route.ID] = &route
	}

	s.trips = append([]model.Trip{}, pf.Trips...)
	sort.SliceStable(s.trips, func(i, j int) bool { return s.trips[i].ID < s.trips[j].ID })
	for i, trip := range s.trips {
		if _, dup := s.tripIdx[trip.ID]; dup {
			return nil, fmt.Errorf("duplicate trip '%s': %w", trip.ID, model.ErrInvalidInput)
		}
		if _, ok := s.routes[trip.RouteID]; !ok {
			return nil, fmt.Errorf("trip '%s' has unknown route '%s': %w", trip.ID, trip.RouteID, model.ErrInvalidInput)
		}
		s.tripIdx[trip.ID] = i
	}

	for _, st := range pf.StopTimes {
		if _, ok := s.tripIdx[st.TripID]; !ok {
			return nil, fmt.Errorf("stop time for unknown trip '%s': %w", st.TripID, model.ErrInvalidInput)
		}
		if _, ok := s.stopIdx[st.StopID]; !ok {
			return nil, fmt.Errorf("stop time at unknown stop '%s': %w", st.StopID, model.ErrInvalidInput)
		}
		s.stopTimes[st.TripID] = append(s.stopTimes[st.TripID], st)
	}
	for tripID, sts := range s.stopTimes {
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
		if err := checkMonotonic(tripID, sts); err != nil {
			return nil, err
		}
	}

	for _, t := range pf.Transfers {
		if _, ok := s.stopIdx[t.FromStopID]; !ok {
			return nil, fmt.Errorf("transfer from unknown stop '%s': %w", t.FromStopID, model.ErrInvalidInput)
		}
		if _, ok := s.stopIdx[t.ToStopID]; !ok {
			return nil, fmt.Errorf("transfer to unknown stop '%s': %w", t.ToStopID, model.ErrInvalidInput)
		}
		s.transfers = append(s.transfers, t)
	}

	return s, nil
}

func (s *Store) indexParents() error {
	for _, stop := range s.stops {
		if stop.ParentStation == "" {
			continue
		}
		if _, ok := s.stopIdx[stop.ParentStation]; !ok {
			return fmt.Errorf("stop '%s' has unknown parent '%s': %w", stop.ID, stop.ParentStation, model.ErrInvalidInput)
		}
		s.children[stop.ParentStation] = append(s.children[stop.ParentStation], stop.ID)
	}

	// Walk up from every stop. A chain longer than the number of
	// stops must contain a cycle.
	for _, stop := range s.stops {
		cur := stop
		for steps := 0; cur.ParentStation != ""; steps++ {
			if steps > len(s.stops) {
				return fmt.Errorf("parent station cycle at stop '%s': %w", stop.ID, model.ErrInvalidInput)
			}
			cur = s.stops[s.stopIdx[cur.ParentStation]]
		}
	}

	return nil
}

func checkMonotonic(tripID string, sts []model.StopTime) error {
	for i := range sts {
		if sts[i].DepartureTime() < sts[i].ArrivalTime() {
			return fmt.Errorf("trip '%s' departs stop_sequence %d before arriving: %w", tripID, sts[i].StopSequence, model.ErrInvalidInput)
		}
		if i == 0 {
			continue
		}
		if sts[i].StopSequence == sts[i-1].StopSequence {
			return fmt.Errorf("trip '%s' repeats stop_sequence %d: %w", tripID, sts[i].StopSequence, model.ErrInvalidInput)
		}
		if sts[i].ArrivalTime() < sts[i-1].DepartureTime() {
			return fmt.Errorf("trip '%s' goes back in time at stop_sequence %d: %w", tripID, sts[i].StopSequence, model.ErrInvalidInput)
		}
	}
	return nil
}

// All stops, ordered by ID. Must not be modified.
func (s *Store) Stops() []model.Stop {
	return s.stops
}

func (s *Store) Stop(id string) (model.Stop, bool) {
	i, ok := s.stopIdx[id]
	if !ok {
		return model.Stop{}, false
	}
	return s.stops[i], true
}

// IDs of stops having the given stop as parent station.
func (s *Store) Children(id string) []string {
	return s.children[id]
}

func (s *Store) Route(id string) (model.Route, bool) {
	r, ok := s.routes[id]
	if !ok {
		return model.Route{}, false
	}
	return *r, true
}

// All trips, ordered by ID. Must not be modified.
func (s *Store) Trips() []model.Trip {
	return s.trips
}

func (s *Store) Trip(id string) (model.Trip, bool) {
	i, ok := s.tripIdx[id]
	if !ok {
		return model.Trip{}, false
	}
	return s.trips[i], true
}

// Stop times of a trip, ordered by stop_sequence. Must not be
// modified.
func (s *Store) StopTimes(tripID string) []model.StopTime {
	return s.stopTimes[tripID]
}

func (s *Store) Transfers() []model.Transfer {
	return s.transfers
}
