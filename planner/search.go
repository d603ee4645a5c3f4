package planner

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tidbyt.dev/transit/graph"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/realtime"
	"tidbyt.dev/transit/spatial"
)

const (
	// Service days searched, relative to the query date.
	minDay  = -2
	maxDay  = 2
	numDays = maxDay - minDay + 1

	ctxCheckInterval = 256
)

var journeyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://tidbyt.dev/transit/journey"))

type kind uint8

const (
	kindOrigin kind = iota
	kindRide
	kindWalk
)

type label struct {
	stop int32
	time int32

	// Trip being ridden, or -1
	trip int32
	day  int8
	hop  int32

	// Where and when the current trip was boarded
	boardHop int32
	depart   int32

	// Most recently ridden trip, carried across walks
	lastTrip int32

	// When the journey starts, including any leading walk. Only set
	// once something has been ridden.
	first int32

	transfers int
	walkKm    float64
	kind      kind
	ridden    bool
	parent    int32
}

type visitKey struct {
	stop   int32
	minute int32
	trip   int32
	day    int8
}

// Best transfers and walking seen for a visitKey.
type visitCost struct {
	transfers int
	walkKm    float64
}

func (c visitCost) improves(o visitCost) bool {
	if c.transfers != o.transfers {
		return c.transfers < o.transfers
	}
	return c.walkKm < o.walkKm
}

type entry struct {
	priority int32
	time     int32
	label    int32
}

type queue []entry

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].label < q[j].label
}
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(entry)) }
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

type candidate struct {
	ride      graph.Ride
	day       int8
	departure int32
}

type routeDirection struct {
	route     string
	direction int8
}

// State of a single query. Not safe for concurrent use.
type search struct {
	p       *Planner
	g       *graph.Graph
	c       Constraints
	overlay *realtime.Overlay

	d0      time.Time
	out     *time.Location
	start   int32
	offsets [numDays]int32
	dates   [numDays]time.Time
	runs    [numDays]string
	active  map[string]*[numDays]int8
	modes   map[model.RouteType]bool

	origins   []int32
	dest      map[int32]bool
	destStops []model.Stop
	h         []int32

	labels  []label
	open    queue
	visited map[visitKey]visitCost

	candidates []candidate
	perRoute   map[routeDirection]int

	journeys   []*Journey
	signatures map[string]bool
}

func newSearch(p *Planner, req Request, overlay *realtime.Overlay, origins, destinations []int32) *search {
	s := &search{
		p:          p,
		g:          p.graph,
		c:          req.Constraints.withDefaults(),
		overlay:    overlay,
		out:        req.DepartAfter.Location(),
		active:     map[string]*[numDays]int8{},
		origins:    origins,
		dest:       map[int32]bool{},
		visited:    map[visitKey]visitCost{},
		perRoute:   map[routeDirection]int{},
		signatures: map[string]bool{},
	}

	if len(s.c.Modes) > 0 {
		s.modes = map[model.RouteType]bool{}
		for _, m := range s.c.Modes {
			s.modes[m] = true
		}
	}

	for _, d := range destinations {
		s.dest[d] = true
		s.destStops = append(s.destStops, s.g.Stop(d))
	}
	s.h = make([]int32, s.g.NumStops())
	for i := range s.h {
		s.h[i] = -1
	}

	// Times are seconds since "noon minus 12h" of the query date,
	// in the feed's timezone. Offsets absorb DST changes.
	dep := req.DepartAfter.In(p.location)
	y, m, d := dep.Date()
	s.d0 = time.Date(y, m, d, 12, 0, 0, 0, p.location).Add(-12 * time.Hour)
	s.start = int32(dep.Sub(s.d0) / time.Second)
	for k := 0; k < numDays; k++ {
		noon := time.Date(y, m, d+k+minDay, 12, 0, 0, 0, p.location)
		s.dates[k] = noon
		s.runs[k] = noon.Format("20060102")
		s.offsets[k] = int32(noon.Add(-12*time.Hour).Sub(s.d0) / time.Second)
	}

	return s
}

func (s *search) run(ctx context.Context) *Result {
	for _, o := range s.origins {
		s.push(label{
			stop:     o,
			time:     s.start,
			trip:     -1,
			hop:      -1,
			lastTrip: -1,
			kind:     kindOrigin,
			parent:   -1,
		})
	}

	var truncated error
	expansions := 0
	for s.open.Len() > 0 && len(s.journeys) < s.c.Results {
		if expansions >= s.c.MaxExpansions {
			truncated = fmt.Errorf("%w: %d labels expanded", model.ErrBudgetExceeded, expansions)
			break
		}
		if expansions%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				truncated = fmt.Errorf("%w: %w", model.ErrBudgetExceeded, err)
				break
			}
		}

		e := heap.Pop(&s.open).(entry)
		expansions++

		l := s.labels[e.label]
		if s.dest[l.stop] && l.kind != kindOrigin {
			s.collect(e.label)
			continue
		}
		s.expand(e.label, l)
	}

	sort.Slice(s.journeys, func(i, j int) bool { return less(s.journeys[i], s.journeys[j]) })
	n := min(len(s.journeys), s.c.Results)
	journeys := make([]Journey, 0, n)
	for _, j := range s.journeys[:n] {
		journeys = append(journeys, *j)
	}

	return &Result{
		Journeys:   journeys,
		Expansions: expansions,
		Truncated:  truncated,
	}
}

// Labels reaching a visited state are dropped unless they have fewer
// transfers, or as many transfers and less walking.
func (s *search) push(l label) {
	if l.ridden && seconds(l.time-l.first) > s.c.MaxDuration {
		return
	}
	key := visitKey{l.stop, l.time / 60, l.trip, l.day}
	cost := visitCost{l.transfers, l.walkKm}
	if seen, ok := s.visited[key]; ok && !cost.improves(seen) {
		return
	}
	s.visited[key] = cost

	i := int32(len(s.labels))
	s.labels = append(s.labels, l)
	heap.Push(&s.open, entry{
		priority: l.time + s.heuristic(l.stop),
		time:     l.time,
		label:    i,
	})
}

func (s *search) heuristic(stop int32) int32 {
	if s.h[stop] >= 0 {
		return s.h[stop]
	}
	from := s.g.Stop(stop)
	best := math.Inf(1)
	for _, d := range s.destStops {
		best = math.Min(best, spatial.Haversine(from.Lat, from.Lon, d.Lat, d.Lon))
	}
	s.h[stop] = max(s.p.opts.Heuristic.Seconds(best), 0)
	return s.h[stop]
}

func (s *search) isActive(serviceID string, day int) bool {
	days := s.active[serviceID]
	if days == nil {
		days = &[numDays]int8{}
		s.active[serviceID] = days
	}
	if days[day] == 0 {
		days[day] = -1
		if s.p.calendar != nil && s.p.calendar.IsActive(serviceID, s.dates[day]) {
			days[day] = 1
		}
	}
	return days[day] == 1
}

func (s *search) expand(i int32, l label) {
	if l.kind == kindRide {
		s.emitRide(i, l, l.trip, l.day, l.hop, l.boardHop, l.depart, l.transfers, l.first)
	}
	s.board(i, l)
	if l.kind != kindWalk {
		s.walk(i, l)
	}
}

// Labels the next few non-skipped stops of a trip after fromHop.
func (s *search) emitRide(parent int32, from label, ti int32, day int8, fromHop int32, boardHop int32, depart int32, transfers int, first int32) {
	trip := s.g.Trip(ti)
	off := s.offsets[day-minDay]
	floor := max(depart, from.time)

	n := 0
	for j := fromHop + 1; j < int32(len(trip.Stops)) && n < s.p.opts.RideLookahead; j++ {
		if s.overlay.Skipped(ti, j, s.runs[day-minDay]) {
			continue
		}
		n++
		arrDelay, _ := s.overlay.Delays(ti, j, s.runs[day-minDay])
		s.push(label{
			stop:      trip.Stops[j],
			time:      max(trip.Arrivals[j]+off+arrDelay, floor),
			trip:      ti,
			day:       day,
			hop:       j,
			boardHop:  boardHop,
			depart:    depart,
			lastTrip:  ti,
			first:     first,
			transfers: transfers,
			walkKm:    from.walkKm,
			kind:      kindRide,
			ridden:    true,
			parent:    parent,
		})
	}
}

func (s *search) board(i int32, l label) {
	transfers := l.transfers
	if l.ridden {
		transfers++
	}
	if transfers > s.c.MaxTransfers {
		return
	}

	earliest := l.time
	if l.kind == kindRide {
		change := s.g.ChangeSeconds(l.stop)
		if change == graph.NoChange {
			return
		}
		earliest += change
	}
	// Before the first ride, the wait is measured from the first
	// feasible departure rather than from the label.
	maxWait := int32(s.p.opts.MaxWait / time.Second)
	latest := l.time + maxWait
	if !l.ridden {
		latest = math.MaxInt32
	}

	deps := s.g.Departures(l.stop)
	cands := s.candidates[:0]
	for k := 0; k < numDays; k++ {
		off := s.offsets[k]
		from := l.time - off - s.overlay.MaxDelay()
		j := sort.Search(len(deps), func(x int) bool { return deps[x].Departure >= from })
		for ; j < len(deps) && deps[j].Departure+off <= latest; j++ {
			r := deps[j]
			if r.Trip == l.lastTrip {
				continue
			}
			trip := s.g.Trip(r.Trip)
			if s.modes != nil && !s.modes[trip.RouteType] {
				continue
			}
			if s.overlay.Canceled(r.Trip, s.runs[k]) || s.overlay.Skipped(r.Trip, r.Hop, s.runs[k]) {
				continue
			}
			_, depDelay := s.overlay.Delays(r.Trip, r.Hop, s.runs[k])
			actual := r.Departure + off + depDelay
			if actual < earliest || actual > latest {
				continue
			}
			if !s.isActive(trip.ServiceID, k) {
				continue
			}
			cands = append(cands, candidate{ride: r, day: int8(k + minDay), departure: actual})
		}
	}
	s.candidates = cands

	sort.Slice(cands, func(a, b int) bool {
		if cands[a].departure != cands[b].departure {
			return cands[a].departure < cands[b].departure
		}
		ta, tb := s.g.Trip(cands[a].ride.Trip), s.g.Trip(cands[b].ride.Trip)
		if ta.ID != tb.ID {
			return ta.ID < tb.ID
		}
		return cands[a].day < cands[b].day
	})
	if !l.ridden && len(cands) > 0 {
		latest = cands[0].departure + maxWait
		n := sort.Search(len(cands), func(x int) bool { return cands[x].departure > latest })
		cands = cands[:n]
	}

	clear(s.perRoute)
	boarded := 0
	for _, c := range cands {
		if boarded >= s.p.opts.MaxBoardings {
			break
		}
		trip := s.g.Trip(c.ride.Trip)
		key := routeDirection{trip.RouteID, trip.DirectionID}
		if s.perRoute[key] >= s.p.opts.PerRouteDepartures {
			continue
		}
		s.perRoute[key]++
		boarded++
		first := l.first
		if !l.ridden {
			// Leading walks are retimed to end at the departure
			first = c.departure - (l.time - s.start)
		}
		s.emitRide(i, l, c.ride.Trip, c.day, c.ride.Hop, c.ride.Hop, c.departure, transfers, first)
	}
}

func (s *search) walk(i int32, l label) {
	for _, fp := range s.g.Footpaths(l.stop) {
		if l.walkKm+fp.DistanceKm > s.c.MaxWalkKm {
			// Footpaths are ordered by distance
			break
		}
		s.push(label{
			stop:      fp.To,
			time:      l.time + walkSeconds(fp, s.c.WalkSpeedKmh),
			trip:      -1,
			hop:       -1,
			lastTrip:  l.lastTrip,
			first:     l.first,
			transfers: l.transfers,
			walkKm:    l.walkKm + fp.DistanceKm,
			kind:      kindWalk,
			ridden:    l.ridden,
			parent:    i,
		})
	}
}

func walkSeconds(fp graph.Footpath, speedKmh float64) int32 {
	return max(fp.MinSeconds, int32(math.Ceil(fp.DistanceKm/speedKmh*3600)))
}

func (s *search) abs(t int32) time.Time {
	return s.d0.Add(time.Duration(t) * time.Second).In(s.out)
}

func seconds(t int32) time.Duration {
	return time.Duration(t) * time.Second
}

// Turns the label chain ending at i into a journey, and adds it to
// the result set unless it is a duplicate or dominated.
func (s *search) collect(i int32) {
	chain := []int32{}
	for j := i; j >= 0; j = s.labels[j].parent {
		chain = append(chain, j)
	}
	for a, b := 0, len(chain)-1; a < b; a, b = a+1, b-1 {
		chain[a], chain[b] = chain[b], chain[a]
	}

	j := &Journey{Legs: []Leg{}}
	rides := 0
	for x := 1; x < len(chain); x++ {
		prev, l := s.labels[chain[x-1]], s.labels[chain[x]]

		switch l.kind {
		case kindWalk:
			w := &Walk{
				FromStop:   s.g.Stop(prev.stop),
				ToStop:     s.g.Stop(l.stop),
				DistanceKm: l.walkKm - prev.walkKm,
				Duration:   seconds(l.time - prev.time),
				Departure:  s.abs(prev.time),
				Arrival:    s.abs(l.time),
			}
			j.WalkingDistanceKm += w.DistanceKm
			j.Legs = append(j.Legs, w)

		case kindRide:
			if prev.kind == kindRide && prev.trip == l.trip && prev.day == l.day && prev.boardHop == l.boardHop {
				r := j.Legs[len(j.Legs)-1].(*Ride)
				arrDelay, _ := s.overlay.Delays(l.trip, l.hop, s.runs[l.day-minDay])
				r.AlightStop = s.g.Stop(l.stop)
				r.Arrival = s.abs(l.time)
				r.Stops = int(l.hop - l.boardHop)
				r.ArrivalDelay = seconds(arrDelay)
				continue
			}
			j.Legs = append(j.Legs, s.ride(l))
			rides++
		}
	}

	if len(j.Legs) == 0 {
		return
	}

	// A leading walk ends right as the first vehicle departs.
	if len(j.Legs) > 1 {
		if w, ok := j.Legs[0].(*Walk); ok {
			if r, ok := j.Legs[1].(*Ride); ok {
				w.Arrival = r.Departure
				w.Departure = r.Departure.Add(-w.Duration)
			}
		}
	}

	if revisits(j.Legs) {
		return
	}

	j.Departure = j.Legs[0].Start()
	j.Arrival = j.Legs[len(j.Legs)-1].End()
	j.Duration = j.Arrival.Sub(j.Departure)
	if rides > 0 {
		j.Transfers = rides - 1
	}

	sig := signature(j.Legs)
	if s.signatures[sig] {
		return
	}
	s.signatures[sig] = true
	j.ID = uuid.NewSHA1(journeyNamespace, []byte(sig)).String()

	for _, o := range s.journeys {
		if o.dominates(j) {
			return
		}
	}
	kept := s.journeys[:0]
	for _, o := range s.journeys {
		if !j.dominates(o) {
			kept = append(kept, o)
		}
	}
	s.journeys = append(kept, j)
}

func (s *search) ride(l label) *Ride {
	trip := s.g.Trip(l.trip)
	route, _ := s.g.Store().Route(trip.RouteID)
	_, depDelay := s.overlay.Delays(l.trip, l.boardHop, s.runs[l.day-minDay])
	arrDelay, _ := s.overlay.Delays(l.trip, l.hop, s.runs[l.day-minDay])

	headsign := trip.Headsign
	if headsign == "" {
		headsign = s.g.Stop(trip.Stops[len(trip.Stops)-1]).Name
	}

	return &Ride{
		BoardStop:      s.g.Stop(trip.Stops[l.boardHop]),
		AlightStop:     s.g.Stop(l.stop),
		RouteID:        trip.RouteID,
		RouteName:      route.Name(),
		RouteType:      trip.RouteType,
		TripID:         trip.ID,
		Headsign:       headsign,
		Departure:      s.abs(l.depart),
		Arrival:        s.abs(l.time),
		Stops:          int(l.hop - l.boardHop),
		DepartureDelay: seconds(depDelay),
		ArrivalDelay:   seconds(arrDelay),
	}
}

func endpoints(leg Leg) (model.Stop, model.Stop) {
	switch l := leg.(type) {
	case *Ride:
		return l.BoardStop, l.AlightStop
	case *Walk:
		return l.FromStop, l.ToStop
	}
	return model.Stop{}, model.Stop{}
}

func revisits(legs []Leg) bool {
	first, _ := endpoints(legs[0])
	seen := map[string]bool{first.ID: true}
	for _, leg := range legs {
		_, to := endpoints(leg)
		if seen[to.ID] {
			return true
		}
		seen[to.ID] = true
	}
	return false
}

func signature(legs []Leg) string {
	parts := make([]string, 0, len(legs))
	for _, leg := range legs {
		switch l := leg.(type) {
		case *Ride:
			parts = append(parts, fmt.Sprintf("R|%s|%s|%s|%d", l.TripID, l.BoardStop.ID, l.AlightStop.ID, l.Departure.Unix()))
		case *Walk:
			parts = append(parts, fmt.Sprintf("W|%s|%s", l.FromStop.ID, l.ToStop.ID))
		}
	}
	return strings.Join(parts, ";")
}
