package realtime

import (
	"sort"
	"time"

	"tidbyt.dev/transit/graph"
)

// Identifies one run of a trip by its start date (YYYYMMDD), which is
// the service day the run belongs to. A blank StartDate refers to
// every run.
type TripRun struct {
	TripID    string
	StartDate string
}

// Delay observed for a single stop on a trip. StopSequence takes
// precedence over StopID when locating the stop on the trip.
type Delay struct {
	TripID         string
	StartDate      string
	StopID         string
	StopSequence   uint32
	ArrivalDelay   time.Duration
	DepartureDelay time.Duration

	// Vehicle will not stop here.
	Skipped bool
}

// Delays and cancellations from one realtime refresh.
type Feed struct {
	Timestamp     time.Time
	Delays        []Delay
	CanceledTrips map[TripRun]bool
}

type hopDelay struct {
	arrival   int32
	departure int32
	skipped   bool
}

type tripStop struct {
	trip int32
	stop int32
}

type run struct {
	trip int32
	date string
}

// A Feed compiled against a specific graph. Delays propagate
// downstream along each trip, until the next stop with an update.
//
// Lookups take the start date of the run in question. Updates and
// cancellations without a start date apply to every run of the trip,
// while dated ones apply to that run only and take precedence.
//
// All methods are safe to call on a nil Overlay, which behaves as if
// no realtime data is available.
type Overlay struct {
	feed     *Feed
	graph    *graph.Graph
	hops     map[run][]hopDelay
	canceled map[run]bool
	byStop   map[tripStop]int
	maxDelay int32
}

func NewOverlay(g *graph.Graph, f *Feed) *Overlay {
	o := &Overlay{
		feed:     f,
		graph:    g,
		hops:     map[run][]hopDelay{},
		canceled: map[run]bool{},
		byStop:   map[tripStop]int{},
	}
	if f == nil {
		return o
	}

	for tr := range f.CanceledTrips {
		if ti, ok := g.TripIndex(tr.TripID); ok {
			o.canceled[run{ti, tr.StartDate}] = true
		}
	}

	type located struct {
		hop   int
		delay Delay
	}
	byRun := map[run][]located{}
	for _, d := range f.Delays {
		ti, ok := g.TripIndex(d.TripID)
		if !ok {
			continue
		}
		hop := locate(g.Trip(ti), g, d)
		if hop < 0 {
			continue
		}
		r := run{ti, d.StartDate}
		byRun[r] = append(byRun[r], located{hop, d})
	}

	for r, updates := range byRun {
		ti := r.trip
		sort.SliceStable(updates, func(i, j int) bool { return updates[i].hop < updates[j].hop })

		trip := g.Trip(ti)
		hops := make([]hopDelay, len(trip.Stops))
		u := 0
		var arr, dep int32
		for h := range hops {
			if u < len(updates) && updates[u].hop == h {
				d := updates[u].delay
				for u < len(updates) && updates[u].hop == h {
					u++
				}
				if d.Skipped {
					hops[h] = hopDelay{arrival: dep, departure: dep, skipped: true}
					continue
				}
				arr = int32(d.ArrivalDelay / time.Second)
				dep = int32(d.DepartureDelay / time.Second)
				hops[h] = hopDelay{arrival: arr, departure: dep}
				continue
			}

			// Stops without an update inherit the latest
			// departure delay.
			hops[h] = hopDelay{arrival: dep, departure: dep}
		}

		for h, hd := range hops {
			o.maxDelay = max(o.maxDelay, hd.departure, hd.arrival)
			key := tripStop{ti, trip.Stops[h]}
			if _, dup := o.byStop[key]; !dup {
				o.byStop[key] = h
			}
		}
		o.hops[r] = hops
	}

	return o
}

// Finds the stop time an update refers to.
func locate(trip *graph.Trip, g *graph.Graph, d Delay) int {
	if d.StopSequence != 0 || d.StopID == "" {
		i := sort.Search(len(trip.Sequences), func(i int) bool { return trip.Sequences[i] >= d.StopSequence })
		if i < len(trip.Sequences) && trip.Sequences[i] == d.StopSequence {
			return i
		}
		if d.StopID == "" {
			return -1
		}
	}
	for i, s := range trip.Stops {
		if g.Stop(s).ID == d.StopID {
			return i
		}
	}
	return -1
}

// Graph the overlay was compiled against.
func (o *Overlay) Graph() *graph.Graph {
	if o == nil {
		return nil
	}
	return o.graph
}

func (o *Overlay) Feed() *Feed {
	if o == nil {
		return nil
	}
	return o.feed
}

func (o *Overlay) Timestamp() time.Time {
	if o == nil || o.feed == nil {
		return time.Time{}
	}
	return o.feed.Timestamp
}

// Reports whether the run of trip starting on date is canceled.
func (o *Overlay) Canceled(trip int32, date string) bool {
	if o == nil {
		return false
	}
	return o.canceled[run{trip, ""}] || o.canceled[run{trip, date}]
}

func (o *Overlay) runHops(trip int32, date string) []hopDelay {
	if hops, ok := o.hops[run{trip, date}]; ok {
		return hops
	}
	return o.hops[run{trip, ""}]
}

func (o *Overlay) Skipped(trip int32, hop int32, date string) bool {
	if o == nil {
		return false
	}
	hops := o.runHops(trip, date)
	if hops == nil {
		return false
	}
	return hops[hop].skipped
}

// Arrival and departure delay in seconds at a stop time of the run of
// trip starting on date.
func (o *Overlay) Delays(trip int32, hop int32, date string) (int32, int32) {
	if o == nil {
		return 0, 0
	}
	hops := o.runHops(trip, date)
	if hops == nil {
		return 0, 0
	}
	return hops[hop].arrival, hops[hop].departure
}

// Largest positive delay across all trips, in seconds.
func (o *Overlay) MaxDelay() int32 {
	if o == nil {
		return 0
	}
	return o.maxDelay
}

// Delay in effect for a trip at a stop, after propagation, from
// updates without a start date.
func (o *Overlay) Lookup(tripID string, stopID string) (Delay, bool) {
	return o.LookupRun(TripRun{TripID: tripID}, stopID)
}

// Delay in effect for one run of a trip at a stop. Runs without
// updates of their own fall back on the undated ones.
func (o *Overlay) LookupRun(tr TripRun, stopID string) (Delay, bool) {
	if o == nil {
		return Delay{}, false
	}
	ti, ok := o.graph.TripIndex(tr.TripID)
	if !ok {
		return Delay{}, false
	}
	si, ok := o.graph.StopIndex(stopID)
	if !ok {
		return Delay{}, false
	}
	h, ok := o.byStop[tripStop{ti, si}]
	if !ok {
		return Delay{}, false
	}
	hops := o.runHops(ti, tr.StartDate)
	if hops == nil {
		return Delay{}, false
	}
	hd := hops[h]
	trip := o.graph.Trip(ti)
	return Delay{
		TripID:         tr.TripID,
		StartDate:      tr.StartDate,
		StopID:         stopID,
		StopSequence:   trip.Sequences[h],
		ArrivalDelay:   time.Duration(hd.arrival) * time.Second,
		DepartureDelay: time.Duration(hd.departure) * time.Second,
		Skipped:        hd.skipped,
	}, true
}

func (o *Overlay) NumCanceled() int {
	if o == nil {
		return 0
	}
	return len(o.canceled)
}

// Number of trips with delays, counting each trip once however many
// of its runs are affected.
func (o *Overlay) NumTrips() int {
	if o == nil {
		return 0
	}
	trips := map[int32]bool{}
	for r := range o.hops {
		trips[r.trip] = true
	}
	return len(trips)
}
