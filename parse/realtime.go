package parse

import (
	"context"
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

type StopTimeUpdateScheduleRelationship int

const (
	StopTimeUpdateScheduled StopTimeUpdateScheduleRelationship = iota
	StopTimeUpdateSkipped
	StopTimeUpdateNoData
)

func (r StopTimeUpdateScheduleRelationship) String() string {
	switch r {
	case StopTimeUpdateScheduled:
		return "SCHEDULED"
	case StopTimeUpdateSkipped:
		return "SKIPPED"
	case StopTimeUpdateNoData:
		return "NO_DATA"
	}
	return fmt.Sprintf("StopTimeUpdateScheduleRelationship(%d)", int(r))
}

// Identifies one run of a trip by its start date (YYYYMMDD). A blank
// StartDate refers to every run.
type TripRun struct {
	TripID    string
	StartDate string
}

type StopTimeUpdate struct {
	TripID         string
	StartDate      string
	StopID         string
	StopSequence   uint32
	ArrivalIsSet   bool
	ArrivalTime    time.Time
	ArrivalDelay   time.Duration
	DepartureIsSet bool
	DepartureTime  time.Time
	DepartureDelay time.Duration
	Type           StopTimeUpdateScheduleRelationship
}

// Contains key data from one or more GTFS Realtime feeds.
type Realtime struct {
	// Timestamp of the feed. If loaded from multiple feeds, the
	// most recent one wins.
	Timestamp     time.Time
	CanceledTrips map[TripRun]bool
	Updates       []*StopTimeUpdate

	// These exist to simplify debugging down the road
	NumScheduledTrips   int
	NumAddedTrips       int
	NumUnscheduledTrips int
	NumCanceledTrips    int
	NumDuplicatedTrips  int
}

func ParseRealtime(ctx context.Context, feeds [][]byte) (*Realtime, error) {
	rt := &Realtime{
		CanceledTrips: map[TripRun]bool{},
		Updates:       []*StopTimeUpdate{},
	}

	for i, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := &gtfsproto.FeedMessage{}
		err := proto.Unmarshal(feed, f)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling protobuf (feed %d): %w", i, err)
		}

		header := f.GetHeader()

		version := header.GetGtfsRealtimeVersion()
		if version != "2.0" && version != "1.0" {
			return nil, fmt.Errorf("version %s not supported", version)
		}

		if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
			return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
		}

		ts := time.Unix(int64(header.GetTimestamp()), 0).UTC()
		if ts.After(rt.Timestamp) {
			rt.Timestamp = ts
		}

		err = processEntities(rt, f.GetEntity())
		if err != nil {
			return nil, fmt.Errorf("processing entities: %w", err)
		}
	}

	return rt, nil
}

func processEntities(rt *Realtime, entities []*gtfsproto.FeedEntity) error {
	for _, entity := range entities {
		// Only TripUpdates matter for journey planning
		if entity.TripUpdate == nil {
			continue
		}

		trip := entity.TripUpdate.Trip
		if trip == nil {
			return fmt.Errorf("trip_update missing trip")
		}

		// Blank trip ID is allowed when (route_id,
		// direction_id, start_time, start_date) is provided
		// and uniquely identifies the trip in the static
		// schedule. Also allowed for frequency based trips.
		//
		// That said, we don't support it.
		if trip.GetTripId() == "" {
			continue
		}

		startDate := trip.GetStartDate()
		if startDate != "" {
			if _, err := time.Parse("20060102", startDate); err != nil {
				return fmt.Errorf("invalid start_date '%s' for trip '%s'", startDate, trip.GetTripId())
			}
		}
		run := TripRun{TripID: trip.GetTripId(), StartDate: startDate}

		switch trip.GetScheduleRelationship() {

		case gtfsproto.TripDescriptor_SCHEDULED:
			for _, update := range entity.TripUpdate.GetStopTimeUpdate() {
				err := processStopTimeUpdate(rt, run, update)
				if err != nil {
					return fmt.Errorf("processing stop time update: %w", err)
				}
			}
			rt.NumScheduledTrips++

		case gtfsproto.TripDescriptor_ADDED:
			// Not supported
			rt.NumAddedTrips++

		case gtfsproto.TripDescriptor_UNSCHEDULED:
			// For frequency based trips only. Not supported.
			rt.NumUnscheduledTrips++

		case gtfsproto.TripDescriptor_CANCELED:
			rt.CanceledTrips[run] = true
			rt.NumCanceledTrips++

		case gtfsproto.TripDescriptor_DUPLICATED:
			// Not supported
			rt.NumDuplicatedTrips++
		}
	}

	return nil
}

func stopTimeEvent(event *gtfsproto.TripUpdate_StopTimeEvent) (time.Time, time.Duration) {
	var t time.Time
	if unix := event.GetTime(); unix != 0 {
		t = time.Unix(unix, 0).UTC()
	}
	return t, time.Duration(event.GetDelay()) * time.Second
}

func processStopTimeUpdate(
	rt *Realtime,
	run TripRun,
	update *gtfsproto.TripUpdate_StopTimeUpdate,
) error {

	stup := &StopTimeUpdate{
		TripID:       run.TripID,
		StartDate:    run.StartDate,
		StopID:       update.GetStopId(),
		StopSequence: update.GetStopSequence(),
	}

	if update.Arrival != nil {
		stup.ArrivalIsSet = true
		stup.ArrivalTime, stup.ArrivalDelay = stopTimeEvent(update.GetArrival())
	}

	if update.Departure != nil {
		stup.DepartureIsSet = true
		stup.DepartureTime, stup.DepartureDelay = stopTimeEvent(update.GetDeparture())
	}

	if stup.StopID == "" && update.StopSequence == nil {
		return fmt.Errorf("stop_time_update missing stop_id and stop_sequence")
	}

	switch update.GetScheduleRelationship() {

	case gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED:
		// Vehicle will stop according to GTFS schedule, but
		// possibly with delay.
		stup.Type = StopTimeUpdateScheduled
		rt.Updates = append(rt.Updates, stup)

	case gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED:
		stup.Type = StopTimeUpdateSkipped
		rt.Updates = append(rt.Updates, stup)

	case gtfsproto.TripUpdate_StopTimeUpdate_NO_DATA:
		stup.Type = StopTimeUpdateNoData
		rt.Updates = append(rt.Updates, stup)

	case gtfsproto.TripUpdate_StopTimeUpdate_UNSCHEDULED:
		// For frequency based trips. Not supported.
	}

	return nil
}
