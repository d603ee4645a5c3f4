package transit

import (
	"sort"
	"time"

	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/parse"
	"tidbyt.dev/transit/realtime"
)

// Derives delays from parsed GTFS-rt data, using the snapshot's
// static schedule as reference. Covers canceled trips, skipped stops
// and delays.
//
// Added trips are not handled at all. Nor are any of the realtime
// extensions. Updates for trips absent from the static feed are
// dropped.
func NewRealtimeFeed(s *Snapshot, rt *parse.Realtime) *realtime.Feed {
	f := &realtime.Feed{
		Timestamp:     rt.Timestamp,
		CanceledTrips: map[realtime.TripRun]bool{},
		Delays:        []realtime.Delay{},
	}

	for tr := range rt.CanceledTrips {
		if _, ok := s.Store.Trip(tr.TripID); ok {
			f.CanceledTrips[realtime.TripRun{TripID: tr.TripID, StartDate: tr.StartDate}] = true
		}
	}

	resolveStopReferences(s, rt.Updates)

	// Group updates by trip run, ordered by stop_sequence
	updatesByRun := map[parse.TripRun][]*parse.StopTimeUpdate{}
	for _, u := range rt.Updates {
		tr := parse.TripRun{TripID: u.TripID, StartDate: u.StartDate}
		updatesByRun[tr] = append(updatesByRun[tr], u)
	}
	runs := make([]parse.TripRun, 0, len(updatesByRun))
	for tr, updates := range updatesByRun {
		runs = append(runs, tr)
		sort.SliceStable(updates, func(i, j int) bool {
			return updates[i].StopSequence < updates[j].StopSequence
		})
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].TripID != runs[j].TripID {
			return runs[i].TripID < runs[j].TripID
		}
		return runs[i].StartDate < runs[j].StartDate
	})

	for _, tr := range runs {
		stopTimes := s.Store.StopTimes(tr.TripID)
		if len(stopTimes) == 0 {
			// TODO: added trips
			continue
		}

		si := 0
		for _, u := range updatesByRun[tr] {
			// Find stop time matching this update's stop_sequence
			for ; si < len(stopTimes); si++ {
				if stopTimes[si].StopSequence == u.StopSequence {
					break
				}
			}
			if si >= len(stopTimes) {
				break
			}

			d := realtime.Delay{
				TripID:       tr.TripID,
				StartDate:    tr.StartDate,
				StopID:       stopTimes[si].StopID,
				StopSequence: u.StopSequence,
			}

			switch u.Type {
			case parse.StopTimeUpdateNoData:
				// Back to the static schedule
			case parse.StopTimeUpdateSkipped:
				d.Skipped = true
			default:
				d.ArrivalDelay, d.DepartureDelay = updateDelays(s.Store.Location, &stopTimes[si], u)
			}

			f.Delays = append(f.Delays, d)
		}
	}

	return f
}

// Computes arrival and departure delay of a SCHEDULED update.
//
// Feeds can communicate delay either directly or via a timestamp. An
// explicit non-zero delay takes precedence over the timestamp.
func updateDelays(tz *time.Location, st *model.StopTime, u *parse.StopTimeUpdate) (time.Duration, time.Duration) {
	var arrival, departure time.Duration

	if u.ArrivalIsSet {
		arrival = u.ArrivalDelay
		if arrival == 0 && !u.ArrivalTime.IsZero() {
			arrival = delayFromTime(tz, u.StartDate, st.ArrivalTime(), u.ArrivalTime)
		}
	}
	if u.DepartureIsSet {
		departure = u.DepartureDelay
		if departure == 0 && !u.DepartureTime.IsZero() {
			departure = delayFromTime(tz, u.StartDate, st.DepartureTime(), u.DepartureTime)
		}
	}

	switch {
	case !u.DepartureIsSet:
		// Lacking departure data, assume the arrival delay
		// applies to departure. An early arrival is
		// interpreted as a return to regular schedule.
		departure = max(arrival, 0)
		if !u.ArrivalIsSet {
			arrival = 0
		}
	case !u.ArrivalIsSet:
		// Lacking arrival data, assume the departure delay
		// applies to arrival.
		arrival = departure
	}

	return arrival, departure
}

// Delay of an absolute time, relative to a scheduled offset from
// "noon minus 12h" on the update's service day. That is the start
// date when known, or otherwise inferred from the time itself.
func delayFromTime(tz *time.Location, startDate string, offset time.Duration, actual time.Time) time.Duration {
	t := actual.In(tz)
	if startDate != "" {
		if day, err := time.ParseInLocation("20060102", startDate, tz); err == nil {
			noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, tz)
			return t.Sub(noon.Add(-12 * time.Hour).Add(offset))
		}
	}
	noon := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, tz)

	// Schedules can exceed 24h, in which case the trip belongs
	// to the previous day. Anchoring on that day's noon keeps DST
	// switches accounted for.
	if offset >= 24*time.Hour {
		noon = noon.AddDate(0, 0, -1)
	}
	return t.Sub(noon.Add(-12 * time.Hour).Add(offset))
}

// Makes sure all updates have both stop_id and stop_sequence set.
//
// GTFS-rt's StopTimeUpdates can refer to stops using stop_id,
// stop_sequence, or both. The stop_sequence is needed to propagate
// delays, and the stop_id to report them.
func resolveStopReferences(s *Snapshot, updates []*parse.StopTimeUpdate) {
	type tripAndSeq struct {
		tripID string
		seq    uint32
	}
	type tripAndStopID struct {
		tripID string
		stopID string
	}

	stopIDByTripAndSeq := map[tripAndSeq]string{}
	stopSeqByTripAndStopID := map[tripAndStopID]uint32{}
	indexed := map[string]bool{}

	for _, u := range updates {
		if indexed[u.TripID] {
			continue
		}
		indexed[u.TripID] = true
		for _, st := range s.Store.StopTimes(u.TripID) {
			stopIDByTripAndSeq[tripAndSeq{u.TripID, st.StopSequence}] = st.StopID
			key := tripAndStopID{u.TripID, st.StopID}
			if _, dup := stopSeqByTripAndStopID[key]; !dup {
				stopSeqByTripAndStopID[key] = st.StopSequence
			}
		}
	}

	for _, u := range updates {
		if u.StopID != "" {
			// StopSequence 0 could be legit, or it could be
			// unspecified. Attempt to resolve it in this case.
			if u.StopSequence == 0 {
				if seq, ok := stopSeqByTripAndStopID[tripAndStopID{u.TripID, u.StopID}]; ok {
					u.StopSequence = seq
				}
			}
			continue
		}

		// No stop_id. Must be inferred from stop_sequence.
		if stopID, ok := stopIDByTripAndSeq[tripAndSeq{u.TripID, u.StopSequence}]; ok {
			u.StopID = stopID
		}
	}
}
