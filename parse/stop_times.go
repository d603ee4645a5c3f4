package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tidbyt.dev/transit/model"
)

type stopTimeRecord struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

// Converts "H:MM:SS" to "HHMMSS". Hours may exceed 23 for trips
// running past midnight.
func parseStopTimeTime(s string) (string, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 3 {
		return "", fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return "", fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return "", fmt.Errorf("invalid hour in '%s'", s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return "", fmt.Errorf("invalid minute in '%s'", s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return "", fmt.Errorf("invalid second in '%s'", s)
	}

	return fmt.Sprintf("%02d%02d%02d", hms[0], hms[1], hms[2]), nil
}

// Either of arrival_time and departure_time may be left blank, in
// which case the other is used for both. Timepoint interpolation is
// not supported.
func (p *staticParser) parseStopTimes(data io.Reader) error {
	if err := p.writer.BeginStopTimes(); err != nil {
		return fmt.Errorf("beginning stop times: %w", err)
	}

	sequences := map[string]map[uint32]bool{}

	err := eachRecord(data, func(row int, st *stopTimeRecord) error {
		if !p.trips[st.TripID] {
			return fmt.Errorf("unknown trip_id: '%s'", st.TripID)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id")
		}
		if !p.stops[st.StopID] {
			return fmt.Errorf("unknown stop_id: '%s'", st.StopID)
		}

		if st.ArrivalTime == "" && st.DepartureTime == "" {
			return fmt.Errorf("missing arrival_time and departure_time")
		}
		if st.ArrivalTime == "" {
			st.ArrivalTime = st.DepartureTime
		}
		if st.DepartureTime == "" {
			st.DepartureTime = st.ArrivalTime
		}

		arrival, err := parseStopTimeTime(st.ArrivalTime)
		if err != nil {
			return errors.Wrap(err, "parsing arrival_time")
		}
		departure, err := parseStopTimeTime(st.DepartureTime)
		if err != nil {
			return errors.Wrap(err, "parsing departure_time")
		}

		// Fixed width, so string comparison works
		if departure < arrival {
			return fmt.Errorf("departure_time before arrival_time")
		}

		seen := sequences[st.TripID]
		if seen == nil {
			seen = map[uint32]bool{}
			sequences[st.TripID] = seen
		}
		if seen[st.StopSequence] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", st.StopSequence, st.TripID)
		}
		seen[st.StopSequence] = true

		p.arrival.cover(arrival, arrival)
		p.departure.cover(departure, departure)

		return errors.Wrap(p.writer.WriteStopTime(model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			Headsign:     st.Headsign,
			StopSequence: st.StopSequence,
			Arrival:      arrival,
			Departure:    departure,
		}), "writing stop_time")
	})
	if err != nil {
		return err
	}

	if err := p.writer.EndStopTimes(); err != nil {
		return fmt.Errorf("ending stop times: %w", err)
	}
	return nil
}
