package feed

import (
	"fmt"

	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/storage"
)

// All tables of a single static GTFS feed, as handed over by the
// ingestion layer.
type ParsedFeed struct {
	// IANA timezone of the feed. If blank, the first agency's
	// timezone is used.
	Timezone string

	Agencies      []model.Agency
	Stops         []model.Stop
	Routes        []model.Route
	Trips         []model.Trip
	StopTimes     []model.StopTime
	Calendars     []model.Calendar
	CalendarDates []model.CalendarDate
	Transfers     []model.Transfer
}

// Loads every table of a stored feed.
func Read(reader storage.FeedReader) (*ParsedFeed, error) {
	var err error
	pf := &ParsedFeed{}

	if pf.Agencies, err = reader.Agencies(); err != nil {
		return nil, fmt.Errorf("reading agencies: %w", err)
	}
	if pf.Stops, err = reader.Stops(); err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	if pf.Routes, err = reader.Routes(); err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	if pf.Trips, err = reader.Trips(); err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}
	if pf.StopTimes, err = reader.StopTimes(); err != nil {
		return nil, fmt.Errorf("reading stop times: %w", err)
	}
	if pf.Calendars, err = reader.Calendars(); err != nil {
		return nil, fmt.Errorf("reading calendars: %w", err)
	}
	if pf.CalendarDates, err = reader.CalendarDates(); err != nil {
		return nil, fmt.Errorf("reading calendar dates: %w", err)
	}
	if pf.Transfers, err = reader.Transfers(); err != nil {
		return nil, fmt.Errorf("reading transfers: %w", err)
	}

	if len(pf.Agencies) > 0 {
		pf.Timezone = pf.Agencies[0].Timezone
	}

	return pf, nil
}
