package parse

import (
	"fmt"
	"io"

	"tidbyt.dev/transit/model"
)

type tripRecord struct {
	ID          string `csv:"trip_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	Headsign    string `csv:"trip_headsign"`
	ShortName   string `csv:"trip_short_name"`
	DirectionID int8   `csv:"direction_id"`
}

func (p *staticParser) parseTrips(data io.Reader) error {
	if err := p.writer.BeginTrips(); err != nil {
		return fmt.Errorf("beginning trips: %w", err)
	}

	err := eachRecord(data, func(row int, t *tripRecord) error {
		if t.ID == "" {
			return fmt.Errorf("empty trip_id")
		}
		if p.trips[t.ID] {
			return fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		p.trips[t.ID] = true

		switch {
		case t.RouteID == "":
			return fmt.Errorf("empty route_id")
		case !p.routes[t.RouteID]:
			return fmt.Errorf("unknown route_id '%s'", t.RouteID)
		case !p.services[t.ServiceID]:
			return fmt.Errorf("unknown service_id '%s'", t.ServiceID)
		}

		// Journeys are grouped by (route, direction), so only
		// the two legal values make sense.
		if t.DirectionID != 0 && t.DirectionID != 1 {
			return fmt.Errorf("invalid direction_id '%d'", t.DirectionID)
		}

		return p.writer.WriteTrip(model.Trip{
			ID:          t.ID,
			RouteID:     t.RouteID,
			ServiceID:   t.ServiceID,
			Headsign:    t.Headsign,
			ShortName:   t.ShortName,
			DirectionID: t.DirectionID,
		})
	})
	if err != nil {
		return err
	}

	if err := p.writer.EndTrips(); err != nil {
		return fmt.Errorf("ending trips: %w", err)
	}
	return nil
}
