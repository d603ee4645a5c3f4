package parse

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"tidbyt.dev/transit/model"
)

type routeRecord struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Desc      string `csv:"route_desc"`
	Type      string `csv:"route_type"`
	URL       string `csv:"route_url"`
	Color     string `csv:"route_color"`
	TextColor string `csv:"route_text_color"`
}

// Blank colors get the defaults given.
func routeColor(color string, fallback string) (string, bool) {
	if color == "" {
		return fallback, true
	}
	if len(color) != 6 {
		return "", false
	}
	if _, err := hex.DecodeString(color); err != nil {
		return "", false
	}
	return color, true
}

func (p *staticParser) parseRoutes(data io.Reader) error {
	return eachRecord(data, func(row int, r *routeRecord) error {
		if r.ID == "" {
			return fmt.Errorf("route has no route_id")
		}
		if p.routes[r.ID] {
			return fmt.Errorf("repeated route_id: '%s'", r.ID)
		}
		p.routes[r.ID] = true

		// agency_id is required when there's more than one
		// agency, and must be known if set.
		if r.AgencyID == "" && len(p.agencies) > 1 {
			return fmt.Errorf("route_id '%s' has no agency_id", r.ID)
		}
		if r.AgencyID != "" && !p.agencies[r.AgencyID] {
			return fmt.Errorf("unknown agency_id: '%s'", r.AgencyID)
		}

		if r.ShortName == "" && r.LongName == "" {
			return fmt.Errorf("route_id '%s' has no short_name or long_name", r.ID)
		}

		if r.Type == "" {
			return fmt.Errorf("route_id '%s' has no route_type", r.ID)
		}
		n, err := strconv.Atoi(r.Type)
		if err != nil {
			return fmt.Errorf("route_id '%s' has invalid route_type: %w", r.ID, err)
		}
		routeType := model.RouteType(n)
		// Extended route types are not supported
		if !routeType.Valid() {
			return fmt.Errorf("route_id '%s' has invalid route_type: %d", r.ID, n)
		}

		color, ok := routeColor(r.Color, "FFFFFF")
		if !ok {
			return fmt.Errorf("route_id '%s' has invalid route_color: %s", r.ID, r.Color)
		}
		textColor, ok := routeColor(r.TextColor, "000000")
		if !ok {
			return fmt.Errorf("route_id '%s' has invalid route_text_color: %s", r.ID, r.TextColor)
		}

		return p.writer.WriteRoute(model.Route{
			ID:        r.ID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Desc:      r.Desc,
			Type:      routeType,
			URL:       r.URL,
			Color:     color,
			TextColor: textColor,
		})
	})
}
