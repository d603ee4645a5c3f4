package parse

import (
	"fmt"
	"io"

	"tidbyt.dev/transit/model"
)

type stopRecord struct {
	ID            string  `csv:"stop_id"`
	Code          string  `csv:"stop_code"`
	Name          string  `csv:"stop_name"`
	Desc          string  `csv:"stop_desc"`
	Lat           float64 `csv:"stop_lat"`
	Lon           float64 `csv:"stop_lon"`
	URL           string  `csv:"stop_url"`
	LocationType  int8    `csv:"location_type"`
	ParentStation string  `csv:"parent_station"`
	PlatformCode  string  `csv:"platform_code"`
}

func (r *stopRecord) check() error {
	if r.LocationType < 0 || r.LocationType > 4 {
		return fmt.Errorf("invalid location_type %d", r.LocationType)
	}
	lt := model.LocationType(r.LocationType)

	// Stations sit at the top of the hierarchy
	if lt == model.LocationTypeStation && r.ParentStation != "" {
		return fmt.Errorf("station has parent_station '%s'", r.ParentStation)
	}

	if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("stop_lat/stop_lon out of range")
	}

	// Name and coordinates are "[o]ptional for locations which
	// are generic nodes (location_type=3) or boarding areas
	// (location_type=4)" and otherwise required.
	if lt == model.LocationTypeGenericNode || lt == model.LocationTypeBoardingArea {
		return nil
	}
	if r.Name == "" {
		return fmt.Errorf("empty stop_name")
	}
	if r.Lat == 0 || r.Lon == 0 {
		return fmt.Errorf("empty stop_lat or stop_lon")
	}
	return nil
}

func (p *staticParser) parseStops(data io.Reader) error {
	parents := map[string]string{}

	err := eachRecord(data, func(row int, st *stopRecord) error {
		if st.ID == "" {
			return fmt.Errorf("empty stop_id")
		}
		if p.stops[st.ID] {
			return fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		p.stops[st.ID] = true

		if err := st.check(); err != nil {
			return fmt.Errorf("stop_id '%s': %w", st.ID, err)
		}
		if st.ParentStation != "" {
			parents[st.ID] = st.ParentStation
		}

		return p.writer.WriteStop(model.Stop{
			ID:            st.ID,
			Code:          st.Code,
			Name:          st.Name,
			Desc:          st.Desc,
			Lat:           st.Lat,
			Lon:           st.Lon,
			URL:           st.URL,
			LocationType:  model.LocationType(st.LocationType),
			ParentStation: st.ParentStation,
			PlatformCode:  st.PlatformCode,
		})
	})
	if err != nil {
		return err
	}

	// Parents may come after their children in the file
	for stopID, parentID := range parents {
		if !p.stops[parentID] {
			return fmt.Errorf("stop '%s' references unknown parent_station '%s'", stopID, parentID)
		}
	}
	return nil
}
