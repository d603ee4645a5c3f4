package parse

import (
	"fmt"
	"io"
	"time"

	"tidbyt.dev/transit/model"
)

type agencyRecord struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
}

// The feed's timezone comes from here. "If multiple agencies are
// specified in the dataset, each must have the same agency_timezone."
func (p *staticParser) parseAgency(data io.Reader) error {
	err := eachRecord(data, func(row int, a *agencyRecord) error {
		if a.Name == "" {
			return fmt.Errorf("missing agency_name")
		}
		if a.URL == "" {
			return fmt.Errorf("missing agency_url")
		}
		if a.Timezone == "" {
			return fmt.Errorf("missing agency_timezone")
		}

		if p.timezone == "" {
			if _, err := time.LoadLocation(a.Timezone); err != nil {
				return fmt.Errorf("agency_timezone '%s' is invalid: %w", a.Timezone, err)
			}
			p.timezone = a.Timezone
		} else if a.Timezone != p.timezone {
			return fmt.Errorf("multiple agency_timezone")
		}

		if p.agencies[a.ID] {
			return fmt.Errorf("duplicated agency_id: '%s'", a.ID)
		}
		p.agencies[a.ID] = true

		return p.writer.WriteAgency(model.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
		})
	})
	if err != nil {
		return err
	}

	if len(p.agencies) == 0 {
		return fmt.Errorf("no agency record found")
	}
	return nil
}
