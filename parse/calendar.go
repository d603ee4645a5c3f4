package parse

import (
	"fmt"
	"io"
	"time"

	"tidbyt.dev/transit/model"
)

type calendarRecord struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

// Folds the seven day columns into a bitmask of 1<<time.Weekday.
func (c *calendarRecord) weekdays() (int8, error) {
	var mask int8
	for _, d := range []struct {
		day  time.Weekday
		flag int8
	}{
		{time.Monday, c.Monday},
		{time.Tuesday, c.Tuesday},
		{time.Wednesday, c.Wednesday},
		{time.Thursday, c.Thursday},
		{time.Friday, c.Friday},
		{time.Saturday, c.Saturday},
		{time.Sunday, c.Sunday},
	} {
		switch d.flag {
		case 0:
		case 1:
			mask |= 1 << d.day
		default:
			return 0, fmt.Errorf("invalid %s value '%d'", d.day, d.flag)
		}
	}
	return mask, nil
}

type calendarDateRecord struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

func (p *staticParser) parseCalendar(data io.Reader) error {
	seen := map[string]bool{}

	return eachRecord(data, func(row int, c *calendarRecord) error {
		if c.ServiceID == "" {
			return fmt.Errorf("empty service_id")
		}
		if seen[c.ServiceID] {
			return fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		seen[c.ServiceID] = true

		weekday, err := c.weekdays()
		if err != nil {
			return err
		}
		if err := checkDate("start_date", c.StartDate); err != nil {
			return err
		}
		if err := checkDate("end_date", c.EndDate); err != nil {
			return err
		}

		p.services[c.ServiceID] = true
		p.calendar.cover(c.StartDate, c.EndDate)

		return p.writer.WriteCalendar(model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
	})
}

// Services may be defined by calendar_dates.txt alone, so any service
// ID seen here is known from now on.
func (p *staticParser) parseCalendarDates(data io.Reader) error {
	seen := map[[2]string]bool{}

	return eachRecord(data, func(row int, cd *calendarDateRecord) error {
		exception := model.ExceptionType(cd.ExceptionType)
		if exception != model.ExceptionTypeAdded && exception != model.ExceptionTypeRemoved {
			return fmt.Errorf("illegal exception_type: '%d'", cd.ExceptionType)
		}
		if err := checkDate("date", cd.Date); err != nil {
			return err
		}

		key := [2]string{cd.ServiceID, cd.Date}
		if seen[key] {
			return fmt.Errorf("duplicate service/date: '%s-%s'", cd.Date, cd.ServiceID)
		}
		seen[key] = true

		p.services[cd.ServiceID] = true
		p.calendar.cover(cd.Date, cd.Date)

		return p.writer.WriteCalendarDate(model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: exception,
		})
	})
}
