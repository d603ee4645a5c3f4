package feed

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/transit/model"
)

// Resolves whether a service runs on a given date. Exceptions from
// calendar_dates.txt always take precedence over the weekly pattern
// in calendar.txt.
type ServiceCalendar struct {
	calendars  map[string]model.Calendar
	exceptions map[string]map[string]model.ExceptionType
	services   []string
}

func NewServiceCalendar(calendars []model.Calendar, dates []model.CalendarDate) *ServiceCalendar {
	c := &ServiceCalendar{
		calendars:  map[string]model.Calendar{},
		exceptions: map[string]map[string]model.ExceptionType{},
	}

	seen := map[string]bool{}
	for _, cal := range calendars {
		c.calendars[cal.ServiceID] = cal
		seen[cal.ServiceID] = true
	}
	for _, cd := range dates {
		byDate := c.exceptions[cd.ServiceID]
		if byDate == nil {
			byDate = map[string]model.ExceptionType{}
			c.exceptions[cd.ServiceID] = byDate
		}
		byDate[cd.Date] = cd.ExceptionType
		seen[cd.ServiceID] = true
	}

	for id := range seen {
		c.services = append(c.services, id)
	}
	sort.Strings(c.services)

	return c
}

// Reports whether serviceID runs on the date (year, month, day) of
// the given time, in the time's own location.
func (c *ServiceCalendar) IsActive(serviceID string, date time.Time) bool {
	return c.active(serviceID, date.Format("20060102"), date.Weekday())
}

// Same as IsActive, with date given as "YYYYMMDD".
func (c *ServiceCalendar) IsActiveOn(serviceID string, date string) (bool, error) {
	t, err := time.Parse("20060102", date)
	if err != nil {
		return false, fmt.Errorf("parsing date '%s': %w", date, model.ErrInvalidInput)
	}
	return c.active(serviceID, date, t.Weekday()), nil
}

func (c *ServiceCalendar) active(serviceID string, date string, weekday time.Weekday) bool {
	if ex, ok := c.exceptions[serviceID][date]; ok {
		return ex == model.ExceptionTypeAdded
	}

	cal, ok := c.calendars[serviceID]
	if !ok {
		return false
	}
	if date < cal.StartDate || date > cal.EndDate {
		return false
	}
	return cal.Weekday&(1<<weekday) != 0
}

// Lists services active on the given date, ordered by ID.
func (c *ServiceCalendar) ActiveServices(date time.Time) []string {
	d := date.Format("20060102")
	active := []string{}
	for _, id := range c.services {
		if c.active(id, d, date.Weekday()) {
			active = append(active, id)
		}
	}
	return active
}
