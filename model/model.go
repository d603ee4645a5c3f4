package model

import (
	"fmt"
	"strconv"
	"time"
)

// Holds all external facing types and constants.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

var routeTypeNames = map[RouteType]string{
	RouteTypeTram:       "tram",
	RouteTypeSubway:     "subway",
	RouteTypeRail:       "rail",
	RouteTypeBus:        "bus",
	RouteTypeFerry:      "ferry",
	RouteTypeCable:      "cable",
	RouteTypeAerial:     "aerial",
	RouteTypeFunicular:  "funicular",
	RouteTypeTrolleybus: "trolleybus",
	RouteTypeMonorail:   "monorail",
}

func (t RouteType) String() string {
	if name, ok := routeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("route_type(%d)", int(t))
}

// Reports whether t is one of the basic GTFS route types.
func (t RouteType) Valid() bool {
	_, ok := routeTypeNames[t]
	return ok
}

// Parses a route type from its name (as returned by String()) or
// from its numeric GTFS value.
func ParseRouteType(s string) (RouteType, error) {
	for t, name := range routeTypeNames {
		if name == s {
			return t, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown route type '%s': %w", s, ErrInvalidInput)
	}
	if !RouteType(n).Valid() {
		return 0, fmt.Errorf("unknown route type %d: %w", n, ErrInvalidInput)
	}
	return RouteType(n), nil
}

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

type TransferType int8

const (
	TransferTypeRecommended TransferType = 0
	TransferTypeTimed       TransferType = 1
	TransferTypeMinTime     TransferType = 2
	TransferTypeNotPossible TransferType = 3
)

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  LocationType
	ParentStation string
	PlatformCode  string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

// Display name of the route. Short name when available, long name
// otherwise.
func (r *Route) Name() string {
	if r.ShortName != "" {
		return r.ShortName
	}
	return r.LongName
}

type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string
	Departure    string
}

// A directed walking connection between two stops. MinTransferTime
// is in seconds, with 0 meaning unspecified.
type Transfer struct {
	FromStopID      string
	ToStopID        string
	Type            TransferType
	MinTransferTime int32
}

func (st *StopTime) ArrivalTime() time.Duration {
	return hhmmss(st.Arrival)
}

func (st *StopTime) DepartureTime() time.Duration {
	return hhmmss(st.Departure)
}

func hhmmss(s string) time.Duration {
	if len(s) != 6 {
		return 0
	}
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

// Formats an offset from service day midnight as "HHMMSS". Hours
// exceeding 23 are kept as is.
func FormatHHMMSS(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d%02d%02d", s/3600, (s/60)%60, s%60)
}
