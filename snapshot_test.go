package transit_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/planner"
	"tidbyt.dev/transit/testutil"
)

// Central Station has two platforms. Line L runs from platform 1 via
// Park Street to Harbor, every weekday morning of 2024.
func cityFeedFiles() map[string][]string {
	return map[string][]string{
		"agency.txt": {
			"agency_timezone,agency_name,agency_url",
			"America/New_York,City Transit,http://example.com",
		},
		"calendar.txt": {
			"service_id,start_date,end_date,monday,tuesday,wednesday,thursday,friday,saturday,sunday",
			"wkd,20240101,20241231,1,1,1,1,1,0,0",
		},
		"routes.txt": {
			"route_id,route_short_name,route_long_name,route_type",
			"L,L,Harbor Line,1",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station,stop_code",
			"cs,Central Station,40.7500,-73.9900,1,,",
			"cs1,Central Station,40.7501,-73.9901,0,cs,101",
			"cs2,Central Station,40.7499,-73.9899,0,cs,102",
			"pk,Park Street,40.7600,-73.9800,0,,200",
			"hb,Harbor,40.7700,-73.9700,0,,300",
		},
		"trips.txt": {
			"service_id,trip_id,route_id,trip_headsign",
			"wkd,l1,L,Harbor",
			"wkd,l2,L,Harbor",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,departure_time,arrival_time",
			"l1,cs1,1,08:10:00,08:10:00",
			"l1,pk,2,08:20:00,08:20:00",
			"l1,hb,3,08:30:00,08:30:00",
			"l2,cs1,1,08:40:00,08:40:00",
			"l2,pk,2,08:50:00,08:50:00",
			"l2,hb,3,09:00:00,09:00:00",
		},
	}
}

func stopIDs(stops []model.Stop) []string {
	ids := make([]string, 0, len(stops))
	for _, s := range stops {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestSnapshotSearchStopsByName(t *testing.T) {
	s := testutil.BuildSnapshot(t, cityFeedFiles())

	stops, err := s.SearchStopsByName("central station", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"cs", "cs1", "cs2"}, stopIDs(stops))

	stops, err = s.SearchStopsByName("Park", 0)
	require.NoError(t, err)
	require.NotEmpty(t, stops)
	assert.Equal(t, "pk", stops[0].ID)

	stops, err = s.SearchStopsByName("101", 0)
	require.NoError(t, err)
	require.NotEmpty(t, stops)
	assert.Equal(t, "cs1", stops[0].ID)

	stops, err = s.SearchStopsByName("central", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"cs"}, stopIDs(stops))

	stops, err = s.SearchStopsByName("xyzzy", 0)
	require.NoError(t, err)
	assert.Empty(t, stops)

	for _, tc := range []struct {
		query string
		limit int
	}{
		{"", 0},
		{"   ", 3},
		{"park", -1},
	} {
		_, err := s.SearchStopsByName(tc.query, tc.limit)
		assert.ErrorIs(t, err, model.ErrInvalidInput, "%q %d", tc.query, tc.limit)
	}
}

func TestSnapshotFindStopsNearby(t *testing.T) {
	s := testutil.BuildSnapshot(t, cityFeedFiles())

	nearby, err := s.FindStopsNearby(40.75, -73.99, 0.1, 0)
	require.NoError(t, err)
	require.Equal(t, 3, len(nearby))
	assert.Equal(t, "cs", nearby[0].Stop.ID)
	assert.InDelta(t, 0, nearby[0].DistanceKm, 1e-9)
	assert.ElementsMatch(t, []string{"cs1", "cs2"}, []string{nearby[1].Stop.ID, nearby[2].Stop.ID})
	assert.LessOrEqual(t, nearby[1].DistanceKm, nearby[2].DistanceKm)

	nearby, err = s.FindStopsNearby(40.75, -73.99, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, len(nearby))

	// Half the earth's circumference reaches every stop
	nearby, err = s.FindStopsNearby(-40.75, 106.01, 20100, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, len(nearby))

	nearby, err = s.FindStopsNearby(0, 0, 1e11, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, len(nearby))

	nearby, err = s.FindStopsNearby(0, 0, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, nearby)

	for _, tc := range []struct {
		lat, lon, radius float64
		limit            int
	}{
		{91, 0, 1, 0},
		{-90.5, 0, 1, 0},
		{0, 180.1, 1, 0},
		{0, -181, 1, 0},
		{math.NaN(), 0, 1, 0},
		{0, math.NaN(), 1, 0},
		{0, 0, -1, 0},
		{0, 0, math.NaN(), 0},
		{0, 0, math.Inf(1), 0},
		{0, 0, math.Inf(-1), 0},
		{0, 0, 1, -1},
	} {
		_, err := s.FindStopsNearby(tc.lat, tc.lon, tc.radius, tc.limit)
		assert.ErrorIs(t, err, model.ErrInvalidInput, "%+v", tc)
	}
}

func TestSnapshotLookups(t *testing.T) {
	s := testutil.BuildSnapshot(t, cityFeedFiles())

	stop, err := s.Stop("pk")
	require.NoError(t, err)
	assert.Equal(t, "Park Street", stop.Name)

	trip, err := s.Trip("l1")
	require.NoError(t, err)
	assert.Equal(t, "L", trip.RouteID)

	route, err := s.Route("L")
	require.NoError(t, err)
	assert.Equal(t, "Harbor Line", route.LongName)

	_, err = s.Stop("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Trip("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Route("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSnapshotPlanJourney(t *testing.T) {
	s := testutil.BuildSnapshot(t, cityFeedFiles())
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Monday
	departAfter := time.Date(2024, 3, 4, 8, 0, 0, 0, tz)

	// From the station, boarding at its platform
	res, err := s.PlanJourney(context.Background(), "cs", "hb", departAfter, planner.DefaultConstraints(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Journeys)

	j := res.Journeys[0]
	require.Equal(t, 1, len(j.Legs))
	ride := j.Legs[0].(*planner.Ride)
	assert.Equal(t, "cs1", ride.BoardStop.ID)
	assert.Equal(t, "hb", ride.AlightStop.ID)
	assert.Equal(t, "l1", ride.TripID)
	assert.Equal(t, "Harbor", ride.Headsign)
	assert.Equal(t, 2, ride.Stops)
	assert.True(t, time.Date(2024, 3, 4, 8, 10, 0, 0, tz).Equal(j.Departure))
	assert.True(t, time.Date(2024, 3, 4, 8, 30, 0, 0, tz).Equal(j.Arrival))
	assert.Equal(t, 20*time.Minute, j.Duration)
	assert.Equal(t, 0, j.Transfers)
	assert.NotEmpty(t, j.ID)

	// Identical queries yield identical journeys
	again, err := s.PlanJourney(context.Background(), "cs", "hb", departAfter, planner.DefaultConstraints(), nil)
	require.NoError(t, err)
	assert.Equal(t, res.Journeys[0].ID, again.Journeys[0].ID)

	// No weekend service, so Saturday's query rides on Monday
	res, err = s.PlanJourney(context.Background(), "cs", "hb", time.Date(2024, 3, 9, 8, 0, 0, 0, tz), planner.DefaultConstraints(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Journeys)
	assert.True(t, time.Date(2024, 3, 11, 8, 10, 0, 0, tz).Equal(res.Journeys[0].Departure))

	// Unknown stops and bad constraints
	_, err = s.PlanJourney(context.Background(), "nope", "hb", departAfter, planner.DefaultConstraints(), nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.PlanJourney(context.Background(), "cs", "nope", departAfter, planner.DefaultConstraints(), nil)
	assert.ErrorIs(t, err, model.ErrNotFound)

	bad := planner.DefaultConstraints()
	bad.MaxTransfers = -1
	_, err = s.PlanJourney(context.Background(), "cs", "hb", departAfter, bad, nil)
	assert.ErrorIs(t, err, model.ErrInvalidConstraint)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	// Overlays are tied to the snapshot they were compiled for
	other := testutil.BuildSnapshot(t, cityFeedFiles())
	_, err = s.PlanJourney(context.Background(), "cs", "hb", departAfter, planner.DefaultConstraints(), other.Overlay(nil))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestBuildSnapshotOptions(t *testing.T) {
	opts := transit.DefaultBuildOptions()
	opts.Graph.WalkRadiusKm = 2
	s := testutil.BuildSnapshotWithOptions(t, cityFeedFiles(), opts)

	// Park Street to Harbor is about 1.4km, in reach of a walk
	pk, ok := s.Graph.StopIndex("pk")
	require.True(t, ok)
	found := false
	for _, fp := range s.Graph.Footpaths(pk) {
		if s.Graph.Stop(fp.To).ID == "hb" {
			found = true
		}
	}
	assert.True(t, found)

	// Invalid graph options fail the build
	opts.Graph.WalkRadiusKm = -1
	_, err := transit.BuildSnapshot(testutil.LoadFeed(t, "memory", testutil.BuildZip(t, testutil.FillFeed(cityFeedFiles()))), opts)
	assert.Error(t, err)
}
