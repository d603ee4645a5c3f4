package spatial

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit/model"
)

func TestHaversine(t *testing.T) {
	var loc = map[string]model.Stop{
		"nyc":    {ID: "nyc", Lat: 40.700000, Lon: -74.100000},
		"philly": {ID: "philly", Lat: 40.000000, Lon: -75.200000},
		"sf":     {ID: "sf", Lat: 37.800000, Lon: -122.500000},
		"la":     {ID: "la", Lat: 34.000000, Lon: -118.500000},
		"sto":    {ID: "sto", Lat: 59.300000, Lon: 17.900000},
		"lon":    {ID: "lon", Lat: 51.500000, Lon: -0.200000},
		"rey":    {ID: "rey", Lat: 64.100000, Lon: -21.900000},
	}

	for _, tc := range []struct {
		a, b string
		km   float64
	}{
		{"nyc", "philly", 121.438585},
		{"nyc", "sf", 4127.311071},
		{"nyc", "sto", 6318.636281},
		{"philly", "lon", 5694.234270},
		{"sf", "la", 555.165790},
		{"la", "rey", 6952.152842},
		{"sto", "lon", 1426.989197},
		{"lon", "rey", 1882.845837},
	} {
		a, b := loc[tc.a], loc[tc.b]
		assert.InDelta(t, tc.km, Haversine(a.Lat, a.Lon, b.Lat, b.Lon), 0.001, tc.a+"-"+tc.b)
		assert.InDelta(t, tc.km, Haversine(b.Lat, b.Lon, a.Lat, a.Lon), 0.001, tc.b+"-"+tc.a)
	}

	for _, stop := range loc {
		assert.Equal(t, 0.0, Haversine(stop.Lat, stop.Lon, stop.Lat, stop.Lon))
	}
}

func TestFindNearby(t *testing.T) {
	stops := []model.Stop{
		{ID: "centraal", Lat: 52.378900, Lon: 4.900500},
		{ID: "dam", Lat: 52.373100, Lon: 4.892600},
		{ID: "rembrandtplein", Lat: 52.366300, Lon: 4.896600},
		{ID: "zuid", Lat: 52.339000, Lon: 4.873000},
		{ID: "utrecht", Lat: 52.089400, Lon: 5.110100},
	}
	idx := New(stops, 0)
	assert.Equal(t, 5, idx.Len())

	ids := func(ns []Neighbor) []string {
		out := []string{}
		for _, n := range ns {
			out = append(out, n.Stop.ID)
		}
		return out
	}

	// Zero radius at a stop's own coordinates finds it
	got := idx.FindNearby(52.378900, 4.900500, 0, 0)
	assert.Equal(t, []string{"centraal"}, ids(got))
	assert.Equal(t, 0.0, got[0].DistanceKm)

	got = idx.FindNearby(52.378900, 4.900500, 2, 0)
	assert.Equal(t, []string{"centraal", "dam", "rembrandtplein"}, ids(got))

	got = idx.FindNearby(52.378900, 4.900500, 2, 2)
	assert.Equal(t, []string{"centraal", "dam"}, ids(got))

	got = idx.FindNearby(52.378900, 4.900500, 50, 0)
	assert.Equal(t, []string{"centraal", "dam", "rembrandtplein", "zuid", "utrecht"}, ids(got))

	assert.Empty(t, idx.FindNearby(0, 0, 10, 0))
	assert.Empty(t, idx.FindNearby(52.378900, 4.900500, -1, 0))
}

func TestFindNearbyTieBreaksOnID(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "b", Lat: 10, Lon: 10},
		{ID: "a", Lat: 10, Lon: 10},
		{ID: "c", Lat: 10, Lon: 10},
	}, 1)

	got := idx.FindNearby(10, 10, 0.1, 0)
	require.Equal(t, 3, len(got))
	assert.Equal(t, "a", got[0].Stop.ID)
	assert.Equal(t, "b", got[1].Stop.ID)
	assert.Equal(t, "c", got[2].Stop.ID)
}

func TestFindNearbyAntimeridian(t *testing.T) {
	stops := []model.Stop{
		{ID: "east", Lat: -16.5, Lon: 179.99},
		{ID: "west", Lat: -16.5, Lon: -179.99},
		{ID: "far", Lat: -16.5, Lon: 170},
	}

	// Enough populated cells elsewhere that the query walks the
	// grid rather than scanning all cells.
	for i := 0; i < 500; i++ {
		stops = append(stops, model.Stop{ID: fmt.Sprintf("filler%d", i), Lat: float64(i%50) * 0.1, Lon: float64(i/50) * 0.1})
	}
	idx := New(stops, 1)

	got := idx.FindNearby(-16.5, 179.999, 5, 0)
	require.Equal(t, 2, len(got))
	assert.Equal(t, "east", got[0].Stop.ID)
	assert.Equal(t, "west", got[1].Stop.ID)

	got = idx.FindNearby(-16.5, -179.999, 5, 0)
	require.Equal(t, 2, len(got))
	assert.Equal(t, "west", got[0].Stop.ID)
	assert.Equal(t, "east", got[1].Stop.ID)
}

func TestFindNearbyUnboundedRadius(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "a", Lat: 40, Lon: -74},
		{ID: "b", Lat: -33.9, Lon: 151.2},
	}, 0)

	for _, radius := range []float64{20000, 1e11, math.MaxFloat64, math.Inf(1)} {
		got := idx.FindNearby(40, -74, radius, 0)
		assert.Equal(t, 2, len(got), "radius %g", radius)
	}
}

func TestFindNearbyNearPole(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "a", Lat: 89.99, Lon: 0},
		{ID: "b", Lat: 89.99, Lon: 180},
	}, 1)

	got := idx.FindNearby(89.99, 90, 5, 0)
	assert.Equal(t, 2, len(got))
}

// Compares the grid against a brute force scan over random points.
func TestFindNearbyMatchesBruteForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	stops := []model.Stop{}
	for i := 0; i < 2000; i++ {
		stops = append(stops, model.Stop{
			ID:  fmt.Sprintf("s%04d", i),
			Lat: 59.2 + rnd.Float64()*0.3,
			Lon: 17.8 + rnd.Float64()*0.4,
		})
	}
	idx := New(stops, 1)

	for q := 0; q < 50; q++ {
		lat := 59.2 + rnd.Float64()*0.3
		lon := 17.8 + rnd.Float64()*0.4
		radius := rnd.Float64() * 3

		expected := []string{}
		for _, s := range stops {
			if Haversine(lat, lon, s.Lat, s.Lon) <= radius {
				expected = append(expected, s.ID)
			}
		}
		sort.Strings(expected)

		got := idx.FindNearby(lat, lon, radius, 0)
		ids := []string{}
		for i, n := range got {
			assert.LessOrEqual(t, n.DistanceKm, radius)
			if i > 0 {
				assert.LessOrEqual(t, got[i-1].DistanceKm, n.DistanceKm)
			}
			ids = append(ids, n.Stop.ID)
		}
		sort.Strings(ids)
		assert.Equal(t, expected, ids)
	}
}
