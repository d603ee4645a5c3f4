package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tidbyt.dev/transit/model"
)

func ids(stops []model.Stop) []string {
	out := []string{}
	for _, s := range stops {
		out = append(out, s.ID)
	}
	return out
}

func dutchStops() []model.Stop {
	return []model.Stop{
		{ID: "rtd", Name: "Rotterdam Centraal"},
		{ID: "asd", Name: "Amsterdam Centraal"},
		{ID: "ut", Name: "Utrecht Centraal"},
		{ID: "shl", Name: "Schiphol Airport"},
	}
}

func TestSearchCentraal(t *testing.T) {
	idx := New(dutchStops())

	got := idx.Search("centraal", 0)
	assert.ElementsMatch(t, []string{"rtd", "asd", "ut"}, ids(got))

	// Shorter name first within a tier
	assert.Equal(t, "ut", got[0].ID)

	got = idx.Search("CENTRAAL", 2)
	assert.Equal(t, 2, len(got))
	for _, s := range got {
		assert.Contains(t, []string{"rtd", "asd", "ut"}, s.ID)
	}
}

func TestSearchRanking(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "1", Name: "Central Park West"},
		{ID: "2", Name: "Park"},
		{ID: "3", Name: "Parkway"},
		{ID: "4", Name: "Parc Street"},
		{ID: "5", Name: "Ocean Avenue"},
	})

	// exact > prefix > substring > fuzzy
	assert.Equal(t, []string{"2", "3", "1", "4"}, ids(idx.Search("park", 0)))
}

func TestSearchRankingIgnoresFuzzyScoreOfOtherFields(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "p", Name: "Centraaal Long", Code: "CENTRAAL1"},
		{ID: "q", Name: "Centraalz"},
	})

	// Both are prefix matches, so the shorter name wins even though
	// p's name is also a close fuzzy match
	assert.Equal(t, []string{"q", "p"}, ids(idx.Search("centraal", 0)))
}

func TestSearchMatchesCodeAndDescription(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "a", Name: "Main St", Code: "1234"},
		{ID: "b", Name: "Elm St", Desc: "Near the old mill"},
	})

	assert.Equal(t, []string{"a"}, ids(idx.Search("1234", 0)))
	assert.Equal(t, []string{"b"}, ids(idx.Search("old mill", 0)))
}

func TestSearchNormalization(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "a", Name: "Zürich   Hauptbahnhof"},
		{ID: "b", Name: "São Paulo"},
		{ID: "c", Name: "Straße"},
	})

	assert.Equal(t, []string{"a"}, ids(idx.Search("zurich hauptbahnhof", 0)))
	assert.Equal(t, []string{"b"}, ids(idx.Search("  SAO  paulo ", 0)))
	assert.Equal(t, []string{"c"}, ids(idx.Search("STRASSE", 0)))
}

func TestSearchFuzzy(t *testing.T) {
	idx := New(dutchStops())

	// Typo in one token still matches
	assert.Equal(t, []string{"shl"}, ids(idx.Search("schipol", 0)))

	// Nothing close enough
	assert.Equal(t, []string{}, ids(idx.Search("xyzzy", 0)))
	assert.Equal(t, []string{}, ids(idx.Search("   ", 0)))
}

func TestSearchSkipsEntrances(t *testing.T) {
	idx := New([]model.Stop{
		{ID: "station", Name: "Union", LocationType: model.LocationTypeStation},
		{ID: "platform", Name: "Union", ParentStation: "station"},
		{ID: "entrance", Name: "Union", LocationType: model.LocationTypeEntranceExit},
		{ID: "node", Name: "Union", LocationType: model.LocationTypeGenericNode},
		{ID: "boarding", Name: "Union", LocationType: model.LocationTypeBoardingArea},
	})

	assert.Equal(t, []string{"platform", "station"}, ids(idx.Search("union", 0)))
}

func TestSimilarity(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		sim  float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "abd", 2.0 / 3},
		{"kitten", "sitting", 1 - 3.0/7},
		{"a", "", 0},
	} {
		assert.InDelta(t, tc.sim, similarity(tc.a, tc.b), 1e-9, tc.a+"/"+tc.b)
	}
}
