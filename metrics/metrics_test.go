package metrics

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit/model"
)

func TestOutcome(t *testing.T) {
	for _, tc := range []struct {
		err      error
		expected string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("stop 'x': %w", model.ErrNotFound), OutcomeNotFound},
		{fmt.Errorf("bad: %w", model.ErrInvalidConstraint), OutcomeInvalid},
		{fmt.Errorf("boom"), OutcomeError},
	} {
		assert.Equal(t, tc.expected, Outcome(tc.err))
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.ObserveQuery("search", time.Millisecond, nil)
	c.ObserveQuery("search", time.Millisecond, nil)
	c.ObserveQuery("nearby", time.Millisecond, model.ErrInvalidInput)
	c.ObservePlan(time.Millisecond, 100, false, nil)
	c.ObservePlan(time.Millisecond, 50000, true, nil)
	c.ObservePlan(time.Millisecond, 0, false, model.ErrNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Queries.WithLabelValues("search", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("nearby", OutcomeInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("plan", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("plan", OutcomeTruncated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("plan", OutcomeNotFound)))
	assert.Equal(t, 3, testutil.CollectAndCount(c.QueryDuration))

	at := time.Unix(1700000000, 0)
	c.ObserveRefresh(FeedStatic, OutcomeOK, at)
	c.ObserveRefresh(FeedStatic, OutcomeUnchanged, at.Add(time.Hour))
	c.ObserveRefresh(FeedRealtime, OutcomeError, at)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Refreshes.WithLabelValues(FeedStatic, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Refreshes.WithLabelValues(FeedRealtime, OutcomeError)))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(c.LastRefresh.WithLabelValues(FeedStatic)))

	c.SetSnapshot(12, 34)
	c.SetRealtime(5, 2)
	assert.Equal(t, 12.0, testutil.ToFloat64(c.SnapshotStops))
	assert.Equal(t, 34.0, testutil.ToFloat64(c.SnapshotTrips))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.RealtimeDelays))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RealtimeCanceled))

	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(`
# HELP transit_snapshot_stops Stops in the published snapshot.
# TYPE transit_snapshot_stops gauge
transit_snapshot_stops 12
`), "transit_snapshot_stops")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "transit_snapshot_trips 34")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveQuery("search", time.Second, nil)
	c.ObservePlan(time.Second, 1, false, nil)
	c.ObserveRefresh(FeedStatic, OutcomeOK, time.Now())
	c.SetSnapshot(1, 1)
	c.SetRealtime(1, 1)
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
