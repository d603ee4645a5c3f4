package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tidbyt.dev/transit/model"
)

const (
	FeedStatic   = "static"
	FeedRealtime = "realtime"

	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeUnchanged = "unchanged"
	OutcomeTruncated = "truncated"
	OutcomeInvalid   = "invalid"
	OutcomeNotFound  = "not_found"
)

// Prometheus metrics for the journey planner service. Each Collector
// has its own registry. All methods are no-ops on a nil Collector.
type Collector struct {
	reg *prometheus.Registry

	Queries       *prometheus.CounterVec   // kind, outcome
	QueryDuration *prometheus.HistogramVec // kind
	Expansions    prometheus.Histogram

	Refreshes   *prometheus.CounterVec // feed, outcome
	LastRefresh *prometheus.GaugeVec   // feed

	SnapshotStops prometheus.Gauge
	SnapshotTrips prometheus.Gauge

	RealtimeDelays   prometheus.Gauge
	RealtimeCanceled prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_queries_total",
			Help: "Queries served, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_query_duration_seconds",
			Help:    "Time spent serving queries.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"kind"}),
		Expansions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_planner_expansions",
			Help:    "Labels expanded per journey search.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_feed_refreshes_total",
			Help: "Feed refresh attempts, by feed and outcome.",
		}, []string{"feed", "outcome"}),
		LastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_feed_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}, []string{"feed"}),
		SnapshotStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_snapshot_stops",
			Help: "Stops in the published snapshot.",
		}),
		SnapshotTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_snapshot_trips",
			Help: "Trips in the published snapshot.",
		}),
		RealtimeDelays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_realtime_delayed_trips",
			Help: "Trips with realtime delays in the active overlay.",
		}),
		RealtimeCanceled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_realtime_canceled_trips",
			Help: "Canceled trips in the active overlay.",
		}),
	}

	reg.MustRegister(
		c.Queries, c.QueryDuration, c.Expansions,
		c.Refreshes, c.LastRefresh,
		c.SnapshotStops, c.SnapshotTrips,
		c.RealtimeDelays, c.RealtimeCanceled,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Maps a query error to an outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return OutcomeInvalid
	}
	return OutcomeError
}

func (c *Collector) ObserveQuery(kind string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(kind, Outcome(err)).Inc()
	c.QueryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (c *Collector) ObservePlan(elapsed time.Duration, expansions int, truncated bool, err error) {
	if c == nil {
		return
	}
	outcome := Outcome(err)
	if err == nil && truncated {
		outcome = OutcomeTruncated
	}
	c.Queries.WithLabelValues("plan", outcome).Inc()
	c.QueryDuration.WithLabelValues("plan").Observe(elapsed.Seconds())
	if err == nil {
		c.Expansions.Observe(float64(expansions))
	}
}

func (c *Collector) ObserveRefresh(feed string, outcome string, at time.Time) {
	if c == nil {
		return
	}
	c.Refreshes.WithLabelValues(feed, outcome).Inc()
	if outcome == OutcomeOK {
		c.LastRefresh.WithLabelValues(feed).Set(float64(at.Unix()))
	}
}

func (c *Collector) SetSnapshot(stops, trips int) {
	if c == nil {
		return
	}
	c.SnapshotStops.Set(float64(stops))
	c.SnapshotTrips.Set(float64(trips))
}

func (c *Collector) SetRealtime(delayedTrips, canceledTrips int) {
	if c == nil {
		return
	}
	c.RealtimeDelays.Set(float64(delayedTrips))
	c.RealtimeCanceled.Set(float64(canceledTrips))
}
