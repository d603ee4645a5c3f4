package transit

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/feed"
	"tidbyt.dev/transit/metrics"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/parse"
	"tidbyt.dev/transit/planner"
	"tidbyt.dev/transit/realtime"
	"tidbyt.dev/transit/storage"
)

const (
	DefaultStaticRefreshInterval   = 12 * time.Hour
	DefaultRealtimeRefreshInterval = 30 * time.Second
	DefaultRealtimeTTL             = 1 * time.Minute
	DefaultRealtimeTimeout         = 30 * time.Second
	DefaultRealtimeMaxSize         = 1 << 20 // 1 MB
	DefaultStaticTimeout           = 60 * time.Second
	DefaultStaticRetries           = 2
	DefaultStaticMaxSize           = 800 << 20 // 800 MB
	DefaultKeepFeeds               = 2
)

// Snapshot and realtime data served together. Replaced as a whole.
type state struct {
	snapshot *Snapshot
	overlay  *realtime.Overlay
	feed     *realtime.Feed
}

// Manager keeps a Snapshot of a static feed, and a realtime overlay
// on top of it, up to date. Queries always see a consistent pair.
type Manager struct {
	StaticURL       string
	StaticHeaders   map[string]string
	RealtimeURLs    []string
	RealtimeHeaders map[string]string

	StaticRefreshInterval   time.Duration
	StaticTimeout           time.Duration
	StaticMaxSize           int
	RealtimeRefreshInterval time.Duration
	RealtimeTTL             time.Duration
	RealtimeTimeout         time.Duration
	RealtimeMaxSize         int

	// Number of parsed feeds retained in storage per URL.
	KeepFeeds int

	// Deadline applied to each PlanJourney call, if positive.
	QueryTimeout time.Duration

	BuildOptions BuildOptions
	Downloader   downloader.Downloader
	Logger       *slog.Logger
	Metrics      *metrics.Collector
	TimeNow      func() time.Time

	storage storage.Storage
	state   atomic.Pointer[state]
}

// Creates a new Manager on top of the given storage.
//
// By default, the manager uses an in memory cache for realtime data,
// but not for static schedules as these are persisted in storage.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		StaticRefreshInterval:   DefaultStaticRefreshInterval,
		StaticTimeout:           DefaultStaticTimeout,
		StaticMaxSize:           DefaultStaticMaxSize,
		RealtimeRefreshInterval: DefaultRealtimeRefreshInterval,
		RealtimeTTL:             DefaultRealtimeTTL,
		RealtimeTimeout:         DefaultRealtimeTimeout,
		RealtimeMaxSize:         DefaultRealtimeMaxSize,
		KeepFeeds:               DefaultKeepFeeds,

		BuildOptions: DefaultBuildOptions(),
		Downloader:   downloader.NewMemoryDownloader(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		TimeNow:      time.Now,

		storage: s,
	}
}

// Returns the published snapshot and the overlay compiled against
// it. The overlay is nil if no realtime data has been loaded.
func (m *Manager) Current() (*Snapshot, *realtime.Overlay, error) {
	st := m.state.Load()
	if st == nil {
		return nil, nil, model.ErrFeedUnavailable
	}
	return st.snapshot, st.overlay, nil
}

// Swaps in a new snapshot. The most recent realtime feed, if any, is
// recompiled against it.
func (m *Manager) Publish(s *Snapshot) {
	for {
		cur := m.state.Load()
		next := &state{snapshot: s}
		if cur != nil && cur.feed != nil {
			next.feed = cur.feed
			next.overlay = s.Overlay(cur.feed)
		}
		if m.state.CompareAndSwap(cur, next) {
			break
		}
	}

	m.Metrics.SetSnapshot(s.Graph.NumStops(), s.Graph.NumTrips())
}

// Downloads the static feed, and publishes it unless it's identical
// to what's already published. The previous snapshot keeps serving
// if anything goes wrong.
func (m *Manager) RefreshStatic(ctx context.Context) error {
	err := m.refreshStatic(ctx)
	if err != nil {
		m.Metrics.ObserveRefresh(metrics.FeedStatic, metrics.OutcomeError, m.TimeNow())
		m.Logger.Warn("static refresh failed", "url", m.StaticURL, "error", err)
	}
	return err
}

func (m *Manager) refreshStatic(ctx context.Context) error {
	if m.StaticURL == "" {
		return fmt.Errorf("no static URL configured: %w", model.ErrInvalidInput)
	}

	body, err := m.Downloader.Get(ctx, m.StaticURL, m.StaticHeaders, downloader.GetOptions{
		Cache:   false,
		Timeout: m.StaticTimeout,
		MaxSize: m.StaticMaxSize,
		Retries: DefaultStaticRetries,
	})
	if err != nil {
		return fmt.Errorf("downloading %s: %w", m.StaticURL, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	if cur := m.state.Load(); cur != nil && cur.snapshot.Metadata != nil && cur.snapshot.Metadata.Hash == hash {
		m.Metrics.ObserveRefresh(metrics.FeedStatic, metrics.OutcomeUnchanged, m.TimeNow())
		m.Logger.Debug("static feed unchanged", "hash", hash)
		return nil
	}

	metadata, err := m.store(hash, body)
	if err != nil {
		return err
	}

	snapshot, err := m.load(metadata)
	if err != nil {
		return err
	}
	m.Publish(snapshot)

	m.Metrics.ObserveRefresh(metrics.FeedStatic, metrics.OutcomeOK, m.TimeNow())
	m.Logger.Info(
		"static feed published",
		"url", metadata.URL,
		"hash", hash,
		"stops", snapshot.Graph.NumStops(),
		"trips", snapshot.Graph.NumTrips(),
		"calendar_start", metadata.CalendarStartDate,
		"calendar_end", metadata.CalendarEndDate,
	)

	if err := m.prune(metadata); err != nil {
		m.Logger.Warn("pruning old feeds failed", "error", err)
	}

	return nil
}

// Parses the feed into storage, unless a feed with the same hash is
// already there.
func (m *Manager) store(hash string, body []byte) (*storage.FeedMetadata, error) {
	existing, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	for _, f := range existing {
		if f.URL == m.StaticURL {
			return f, nil
		}
	}

	if len(existing) > 0 {
		// In storage already, but for a different URL. Add
		// a metadata record for this URL.
		metadata := *existing[0]
		metadata.URL = m.StaticURL
		metadata.RetrievedAt = m.TimeNow().UTC()
		if err := m.storage.WriteFeedMetadata(&metadata); err != nil {
			return nil, fmt.Errorf("writing metadata: %w", err)
		}
		return &metadata, nil
	}

	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}
	// ParseStatic closes the writer on success.
	metadata, err := parse.ParseStatic(writer, body)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	metadata.Hash = hash
	metadata.URL = m.StaticURL
	metadata.RetrievedAt = m.TimeNow().UTC()
	if err := m.storage.WriteFeedMetadata(metadata); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	return metadata, nil
}

func (m *Manager) load(metadata *storage.FeedMetadata) (*Snapshot, error) {
	reader, err := m.storage.GetReader(metadata.Hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}
	pf, err := feed.Read(reader)
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	snapshot, err := BuildSnapshot(pf, m.BuildOptions)
	if err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}
	snapshot.Metadata = metadata
	return snapshot, nil
}

// Drops all but the KeepFeeds most recent feeds for the static URL.
func (m *Manager) prune(current *storage.FeedMetadata) error {
	if m.KeepFeeds <= 0 {
		return nil
	}
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: current.URL})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}

	errs := []error{}
	kept := 0
	for _, f := range feeds {
		if f.Hash == current.Hash || kept < m.KeepFeeds-1 {
			if f.Hash != current.Hash {
				kept++
			}
			continue
		}
		if err := m.storage.DeleteFeed(f.URL, f.Hash); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", f.Hash, err))
			continue
		}
		m.Logger.Debug("deleted old feed", "url", f.URL, "hash", f.Hash)
	}
	return errors.Join(errs...)
}

// Publishes the most recently retrieved feed in storage that is
// active at the given time. Useful to start serving before the first
// download completes.
func (m *Manager) LoadLatest(now time.Time) error {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: m.StaticURL})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}

	for _, f := range feeds {
		ok, err := feedActive(f, now)
		if err != nil {
			return fmt.Errorf("checking if feed is active: %w", err)
		}
		if !ok {
			continue
		}

		snapshot, err := m.load(f)
		if err != nil {
			return err
		}
		m.Publish(snapshot)
		m.Logger.Info("stored feed published", "url", f.URL, "hash", f.Hash)
		return nil
	}

	return fmt.Errorf("no feed active at %s: %w", now.Format(time.RFC3339), model.ErrFeedUnavailable)
}

func feedActive(f *storage.FeedMetadata, now time.Time) (bool, error) {
	tz, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return false, fmt.Errorf("loading timezone: %w", err)
	}

	today := now.In(tz).Format("20060102")
	if f.CalendarStartDate > today {
		return false, nil
	}
	if f.CalendarEndDate < today {
		return false, nil
	}
	return true, nil
}

// Downloads all realtime feeds and swaps in a new overlay.
func (m *Manager) RefreshRealtime(ctx context.Context) error {
	err := m.refreshRealtime(ctx)
	if err != nil {
		m.Metrics.ObserveRefresh(metrics.FeedRealtime, metrics.OutcomeError, m.TimeNow())
		m.Logger.Warn("realtime refresh failed", "error", err)
	}
	return err
}

func (m *Manager) refreshRealtime(ctx context.Context) error {
	cur := m.state.Load()
	if cur == nil {
		return model.ErrFeedUnavailable
	}
	if len(m.RealtimeURLs) == 0 {
		return nil
	}

	feeds := make([][]byte, 0, len(m.RealtimeURLs))
	for _, url := range m.RealtimeURLs {
		data, err := m.Downloader.Get(ctx, url, m.RealtimeHeaders, downloader.GetOptions{
			Cache:    true,
			CacheTTL: m.RealtimeTTL,
			Timeout:  m.RealtimeTimeout,
			MaxSize:  m.RealtimeMaxSize,
		})
		if err != nil {
			return fmt.Errorf("downloading %s: %w", url, err)
		}
		feeds = append(feeds, data)
	}

	parsed, err := parse.ParseRealtime(ctx, feeds)
	if err != nil {
		return fmt.Errorf("parsing realtime: %w", err)
	}
	rt := NewRealtimeFeed(cur.snapshot, parsed)

	// A new snapshot may have been published meanwhile.
	var overlay *realtime.Overlay
	for {
		cur = m.state.Load()
		overlay = cur.snapshot.Overlay(rt)
		if m.state.CompareAndSwap(cur, &state{snapshot: cur.snapshot, overlay: overlay, feed: rt}) {
			break
		}
	}

	m.Metrics.ObserveRefresh(metrics.FeedRealtime, metrics.OutcomeOK, m.TimeNow())
	m.Metrics.SetRealtime(overlay.NumTrips(), overlay.NumCanceled())
	m.Logger.Debug(
		"realtime overlay published",
		"timestamp", rt.Timestamp,
		"delays", len(rt.Delays),
		"delayed_trips", overlay.NumTrips(),
		"canceled_trips", overlay.NumCanceled(),
	)
	return nil
}

// Serves stored data if possible, then refreshes static and realtime
// data on their intervals until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.state.Load() == nil {
		err := m.LoadLatest(m.TimeNow())
		if err != nil && !errors.Is(err, model.ErrFeedUnavailable) {
			m.Logger.Warn("loading stored feed failed", "error", err)
		}
	}
	m.RefreshStatic(ctx)
	if m.state.Load() != nil {
		m.RefreshRealtime(ctx)
	}

	staticInterval := m.StaticRefreshInterval
	if staticInterval <= 0 {
		staticInterval = DefaultStaticRefreshInterval
	}
	staticTicker := time.NewTicker(staticInterval)
	defer staticTicker.Stop()

	var realtimeC <-chan time.Time
	if len(m.RealtimeURLs) > 0 {
		realtimeInterval := m.RealtimeRefreshInterval
		if realtimeInterval <= 0 {
			realtimeInterval = DefaultRealtimeRefreshInterval
		}
		realtimeTicker := time.NewTicker(realtimeInterval)
		defer realtimeTicker.Stop()
		realtimeC = realtimeTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-staticTicker.C:
			m.RefreshStatic(ctx)
		case <-realtimeC:
			if m.state.Load() != nil {
				m.RefreshRealtime(ctx)
			}
		}
	}
}

func (m *Manager) SearchStopsByName(query string, limit int) ([]model.Stop, error) {
	start := time.Now()
	s, _, err := m.Current()
	var stops []model.Stop
	if err == nil {
		stops, err = s.SearchStopsByName(query, limit)
	}
	m.Metrics.ObserveQuery("search", time.Since(start), err)
	return stops, err
}

func (m *Manager) FindStopsNearby(lat, lon, radiusKm float64, limit int) ([]NearbyStop, error) {
	start := time.Now()
	s, _, err := m.Current()
	var stops []NearbyStop
	if err == nil {
		stops, err = s.FindStopsNearby(lat, lon, radiusKm, limit)
	}
	m.Metrics.ObserveQuery("nearby", time.Since(start), err)
	return stops, err
}

// Plans against the current snapshot, with the current realtime
// overlay applied.
func (m *Manager) PlanJourney(
	ctx context.Context,
	origin string,
	destination string,
	departAfter time.Time,
	constraints planner.Constraints,
) (*planner.Result, error) {
	start := time.Now()

	s, overlay, err := m.Current()
	if err != nil {
		m.Metrics.ObservePlan(time.Since(start), 0, false, err)
		return nil, err
	}

	if m.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.QueryTimeout)
		defer cancel()
	}

	res, err := s.PlanJourney(ctx, origin, destination, departAfter, constraints, overlay)
	if err != nil {
		m.Metrics.ObservePlan(time.Since(start), 0, false, err)
		return nil, err
	}
	m.Metrics.ObservePlan(time.Since(start), res.Expansions, res.Truncated != nil, nil)
	return res, nil
}
