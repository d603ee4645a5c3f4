package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tidbyt.dev/transit/model"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	URL  string
	Hash string
}

type MemoryStorage struct {
	mutex    sync.RWMutex
	feeds    map[string]*MemoryStorageFeed
	metadata map[memoryMetadataKey]*FeedMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		feeds:    map[string]*MemoryStorageFeed{},
		metadata: map[memoryMetadataKey]*FeedMetadata{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	feeds := []*FeedMetadata{}
	for _, metadata := range s.metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.Hash != "" && metadata.Hash != filter.Hash {
			continue
		}
		m := *metadata
		feeds = append(feeds, &m)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m := *feed
	s.metadata[memoryMetadataKey{feed.URL, feed.Hash}] = &m
	return nil
}

func (s *MemoryStorage) DeleteFeed(url string, hash string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := memoryMetadataKey{url, hash}
	if _, found := s.metadata[key]; !found {
		return fmt.Errorf("feed %s (%s): %w", hash, url, model.ErrNotFound)
	}
	delete(s.metadata, key)

	// Parsed records may be shared by other URLs serving
	// identical content.
	for k := range s.metadata {
		if k.Hash == hash {
			return nil
		}
	}
	delete(s.feeds, hash)

	return nil
}

func (s *MemoryStorage) GetReader(hash string) (FeedReader, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	f, ok := s.feeds[hash]
	if !ok {
		return nil, fmt.Errorf("feed %s: %w", hash, model.ErrNotFound)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(hash string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f := &MemoryStorageFeed{}
	s.feeds[hash] = f

	return f, nil
}

// Holds all records of a single feed. Records are sorted when the
// writer is closed.
type MemoryStorageFeed struct {
	agencies      []model.Agency
	stops         []model.Stop
	routes        []model.Route
	trips         []model.Trip
	stopTimes     []model.StopTime
	calendars     []model.Calendar
	calendarDates []model.CalendarDate
	transfers     []model.Transfer
}

func (f *MemoryStorageFeed) WriteAgency(agency model.Agency) error {
	f.agencies = append(f.agencies, agency)
	return nil
}

func (f *MemoryStorageFeed) WriteStop(stop model.Stop) error {
	f.stops = append(f.stops, stop)
	return nil
}

func (f *MemoryStorageFeed) WriteRoute(route model.Route) error {
	f.routes = append(f.routes, route)
	return nil
}

func (f *MemoryStorageFeed) BeginTrips() error {
	return nil
}

func (f *MemoryStorageFeed) WriteTrip(trip model.Trip) error {
	f.trips = append(f.trips, trip)
	return nil
}

func (f *MemoryStorageFeed) EndTrips() error {
	return nil
}

func (f *MemoryStorageFeed) WriteCalendar(cal model.Calendar) error {
	f.calendars = append(f.calendars, cal)
	return nil
}

func (f *MemoryStorageFeed) WriteCalendarDate(cd model.CalendarDate) error {
	f.calendarDates = append(f.calendarDates, cd)
	return nil
}

func (f *MemoryStorageFeed) WriteTransfer(transfer model.Transfer) error {
	f.transfers = append(f.transfers, transfer)
	return nil
}

func (f *MemoryStorageFeed) BeginStopTimes() error {
	return nil
}

func (f *MemoryStorageFeed) WriteStopTime(stopTime model.StopTime) error {
	f.stopTimes = append(f.stopTimes, stopTime)
	return nil
}

func (f *MemoryStorageFeed) EndStopTimes() error {
	sort.SliceStable(f.stopTimes, func(i, j int) bool {
		cmp := strings.Compare(f.stopTimes[i].TripID, f.stopTimes[j].TripID)
		if cmp != 0 {
			return cmp < 0
		}
		return f.stopTimes[i].StopSequence < f.stopTimes[j].StopSequence
	})
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	sort.SliceStable(f.stops, func(i, j int) bool { return f.stops[i].ID < f.stops[j].ID })
	sort.SliceStable(f.routes, func(i, j int) bool { return f.routes[i].ID < f.routes[j].ID })
	sort.SliceStable(f.trips, func(i, j int) bool { return f.trips[i].ID < f.trips[j].ID })
	return nil
}

func (f *MemoryStorageFeed) Agencies() ([]model.Agency, error) {
	return append([]model.Agency{}, f.agencies...), nil
}

func (f *MemoryStorageFeed) Stops() ([]model.Stop, error) {
	return append([]model.Stop{}, f.stops...), nil
}

func (f *MemoryStorageFeed) Routes() ([]model.Route, error) {
	return append([]model.Route{}, f.routes...), nil
}

func (f *MemoryStorageFeed) Trips() ([]model.Trip, error) {
	return append([]model.Trip{}, f.trips...), nil
}

func (f *MemoryStorageFeed) StopTimes() ([]model.StopTime, error) {
	return append([]model.StopTime{}, f.stopTimes...), nil
}

func (f *MemoryStorageFeed) Calendars() ([]model.Calendar, error) {
	return append([]model.Calendar{}, f.calendars...), nil
}

func (f *MemoryStorageFeed) CalendarDates() ([]model.CalendarDate, error) {
	return append([]model.CalendarDate{}, f.calendarDates...), nil
}

func (f *MemoryStorageFeed) Transfers() ([]model.Transfer, error) {
	return append([]model.Transfer{}, f.transfers...), nil
}
