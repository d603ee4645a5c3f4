package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"tidbyt.dev/transit/model"
)

// Shared SQL implementation of Storage. All feeds live in the same
// set of tables, keyed by feed hash. The SQLite and Postgres
// backends differ in column types, placeholders and in how bulk
// inserts are done.

const (
	TripBatchSize     = 10000
	StopTimeBatchSize = 5000
)

type sqlDialect struct {
	name      string
	float     string
	timestamp string
	copyIn    bool
}

var (
	sqliteDialect = sqlDialect{
		name:      "sqlite3",
		float:     "REAL",
		timestamp: "TIMESTAMP",
	}
	psqlDialect = sqlDialect{
		name:      "postgres",
		float:     "DOUBLE PRECISION",
		timestamp: "TIMESTAMPTZ",
		copyIn:    true,
	}
)

// Rewrites ? placeholders to $n, if the dialect calls for it.
func (d sqlDialect) rebind(query string) string {
	if d.name != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var feedTables = []string{
	"agency",
	"stops",
	"routes",
	"trips",
	"stop_times",
	"calendar",
	"calendar_dates",
	"transfers",
}

func (d sqlDialect) schema() []string {
	return []string{`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at ` + d.timestamp + ` NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (hash, url)
);`, `
CREATE TABLE IF NOT EXISTS agency (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`, `
CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    lat ` + d.float + ` NOT NULL,
    lon ` + d.float + ` NOT NULL,
    url TEXT NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT NOT NULL,
    platform_code TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`, `
CREATE TABLE IF NOT EXISTS routes (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    description TEXT NOT NULL,
    type INTEGER NOT NULL,
    url TEXT NOT NULL,
    color TEXT NOT NULL,
    text_color TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`, `
CREATE TABLE IF NOT EXISTS trips (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    PRIMARY KEY (hash, id)
);`, `
CREATE TABLE IF NOT EXISTS stop_times (
    hash TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT NOT NULL,
    PRIMARY KEY (hash, trip_id, stop_sequence)
);`, `
CREATE TABLE IF NOT EXISTS calendar (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id)
);`, `
CREATE TABLE IF NOT EXISTS calendar_dates (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id, date)
);`, `
CREATE TABLE IF NOT EXISTS transfers (
    hash TEXT NOT NULL,
    from_stop_id TEXT NOT NULL,
    to_stop_id TEXT NOT NULL,
    transfer_type INTEGER NOT NULL,
    min_transfer_time INTEGER NOT NULL,
    PRIMARY KEY (hash, from_stop_id, to_stop_id)
);`,
	}
}

type sqlStorage struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLStorage(db *sql.DB, dialect sqlDialect) (*sqlStorage, error) {
	for _, query := range dialect.schema() {
		_, err := db.Exec(query)
		if err != nil {
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &sqlStorage{db: db, dialect: dialect}, nil
}

func (s *sqlStorage) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.dialect.rebind(query), args...)
}

func (s *sqlStorage) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.dialect.rebind(query), args...)
}

func (s *sqlStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

func (s *sqlStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_arrival,
    max_departure
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.URL != "" {
		conditions = append(conditions, "url = ?")
		params = append(params, filter.URL)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY retrieved_at DESC"

	rows, err := s.query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		var feed FeedMetadata
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.CalendarStartDate,
			&feed.CalendarEndDate,
			&feed.Timezone,
			&feed.MaxArrival,
			&feed.MaxDeparture,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}

	return feeds, rows.Err()
}

func (s *sqlStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_arrival,
    max_departure
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone,
    max_arrival = excluded.max_arrival,
    max_departure = excluded.max_departure`,
		feed.Hash,
		feed.URL,
		feed.RetrievedAt.UTC(),
		feed.CalendarStartDate,
		feed.CalendarEndDate,
		feed.Timezone,
		feed.MaxArrival,
		feed.MaxDeparture,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *sqlStorage) DeleteFeed(url string, hash string) error {
	res, err := s.exec(`DELETE FROM feed WHERE url = ? AND hash = ?`, url, hash)
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("feed %s (%s): %w", hash, url, model.ErrNotFound)
	}

	// Other URLs may still reference the same parsed records.
	var remaining int
	err = s.db.QueryRow(s.dialect.rebind(`SELECT COUNT(*) FROM feed WHERE hash = ?`), hash).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("counting feeds: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	return s.clearFeed(hash)
}

func (s *sqlStorage) clearFeed(hash string) error {
	for _, table := range feedTables {
		_, err := s.exec(`DELETE FROM `+table+` WHERE hash = ?`, hash)
		if err != nil {
			return fmt.Errorf("deleting %s records: %w", table, err)
		}
	}
	return nil
}

func (s *sqlStorage) GetReader(hash string) (FeedReader, error) {
	count := 0
	err := s.db.QueryRow(s.dialect.rebind(`SELECT COUNT(*) FROM agency WHERE hash = ?`), hash).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("looking up feed: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("feed %s: %w", hash, model.ErrNotFound)
	}

	return &sqlFeedReader{hash: hash, s: s}, nil
}

func (s *sqlStorage) GetWriter(hash string) (FeedWriter, error) {
	// In case feed already exists, delete all records
	err := s.clearFeed(hash)
	if err != nil {
		return nil, err
	}
	return &sqlFeedWriter{hash: hash, s: s}, nil
}

// Inserts rows in a single transaction. Postgres gets COPY, others
// a prepared INSERT.
func (s *sqlStorage) bulkInsert(table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var query string
	if s.dialect.copyIn {
		query = pq.CopyIn(table, columns...)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		query = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			table,
			strings.Join(columns, ", "),
			placeholders,
		)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.Exec(row...)
		if err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	if s.dialect.copyIn {
		_, err = stmt.Exec()
		if err != nil {
			return fmt.Errorf("executing copy: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

type sqlFeedWriter struct {
	hash string
	s    *sqlStorage

	agencies      []model.Agency
	stops         []model.Stop
	routes        []model.Route
	calendars     []model.Calendar
	calendarDates []model.CalendarDate
	transfers     []model.Transfer
	tripBuf       []model.Trip
	stopTimeBuf   []model.StopTime
}

func (w *sqlFeedWriter) WriteAgency(a model.Agency) error {
	w.agencies = append(w.agencies, a)
	return nil
}

func (w *sqlFeedWriter) WriteStop(stop model.Stop) error {
	w.stops = append(w.stops, stop)
	return nil
}

func (w *sqlFeedWriter) WriteRoute(route model.Route) error {
	w.routes = append(w.routes, route)
	return nil
}

func (w *sqlFeedWriter) WriteCalendar(cal model.Calendar) error {
	w.calendars = append(w.calendars, cal)
	return nil
}

func (w *sqlFeedWriter) WriteCalendarDate(cd model.CalendarDate) error {
	w.calendarDates = append(w.calendarDates, cd)
	return nil
}

func (w *sqlFeedWriter) WriteTransfer(t model.Transfer) error {
	w.transfers = append(w.transfers, t)
	return nil
}

func (w *sqlFeedWriter) BeginTrips() error {
	return nil
}

func (w *sqlFeedWriter) WriteTrip(trip model.Trip) error {
	w.tripBuf = append(w.tripBuf, trip)
	if len(w.tripBuf) >= TripBatchSize {
		return w.flushTrips()
	}
	return nil
}

func (w *sqlFeedWriter) EndTrips() error {
	return w.flushTrips()
}

func (w *sqlFeedWriter) flushTrips() error {
	rows := make([][]interface{}, 0, len(w.tripBuf))
	for _, t := range w.tripBuf {
		rows = append(rows, []interface{}{
			w.hash, t.ID, t.RouteID, t.ServiceID, t.Headsign, t.ShortName, t.DirectionID,
		})
	}
	err := w.s.bulkInsert(
		"trips",
		[]string{"hash", "id", "route_id", "service_id", "headsign", "short_name", "direction_id"},
		rows,
	)
	if err != nil {
		return fmt.Errorf("flushing trips: %w", err)
	}
	w.tripBuf = w.tripBuf[:0]
	return nil
}

func (w *sqlFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *sqlFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, stopTime)
	if len(w.stopTimeBuf) >= StopTimeBatchSize {
		return w.flushStopTimes()
	}
	return nil
}

func (w *sqlFeedWriter) EndStopTimes() error {
	return w.flushStopTimes()
}

func (w *sqlFeedWriter) flushStopTimes() error {
	rows := make([][]interface{}, 0, len(w.stopTimeBuf))
	for _, st := range w.stopTimeBuf {
		rows = append(rows, []interface{}{
			w.hash, st.TripID, st.StopID, st.StopSequence, st.Arrival, st.Departure, st.Headsign,
		})
	}
	err := w.s.bulkInsert(
		"stop_times",
		[]string{"hash", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time", "headsign"},
		rows,
	)
	if err != nil {
		return fmt.Errorf("flushing stop_times: %w", err)
	}
	w.stopTimeBuf = w.stopTimeBuf[:0]
	return nil
}

func weekdayFlags(weekday int8) []interface{} {
	flags := []interface{}{}
	for _, day := range []time.Weekday{
		time.Monday,
		time.Tuesday,
		time.Wednesday,
		time.Thursday,
		time.Friday,
		time.Saturday,
		time.Sunday,
	} {
		if weekday&(1<<day) != 0 {
			flags = append(flags, 1)
		} else {
			flags = append(flags, 0)
		}
	}
	return flags
}

func (w *sqlFeedWriter) Close() error {
	if err := w.flushTrips(); err != nil {
		return err
	}
	if err := w.flushStopTimes(); err != nil {
		return err
	}

	agencyRows := [][]interface{}{}
	for _, a := range w.agencies {
		agencyRows = append(agencyRows, []interface{}{w.hash, a.ID, a.Name, a.URL, a.Timezone})
	}

	stopRows := [][]interface{}{}
	for _, s := range w.stops {
		stopRows = append(stopRows, []interface{}{
			w.hash, s.ID, s.Code, s.Name, s.Desc, s.Lat, s.Lon, s.URL, int(s.LocationType), s.ParentStation, s.PlatformCode,
		})
	}

	routeRows := [][]interface{}{}
	for _, r := range w.routes {
		routeRows = append(routeRows, []interface{}{
			w.hash, r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc, int(r.Type), r.URL, r.Color, r.TextColor,
		})
	}

	calendarRows := [][]interface{}{}
	for _, c := range w.calendars {
		row := []interface{}{w.hash, c.ServiceID, c.StartDate, c.EndDate}
		calendarRows = append(calendarRows, append(row, weekdayFlags(c.Weekday)...))
	}

	calendarDateRows := [][]interface{}{}
	for _, cd := range w.calendarDates {
		calendarDateRows = append(calendarDateRows, []interface{}{w.hash, cd.ServiceID, cd.Date, int(cd.ExceptionType)})
	}

	transferRows := [][]interface{}{}
	for _, t := range w.transfers {
		transferRows = append(transferRows, []interface{}{w.hash, t.FromStopID, t.ToStopID, int(t.Type), t.MinTransferTime})
	}

	for _, batch := range []struct {
		table   string
		columns []string
		rows    [][]interface{}
	}{
		{"agency", []string{"hash", "id", "name", "url", "timezone"}, agencyRows},
		{"stops", []string{"hash", "id", "code", "name", "description", "lat", "lon", "url", "location_type", "parent_station", "platform_code"}, stopRows},
		{"routes", []string{"hash", "id", "agency_id", "short_name", "long_name", "description", "type", "url", "color", "text_color"}, routeRows},
		{"calendar", []string{"hash", "service_id", "start_date", "end_date", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}, calendarRows},
		{"calendar_dates", []string{"hash", "service_id", "date", "exception_type"}, calendarDateRows},
		{"transfers", []string{"hash", "from_stop_id", "to_stop_id", "transfer_type", "min_transfer_time"}, transferRows},
	} {
		if err := w.s.bulkInsert(batch.table, batch.columns, batch.rows); err != nil {
			return fmt.Errorf("writing %s: %w", batch.table, err)
		}
	}

	w.agencies = nil
	w.stops = nil
	w.routes = nil
	w.calendars = nil
	w.calendarDates = nil
	w.transfers = nil

	_, err := w.s.exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

type sqlFeedReader struct {
	hash string
	s    *sqlStorage
}

// Runs query with the feed hash as the sole parameter, calling scan
// once per row.
func (r *sqlFeedReader) each(query string, scan func(rows *sql.Rows) error) error {
	rows, err := r.s.query(query, r.hash)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *sqlFeedReader) Agencies() ([]model.Agency, error) {
	agencies := []model.Agency{}
	err := r.each(`SELECT id, name, url, timezone FROM agency WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		var a model.Agency
		if err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone); err != nil {
			return err
		}
		agencies = append(agencies, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading agencies: %w", err)
	}
	return agencies, nil
}

func (r *sqlFeedReader) Stops() ([]model.Stop, error) {
	stops := []model.Stop{}
	err := r.each(`
SELECT id, code, name, description, lat, lon, url, location_type, parent_station, platform_code
FROM stops WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		var s model.Stop
		var locationType int
		err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Desc, &s.Lat, &s.Lon, &s.URL, &locationType, &s.ParentStation, &s.PlatformCode)
		if err != nil {
			return err
		}
		s.LocationType = model.LocationType(locationType)
		stops = append(stops, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	return stops, nil
}

func (r *sqlFeedReader) Routes() ([]model.Route, error) {
	routes := []model.Route{}
	err := r.each(`
SELECT id, agency_id, short_name, long_name, description, type, url, color, text_color
FROM routes WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		var route model.Route
		var routeType int
		err := rows.Scan(&route.ID, &route.AgencyID, &route.ShortName, &route.LongName, &route.Desc, &routeType, &route.URL, &route.Color, &route.TextColor)
		if err != nil {
			return err
		}
		route.Type = model.RouteType(routeType)
		routes = append(routes, route)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	return routes, nil
}

func (r *sqlFeedReader) Trips() ([]model.Trip, error) {
	trips := []model.Trip{}
	err := r.each(`
SELECT id, route_id, service_id, headsign, short_name, direction_id
FROM trips WHERE hash = ? ORDER BY id`, func(rows *sql.Rows) error {
		var t model.Trip
		if err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName, &t.DirectionID); err != nil {
			return err
		}
		trips = append(trips, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}
	return trips, nil
}

func (r *sqlFeedReader) StopTimes() ([]model.StopTime, error) {
	stopTimes := []model.StopTime{}
	err := r.each(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign
FROM stop_times WHERE hash = ? ORDER BY trip_id, stop_sequence`, func(rows *sql.Rows) error {
		var st model.StopTime
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &st.Arrival, &st.Departure, &st.Headsign); err != nil {
			return err
		}
		stopTimes = append(stopTimes, st)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading stop_times: %w", err)
	}
	return stopTimes, nil
}

func (r *sqlFeedReader) Calendars() ([]model.Calendar, error) {
	calendars := []model.Calendar{}
	err := r.each(`
SELECT service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM calendar WHERE hash = ? ORDER BY service_id`, func(rows *sql.Rows) error {
		var c model.Calendar
		var flags [7]int
		err := rows.Scan(&c.ServiceID, &c.StartDate, &c.EndDate, &flags[0], &flags[1], &flags[2], &flags[3], &flags[4], &flags[5], &flags[6])
		if err != nil {
			return err
		}
		for i, day := range []time.Weekday{
			time.Monday,
			time.Tuesday,
			time.Wednesday,
			time.Thursday,
			time.Friday,
			time.Saturday,
			time.Sunday,
		} {
			if flags[i] == 1 {
				c.Weekday |= 1 << day
			}
		}
		calendars = append(calendars, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}
	return calendars, nil
}

func (r *sqlFeedReader) CalendarDates() ([]model.CalendarDate, error) {
	calendarDates := []model.CalendarDate{}
	err := r.each(`
SELECT service_id, date, exception_type
FROM calendar_dates WHERE hash = ? ORDER BY service_id, date`, func(rows *sql.Rows) error {
		var cd model.CalendarDate
		var exceptionType int
		if err := rows.Scan(&cd.ServiceID, &cd.Date, &exceptionType); err != nil {
			return err
		}
		cd.ExceptionType = model.ExceptionType(exceptionType)
		calendarDates = append(calendarDates, cd)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading calendar_dates: %w", err)
	}
	return calendarDates, nil
}

func (r *sqlFeedReader) Transfers() ([]model.Transfer, error) {
	transfers := []model.Transfer{}
	err := r.each(`
SELECT from_stop_id, to_stop_id, transfer_type, min_transfer_time
FROM transfers WHERE hash = ? ORDER BY from_stop_id, to_stop_id`, func(rows *sql.Rows) error {
		var t model.Transfer
		var transferType int
		if err := rows.Scan(&t.FromStopID, &t.ToStopID, &transferType, &t.MinTransferTime); err != nil {
			return err
		}
		t.Type = model.TransferType(transferType)
		transfers = append(transfers, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading transfers: %w", err)
	}
	return transfers, nil
}
