package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tidbyt.dev/transit/storage"
)

// State carried between the files of a static feed. Later files are
// validated against the IDs collected from earlier ones.
type staticParser struct {
	writer storage.FeedWriter

	agencies map[string]bool
	timezone string
	routes   map[string]bool
	services map[string]bool
	trips    map[string]bool
	stops    map[string]bool

	calendar  span
	arrival   span
	departure span
}

func newStaticParser(writer storage.FeedWriter) *staticParser {
	return &staticParser{
		writer:   writer,
		agencies: map[string]bool{},
		routes:   map[string]bool{},
		services: map[string]bool{},
		trips:    map[string]bool{},
		stops:    map[string]bool{},
	}
}

type step struct {
	file     string
	required bool
	parse    func(io.Reader) error
}

// Order matters: each file may only reference IDs from files parsed
// before it.
func (p *staticParser) steps() []step {
	return []step{
		{"agency.txt", true, p.parseAgency},
		{"routes.txt", true, p.parseRoutes},
		{"calendar.txt", false, p.parseCalendar},
		{"calendar_dates.txt", false, p.parseCalendarDates},
		{"trips.txt", true, p.parseTrips},
		{"stops.txt", true, p.parseStops},
		{"transfers.txt", false, p.parseTransfers},
		{"stop_times.txt", true, p.parseStopTimes},
	}
}

func (p *staticParser) metadata() *storage.FeedMetadata {
	maxArrival, maxDeparture := p.arrival.max, p.departure.max
	if maxArrival == "" {
		maxArrival = "000000"
	}
	if maxDeparture == "" {
		maxDeparture = "000000"
	}
	return &storage.FeedMetadata{
		CalendarStartDate: p.calendar.min,
		CalendarEndDate:   p.calendar.max,
		Timezone:          p.timezone,
		MaxArrival:        maxArrival,
		MaxDeparture:      maxDeparture,
	}
}

// Parses a static GTFS zip archive into the writer, and closes it.
// Returns a partial FeedMetadata (timezone, calendar range and max
// stop times), with URL, hash and retrieval time left for the caller.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	// There should not be any subdirectories. But, some
	// agencies don't care.
	files := map[string]*zip.File{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files[path.Base(f.Name)] = f
	}

	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}

	p := newStaticParser(writer)
	steps := p.steps()
	for _, s := range steps {
		if s.required && files[s.file] == nil {
			return nil, fmt.Errorf("missing %s", s.file)
		}
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	for _, s := range steps {
		f := files[s.file]
		if f == nil {
			continue
		}
		if err := parseFile(f, s.parse); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", s.file, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return p.metadata(), nil
}

func parseFile(f *zip.File, parse func(io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	defer rc.Close()
	return parse(rc)
}
