package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// Decodes the records of a CSV file one at a time. Rows are numbered
// from 1, not counting the header, and any error returned by fn is
// annotated with the row.
func eachRecord[T any](data io.Reader, fn func(row int, rec *T) error) error {
	row := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(rec *T) error {
		row++
		if err := fn(row, rec); err != nil {
			return errors.Wrapf(err, "row %d", row)
		}
		return nil
	})
	return err
}

// GTFS dates are YYYYMMDD.
func checkDate(field string, value string) error {
	if _, err := time.ParseInLocation("20060102", value, time.UTC); err != nil {
		return fmt.Errorf("parsing %s '%s': %w", field, value, err)
	}
	return nil
}

// Min/max tracking for fixed width strings, like dates and HHMMSS.
type span struct {
	min, max string
}

func (s *span) cover(lo, hi string) {
	if s.min == "" || lo < s.min {
		s.min = lo
	}
	if s.max == "" || hi > s.max {
		s.max = hi
	}
}
