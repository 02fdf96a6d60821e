// Package csv implements a pull-based streaming CSV source for the pipeline.
// It reads one record at a time and never buffers the whole input, so
// multi-GB exports stream with bounded memory.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"hitchload/pkg/records"
)

// Options configures the reader. Zero values get sensible defaults.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimLeadingSpace trims leading whitespace from header cells and
	// values, matching the skip-initial-space behavior of the Databank
	// exports this tool consumes. Trailing whitespace is preserved; only
	// normalization decides what a value loses.
	TrimLeadingSpace bool
}

// RowShapeError reports a data row whose width differs from the header's.
// Per the pipeline contract this is a structural fault of the source file,
// fatal to the run, unlike an empty field value which is merely sparse.
type RowShapeError struct {
	Line int
	Want int
	Got  int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("csv: line %d: incorrect number of fields (expected %d, got %d)", e.Line, e.Want, e.Got)
}

// Reader streams records from one CSV input. It is not safe for concurrent
// use; each run owns its own Reader.
type Reader struct {
	cr      *csv.Reader
	opt     Options
	header  []string
	line    int
	started bool
}

// NewReader wraps r with a streaming CSV record reader.
func NewReader(r io.Reader, opt Options) *Reader {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.ReuseRecord = true
	// Width is enforced here with a typed error instead of csv.Reader's own
	// check, so callers can distinguish structure faults from parse faults.
	cr.FieldsPerRecord = -1
	return &Reader{cr: cr, opt: opt}
}

// Header returns the raw column names in file order, reading them from the
// input on first call. A UTF-8 BOM on the first cell is stripped.
func (r *Reader) Header() ([]string, error) {
	if r.started {
		return r.header, nil
	}
	row, err := r.cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	r.line = 1
	h := make([]string, len(row))
	for i, c := range row {
		if r.opt.TrimLeadingSpace {
			c = strings.TrimLeftFunc(c, unicode.IsSpace)
		}
		h[i] = c
	}
	r.header = StripHeaderBOM(h)
	r.started = true
	return r.header, nil
}

// Next returns the next data record keyed by raw header name, or io.EOF when
// the input is exhausted. A row with a different field count than the header
// yields a *RowShapeError.
func (r *Reader) Next() (records.Record, error) {
	if !r.started {
		if _, err := r.Header(); err != nil {
			return nil, err
		}
	}
	row, err := r.cr.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.line++
	if err != nil {
		return nil, fmt.Errorf("csv: line %d: %w", r.line, err)
	}
	if len(row) != len(r.header) {
		return nil, &RowShapeError{Line: r.line, Want: len(r.header), Got: len(row)}
	}

	rec := make(records.Record, len(row))
	for i, v := range row {
		if r.opt.TrimLeadingSpace {
			v = strings.TrimLeftFunc(v, unicode.IsSpace)
		}
		rec[r.header[i]] = v
	}
	return rec, nil
}

// Line returns the 1-based input line of the most recently read row.
func (r *Reader) Line() int { return r.line }
