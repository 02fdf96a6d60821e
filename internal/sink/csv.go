// Package sink serializes output records to delimited text and owns the
// temporary buffer file the hashed CSV is staged in before upload.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"

	"hitchload/pkg/records"
)

// CSVWriter writes output records as CSV in the column order fixed by the
// header resolver. Sparse fields become empty cells.
type CSVWriter struct {
	w    *csv.Writer
	keys []string
	row  []string
}

// NewCSVWriter returns a writer emitting to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the output header row and fixes the column order for
// every subsequent record.
func (c *CSVWriter) WriteHeader(keys []string) error {
	if c.keys != nil {
		return fmt.Errorf("sink: header already written")
	}
	c.keys = keys
	c.row = make([]string, len(keys))
	if err := c.w.Write(keys); err != nil {
		return fmt.Errorf("sink: write header: %w", err)
	}
	return nil
}

// Write writes one record in header order. Keys missing from rec are written
// as empty cells.
func (c *CSVWriter) Write(rec records.Record) error {
	if c.keys == nil {
		return fmt.Errorf("sink: Write before WriteHeader")
	}
	for i, k := range c.keys {
		c.row[i] = rec[k]
	}
	if err := c.w.Write(c.row); err != nil {
		return fmt.Errorf("sink: write record: %w", err)
	}
	return nil
}

// Flush flushes buffered rows to the underlying writer and reports any
// deferred write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}
