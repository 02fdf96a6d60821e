// Package records defines the record type passed between the pipeline stages.
package records

// Record is one logical row keyed by column name. Input records are keyed by
// the raw source header; output records are keyed by the resolved output key.
type Record map[string]string

// Clone returns a shallow copy of the record. Cloning a nil record returns nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
