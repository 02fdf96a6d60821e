// Package schema resolves a raw input header row against the field catalog.
//
// Resolution happens exactly once per run, from the first record's header,
// and produces an immutable value that is threaded through the pipeline. The
// old export script rebuilt process-wide lookup tables as a side effect of
// parsing; keeping the bindings run-scoped removes the hazard of stale
// bindings leaking across independent runs.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"hitchload/internal/catalog"
)

// Binding ties one accepted input column to its canonical field.
type Binding struct {
	// SourceHeader is the raw column name as it appeared in the input.
	SourceHeader string

	// Field is the canonical field the column resolved to.
	Field *catalog.Field

	// Occurrence is the 1-based position of this column among all columns
	// bound to the same field, in input order.
	Occurrence int

	// Occurrences is the total number of input columns bound to the field.
	Occurrences int
}

// OutputKey returns the output column name for this binding: the canonical
// field name, suffixed with ":<n>" (zero-based) when the field is bound by
// more than one input column.
func (b Binding) OutputKey() string {
	if b.Occurrences > 1 {
		return b.Field.Name + ":" + strconv.Itoa(b.Occurrence-1)
	}
	return b.Field.Name
}

// Resolution is the immutable outcome of resolving one header row.
type Resolution struct {
	// Headers lists the accepted raw headers in input order. Unrecognized
	// columns are excluded entirely.
	Headers []string

	// Keys lists the output keys in the same order as Headers. Keys are
	// unique within a resolution.
	Keys []string

	bindings map[string]Binding
}

// Binding returns the binding for a raw source header.
func (r *Resolution) Binding(sourceHeader string) (Binding, bool) {
	b, ok := r.bindings[sourceHeader]
	return b, ok
}

// DuplicateHeaderError reports an exact-string duplicate in the raw header
// row. This indicates a malformed source file, independent of aliasing.
type DuplicateHeaderError struct{ Header string }

func (e *DuplicateHeaderError) Error() string {
	return fmt.Sprintf("schema: duplicate header %q in input", e.Header)
}

// MissingMandatoryError reports mandatory catalog fields with no bound input
// column.
type MissingMandatoryError struct{ Fields []string }

func (e *MissingMandatoryError) Error() string {
	return "schema: missing mandatory headers: " + strings.Join(e.Fields, ", ")
}

// MandatoryCollisionError reports two distinct raw headers binding the same
// mandatory field. Taking the first occurrence silently would make the join
// key depend on column order, so this is a hard error.
type MandatoryCollisionError struct {
	Field   string
	Headers []string
}

func (e *MandatoryCollisionError) Error() string {
	return fmt.Sprintf("schema: mandatory field %q bound by multiple headers: %s",
		e.Field, strings.Join(e.Headers, ", "))
}

// Resolve binds each raw header to a canonical field and validates the
// resulting schema. Unrecognized headers are reported through warn (when
// non-nil) and dropped; they do not participate in any later stage.
//
// The occurrence index, and therefore the ":<n>" suffix, is determined
// strictly by left-to-right input order: resolving the same header row twice
// yields identical output.
func Resolve(cat *catalog.Catalog, headers []string, warn func(header string)) (*Resolution, error) {
	res := &Resolution{bindings: make(map[string]Binding, len(headers))}

	seenRaw := make(map[string]struct{}, len(headers))
	occurrences := make(map[string]int)      // field name -> column count
	boundBy := make(map[string][]string)     // field name -> raw headers
	order := make([]string, 0, len(headers)) // accepted raw headers

	for _, h := range headers {
		if _, dup := seenRaw[h]; dup {
			return nil, &DuplicateHeaderError{Header: h}
		}
		seenRaw[h] = struct{}{}

		f := cat.ResolveAlias(h)
		if f == nil {
			if warn != nil {
				warn(h)
			}
			continue
		}

		occurrences[f.Name]++
		boundBy[f.Name] = append(boundBy[f.Name], h)
		res.bindings[h] = Binding{
			SourceHeader: h,
			Field:        f,
			Occurrence:   occurrences[f.Name],
		}
		order = append(order, h)
	}

	var missing []string
	for _, f := range cat.MandatoryFields() {
		n := occurrences[f.Name]
		if n == 0 {
			missing = append(missing, f.Name)
			continue
		}
		if n > 1 {
			return nil, &MandatoryCollisionError{Field: f.Name, Headers: boundBy[f.Name]}
		}
	}
	if len(missing) > 0 {
		return nil, &MissingMandatoryError{Fields: missing}
	}

	// A field may appear discontiguously in the header row; the final count is
	// only known after the full scan, so finalize bindings in a second pass.
	res.Headers = order
	res.Keys = make([]string, len(order))
	for i, h := range order {
		b := res.bindings[h]
		b.Occurrences = occurrences[b.Field.Name]
		res.bindings[h] = b
		res.Keys[i] = b.OutputKey()
	}
	return res, nil
}
