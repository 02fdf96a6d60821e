// Package pipeline orchestrates the streaming conversion of Databank records
// into hashed Senate Matching records.
//
// One Pipeline value performs one run over one logical file. The run is a
// small state machine: bindings are resolved from the first record's header
// (Uninitialized → Streaming), then each record is normalized and hashed
// against those fixed bindings; any structural fault moves the run to Failed,
// which is terminal. Processing is single-threaded and pull-based: a record
// is read, transformed, and written before the next one is read, so memory
// stays bounded regardless of input size.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hitchload/internal/catalog"
	"hitchload/internal/hashing"
	"hitchload/internal/metrics"
	"hitchload/internal/normalize"
	"hitchload/internal/schema"
	"hitchload/pkg/records"
)

// State is the run lifecycle state.
type State int

const (
	// Uninitialized means no record has been read yet; bindings are unset.
	Uninitialized State = iota
	// Streaming means bindings are fixed and records are flowing.
	Streaming
	// Failed is terminal; no further records are processed and any partial
	// output already written must be discarded by the destination's owner.
	Failed
)

// Severity classifies a diagnostic notice.
type Severity string

const (
	// SeverityWarning notices do not stop the run.
	SeverityWarning Severity = "warning"
	// SeverityError notices accompany a fatal run error.
	SeverityError Severity = "error"
)

// Notice is a diagnostic emitted to the caller-supplied sink. The pipeline
// never terminates the host process itself.
type Notice struct {
	Severity Severity
	Message  string
}

// Source is a pull-based stream of raw records from one logical file. All
// records share one header/shape contract; a record that violates it makes
// the source (or the pipeline) return a structural error.
type Source interface {
	// Header returns the raw column names in file order.
	Header() ([]string, error)
	// Next returns the next record keyed by raw column name, or io.EOF.
	Next() (records.Record, error)
}

// Sink receives the converted records. The sink owns serialization and the
// destination resource; on a failed run the caller must discard whatever the
// sink produced so far.
type Sink interface {
	// WriteHeader receives the resolved output keys, in output column order,
	// exactly once before the first record.
	WriteHeader(keys []string) error
	// Write receives one output record. Keys absent from the record are
	// sparse fields, not errors.
	Write(rec records.Record) error
}

// Summary reports counters for one completed run.
type Summary struct {
	// Rows is the number of output records written.
	Rows int
	// DroppedFields counts bound fields omitted from an output row because
	// their value normalized to the empty string.
	DroppedFields int
	// UnrecognizedHeaders counts input columns that matched no catalog alias.
	UnrecognizedHeaders int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHook installs a pre-normalization hook (e.g. normalize.NarrowHook)
// applied to every raw value before its field's normalization method.
func WithHook(h normalize.Hook) Option {
	return func(p *Pipeline) { p.hook = h }
}

// WithNotices installs the diagnostics sink. The default logs nothing.
func WithNotices(fn func(Notice)) Option {
	return func(p *Pipeline) { p.notify = fn }
}

// WithStrictEmpty restores the legacy behavior where a bound field
// normalizing to the empty string rejects the whole record instead of just
// omitting the field. Off by default.
func WithStrictEmpty() Option {
	return func(p *Pipeline) { p.strictEmpty = true }
}

// Pipeline converts records for a single run. Not safe for concurrent use;
// run independent pipelines (each with its own catalog) for parallel inputs.
type Pipeline struct {
	cat         *catalog.Catalog
	hook        normalize.Hook
	notify      func(Notice)
	strictEmpty bool

	state State
	res   *schema.Resolution
	plan  []boundCol
}

// boundCol is the per-column work list, precomputed once after resolution so
// the per-record loop does no map lookups on the binding table.
type boundCol struct {
	src   string
	key   string
	field *catalog.Field
}

// New returns a Pipeline over the given catalog. Salts must already be
// injected for every hashed field before Run is called.
func New(cat *catalog.Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{cat: cat, notify: func(Notice) {}}
	for _, o := range opts {
		o(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return p.state }

// Resolution returns the binding table fixed for this run, or nil before the
// first record has been read.
func (p *Pipeline) Resolution() *schema.Resolution { return p.res }

// Run streams every record from src through normalization and hashing into
// dst. It returns a Summary and the first fatal error, if any. Schema errors
// (missing mandatory field, duplicate header) fail the run before any output
// is produced; row structural errors fail it mid-stream, in which case the
// destination artifact is not a valid file and must be discarded.
func (p *Pipeline) Run(ctx context.Context, src Source, dst Sink) (Summary, error) {
	var sum Summary
	if p.state != Uninitialized {
		return sum, fmt.Errorf("pipeline: run already consumed (state %d)", p.state)
	}
	if missing := p.cat.MissingSalts(); len(missing) > 0 {
		p.state = Failed
		return sum, fmt.Errorf("pipeline: salts not injected for: %v", missing)
	}

	headers, err := src.Header()
	if err != nil {
		p.state = Failed
		return sum, err
	}

	res, err := schema.Resolve(p.cat, headers, func(h string) {
		sum.UnrecognizedHeaders++
		p.warnf("[%s] header is not expected and will be ignored", h)
	})
	if err != nil {
		p.state = Failed
		p.errorf("%v", err)
		return sum, err
	}
	p.res = res

	p.plan = make([]boundCol, len(res.Headers))
	for i, h := range res.Headers {
		b, _ := res.Binding(h)
		p.plan[i] = boundCol{src: h, key: res.Keys[i], field: b.Field}
	}

	if err := dst.WriteHeader(res.Keys); err != nil {
		p.state = Failed
		return sum, fmt.Errorf("pipeline: write header: %w", err)
	}
	p.state = Streaming

	for {
		select {
		case <-ctx.Done():
			p.state = Failed
			return sum, ctx.Err()
		default:
		}

		rec, err := src.Next()
		if err == io.EOF {
			// Exhausting the input is the normal end; the caller flushes and
			// closes the destination.
			metrics.RecordRow("hitchload", "written", int64(sum.Rows))
			metrics.RecordRow("hitchload", "dropped_fields", int64(sum.DroppedFields))
			metrics.RecordRow("hitchload", "unrecognized_headers", int64(sum.UnrecognizedHeaders))
			return sum, nil
		}
		if err != nil {
			p.state = Failed
			p.errorf("%v", err)
			return sum, err
		}

		out, err := p.convert(rec, &sum)
		if err != nil {
			p.state = Failed
			p.errorf("%v", err)
			return sum, err
		}
		if out == nil {
			// strict-empty mode rejected the record
			continue
		}
		if err := dst.Write(out); err != nil {
			p.state = Failed
			return sum, fmt.Errorf("pipeline: write record: %w", err)
		}
		sum.Rows++
	}
}

// errShortRecord marks a record missing a bound column entirely, which is a
// structural fault, not a normalization outcome.
var errShortRecord = errors.New("pipeline: record missing bound column")

// convert produces the output record for one input record. A nil record with
// a nil error means the record was rejected by strict-empty mode.
func (p *Pipeline) convert(rec records.Record, sum *Summary) (records.Record, error) {
	out := make(records.Record, len(p.plan))
	for _, col := range p.plan {
		raw, ok := rec[col.src]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errShortRecord, col.src)
		}

		if p.hook != nil {
			raw = p.hook(raw)
		}
		norm := normalize.Value(raw, col.field.Normalization)
		if norm == "" {
			sum.DroppedFields++
			p.warnf("%s is not from the expected format [%s] for %s and will be ignored",
				raw, col.field.Normalization, col.src)
			if p.strictEmpty {
				return nil, nil
			}
			continue
		}

		v, err := hashing.ProduceValue(col.field, norm)
		if err != nil {
			return nil, err
		}
		out[col.key] = v
	}
	return out, nil
}

func (p *Pipeline) warnf(format string, a ...any) {
	p.notify(Notice{Severity: SeverityWarning, Message: fmt.Sprintf(format, a...)})
}

func (p *Pipeline) errorf(format string, a ...any) {
	p.notify(Notice{Severity: SeverityError, Message: fmt.Sprintf(format, a...)})
}
