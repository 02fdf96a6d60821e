package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordStep("hitchload", "salt_fetch", nil, 2*time.Second)
	RecordStep("hitchload", "upload", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters / %d histograms, want 2/2",
			len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != "hitch_step_total" || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=hitch_step_total, delta=1", cc0)
	}
	if cc0.labels["step"] != "salt_fetch" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels = %v", cc0.labels)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != "hitch_step_duration_seconds" {
		t.Fatalf("hist[0].name = %q", h0.name)
	}
	if h0.value < 2.0-0.001 || h0.value > 2.0+0.001 {
		t.Fatalf("hist[0].value = %v, want ~2.0", h0.value)
	}

	cc1 := fb.callsCounters[1]
	if cc1.labels["step"] != "upload" || cc1.labels["status"] != "failure" {
		t.Fatalf("counter[1].labels = %v, want upload/failure", cc1.labels)
	}
	h1 := fb.callsHistograms[1]
	if h1.value < 1.5-0.001 || h1.value > 1.5+0.001 {
		t.Fatalf("hist[1].value = %v, want ~1.5", h1.value)
	}
}

func TestRecordRowAndChunks(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordRow("hitchload", "written", 3)
	RecordRow("hitchload", "written", 0)         // ignored
	RecordRow("hitchload", "dropped_fields", -1) // ignored
	RecordRow("hitchload", "tokens", 5)
	RecordChunks("hitchload", 2)
	RecordChunks("hitchload", 0) // ignored

	if len(fb.callsCounters) != 3 {
		t.Fatalf("counter calls = %d, want 3 (non-positive deltas dropped)", len(fb.callsCounters))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != "hitch_records_total" || cc0.delta != 3 || cc0.labels["kind"] != "written" {
		t.Fatalf("counter[0] = %#v", cc0)
	}
	cc2 := fb.callsCounters[2]
	if cc2.name != "hitch_chunks_total" || cc2.delta != 2 {
		t.Fatalf("counter[2] = %#v", cc2)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)
	SetBackend(nil) // nil must not clobber the installed backend

	if err := Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount = %d, want 1", fb.flushCount)
	}
}
