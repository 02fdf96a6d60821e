package datadog

import (
	"sort"
	"testing"

	"hitchload/internal/metrics"
)

/*
TestNewBackend_RequiresAddr verifies the address is mandatory and a UDP
address yields a working client without a live agent (DogStatsD is
fire-and-forget).
*/
func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	if b, err := NewBackend(Config{}); err == nil || b != nil {
		t.Fatalf("NewBackend without Addr = (%v, %v), want error", b, err)
	}

	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "hitch."})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	// Emitting against a dead agent must not fail or block.
	b.IncCounter("hitch_chunks_total", 1, nil)
	b.ObserveHistogram("hitch_step_duration_seconds", 0.5, metrics.Labels{"step": "upload"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

/*
TestLabelsToTags verifies the label→tag translation and the nil case.
*/
func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", got)
	}

	got := labelsToTags(metrics.Labels{"step": "upload", "status": "success"})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "status:success" || got[1] != "step:upload" {
		t.Fatalf("labelsToTags = %v", got)
	}
}
