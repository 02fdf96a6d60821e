package sink

import (
	"os"
	"strings"
	"testing"

	"hitchload/pkg/records"
)

/*
TestCSVWriter verifies column ordering follows the header, sparse keys become
empty cells, and the header can only be written once.
*/
func TestCSVWriter(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	w := NewCSVWriter(&sb)

	if err := w.Write(records.Record{"a": "1"}); err == nil {
		t.Fatalf("Write before WriteHeader succeeded, want error")
	}

	if err := w.WriteHeader([]string{"personid", "email:0", "email:1"}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := w.WriteHeader([]string{"x"}); err == nil {
		t.Fatalf("second WriteHeader succeeded, want error")
	}

	rows := []records.Record{
		{"personid": "p1", "email:0": "h1", "email:1": "h2"},
		{"personid": "p2", "email:1": "h3"}, // email:0 dropped, sparse cell
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := "personid,email:0,email:1\np1,h1,h2\np2,,h3\n"
	if sb.String() != want {
		t.Fatalf("output = %q, want %q", sb.String(), want)
	}
}

/*
TestBuffer exercises the staging file lifecycle: create, write, reopen for
reading, and idempotent removal.
*/
func TestBuffer(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(t.TempDir())
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	const payload = "personid,email\np1,h1\n"
	if _, err := b.File().WriteString(payload); err != nil {
		t.Fatalf("write buffer: %v", err)
	}

	f, err := b.Reopen()
	if err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}
	got := make([]byte, len(payload)+16)
	n, _ := f.Read(got)
	if string(got[:n]) != payload {
		t.Fatalf("read back %q, want %q", got[:n], payload)
	}

	path := b.Path()
	b.Remove()
	b.Remove() // safe to repeat

	if _, err := os.Stat(path); err == nil {
		t.Fatalf("buffer file %s still exists after Remove", path)
	}
}
