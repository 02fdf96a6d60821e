package sink

import (
	"fmt"
	"os"
)

// Buffer is the on-disk staging file for the hashed CSV. Staging to disk
// instead of memory keeps the tool streaming for arbitrarily large inputs;
// the file only exists between conversion and upload and is always removed,
// including after a failed run whose partial contents must not be uploaded.
type Buffer struct {
	f    *os.File
	path string
}

// NewBuffer creates the staging file in dir (or the system temp directory
// when dir is empty).
func NewBuffer(dir string) (*Buffer, error) {
	f, err := os.CreateTemp(dir, ".buf_hitch_*.csv")
	if err != nil {
		return nil, fmt.Errorf("sink: create buffer: %w", err)
	}
	return &Buffer{f: f, path: f.Name()}, nil
}

// File exposes the underlying file for writing.
func (b *Buffer) File() *os.File { return b.f }

// Path returns the buffer file path.
func (b *Buffer) Path() string { return b.path }

// Reopen syncs the written buffer and reopens it for reading from the start.
func (b *Buffer) Reopen() (*os.File, error) {
	if err := b.f.Sync(); err != nil {
		return nil, fmt.Errorf("sink: sync buffer: %w", err)
	}
	if err := b.f.Close(); err != nil {
		return nil, fmt.Errorf("sink: close buffer: %w", err)
	}
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("sink: reopen buffer: %w", err)
	}
	b.f = f
	return f, nil
}

// Remove closes and deletes the buffer file. Safe to call more than once.
func (b *Buffer) Remove() {
	if b.f != nil {
		_ = b.f.Close()
		b.f = nil
	}
	_ = os.Remove(b.path)
}
