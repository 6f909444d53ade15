package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// WriterOutput writes formatted entries to an io.Writer.
type WriterOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutput wraps w as an Output.
func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{w: w} }

// NewConsoleOutput writes to stderr.
func NewConsoleOutput() *WriterOutput { return NewWriterOutput(os.Stderr) }

func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

func (o *WriterOutput) Close() error { return nil }

// NullOutput discards everything.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }

// FileOutput appends entries to a file.
type FileOutput struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileOutput opens (or creates) path for appending.
func NewFileOutput(path string) (*FileOutput, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log: open %s: %w", path, err)
	}
	return &FileOutput{f: f}, nil
}

func (o *FileOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.f.Write(formatted)
	return err
}

func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.f.Close()
}
