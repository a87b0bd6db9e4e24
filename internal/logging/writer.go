package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// RotatingWriter appends to a log file shared by every chatlens process on
// the machine (serve, mcp, index) and rotates it by size.
//
// Archives are named <path>.1 (newest) to <path>.<keep>. Rotation runs under
// an advisory lock on <path>.lock; a process that finds the file already
// rotated by another one reopens it instead of rotating again.
type RotatingWriter struct {
	path    string
	maxSize int64
	keep    int
	lock    *flock.Flock

	mu      sync.Mutex
	file    *os.File
	written int64
}

// NewRotatingWriter opens path for appending. The file rotates once it would
// grow past maxSizeMB megabytes; keep archives are retained.
func NewRotatingWriter(path string, maxSizeMB, keep int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:    path,
		maxSize: int64(maxSizeMB) << 20,
		keep:    max(keep, 0),
		lock:    flock.New(path + ".lock"),
	}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first when p would push the file past its limit.
// A failed rotation is reported on stderr and the write goes to the current
// file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "chatlens: log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Sync flushes the file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the file. Further writes fail.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) reopen() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = f
	w.written = info.Size()
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock log file: %w", err)
	}
	defer func() { _ = w.lock.Unlock() }()

	onDisk, err := os.Stat(w.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	open, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if onDisk == nil || !os.SameFile(onDisk, open) {
		// Another process rotated it.
		return w.reopen()
	}
	if onDisk.Size() == 0 {
		w.written = 0
		return nil
	}

	if err := w.shiftArchives(); err != nil {
		return err
	}
	return w.reopen()
}

// shiftArchives moves path.i to path.i+1, dropping the oldest, and path to
// path.1. With keep 0 the current file is discarded.
func (w *RotatingWriter) shiftArchives() error {
	if w.keep == 0 {
		if err := os.Remove(w.path); err != nil {
			return fmt.Errorf("failed to truncate log file: %w", err)
		}
		return nil
	}

	_ = os.Remove(w.archive(w.keep))
	for i := w.keep - 1; i >= 1; i-- {
		if err := os.Rename(w.archive(i), w.archive(i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to rotate %s: %w", w.archive(i), err)
		}
	}
	if err := os.Rename(w.path, w.archive(1)); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

func (w *RotatingWriter) archive(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}
