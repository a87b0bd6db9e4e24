package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// fileState is what polling compares between ticks.
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func statFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, err
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}, nil
}

// diff returns the operation that turns prev into cur, if any.
func diff(prev, cur fileState) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case prev.exists && (!prev.modTime.Equal(cur.modTime) || prev.size != cur.size):
		return OpModify, true
	default:
		return 0, false
	}
}

// poll stats path every interval and reports changes to emit. It is the
// fallback for filesystems where fsnotify does not deliver events.
func poll(ctx context.Context, stop <-chan struct{}, path string, interval time.Duration,
	emit func(FileEvent), report func(error)) error {
	prev, err := statFile(path)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			cur, err := statFile(path)
			if err != nil {
				report(err)
				continue
			}
			if op, changed := diff(prev, cur); changed {
				emit(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
			}
			prev = cur
		}
	}
}
