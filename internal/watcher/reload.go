package watcher

import (
	"context"
	"log/slog"
)

// ReloadFunc re-reads the watched file and returns how many conversations
// it now holds.
type ReloadFunc func(ctx context.Context) (int, error)

// EventSource is the part of FileWatcher that RunReloads consumes.
type EventSource interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// RunReloads calls reload once per debounced batch until ctx is done or the
// source closes. A batch whose net effect is a deletion is skipped: the
// live set is kept until a new file appears. Reload failures are logged and
// do not stop the loop.
func RunReloads(ctx context.Context, src EventSource, reload ReloadFunc) {
	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			if deletedOnly(batch) {
				slog.Warn("conversations_file_removed", slog.Int("events", len(batch)))
				continue
			}
			count, err := reload(ctx)
			if err != nil {
				slog.Error("conversations_reload_failed", slog.String("error", err.Error()))
				continue
			}
			slog.Info("conversations_reloaded", slog.Int("conversations", count))
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func deletedOnly(batch []FileEvent) bool {
	for _, ev := range batch {
		if ev.Operation != OpDelete {
			return false
		}
	}
	return true
}
