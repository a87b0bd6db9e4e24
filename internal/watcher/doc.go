// Package watcher follows the conversations file and triggers a reload when
// it changes on disk.
//
// The file's directory is watched with fsnotify so that atomic replaces
// (write to a temp file, then rename over the target) are seen. Where
// fsnotify cannot be initialised, the file is polled instead. Bursts of
// events are debounced into a single reload.
//
// Usage:
//
//	w, err := watcher.NewFileWatcher("/data/conversations.json", watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx)
//	watcher.RunReloads(ctx, w, engine.Reload)
package watcher
