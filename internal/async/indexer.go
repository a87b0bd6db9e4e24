package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// IndexFunc is the rebuild work. It receives the run's generation and a
// progress tracker for that run.
type IndexFunc func(ctx context.Context, generation uint64, progress *IndexProgress) error

// BackgroundIndexer runs rebuilds in background goroutines. Starting a new
// rebuild cancels the one in flight; only the newest run's outcome is kept.
type BackgroundIndexer struct {
	// IndexFunc is the rebuild to run. It can be injected for testing.
	IndexFunc IndexFunc

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	progress   *IndexProgress
	running    int
	err        error

	wg sync.WaitGroup
}

// NewBackgroundIndexer creates a background indexer running fn.
func NewBackgroundIndexer(fn IndexFunc) *BackgroundIndexer {
	done := make(chan struct{})
	close(done)
	return &BackgroundIndexer{
		IndexFunc: fn,
		done:      done,
		progress:  IdleProgress(),
	}
}

// Progress returns the progress tracker of the newest rebuild.
func (b *BackgroundIndexer) Progress() *IndexProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// IsRunning returns true while any rebuild goroutine is still executing,
// including superseded ones winding down.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running > 0
}

// Start begins a new rebuild and returns its generation. Any rebuild still
// in flight is cancelled. This is non-blocking; use Wait to block.
func (b *BackgroundIndexer) Start(ctx context.Context) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}

	b.generation++
	gen := b.generation
	runCtx, cancel := context.WithCancel(ctx)
	progress := NewIndexProgress(gen)
	done := make(chan struct{})

	b.cancel = cancel
	b.done = done
	b.progress = progress
	b.err = nil
	b.running++
	b.wg.Add(1)

	go b.run(runCtx, cancel, gen, progress, done)
	return gen
}

func (b *BackgroundIndexer) run(ctx context.Context, cancel context.CancelFunc, gen uint64, progress *IndexProgress, done chan struct{}) {
	defer b.wg.Done()
	defer close(done)
	defer cancel()

	var err error
	if b.IndexFunc != nil {
		err = b.IndexFunc(ctx, gen, progress)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.running--

	if gen != b.generation {
		progress.SetSuperseded()
		slog.Debug("rebuild_superseded", slog.Uint64("generation", gen))
		return
	}

	b.err = err
	switch {
	case err == nil:
		progress.SetReady()
	case errors.Is(err, context.Canceled):
		progress.SetSuperseded()
	default:
		progress.SetError(err.Error())
	}
}

// Stop cancels the newest rebuild and waits for every run to exit.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Wait blocks until the newest rebuild completes and returns its error. If a
// newer rebuild starts while waiting, Wait follows it.
func (b *BackgroundIndexer) Wait() error {
	for {
		b.mu.Lock()
		done, gen := b.done, b.generation
		b.mu.Unlock()

		<-done

		b.mu.Lock()
		if gen == b.generation {
			err := b.err
			b.mu.Unlock()
			return err
		}
		b.mu.Unlock()
	}
}
