package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackgroundIndexer(t *testing.T) {
	indexer := NewBackgroundIndexer(nil)

	require.NotNil(t, indexer)
	assert.Equal(t, string(StatusIdle), indexer.Progress().Snapshot().Status)
	assert.False(t, indexer.IsRunning())
	assert.Zero(t, indexer.Progress().Snapshot().Generation)
	assert.NoError(t, indexer.Wait(), "Wait before any start returns immediately")
}

func TestBackgroundIndexer_Start_RunsInGoroutine(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Bool
	indexer := NewBackgroundIndexer(func(ctx context.Context, gen uint64, p *IndexProgress) error {
		started.Store(true)
		<-release
		return nil
	})

	gen := indexer.Start(context.Background())
	assert.Equal(t, uint64(1), gen)
	assert.True(t, indexer.IsRunning())

	close(release)
	require.NoError(t, indexer.Wait())
	assert.True(t, started.Load())
	assert.False(t, indexer.IsRunning())
	assert.Equal(t, string(StatusReady), indexer.Progress().Snapshot().Status)
}

func TestBackgroundIndexer_Progress_UpdatesDuringRun(t *testing.T) {
	step := make(chan struct{})
	indexer := NewBackgroundIndexer(func(ctx context.Context, gen uint64, p *IndexProgress) error {
		p.SetStage(StageEmbedding)
		p.SetUnits(10, 4)
		step <- struct{}{}
		<-step
		return nil
	})

	indexer.Start(context.Background())
	<-step

	snap := indexer.Progress().Snapshot()
	assert.Equal(t, string(StageEmbedding), snap.Stage)
	assert.Equal(t, 4, snap.UnitsMissing)

	step <- struct{}{}
	require.NoError(t, indexer.Wait())
}

func TestBackgroundIndexer_Start_SupersedesRunningBuild(t *testing.T) {
	firstCancelled := make(chan struct{})
	indexer := NewBackgroundIndexer(func(ctx context.Context, gen uint64, p *IndexProgress) error {
		if gen == 1 {
			<-ctx.Done()
			close(firstCancelled)
			return ctx.Err()
		}
		return nil
	})

	indexer.Start(context.Background())
	first := indexer.Progress()

	gen := indexer.Start(context.Background())
	assert.Equal(t, uint64(2), gen)

	select {
	case <-firstCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("first rebuild was not cancelled")
	}

	require.NoError(t, indexer.Wait())
	indexer.Stop()

	assert.Equal(t, string(StatusSuperseded), first.Snapshot().Status)
	assert.Equal(t, string(StatusReady), indexer.Progress().Snapshot().Status)
	assert.Equal(t, uint64(2), indexer.Progress().Snapshot().Generation)
}

func TestBackgroundIndexer_Error_SetsProgress(t *testing.T) {
	indexer := NewBackgroundIndexer(func(ctx context.Context, gen uint64, p *IndexProgress) error {
		return errors.New("storage full")
	})

	indexer.Start(context.Background())
	err := indexer.Wait()

	require.Error(t, err)
	snap := indexer.Progress().Snapshot()
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, "storage full", snap.ErrorMessage)
}

func TestBackgroundIndexer_Stop_CancelsRun(t *testing.T) {
	indexer := NewBackgroundIndexer(func(ctx context.Context, gen uint64, p *IndexProgress) error {
		<-ctx.Done()
		return ctx.Err()
	})

	indexer.Start(context.Background())

	done := make(chan struct{})
	go func() {
		indexer.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, indexer.IsRunning())
}

func TestBackgroundIndexer_ParentContextCancellation(t *testing.T) {
	indexer := NewBackgroundIndexer(func(ctx context.Context, gen uint64, p *IndexProgress) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	indexer.Start(ctx)
	cancel()

	err := indexer.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}
