package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatlens/internal/async"
)

func TestStage_NamesAndIcons(t *testing.T) {
	assert.Equal(t, "Embedding", StageEmbedding.String())
	assert.Equal(t, "EMBED", StageEmbedding.Icon())
	assert.Equal(t, "SYNC", StageReconciling.Icon())
	assert.Equal(t, "Unknown", Stage(99).String())
	assert.Equal(t, "???", Stage(99).Icon())
}

func TestParseStage_MatchesProgressStages(t *testing.T) {
	assert.Equal(t, StageLoading, ParseStage(string(async.StageLoading)))
	assert.Equal(t, StageReconciling, ParseStage(string(async.StageReconciling)))
	assert.Equal(t, StageEmbedding, ParseStage(string(async.StageEmbedding)))
	assert.Equal(t, StageIndexing, ParseStage(string(async.StageIndexing)))
	assert.Equal(t, StageComplete, ParseStage("something else"))
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: a buffer, which is never a terminal
	buf := &bytes.Buffer{}

	// When: creating a renderer
	r := NewRenderer(NewConfig(buf))

	// Then: plain output is used
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
	assert.False(t, IsTTY(buf))
	assert.False(t, IsTTY(nil))
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestNewConfig_AppliesOptions(t *testing.T) {
	cfg := NewConfig(nil, WithForcePlain(true), WithNoColor(true), WithSource("conversations.json"))

	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "conversations.json", cfg.Source)
}

func TestEventFromSnapshot(t *testing.T) {
	embedding := EventFromSnapshot(async.IndexProgressSnapshot{
		Stage: "embedding", UnitsTotal: 100, UnitsMissing: 40, UnitsEmbedded: 10,
	})
	assert.Equal(t, ProgressEvent{Stage: StageEmbedding, Current: 10, Total: 40}, embedding)

	reconciling := EventFromSnapshot(async.IndexProgressSnapshot{
		Stage: "reconciling", UnitsTotal: 100, UnitsMissing: 40,
	})
	assert.Equal(t, "40 of 100 units need embedding", reconciling.Message)

	cached := EventFromSnapshot(async.IndexProgressSnapshot{Stage: "reconciling", UnitsTotal: 100})
	assert.Equal(t, "all units cached", cached.Message)
}

type recordingRenderer struct {
	mu       sync.Mutex
	events   []ProgressEvent
	warnings int
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Complete(CompletionStats)   {}
func (r *recordingRenderer) Stop() error                 { return nil }

func (r *recordingRenderer) UpdateProgress(e ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRenderer) AddError(ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings++
}

func TestFollow_ForwardsUntilDone(t *testing.T) {
	rec := &recordingRenderer{}
	snap := async.IndexProgressSnapshot{
		Status: string(async.StatusIndexing), Stage: "embedding",
		UnitsMissing: 4, UnitsEmbedded: 2, BatchesFailed: 2,
	}
	done := make(chan struct{})
	close(done)

	Follow(context.Background(), rec, func() async.IndexProgressSnapshot { return snap }, time.Hour, done)

	require.Len(t, rec.events, 1)
	assert.Equal(t, 2, rec.events[0].Current)
	assert.Equal(t, 2, rec.warnings)
}

func TestFollow_IgnoresIdleSnapshots(t *testing.T) {
	rec := &recordingRenderer{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	Follow(ctx, rec, func() async.IndexProgressSnapshot {
		return async.IndexProgressSnapshot{Status: string(async.StatusReady)}
	}, 5*time.Millisecond, nil)

	assert.Empty(t, rec.events)
}

func TestPlainRenderer_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageLoading})
	r.UpdateProgress(ProgressEvent{Stage: StageLoading})
	r.UpdateProgress(ProgressEvent{Stage: StageReconciling, Message: "3 of 9 units need embedding"})
	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 1, Total: 3})
	r.AddError(ErrorEvent{Subject: "embedding batch", Err: errors.New("timeout"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("boom")})
	r.Complete(CompletionStats{
		Conversations: 2, Indexed: 9, Embedded: 3, Skipped: 1,
		FailedBatches: 1, Unembedded: 2, Duration: 1500 * time.Millisecond,
		Model: "nomic-embed-text", Dimensions: 768,
	})
	require.NoError(t, r.Stop())

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "[LOAD] Loading"))
	assert.Contains(t, out, "[SYNC] 3 of 9 units need embedding\n")
	assert.Contains(t, out, "[EMBED] 1/3 units\n")
	assert.Contains(t, out, "WARN: embedding batch: timeout\n")
	assert.Contains(t, out, "ERROR: boom\n")
	assert.Contains(t, out, "Complete: 2 conversations, 9 units indexed (3 newly embedded) in 1.5s")
	assert.Contains(t, out, "Skipped 1 blank units")
	assert.Contains(t, out, "1 batches failed, 2 units left unembedded")
	assert.Contains(t, out, "Model: nomic-embed-text (768 dims)")
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}
