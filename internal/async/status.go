// Package async tracks index rebuilds that run in the background.
package async

import (
	"sync"
	"time"
)

// IndexingStatus represents the overall rebuild state.
type IndexingStatus string

const (
	// StatusIdle indicates no rebuild has started yet.
	StatusIdle IndexingStatus = "idle"
	// StatusIndexing indicates a rebuild is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady indicates the rebuild finished and its index is live.
	StatusReady IndexingStatus = "ready"
	// StatusError indicates the rebuild failed.
	StatusError IndexingStatus = "error"
	// StatusSuperseded indicates a newer rebuild replaced this one before it finished.
	StatusSuperseded IndexingStatus = "superseded"
)

// IndexingStage represents the current step of a rebuild.
type IndexingStage string

const (
	// StageLoading indicates the conversation set is being read.
	StageLoading IndexingStage = "loading"
	// StageReconciling indicates cached ids are compared against the units.
	StageReconciling IndexingStage = "reconciling"
	// StageEmbedding indicates missing units are being sent to the provider.
	StageEmbedding IndexingStage = "embedding"
	// StageIndexing indicates the similarity index is being built from the cache.
	StageIndexing IndexingStage = "indexing"
)

// IndexProgressSnapshot is an immutable snapshot of rebuild progress.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	Generation     uint64  `json:"generation"`
	UnitsTotal     int     `json:"units_total"`
	UnitsMissing   int     `json:"units_missing"`
	UnitsEmbedded  int     `json:"units_embedded"`
	BatchesTotal   int     `json:"batches_total"`
	BatchesDone    int     `json:"batches_done"`
	BatchesFailed  int     `json:"batches_failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress provides thread-safe tracking of one rebuild.
// A nil *IndexProgress accepts every update and records nothing.
type IndexProgress struct {
	mu sync.RWMutex

	status        IndexingStatus
	stage         IndexingStage
	generation    uint64
	unitsTotal    int
	unitsMissing  int
	unitsEmbedded int
	batchesTotal  int
	batchesDone   int
	batchesFailed int
	startTime     time.Time
	errorMessage  string
}

// NewIndexProgress creates a progress tracker for the given rebuild generation.
func NewIndexProgress(generation uint64) *IndexProgress {
	return &IndexProgress{
		status:     StatusIndexing,
		stage:      StageLoading,
		generation: generation,
		startTime:  time.Now(),
	}
}

// IdleProgress returns a tracker for a process that has not rebuilt yet.
func IdleProgress() *IndexProgress {
	return &IndexProgress{status: StatusIdle, startTime: time.Now()}
}

// SetStage updates the current stage.
func (p *IndexProgress) SetStage(stage IndexingStage) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
}

// SetUnits records how many units exist and how many lack a cache entry.
func (p *IndexProgress) SetUnits(total, missing int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unitsTotal = total
	p.unitsMissing = missing
}

// SetBatchesTotal sets the number of provider batches for this rebuild.
func (p *IndexProgress) SetBatchesTotal(total int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batchesTotal = total
}

// BatchDone records a finished batch and the units it embedded.
func (p *IndexProgress) BatchDone(embedded int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batchesDone++
	p.unitsEmbedded += embedded
}

// BatchFailed records a batch that exhausted its retries.
func (p *IndexProgress) BatchFailed() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batchesDone++
	p.batchesFailed++
}

// SetError marks the rebuild as failed with an error message.
func (p *IndexProgress) SetError(message string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetSuperseded marks the rebuild as replaced by a newer one.
func (p *IndexProgress) SetSuperseded() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusSuperseded
}

// SetReady marks the rebuild as complete and its index as live.
func (p *IndexProgress) SetReady() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsIndexing returns true if the rebuild is still in progress.
func (p *IndexProgress) IsIndexing() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	if p == nil {
		return IndexProgressSnapshot{Status: string(StatusIdle)}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	switch {
	case p.status == StatusReady:
		progressPct = 100
	case p.batchesTotal > 0:
		progressPct = float64(p.batchesDone) / float64(p.batchesTotal) * 100.0
	}

	return IndexProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		Generation:     p.generation,
		UnitsTotal:     p.unitsTotal,
		UnitsMissing:   p.unitsMissing,
		UnitsEmbedded:  p.unitsEmbedded,
		BatchesTotal:   p.batchesTotal,
		BatchesDone:    p.batchesDone,
		BatchesFailed:  p.batchesFailed,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
