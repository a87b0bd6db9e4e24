package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aman-CERP/chatlens/internal/async"
)

// EventFromSnapshot converts rebuild progress into a renderer event.
func EventFromSnapshot(s async.IndexProgressSnapshot) ProgressEvent {
	event := ProgressEvent{Stage: ParseStage(s.Stage)}
	if event.Stage == StageEmbedding && s.UnitsMissing > 0 {
		event.Current = s.UnitsEmbedded
		event.Total = s.UnitsMissing
	}
	if s.Stage == string(async.StageReconciling) && s.UnitsTotal > 0 {
		event.Message = formatUnits(s.UnitsTotal, s.UnitsMissing)
	}
	return event
}

func formatUnits(total, missing int) string {
	if missing == 0 {
		return "all units cached"
	}
	return fmt.Sprintf("%d of %d units need embedding", missing, total)
}

var errBatchFailed = errors.New("batch failed after retries; its units stay unembedded")

// Follow polls snapshot every interval and forwards it to r until done
// is closed or ctx is cancelled. Failed batches surface as warnings.
func Follow(ctx context.Context, r Renderer, snapshot func() async.IndexProgressSnapshot,
	interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failed := 0
	emit := func() {
		s := snapshot()
		if s.Status != string(async.StatusIndexing) {
			return
		}
		r.UpdateProgress(EventFromSnapshot(s))
		for ; failed < s.BatchesFailed; failed++ {
			r.AddError(ErrorEvent{Subject: "embedding batch", Err: errBatchFailed, IsWarn: true})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			emit()
			return
		case <-ticker.C:
			emit()
		}
	}
}
