package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/YesIKnowIT/SODump/internal/extract"
)

// parseWorker runs the extraction engine on fetched content. A non-OK
// outcome is still stored: the source row must exist so the capture is
// neither refetched forever nor dropped without a trace.
func (p *Pipeline) parseWorker(ctx context.Context, id int) error {
	for {
		var job parseJob
		select {
		case <-ctx.Done():
			return nil
		case job = <-p.parserq:
		}

		status, records := extractSafe(id, job)
		p.send(ctx, StoreResult{Key: job.Key, Status: status, Records: records})
	}
}

// extractSafe shields the worker loop from engine panics on pathological
// input; one bad page must never take a worker down.
func extractSafe(id int, job parseJob) (status extract.Status, records []extract.Record) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Extraction panic", "worker_id", id, "key", job.Key, "panic", r)
			status, records = extract.StatusSysError, nil
		}
	}()

	status, records, err := extract.Extract(job.Text, job.Key)
	if err != nil {
		if errors.Is(err, extract.ErrImpreciseViews) {
			slog.Warn("Imprecise view count", "worker_id", id, "key", job.Key, "error", err)
		} else {
			slog.Warn("Extraction incomplete", "worker_id", id, "key", job.Key, "status", string(status), "error", err)
		}
	}
	return status, records
}
