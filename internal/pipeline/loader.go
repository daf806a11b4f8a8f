package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/YesIKnowIT/SODump/internal/capture"
	"github.com/YesIKnowIT/SODump/internal/extract"
)

// fetchWorker retrieves captures from the loader queue, one at a time,
// pausing first when a previous request got this worker throttled. It
// never touches the store: every outcome is reported to the controller.
func (p *Pipeline) fetchWorker(ctx context.Context, id int, fetcher Fetcher) error {
	cd := NewCooldown(p.cfg.Cooldown, p.cfg.MaxSleep)

	for {
		var job fetchJob
		select {
		case <-ctx.Done():
			return nil
		case job = <-p.loaderq:
		}
		p.fetchOne(ctx, id, cd, fetcher, job)
	}
}

func (p *Pipeline) fetchOne(ctx context.Context, id int, cd *Cooldown, fetcher Fetcher, job fetchJob) {
	if cd.Wait(ctx) {
		slog.Debug("Fetch worker resumed after cooldown", "worker_id", id)
	}
	if ctx.Err() != nil {
		return
	}

	slog.Debug("Downloading capture", "worker_id", id, "url", job.URL)
	res, err := fetcher.Fetch(ctx, job.Key, job.URL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Timeouts and refused connections both mean the server wants
		// a breather.
		cd.Set(0)
		slog.Warn("Fetch failed", "worker_id", id, "url", job.URL, "error", err)
		p.send(ctx, Retry{Key: job.Key, URL: job.URL})
		return
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		cd.Clear()
		p.send(ctx, Parse{Key: job.Key, Text: res.Body})
		p.send(ctx, Done{Key: job.Key})

	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		cd.Set(0)
		slog.Warn("Server throttling", "worker_id", id, "status", res.StatusCode, "url", job.URL)
		p.send(ctx, Retry{Key: job.Key, URL: job.URL})

	default:
		p.classifyMiss(ctx, id, res, job)
	}
}

// classifyMiss handles non-throttling non-2xx responses: redirects when
// following is enabled, otherwise the configured not-found policy. Index
// entries are pre-filtered to successful original status codes, so a
// late 404 usually reflects replay timing and is worth retrying, within
// the attempt budget.
func (p *Pipeline) classifyMiss(ctx context.Context, id int, res *FetchResult, job fetchJob) {
	if p.cfg.FollowRedirects && res.StatusCode >= 300 && res.StatusCode < 400 && res.Location != "" {
		if c, ok := capture.FromReplayURL(res.Location); ok {
			key, url := capture.Derive(c)
			slog.Debug("Following redirect", "worker_id", id, "from", job.Key, "to", key)
			p.send(ctx, Follow{From: job.Key, Key: key, URL: url})
			return
		}
		slog.Warn("Unparseable redirect target", "worker_id", id, "location", res.Location)
	}

	slog.Debug("Capture miss", "worker_id", id, "status", res.StatusCode, "url", job.URL)
	if p.cfg.RetryNotFound {
		p.send(ctx, Retry{Key: job.Key, URL: job.URL})
		return
	}
	p.send(ctx, StoreResult{Key: job.Key, Status: extract.StatusError, FromFetch: true})
	p.send(ctx, Done{Key: job.Key})
}
