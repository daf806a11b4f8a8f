package pipeline

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/YesIKnowIT/SODump/internal/capture"
)

// pager holds the shared pagination cursor. Only the holder of the turn
// token reads or writes it, so access is serialized without a mutex.
type pager struct {
	cursor string
	done   bool
}

// paginator repeatedly queries the CDX capture index. Instances take
// turns through the turn token, which the controller hands back on
// UNLOCK, so only one queries the remote index at a time and the cursor
// can never race. Each admitted capture costs one permit from the
// admission semaphore; when the system is saturated the paginator blocks
// here, which is the pipeline's backpressure valve.
func (p *Pipeline) paginator(ctx context.Context, id int) error {
	cd := NewCooldown(p.cfg.Cooldown, p.cfg.MaxSleep)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.turn:
		}

		if p.pager.done {
			p.send(ctx, Unlock{})
			return nil
		}

		p.page(ctx, id, cd)
		p.send(ctx, Unlock{})
	}
}

// page issues one bounded index request for the current cursor. On any
// failure the cursor stays put so the same page is retried after the
// cooldown.
func (p *Pipeline) page(ctx context.Context, id int, cd *Cooldown) {
	if err := p.pace.Wait(ctx); err != nil {
		return
	}
	cd.Wait(ctx)
	if ctx.Err() != nil {
		return
	}

	req, err := p.indexRequest(ctx)
	if err != nil {
		slog.Error("Bad index request", "worker_id", id, "error", err)
		p.pager.done = true
		p.send(ctx, Cdx{})
		return
	}

	resp, err := p.indexClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Index request failed", "worker_id", id, "cursor", p.pager.cursor, "error", err)
		cd.Set(time.Second)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	slog.Debug("Index page", "worker_id", id, "status", resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		cd.Set(0)
		return
	}

	items, next, err := readIndexPage(resp.Body)
	if err != nil {
		slog.Warn("Index page truncated", "worker_id", id, "error", err)
		cd.Set(time.Second)
		return
	}

	for _, item := range items {
		key, u := capture.Derive(item)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		p.send(ctx, Check{Key: key, URL: u})
	}

	cd.Clear()
	if next == "" {
		// Cursor exhausted; signalled exactly once because only the
		// token holder gets here.
		p.pager.done = true
		p.send(ctx, Cdx{})
		return
	}
	p.pager.cursor = next
}

func (p *Pipeline) indexRequest(ctx context.Context) (*http.Request, error) {
	q := url.Values{}
	q.Set("url", p.cfg.Prefix)
	q.Set("matchType", "prefix")
	q.Set("limit", strconv.Itoa(p.cfg.CDXPageSize))
	q.Set("fl", "timestamp,original,statuscode")
	q.Set("showResumeKey", "true")
	if p.pager.cursor != "" {
		q.Set("resumeKey", p.pager.cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.CDXEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	return req, nil
}

// readIndexPage parses the newline-delimited index response: whitespace
// separated (timestamp, original, statuscode) triples, with a final
// single-token line carrying the next resume key when more pages remain.
// Only captures whose original response succeeded are kept.
func readIndexPage(r io.Reader) ([]capture.Capture, string, error) {
	var items []capture.Capture

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		switch {
		case len(fields) == 0:
			continue
		case len(fields) == 1:
			key := fields[0]
			if unescaped, err := url.QueryUnescape(key); err == nil {
				key = unescaped
			}
			return items, key, scanner.Err()
		case len(fields) >= 3:
			c := capture.Capture{Timestamp: fields[0], Original: fields[1], StatusCode: fields[2]}
			if c.StatusCode == "200" {
				items = append(items, c)
			}
		default:
			slog.Debug("Skipping malformed index line", "line", scanner.Text())
		}
	}
	return items, "", scanner.Err()
}
