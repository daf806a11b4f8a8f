package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/YesIKnowIT/SODump/internal/storage"
)

// Controller is the single-threaded orchestration state machine. It owns
// the pending set and the write batch; every mutation happens through
// its command inbox. Outbound work is staged in outboxes and delivered
// through conditional select sends, so the controller itself never
// blocks on a full stage queue.
type Controller struct {
	p *Pipeline

	// pending maps a storage key to its remaining attempt budget. A key
	// appears at most once: this is the at-most-one-concurrent-attempt
	// guarantee.
	pending map[string]int
	batch   []storage.Entry

	loadOut  []fetchJob
	parseOut []parseJob
	dbOut    []dbRequest

	inflight int // admitted captures whose permit is not yet released
	parsing  int // extraction obligations not yet stored
	cdxDone  bool

	stats controllerStats
}

type controllerStats struct {
	checks  int
	skips   int
	stores  int
	commits int
	drops   int
	ttl     []int // retries by remaining budget after decrement
}

func newController(p *Pipeline) *Controller {
	return &Controller{
		p:       p,
		pending: make(map[string]int),
		stats:   controllerStats{ttl: make([]int, p.cfg.MaxRetry)},
	}
}

// Run processes commands until the index is exhausted and no capture is
// in flight, or the context is cancelled. Either way the write batch is
// flushed to the store worker and the db queue is closed so buffered
// commits still land.
func (c *Controller) Run(ctx context.Context) error {
	tick := time.NewTicker(c.p.cfg.StatsInterval)
	defer tick.Stop()

	for {
		if c.finished() {
			c.shutdown()
			return nil
		}

		// Arm a send case only when its outbox has work.
		var (
			loadDst   chan<- fetchJob
			parseDst  chan<- parseJob
			dbDst     chan<- dbRequest
			loadHead  fetchJob
			parseHead parseJob
			dbHead    dbRequest
		)
		if len(c.loadOut) > 0 {
			loadDst, loadHead = c.p.loaderq, c.loadOut[0]
		}
		if len(c.parseOut) > 0 {
			parseDst, parseHead = c.p.parserq, c.parseOut[0]
		}
		if len(c.dbOut) > 0 {
			dbDst, dbHead = c.p.dbq, c.dbOut[0]
		}

		select {
		case cmd := <-c.p.ctrl:
			c.dispatch(cmd)
		case loadDst <- loadHead:
			c.loadOut = c.loadOut[1:]
		case parseDst <- parseHead:
			c.parseOut = c.parseOut[1:]
		case dbDst <- dbHead:
			c.dbOut = c.dbOut[1:]
		case <-tick.C:
			c.report()
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		}
	}
}

func (c *Controller) dispatch(cmd Command) {
	switch cmd := cmd.(type) {
	case Check:
		c.stats.checks++
		c.inflight++
		if _, ok := c.pending[cmd.Key]; ok {
			// Already in flight; duplicate suppressed.
			c.release()
			return
		}
		// Reserve the key before the asynchronous existence check so a
		// second CHECK for it cannot double-admit.
		c.pending[cmd.Key] = c.p.cfg.MaxRetry
		c.dbOut = append(c.dbOut, dbCheck{Key: cmd.Key, URL: cmd.URL})

	case Load:
		c.retry(cmd.Key, cmd.URL)

	case Discard:
		c.stats.skips++
		delete(c.pending, cmd.Key)
		c.release()

	case Retry:
		c.retry(cmd.Key, cmd.URL)

	case Parse:
		c.parsing++
		c.parseOut = append(c.parseOut, parseJob{Key: cmd.Key, Text: cmd.Text})

	case StoreResult:
		if !cmd.FromFetch {
			c.parsing--
		}
		c.stats.stores++
		c.batch = append(c.batch, storage.Entry{Key: cmd.Key, Status: cmd.Status, Records: cmd.Records})
		if len(c.batch) >= c.p.cfg.BatchSize {
			c.flush()
		}

	case Done:
		delete(c.pending, cmd.Key)
		c.release()

	case Follow:
		// The source capture is finished; its permit carries over to
		// the redirect target.
		delete(c.pending, cmd.From)
		c.dbOut = append(c.dbOut, dbAlias{From: cmd.From, To: cmd.Key})
		if _, ok := c.pending[cmd.Key]; ok {
			c.release()
			return
		}
		c.pending[cmd.Key] = c.p.cfg.MaxRetry
		c.dbOut = append(c.dbOut, dbCheck{Key: cmd.Key, URL: cmd.URL})

	case Unlock:
		// Single token, capacity-1 channel: the send cannot block.
		c.p.turn <- struct{}{}

	case Cdx:
		c.cdxDone = true
	}
}

// retry decrements the attempt budget and either re-enqueues the fetch
// or drops the capture for good. A key is fetched at most MaxRetry
// times: the first LOAD spends one unit, each RETRY another.
func (c *Controller) retry(key, url string) {
	ttl, ok := c.pending[key]
	if !ok {
		ttl = c.p.cfg.MaxRetry
	}
	ttl--
	if ttl >= 0 && ttl < len(c.stats.ttl) {
		c.stats.ttl[ttl]++
	}

	if ttl < 0 {
		delete(c.pending, key)
		c.stats.drops++
		slog.Warn("Attempt budget exhausted", "key", key)
		c.release()
		return
	}

	c.pending[key] = ttl
	c.loadOut = append(c.loadOut, fetchJob{Key: key, URL: url})
}

func (c *Controller) release() {
	c.p.sem.Release(1)
	c.inflight--
}

// flush hands the current batch to the store worker.
func (c *Controller) flush() {
	if len(c.batch) == 0 {
		return
	}
	c.dbOut = append(c.dbOut, dbCommit{Batch: c.batch})
	c.batch = nil
	c.stats.commits++
}

// finished reports run completion: the index is exhausted, nothing is
// admitted or awaiting extraction, and every staged message went out.
func (c *Controller) finished() bool {
	return c.cdxDone &&
		c.inflight == 0 &&
		c.parsing == 0 &&
		len(c.loadOut) == 0 &&
		len(c.parseOut) == 0 &&
		len(c.dbOut) == 0
}

// shutdown flushes the batch and hands the store worker whatever can
// still be delivered, then closes the db queue so it drains and exits.
// On the completion path no existence checks are outstanding, so the
// remaining messages are commits and aliases only and the blocking sends
// are safe.
func (c *Controller) shutdown() {
	c.flush()
	for _, req := range c.dbOut {
		c.p.dbq <- req
	}
	c.dbOut = nil
	close(c.p.dbq)
	c.report()
}

func (c *Controller) report() {
	slog.Info("Pipeline stats",
		"pending", len(c.pending),
		"inflight", c.inflight,
		"parsing", c.parsing,
		"checks", c.stats.checks,
		"skips", c.stats.skips,
		"stores", c.stats.stores,
		"commits", c.stats.commits,
		"drops", c.stats.drops,
		"ttl", c.stats.ttl,
		"batch", len(c.batch),
		"index_done", c.cdxDone)
}
