// Package pipeline implements the crawl pipeline: index paginators feed
// an admission gate, fetch workers download captures, parse workers run
// the extraction engine, and a single store worker owns the database.
// A single-threaded controller coordinates all of them through typed
// commands, so no pipeline state is ever shared between goroutines.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/YesIKnowIT/SODump/internal/config"
	"github.com/YesIKnowIT/SODump/internal/storage"
)

// fetchJob addresses one capture to download.
type fetchJob struct {
	Key string
	URL string
}

// parseJob carries fetched content to the extraction engine.
type parseJob struct {
	Key  string
	Text []byte
}

// Pipeline owns the channels, the admission semaphore and the worker
// pools of one crawl run.
type Pipeline struct {
	cfg   *config.Config
	store *storage.Store

	ctrl    chan Command
	loaderq chan fetchJob
	parserq chan parseJob
	dbq     chan dbRequest

	// turn serializes index paginators; exactly one token circulates.
	turn  chan struct{}
	pager pager

	sem         *semaphore.Weighted
	pace        *rate.Limiter
	indexClient *http.Client
}

// New assembles a pipeline over an open store.
func New(cfg *config.Config, store *storage.Store) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: store,

		// The controller inbox gets headroom beyond the admission window
		// so workers reporting results rarely block on it.
		ctrl:    make(chan Command, cfg.QueueLength+4*cfg.FetchWorkers),
		loaderq: make(chan fetchJob, cfg.QueueLength),
		parserq: make(chan parseJob, cfg.QueueLength),
		dbq:     make(chan dbRequest, cfg.QueueLength+16),

		turn: make(chan struct{}, 1),

		sem:  semaphore.NewWeighted(int64(cfg.QueueLength)),
		pace: rate.NewLimiter(rate.Every(cfg.IndexPace), 1),
		indexClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// send delivers a command to the controller unless the run is over.
func (p *Pipeline) send(ctx context.Context, cmd Command) {
	select {
	case p.ctrl <- cmd:
	case <-ctx.Done():
	}
}

// Run executes a crawl until the capture index is exhausted and every
// admitted capture is resolved, or until ctx is cancelled. On return all
// workers have stopped and every successful write batch is durable.
func (p *Pipeline) Run(ctx context.Context) error {
	fetcher := NewHTTPFetcher(p.cfg)
	defer fetcher.Close()

	slog.Info("Starting crawl",
		"prefix", p.cfg.Prefix,
		"cdx_workers", p.cfg.CDXWorkers,
		"fetch_workers", p.cfg.FetchWorkers,
		"parse_workers", p.cfg.ParseWorkers,
		"queue_length", p.cfg.QueueLength)

	p.turn <- struct{}{}
	return p.run(ctx, fetcher, func(ctx context.Context, g *errgroup.Group) {
		for i := 0; i < p.cfg.CDXWorkers; i++ {
			id := i
			g.Go(func() error { return p.paginator(ctx, id) })
		}
	})
}

// Reparse re-runs extraction over an already-downloaded archive tree.
// The listed keys replace the capture index as the source of work; the
// rest of the pipeline, existence checks included, behaves exactly as in
// a crawl.
func (p *Pipeline) Reparse(ctx context.Context, keys <-chan string) error {
	fetcher := &FileFetcher{Root: p.cfg.ArchiveRoot}

	slog.Info("Starting reparse",
		"archive_root", p.cfg.ArchiveRoot,
		"fetch_workers", p.cfg.FetchWorkers,
		"parse_workers", p.cfg.ParseWorkers)

	return p.run(ctx, fetcher, func(ctx context.Context, g *errgroup.Group) {
		g.Go(func() error { return p.feed(ctx, keys) })
	})
}

// run wires the controller, the worker pools and the given work source,
// then waits for all of them.
func (p *Pipeline) run(ctx context.Context, fetcher Fetcher, source func(context.Context, *errgroup.Group)) error {
	started := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	ctl := newController(p)
	g.Go(func() error {
		// When the controller exits the run is over; cancelling unblocks
		// every worker still waiting on a queue or the network.
		defer cancel()
		return ctl.Run(ctx)
	})

	g.Go(func() error { return p.storeWorker(ctx) })

	for i := 0; i < p.cfg.FetchWorkers; i++ {
		id := i
		g.Go(func() error { return p.fetchWorker(ctx, id, fetcher) })
	}
	for i := 0; i < p.cfg.ParseWorkers; i++ {
		id := i
		g.Go(func() error { return p.parseWorker(ctx, id) })
	}

	source(ctx, g)

	err := g.Wait()
	slog.Info("Pipeline stopped", "elapsed", time.Since(started).Round(time.Second))
	return err
}

// feed admits each key from the source channel, then declares the index
// exhausted. Each admission takes a permit just like an index hit would.
func (p *Pipeline) feed(ctx context.Context, keys <-chan string) error {
	for {
		var key string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case key, ok = <-keys:
		}
		if !ok {
			p.send(ctx, Cdx{})
			return nil
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		p.send(ctx, Check{Key: key})
	}
}
