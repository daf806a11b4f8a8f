package pipeline

import (
	"context"
	"testing"

	"github.com/YesIKnowIT/SODump/internal/extract"
)

// admit reserves one permit and delivers a Check, the way a paginator
// admits a capture.
func admit(t *testing.T, p *Pipeline, c *Controller, key string) {
	t.Helper()
	if !p.sem.TryAcquire(1) {
		t.Fatalf("no permit available for %s", key)
	}
	c.dispatch(Check{Key: key, URL: "u"})
}

func TestControllerCheckReservesKey(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	admit(t, p, c, "k")

	if c.inflight != 1 {
		t.Errorf("inflight = %d, want 1", c.inflight)
	}
	if ttl, ok := c.pending["k"]; !ok || ttl != p.cfg.MaxRetry {
		t.Errorf("pending[k] = %d,%v, want full budget", ttl, ok)
	}
	if len(c.dbOut) != 1 {
		t.Fatalf("dbOut = %d requests, want 1", len(c.dbOut))
	}
	if _, ok := c.dbOut[0].(dbCheck); !ok {
		t.Errorf("dbOut[0] = %T, want dbCheck", c.dbOut[0])
	}
}

func TestControllerDuplicateCheckReleases(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	admit(t, p, c, "k")
	admit(t, p, c, "k")

	if c.inflight != 1 {
		t.Errorf("inflight = %d, want 1 after duplicate", c.inflight)
	}
	if len(c.dbOut) != 1 {
		t.Errorf("dbOut = %d requests, want 1: the duplicate must not reach the store", len(c.dbOut))
	}
	// The duplicate's permit came back.
	if !p.sem.TryAcquire(1) {
		t.Errorf("duplicate check did not release its permit")
	}
}

func TestControllerDiscardReleases(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	admit(t, p, c, "k")
	c.dispatch(Discard{Key: "k", URL: "u"})

	if c.inflight != 0 {
		t.Errorf("inflight = %d, want 0", c.inflight)
	}
	if _, ok := c.pending["k"]; ok {
		t.Errorf("discarded key still pending")
	}
	if !p.sem.TryAcquire(1) {
		t.Errorf("discard did not release the permit")
	}
}

func TestControllerRetryBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetry = 3
	p := New(cfg, nil)
	c := newController(p)

	admit(t, p, c, "k")
	c.dispatch(Load{Key: "k", URL: "u"})
	if len(c.loadOut) != 1 {
		t.Fatalf("loadOut = %d, want 1 after first load", len(c.loadOut))
	}

	// A key that always fails is fetched exactly MaxRetry times.
	c.dispatch(Retry{Key: "k", URL: "u"})
	c.dispatch(Retry{Key: "k", URL: "u"})
	if len(c.loadOut) != cfg.MaxRetry {
		t.Fatalf("loadOut = %d, want %d attempts", len(c.loadOut), cfg.MaxRetry)
	}

	// Budget exhausted: the key is dropped and its permit released.
	c.dispatch(Retry{Key: "k", URL: "u"})
	if len(c.loadOut) != cfg.MaxRetry {
		t.Errorf("loadOut = %d, exhausted capture must not re-enqueue", len(c.loadOut))
	}
	if _, ok := c.pending["k"]; ok {
		t.Errorf("exhausted key still pending")
	}
	if c.inflight != 0 {
		t.Errorf("inflight = %d, want 0", c.inflight)
	}
	if !p.sem.TryAcquire(1) {
		t.Errorf("drop did not release the permit")
	}
	if c.stats.drops != 1 {
		t.Errorf("drops = %d, want 1", c.stats.drops)
	}
}

func TestControllerParseAccounting(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	c.dispatch(Parse{Key: "k", Text: []byte("x")})
	if c.parsing != 1 {
		t.Fatalf("parsing = %d, want 1", c.parsing)
	}
	if len(c.parseOut) != 1 {
		t.Fatalf("parseOut = %d, want 1", len(c.parseOut))
	}

	c.dispatch(StoreResult{Key: "k", Status: extract.StatusOK})
	if c.parsing != 0 {
		t.Errorf("parsing = %d, want 0 after store", c.parsing)
	}
	if len(c.batch) != 1 {
		t.Errorf("batch = %d entries, want 1", len(c.batch))
	}
}

func TestControllerFetchResultDoesNotTouchParsing(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	c.dispatch(StoreResult{Key: "k", Status: extract.StatusError, FromFetch: true})
	if c.parsing != 0 {
		t.Errorf("parsing = %d, want 0: fetch classifications carry no extraction obligation", c.parsing)
	}
	if len(c.batch) != 1 {
		t.Errorf("batch = %d entries, want 1", len(c.batch))
	}
}

func TestControllerBatchFlushAtThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2
	p := New(cfg, nil)
	c := newController(p)

	c.dispatch(StoreResult{Key: "a", Status: extract.StatusOK, FromFetch: true})
	if len(c.dbOut) != 0 {
		t.Fatalf("batch flushed before reaching the threshold")
	}

	c.dispatch(StoreResult{Key: "b", Status: extract.StatusOK, FromFetch: true})
	if len(c.batch) != 0 {
		t.Errorf("batch = %d entries after flush, want 0", len(c.batch))
	}
	if len(c.dbOut) != 1 {
		t.Fatalf("dbOut = %d, want 1 commit", len(c.dbOut))
	}
	commit, ok := c.dbOut[0].(dbCommit)
	if !ok {
		t.Fatalf("dbOut[0] = %T, want dbCommit", c.dbOut[0])
	}
	if len(commit.Batch) != 2 {
		t.Errorf("commit batch = %d entries, want 2", len(commit.Batch))
	}
}

func TestControllerFollowInheritsPermit(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	admit(t, p, c, "from")
	c.dbOut = nil

	c.dispatch(Follow{From: "from", Key: "to", URL: "u2"})

	if _, ok := c.pending["from"]; ok {
		t.Errorf("redirect source still pending")
	}
	if _, ok := c.pending["to"]; !ok {
		t.Errorf("redirect target not admitted")
	}
	if c.inflight != 1 {
		t.Errorf("inflight = %d, want 1: the permit transfers", c.inflight)
	}
	if p.sem.TryAcquire(int64(p.cfg.QueueLength)) {
		t.Errorf("permit was released although the target inherited it")
	}

	var aliases, checks int
	for _, req := range c.dbOut {
		switch req.(type) {
		case dbAlias:
			aliases++
		case dbCheck:
			checks++
		}
	}
	if aliases != 1 || checks != 1 {
		t.Errorf("dbOut has %d aliases and %d checks, want 1 and 1", aliases, checks)
	}
}

func TestControllerFollowToPendingTargetReleases(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	admit(t, p, c, "from")
	admit(t, p, c, "to")

	c.dispatch(Follow{From: "from", Key: "to", URL: "u2"})

	if c.inflight != 1 {
		t.Errorf("inflight = %d, want 1", c.inflight)
	}
	if !p.sem.TryAcquire(1) {
		t.Errorf("permit not released although the target was already pending")
	}
}

func TestControllerUnlockReturnsTurnToken(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	c.dispatch(Unlock{})
	select {
	case <-p.turn:
	default:
		t.Errorf("turn token not returned")
	}
}

func TestControllerFinished(t *testing.T) {
	p := New(testConfig(), nil)
	c := newController(p)

	if c.finished() {
		t.Fatalf("fresh controller must not be finished: the index is still live")
	}

	c.dispatch(Cdx{})
	if !c.finished() {
		t.Errorf("exhausted index with no work in flight should finish")
	}

	admit(t, p, c, "k")
	if c.finished() {
		t.Errorf("in-flight capture should block completion")
	}

	c.dbOut = nil
	c.dispatch(Done{Key: "k"})
	if !c.finished() {
		t.Errorf("drained controller should finish")
	}
}

func TestControllerRunCompletes(t *testing.T) {
	// Drive a minimal life cycle through the live Run loop: one capture
	// admitted, loaded, fetched, parsed and stored, then the index
	// declared exhausted. Run must flush the batch, close the db queue
	// and return nil.
	cfg := testConfig()
	p := New(cfg, nil)
	c := newController(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	p.send(ctx, Check{Key: "k", URL: "u"})

	req := <-p.dbq
	if _, ok := req.(dbCheck); !ok {
		t.Fatalf("expected existence check, got %T", req)
	}
	p.send(ctx, Load{Key: "k", URL: "u"})

	job := <-p.loaderq
	if job.Key != "k" {
		t.Fatalf("fetch job key = %q", job.Key)
	}
	p.send(ctx, Parse{Key: "k", Text: []byte("x")})
	p.send(ctx, Done{Key: "k"})

	pjob := <-p.parserq
	if pjob.Key != "k" {
		t.Fatalf("parse job key = %q", pjob.Key)
	}
	p.send(ctx, StoreResult{Key: "k", Status: extract.StatusOK})
	p.send(ctx, Cdx{})

	var commits int
	for req := range p.dbq {
		if commit, ok := req.(dbCommit); ok {
			commits++
			if len(commit.Batch) != 1 {
				t.Errorf("final batch = %d entries, want 1", len(commit.Batch))
			}
		}
	}
	if commits != 1 {
		t.Errorf("commits = %d, want exactly one final flush", commits)
	}

	if err := <-errc; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}
