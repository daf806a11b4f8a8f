package pipeline

import (
	"context"
	"log/slog"

	"github.com/YesIKnowIT/SODump/internal/storage"
)

// dbRequest is the message set of the store worker, the only component
// allowed to touch the durable store.
type dbRequest interface{ isDBRequest() }

// dbCheck asks whether a key is already resident; the answer comes back
// to the controller as LOAD or DISCARD.
type dbCheck struct{ Key, URL string }

// dbCommit applies one write batch transactionally.
type dbCommit struct{ Batch []storage.Entry }

// dbAlias records a redirect alias.
type dbAlias struct{ From, To string }

func (dbCheck) isDBRequest()  {}
func (dbCommit) isDBRequest() {}
func (dbAlias) isDBRequest()  {}

// storeWorker drains the db queue until the controller closes it, which
// happens on both completion and cancellation, so buffered commits are
// still written during a shutdown. A failed commit loses that batch and
// nothing else: durability is bounded by the last successful commit.
func (p *Pipeline) storeWorker(ctx context.Context) error {
	for req := range p.dbq {
		switch req := req.(type) {
		case dbCheck:
			exists, err := p.store.Exists(req.Key)
			if err != nil {
				// Treat as absent so the capture is retried rather
				// than silently lost.
				slog.Error("Existence check failed", "key", req.Key, "error", err)
				exists = false
			}
			if exists {
				p.send(ctx, Discard{Key: req.Key, URL: req.URL})
			} else {
				p.send(ctx, Load{Key: req.Key, URL: req.URL})
			}

		case dbCommit:
			if err := p.store.Write(req.Batch); err != nil {
				slog.Error("Commit failed, batch lost", "size", len(req.Batch), "error", err)
				continue
			}
			slog.Info("Commit", "size", len(req.Batch))

		case dbAlias:
			if err := p.store.AddAlias(req.From, req.To); err != nil {
				slog.Error("Alias write failed", "from", req.From, "to", req.To, "error", err)
			}
		}
	}
	return nil
}
