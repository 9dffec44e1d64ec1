package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// StorageGCWorker periodically reclaims value-log space in the message
// store. An append-only store never deletes keys, but rewritten vlog
// files still accumulate as badger compacts levels.
type StorageGCWorker struct {
	log      *slog.Logger
	db       *badger.DB
	interval time.Duration
}

func NewStorageGCWorker(log *slog.Logger, db *badger.DB, interval time.Duration) *StorageGCWorker {
	return &StorageGCWorker{log: log, db: db, interval: interval}
}

// Run triggers a value-log GC cycle on every tick. Each cycle repeats
// until badger reports nothing left to rewrite.
func (w *StorageGCWorker) Run(ctx context.Context) error {
	w.log.Info("Starting storage GC worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reclaimed := 0
			for {
				err := w.db.RunValueLogGC(0.5)
				if stderrors.Is(err, badger.ErrNoRewrite) {
					break
				}
				if err != nil {
					w.log.Warn("Value log GC failed", "error", err)
					break
				}
				reclaimed++
			}
			if reclaimed > 0 {
				w.log.Info("Value log GC cycle done", "filesRewritten", reclaimed)
			}
		}
	}
}
