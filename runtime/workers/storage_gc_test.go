package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestStorageGCWorker_RunsUntilCanceled(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	// A few writes so GC cycles have something to look at.
	err = db.Update(func(txn *badger.Txn) error {
		for i := 0; i < 100; i++ {
			key := fmt.Sprintf("msg:u1-u2:%019d:m%d", i, i)
			if err := txn.Set([]byte(key), []byte("payload")); err != nil {
				return err
			}
		}
		return nil
	})
	req.NoError(err)

	worker := NewStorageGCWorker(slog.Default(), db, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = worker.Run(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}
