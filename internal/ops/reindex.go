package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/index"
)

// ReindexOutput contains the result of the Reindex operation.
type ReindexOutput struct {
	Skipped  bool `json:"skipped"`
	Records  int  `json:"records"`
	Segments int  `json:"segments"`
}

// Reindex rebuilds the archive search index from scratch out of the archive
// store. The recovery path for corrupted or lost segment files; archive
// content is never touched.
func Reindex(ctx context.Context, idx *index.Manager) (*ReindexOutput, error) {
	if !sweepGuard.TryAcquire("reindex") {
		return &ReindexOutput{Skipped: true}, nil
	}
	defer sweepGuard.Release("reindex")

	stats, err := idx.Reindex(time.Now().Unix())
	if err != nil {
		return nil, errors.NewStorageFailure("reindex", err)
	}
	return &ReindexOutput{Records: stats.Records, Segments: stats.Segments}, nil
}

// RetryIndexingOutput contains the result of the RetryIndexing operation.
type RetryIndexingOutput struct {
	Skipped bool `json:"skipped"`
	Indexed int  `json:"indexed"`
}

// RetryIndexing drains the due portion of the index retry queue, making
// archive records whose initial ingestion failed searchable. Shares the
// reindex slot: retrying mid-rebuild would only re-queue everything.
func RetryIndexing(ctx context.Context, database *sql.DB, idx *index.Manager) (*RetryIndexingOutput, error) {
	if !sweepGuard.TryAcquire("reindex") {
		return &RetryIndexingOutput{Skipped: true}, nil
	}
	defer sweepGuard.Release("reindex")

	indexed, err := idx.ProcessRetries(time.Now().Unix())
	if err != nil {
		return nil, errors.NewStorageFailure("retry indexing", err)
	}
	return &RetryIndexingOutput{Indexed: indexed}, nil
}
