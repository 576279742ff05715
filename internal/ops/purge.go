package ops

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/index"
)

// PurgeArchiveInput contains parameters for the PurgeArchive operation.
type PurgeArchiveInput struct {
	ArchiveID string // required
	Reason    string // required, kept in the audit log
}

// PurgeArchiveOutput contains the result of the PurgeArchive operation.
type PurgeArchiveOutput struct {
	ArchiveID string `json:"archive_id"`
	Path      string `json:"path"`
	PurgedAt  int64  `json:"purged_at"`
}

// PurgeArchive permanently deletes an archived record. The only deletion
// path for archived content, and it always leaves an audit row behind.
func PurgeArchive(ctx context.Context, database *sql.DB, idx *index.Manager, input PurgeArchiveInput) (*PurgeArchiveOutput, error) {
	id := strings.TrimSpace(input.ArchiveID)
	if id == "" {
		return nil, errors.NewInvalidRequest("archive_id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, errors.NewInvalidRequest("reason is required")
	}

	rec, err := db.GetArchiveRecord(database, id)
	if err != nil {
		return nil, errors.NewStorageFailure("purge", err)
	}
	if rec == nil {
		return nil, errors.NewNotFound(id)
	}

	// Drop the FTS row first, while the segment assignment still exists.
	// Best effort: a degraded segment must not block the purge, and Reindex
	// clears any leftover either way.
	if err := idx.Remove(id); err != nil {
		log.Printf("purge %s: index remove: %v", id, err)
	}

	now := time.Now().Unix()
	ok, err := db.PurgeArchiveRecord(database, id, reason, now)
	if err != nil {
		return nil, errors.NewStorageFailure("purge", err)
	}
	if !ok {
		return nil, errors.NewNotFound(id)
	}

	return &PurgeArchiveOutput{ArchiveID: id, Path: rec.Path, PurgedAt: now}, nil
}
