package ops

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/index"
)

// ArchiveInput contains parameters for the Archive operation.
type ArchiveInput struct {
	Path string // required
}

// ArchiveOutput contains the result of the Archive operation.
type ArchiveOutput struct {
	ArchiveID  string `json:"archive_id"`
	Path       string `json:"path"`
	Category   string `json:"category"`
	ArchivedAt int64  `json:"archived_at"`

	// Indexed is false when the archive record is durable but index
	// ingestion failed; a retry is queued and the record will become
	// searchable once it succeeds.
	Indexed bool `json:"indexed"`
}

// Archive moves a file into the archive. The transition is atomic: on return
// either exactly one archive record exists and the active row is gone, or
// neither changed. Works from any state, including protected files (explicit
// archive is the only way those leave Active).
func Archive(ctx context.Context, database *sql.DB, idx *index.Manager, input ArchiveInput) (*ArchiveOutput, error) {
	path, err := ValidatePath(input.Path)
	if err != nil {
		return nil, err
	}

	f, err := db.GetFileByPath(database, path)
	if err != nil {
		return nil, errors.NewStorageFailure("archive", err)
	}
	if f == nil {
		return nil, errors.NewNotFound(path)
	}

	rec, err := archiveFile(database, f, "")
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Lost the race: another call archived (or an update replaced) the
		// row after our read
		return nil, errors.NewNotFound(path)
	}

	indexed := ingestOrQueue(database, idx, rec)

	return &ArchiveOutput{
		ArchiveID:  rec.ID,
		Path:       rec.Path,
		Category:   rec.Category,
		ArchivedAt: rec.ArchivedAt,
		Indexed:    indexed,
	}, nil
}

// archiveFile performs the guarded archive transaction for a file read
// moments ago. fromState narrows the guard to that lifecycle state; "" means
// any. Returns nil when the guard found the row already changed.
func archiveFile(database *sql.DB, f *file.TrackedFile, fromState file.State) (*file.ArchiveRecord, error) {
	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	rec := &file.ArchiveRecord{
		ID:          id,
		Path:        f.Path,
		Content:     f.Content,
		ContentHash: f.ContentHash,
		Tags:        f.Tags,
		Category:    file.CategoryForMode(f.Mode),
		Score:       f.Score,
		ArchivedAt:  time.Now().Unix(),
	}

	ok, err := db.ArchiveFile(database, rec, fromState)
	if err != nil {
		return nil, errors.NewStorageFailure("archive", err)
	}
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// ingestOrQueue makes an archived record searchable, or queues a retry if
// the index cannot take it right now. Archive durability never depends on
// the index.
func ingestOrQueue(database *sql.DB, idx *index.Manager, rec *file.ArchiveRecord) bool {
	now := time.Now().Unix()
	if err := idx.Ingest(rec, now); err != nil {
		if qerr := db.EnqueueIndexRetry(database, rec.ID, err.Error(), index.RetryBackoff(1, now)); qerr != nil {
			log.Printf("archive %s: index retry enqueue failed: %v (ingest: %v)", rec.ID, qerr, err)
		}
		return false
	}
	return true
}
