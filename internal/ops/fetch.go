package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
)

// GetArchiveInput contains parameters for the GetArchive operation.
type GetArchiveInput struct {
	ArchiveID      string // required
	IncludeContent bool
}

// ArchiveSummary is the transport view of an archive record.
type ArchiveSummary struct {
	ArchiveID  string   `json:"archive_id"`
	Path       string   `json:"path"`
	Tags       []string `json:"tags,omitempty"`
	Category   string   `json:"category"`
	Score      float64  `json:"score"`
	ArchivedAt int64    `json:"archived_at"`
	IndexedAt  *int64   `json:"indexed_at,omitempty"`
}

// GetArchiveOutput contains the result of the GetArchive operation.
type GetArchiveOutput struct {
	Record  ArchiveSummary `json:"record"`
	Content string         `json:"content,omitempty"`
}

// GetArchive retrieves an archived record by ID.
func GetArchive(ctx context.Context, database *sql.DB, input GetArchiveInput) (*GetArchiveOutput, error) {
	id := strings.TrimSpace(input.ArchiveID)
	if id == "" {
		return nil, errors.NewInvalidRequest("archive_id is required")
	}

	rec, err := db.GetArchiveRecord(database, id)
	if err != nil {
		return nil, errors.NewStorageFailure("get archive", err)
	}
	if rec == nil {
		return nil, errors.NewNotFound(id)
	}

	out := &GetArchiveOutput{
		Record: ArchiveSummary{
			ArchiveID:  rec.ID,
			Path:       rec.Path,
			Tags:       rec.Tags,
			Category:   rec.Category,
			Score:      rec.Score,
			ArchivedAt: rec.ArchivedAt,
			IndexedAt:  rec.IndexedAt,
		},
	}
	if input.IncludeContent {
		out.Content = rec.Content
	}
	return out, nil
}
