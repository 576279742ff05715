package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	State  *string // optional filter: active, aging, archive_eligible
	Tag    *string // optional filter
	Limit  int     // default: 20, max: 100
	Offset int     // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []FileSummary `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// List returns tracked files, newest modification first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	var filters db.ListFilesFilters
	if input.State != nil {
		state := file.State(strings.ToLower(strings.TrimSpace(*input.State)))
		if !file.ValidState(state) {
			return nil, errors.NewInvalidRequest("state must be one of: active, aging, archive_eligible")
		}
		filters.State = &state
	}
	filters.Tag = cleanOptionalString(input.Tag)

	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	files, total, err := db.ListFiles(database, filters, limit, offset)
	if err != nil {
		return nil, errors.NewStorageFailure("list", err)
	}

	items := make([]FileSummary, len(files))
	for i := range files {
		items[i] = Summarize(&files[i])
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}
