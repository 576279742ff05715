package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
)

// TouchInput contains parameters for the Touch operation.
type TouchInput struct {
	Path string // required
}

// TouchOutput contains the result of the Touch operation.
type TouchOutput struct {
	File FileSummary `json:"file"`
}

// Touch records an access: the file returns to Active and its access clock
// restarts, whatever state it aged into.
func Touch(ctx context.Context, database *sql.DB, input TouchInput) (*TouchOutput, error) {
	path, err := ValidatePath(input.Path)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	ok, err := db.TouchFile(database, path, now)
	if err != nil {
		return nil, errors.NewStorageFailure("touch", err)
	}
	if !ok {
		return nil, errors.NewNotFound(path)
	}

	f, err := db.GetFileByPath(database, path)
	if err != nil {
		return nil, errors.NewStorageFailure("touch", err)
	}
	if f == nil {
		return nil, errors.NewNotFound(path)
	}
	return &TouchOutput{File: Summarize(f)}, nil
}
