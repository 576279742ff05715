package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/lifecycle"
)

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	Path string // required

	// IncludeContent returns the stored content snapshot.
	IncludeContent bool
}

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	File     FileSummary        `json:"file"`
	Content  string             `json:"content,omitempty"`
	Estimate lifecycle.Estimate `json:"estimate"`
}

// Status reports a tracked file's current lifecycle state and when it will
// next transition on its own.
func Status(ctx context.Context, database *sql.DB, cfg *config.Config, input StatusInput) (*StatusOutput, error) {
	path, err := ValidatePath(input.Path)
	if err != nil {
		return nil, err
	}

	f, err := db.GetFileByPath(database, path)
	if err != nil {
		return nil, errors.NewStorageFailure("status", err)
	}
	if f == nil {
		return nil, errors.NewNotFound(path)
	}

	out := &StatusOutput{
		File:     Summarize(f),
		Estimate: lifecycle.FromConfig(cfg).NextTransitionEstimate(f),
	}
	if input.IncludeContent {
		out.Content = f.Content
	}
	return out, nil
}
