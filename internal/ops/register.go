package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/score"
)

// RegisterInput contains parameters for the Register operation.
type RegisterInput struct {
	Path    string // required, workspace-relative
	Content string // required
	Mode    string // default: minimal
	Tags    []string

	SessionID string // optional owning session

	// RetainDays, Stakeholders, and Frameworks are importance hints that
	// feed the retention score.
	RetainDays   int
	Stakeholders []string
	Frameworks   []string

	// Update replaces the content of an already-tracked path. Without it,
	// re-registering with different content is a conflict.
	Update bool
}

// RegisterOutput contains the result of the Register operation.
type RegisterOutput struct {
	File FileSummary `json:"file"`

	// Created is false when registration was an idempotent replay or an
	// update of an existing path.
	Created bool `json:"created"`
}

// Register starts (or updates) lifecycle tracking for a file. Registering
// identical content for an already-tracked path is an idempotent no-op;
// different content requires Update and otherwise conflicts.
func Register(ctx context.Context, database *sql.DB, input RegisterInput) (*RegisterOutput, error) {
	path, err := ValidatePath(input.Path)
	if err != nil {
		return nil, err
	}
	if input.Content == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	mode, ok := file.ParseMode(input.Mode)
	if !ok {
		return nil, errors.NewInvalidRequest("mode must be one of: minimal, professional, research")
	}
	if input.RetainDays < 0 {
		return nil, errors.NewInvalidRequest("retain_days must not be negative")
	}

	hash := file.HashContent(input.Content)
	now := time.Now().Unix()

	existing, err := db.GetFileByPath(database, path)
	if err != nil {
		return nil, errors.NewStorageFailure("register", err)
	}

	f := &file.TrackedFile{
		Path:        path,
		Content:     input.Content,
		ContentHash: hash,
		Mode:        mode,
		Tags:        file.NormalizeTags(input.Tags),
		SessionID:   input.SessionID,
		Score: score.Score(score.Input{
			Content:      input.Content,
			Mode:         mode,
			RetainDays:   input.RetainDays,
			Stakeholders: input.Stakeholders,
			Frameworks:   input.Frameworks,
		}),
		State:      file.StateActive,
		RetainDays: input.RetainDays,
		CreatedAt:  now,
		AccessedAt: now,
		ModifiedAt: now,
	}

	if existing == nil {
		if err := db.InsertFile(database, f); err != nil {
			return nil, errors.NewStorageFailure("register", err)
		}
		return &RegisterOutput{File: Summarize(f), Created: true}, nil
	}

	if existing.ContentHash == hash {
		// Replay of the same registration: no writes, return current state
		return &RegisterOutput{File: Summarize(existing), Created: false}, nil
	}

	if !input.Update {
		return nil, errors.NewConflict(path, existing.ContentHash, hash)
	}

	f.CreatedAt = existing.CreatedAt
	ok, err = db.UpdateFileContent(database, f, now)
	if err != nil {
		return nil, errors.NewStorageFailure("register", err)
	}
	if !ok {
		// Archived between the read and the update
		return nil, errors.NewNotFound(path)
	}
	return &RegisterOutput{File: Summarize(f), Created: false}, nil
}
