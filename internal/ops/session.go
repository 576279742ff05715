package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/pattern"
)

// RecordSessionInput contains parameters for the RecordSession operation.
type RecordSessionInput struct {
	SessionID       string   // required, unique
	Files           []string // workspace-relative paths touched this session
	Outcome         string   // required, e.g. "success", "abandoned"
	DurationMinutes int      // required, > 0
}

// RecordSessionOutput contains the result of the RecordSession operation.
type RecordSessionOutput struct {
	SessionID  string `json:"session_id"`
	RecordedAt int64  `json:"recorded_at"`
}

// RecordSession appends one session to the history log. History is
// append-only: a session, once recorded, is never modified, and duplicate
// IDs are rejected.
func RecordSession(ctx context.Context, database *sql.DB, input RecordSessionInput) (*RecordSessionOutput, error) {
	if input.SessionID == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}
	if input.Outcome == "" {
		return nil, errors.NewInvalidRequest("outcome is required")
	}
	if input.DurationMinutes <= 0 {
		return nil, errors.NewInvalidRequest("duration_minutes must be positive")
	}

	paths := make([]string, 0, len(input.Files))
	for _, p := range input.Files {
		normalized, ok := file.NormalizePath(p)
		if !ok {
			return nil, errors.NewInvalidRequest("files must be workspace-relative paths")
		}
		paths = append(paths, normalized)
	}

	exists, err := db.SessionExists(database, input.SessionID)
	if err != nil {
		return nil, errors.NewStorageFailure("record session", err)
	}
	if exists {
		return nil, errors.NewInvalidRequest("session already recorded: " + input.SessionID)
	}

	now := time.Now().Unix()
	s := &pattern.Session{
		ID:              input.SessionID,
		Files:           paths,
		Outcome:         input.Outcome,
		DurationMinutes: input.DurationMinutes,
		RecordedAt:      now,
	}
	if err := db.InsertSession(database, s); err != nil {
		return nil, errors.NewStorageFailure("record session", err)
	}

	return &RecordSessionOutput{SessionID: input.SessionID, RecordedAt: now}, nil
}
