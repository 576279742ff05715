// Package ops implements the operation layer: every user-facing action is a
// function taking a context, the database, and a typed input, returning a
// typed output or a structured error. The CLI and MCP surfaces both call
// through here, so behavior is identical regardless of transport.
package ops

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/lifecycle"
)

// Pagination limits
const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxQueryChars      = 200
	MaxSnippetChars    = 300
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// FileSummary is the transport view of a tracked file: metadata without the
// content snapshot.
type FileSummary struct {
	Path        string     `json:"path"`
	ContentHash string     `json:"content_hash"`
	Mode        file.Mode  `json:"mode"`
	Tags        []string   `json:"tags,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Score       float64    `json:"score"`
	State       file.State `json:"state"`
	RetainDays  int        `json:"retain_days,omitempty"`
	Chars       int        `json:"chars"`
	CreatedAt   int64      `json:"created_at"`
	AccessedAt  int64      `json:"accessed_at"`
	ModifiedAt  int64      `json:"modified_at"`
}

// Summarize builds the transport view of a tracked file.
func Summarize(f *file.TrackedFile) FileSummary {
	return FileSummary{
		Path:        f.Path,
		ContentHash: f.ContentHash,
		Mode:        f.Mode,
		Tags:        f.Tags,
		SessionID:   f.SessionID,
		Score:       f.Score,
		State:       f.State,
		RetainDays:  f.RetainDays,
		Chars:       file.CountChars(f.Content),
		CreatedAt:   f.CreatedAt,
		AccessedAt:  f.AccessedAt,
		ModifiedAt:  f.ModifiedAt,
	}
}

// ValidatePath normalizes a workspace-relative path, rejecting empty,
// absolute, and escaping paths.
func ValidatePath(p string) (string, error) {
	normalized, ok := file.NormalizePath(p)
	if !ok {
		return "", errors.NewInvalidRequest("path must be a non-empty workspace-relative path")
	}
	return normalized, nil
}

// clampLimit applies default and maximum bounds to a caller-supplied limit.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// cleanOptionalString trims an optional string, mapping blank to nil.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// sweepGuard serializes sweep runs per sweep type within this process. A
// trigger that finds its sweep already running skips rather than queueing.
var sweepGuard = lifecycle.NewGuard()
