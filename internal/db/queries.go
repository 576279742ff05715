package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/loam/internal/file"
)

// InsertFile inserts a new tracked file row.
func InsertFile(db *sql.DB, f *file.TrackedFile) error {
	_, err := db.Exec(`
		INSERT INTO files (path, content, content_hash, mode, tags_json, session_id,
			score, state, retain_days, created_at, accessed_at, modified_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
	`, f.Path, f.Content, f.ContentHash, string(f.Mode), toNullString(file.EncodeTags(f.Tags)),
		f.SessionID, f.Score, string(f.State), f.RetainDays,
		f.CreatedAt, f.AccessedAt, f.ModifiedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFileByPath returns the active record for path, or nil if not tracked.
func GetFileByPath(db *sql.DB, path string) (*file.TrackedFile, error) {
	row := db.QueryRow(`
		SELECT path, content, content_hash, mode, tags_json, session_id,
			score, state, retain_days, created_at, accessed_at, modified_at
		FROM files WHERE path = ?
	`, path)
	return scanFile(row)
}

// UpdateFileContent replaces a file's content, hash, score, tags, and mode,
// stamping modified/accessed timestamps and resetting state to Active.
// Returns false if the path is no longer tracked.
func UpdateFileContent(db *sql.DB, f *file.TrackedFile, now int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE files SET content = ?, content_hash = ?, mode = ?, tags_json = ?,
			session_id = NULLIF(?, ''), score = ?, retain_days = ?,
			state = 'active', accessed_at = ?, modified_at = ?
		WHERE path = ?
	`, f.Content, f.ContentHash, string(f.Mode), toNullString(file.EncodeTags(f.Tags)),
		f.SessionID, f.Score, f.RetainDays, now, now, f.Path)
	if err != nil {
		return false, fmt.Errorf("update file: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update file rows: %w", err)
	}
	return n > 0, nil
}

// TouchFile records an access: resets state to Active and updates
// accessed_at. Returns false if the path is not tracked. This is the only
// transition out of Aging/ArchiveEligible that does not archive.
func TouchFile(db *sql.DB, path string, now int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE files SET state = 'active', accessed_at = ?
		WHERE path = ?
	`, now, path)
	if err != nil {
		return false, fmt.Errorf("touch file: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch file rows: %w", err)
	}
	return n > 0, nil
}

// TransitionState performs a compare-and-swap on lifecycle state.
// Returns false if the row was not in the expected state (lost race or
// concurrent access reset); callers treat that as a no-op, not an error.
func TransitionState(db *sql.DB, path string, from, to file.State) (bool, error) {
	result, err := db.Exec(`
		UPDATE files SET state = ? WHERE path = ? AND state = ?
	`, string(to), path, string(from))
	if err != nil {
		return false, fmt.Errorf("transition state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition state rows: %w", err)
	}
	return n > 0, nil
}

// ListStale returns files in the given state whose accessed_at is older than
// cutoff, optionally excluding files at or above a protect score. Results
// are ordered by path for deterministic sweep order.
func ListStale(db *sql.DB, state file.State, cutoff int64, protectScore float64) ([]file.TrackedFile, error) {
	query := `
		SELECT path, content, content_hash, mode, tags_json, session_id,
			score, state, retain_days, created_at, accessed_at, modified_at
		FROM files WHERE state = ? AND accessed_at < ?
	`
	args := []any{string(state), cutoff}
	if protectScore > 0 {
		query += " AND score < ?"
		args = append(args, protectScore)
	}
	query += " ORDER BY path"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// ListFilesFilters narrows ListFiles results.
type ListFilesFilters struct {
	State *file.State
	Tag   *string
}

// ListFiles returns active-table rows matching the filters, newest
// modification first, plus the total count for pagination.
func ListFiles(db *sql.DB, filters ListFilesFilters, limit, offset int) ([]file.TrackedFile, int, error) {
	where := []string{"1=1"}
	var args []any
	if filters.State != nil {
		where = append(where, "state = ?")
		args = append(args, string(*filters.State))
	}
	if filters.Tag != nil {
		// Tags are stored as a JSON array of lowercase strings
		where = append(where, `tags_json LIKE '%"' || ? || '"%'`)
		args = append(args, strings.ToLower(*filters.Tag))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM files WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT path, content, content_hash, mode, tags_json, session_id,
			score, state, retain_days, created_at, accessed_at, modified_at
		FROM files WHERE %s
		ORDER BY modified_at DESC, path
		LIMIT ? OFFSET ?
	`, cond)
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// GetFilesByPaths returns the active rows for the given paths, ordered by
// path. Missing paths are simply absent from the result.
func GetFilesByPaths(db *sql.DB, paths []string) ([]file.TrackedFile, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	query := fmt.Sprintf(`
		SELECT path, content, content_hash, mode, tags_json, session_id,
			score, state, retain_days, created_at, accessed_at, modified_at
		FROM files WHERE path IN (%s)
		ORDER BY path
	`, strings.Join(placeholders, ","))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get files by paths: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func scanFile(row *sql.Row) (*file.TrackedFile, error) {
	var f file.TrackedFile
	var mode, state string
	var tagsJSON, sessionID sql.NullString
	err := row.Scan(&f.Path, &f.Content, &f.ContentHash, &mode, &tagsJSON, &sessionID,
		&f.Score, &state, &f.RetainDays, &f.CreatedAt, &f.AccessedAt, &f.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.Mode = file.Mode(mode)
	f.State = file.State(state)
	f.Tags = file.DecodeTags(tagsJSON.String)
	f.SessionID = sessionID.String
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]file.TrackedFile, error) {
	var files []file.TrackedFile
	for rows.Next() {
		var f file.TrackedFile
		var mode, state string
		var tagsJSON, sessionID sql.NullString
		if err := rows.Scan(&f.Path, &f.Content, &f.ContentHash, &mode, &tagsJSON, &sessionID,
			&f.Score, &state, &f.RetainDays, &f.CreatedAt, &f.AccessedAt, &f.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan files: %w", err)
		}
		f.Mode = file.Mode(mode)
		f.State = file.State(state)
		f.Tags = file.DecodeTags(tagsJSON.String)
		f.SessionID = sessionID.String
		files = append(files, f)
	}
	return files, rows.Err()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
