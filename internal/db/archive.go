package db

import (
	"database/sql"
	"fmt"

	"github.com/hpungsan/loam/internal/file"
)

// ArchiveFile performs the Archived transition in one transaction: insert
// the archive record, then delete the files row it came from. The delete is
// guarded by path+hash, and by state when fromState is non-empty. The sweep
// passes ArchiveEligible: a touch resets state without changing path or
// hash, so the hash guard alone cannot see it. An explicit archive passes
// "" and takes the file from any state. Of two concurrent archive calls
// exactly one commits; the other returns false with zero writes.
func ArchiveFile(db *sql.DB, rec *file.ArchiveRecord, fromState file.State) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	query := `DELETE FROM files WHERE path = ? AND content_hash = ?`
	args := []any{rec.Path, rec.ContentHash}
	if fromState != "" {
		query += ` AND state = ?`
		args = append(args, string(fromState))
	}
	result, err := tx.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("archive delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive delete rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`
		INSERT INTO archive_records (id, path, content, content_hash, tags_json,
			category, score, archived_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, rec.ID, rec.Path, rec.Content, rec.ContentHash,
		toNullString(file.EncodeTags(rec.Tags)), rec.Category, rec.Score, rec.ArchivedAt); err != nil {
		return false, fmt.Errorf("archive insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit archive: %w", err)
	}
	return true, nil
}

// GetArchiveRecord returns an archive record by ID, or nil if not found.
func GetArchiveRecord(db *sql.DB, id string) (*file.ArchiveRecord, error) {
	row := db.QueryRow(`
		SELECT id, path, content, content_hash, tags_json, category, score, archived_at, indexed_at
		FROM archive_records WHERE id = ?
	`, id)

	var r file.ArchiveRecord
	var tagsJSON sql.NullString
	var indexedAt sql.NullInt64
	err := row.Scan(&r.ID, &r.Path, &r.Content, &r.ContentHash, &tagsJSON,
		&r.Category, &r.Score, &r.ArchivedAt, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archive record: %w", err)
	}
	r.Tags = file.DecodeTags(tagsJSON.String)
	if indexedAt.Valid {
		r.IndexedAt = &indexedAt.Int64
	}
	return &r, nil
}

// ListArchiveRecords returns all archive records in archived_at order.
// The index is rebuildable from this listing alone.
func ListArchiveRecords(db *sql.DB) ([]file.ArchiveRecord, error) {
	rows, err := db.Query(`
		SELECT id, path, content, content_hash, tags_json, category, score, archived_at, indexed_at
		FROM archive_records
		ORDER BY archived_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list archive records: %w", err)
	}
	defer rows.Close()

	var records []file.ArchiveRecord
	for rows.Next() {
		var r file.ArchiveRecord
		var tagsJSON sql.NullString
		var indexedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Path, &r.Content, &r.ContentHash, &tagsJSON,
			&r.Category, &r.Score, &r.ArchivedAt, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan archive record: %w", err)
		}
		r.Tags = file.DecodeTags(tagsJSON.String)
		if indexedAt.Valid {
			r.IndexedAt = &indexedAt.Int64
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// MarkIndexed stamps indexed_at on an archive record. This is the only
// mutation allowed on archive_records after creation.
func MarkIndexed(db *sql.DB, archiveID string, now int64) error {
	_, err := db.Exec(`UPDATE archive_records SET indexed_at = ? WHERE id = ?`, now, archiveID)
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	return nil
}

// PurgeArchiveRecord removes an archive record after writing an audit row
// to archive_purges. This is the only way archived content is ever deleted.
// Returns false if the ID does not exist.
func PurgeArchiveRecord(db *sql.DB, id, reason string, now int64) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	var path, hash string
	err = tx.QueryRow(`SELECT path, content_hash FROM archive_records WHERE id = ?`, id).Scan(&path, &hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("purge lookup: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO archive_purges (archive_id, path, content_hash, reason, purged_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, path, hash, reason, now); err != nil {
		return false, fmt.Errorf("purge log: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM archive_records WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("purge delete: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM index_state WHERE archive_id = ?`, id); err != nil {
		return false, fmt.Errorf("purge index state: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM index_retry WHERE archive_id = ?`, id); err != nil {
		return false, fmt.Errorf("purge index retry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit purge: %w", err)
	}
	return true, nil
}

// ApplyMerge performs an accepted consolidation atomically: insert the
// destination file, delete every source row, and append the merge audit
// entry. Source deletes are guarded by path+hash, so a source that is gone
// or was updated after the merge read it rolls the whole transaction back
// and false is returned; the new content is never lost.
func ApplyMerge(db *sql.DB, dest *file.TrackedFile, sources []file.TrackedFile, sourcesJSON, kind string, confidence float64, now int64) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO files (path, content, content_hash, mode, tags_json, session_id,
			score, state, retain_days, created_at, accessed_at, modified_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
	`, dest.Path, dest.Content, dest.ContentHash, string(dest.Mode),
		toNullString(file.EncodeTags(dest.Tags)), dest.SessionID,
		dest.Score, string(dest.State), dest.RetainDays,
		dest.CreatedAt, dest.AccessedAt, dest.ModifiedAt); err != nil {
		return false, fmt.Errorf("merge insert destination: %w", err)
	}

	for i := range sources {
		result, err := tx.Exec(`
			DELETE FROM files WHERE path = ? AND content_hash = ?
		`, sources[i].Path, sources[i].ContentHash)
		if err != nil {
			return false, fmt.Errorf("merge delete source: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("merge delete rows: %w", err)
		}
		if n == 0 {
			return false, nil
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO merge_log (destination, sources_json, kind, confidence, merged_at)
		VALUES (?, ?, ?, ?, ?)
	`, dest.Path, sourcesJSON, kind, confidence, now); err != nil {
		return false, fmt.Errorf("merge log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit merge: %w", err)
	}
	return true, nil
}

// InsertMergeLog records a completed consolidation for audit/rollback.
// sourcesJSON carries the source paths and content hashes.
func InsertMergeLog(db *sql.DB, destination, sourcesJSON, kind string, confidence float64, now int64) error {
	_, err := db.Exec(`
		INSERT INTO merge_log (destination, sources_json, kind, confidence, merged_at)
		VALUES (?, ?, ?, ?, ?)
	`, destination, sourcesJSON, kind, confidence, now)
	if err != nil {
		return fmt.Errorf("insert merge log: %w", err)
	}
	return nil
}

// MergeLogEntry is one audit row for an applied consolidation.
type MergeLogEntry struct {
	Seq         int64
	Destination string
	SourcesJSON string
	Kind        string
	Confidence  float64
	MergedAt    int64
}

// ListMergeLog returns all merge audit rows, oldest first.
func ListMergeLog(db *sql.DB) ([]MergeLogEntry, error) {
	rows, err := db.Query(`
		SELECT seq, destination, sources_json, kind, confidence, merged_at
		FROM merge_log ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list merge log: %w", err)
	}
	defer rows.Close()

	var entries []MergeLogEntry
	for rows.Next() {
		var e MergeLogEntry
		if err := rows.Scan(&e.Seq, &e.Destination, &e.SourcesJSON, &e.Kind, &e.Confidence, &e.MergedAt); err != nil {
			return nil, fmt.Errorf("scan merge log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
