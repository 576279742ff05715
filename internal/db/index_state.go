package db

import (
	"database/sql"
	"fmt"
)

// GetIndexSegment returns the segment an archive ID was ingested into, or
// empty string if it has never been indexed. Re-ingesting the same ID is
// routed to the same segment, which is what makes ingestion idempotent.
func GetIndexSegment(db *sql.DB, archiveID string) (string, error) {
	var segment string
	err := db.QueryRow(`SELECT segment FROM index_state WHERE archive_id = ?`, archiveID).Scan(&segment)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get index segment: %w", err)
	}
	return segment, nil
}

// SetIndexSegment records (or updates) the segment assignment for an
// archive ID.
func SetIndexSegment(db *sql.DB, archiveID, segment string, now int64) error {
	_, err := db.Exec(`
		INSERT INTO index_state (archive_id, segment, indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(archive_id) DO UPDATE SET segment = excluded.segment, indexed_at = excluded.indexed_at
	`, archiveID, segment, now)
	if err != nil {
		return fmt.Errorf("set index segment: %w", err)
	}
	return nil
}

// CountSegmentRecords returns how many archive IDs are assigned to a segment.
func CountSegmentRecords(db *sql.DB, segment string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM index_state WHERE segment = ?`, segment).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count segment records: %w", err)
	}
	return count, nil
}

// ListSegments returns the distinct segment names in creation order
// (segment names sort lexicographically by sequence number).
func ListSegments(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT segment FROM index_state ORDER BY segment`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// ClearIndexState drops all segment assignments (used by Reindex).
func ClearIndexState(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM index_state`); err != nil {
		return fmt.Errorf("clear index state: %w", err)
	}
	return nil
}

// IndexRetry is one queued index-ingestion retry.
type IndexRetry struct {
	ArchiveID     string
	Attempts      int
	NextAttemptAt int64
	LastError     string
}

// EnqueueIndexRetry queues (or re-queues) an archive ID whose index
// ingestion failed. Attempts accumulate across enqueues for backoff.
func EnqueueIndexRetry(db *sql.DB, archiveID, lastError string, nextAttemptAt int64) error {
	_, err := db.Exec(`
		INSERT INTO index_retry (archive_id, attempts, next_attempt_at, last_error)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(archive_id) DO UPDATE SET
			attempts = attempts + 1,
			next_attempt_at = excluded.next_attempt_at,
			last_error = excluded.last_error
	`, archiveID, nextAttemptAt, lastError)
	if err != nil {
		return fmt.Errorf("enqueue index retry: %w", err)
	}
	return nil
}

// DueIndexRetries returns queued retries whose next_attempt_at has passed,
// ordered by archive ID for deterministic processing.
func DueIndexRetries(db *sql.DB, now int64) ([]IndexRetry, error) {
	rows, err := db.Query(`
		SELECT archive_id, attempts, next_attempt_at, COALESCE(last_error, '')
		FROM index_retry WHERE next_attempt_at <= ?
		ORDER BY archive_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("due index retries: %w", err)
	}
	defer rows.Close()

	var retries []IndexRetry
	for rows.Next() {
		var r IndexRetry
		if err := rows.Scan(&r.ArchiveID, &r.Attempts, &r.NextAttemptAt, &r.LastError); err != nil {
			return nil, fmt.Errorf("scan index retry: %w", err)
		}
		retries = append(retries, r)
	}
	return retries, rows.Err()
}

// ClearIndexRetries drops the whole retry queue (used by Reindex, which
// re-ingests every record anyway).
func ClearIndexRetries(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM index_retry`); err != nil {
		return fmt.Errorf("clear index retries: %w", err)
	}
	return nil
}

// DeleteIndexRetry removes a retry entry after a successful ingestion.
func DeleteIndexRetry(db *sql.DB, archiveID string) error {
	if _, err := db.Exec(`DELETE FROM index_retry WHERE archive_id = ?`, archiveID); err != nil {
		return fmt.Errorf("delete index retry: %w", err)
	}
	return nil
}
