// Package index maintains the full-text search index over archived records.
// The index is segmented: each segment is its own SQLite file holding an FTS5
// table, so one corrupted file degrades search instead of killing it. The
// index is derived state; the archive store remains the source of truth and
// Reindex can rebuild everything from it.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/file"
)

// Snippet highlight markers emitted by FTS5. The ops layer converts them to
// <b> tags after HTML-escaping the user content around them.
const (
	SnippetOpenMarker  = "[[[B]]]"
	SnippetCloseMarker = "[[[/B]]]"
)

const (
	segmentPrefix = "seg-"
	segmentSuffix = ".db"

	// Retry backoff: 1 minute doubling per attempt, capped at 1 hour.
	retryBaseSeconds = 60
	retryCapSeconds  = 3600
)

// Manager owns the segment files under dir and the index bookkeeping tables
// in the main database. Safe for concurrent use.
type Manager struct {
	main       *sql.DB
	dir        string
	maxRecords int

	mu       sync.Mutex
	segments map[string]*sql.DB
}

// NewManager creates a manager over the given index directory. maxRecords
// caps how many archive records a segment accepts before a new one is opened.
func NewManager(main *sql.DB, dir string, maxRecords int) *Manager {
	if maxRecords <= 0 {
		maxRecords = 256
	}
	return &Manager{
		main:       main,
		dir:        dir,
		maxRecords: maxRecords,
		segments:   make(map[string]*sql.DB),
	}
}

// Close releases all open segment handles. The main database is not owned by
// the manager and stays open.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, handle := range m.segments {
		handle.Close()
		delete(m.segments, name)
	}
}

func (m *Manager) segmentPath(name string) string {
	return filepath.Join(m.dir, name+segmentSuffix)
}

// openSegment returns a cached handle for the named segment, creating the
// file and its FTS table on first use.
func (m *Manager) openSegment(name string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.segments[name]; ok {
		return handle, nil
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", m.segmentPath(name))
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", name, err)
	}
	if _, err := handle.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			archive_id UNINDEXED,
			path,
			content,
			tags,
			category UNINDEXED,
			archived_at UNINDEXED
		)
	`); err != nil {
		handle.Close()
		return nil, fmt.Errorf("init segment %s: %w", name, err)
	}

	m.segments[name] = handle
	return handle, nil
}

// dropSegment closes and forgets a cached handle without deleting the file.
func (m *Manager) dropSegment(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handle, ok := m.segments[name]; ok {
		handle.Close()
		delete(m.segments, name)
	}
}

// currentSegment picks the segment for a new record: the newest existing
// segment if it still has room, otherwise the next in sequence.
func (m *Manager) currentSegment() (string, error) {
	names, err := db.ListSegments(m.main)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return fmt.Sprintf("%s%06d", segmentPrefix, 0), nil
	}

	last := names[len(names)-1]
	count, err := db.CountSegmentRecords(m.main, last)
	if err != nil {
		return "", err
	}
	if count < m.maxRecords {
		return last, nil
	}

	var seq int
	fmt.Sscanf(last, segmentPrefix+"%d", &seq)
	return fmt.Sprintf("%s%06d", segmentPrefix, seq+1), nil
}

// Ingest adds an archive record to the index. Idempotent: a record already
// assigned to a segment is rewritten in place, so retries and replays leave
// exactly one indexed copy. Stamps indexed_at on the archive record.
func (m *Manager) Ingest(rec *file.ArchiveRecord, now int64) error {
	segment, err := db.GetIndexSegment(m.main, rec.ID)
	if err != nil {
		return err
	}
	if segment == "" {
		segment, err = m.currentSegment()
		if err != nil {
			return err
		}
	}

	handle, err := m.openSegment(segment)
	if err != nil {
		return err
	}

	tx, err := handle.Begin()
	if err != nil {
		return fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM records_fts WHERE archive_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("ingest clear: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO records_fts (archive_id, path, content, tags, category, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Path, rec.Content, strings.Join(rec.Tags, " "), rec.Category, rec.ArchivedAt); err != nil {
		return fmt.Errorf("ingest insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest: %w", err)
	}

	if err := db.SetIndexSegment(m.main, rec.ID, segment, now); err != nil {
		return err
	}
	return db.MarkIndexed(m.main, rec.ID, now)
}

// Hit is one search match.
type Hit struct {
	ArchiveID  string   `json:"archive_id"`
	Path       string   `json:"path"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags,omitempty"`
	ArchivedAt int64    `json:"archived_at"`
	Snippet    string   `json:"snippet"`
	Rank       float64  `json:"-"`
	Segment    string   `json:"-"`
}

// Result is a cross-segment search result. PartialResult is true when one or
// more segments could not be read; Hits then cover the readable segments only.
type Result struct {
	Hits             []Hit
	Total            int
	PartialResult    bool
	DegradedSegments []string
}

// Search runs a full-text query across every segment and merges by rank.
// A segment that fails to open or query is recorded as degraded and skipped;
// the search itself still succeeds with whatever the healthy segments hold.
func (m *Manager) Search(query string, limit, offset int) (*Result, error) {
	names, err := db.ListSegments(m.main)
	if err != nil {
		return nil, err
	}

	match := buildMatchExpr(query)
	result := &Result{}
	var all []Hit

	for _, name := range names {
		hits, err := m.searchSegment(name, match)
		if err != nil {
			m.dropSegment(name)
			result.PartialResult = true
			result.DegradedSegments = append(result.DegradedSegments, name)
			continue
		}
		all = append(all, hits...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Rank != all[j].Rank {
			return all[i].Rank < all[j].Rank
		}
		return all[i].ArchiveID < all[j].ArchiveID
	})

	result.Total = len(all)
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		result.Hits = all[offset:end]
	}
	return result, nil
}

func (m *Manager) searchSegment(name, match string) ([]Hit, error) {
	handle, err := m.openSegment(name)
	if err != nil {
		return nil, err
	}

	rows, err := handle.Query(`
		SELECT archive_id, path, category, tags, archived_at,
			snippet(records_fts, 2, ?, ?, '...', 16),
			bm25(records_fts, 0.0, 5.0, 1.0, 3.0, 0.0, 0.0)
		FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY rank
	`, SnippetOpenMarker, SnippetCloseMarker, match)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		h := Hit{Segment: name}
		var tags string
		if err := rows.Scan(&h.ArchiveID, &h.Path, &h.Category, &tags, &h.ArchivedAt, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		h.Tags = strings.Fields(tags)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// buildMatchExpr quotes each query token as an FTS5 string so user input
// cannot break the match syntax. Tokens are ANDed (FTS5 default).
func buildMatchExpr(query string) string {
	tokens := strings.Fields(query)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, `"`, `""`)
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " ")
}

// Remove deletes an archive record's FTS row from its segment, if it has
// one. Called on purge so deleted content stops matching searches.
func (m *Manager) Remove(archiveID string) error {
	segment, err := db.GetIndexSegment(m.main, archiveID)
	if err != nil {
		return err
	}
	if segment == "" {
		return nil
	}
	handle, err := m.openSegment(segment)
	if err != nil {
		return err
	}
	if _, err := handle.Exec(`DELETE FROM records_fts WHERE archive_id = ?`, archiveID); err != nil {
		return fmt.Errorf("remove from segment %s: %w", segment, err)
	}
	return nil
}

// ReindexStats reports what a rebuild covered.
type ReindexStats struct {
	Records  int `json:"records"`
	Segments int `json:"segments"`
}

// Reindex rebuilds the whole index from archive_records: segment files are
// deleted, assignments and the retry queue cleared, and every record
// re-ingested. Archive content is untouched throughout.
func (m *Manager) Reindex(now int64) (*ReindexStats, error) {
	m.Close()

	entries, err := os.ReadDir(m.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read index dir: %w", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), segmentPrefix) {
			if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
				return nil, fmt.Errorf("remove segment %s: %w", entry.Name(), err)
			}
		}
	}

	if err := db.ClearIndexState(m.main); err != nil {
		return nil, err
	}
	if err := db.ClearIndexRetries(m.main); err != nil {
		return nil, err
	}

	records, err := db.ListArchiveRecords(m.main)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if err := m.Ingest(&records[i], now); err != nil {
			return nil, fmt.Errorf("reindex %s: %w", records[i].ID, err)
		}
	}

	segments, err := db.ListSegments(m.main)
	if err != nil {
		return nil, err
	}
	return &ReindexStats{Records: len(records), Segments: len(segments)}, nil
}

// RetryBackoff returns when the next attempt should run after the given
// number of failed attempts.
func RetryBackoff(attempts int, now int64) int64 {
	delay := int64(retryBaseSeconds)
	for i := 1; i < attempts && delay < retryCapSeconds; i++ {
		delay *= 2
	}
	if delay > retryCapSeconds {
		delay = retryCapSeconds
	}
	return now + delay
}

// ProcessRetries drains the due portion of the retry queue. Successful
// ingestions leave the queue; failures are re-queued with doubled backoff.
// Returns how many records were indexed.
func (m *Manager) ProcessRetries(now int64) (int, error) {
	due, err := db.DueIndexRetries(m.main, now)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, retry := range due {
		rec, err := db.GetArchiveRecord(m.main, retry.ArchiveID)
		if err != nil {
			return indexed, err
		}
		if rec == nil {
			// Purged since it was queued
			if err := db.DeleteIndexRetry(m.main, retry.ArchiveID); err != nil {
				return indexed, err
			}
			continue
		}

		if err := m.Ingest(rec, now); err != nil {
			next := RetryBackoff(retry.Attempts+1, now)
			if qerr := db.EnqueueIndexRetry(m.main, retry.ArchiveID, err.Error(), next); qerr != nil {
				return indexed, qerr
			}
			continue
		}
		if err := db.DeleteIndexRetry(m.main, retry.ArchiveID); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}
