package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/loam/internal/pattern"
)

// InsertSession appends one session to the append-only history log.
func InsertSession(db *sql.DB, s *pattern.Session) error {
	filesJSON, err := json.Marshal(s.Files)
	if err != nil {
		return fmt.Errorf("encode session files: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO sessions (session_id, files_json, outcome, duration_minutes, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, string(filesJSON), s.Outcome, s.DurationMinutes, s.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionExists reports whether a session ID is already recorded.
func SessionExists(db *sql.DB, sessionID string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return count > 0, nil
}

// ListSessions returns the full session history in recorded order.
func ListSessions(db *sql.DB) ([]pattern.Session, error) {
	rows, err := db.Query(`
		SELECT session_id, files_json, outcome, duration_minutes, recorded_at
		FROM sessions ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []pattern.Session
	for rows.Next() {
		var s pattern.Session
		var filesJSON string
		if err := rows.Scan(&s.ID, &filesJSON, &s.Outcome, &s.DurationMinutes, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(filesJSON), &s.Files); err != nil {
			return nil, fmt.Errorf("decode session files: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// insightValue is the stored JSON shape of an insight's computed value.
type insightValue struct {
	Value  float64 `json:"value"`
	Detail string  `json:"detail,omitempty"`
}

// InsertInsights appends one generation of insights in a single transaction.
// Prior generations are never touched.
func InsertInsights(db *sql.DB, generation string, insights []pattern.Insight, now int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin insights: %w", err)
	}
	defer tx.Rollback()

	for _, in := range insights {
		valueJSON, err := json.Marshal(insightValue{Value: in.Value, Detail: in.Detail})
		if err != nil {
			return fmt.Errorf("encode insight value: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO insights (generation, kind, value_json, samples, confidence, generated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, generation, string(in.Kind), string(valueJSON), in.Samples, in.Confidence, now); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insights: %w", err)
	}
	return nil
}

// LatestInsights returns the most recent insight generation, or nil if none
// has been computed yet.
func LatestInsights(db *sql.DB) ([]pattern.Insight, error) {
	var generation string
	err := db.QueryRow(`
		SELECT generation FROM insights ORDER BY seq DESC LIMIT 1
	`).Scan(&generation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest insight generation: %w", err)
	}
	return insightsForGeneration(db, generation)
}

func insightsForGeneration(db *sql.DB, generation string) ([]pattern.Insight, error) {
	rows, err := db.Query(`
		SELECT generation, kind, value_json, samples, confidence, generated_at
		FROM insights WHERE generation = ? ORDER BY seq
	`, generation)
	if err != nil {
		return nil, fmt.Errorf("insights for generation: %w", err)
	}
	defer rows.Close()

	var insights []pattern.Insight
	for rows.Next() {
		var in pattern.Insight
		var kind, valueJSON string
		if err := rows.Scan(&in.Generation, &kind, &valueJSON, &in.Samples, &in.Confidence, &in.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		var v insightValue
		if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
			return nil, fmt.Errorf("decode insight value: %w", err)
		}
		in.Kind = pattern.InsightKind(kind)
		in.Value = v.Value
		in.Detail = v.Detail
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

// CountInsightGenerations returns how many compute runs have been recorded.
func CountInsightGenerations(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(DISTINCT generation) FROM insights`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count insight generations: %w", err)
	}
	return count, nil
}
