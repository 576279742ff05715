package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/pattern"
)

// InsightItem is the transport view of one insight.
type InsightItem struct {
	Generation  string  `json:"generation"`
	Kind        string  `json:"kind"`
	Value       float64 `json:"value"`
	Detail      string  `json:"detail,omitempty"`
	Samples     int     `json:"samples"`
	Confidence  float64 `json:"confidence"`
	GeneratedAt int64   `json:"generated_at"`
}

// ComputeInsightsOutput contains the result of the ComputeInsights operation.
type ComputeInsightsOutput struct {
	Generation string        `json:"generation"`
	Insights   []InsightItem `json:"insights"`
	Sessions   int           `json:"sessions"`
}

// ComputeInsights runs the pattern recognizer over the full session history
// and persists the result as a new generation. Computing twice over the same
// history yields identical insights (with distinct generation stamps).
func ComputeInsights(ctx context.Context, database *sql.DB) (*ComputeInsightsOutput, error) {
	sessions, err := db.ListSessions(database)
	if err != nil {
		return nil, errors.NewStorageFailure("compute insights", err)
	}

	insights := pattern.ComputeInsights(sessions)
	if insights == nil {
		return &ComputeInsightsOutput{Sessions: 0}, nil
	}

	generation, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	if err := db.InsertInsights(database, generation, insights, now); err != nil {
		return nil, errors.NewStorageFailure("compute insights", err)
	}

	items := make([]InsightItem, len(insights))
	for i, in := range insights {
		items[i] = InsightItem{
			Generation:  generation,
			Kind:        string(in.Kind),
			Value:       in.Value,
			Detail:      in.Detail,
			Samples:     in.Samples,
			Confidence:  in.Confidence,
			GeneratedAt: now,
		}
	}
	return &ComputeInsightsOutput{
		Generation: generation,
		Insights:   items,
		Sessions:   len(sessions),
	}, nil
}

// GetInsightsOutput contains the result of the GetInsights operation.
type GetInsightsOutput struct {
	Insights []InsightItem `json:"insights"`

	// Tuning holds the parameters other components derive from this
	// generation.
	Tuning pattern.TuningParams `json:"tuning"`
}

// GetInsights returns the latest insight generation and the tuning
// parameters derived from it. An empty history yields an empty output, not
// an error.
func GetInsights(ctx context.Context, database *sql.DB) (*GetInsightsOutput, error) {
	insights, err := db.LatestInsights(database)
	if err != nil {
		return nil, errors.NewStorageFailure("get insights", err)
	}

	items := make([]InsightItem, len(insights))
	for i, in := range insights {
		items[i] = InsightItem{
			Generation:  in.Generation,
			Kind:        string(in.Kind),
			Value:       in.Value,
			Detail:      in.Detail,
			Samples:     in.Samples,
			Confidence:  in.Confidence,
			GeneratedAt: in.GeneratedAt,
		}
	}
	return &GetInsightsOutput{
		Insights: items,
		Tuning:   pattern.Tuning(insights),
	}, nil
}
