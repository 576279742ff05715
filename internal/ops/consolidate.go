package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/consolidate"
	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/pattern"
	"github.com/hpungsan/loam/internal/score"
)

// consolidationScanLimit caps how many active files one advisor scan
// examines (similarity is pairwise).
const consolidationScanLimit = 500

// IdentifyConsolidationsOutput contains the advisor's proposals.
type IdentifyConsolidationsOutput struct {
	Opportunities []consolidate.Opportunity `json:"opportunities"`

	// TemporalWindowMinutes is the window actually used, after any tuning
	// from the latest insight generation.
	TemporalWindowMinutes int `json:"temporal_window_minutes"`
}

// IdentifyConsolidations scans active files for merge opportunities. Purely
// advisory: nothing changes until an opportunity is applied.
func IdentifyConsolidations(ctx context.Context, database *sql.DB, cfg *config.Config) (*IdentifyConsolidationsOutput, error) {
	active := file.StateActive
	candidates, _, err := db.ListFiles(database, db.ListFilesFilters{State: &active}, consolidationScanLimit, 0)
	if err != nil {
		return nil, errors.NewStorageFailure("consolidate", err)
	}

	window := cfg.TemporalWindowMinutes
	if insights, err := db.LatestInsights(database); err == nil {
		if tuned := pattern.Tuning(insights).TemporalWindowMinutes; tuned > 0 {
			window = tuned
		}
	}

	params := consolidate.Params{
		Threshold:             cfg.SimilarityThreshold,
		TagWeight:             cfg.TagWeight,
		TemporalWeight:        cfg.TemporalWeight,
		TopicWeight:           cfg.TopicWeight,
		TemporalWindowSeconds: int64(window) * 60,
	}

	return &IdentifyConsolidationsOutput{
		Opportunities:         consolidate.Identify(candidates, params, nil),
		TemporalWindowMinutes: window,
	}, nil
}

// ApplyConsolidationInput contains parameters for the ApplyConsolidation
// operation.
type ApplyConsolidationInput struct {
	Sources     []string // required, at least 2
	Destination string   // required

	// Kind and Confidence echo the applied opportunity into the audit log.
	Kind       string
	Confidence float64
}

// ApplyConsolidationOutput contains the result of the ApplyConsolidation
// operation.
type ApplyConsolidationOutput struct {
	File    FileSummary `json:"file"`
	Merged  int         `json:"merged"`
	Content string      `json:"content"`
}

// ApplyConsolidation merges the source files into one destination. The whole
// merge is a single transaction: the destination appears and every source
// disappears together, or nothing changes. Validation failure means zero
// mutations.
func ApplyConsolidation(ctx context.Context, database *sql.DB, input ApplyConsolidationInput) (*ApplyConsolidationOutput, error) {
	if len(input.Sources) < 2 {
		return nil, errors.NewInvalidRequest("at least two source paths are required")
	}
	destination, err := ValidatePath(input.Destination)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(input.Sources))
	for _, p := range input.Sources {
		normalized, err := ValidatePath(p)
		if err != nil {
			return nil, err
		}
		paths = append(paths, normalized)
	}

	sources, err := db.GetFilesByPaths(database, paths)
	if err != nil {
		return nil, errors.NewStorageFailure("consolidate", err)
	}
	if len(sources) != len(paths) {
		found := make(map[string]bool, len(sources))
		for _, s := range sources {
			found[s.Path] = true
		}
		for _, p := range paths {
			if !found[p] {
				return nil, errors.NewNotFound(p)
			}
		}
	}

	if existing, err := db.GetFileByPath(database, destination); err != nil {
		return nil, errors.NewStorageFailure("consolidate", err)
	} else if existing != nil {
		return nil, errors.NewValidationFailure(destination, "destination path is already tracked")
	}

	content := consolidate.BuildMerge(destination, sources)
	if reason, ok := consolidate.ValidateDestination(destination, content); !ok {
		return nil, errors.NewValidationFailure(destination, reason)
	}

	now := time.Now().Unix()
	dest := buildMergedFile(destination, content, sources, now)

	// The audit entry carries path and hash per source, so an applied merge
	// can be traced back to the exact content it consumed
	audit := make([]mergeSource, len(sources))
	for i, s := range sources {
		audit[i] = mergeSource{Path: s.Path, ContentHash: s.ContentHash}
	}
	sourcesJSON, err := json.Marshal(audit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	kind := input.Kind
	if kind == "" {
		kind = string(consolidate.KindTopic)
	}
	ok, err := db.ApplyMerge(database, dest, sources, string(sourcesJSON), kind, input.Confidence, now)
	if err != nil {
		return nil, errors.NewStorageFailure("consolidate", err)
	}
	if !ok {
		// A source vanished mid-merge; transaction rolled back
		return nil, errors.NewValidationFailure(destination, "a source file changed during the merge")
	}

	return &ApplyConsolidationOutput{
		File:    Summarize(dest),
		Merged:  len(paths),
		Content: content,
	}, nil
}

// mergeSource is one source entry in the merge audit log.
type mergeSource struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
}

// buildMergedFile derives the destination's metadata from its sources: the
// widest mode, the union of tags, and a freshly computed score.
func buildMergedFile(path, content string, sources []file.TrackedFile, now int64) *file.TrackedFile {
	mode := file.ModeMinimal
	var tags []string
	retainDays := 0
	for _, s := range sources {
		if modeRank(s.Mode) > modeRank(mode) {
			mode = s.Mode
		}
		tags = append(tags, s.Tags...)
		if s.RetainDays > retainDays {
			retainDays = s.RetainDays
		}
	}

	return &file.TrackedFile{
		Path:        path,
		Content:     content,
		ContentHash: file.HashContent(content),
		Mode:        mode,
		Tags:        file.NormalizeTags(tags),
		Score:       score.Score(score.Input{Content: content, Mode: mode, RetainDays: retainDays}),
		State:       file.StateActive,
		RetainDays:  retainDays,
		CreatedAt:   now,
		AccessedAt:  now,
		ModifiedAt:  now,
	}
}

func modeRank(m file.Mode) int {
	switch m {
	case file.ModeResearch:
		return 2
	case file.ModeProfessional:
		return 1
	}
	return 0
}
