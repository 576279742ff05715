package ops

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
)

func TestIdentifyConsolidations(t *testing.T) {
	database, _, cfg := testEnv(t)
	ctx := context.Background()

	// Same tags, same session, same vocabulary: clearly mergeable
	for _, p := range []string{"notes/q3-draft.md", "notes/q3-final.md"} {
		mustRegister(t, database, RegisterInput{
			Path: p, Content: "quarterly budget planning revenue targets",
			Tags: []string{"budget", "q3"}, SessionID: "sess-1",
		})
	}
	mustRegister(t, database, RegisterInput{
		Path: "unrelated.md", Content: "sourdough starter feeding schedule",
	})

	out, err := IdentifyConsolidations(ctx, database, cfg)
	require.NoError(t, err)
	require.Len(t, out.Opportunities, 1)

	opp := out.Opportunities[0]
	require.Equal(t, []string{"notes/q3-draft.md", "notes/q3-final.md"}, opp.Sources)
	require.GreaterOrEqual(t, opp.Confidence, cfg.SimilarityThreshold)
	require.NotEmpty(t, opp.Destination)
	require.NotEmpty(t, opp.Rationale)
	require.Equal(t, cfg.TemporalWindowMinutes, out.TemporalWindowMinutes)
}

func TestIdentifyConsolidations_AdvisoryOnly(t *testing.T) {
	database, _, cfg := testEnv(t)
	ctx := context.Background()

	for _, p := range []string{"a.md", "b.md"} {
		mustRegister(t, database, RegisterInput{
			Path: p, Content: "same words in both files",
			Tags: []string{"shared"}, SessionID: "sess-1",
		})
	}

	_, err := IdentifyConsolidations(ctx, database, cfg)
	require.NoError(t, err)

	// Identification changes nothing
	files, total, err := db.ListFiles(database, db.ListFilesFilters{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	for _, f := range files {
		require.Equal(t, file.StateActive, f.State)
	}
}

func TestApplyConsolidation(t *testing.T) {
	database, _, _ := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{
		Path: "a.md", Content: "alpha section", Mode: "minimal", Tags: []string{"x"},
	})
	mustRegister(t, database, RegisterInput{
		Path: "b.md", Content: "beta section", Mode: "professional", Tags: []string{"y"},
	})

	out, err := ApplyConsolidation(ctx, database, ApplyConsolidationInput{
		Sources:     []string{"a.md", "b.md"},
		Destination: "merged.md",
		Kind:        "topic",
		Confidence:  0.8,
	})
	require.NoError(t, err)
	require.Equal(t, "merged.md", out.File.Path)
	require.Equal(t, 2, out.Merged)
	require.Contains(t, out.Content, "alpha section")
	require.Contains(t, out.Content, "beta section")

	// Destination inherits the widest mode and the union of tags
	require.Equal(t, file.ModeProfessional, out.File.Mode)
	require.Equal(t, []string{"x", "y"}, out.File.Tags)
	require.Equal(t, file.StateActive, out.File.State)

	// Sources are gone, destination is tracked
	for _, p := range []string{"a.md", "b.md"} {
		f, err := db.GetFileByPath(database, p)
		require.NoError(t, err)
		require.Nil(t, f)
	}
	merged, err := db.GetFileByPath(database, "merged.md")
	require.NoError(t, err)
	require.NotNil(t, merged)

	// Audit entry recorded
	log, err := db.ListMergeLog(database)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, "merged.md", log[0].Destination)
	require.Equal(t, "topic", log[0].Kind)
}

func TestApplyConsolidation_AuditCarriesSourceHashes(t *testing.T) {
	database, _, _ := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "a.md", Content: "alpha section"})
	mustRegister(t, database, RegisterInput{Path: "b.md", Content: "beta section"})

	_, err := ApplyConsolidation(ctx, database, ApplyConsolidationInput{
		Sources:     []string{"a.md", "b.md"},
		Destination: "merged.md",
		Kind:        "topic",
		Confidence:  0.9,
	})
	require.NoError(t, err)

	entries, err := db.ListMergeLog(database)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The audit entry pins each source to the exact content that was merged
	var sources []struct {
		Path        string `json:"path"`
		ContentHash string `json:"content_hash"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[0].SourcesJSON), &sources))
	require.Len(t, sources, 2)
	require.Equal(t, "a.md", sources[0].Path)
	require.Equal(t, file.HashContent("alpha section"), sources[0].ContentHash)
	require.Equal(t, "b.md", sources[1].Path)
	require.Equal(t, file.HashContent("beta section"), sources[1].ContentHash)
}

func TestApplyConsolidation_MissingSource(t *testing.T) {
	database, _, _ := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "a.md", Content: "alpha"})

	_, err := ApplyConsolidation(ctx, database, ApplyConsolidationInput{
		Sources:     []string{"a.md", "ghost.md"},
		Destination: "merged.md",
	})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	// Zero mutations: a.md still tracked, no destination
	f, err := db.GetFileByPath(database, "a.md")
	require.NoError(t, err)
	require.NotNil(t, f)
	dest, err := db.GetFileByPath(database, "merged.md")
	require.NoError(t, err)
	require.Nil(t, dest)
}

func TestApplyConsolidation_DestinationAlreadyTracked(t *testing.T) {
	database, _, _ := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "a.md", Content: "alpha"})
	mustRegister(t, database, RegisterInput{Path: "b.md", Content: "beta"})
	mustRegister(t, database, RegisterInput{Path: "taken.md", Content: "occupied"})

	_, err := ApplyConsolidation(ctx, database, ApplyConsolidationInput{
		Sources:     []string{"a.md", "b.md"},
		Destination: "taken.md",
	})
	require.True(t, errors.Is(err, errors.ErrValidationFailure))

	// Sources untouched
	for _, p := range []string{"a.md", "b.md"} {
		f, err := db.GetFileByPath(database, p)
		require.NoError(t, err)
		require.NotNil(t, f)
	}
}

func TestApplyConsolidation_Validation(t *testing.T) {
	database, _, _ := testEnv(t)
	ctx := context.Background()

	_, err := ApplyConsolidation(ctx, database, ApplyConsolidationInput{
		Sources: []string{"only.md"}, Destination: "merged.md",
	})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = ApplyConsolidation(ctx, database, ApplyConsolidationInput{
		Sources: []string{"a.md", "b.md"}, Destination: "/abs.md",
	})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
