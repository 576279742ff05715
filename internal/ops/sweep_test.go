package ops

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/file"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestSweep_Transitions(t *testing.T) {
	database, _, cfg := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "stale.md", Content: "x"})
	mustRegister(t, database, RegisterInput{Path: "fresh.md", Content: "y"})

	// Age stale.md past the aging threshold
	old := time.Now().Unix() - int64(cfg.AgingDays+1)*86400
	_, err := database.Exec(`UPDATE files SET accessed_at = ? WHERE path = 'stale.md'`, old)
	require.NoError(t, err)

	out, err := Sweep(ctx, database, cfg)
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, 1, out.Aged)
	require.Zero(t, out.Eligible)

	stale, err := db.GetFileByPath(database, "stale.md")
	require.NoError(t, err)
	require.Equal(t, file.StateAging, stale.State)

	fresh, err := db.GetFileByPath(database, "fresh.md")
	require.NoError(t, err)
	require.Equal(t, file.StateActive, fresh.State)
}

func TestSweep_AgingToEligible(t *testing.T) {
	database, _, cfg := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "old.md", Content: "x"})
	old := time.Now().Unix() - int64(cfg.ArchiveEligibleDays+1)*86400
	_, err := database.Exec(`UPDATE files SET accessed_at = ?, state = 'aging' WHERE path = 'old.md'`, old)
	require.NoError(t, err)

	out, err := Sweep(ctx, database, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, out.Eligible)

	f, err := db.GetFileByPath(database, "old.md")
	require.NoError(t, err)
	require.Equal(t, file.StateArchiveEligible, f.State)
}

func TestSweep_ProtectedFileStaysActive(t *testing.T) {
	database, _, cfg := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{
		Path: "keep.md", Content: "# Keep\n\nimportant\n", Mode: "research",
		RetainDays: 90, Stakeholders: []string{"a", "b"}, Frameworks: []string{"c", "d"},
	})
	old := time.Now().Unix() - 400*86400
	_, err := database.Exec(`UPDATE files SET accessed_at = ? WHERE path = 'keep.md'`, old)
	require.NoError(t, err)

	out, err := Sweep(ctx, database, cfg)
	require.NoError(t, err)
	require.Zero(t, out.Aged)

	f, err := db.GetFileByPath(database, "keep.md")
	require.NoError(t, err)
	require.Equal(t, file.StateActive, f.State)
}

func TestArchiveSweep(t *testing.T) {
	database, idx, _ := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "a.md", Content: "eligible content alpha"})
	mustRegister(t, database, RegisterInput{Path: "b.md", Content: "eligible content beta"})
	mustRegister(t, database, RegisterInput{Path: "active.md", Content: "still in use"})
	_, err := database.Exec(`UPDATE files SET state = 'archive_eligible' WHERE path IN ('a.md', 'b.md')`)
	require.NoError(t, err)

	out, err := ArchiveSweep(ctx, database, idx)
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, 2, out.Archived)
	require.Equal(t, 2, out.Indexed)

	// The swept files are gone from tracking and searchable in the archive
	for _, path := range []string{"a.md", "b.md"} {
		f, err := db.GetFileByPath(database, path)
		require.NoError(t, err)
		require.Nil(t, f)
	}
	search, err := Search(ctx, idx, SearchInput{Query: "eligible content"})
	require.NoError(t, err)
	require.Len(t, search.Items, 2)

	// The active file is untouched
	f, err := db.GetFileByPath(database, "active.md")
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestSweep_FileFailureCostsOnlyThatFile(t *testing.T) {
	database, _, _ := testEnv(t)
	require.NoError(t, database.Close())

	buf := captureLog(t)

	files := []file.TrackedFile{{Path: "a.md"}, {Path: "b.md"}, {Path: "c.md"}}
	moved := advanceStale(database, files, file.StateActive, file.StateAging)
	require.Zero(t, moved)
	require.Equal(t, 3, strings.Count(buf.String(), "sweep: transition"))
}

func TestArchiveSweep_FileFailureCostsOnlyThatFile(t *testing.T) {
	database, idx, _ := testEnv(t)
	require.NoError(t, database.Close())

	buf := captureLog(t)

	eligible := []file.TrackedFile{
		{Path: "a.md", Content: "x", ContentHash: "h1"},
		{Path: "b.md", Content: "y", ContentHash: "h2"},
	}
	archived, indexed := archiveEligible(database, idx, eligible)
	require.Zero(t, archived)
	require.Zero(t, indexed)
	require.Equal(t, 2, strings.Count(buf.String(), "archive sweep:"))
}

func TestSweep_Idempotent(t *testing.T) {
	database, _, cfg := testEnv(t)
	ctx := context.Background()

	mustRegister(t, database, RegisterInput{Path: "stale.md", Content: "x"})
	old := time.Now().Unix() - int64(cfg.AgingDays+1)*86400
	_, err := database.Exec(`UPDATE files SET accessed_at = ? WHERE path = 'stale.md'`, old)
	require.NoError(t, err)

	first, err := Sweep(ctx, database, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, first.Aged)

	second, err := Sweep(ctx, database, cfg)
	require.NoError(t, err)
	require.Zero(t, second.Aged)
}
