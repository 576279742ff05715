package ops

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/index"
	"github.com/hpungsan/loam/internal/lifecycle"
)

// SweepOutput contains the result of the Sweep operation.
type SweepOutput struct {
	// Skipped is true when a sweep of the same type was already running;
	// nothing was examined.
	Skipped bool `json:"skipped"`

	Aged     int `json:"aged"`
	Eligible int `json:"eligible"`
}

// Sweep advances lifecycle states: Active files past the aging threshold move
// to Aging, Aging files past the eligibility threshold move to
// ArchiveEligible. Protected files never move. Each transition is a
// compare-and-swap, so a concurrent Touch wins and the sweep silently skips
// that file.
func Sweep(ctx context.Context, database *sql.DB, cfg *config.Config) (*SweepOutput, error) {
	if !sweepGuard.TryAcquire("lifecycle") {
		return &SweepOutput{Skipped: true}, nil
	}
	defer sweepGuard.Release("lifecycle")

	th := lifecycle.FromConfig(cfg)
	now := time.Now().Unix()
	out := &SweepOutput{}

	aging, err := db.ListStale(database, file.StateActive, th.AgingCutoff(now), th.ProtectScore)
	if err != nil {
		return nil, errors.NewStorageFailure("sweep", err)
	}
	out.Aged = advanceStale(database, aging, file.StateActive, file.StateAging)

	eligible, err := db.ListStale(database, file.StateAging, th.EligibleCutoff(now), 0)
	if err != nil {
		return nil, errors.NewStorageFailure("sweep", err)
	}
	out.Eligible = advanceStale(database, eligible, file.StateAging, file.StateArchiveEligible)

	return out, nil
}

// advanceStale CAS-advances each file from one state to the next and reports
// how many moved. A failure is logged and costs only that file; the rest of
// the sweep proceeds.
func advanceStale(database *sql.DB, files []file.TrackedFile, from, to file.State) int {
	moved := 0
	for _, f := range files {
		ok, err := db.TransitionState(database, f.Path, from, to)
		if err != nil {
			log.Printf("sweep: transition %s: %v", f.Path, err)
			continue
		}
		if ok {
			moved++
		}
	}
	return moved
}

// ArchiveSweepOutput contains the result of the ArchiveSweep operation.
type ArchiveSweepOutput struct {
	Skipped  bool `json:"skipped"`
	Archived int  `json:"archived"`
	Indexed  int  `json:"indexed"`
}

// ArchiveSweep archives every ArchiveEligible file. Files touched or updated
// since becoming eligible are left alone: the archive delete is guarded by
// state as well as hash, so a touch that reset the file to Active (changing
// neither path nor content) still wins over the sweep's snapshot.
func ArchiveSweep(ctx context.Context, database *sql.DB, idx *index.Manager) (*ArchiveSweepOutput, error) {
	if !sweepGuard.TryAcquire("archive") {
		return &ArchiveSweepOutput{Skipped: true}, nil
	}
	defer sweepGuard.Release("archive")

	now := time.Now().Unix()
	eligible, err := db.ListStale(database, file.StateArchiveEligible, now+1, 0)
	if err != nil {
		return nil, errors.NewStorageFailure("archive sweep", err)
	}

	out := &ArchiveSweepOutput{}
	out.Archived, out.Indexed = archiveEligible(database, idx, eligible)
	return out, nil
}

// archiveEligible archives each candidate in turn. A failure is logged and
// costs only that file; the rest of the sweep proceeds.
func archiveEligible(database *sql.DB, idx *index.Manager, eligible []file.TrackedFile) (archived, indexed int) {
	for i := range eligible {
		rec, err := archiveFile(database, &eligible[i], file.StateArchiveEligible)
		if err != nil {
			log.Printf("archive sweep: %s: %v", eligible[i].Path, err)
			continue
		}
		if rec == nil {
			continue
		}
		archived++
		if ingestOrQueue(database, idx, rec) {
			indexed++
		}
	}
	return archived, indexed
}
