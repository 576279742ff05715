// Package lifecycle holds the aging policy for tracked files: when a file
// moves Active → Aging → ArchiveEligible, and how far away the next
// transition is. The state machine itself is enacted by the ops layer using
// compare-and-swap updates; this package only decides.
package lifecycle

import (
	"sync"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/file"
)

const secondsPerDay = 24 * 60 * 60

// Thresholds are the aging knobs, in days since last access.
type Thresholds struct {
	AgingDays           int
	ArchiveEligibleDays int

	// ProtectScore is the ceiling at or above which files never leave
	// Active automatically.
	ProtectScore float64
}

// FromConfig extracts lifecycle thresholds from config.
func FromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		AgingDays:           cfg.AgingDays,
		ArchiveEligibleDays: cfg.ArchiveEligibleDays,
		ProtectScore:        cfg.ProtectScore,
	}
}

// AgingCutoff returns the accessed_at value below which an Active file
// becomes Aging at time now.
func (t Thresholds) AgingCutoff(now int64) int64 {
	return now - int64(t.AgingDays)*secondsPerDay
}

// EligibleCutoff returns the accessed_at value below which an Aging file
// becomes ArchiveEligible at time now.
func (t Thresholds) EligibleCutoff(now int64) int64 {
	return now - int64(t.ArchiveEligibleDays)*secondsPerDay
}

// Protected reports whether a score pins the file to Active.
func (t Thresholds) Protected(score float64) bool {
	return score >= t.ProtectScore
}

// Next returns the transition a file is due for at time now, or ok=false if
// it should stay where it is. Archival itself is not proposed here: files in
// ArchiveEligible wait for an explicit archive sweep.
func (t Thresholds) Next(f *file.TrackedFile, now int64) (file.State, bool) {
	switch f.State {
	case file.StateActive:
		if t.Protected(f.Score) {
			return "", false
		}
		if f.AccessedAt < t.AgingCutoff(now) {
			return file.StateAging, true
		}
	case file.StateAging:
		if f.AccessedAt < t.EligibleCutoff(now) {
			return file.StateArchiveEligible, true
		}
	}
	return "", false
}

// Estimate describes the next automatic transition for a file.
type Estimate struct {
	// NextState is the state the file will enter, empty if none is
	// scheduled (protected files, or files awaiting an archive sweep).
	NextState file.State `json:"next_state,omitempty"`

	// At is the Unix timestamp the transition becomes due (0 when
	// NextState is empty).
	At int64 `json:"at,omitempty"`

	// Note explains an empty NextState.
	Note string `json:"note,omitempty"`
}

// NextTransitionEstimate computes when a file will next move on its own.
func (t Thresholds) NextTransitionEstimate(f *file.TrackedFile) Estimate {
	switch f.State {
	case file.StateActive:
		if t.Protected(f.Score) {
			return Estimate{Note: "protected: requires explicit archive"}
		}
		return Estimate{
			NextState: file.StateAging,
			At:        f.AccessedAt + int64(t.AgingDays)*secondsPerDay,
		}
	case file.StateAging:
		return Estimate{
			NextState: file.StateArchiveEligible,
			At:        f.AccessedAt + int64(t.ArchiveEligibleDays)*secondsPerDay,
		}
	case file.StateArchiveEligible:
		return Estimate{Note: "awaiting archive sweep"}
	}
	return Estimate{}
}

// Guard provides per-sweep-type mutual exclusion. A sweep that finds its
// slot taken skips instead of blocking, so timer-driven triggers never pile
// up behind a slow run.
type Guard struct {
	mu      sync.Mutex
	running map[string]bool
}

// NewGuard creates an empty sweep guard.
func NewGuard() *Guard {
	return &Guard{running: make(map[string]bool)}
}

// TryAcquire claims the named sweep slot. Returns false if that sweep type
// is already in flight.
func (g *Guard) TryAcquire(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[name] {
		return false
	}
	g.running[name] = true
	return true
}

// Release frees the named sweep slot.
func (g *Guard) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, name)
}
