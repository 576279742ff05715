package file

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

// State is a lifecycle state for a tracked file.
type State string

const (
	StateActive          State = "active"
	StateAging           State = "aging"
	StateArchiveEligible State = "archive_eligible"

	// StateArchived is terminal: the files row is gone and an ArchiveRecord
	// exists. It never appears in the files table itself.
	StateArchived State = "archived"
)

// PersistedStates lists the states a files row may hold.
var PersistedStates = []State{StateActive, StateAging, StateArchiveEligible}

// ValidState reports whether s is a state storable in the files table.
func ValidState(s State) bool {
	switch s {
	case StateActive, StateAging, StateArchiveEligible:
		return true
	}
	return false
}

// Mode is the generation mode of a file. It sets the retention score band.
type Mode string

const (
	ModeMinimal      Mode = "minimal"
	ModeProfessional Mode = "professional"
	ModeResearch     Mode = "research"
)

// ParseMode normalizes and validates a generation mode string.
// Empty input defaults to minimal.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMinimal:
		return ModeMinimal, true
	case ModeProfessional:
		return ModeProfessional, true
	case ModeResearch:
		return ModeResearch, true
	}
	return "", false
}

// TrackedFile represents one file under lifecycle management.
type TrackedFile struct {
	// Path is unique among non-archived files, relative to the workspace root
	Path string

	// Content is the stored content snapshot
	Content string

	// ContentHash is the SHA-256 hex digest of Content
	ContentHash string

	// Mode is the generation mode (sets the retention score band)
	Mode Mode

	// Tags is a set of tags (stored as JSON in DB)
	Tags []string

	// SessionID is the owning session identifier (optional)
	SessionID string

	// Score is the retention score in [0.0, 10.0]
	Score float64

	// State is the persisted lifecycle state
	State State

	// RetainDays is an explicit retention-days hint (0 = none)
	RetainDays int

	// CreatedAt / AccessedAt / ModifiedAt are Unix timestamps
	CreatedAt  int64
	AccessedAt int64
	ModifiedAt int64
}

// ArchiveRecord represents a file after archival. Immutable except for
// index-maintenance metadata (IndexedAt).
type ArchiveRecord struct {
	// ID is a ULID generated at archive time
	ID string

	// Path is the original workspace-relative path
	Path string

	// Content is the content snapshot at archive time
	Content string

	// ContentHash is the SHA-256 hex digest of Content
	ContentHash string

	// Tags carried over from the tracked file
	Tags []string

	// Category groups records for search filtering (derived from mode)
	Category string

	// Score is the retention score at archive time
	Score float64

	// ArchivedAt is the Unix timestamp of the archive transition
	ArchivedAt int64

	// IndexedAt is the Unix timestamp of the last successful index
	// ingestion (nil until indexed)
	IndexedAt *int64
}

// NormalizePath cleans a workspace-relative path. Returns false for paths
// that are empty, absolute, or escape the workspace root.
func NormalizePath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "", false
	}
	if strings.HasPrefix(p, "/") {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// HashContent returns the SHA-256 hex digest of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// NormalizeTags trims, lowercases, deduplicates, and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// EncodeTags serializes tags to the JSON form stored in the DB.
// Nil and empty both encode to the empty string.
func EncodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodeTags parses the stored JSON tag form. Empty input yields nil.
func DecodeTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

// TagOverlap returns the Jaccard index of two tag sets.
func TagOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	shared := 0
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		if setB[t] {
			continue
		}
		setB[t] = true
		if setA[t] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// CategoryForMode maps a generation mode to an archive category.
func CategoryForMode(m Mode) string {
	switch m {
	case ModeResearch:
		return "research"
	case ModeProfessional:
		return "professional"
	default:
		return "general"
	}
}
