package ops

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/file"
	"github.com/hpungsan/loam/internal/index"
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query    string   // required
	Category *string  // optional filter: general, professional, research
	Tags     []string // optional filter: every tag must be on the record
	From     int64    // optional filter: archived at or after (unix seconds)
	To       int64    // optional filter: archived at or before, 0 = unbounded
	Limit    int      // default: 20, max: 100
	Offset   int      // default: 0
}

// SearchResultItem is one archive match.
type SearchResultItem struct {
	ArchiveID  string   `json:"archive_id"`
	Path       string   `json:"path"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags,omitempty"`
	ArchivedAt int64    `json:"archived_at"`
	// Snippet is HTML-safe: user-controlled content is escaped; only
	// <b>...</b> highlight tags are present.
	Snippet string `json:"snippet"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`

	// PartialResult is true when one or more index segments were
	// unreadable; Items cover the healthy segments only.
	PartialResult    bool     `json:"partial_result"`
	DegradedSegments []string `json:"degraded_segments,omitempty"`
}

// Search performs full-text search over archived records, ranked by
// relevance. Unreadable index segments degrade the result rather than
// failing it.
func Search(ctx context.Context, idx *index.Manager, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryChars {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryChars))
	}
	category := cleanOptionalString(input.Category)
	tags := file.NormalizeTags(input.Tags)
	if input.To > 0 && input.From > input.To {
		return nil, errors.NewInvalidRequest("from must not exceed to")
	}

	limit := clampLimit(input.Limit, DefaultSearchLimit, MaxSearchLimit)
	offset := max(input.Offset, 0)

	// Filters are per-hit attributes the segments don't index, so fetch
	// unpaginated, filter here, and slice after
	result, err := idx.Search(query, MaxSearchLimit*10, 0)
	if err != nil {
		return nil, errors.NewStorageFailure("search", err)
	}

	var filtered []index.Hit
	for _, h := range result.Hits {
		if category != nil && h.Category != *category {
			continue
		}
		if !hasAllTags(h.Tags, tags) {
			continue
		}
		if input.From > 0 && h.ArchivedAt < input.From {
			continue
		}
		if input.To > 0 && h.ArchivedAt > input.To {
			continue
		}
		filtered = append(filtered, h)
	}

	total := len(filtered)
	if offset < len(filtered) {
		end := min(offset+limit, len(filtered))
		filtered = filtered[offset:end]
	} else {
		filtered = nil
	}

	items := make([]SearchResultItem, len(filtered))
	for i, h := range filtered {
		snippet := escapeSnippetHTML(h.Snippet)
		items[i] = SearchResultItem{
			ArchiveID:  h.ArchiveID,
			Path:       h.Path,
			Category:   h.Category,
			Tags:       h.Tags,
			ArchivedAt: h.ArchivedAt,
			Snippet:    truncateSnippet(snippet, MaxSnippetChars),
		}
	}

	return &SearchOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		PartialResult:    result.PartialResult,
		DegradedSegments: result.DegradedSegments,
	}, nil
}

// hasAllTags reports whether every wanted tag is present on the hit.
func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// escapeSnippetHTML escapes user content in a snippet while preserving the
// highlight markers the index emits, restoring them as <b> tags afterward.
func escapeSnippetHTML(s string) string {
	const (
		openPlaceholder  = "\x00LOAM_B_OPEN\x00"
		closePlaceholder = "\x00LOAM_B_CLOSE\x00"
	)

	s = strings.ReplaceAll(s, index.SnippetOpenMarker, openPlaceholder)
	s = strings.ReplaceAll(s, index.SnippetCloseMarker, closePlaceholder)

	s = html.EscapeString(s)

	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")
	return s
}

// truncateSnippet truncates a snippet to approximately maxChars while
// preserving valid UTF-8 and closing any open <b> tags.
func truncateSnippet(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	truncated := s[:truncateAt]

	// Trim any partial tag or entity left at the cut
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	unclosed := strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>")
	for range unclosed {
		truncated += "</b>"
	}
	return truncated + "..."
}
