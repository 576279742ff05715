// Package consolidate finds groups of related active files and plans their
// merge into one destination. Grouping is single-linkage over a similarity
// threshold, but a group's reported confidence is the minimum pairwise
// similarity inside it, so a chain of strong links cannot hide one weak
// member.
package consolidate

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/loam/internal/file"
)

// Kind classifies what binds an opportunity together.
type Kind string

const (
	KindTopic     Kind = "topic"
	KindTemporal  Kind = "temporal"
	KindOutcome   Kind = "outcome"
	KindReference Kind = "reference"
)

// Opportunity is a proposed merge of N ≥ 2 active files. It lives for one
// scan cycle; applying it converts it into file mutations.
type Opportunity struct {
	// Sources are the paths to merge, ordered.
	Sources []string `json:"sources"`

	// Destination is the suggested merged path.
	Destination string `json:"destination"`

	// Confidence is the minimum pairwise similarity among all sources.
	Confidence float64 `json:"confidence"`

	// Rationale describes the matching signals in free text.
	Rationale string `json:"rationale"`

	// Kind is the dominant grouping signal.
	Kind Kind `json:"kind"`
}

// TopicScorer measures content-topic overlap between two files. Pluggable;
// the default is keyword-set overlap.
type TopicScorer interface {
	Similarity(a, b string) float64
}

// Params weight the similarity signals and set the clustering cut.
type Params struct {
	Threshold      float64
	TagWeight      float64
	TemporalWeight float64
	TopicWeight    float64

	// TemporalWindowSeconds is the proximity window for files not sharing
	// a session; outside it the temporal signal is zero.
	TemporalWindowSeconds int64
}

// Similarity computes the weighted pairwise similarity of two files.
func Similarity(a, b *file.TrackedFile, p Params, topic TopicScorer) float64 {
	return p.TagWeight*file.TagOverlap(a.Tags, b.Tags) +
		p.TemporalWeight*temporalProximity(a, b, p.TemporalWindowSeconds) +
		p.TopicWeight*topic.Similarity(a.Content, b.Content)
}

// temporalProximity is 1.0 for files of the same session, otherwise a
// linear falloff of modification-time distance within the window.
func temporalProximity(a, b *file.TrackedFile, windowSeconds int64) float64 {
	if a.SessionID != "" && a.SessionID == b.SessionID {
		return 1.0
	}
	if windowSeconds <= 0 {
		return 0
	}
	delta := a.ModifiedAt - b.ModifiedAt
	if delta < 0 {
		delta = -delta
	}
	if delta >= windowSeconds {
		return 0
	}
	return 1.0 - float64(delta)/float64(windowSeconds)
}

// Identify scans the candidate set and returns merge opportunities, ordered
// by descending confidence then first source path. Deterministic for a
// fixed candidate set.
func Identify(candidates []file.TrackedFile, p Params, topic TopicScorer) []Opportunity {
	if topic == nil {
		topic = NewKeywordScorer()
	}

	files := make([]file.TrackedFile, len(candidates))
	copy(files, candidates)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	n := len(files)
	if n < 2 {
		return nil
	}

	// Pairwise similarity matrix
	sims := make([][]float64, n)
	for i := range sims {
		sims[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := Similarity(&files[i], &files[j], p, topic)
			sims[i][j] = s
			sims[j][i] = s
		}
	}

	// Single-linkage: union files joined by any edge at or above threshold
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sims[i][j] >= p.Threshold {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	roots := make([]int, 0, len(groups))
	for root, members := range groups {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	var opportunities []Opportunity
	for _, root := range roots {
		members := groups[root]
		opportunities = append(opportunities, buildOpportunity(files, members, sims, p))
	}

	sort.Slice(opportunities, func(i, j int) bool {
		if opportunities[i].Confidence != opportunities[j].Confidence {
			return opportunities[i].Confidence > opportunities[j].Confidence
		}
		return opportunities[i].Sources[0] < opportunities[j].Sources[0]
	})
	return opportunities
}

func buildOpportunity(files []file.TrackedFile, members []int, sims [][]float64, p Params) Opportunity {
	sources := make([]string, len(members))
	for i, m := range members {
		sources[i] = files[m].Path
	}

	// Confidence is the minimum over ALL pairs in the group, not the
	// linkage threshold: a weak chain member drags the whole group down.
	minSim := 1.0
	var tagSum, temporalSum float64
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			if sims[a][b] < minSim {
				minSim = sims[a][b]
			}
			tagSum += p.TagWeight * file.TagOverlap(files[a].Tags, files[b].Tags)
			temporalSum += p.TemporalWeight * temporalProximity(&files[a], &files[b], p.TemporalWindowSeconds)
			pairs++
		}
	}

	kind := classify(files, members, tagSum/float64(pairs), temporalSum/float64(pairs))

	return Opportunity{
		Sources:     sources,
		Destination: suggestDestination(files, members),
		Confidence:  minSim,
		Rationale:   rationale(kind, len(members), minSim),
		Kind:        kind,
	}
}

// classify picks the dominant grouping signal. Tag conventions win first:
// a shared "reference" or "outcome"/"decision" tag names the kind directly.
func classify(files []file.TrackedFile, members []int, tagMean, temporalMean float64) Kind {
	if allShareTag(files, members, "reference") {
		return KindReference
	}
	if allShareTag(files, members, "outcome") || allShareTag(files, members, "decision") {
		return KindOutcome
	}
	if temporalMean > tagMean {
		return KindTemporal
	}
	return KindTopic
}

func allShareTag(files []file.TrackedFile, members []int, tag string) bool {
	for _, m := range members {
		found := false
		for _, t := range files[m].Tags {
			if t == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// suggestDestination names the merged file after the most common shared tag,
// falling back to the stem of the first source path.
func suggestDestination(files []file.TrackedFile, members []int) string {
	counts := make(map[string]int)
	for _, m := range members {
		for _, t := range files[m].Tags {
			counts[t]++
		}
	}

	stem := ""
	best := 1
	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	for _, t := range tags {
		if counts[t] > best {
			best = counts[t]
			stem = t
		}
	}

	if stem == "" {
		first := files[members[0]].Path
		base := first[strings.LastIndex(first, "/")+1:]
		stem = strings.TrimSuffix(base, ".md")
		if dot := strings.LastIndex(stem, "."); dot > 0 {
			stem = stem[:dot]
		}
	}
	return stem + "-consolidated.md"
}

func rationale(kind Kind, n int, confidence float64) string {
	var signal string
	switch kind {
	case KindTemporal:
		signal = "were edited in the same working window"
	case KindOutcome:
		signal = "capture the same outcome"
	case KindReference:
		signal = "are reference material on one subject"
	default:
		signal = "share tags and topic vocabulary"
	}
	return fmt.Sprintf("%d files %s (weakest pairwise link %.2f)", n, signal, confidence)
}

// BuildMerge renders the destination content for an applied opportunity,
// one section per source in order.
func BuildMerge(destination string, sources []file.TrackedFile) string {
	var b strings.Builder
	title := strings.TrimSuffix(destination, ".md")
	fmt.Fprintf(&b, "# %s\n", title)
	for _, src := range sources {
		fmt.Fprintf(&b, "\n## From %s\n\n", src.Path)
		b.WriteString(strings.TrimSpace(src.Content))
		b.WriteString("\n")
	}
	return b.String()
}

// ValidateDestination checks a merged destination before any source is
// touched: non-empty, valid UTF-8, and parseable markdown for .md names.
// Returns a human-readable reason on failure.
func ValidateDestination(name, content string) (string, bool) {
	if strings.TrimSpace(content) == "" {
		return "destination content is empty", false
	}
	if !utf8.ValidString(content) {
		return "destination content is not valid UTF-8", false
	}
	if strings.HasSuffix(name, ".md") {
		if err := goldmark.Convert([]byte(content), discard{}); err != nil {
			return fmt.Sprintf("markdown does not parse: %v", err), false
		}
	}
	return "", true
}

// discard is an io.Writer that drops rendered output; only the parse result
// matters for validation.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// stopwords excluded from keyword matching.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "with": true, "this": true,
	"that": true, "from": true, "have": true, "was": true, "were": true,
	"will": true, "what": true, "when": true, "where": true, "which": true,
	"their": true, "there": true, "about": true, "into": true, "than": true,
	"then": true, "them": true, "they": true, "has": true, "had": true,
}

// KeywordScorer is the default TopicScorer: Jaccard overlap of the
// lowercased word sets, stopwords and short tokens removed.
type KeywordScorer struct{}

// NewKeywordScorer creates the default topic scorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

// Similarity implements TopicScorer.
func (k *KeywordScorer) Similarity(a, b string) float64 {
	setA := keywords(a)
	setB := keywords(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func keywords(content string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool)
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		set[w] = true
	}
	return set
}
