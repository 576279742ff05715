// Package pattern derives aggregate insights from the append-only session
// history. ComputeInsights is a pure function of the recorded history: it
// never reads live file state, so recomputing over the same log always
// yields the same insights.
package pattern

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Session is one recorded work session: the files it touched, how it ended,
// and how long it ran.
type Session struct {
	ID              string
	Files           []string
	Outcome         string
	DurationMinutes int
	RecordedAt      int64
}

// InsightKind classifies an insight.
type InsightKind string

const (
	InsightWorkflow InsightKind = "workflow"
	InsightTiming   InsightKind = "timing"
	InsightContent  InsightKind = "content"
	InsightOutcome  InsightKind = "outcome"
)

// insightKinds fixes the emission order so generations are comparable.
var insightKinds = []InsightKind{InsightWorkflow, InsightTiming, InsightContent, InsightOutcome}

// Insight is one aggregate statistic over the session history.
type Insight struct {
	Generation  string
	Kind        InsightKind
	Value       float64
	Detail      string
	Samples     int
	Confidence  float64
	GeneratedAt int64
}

// confidenceK dampens confidence at low sample counts: n/(n+k).
const confidenceK = 5

// ComputeInsights derives one insight per kind from the session history.
// Pure: no clock, no I/O, deterministic ordering and tie-breaks. Generation
// and GeneratedAt are stamped by the caller when the run is persisted.
// Returns nil for an empty history.
func ComputeInsights(sessions []Session) []Insight {
	if len(sessions) == 0 {
		return nil
	}

	n := len(sessions)
	confidence := float64(n) / float64(n+confidenceK)

	values := map[InsightKind]struct {
		value  float64
		detail string
	}{
		InsightWorkflow: {meanFilesPerSession(sessions), topExtensionPair(sessions)},
		InsightTiming:   {medianDuration(sessions), "median session minutes"},
		InsightContent:  contentInsight(sessions),
		InsightOutcome:  {successRatio(sessions), "share of sessions ending in success"},
	}

	insights := make([]Insight, 0, len(insightKinds))
	for _, kind := range insightKinds {
		v := values[kind]
		insights = append(insights, Insight{
			Kind:       kind,
			Value:      v.value,
			Detail:     v.detail,
			Samples:    n,
			Confidence: confidence,
		})
	}
	return insights
}

func meanFilesPerSession(sessions []Session) float64 {
	total := 0
	for _, s := range sessions {
		total += len(s.Files)
	}
	return float64(total) / float64(len(sessions))
}

func medianDuration(sessions []Session) float64 {
	durations := make([]int, len(sessions))
	for i, s := range sessions {
		durations[i] = s.DurationMinutes
	}
	sort.Ints(durations)
	mid := len(durations) / 2
	if len(durations)%2 == 1 {
		return float64(durations[mid])
	}
	return float64(durations[mid-1]+durations[mid]) / 2
}

func successRatio(sessions []Session) float64 {
	succeeded := 0
	for _, s := range sessions {
		if strings.EqualFold(strings.TrimSpace(s.Outcome), "success") {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(sessions))
}

// contentInsight finds the most common file extension across the history.
// Value is its share of all files; detail names the extension.
func contentInsight(sessions []Session) struct {
	value  float64
	detail string
} {
	counts := make(map[string]int)
	total := 0
	for _, s := range sessions {
		for _, f := range s.Files {
			counts[extOf(f)]++
			total++
		}
	}
	if total == 0 {
		return struct {
			value  float64
			detail string
		}{0, "no files recorded"}
	}

	best, bestCount := pickMax(counts)
	return struct {
		value  float64
		detail string
	}{float64(bestCount) / float64(total), fmt.Sprintf("most common extension: %s", best)}
}

// topExtensionPair finds the extension pair that most often co-occurs
// within a single session, e.g. "go+md".
func topExtensionPair(sessions []Session) string {
	counts := make(map[string]int)
	for _, s := range sessions {
		exts := make(map[string]bool)
		for _, f := range s.Files {
			exts[extOf(f)] = true
		}
		sorted := make([]string, 0, len(exts))
		for e := range exts {
			sorted = append(sorted, e)
		}
		sort.Strings(sorted)
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				counts[sorted[i]+"+"+sorted[j]]++
			}
		}
	}
	if len(counts) == 0 {
		return "no co-occurring types"
	}
	best, _ := pickMax(counts)
	return fmt.Sprintf("typical pairing: %s", best)
}

// pickMax returns the highest-count key, breaking ties lexicographically so
// the result does not depend on map iteration order.
func pickMax(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := ""
	bestCount := -1
	for _, k := range keys {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best, bestCount
}

func extOf(p string) string {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return "none"
	}
	return strings.ToLower(ext)
}

// TuningParams are the heuristics other components consume. Components read
// these outputs, never the recognizer's internals.
type TuningParams struct {
	// TemporalWindowMinutes widens or narrows the consolidation advisor's
	// temporal-proximity window. 0 means no adjustment.
	TemporalWindowMinutes int
}

// Tuning maps an insight generation to tuning parameters. The temporal
// window tracks the median session duration, clamped to [10, 240] minutes.
func Tuning(insights []Insight) TuningParams {
	var params TuningParams
	for _, in := range insights {
		if in.Kind != InsightTiming {
			continue
		}
		window := int(in.Value)
		if window < 10 {
			window = 10
		}
		if window > 240 {
			window = 240
		}
		params.TemporalWindowMinutes = window
	}
	return params
}
