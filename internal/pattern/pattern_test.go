package pattern

import (
	"reflect"
	"testing"
)

func sampleSessions() []Session {
	return []Session{
		{ID: "s1", Files: []string{"notes.md", "main.go"}, Outcome: "success", DurationMinutes: 30},
		{ID: "s2", Files: []string{"plan.md"}, Outcome: "abandoned", DurationMinutes: 90},
		{ID: "s3", Files: []string{"report.md", "util.go", "data.csv"}, Outcome: "Success", DurationMinutes: 60},
	}
}

func TestComputeInsights_Empty(t *testing.T) {
	if got := ComputeInsights(nil); got != nil {
		t.Errorf("ComputeInsights(nil) = %v, want nil", got)
	}
}

func TestComputeInsights_KindsAndOrder(t *testing.T) {
	insights := ComputeInsights(sampleSessions())

	wantKinds := []InsightKind{InsightWorkflow, InsightTiming, InsightContent, InsightOutcome}
	if len(insights) != len(wantKinds) {
		t.Fatalf("got %d insights, want %d", len(insights), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if insights[i].Kind != kind {
			t.Errorf("insights[%d].Kind = %q, want %q", i, insights[i].Kind, kind)
		}
		if insights[i].Samples != 3 {
			t.Errorf("insights[%d].Samples = %d, want 3", i, insights[i].Samples)
		}
	}
}

func TestComputeInsights_Values(t *testing.T) {
	insights := ComputeInsights(sampleSessions())
	byKind := make(map[InsightKind]Insight)
	for _, in := range insights {
		byKind[in.Kind] = in
	}

	// 6 files over 3 sessions
	if got := byKind[InsightWorkflow].Value; got != 2.0 {
		t.Errorf("workflow value = %v, want 2.0", got)
	}
	// durations 30, 60, 90 → median 60
	if got := byKind[InsightTiming].Value; got != 60.0 {
		t.Errorf("timing value = %v, want 60.0", got)
	}
	// 4 of 6 files are .md
	if got := byKind[InsightContent].Value; got < 0.666 || got > 0.667 {
		t.Errorf("content value = %v, want 4/6", got)
	}
	if byKind[InsightContent].Detail != "most common extension: md" {
		t.Errorf("content detail = %q", byKind[InsightContent].Detail)
	}
	// outcomes success, abandoned, Success → 2/3 (case-insensitive)
	if got := byKind[InsightOutcome].Value; got < 0.666 || got > 0.667 {
		t.Errorf("outcome value = %v, want 2/3", got)
	}
	// confidence = n/(n+5) = 3/8
	if got := byKind[InsightTiming].Confidence; got != 0.375 {
		t.Errorf("confidence = %v, want 0.375", got)
	}
}

func TestComputeInsights_Reproducible(t *testing.T) {
	sessions := sampleSessions()

	first := ComputeInsights(sessions)
	for i := 0; i < 10; i++ {
		again := ComputeInsights(sessions)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged:\nfirst = %+v\nagain = %+v", i, first, again)
		}
	}
}

func TestMedianDuration_Even(t *testing.T) {
	sessions := []Session{
		{DurationMinutes: 10, Outcome: "success"},
		{DurationMinutes: 20, Outcome: "success"},
		{DurationMinutes: 30, Outcome: "success"},
		{DurationMinutes: 100, Outcome: "success"},
	}
	insights := ComputeInsights(sessions)
	for _, in := range insights {
		if in.Kind == InsightTiming && in.Value != 25.0 {
			t.Errorf("even-count median = %v, want 25.0", in.Value)
		}
	}
}

func TestTopExtensionPair_Deterministic(t *testing.T) {
	// go+md and csv+md each occur once; lexicographic tie-break picks csv+md
	sessions := []Session{
		{Files: []string{"a.md", "b.go"}, Outcome: "success", DurationMinutes: 5},
		{Files: []string{"c.md", "d.csv"}, Outcome: "success", DurationMinutes: 5},
	}
	insights := ComputeInsights(sessions)
	for _, in := range insights {
		if in.Kind == InsightWorkflow && in.Detail != "typical pairing: csv+md" {
			t.Errorf("workflow detail = %q, want csv+md pairing", in.Detail)
		}
	}
}

func TestTuning(t *testing.T) {
	tests := []struct {
		name   string
		median float64
		want   int
	}{
		{"tracks median", 75, 75},
		{"clamps low", 2, 10},
		{"clamps high", 500, 240},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := Tuning([]Insight{{Kind: InsightTiming, Value: tt.median}})
			if params.TemporalWindowMinutes != tt.want {
				t.Errorf("TemporalWindowMinutes = %d, want %d", params.TemporalWindowMinutes, tt.want)
			}
		})
	}

	t.Run("no timing insight", func(t *testing.T) {
		params := Tuning([]Insight{{Kind: InsightOutcome, Value: 0.5}})
		if params.TemporalWindowMinutes != 0 {
			t.Errorf("TemporalWindowMinutes = %d, want 0", params.TemporalWindowMinutes)
		}
	})
}
