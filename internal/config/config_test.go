package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.AgingDays != 14 {
		t.Errorf("AgingDays = %d, want 14", cfg.AgingDays)
	}
	if cfg.ArchiveEligibleDays != 45 {
		t.Errorf("ArchiveEligibleDays = %d, want 45", cfg.ArchiveEligibleDays)
	}
	if cfg.ProtectScore != 8.5 {
		t.Errorf("ProtectScore = %v, want 8.5", cfg.ProtectScore)
	}
	if cfg.SimilarityThreshold != 0.7 {
		t.Errorf("SimilarityThreshold = %v, want 0.7", cfg.SimilarityThreshold)
	}
	sum := cfg.TagWeight + cfg.TemporalWeight + cfg.TopicWeight
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("similarity weights sum to %v, want 1.0", sum)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AgingDays != 14 {
		t.Errorf("missing file should yield defaults, AgingDays = %d", cfg.AgingDays)
	}
}

func TestLoad_Overrides(t *testing.T) {
	tmpDir := t.TempDir()
	content := `{"aging_days": 7, "protect_score": 9.0, "disabled_tools": ["archive_purge"]}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AgingDays != 7 {
		t.Errorf("AgingDays = %d, want 7", cfg.AgingDays)
	}
	if cfg.ProtectScore != 9.0 {
		t.Errorf("ProtectScore = %v, want 9.0", cfg.ProtectScore)
	}
	// Unset values keep defaults
	if cfg.ArchiveEligibleDays != 45 {
		t.Errorf("ArchiveEligibleDays = %d, want default 45", cfg.ArchiveEligibleDays)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "archive_purge" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load should fail on malformed JSON")
	}
}

func TestLoadWithRepo(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalJSON := `{"aging_days": 10, "segment_max_records": 64}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalJSON), 0600); err != nil {
		t.Fatal(err)
	}

	repoConfigDir := filepath.Join(repoRoot, ".loam")
	if err := os.MkdirAll(repoConfigDir, 0700); err != nil {
		t.Fatal(err)
	}
	repoJSON := `{"aging_days": 3, "disabled_tools": ["file_register"]}`
	if err := os.WriteFile(filepath.Join(repoConfigDir, "config.json"), []byte(repoJSON), 0600); err != nil {
		t.Fatal(err)
	}

	// Start from a nested directory; the repo config is found by walking up.
	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo failed: %v", err)
	}

	// Repo wins over global, global wins over defaults
	if cfg.AgingDays != 3 {
		t.Errorf("AgingDays = %d, want repo value 3", cfg.AgingDays)
	}
	if cfg.SegmentMaxRecords != 64 {
		t.Errorf("SegmentMaxRecords = %d, want global value 64", cfg.SegmentMaxRecords)
	}
	if cfg.ArchiveEligibleDays != 45 {
		t.Errorf("ArchiveEligibleDays = %d, want default 45", cfg.ArchiveEligibleDays)
	}
	if len(cfg.DisabledTools) != 1 {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig = %q, want empty", got)
	}
}

func TestMerge_Arrays(t *testing.T) {
	base := &Config{DisabledTools: []string{"a", "b"}}
	overlay := &Config{DisabledTools: []string{"b", "c", " "}}

	merged := Merge(base, overlay)
	want := []string{"a", "b", "c"}
	if len(merged.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", merged.DisabledTools, want)
	}
	for i := range want {
		if merged.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, merged.DisabledTools[i], want[i])
		}
	}
}
