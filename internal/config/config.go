package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// AgingDays is the days-since-last-access threshold for Active → Aging.
	AgingDays int `json:"aging_days"`

	// ArchiveEligibleDays is the days-since-last-access threshold for
	// Aging → ArchiveEligible. Must exceed AgingDays.
	ArchiveEligibleDays int `json:"archive_eligible_days"`

	// ProtectScore is the retention score at or above which a file never
	// leaves Active automatically (explicit archive only).
	ProtectScore float64 `json:"protect_score"`

	// SimilarityThreshold is the single-linkage clustering cut for
	// consolidation grouping.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// TagWeight, TemporalWeight, and TopicWeight weight the three
	// similarity signals. They should sum to 1.0.
	TagWeight      float64 `json:"tag_weight"`
	TemporalWeight float64 `json:"temporal_weight"`
	TopicWeight    float64 `json:"topic_weight"`

	// TemporalWindowMinutes is the proximity window for the temporal
	// similarity signal (files outside it score 0 on that signal).
	TemporalWindowMinutes int `json:"temporal_window_minutes"`

	// SegmentMaxRecords is the record count at which the active archive
	// index segment rolls over to a new file.
	SegmentMaxRecords int `json:"segment_max_records"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is
	// locked" errors). 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AgingDays:             14,
		ArchiveEligibleDays:   45,
		ProtectScore:          8.5,
		SimilarityThreshold:   0.7,
		TagWeight:             0.4,
		TemporalWeight:        0.3,
		TopicWeight:           0.3,
		TemporalWindowMinutes: 60,
		SegmentMaxRecords:     256,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.loam.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from both global (~/.loam) and repo
// (.loam) directories. Repo config is found by walking upward from startDir
// to find the nearest .loam/config.json. Repo config takes precedence for
// scalar values; arrays are merged (deduplicated). Either or both configs
// may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest
// .loam/config.json. Returns the path if found, or empty string if not.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".loam", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and
// deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.AgingDays = pickInt(base.AgingDays, overlay.AgingDays)
	result.ArchiveEligibleDays = pickInt(base.ArchiveEligibleDays, overlay.ArchiveEligibleDays)
	result.TemporalWindowMinutes = pickInt(base.TemporalWindowMinutes, overlay.TemporalWindowMinutes)
	result.SegmentMaxRecords = pickInt(base.SegmentMaxRecords, overlay.SegmentMaxRecords)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.ProtectScore = pickFloat(base.ProtectScore, overlay.ProtectScore)
	result.SimilarityThreshold = pickFloat(base.SimilarityThreshold, overlay.SimilarityThreshold)
	result.TagWeight = pickFloat(base.TagWeight, overlay.TagWeight)
	result.TemporalWeight = pickFloat(base.TemporalWeight, overlay.TemporalWeight)
	result.TopicWeight = pickFloat(base.TopicWeight, overlay.TopicWeight)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickFloat(base, overlay float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes
// duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
