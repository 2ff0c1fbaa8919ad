package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// RequireApprovalForApply gates apply behind an approved request for the
	// current draft version.
	RequireApprovalForApply bool `json:"require_approval_for_apply,omitempty"`

	// TemplateVersion is part of every work key. Bump it when prompts change
	// so stale cached suggestions stop matching.
	TemplateVersion string `json:"template_version"`

	// GenerationTimeoutSeconds bounds a single generation, including time
	// spent waiting for rate and concurrency capacity.
	GenerationTimeoutSeconds int `json:"generation_timeout_seconds"`

	// FixCacheMaxEntries bounds the in-memory tier of the fix cache.
	// The sqlite tier is not bounded. 0 means unbounded.
	FixCacheMaxEntries int `json:"fix_cache_max_entries"`

	// FixCacheTTLSeconds expires cached suggestions. 0 means never.
	FixCacheTTLSeconds int `json:"fix_cache_ttl_seconds,omitempty"`

	// AIDailyQuota is the number of generations (cache misses) a project may
	// run per UTC day. 0 means unlimited.
	AIDailyQuota int `json:"ai_daily_quota,omitempty"`

	// AIModel is the Anthropic model id. Without ANTHROPIC_API_KEY the
	// offline static generator is used instead.
	AIModel string `json:"ai_model,omitempty"`

	// GenerationRatePerMinute and GenerationMaxConcurrent limit calls to the
	// generator. 0 disables the limit.
	GenerationRatePerMinute int `json:"generation_rate_per_minute,omitempty"`
	GenerationMaxConcurrent int `json:"generation_max_concurrent,omitempty"`

	// RulesPath points to a YAML file overriding the scoring model and issue
	// rules. Relative paths resolve against the config base dir.
	RulesPath string `json:"rules_path,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "signals", "score", "draft", "approval". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TemplateVersion:          "v1",
		GenerationTimeoutSeconds: 60,
		FixCacheMaxEntries:       1000,
		AIModel:                  "claude-sonnet-4-5",
		GenerationMaxConcurrent:  4,
	}
}

// GenerationTimeout returns the configured timeout as a duration.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// FixCacheTTL returns the configured TTL as a duration.
func (c *Config) FixCacheTTL() time.Duration {
	return time.Duration(c.FixCacheTTLSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.sightline.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.sightline) and repo (.sightline) directories.
// Repo config is found by walking upward from startDir to find the nearest .sightline/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
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
	if repo.RulesPath != "" && !filepath.IsAbs(repo.RulesPath) {
		repo.RulesPath = filepath.Join(filepath.Dir(repoConfigPath), repo.RulesPath)
	}
	if global.RulesPath != "" && !filepath.IsAbs(global.RulesPath) {
		global.RulesPath = filepath.Join(globalDir, global.RulesPath)
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .sightline/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".sightline", "config.json")
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
	if configPath == "" {
		return &Config{}, nil
	}
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

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.RulesPath != "" && !filepath.IsAbs(cfg.RulesPath) {
		cfg.RulesPath = filepath.Join(filepath.Dir(configPath), cfg.RulesPath)
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.TemplateVersion = firstString(overlay.TemplateVersion, base.TemplateVersion)
	result.AIModel = firstString(overlay.AIModel, base.AIModel)
	result.RulesPath = firstString(overlay.RulesPath, base.RulesPath)

	result.GenerationTimeoutSeconds = firstInt(overlay.GenerationTimeoutSeconds, base.GenerationTimeoutSeconds)
	result.FixCacheMaxEntries = firstInt(overlay.FixCacheMaxEntries, base.FixCacheMaxEntries)
	result.FixCacheTTLSeconds = firstInt(overlay.FixCacheTTLSeconds, base.FixCacheTTLSeconds)
	result.AIDailyQuota = firstInt(overlay.AIDailyQuota, base.AIDailyQuota)
	result.GenerationRatePerMinute = firstInt(overlay.GenerationRatePerMinute, base.GenerationRatePerMinute)
	result.GenerationMaxConcurrent = firstInt(overlay.GenerationMaxConcurrent, base.GenerationMaxConcurrent)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.RequireApprovalForApply = base.RequireApprovalForApply || overlay.RequireApprovalForApply

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
