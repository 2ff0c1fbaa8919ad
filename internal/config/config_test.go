package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/sightline/internal/issues"
	"github.com/hpungsan/sightline/internal/score"
	"github.com/hpungsan/sightline/internal/signal"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.TemplateVersion != def.TemplateVersion {
		t.Fatalf("TemplateVersion = %q, want %q", cfg.TemplateVersion, def.TemplateVersion)
	}
	if cfg.GenerationTimeoutSeconds != def.GenerationTimeoutSeconds {
		t.Fatalf("GenerationTimeoutSeconds = %d, want %d", cfg.GenerationTimeoutSeconds, def.GenerationTimeoutSeconds)
	}
	if cfg.RequireApprovalForApply {
		t.Fatal("RequireApprovalForApply should default to false")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{"template_version": "v7", "require_approval_for_apply": true, "ai_daily_quota": 25, "rules_path": "rules.yaml"}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TemplateVersion != "v7" {
		t.Errorf("TemplateVersion = %q, want v7", cfg.TemplateVersion)
	}
	if !cfg.RequireApprovalForApply {
		t.Error("RequireApprovalForApply = false, want true")
	}
	if cfg.AIDailyQuota != 25 {
		t.Errorf("AIDailyQuota = %d, want 25", cfg.AIDailyQuota)
	}
	if want := filepath.Join(tmpDir, "rules.yaml"); cfg.RulesPath != want {
		t.Errorf("RulesPath = %q, want %q", cfg.RulesPath, want)
	}
	// Untouched scalars keep their defaults.
	if cfg.GenerationTimeoutSeconds != 60 {
		t.Errorf("GenerationTimeoutSeconds = %d, want 60", cfg.GenerationTimeoutSeconds)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"disabled_tools": ["draft_apply", "approval_decide"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "draft_apply" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "draft_apply")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"template_version": "v2", "disabled_tools": ["draft_apply"]}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	repoDir := filepath.Join(repoRoot, ".sightline")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"template_version": "v3", "disabled_tools": ["approval_decide"], "rules_path": "rules.yaml"}`
	if err := os.WriteFile(filepath.Join(repoDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.TemplateVersion != "v3" {
		t.Errorf("TemplateVersion = %q, want v3 (repo override)", cfg.TemplateVersion)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if want := filepath.Join(repoDir, "rules.yaml"); cfg.RulesPath != want {
		t.Errorf("RulesPath = %q, want %q (relative to repo config)", cfg.RulesPath, want)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.TemplateVersion != "v1" {
		t.Errorf("TemplateVersion = %q, want v1", cfg.TemplateVersion)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()

	repoDir := filepath.Join(tmpDir, ".sightline")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, "config.json"), []byte(`{"ai_daily_quota": 3}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.AIDailyQuota != 3 {
		t.Errorf("AIDailyQuota = %d, want 3", cfg.AIDailyQuota)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{TemplateVersion: "v1", DBMaxOpenConns: 5, GenerationTimeoutSeconds: 60}
	overlay := &Config{TemplateVersion: "v2", GenerationTimeoutSeconds: 5}

	result := Merge(base, overlay)

	if result.TemplateVersion != "v2" {
		t.Errorf("TemplateVersion = %q, want v2 (overlay)", result.TemplateVersion)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.GenerationTimeout().Seconds() != 5 {
		t.Errorf("GenerationTimeout() = %v, want 5s", result.GenerationTimeout())
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{RequireApprovalForApply: true}, &Config{})
	if !result.RequireApprovalForApply {
		t.Error("RequireApprovalForApply should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"approval", " draft "}}
	overlay := &Config{DisabledTypes: []string{"draft", "score"}}

	result := Merge(base, overlay)

	if len(result.DisabledTypes) != 3 {
		t.Fatalf("DisabledTypes = %v, want 3 entries", result.DisabledTypes)
	}
	for i, want := range []string{"approval", "draft", "score"} {
		if result.DisabledTypes[i] != want {
			t.Errorf("DisabledTypes[%d] = %q, want %q", i, result.DisabledTypes[i], want)
		}
	}
}

func TestLoadRules_DefaultsWhenMissing(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "nope.yaml")} {
		rs, err := LoadRules(path)
		if err != nil {
			t.Fatalf("LoadRules(%q) error = %v", path, err)
		}
		if len(rs.Score.Components) != len(score.DefaultModel().Components) {
			t.Errorf("LoadRules(%q) components = %d, want defaults", path, len(rs.Score.Components))
		}
		if len(rs.Issues.Rules) != len(issues.DefaultRules().Rules) {
			t.Errorf("LoadRules(%q) rules = %d, want defaults", path, len(rs.Issues.Rules))
		}
	}
}

func TestLoadRules_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := `
issues:
  pillar_priority: [visibility, technical]
  rules:
    - type: low_answer_readiness
      pillar: visibility
      signal: answerReadiness
      threshold: 0.2
      severity: critical
      actionability: automatable
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rs.Issues.Rules) != 1 || rs.Issues.Rules[0].Severity != issues.SeverityCritical {
		t.Errorf("Issues.Rules = %+v, want the single override", rs.Issues.Rules)
	}
	if rs.Issues.PillarPriority[0] != signal.PillarVisibility {
		t.Errorf("PillarPriority[0] = %q, want visibility", rs.Issues.PillarPriority[0])
	}
	if len(rs.Score.Components) != len(score.DefaultModel().Components) {
		t.Error("score section was omitted and should keep defaults")
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", "scoring: {}\n"},
		{"bad threshold", "issues:\n  rules:\n    - {type: x, pillar: content, signal: contentDepth, threshold: 1.5, severity: info, actionability: manual}\n"},
		{"unknown pillar", "issues:\n  rules:\n    - {type: x, pillar: reviews, signal: contentDepth, threshold: 0.5, severity: info, actionability: manual}\n"},
		{"zero weight", "score:\n  components:\n    - {id: content, weight: 0, signals: [{signal: contentDepth, weight: 1, pillar: content}]}\n"},
		{"not yaml", "score: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.data)); err == nil {
				t.Fatal("ParseRules() expected error, got nil")
			}
		})
	}
}

func TestParseRules_NormalizesPillarSpelling(t *testing.T) {
	data := "issues:\n  pillar_priority: [Visibility]\n  rules:\n    - {type: x, pillar: Local_Discovery, signal: localPresence, threshold: 0.5, severity: info, actionability: manual}\n"
	rs, err := ParseRules([]byte(data))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}
	if rs.Issues.Rules[0].Pillar != signal.PillarLocalDiscovery {
		t.Errorf("Pillar = %q, want %q", rs.Issues.Rules[0].Pillar, signal.PillarLocalDiscovery)
	}
	if rs.Issues.PillarPriority[0] != signal.PillarVisibility {
		t.Errorf("PillarPriority[0] = %q, want %q", rs.Issues.PillarPriority[0], signal.PillarVisibility)
	}
}

func TestParseRules_Empty(t *testing.T) {
	rs, err := ParseRules(nil)
	if err != nil {
		t.Fatalf("ParseRules(nil) error = %v", err)
	}
	if len(rs.Issues.Rules) == 0 {
		t.Error("empty document should yield default rules")
	}
}
