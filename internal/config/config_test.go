package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "council.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

// --- Default ---

func TestDefault_ProtocolConstants(t *testing.T) {
	cfg := Default()
	if cfg.PanelSize != 3 {
		t.Errorf("panel size = %d, want 3", cfg.PanelSize)
	}
	if cfg.PenaltyAlpha != 0.2 {
		t.Errorf("penalty alpha = %v, want 0.2", cfg.PenaltyAlpha)
	}
	if len(cfg.Agents) == 0 {
		t.Error("default roster is empty")
	}
	if cfg.Aggregator.Model == "" {
		t.Error("default fallback aggregator is empty")
	}
}

// --- Load ---

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv(envAPIKey, "sk-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PanelSize != 3 {
		t.Errorf("panel size = %d, want default 3", cfg.PanelSize)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("api key = %q, want value from environment", cfg.APIKey)
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	t.Setenv(envAPIKey, "sk-test")
	path := writeConfigFile(t, `
panel_size: 2
penalty_alpha: 0.5
agents:
  - id: solo
    model: test/solo
    rate_per_million: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PanelSize != 2 {
		t.Errorf("panel size = %d, want 2", cfg.PanelSize)
	}
	if cfg.PenaltyAlpha != 0.5 {
		t.Errorf("penalty alpha = %v, want 0.5", cfg.PenaltyAlpha)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "solo" {
		t.Errorf("agents = %+v", cfg.Agents)
	}
	// Untouched fields keep their defaults.
	if cfg.BidTimeoutSeconds != 15 {
		t.Errorf("bid timeout = %d, want default 15", cfg.BidTimeoutSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(envAPIKey, "sk-test")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of a missing file should fail")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Setenv(envAPIKey, "sk-test")
	path := writeConfigFile(t, "agents: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("Load of malformed YAML should fail")
	}
}

// --- Validate ---

func validConfig() Config {
	cfg := Default()
	cfg.APIKey = "sk-test"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("defaults should validate, got: %v", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing API key should fail validation")
	}
}

func TestValidate_EmptyRoster(t *testing.T) {
	cfg := validConfig()
	cfg.Agents = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty roster should fail validation")
	}
}

func TestValidate_AgentMissingModel(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].Model = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("agent without model should fail validation")
	}
}

func TestValidate_NonPositiveRate(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].Rate = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero rate should fail validation")
	}
}

func TestValidate_BadPanelSize(t *testing.T) {
	cfg := validConfig()
	cfg.PanelSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero panel size should fail validation")
	}
}

// --- Council ---

func TestCouncil_Conversion(t *testing.T) {
	cfg := validConfig()
	cc := cfg.Council()

	if len(cc.Agents) != len(cfg.Agents) {
		t.Fatalf("agents = %d, want %d", len(cc.Agents), len(cfg.Agents))
	}
	if cc.Agents[0].ID != cfg.Agents[0].ID {
		t.Errorf("agent id = %s", cc.Agents[0].ID)
	}
	if cc.FallbackAggregator.Model != cfg.Aggregator.Model {
		t.Errorf("fallback aggregator = %s", cc.FallbackAggregator.Model)
	}
	if cc.BidTimeout != 15*time.Second {
		t.Errorf("bid timeout = %s, want 15s", cc.BidTimeout)
	}
	if cc.AnswerTimeout != 240*time.Second {
		t.Errorf("answer timeout = %s, want 240s", cc.AnswerTimeout)
	}
}
