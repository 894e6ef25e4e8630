// Package config loads the service configuration: the agent roster with
// cost rates, the fallback aggregator, protocol constants, and timeouts.
// Everything is carried in an explicit Config value injected at
// construction — there are no ambient globals.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pedroramos256/bundlecarte/internal/council"
)

// envAPIKey is the environment variable holding the OpenRouter API key.
// The key never lives in the YAML file.
const envAPIKey = "OPENROUTER_API_KEY"

// AgentEntry is one roster entry in the YAML file.
type AgentEntry struct {
	ID    string  `yaml:"id"`
	Model string  `yaml:"model"`
	Rate  float64 `yaml:"rate_per_million"`
}

// Config is the full service configuration. Timeouts are expressed in
// seconds in the file.
type Config struct {
	DataDir string `yaml:"data_dir"`
	BaseURL string `yaml:"base_url"`

	PanelSize    int     `yaml:"panel_size"`
	PenaltyAlpha float64 `yaml:"penalty_alpha"`

	BidTimeoutSeconds        int `yaml:"bid_timeout_seconds"`
	AnswerTimeoutSeconds     int `yaml:"answer_timeout_seconds"`
	AggregatorTimeoutSeconds int `yaml:"aggregator_timeout_seconds"`

	Aggregator AgentEntry   `yaml:"aggregator"`
	Agents     []AgentEntry `yaml:"agents"`

	// APIKey comes from the environment, never from the file.
	APIKey string `yaml:"-"`
}

// Default returns the production defaults: a four-agent roster, a panel
// of three, a 20% overreach penalty, and the standard timeouts.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:                  filepath.Join(home, ".bundlecarte"),
		PanelSize:                3,
		PenaltyAlpha:             0.2,
		BidTimeoutSeconds:        15,
		AnswerTimeoutSeconds:     240,
		AggregatorTimeoutSeconds: 120,
		Aggregator: AgentEntry{
			ID:    "gemini-pro",
			Model: "google/gemini-3-pro-preview",
			Rate:  12,
		},
		Agents: []AgentEntry{
			{ID: "gpt", Model: "openai/gpt-5.1", Rate: 10},
			{ID: "claude", Model: "anthropic/claude-sonnet-4.5", Rate: 15},
			{ID: "gemini", Model: "google/gemini-3-pro-preview", Rate: 12},
			{ID: "grok", Model: "x-ai/grok-4", Rate: 5},
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (when
// path is non-empty) and the API key from the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.APIKey = os.Getenv(envAPIKey)
	return cfg, nil
}

// Validate returns an error when the configuration cannot drive a run.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: %s is not set", envAPIKey)
	}
	if len(c.Agents) == 0 {
		return errors.New("config: agent roster is empty")
	}
	for _, a := range c.Agents {
		if a.ID == "" || a.Model == "" {
			return fmt.Errorf("config: agent entry %+v is missing id or model", a)
		}
		if a.Rate <= 0 {
			return fmt.Errorf("config: agent %q has non-positive rate", a.ID)
		}
	}
	if c.PanelSize < 1 {
		return errors.New("config: panel_size must be at least 1")
	}
	return c.Council().Validate()
}

// Council converts the file-level configuration into the protocol
// parameters the pipeline consumes.
func (c Config) Council() council.Config {
	cc := council.Config{
		FallbackAggregator: council.Agent{ID: c.Aggregator.ID, Model: c.Aggregator.Model, Rate: c.Aggregator.Rate},
		PanelSize:          c.PanelSize,
		PenaltyAlpha:       c.PenaltyAlpha,
		BidTimeout:         time.Duration(c.BidTimeoutSeconds) * time.Second,
		AnswerTimeout:      time.Duration(c.AnswerTimeoutSeconds) * time.Second,
		AggregatorTimeout:  time.Duration(c.AggregatorTimeoutSeconds) * time.Second,
	}
	for _, a := range c.Agents {
		cc.Agents = append(cc.Agents, council.Agent{ID: a.ID, Model: a.Model, Rate: a.Rate})
	}
	return cc
}
