// Copyright 2025 The Mnemosyne Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the Engine's layered configuration: a YAML file
// decoded through mapstructure over named defaults, .env loading via
// godotenv, then environment variable overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/mnemosyne-project/mnemosyne/pkg/breaker"
	"github.com/mnemosyne-project/mnemosyne/pkg/contextmonitor"
	"github.com/mnemosyne-project/mnemosyne/pkg/observability"
	"github.com/mnemosyne-project/mnemosyne/pkg/skills"
	"github.com/mnemosyne-project/mnemosyne/pkg/workgraph"
)

// EngineConfig is the Engine's full composition-root configuration, a
// fixed record of well-known fields rather than an open-ended keyword
// map.
type EngineConfig struct {
	Database          string          `yaml:"database" mapstructure:"database"`
	LogLevel          string          `yaml:"log_level" mapstructure:"log_level"`
	LogFile           string          `yaml:"log_file" mapstructure:"log_file"`
	DisableEvaluation bool            `yaml:"disable_evaluation" mapstructure:"disable_evaluation"`
	SkillRoots        []string        `yaml:"skill_roots" mapstructure:"skill_roots"`
	TokenBudget       int             `yaml:"token_budget" mapstructure:"token_budget"`
	Breaker           breaker.Config  `yaml:"breaker" mapstructure:"breaker"`
	ContextMonitor    monitorConfig   `yaml:"context_monitor" mapstructure:"context_monitor"`
	Executor          workgraph.Config `yaml:"executor" mapstructure:"executor"`
	BudgetFractions   skills.Fractions `yaml:"budget_fractions" mapstructure:"budget_fractions"`
	Observability     observability.Config `yaml:"observability" mapstructure:"observability"`
}

// monitorConfig mirrors contextmonitor.Config's tunables as plain YAML
// scalars (time.Duration doesn't round-trip through YAML as milliseconds
// without help).
type monitorConfig struct {
	PollingIntervalMS      int     `yaml:"polling_interval_ms" mapstructure:"polling_interval_ms"`
	PreservationThreshold  float64 `yaml:"preservation_threshold" mapstructure:"preservation_threshold"`
	CriticalThreshold      float64 `yaml:"critical_threshold" mapstructure:"critical_threshold"`
}

// ToContextMonitorConfig converts the YAML-friendly shape into
// contextmonitor.Config (callbacks are wired separately by the Engine).
func (m monitorConfig) ToContextMonitorConfig() contextmonitor.Config {
	cfg := contextmonitor.Config{
		PreservationThreshold: m.PreservationThreshold,
		CriticalThreshold:     m.CriticalThreshold,
	}
	if m.PollingIntervalMS > 0 {
		cfg.PollingInterval = time.Duration(m.PollingIntervalMS) * time.Millisecond
	}
	return cfg
}

// Default returns the named default for every tunable.
func Default() EngineConfig {
	return EngineConfig{
		Database:    defaultDatabasePath(),
		LogLevel:    "info",
		TokenBudget: 20000,
		Breaker:     breaker.DefaultConfig(),
		ContextMonitor: monitorConfig{
			PollingIntervalMS:     10,
			PreservationThreshold: 0.75,
			CriticalThreshold:     0.90,
		},
		Executor:        workgraph.DefaultConfig(),
		BudgetFractions: skills.DefaultFractions(),
	}
}

// defaultDatabasePath implements the database-path precedence:
// ".mnemosyne/project.db" if present, else
// "$XDG_DATA_HOME/mnemosyne/mnemosyne.db", else
// "~/.local/share/mnemosyne/mnemosyne.db".
func defaultDatabasePath() string {
	const projectLocal = ".mnemosyne/project.db"
	if _, err := os.Stat(projectLocal); err == nil {
		return projectLocal
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mnemosyne", "mnemosyne.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return projectLocal
	}
	return filepath.Join(home, ".local", "share", "mnemosyne", "mnemosyne.db")
}

// Load reads path (if it exists) as YAML into EngineConfig over
// Default()'s values, loads .env/.env.local via LoadEnvFiles, then
// applies the recognized MNEMOSYNE_* environment overrides.
func Load(path string) (EngineConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var raw map[string]any
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return cfg, err
			}
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           &cfg,
				WeaklyTypedInput: true,
			})
			if err != nil {
				return cfg, err
			}
			if err := decoder.Decode(raw); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := LoadEnvFiles(); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides applies the recognized MNEMOSYNE_* environment
// variables.
func applyEnvOverrides(cfg *EngineConfig) {
	if v := os.Getenv("MNEMOSYNE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MNEMOSYNE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("MNEMOSYNE_DISABLE_EVALUATION"); v == "true" || v == "1" {
		cfg.DisableEvaluation = true
	}
}

// HasLlmCredential reports whether ANTHROPIC_API_KEY is resolvable; its
// absence is fatal for session start but only warned at load time.
func HasLlmCredential() bool {
	_, ok := os.LookupEnv("ANTHROPIC_API_KEY")
	return ok
}
