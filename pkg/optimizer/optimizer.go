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

// Package optimizer implements the Optimizer role-agent: it populates a
// per-task context budget by running skill discovery and the
// proportional budget allocator before the ExecutorAgent runs.
package optimizer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mnemosyne-project/mnemosyne/pkg/agent"
	"github.com/mnemosyne-project/mnemosyne/pkg/skills"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// Config configures one Optimizer.
type Config struct {
	AgentID     string
	SkillRoots  []string // first root is local (project-scoped)
	TokenBudget int
	Fractions   skills.Fractions
}

func (c *Config) setDefaults() {
	if c.AgentID == "" {
		c.AgentID = "optimizer-" + uuid.NewString()
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = 20000
	}
	if c.Fractions == (skills.Fractions{}) || !c.Fractions.Valid() {
		c.Fractions = skills.DefaultFractions()
	}
}

// Plan is the Optimizer's output for one work item: the skills selected
// for inclusion in the prompt and the token budget split to honor.
type Plan struct {
	Skills     []skills.Match
	Allocation skills.Allocation
}

// Optimizer is the Optimizer role-agent.
type Optimizer struct {
	cfg   Config
	index *skills.Index
}

var _ agent.Agent = (*Optimizer)(nil)

// New creates an Optimizer over cfg.SkillRoots.
func New(cfg Config) *Optimizer {
	cfg.setDefaults()
	return &Optimizer{cfg: cfg, index: skills.New(cfg.SkillRoots)}
}

// Role implements agent.Agent.
func (o *Optimizer) Role() agent.Role { return agent.RoleOptimizer }

// StartSession implements agent.Agent; the Optimizer needs no session.
func (o *Optimizer) StartSession(ctx context.Context) error { return nil }

// StopSession is idempotent.
func (o *Optimizer) StopSession(ctx context.Context) error { return nil }

// Execute runs Optimize over item's description as keywords, returning a
// neutral WorkResult carrying no error; the real output is obtained via
// Optimize directly (Execute exists only to satisfy agent.Agent).
func (o *Optimizer) Execute(ctx context.Context, item work.Item) (work.Result, error) {
	if _, err := o.Optimize(item); err != nil {
		return work.Result{Success: false, Error: err.Error()}, nil
	}
	return work.Result{Success: true}, nil
}

// Optimize runs skill discovery keyed off item's description and splits
// TokenBudget across the four buckets.
func (o *Optimizer) Optimize(item work.Item) (Plan, error) {
	keywords := keywordsFrom(item.Description)
	matches, err := o.index.Discover(keywords)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Skills:     matches,
		Allocation: skills.Allocate(o.cfg.TokenBudget, o.cfg.Fractions),
	}, nil
}

// keywordsFrom extracts lowercase word tokens from text for skill
// relevance scoring, dropping short stopword-sized fragments.
func keywordsFrom(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
