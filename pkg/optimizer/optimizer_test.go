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

package optimizer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/agent"
	"github.com/mnemosyne-project/mnemosyne/pkg/optimizer"
	"github.com/mnemosyne-project/mnemosyne/pkg/skills"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

func writeSkill(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func TestOptimize_DiscoversSkillsAndSplitsBudget(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "skill-concurrency-channels.md",
		"concurrency channels goroutines select patterns for parallel pipelines")

	opt := optimizer.New(optimizer.Config{
		SkillRoots:  []string{root},
		TokenBudget: 10000,
	})

	plan, err := opt.Optimize(work.Item{
		ID:          "w1",
		Description: "Build concurrency pipelines with channels and goroutines",
		Phase:       work.PhaseImplementation,
	})
	require.NoError(t, err)
	require.Len(t, plan.Skills, 1)
	assert.True(t, plan.Skills[0].IsLocal)

	// Budget invariant: non-negative shares summing to at most the budget.
	alloc := plan.Allocation
	assert.LessOrEqual(t, alloc.Total(), 10000)
	for _, share := range []int{alloc.Critical, alloc.Skills, alloc.Project, alloc.General} {
		assert.GreaterOrEqual(t, share, 0)
	}
	assert.Equal(t, 4000, alloc.Critical)
	assert.Equal(t, 3000, alloc.Skills)
}

func TestOptimize_NoRootsYieldsEmptyPlan(t *testing.T) {
	opt := optimizer.New(optimizer.Config{TokenBudget: 1000})
	plan, err := opt.Optimize(work.Item{Description: "anything at all goes here"})
	require.NoError(t, err)
	assert.Empty(t, plan.Skills)
	assert.LessOrEqual(t, plan.Allocation.Total(), 1000)
}

func TestOptimizer_AgentSurface(t *testing.T) {
	opt := optimizer.New(optimizer.Config{})
	ctx := context.Background()

	assert.Equal(t, agent.RoleOptimizer, opt.Role())
	require.NoError(t, opt.StartSession(ctx))
	require.NoError(t, opt.StopSession(ctx))
	require.NoError(t, opt.StopSession(ctx))

	result, err := opt.Execute(ctx, work.Item{Description: "route this work item through the optimizer"})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestOptimize_InvalidFractionsFallBack(t *testing.T) {
	opt := optimizer.New(optimizer.Config{
		TokenBudget: 1000,
		Fractions:   skills.Fractions{Critical: 0.9, Skills: 0.9, Project: 0.9, General: 0.9},
	})
	plan, err := opt.Optimize(work.Item{Description: "allocate this budget properly please"})
	require.NoError(t, err)
	assert.LessOrEqual(t, plan.Allocation.Total(), 1000)
	assert.Equal(t, 400, plan.Allocation.Critical)
}
