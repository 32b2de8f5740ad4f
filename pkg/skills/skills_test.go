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

package skills_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/skills"
)

func writeSkill(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

// A skill name present in both the local and a global root yields only
// the local match, tagged IsLocal.
func TestDiscover_LocalShadowsGlobal(t *testing.T) {
	local := t.TempDir()
	global := t.TempDir()

	writeSkill(t, local, "skill-rust-async.md", "rust async tokio futures concurrency local content")
	writeSkill(t, global, "skill-rust-async.md", "rust async tokio futures concurrency global content")

	idx := skills.New([]string{local, global})
	matches, err := idx.Discover([]string{"rust", "async"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.True(t, matches[0].IsLocal)
	require.Equal(t, local, matches[0].SourceDir)
}

func TestDiscover_ThresholdAndOrdering(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "skill-go-concurrency.md", "go concurrency channels goroutines")
	writeSkill(t, root, "skill-python-basics.md", "python basics syntax")
	writeSkill(t, root, "_hidden.md", "go concurrency ignored because underscore-prefixed")

	idx := skills.New([]string{root})
	idx.Threshold = 0.5
	matches, err := idx.Discover([]string{"go", "concurrency"})
	require.NoError(t, err)

	for _, m := range matches {
		require.GreaterOrEqual(t, m.RelevanceScore, idx.Threshold)
	}
	require.Len(t, matches, 1)
	require.Equal(t, "skill-go-concurrency.md", filepath.Base(matches[0].Path))
}

func TestDiscover_MaxLoadedCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeSkill(t, root, skillName(i), "go concurrency channels goroutines scheduling")
	}

	idx := skills.New([]string{root})
	idx.Threshold = 0.1
	idx.MaxLoaded = 7
	matches, err := idx.Discover([]string{"go", "concurrency"})
	require.NoError(t, err)
	require.LessOrEqual(t, len(matches), 7)

	for i := 1; i < len(matches); i++ {
		require.GreaterOrEqual(t, matches[i-1].RelevanceScore, matches[i].RelevanceScore)
	}
}

func skillName(i int) string {
	return "skill-topic-" + string(rune('a'+i)) + ".md"
}

func TestAllocate_InvariantsHold(t *testing.T) {
	cases := []struct {
		total int
		f     skills.Fractions
	}{
		{1000, skills.DefaultFractions()},
		{0, skills.DefaultFractions()},
		{500, skills.Fractions{Critical: 0.5, Skills: 0.5}},
		{777, skills.Fractions{Critical: -1, Skills: 0.5}}, // invalid -> falls back to defaults
	}

	for _, c := range cases {
		alloc := skills.Allocate(c.total, c.f)
		require.GreaterOrEqual(t, alloc.Critical, 0)
		require.GreaterOrEqual(t, alloc.Skills, 0)
		require.GreaterOrEqual(t, alloc.Project, 0)
		require.GreaterOrEqual(t, alloc.General, 0)
		require.LessOrEqual(t, alloc.Total(), c.total)
	}
}

func TestFractions_Valid(t *testing.T) {
	require.True(t, skills.DefaultFractions().Valid())
	require.False(t, skills.Fractions{Critical: -0.1, Skills: 0.5}.Valid())
	require.False(t, skills.Fractions{Critical: 0.6, Skills: 0.6}.Valid())
}
