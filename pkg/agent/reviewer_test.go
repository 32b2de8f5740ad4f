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

package agent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/agent"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports/fake"
)

func newReviewer(llm *fake.LLM) *agent.Reviewer {
	return agent.NewReviewer(agent.ReviewerConfig{AgentID: "rev-test"}, llm, fake.NewMemory())
}

func TestReview_CleanArtifactPasses(t *testing.T) {
	r := newReviewer(&fake.LLM{})
	result := r.Review(context.Background(), agent.Artifact{
		Content:     "package config\n\nfunc Parse(data []byte) (Config, error) { ... }",
		Intent:      "implement a configuration parser",
		TestsPassed: true,
	})

	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Empty(t, result.Issues)
	require.Len(t, result.GateResults, 8)
	for gate, passed := range result.GateResults {
		assert.True(t, passed, "gate %s", gate)
	}
}

// An artifact carrying an anti-pattern marker fails no_antipatterns (and
// the completeness pillar, which scans the same list); confidence is the
// passing-gate fraction.
func TestReview_AntipatternMarkerFails(t *testing.T) {
	r := newReviewer(&fake.LLM{})
	result := r.Review(context.Background(), agent.Artifact{
		Content:     "func Parse() {} // TODO: handle errors",
		Intent:      "implement a configuration parser",
		TestsPassed: true,
	})

	assert.False(t, result.Passed)
	assert.False(t, result.GateResults[agent.GateNoAntipatterns])
	assert.NotEmpty(t, result.Issues)
	assert.NotEmpty(t, result.Recommendations)
	assert.InDelta(t, 6.0/8.0, result.Confidence, 1e-9)
}

func TestReview_FailingTestsFailGate(t *testing.T) {
	r := newReviewer(&fake.LLM{})
	result := r.Review(context.Background(), agent.Artifact{
		Content:     "clean implementation",
		TestsPassed: false,
	})

	assert.False(t, result.Passed)
	assert.False(t, result.GateResults[agent.GateTestsPassing])
	assert.InDelta(t, 7.0/8.0, result.Confidence, 1e-9)
}

// The no_todos legacy gate name resolves to no_antipatterns when named in
// RequiredGates.
func TestReview_LegacyGateAlias(t *testing.T) {
	r := agent.NewReviewer(agent.ReviewerConfig{
		RequiredGates: []agent.QualityGate{"no_todos"},
	}, &fake.LLM{}, nil)

	dirty := r.Review(context.Background(), agent.Artifact{Content: "x // FIXME", TestsPassed: true})
	assert.False(t, dirty.Passed)

	clean := r.Review(context.Background(), agent.Artifact{Content: "x", TestsPassed: true})
	assert.True(t, clean.Passed)
}

func TestReview_LenientModePassesOnNoIssues(t *testing.T) {
	r := agent.NewReviewer(agent.ReviewerConfig{Lenient: true}, &fake.LLM{}, nil)
	result := r.Review(context.Background(), agent.Artifact{Content: "fine", TestsPassed: true})
	assert.True(t, result.Passed)
}

// An explicit LLM FAIL verdict is honored on every gate the fallback
// has no signal for: both pillars and the documentation/constraints
// gates can fail through the LLM path.
func TestReview_LLMVerdictFailsJudgmentGates(t *testing.T) {
	llm := &fake.LLM{Responses: []ports.Response{{
		Content: []ports.Block{{Type: ports.BlockText, Text: "correctness: FAIL - off-by-one in the retry loop\n" +
			"principled_implementation: FAIL - one function does everything\n" +
			"documentation_complete: FAIL - exported functions undocumented\n" +
			"constraints_maintained: FAIL - writes outside the sandbox\n" +
			"intent_satisfied: PASS"}},
		StopReason: ports.StopEndTurn,
	}}}
	r := newReviewer(llm)

	result := r.Review(context.Background(), agent.Artifact{
		Content:     "func doEverything() { ... }",
		Intent:      "implement a configuration parser",
		TestsPassed: true,
	})

	assert.False(t, result.Passed)
	assert.False(t, result.GateResults[agent.GateCorrectness])
	assert.False(t, result.GateResults[agent.GatePrincipledImplementation])
	assert.False(t, result.GateResults[agent.GateDocumentationComplete])
	assert.False(t, result.GateResults[agent.GateConstraintsMaintained])
	assert.True(t, result.GateResults[agent.GateIntentSatisfied])
	assert.InDelta(t, 4.0/8.0, result.Confidence, 1e-9)
	assert.Contains(t, result.Issues[0], "undocumented")

	// The review itself went to the LLM, with every gate named in the
	// prompt.
	require.Len(t, llm.Calls, 1)
	prompt := llm.Calls[0].Messages[0].Content[0].Text
	for _, gate := range agent.AllGates {
		assert.Contains(t, prompt, string(gate))
	}
}

// An explicit LLM PASS verdict overrides the fallback heuristic: the
// heuristic only decides gates the LLM left ambiguous.
func TestReview_LLMPassOverridesFallback(t *testing.T) {
	var lines []string
	for _, gate := range agent.AllGates {
		lines = append(lines, string(gate)+": PASS")
	}
	llm := &fake.LLM{Responses: []ports.Response{{
		Content:    []ports.Block{{Type: ports.BlockText, Text: strings.Join(lines, "\n")}},
		StopReason: ports.StopEndTurn,
	}}}
	r := newReviewer(llm)

	result := r.Review(context.Background(), agent.Artifact{
		Content:     "x // TODO: the reviewer judged this acceptable",
		TestsPassed: true,
	})
	assert.True(t, result.Passed)
	assert.True(t, result.GateResults[agent.GateNoAntipatterns])
}

// An ambiguous LLM response (no per-gate verdict lines) leaves every
// gate to the deterministic fallback.
func TestReview_AmbiguousResponseFallsBack(t *testing.T) {
	llm := &fake.LLM{Responses: []ports.Response{{
		Content:    []ports.Block{{Type: ports.BlockText, Text: "this all seems broadly reasonable to me"}},
		StopReason: ports.StopEndTurn,
	}}}
	r := newReviewer(llm)

	result := r.Review(context.Background(), agent.Artifact{
		Content:     "func Parse() {} // TODO: handle errors",
		TestsPassed: true,
	})
	assert.False(t, result.Passed)
	assert.False(t, result.GateResults[agent.GateNoAntipatterns])
}

// An LLM transport error degrades to fallback-only review rather than
// failing the call.
func TestReview_LLMErrorFallsBack(t *testing.T) {
	llm := &fake.LLM{Err: ports.ErrTransport}
	r := newReviewer(llm)

	result := r.Review(context.Background(), agent.Artifact{
		Content:     "clean implementation",
		Intent:      "implement a parser",
		TestsPassed: true,
	})
	assert.True(t, result.Passed)
}

// The empty-artifact fallback on intent_satisfied: stated intent with no
// produced content cannot pass review.
func TestReview_EmptyArtifactFailsIntent(t *testing.T) {
	r := newReviewer(&fake.LLM{})
	result := r.Review(context.Background(), agent.Artifact{
		Content:     "   ",
		Intent:      "implement a parser",
		TestsPassed: true,
	})
	assert.False(t, result.Passed)
	assert.False(t, result.GateResults[agent.GateIntentSatisfied])
}

func TestExtractRequirements_SplitsLines(t *testing.T) {
	llm := &fake.LLM{Responses: []ports.Response{{
		Content: []ports.Block{{Type: ports.BlockText,
			Text: "- parse yaml input\n\n- reject unknown fields\n- report line numbers on error\n"}},
		StopReason: ports.StopEndTurn,
	}}}
	r := newReviewer(llm)

	reqs, err := r.ExtractRequirementsFromIntent(context.Background(), "build a strict yaml config loader", "")
	require.NoError(t, err)
	assert.Len(t, reqs, 3)
}

func TestGenerateImprovementGuidance(t *testing.T) {
	llm := &fake.LLM{Responses: []ports.Response{{
		Content:    []ports.Block{{Type: ports.BlockText, Text: "remove the TODO marker and add error handling"}},
		StopReason: ports.StopEndTurn,
	}}}
	r := newReviewer(llm)

	guidance, err := r.GenerateImprovementGuidance(context.Background(),
		[]agent.QualityGate{agent.GateNoAntipatterns},
		[]string{"found anti-pattern marker TODO"},
		"implement a parser", nil)
	require.NoError(t, err)
	assert.Contains(t, guidance, "remove the TODO marker")

	// The failed gate names made it into the prompt.
	require.Len(t, llm.Calls, 1)
	prompt := llm.Calls[0].Messages[0].Content[0].Text
	assert.Contains(t, prompt, "no_antipatterns")
}

func TestSemanticChecks_PassOnPassVerdict(t *testing.T) {
	llm := &fake.LLM{Responses: []ports.Response{{
		Content:    []ports.Block{{Type: ports.BlockText, Text: "PASS: the implementation satisfies the intent"}},
		StopReason: ports.StopEndTurn,
	}}}
	r := newReviewer(llm)

	pass, issues, err := r.SemanticIntentCheck(context.Background(), "parse configs", "func Parse() {}", nil)
	require.NoError(t, err)
	assert.True(t, pass)
	assert.NotEmpty(t, issues)
}
