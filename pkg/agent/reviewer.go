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

// Reviewer is the ReviewerAgent: an eight-gate quality review backed by
// an LLM verdict per gate, with a deterministic anti-pattern heuristic
// deciding any gate whose LLM verdict is missing or ambiguous.
package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// QualityGate is one of the eight named boolean predicates the Reviewer
// evaluates over an artifact.
type QualityGate string

const (
	GateIntentSatisfied        QualityGate = "intent_satisfied"
	GateTestsPassing           QualityGate = "tests_passing"
	GateDocumentationComplete  QualityGate = "documentation_complete"
	GateNoAntipatterns         QualityGate = "no_antipatterns"
	GateConstraintsMaintained  QualityGate = "constraints_maintained"
	GateCompleteness           QualityGate = "completeness"
	GateCorrectness            QualityGate = "correctness"
	GatePrincipledImplementation QualityGate = "principled_implementation"

	// gateNoTodos is a legacy synonym for GateNoAntipatterns: the
	// fallback anti-pattern heuristic is sometimes keyed under this older
	// name.
	gateNoTodos QualityGate = "no_todos"
)

// AllGates is the fixed eight-gate set the Reviewer evaluates, in
// evaluation order.
var AllGates = []QualityGate{
	GateIntentSatisfied,
	GateTestsPassing,
	GateDocumentationComplete,
	GateNoAntipatterns,
	GateConstraintsMaintained,
	GateCompleteness,
	GateCorrectness,
	GatePrincipledImplementation,
}

// normalizeGate resolves the NO_TODOS legacy alias to GateNoAntipatterns.
func normalizeGate(g QualityGate) QualityGate {
	if g == gateNoTodos {
		return GateNoAntipatterns
	}
	return g
}

// DefaultAntipatternPatterns is the default marker list the fallback
// heuristic scans artifacts for.
var DefaultAntipatternPatterns = []string{
	"TODO", "FIXME", "HACK", "XXX", "mock_", "stub_", "__placeholder__",
}

// ReviewerConfig configures one ReviewerAgent.
type ReviewerConfig struct {
	AgentID string

	// Lenient turns strict mode off: Passed is then len(issues) == 0
	// instead of all RequiredGates passing. The zero value is strict.
	Lenient bool

	RequiredGates       []QualityGate
	AntipatternPatterns []string
}

func (c *ReviewerConfig) setDefaults() {
	if c.AgentID == "" {
		c.AgentID = "reviewer-" + uuid.NewString()
	}
	if c.RequiredGates == nil {
		c.RequiredGates = AllGates
	}
	if c.AntipatternPatterns == nil {
		c.AntipatternPatterns = DefaultAntipatternPatterns
	}
}

// Artifact is the work product the Reviewer evaluates: the produced
// content plus the intent/requirements it was measured against.
type Artifact struct {
	Content      string
	Intent       string
	Requirements []string
	TestsPassed  bool
}

// ReviewResult is the outcome of one Review call.
type ReviewResult struct {
	Passed             bool
	GateResults        map[QualityGate]bool
	Issues             []string
	Recommendations    []string
	SuggestedTests     []string
	ExecutionContext   []ports.MemoryHandle
	Confidence         float64
}

// Reviewer is the ReviewerAgent.
type Reviewer struct {
	cfg ReviewerConfig
	llm ports.LlmPort
	mem ports.MemoryPort

	sessionActive bool
}

var _ Agent = (*Reviewer)(nil)

// NewReviewer creates a ReviewerAgent.
func NewReviewer(cfg ReviewerConfig, llm ports.LlmPort, mem ports.MemoryPort) *Reviewer {
	cfg.setDefaults()
	return &Reviewer{cfg: cfg, llm: llm, mem: mem}
}

// Role implements Agent.
func (r *Reviewer) Role() Role { return RoleReviewer }

// StartSession implements Agent; the Reviewer has no credential
// requirement of its own beyond the shared LlmPort.
func (r *Reviewer) StartSession(ctx context.Context) error {
	r.sessionActive = true
	return nil
}

// StopSession is idempotent.
func (r *Reviewer) StopSession(ctx context.Context) error {
	r.sessionActive = false
	return nil
}

// Execute reviews item.Description as the artifact content against the
// shape Agent.Execute requires, returning a WorkResult carrying the
// ReviewResult's pass/fail as success/error.
func (r *Reviewer) Execute(ctx context.Context, item work.Item) (work.Result, error) {
	result := r.Review(ctx, Artifact{Content: item.Description, Intent: item.Description})
	if result.Passed {
		return work.Result{Success: true}, nil
	}
	return work.Result{Success: false, Error: strings.Join(result.Issues, "; ")}, nil
}

// ExtractRequirementsFromIntent asks the LLM to decompose intent into
// specific, testable requirement statements.
func (r *Reviewer) ExtractRequirementsFromIntent(ctx context.Context, intent, extraContext string) ([]string, error) {
	prompt := "Extract specific, testable requirements from this intent:\n" + intent
	if extraContext != "" {
		prompt += "\n\nContext:\n" + extraContext
	}
	resp, err := r.llm.Chat(ctx, []ports.Message{ports.Text(ports.RoleUser, prompt)}, nil)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(concatText(resp.Content)), nil
}

// SemanticIntentCheck asks whether impl satisfies intent given memories
// for extra context.
func (r *Reviewer) SemanticIntentCheck(ctx context.Context, intent, impl string, memories []string) (bool, []string, error) {
	return r.semanticCheck(ctx, "Does this implementation satisfy the stated intent?", intent, impl, memories)
}

// SemanticCompletenessCheck asks whether impl covers every requirement.
func (r *Reviewer) SemanticCompletenessCheck(ctx context.Context, requirements []string, impl string, memories []string) (bool, []string, error) {
	return r.semanticCheck(ctx, "Does this implementation cover every requirement below?", strings.Join(requirements, "\n"), impl, memories)
}

// SemanticCorrectnessCheck asks whether impl is correct given test
// results.
func (r *Reviewer) SemanticCorrectnessCheck(ctx context.Context, impl, testResults string, memories []string) (bool, []string, error) {
	return r.semanticCheck(ctx, "Is this implementation correct given these test results?", testResults, impl, memories)
}

func (r *Reviewer) semanticCheck(ctx context.Context, instruction, reference, impl string, memories []string) (bool, []string, error) {
	prompt := instruction + "\n\nReference:\n" + reference + "\n\nImplementation:\n" + impl
	if len(memories) > 0 {
		prompt += "\n\nPrior memories:\n" + strings.Join(memories, "\n")
	}
	resp, err := r.llm.Chat(ctx, []ports.Message{ports.Text(ports.RoleUser, prompt)}, nil)
	if err != nil {
		return false, nil, err
	}
	text := concatText(resp.Content)
	pass := strings.Contains(strings.ToLower(text), "pass")
	return pass, splitNonEmptyLines(text), nil
}

// GenerateImprovementGuidance asks the LLM for consolidated guidance on
// how to fix the given failed gates and issues, to be injected into a
// re-queued WorkItem's ReviewFeedback.
func (r *Reviewer) GenerateImprovementGuidance(ctx context.Context, failedGates []QualityGate, issues []string, intent string, memories []string) (string, error) {
	var names []string
	for _, g := range failedGates {
		names = append(names, string(g))
	}
	prompt := "Generate concrete improvement guidance to fix the following failed quality gates: " +
		strings.Join(names, ", ") + "\n\nIssues:\n" + strings.Join(issues, "\n") +
		"\n\nOriginal intent:\n" + intent
	if len(memories) > 0 {
		prompt += "\n\nPrior memories:\n" + strings.Join(memories, "\n")
	}
	resp, err := r.llm.Chat(ctx, []ports.Message{ports.Text(ports.RoleUser, prompt)}, nil)
	if err != nil {
		return "", err
	}
	return concatText(resp.Content), nil
}

// Review evaluates all eight quality gates over artifact. Each gate is
// asked of the LLM in one combined call; a gate whose LLM verdict is
// missing, ambiguous, or unavailable (LLM error) is decided by the
// deterministic anti-pattern fallback instead. All RequiredGates must
// pass for Passed=true in strict mode (the default); in lenient mode
// Passed = (len(issues) == 0). Confidence is the passing-gate fraction.
func (r *Reviewer) Review(ctx context.Context, artifact Artifact) ReviewResult {
	verdicts := r.llmGateVerdicts(ctx, artifact)

	gateResults := make(map[QualityGate]bool, len(AllGates))
	var issues, recommendations, suggestedTests []string

	for _, gate := range AllGates {
		var passed bool
		var gateIssues []string
		if v, ok := verdicts[gate]; ok {
			passed = v.pass
			gateIssues = v.issues
		} else {
			passed, gateIssues = r.fallbackGateCheck(gate, artifact)
		}
		gateResults[gate] = passed
		issues = append(issues, gateIssues...)
		if !passed {
			recommendations = append(recommendations, "address gate: "+string(gate))
			if gate == GateCompleteness || gate == GateCorrectness || gate == GatePrincipledImplementation {
				suggestedTests = append(suggestedTests, "add a test covering "+string(gate))
			}
		}
	}

	requiredPassed := true
	for _, gate := range r.cfg.RequiredGates {
		if !gateResults[normalizeGate(gate)] {
			requiredPassed = false
			break
		}
	}

	passed := requiredPassed
	if r.cfg.Lenient {
		passed = len(issues) == 0
	}

	confidence := 0.0
	if len(gateResults) > 0 {
		passing := 0
		for _, ok := range gateResults {
			if ok {
				passing++
			}
		}
		confidence = float64(passing) / float64(len(gateResults))
	}

	return ReviewResult{
		Passed:           passed,
		GateResults:      gateResults,
		Issues:           issues,
		Recommendations:  recommendations,
		SuggestedTests:   suggestedTests,
		Confidence:       confidence,
	}
}

type gateVerdict struct {
	pass   bool
	issues []string
}

// llmGateVerdicts asks the LLM for a per-gate PASS/FAIL verdict in one
// call and parses lines of the form "gate_name: PASS" or
// "gate_name: FAIL - reason". Unknown gate names are skipped; a gate
// with no parseable line stays absent so the caller falls back. An LLM
// error yields an empty map (every gate falls back).
func (r *Reviewer) llmGateVerdicts(ctx context.Context, artifact Artifact) map[QualityGate]gateVerdict {
	var b strings.Builder
	b.WriteString("Review the implementation below against each quality gate. ")
	b.WriteString("Answer with one line per gate, exactly \"<gate>: PASS\" or \"<gate>: FAIL - <reason>\".\n\nGates:\n")
	for _, gate := range AllGates {
		b.WriteString("- " + string(gate) + "\n")
	}
	if artifact.Intent != "" {
		b.WriteString("\nIntent:\n" + artifact.Intent + "\n")
	}
	if len(artifact.Requirements) > 0 {
		b.WriteString("\nRequirements:\n" + strings.Join(artifact.Requirements, "\n") + "\n")
	}
	b.WriteString("\nImplementation:\n" + artifact.Content + "\n")

	resp, err := r.llm.Chat(ctx, []ports.Message{ports.Text(ports.RoleUser, b.String())}, nil)
	if err != nil {
		return nil
	}
	return parseGateVerdicts(concatText(resp.Content))
}

// parseGateVerdicts extracts per-gate verdicts from the LLM's text.
func parseGateVerdicts(text string) map[QualityGate]gateVerdict {
	known := make(map[QualityGate]bool, len(AllGates))
	for _, gate := range AllGates {
		known[gate] = true
	}

	verdicts := make(map[QualityGate]gateVerdict)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-* \t"))
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		gate := normalizeGate(QualityGate(strings.ToLower(strings.TrimSpace(name))))
		if !known[gate] {
			continue
		}

		rest = strings.TrimSpace(rest)
		upper := strings.ToUpper(rest)
		switch {
		case strings.HasPrefix(upper, "PASS"):
			verdicts[gate] = gateVerdict{pass: true}
		case strings.HasPrefix(upper, "FAIL"):
			reason := strings.TrimSpace(strings.TrimLeft(rest[4:], " -:"))
			if reason == "" {
				reason = "gate reported failing"
			}
			verdicts[gate] = gateVerdict{pass: false, issues: []string{string(gate) + ": " + reason}}
		default:
			// ambiguous verdict; leave absent so the fallback decides
		}
	}
	return verdicts
}

// fallbackGateCheck decides a gate deterministically when the LLM gave
// no usable verdict for it. Only a few gates carry real signal here; the
// rest pass by default, since an absent LLM verdict is not evidence of a
// defect.
func (r *Reviewer) fallbackGateCheck(gate QualityGate, artifact Artifact) (bool, []string) {
	switch gate {
	case GateTestsPassing:
		if !artifact.TestsPassed {
			return false, []string{"tests_passing: test suite reported failures"}
		}
		return true, nil

	case GateNoAntipatterns, GateCompleteness:
		for _, pattern := range r.cfg.AntipatternPatterns {
			if strings.Contains(artifact.Content, pattern) {
				return false, []string{"gate '" + string(gate) + "' failed: found anti-pattern marker " + pattern}
			}
		}
		return true, nil

	case GateIntentSatisfied:
		if artifact.Intent != "" && strings.TrimSpace(artifact.Content) == "" {
			return false, []string{"intent_satisfied: artifact is empty against a stated intent"}
		}
		return true, nil

	default:
		// documentation_complete, constraints_maintained, correctness,
		// principled_implementation: no deterministic signal available.
		return true, nil
	}
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
