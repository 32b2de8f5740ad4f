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

// Package work holds the shared WorkItem/WorkResult/WorkPlan data model
// consumed by pkg/workgraph, pkg/agent and pkg/engine.
package work

import "github.com/mnemosyne-project/mnemosyne/pkg/ports"

// Phase is one of the eight phases a WorkItem can be in.
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseImplementation Phase = "implementation"
	PhaseReview        Phase = "review"
	PhaseTesting       Phase = "testing"
	PhaseDocumentation Phase = "documentation"
	PhaseDeployment    Phase = "deployment"
	PhaseOptimization  Phase = "optimization"
	PhaseAnalysis      Phase = "analysis"
)

// ValidPhases enumerates the full set, for validation.
var ValidPhases = map[Phase]bool{
	PhasePlanning: true, PhaseImplementation: true, PhaseReview: true,
	PhaseTesting: true, PhaseDocumentation: true, PhaseDeployment: true,
	PhaseOptimization: true, PhaseAnalysis: true,
}

// Item is a single unit of work handed to one agent; it carries review
// history across retries. Mutated only between agent handoffs, by
// appending to ReviewFeedback and incrementing ReviewAttempt.
type Item struct {
	ID                    string   `json:"id" yaml:"id"`
	Description           string   `json:"description" yaml:"description"`
	Phase                 Phase    `json:"phase" yaml:"phase"`
	Priority              int      `json:"priority" yaml:"priority"`
	ConsolidatedContextID string   `json:"consolidated_context_id,omitempty" yaml:"consolidated_context_id,omitempty"`
	ReviewFeedback        []string `json:"review_feedback,omitempty" yaml:"review_feedback,omitempty"`
	ReviewAttempt         int      `json:"review_attempt" yaml:"review_attempt"`
}

// Warnings returns non-fatal invariant violations on i: a non-zero
// ReviewAttempt with no ReviewFeedback, or a Priority above the
// conventional 0-10 range.
func (i Item) Warnings() []string {
	var warnings []string
	if i.ReviewAttempt > 0 && len(i.ReviewFeedback) == 0 {
		warnings = append(warnings, "review_attempt > 0 but review_feedback is empty")
	}
	if i.Priority > 10 {
		warnings = append(warnings, "priority exceeds the conventional 0-10 range")
	}
	return warnings
}

// Result is the outcome of executing one Item.
type Result struct {
	Success   bool                 `json:"success"`
	Data      string               `json:"data,omitempty"`
	MemoryIDs []ports.MemoryHandle `json:"memory_ids,omitempty"`
	Error     string               `json:"error,omitempty"`

	// Status and RetryAfter are set on a circuit_open result: a non-error
	// Result with Status == "circuit_open" and a RetryAfter in seconds,
	// which the caller is expected to re-queue after.
	Status     string  `json:"status,omitempty"`
	RetryAfter float64 `json:"retry_after,omitempty"`

	// ReviewAttempts is the number of Reviewer passes the Engine's review
	// loop took before returning. Zero means the item never went through
	// the Engine's review loop at all.
	ReviewAttempts int `json:"review_attempts,omitempty"`
}

// CircuitOpenResult builds the non-error WorkResult the ExecutorAgent
// returns when its CircuitBreaker rejects a call.
func CircuitOpenResult(retryAfter float64) Result {
	return Result{Success: false, Status: "circuit_open", RetryAfter: retryAfter}
}

// Plan is the input to Engine.ExecuteWorkPlan / OrchestratorAgent's
// coordinate_workflow: a description, phase, declared success criteria and
// tech stack, and the set of tasks with their dependency edges.
type Plan struct {
	Description      string            `json:"description" yaml:"description"`
	Phase            Phase             `json:"phase" yaml:"phase"`
	SuccessCriteria  []string          `json:"success_criteria" yaml:"success_criteria"`
	TechStack        []string          `json:"tech_stack" yaml:"tech_stack"`
	Tasks            []Item            `json:"tasks" yaml:"tasks"`
	DependsOn        map[string][]string `json:"depends_on" yaml:"depends_on"`
}
