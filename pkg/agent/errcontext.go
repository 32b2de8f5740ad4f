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

package agent

import (
	"fmt"
	"os"
	"strings"
)

// ErrorContext is a structured error report: work item details, agent
// state, environment diagnostics, troubleshooting hints and recovery
// suggestions, gathered into one object so a failure carries enough
// context to diagnose without re-running the failing step.
type ErrorContext struct {
	ErrorType             string
	ErrorMessage          string
	WorkItemID            string
	WorkItemPhase         string
	WorkItemDescription   string
	AgentID               string
	AgentState            string
	SessionActive         bool
	TroubleshootingHints  []string
	RecoverySuggestions   []string
	EnvironmentInfo       map[string]string
}

// troubleshootingRules keys substring matches in an error message to a
// curated list of hints/recovery pairs they imply.
var troubleshootingRules = []struct {
	substrings []string
	hints      []string
	recovery   []string
}{
	{
		substrings: []string{"api", "key"},
		hints:      []string{"API key may be missing or invalid"},
		recovery:   []string{"set ANTHROPIC_API_KEY in the environment or .env file"},
	},
	{
		substrings: []string{"module", "import"},
		hints:      []string{"a required dependency may be missing"},
		recovery:   []string{"verify go.mod / go.sum is in sync with the vendored module set"},
	},
	{
		substrings: []string{"connection", "network"},
		hints:      []string{"the LLM or memory service may be unreachable"},
		recovery:   []string{"check network connectivity and service health"},
	},
	{
		substrings: []string{"timeout"},
		hints:      []string{"the call exceeded its deadline"},
		recovery:   []string{"retry with a longer timeout, or check for a stalled downstream"},
	},
	{
		substrings: []string{"rate limit"},
		hints:      []string{"the LLM provider is throttling requests"},
		recovery:   []string{"back off and retry after the provider's reported delay"},
	},
}

// NewErrorContext builds an ErrorContext from the given error and the
// fields the caller has available, populating troubleshooting hints and
// recovery suggestions by matching err's message against
// troubleshootingRules.
func NewErrorContext(errType string, err error, workItemID, phase, description, agentID, agentState string, sessionActive bool) ErrorContext {
	msg := err.Error()
	lower := strings.ToLower(msg)

	var hints, recovery []string
	for _, rule := range troubleshootingRules {
		matched := true
		for _, s := range rule.substrings {
			if !strings.Contains(lower, s) {
				matched = false
				break
			}
		}
		if matched {
			hints = append(hints, rule.hints...)
			recovery = append(recovery, rule.recovery...)
		}
	}

	return ErrorContext{
		ErrorType:            errType,
		ErrorMessage:         msg,
		WorkItemID:           workItemID,
		WorkItemPhase:        phase,
		WorkItemDescription:  description,
		AgentID:              agentID,
		AgentState:           agentState,
		SessionActive:        sessionActive,
		TroubleshootingHints: hints,
		RecoverySuggestions:  recovery,
		EnvironmentInfo:      environmentInfo(),
	}
}

func environmentInfo() map[string]string {
	info := map[string]string{
		"go_runtime": "go",
	}
	if _, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
		info["api_key"] = "configured"
	} else {
		info["api_key"] = "not configured"
	}
	return info
}

// Format renders the full context as a human-readable, boxed report, for
// debug-level logging.
func (e ErrorContext) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s: %s ===\n", e.ErrorType, e.ErrorMessage)
	if e.WorkItemID != "" {
		fmt.Fprintf(&b, "work item: id=%s phase=%s\n", e.WorkItemID, e.WorkItemPhase)
		if e.WorkItemDescription != "" {
			desc := e.WorkItemDescription
			if len(desc) > 100 {
				desc = desc[:100] + "..."
			}
			fmt.Fprintf(&b, "  description: %s\n", desc)
		}
	}
	if e.AgentID != "" {
		fmt.Fprintf(&b, "agent: id=%s state=%s session_active=%v\n", e.AgentID, e.AgentState, e.SessionActive)
	}
	for k, v := range e.EnvironmentInfo {
		fmt.Fprintf(&b, "env: %s=%s\n", k, v)
	}
	for _, h := range e.TroubleshootingHints {
		fmt.Fprintf(&b, "troubleshooting: %s\n", h)
	}
	for _, r := range e.RecoverySuggestions {
		fmt.Fprintf(&b, "recovery: %s\n", r)
	}
	return b.String()
}

// Compressed renders an abbreviated form (<=3 hints, <=2 recoveries) for
// return to callers.
func (e ErrorContext) Compressed() string {
	hints := e.TroubleshootingHints
	if len(hints) > 3 {
		hints = hints[:3]
	}
	recovery := e.RecoverySuggestions
	if len(recovery) > 2 {
		recovery = recovery[:2]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.ErrorType, e.ErrorMessage)
	if e.WorkItemID != "" {
		fmt.Fprintf(&b, " (work_item=%s phase=%s)", e.WorkItemID, e.WorkItemPhase)
	}
	for _, h := range hints {
		fmt.Fprintf(&b, "\n  hint: %s", h)
	}
	for _, r := range recovery {
		fmt.Fprintf(&b, "\n  recovery: %s", r)
	}
	return b.String()
}
