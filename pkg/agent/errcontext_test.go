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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, err error) ErrorContext {
	t.Helper()
	return NewErrorContext("TransientLlmError", err,
		"w1", "implementation", "build the parser", "exec-1", "executing", true)
}

func TestNewErrorContext_MatchesTroubleshootingRules(t *testing.T) {
	ec := newContext(t, errors.New("connection refused: network unreachable"))
	require.NotEmpty(t, ec.TroubleshootingHints)
	assert.Contains(t, ec.TroubleshootingHints[0], "unreachable")
	require.NotEmpty(t, ec.RecoverySuggestions)

	ec = newContext(t, errors.New("provider reported rate limit exceeded"))
	require.NotEmpty(t, ec.TroubleshootingHints)
	assert.Contains(t, strings.Join(ec.RecoverySuggestions, " "), "back off")
}

// A rule only fires when every one of its substrings is present: "api"
// alone must not trigger the api-key rule.
func TestNewErrorContext_RulesRequireAllSubstrings(t *testing.T) {
	ec := newContext(t, errors.New("api returned http 500"))
	for _, hint := range ec.TroubleshootingHints {
		assert.NotContains(t, hint, "API key")
	}

	ec = newContext(t, errors.New("invalid api key provided"))
	found := false
	for _, hint := range ec.TroubleshootingHints {
		if strings.Contains(hint, "API key") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNewErrorContext_NoRuleMatch(t *testing.T) {
	ec := newContext(t, errors.New("something entirely novel"))
	assert.Empty(t, ec.TroubleshootingHints)
	assert.Empty(t, ec.RecoverySuggestions)
	assert.Equal(t, "something entirely novel", ec.ErrorMessage)
}

func TestFormat_CarriesFullContext(t *testing.T) {
	ec := newContext(t, errors.New("timeout waiting for response"))
	full := ec.Format()

	assert.Contains(t, full, "TransientLlmError")
	assert.Contains(t, full, "id=w1")
	assert.Contains(t, full, "phase=implementation")
	assert.Contains(t, full, "build the parser")
	assert.Contains(t, full, "id=exec-1")
	assert.Contains(t, full, "session_active=true")
	assert.Contains(t, full, "troubleshooting:")
}

func TestFormat_TruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("x", 300)
	ec := NewErrorContext("ToolError", errors.New("boom"), "w2", "testing", long, "exec-2", "executing", false)
	assert.Contains(t, ec.Format(), "...")
	assert.NotContains(t, ec.Format(), long)
}

// The compressed form caps hints at 3 and recoveries at 2.
func TestCompressed_CapsHintsAndRecoveries(t *testing.T) {
	ec := newContext(t, errors.New("timeout on connection: network rate limit, api key rejected"))
	ec.TroubleshootingHints = []string{"h1", "h2", "h3", "h4", "h5"}
	ec.RecoverySuggestions = []string{"r1", "r2", "r3"}

	out := ec.Compressed()
	assert.Contains(t, out, "h3")
	assert.NotContains(t, out, "h4")
	assert.Contains(t, out, "r2")
	assert.NotContains(t, out, "r3")
	assert.Contains(t, out, "work_item=w1")
}
