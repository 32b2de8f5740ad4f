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

package work_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

func TestItemWarnings(t *testing.T) {
	clean := work.Item{ID: "a", Description: "do the thing", Phase: work.PhasePlanning, Priority: 5}
	assert.Empty(t, clean.Warnings())

	attemptNoFeedback := work.Item{ID: "a", ReviewAttempt: 2}
	warnings := attemptNoFeedback.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "review_feedback")

	hot := work.Item{ID: "a", Priority: 99}
	warnings = hot.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "priority")
}

func TestCircuitOpenResult(t *testing.T) {
	r := work.CircuitOpenResult(12.5)
	assert.False(t, r.Success)
	assert.Equal(t, "circuit_open", r.Status)
	assert.Equal(t, 12.5, r.RetryAfter)
	assert.Empty(t, r.Error, "circuit_open is a non-error result")
}

func TestResultJSONShape(t *testing.T) {
	data, err := json.Marshal(work.CircuitOpenResult(3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"status":"circuit_open","retry_after":3}`, string(data))
}
