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

// Package errs declares the error taxonomy as typed errors with errors.Is/As
// support, each carrying structured detail alongside the message.
// ValidationError, StateError, DeadlockError and TransientLlmError have a
// Kind() method and match a sentinel through errors.Is; ToolError has
// neither.
package errs

import "errors"

// Sentinels usable with errors.Is against any error of the matching kind.
var (
	ErrValidation = errors.New("validation error")
	ErrState      = errors.New("state error")
	ErrDeadlock   = errors.New("deadlock error")
	ErrTransient  = errors.New("transient llm error")
)

// ValidationError reports a bad work item, unknown phase, cyclic work
// graph, or missing required field. Not retried.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string { return "validation: " + e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }
func (e *ValidationError) Kind() string  { return "validation_error" }

// StateError reports a session not active, an agent in the wrong state, or
// a coordinator contradiction.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return "state: " + e.Message }
func (e *StateError) Unwrap() error { return ErrState }
func (e *StateError) Kind() string  { return "state_error" }

// DeadlockError reports a WorkGraph the ParallelExecutor cannot make
// progress on: no running tasks, no ready tasks, but not all terminal.
type DeadlockError struct {
	Blocked []string
}

func (e *DeadlockError) Error() string {
	msg := "deadlock: scheduler cannot make progress, blocked tasks: "
	for i, id := range e.Blocked {
		if i > 0 {
			msg += ", "
		}
		msg += id
	}
	return msg
}
func (e *DeadlockError) Unwrap() error { return ErrDeadlock }
func (e *DeadlockError) Kind() string  { return "deadlock_error" }

// TransientLlmError reports a rate-limit, timeout, or network failure from
// the LlmPort. Counts as a CircuitBreaker failure.
type TransientLlmError struct {
	Message string
	Cause   error
}

func (e *TransientLlmError) Error() string { return "transient llm error: " + e.Message }
func (e *TransientLlmError) Unwrap() error { return e.Cause }
func (e *TransientLlmError) Kind() string  { return "transient_llm_error" }
func (e *TransientLlmError) Is(target error) bool {
	return target == ErrTransient
}

// ToolError reports a filesystem miss, non-zero exit, or subprocess
// timeout from one of the ExecutorAgent's fixed tools. It is returned
// inside the tool-result block, not raised; the LLM sees it and may
// recover within the same tool-use loop.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string { return "tool " + e.Tool + ": " + e.Message }
