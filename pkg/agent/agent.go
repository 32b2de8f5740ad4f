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

// Package agent implements the four cooperating role-agents:
// ExecutorAgent, ReviewerAgent, OrchestratorAgent, and (in pkg/optimizer)
// the Optimizer, all sharing the capability set {start_session,
// stop_session, execute} and routed by role tag at the Engine.
package agent

import (
	"context"

	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// Role names a concrete agent variant, used for tagged dispatch at the
// Engine rather than ad-hoc type introspection.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleOptimizer    Role = "optimizer"
	RoleReviewer     Role = "reviewer"
	RoleExecutor     Role = "executor"
)

// Agent is the capability set every role-agent implements.
type Agent interface {
	// Role reports which of the four concrete variants this is.
	Role() Role

	// StartSession establishes whatever session state the agent needs
	// (e.g. resolving an LLM credential) before Execute may be called.
	// Idempotent is not required; StopSession is.
	StartSession(ctx context.Context) error

	// StopSession tears down session state. Idempotent: calling it after
	// any prior state (never started, already stopped) is a no-op.
	StopSession(ctx context.Context) error

	// Execute runs one WorkItem to completion, returning its WorkResult.
	Execute(ctx context.Context, item work.Item) (work.Result, error)
}
