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

// Package engine is the composition root: it wires the Coordinator,
// CircuitBreaker, ContextMonitor, ParallelExecutor, and the four
// role-agents, then drives one work plan end-to-end:
// Optimizer.Optimize -> ExecutorAgent.ExecuteWorkPlan ->
// ReviewerAgent.Review -> (loop on failure, bounded) ->
// OrchestratorAgent.CoordinateWorkflow.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnemosyne-project/mnemosyne/pkg/agent"
	"github.com/mnemosyne-project/mnemosyne/pkg/breaker"
	"github.com/mnemosyne-project/mnemosyne/pkg/config"
	"github.com/mnemosyne-project/mnemosyne/pkg/contextmonitor"
	"github.com/mnemosyne-project/mnemosyne/pkg/coordinator"
	"github.com/mnemosyne-project/mnemosyne/pkg/observability"
	"github.com/mnemosyne-project/mnemosyne/pkg/optimizer"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
	"github.com/mnemosyne-project/mnemosyne/pkg/workgraph"
)

// MaxReviewAttempts bounds the Engine's review-retry loop; the Engine is
// the external consumer that owns this bound since the core itself does
// not persist a work queue.
const MaxReviewAttempts = 3

// Engine is the composition root.
type Engine struct {
	cfg config.EngineConfig

	Coordinator *coordinator.Coordinator
	Breaker     *breaker.CircuitBreaker
	Monitor     *contextmonitor.Monitor
	Executor    *workgraph.Executor
	Obs         *observability.Manager

	ExecutorAgent     *agent.Executor
	ReviewerAgent     *agent.Reviewer
	OrchestratorAgent *agent.Orchestrator
	OptimizerAgent    *optimizer.Optimizer

	mu            sync.Mutex
	monitorCancel context.CancelFunc
	running       bool
}

// New wires C1-C9 from cfg and the three external ports.
func New(cfg config.EngineConfig, llm ports.LlmPort, fs ports.FsPort, mem ports.MemoryPort) *Engine {
	coord := coordinator.New()
	brk := breaker.New(cfg.Breaker)

	obs, err := observability.NewManager(cfg.Observability, coord)
	if err != nil {
		// A broken exporter never blocks engine construction; fall back to
		// the no-op recorder.
		obs = observability.NoopManager()
	}
	llm = obs.WrapLlm(llm)

	execCfg := cfg.Executor
	workExecutor := workgraph.NewExecutor(coord, execCfg)

	executorAgent := agent.NewExecutor(agent.ExecutorConfig{}, llm, fs, mem, brk, coord, func() (string, bool) {
		return "", config.HasLlmCredential()
	})
	reviewerAgent := agent.NewReviewer(agent.ReviewerConfig{}, llm, mem)
	orchestratorAgent := agent.NewOrchestrator(agent.OrchestratorConfig{
		MaxParallelAgents: execCfg.MaxConcurrent,
	}, coord, mem, workExecutor)

	optimizerAgent := optimizer.New(optimizer.Config{
		SkillRoots:  cfg.SkillRoots,
		TokenBudget: cfg.TokenBudget,
		Fractions:   cfg.BudgetFractions,
	})

	monitorCfg := cfg.ContextMonitor.ToContextMonitorConfig()
	monitorCfg.Preservation = func(m contextmonitor.Metrics) {
		orchestratorAgent.Checkpoint(m.Utilization)
		obs.RecordCheckpoint(context.Background())
	}
	monitor := contextmonitor.New(coord, monitorCfg)

	return &Engine{
		cfg:               cfg,
		Coordinator:       coord,
		Breaker:           brk,
		Monitor:           monitor,
		Executor:          workExecutor,
		Obs:               obs,
		ExecutorAgent:     executorAgent,
		ReviewerAgent:     reviewerAgent,
		OrchestratorAgent: orchestratorAgent,
		OptimizerAgent:    optimizerAgent,
	}
}

// Start starts the ContextMonitor's polling loop in the background.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	e.monitorCancel = cancel
	e.running = true
	go e.Monitor.Run(monitorCtx)
}

// Stop stops the ContextMonitor and drains any in-flight agent sessions.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.monitorCancel()
	e.running = false
	_ = e.ExecutorAgent.StopSession(ctx)
	_ = e.ReviewerAgent.StopSession(ctx)
	_ = e.OrchestratorAgent.StopSession(ctx)
	_ = e.OptimizerAgent.StopSession(ctx)
	_ = e.Obs.Shutdown(ctx)
}

// ExecuteWorkPlan drives plan through the full protocol: every task runs
// the Optimizer -> Executor -> Reviewer (-> retry) pipeline, and the set
// of tasks is scheduled as a dependency-aware WorkGraph by the
// Orchestrator.
func (e *Engine) ExecuteWorkPlan(ctx context.Context, plan work.Plan) (workgraph.Stats, error) {
	return e.OrchestratorAgent.CoordinateWorkflow(ctx, plan, e.runItemPipeline)
}

// runItemPipeline is the per-item Optimizer->Executor->Reviewer loop,
// retried up to MaxReviewAttempts times with consolidated guidance
// injected into ReviewFeedback on each failure.
func (e *Engine) runItemPipeline(ctx context.Context, item work.Item) (work.Result, error) {
	current := item
	itemStart := time.Now()
	succeeded := false
	defer func() {
		e.Obs.RecordWorkItem(ctx, string(item.Phase), time.Since(itemStart), succeeded)
	}()

	for attempt := 0; attempt <= MaxReviewAttempts; attempt++ {
		if _, err := e.OptimizerAgent.Optimize(current); err != nil {
			// Skill discovery failure degrades the prompt, not the work
			// item; proceed without it rather than failing the whole task.
			_ = err
		}

		plan := work.Plan{
			Description:     current.Description,
			Phase:           current.Phase,
			SuccessCriteria: []string{"work item completes without error"},
			TechStack:       []string{"go"},
		}

		result, err := e.ExecutorAgent.ExecuteWorkPlan(ctx, plan, current)
		if err != nil {
			return result, err
		}
		if !result.Success {
			return result, nil
		}

		review := e.ReviewerAgent.Review(ctx, agent.Artifact{
			Content:     result.Data,
			Intent:      current.Description,
			TestsPassed: true,
		})
		if review.Passed {
			result.ReviewAttempts = attempt + 1
			succeeded = true
			return result, nil
		}

		guidance, gErr := e.ReviewerAgent.GenerateImprovementGuidance(ctx, failedGates(review), review.Issues, current.Description, nil)
		if gErr != nil {
			guidance = "review failed: " + joinIssues(review.Issues)
		}

		current.ReviewFeedback = append(current.ReviewFeedback, guidance)
		current.ReviewAttempt++
	}

	return work.Result{
		Success: false,
		Error:   fmt.Sprintf("review did not converge after %d attempts", MaxReviewAttempts+1),
	}, nil
}

func failedGates(r agent.ReviewResult) []agent.QualityGate {
	var out []agent.QualityGate
	for gate, passed := range r.GateResults {
		if !passed {
			out = append(out, gate)
		}
	}
	return out
}

func joinIssues(issues []string) string {
	out := ""
	for i, iss := range issues {
		if i > 0 {
			out += "; "
		}
		out += iss
	}
	return out
}
