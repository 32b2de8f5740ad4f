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

// Orchestrator is the OrchestratorAgent: it builds a WorkGraph from a
// plan, drives agents through the four workflow phases, and provides the
// preservation checkpoint callback consumed by the shared
// ContextMonitor.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemosyne-project/mnemosyne/pkg/coordinator"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
	"github.com/mnemosyne-project/mnemosyne/pkg/workgraph"
)

// WorkflowPhase is the orchestrator's own observable phase, distinct
// from a WorkItem's Phase field.
type WorkflowPhase string

const (
	WorkflowPlanning   WorkflowPhase = "planning"
	WorkflowExecuting  WorkflowPhase = "executing"
	WorkflowMonitoring WorkflowPhase = "monitoring"
	WorkflowCompleted  WorkflowPhase = "completed"
)

// OrchestratorCoordinator is the subset of *coordinator.Coordinator the
// OrchestratorAgent reads and writes.
type OrchestratorCoordinator interface {
	RegisterAgent(id string)
	UpdateAgentState(id string, state coordinator.AgentState)
	GetAllAgentStates() map[string]coordinator.AgentState
	GetContextUtilization() float64
	SetMetric(name string, value float64)
}

// OrchestratorConfig configures one OrchestratorAgent.
type OrchestratorConfig struct {
	AgentID           string
	MaxParallelAgents int    // default 4
	Namespace         string // default "project:agent-orchestration"
}

func (c *OrchestratorConfig) setDefaults() {
	if c.AgentID == "" {
		c.AgentID = "orchestrator-" + uuid.NewString()
	}
	if c.MaxParallelAgents <= 0 {
		c.MaxParallelAgents = 4
	}
	if c.Namespace == "" {
		c.Namespace = "project:agent-orchestration"
	}
}

// checkpointSnapshot is what Orchestrator.Checkpoint writes to the
// MemoryPort: the active agent map, the work graph being executed (task
// ids, dependency edges, statuses), and the utilization reading that
// triggered it.
type checkpointSnapshot struct {
	ActiveAgents map[string]coordinator.AgentState `json:"active_agents"`
	WorkGraph    []taskSnapshot                    `json:"work_graph"`
	Utilization  float64                           `json:"utilization"`
	Timestamp    time.Time                         `json:"timestamp"`
}

// taskSnapshot is one work-graph task as persisted in a checkpoint.
type taskSnapshot struct {
	ID        string   `json:"id"`
	DependsOn []string `json:"depends_on,omitempty"`
	Status    string   `json:"status"`
}

// Orchestrator is the OrchestratorAgent.
type Orchestrator struct {
	cfg      OrchestratorConfig
	coord    OrchestratorCoordinator
	mem      ports.MemoryPort
	executor *workgraph.Executor

	mu              sync.Mutex
	phase           WorkflowPhase
	activeAgents    map[string]bool
	currentGraph    *workgraph.Graph
	checkpointCount int
}

var _ Agent = (*Orchestrator)(nil)

// NewOrchestrator creates an OrchestratorAgent. executor is the shared
// ParallelExecutor it drives graph execution through.
func NewOrchestrator(cfg OrchestratorConfig, coord OrchestratorCoordinator, mem ports.MemoryPort, executor *workgraph.Executor) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:          cfg,
		coord:        coord,
		mem:          mem,
		executor:     executor,
		phase:        WorkflowPlanning,
		activeAgents: make(map[string]bool),
	}
}

// Role implements Agent.
func (o *Orchestrator) Role() Role { return RoleOrchestrator }

// StartSession implements Agent; the Orchestrator has no credential of
// its own.
func (o *Orchestrator) StartSession(ctx context.Context) error { return nil }

// StopSession is idempotent.
func (o *Orchestrator) StopSession(ctx context.Context) error { return nil }

// Execute treats item as a single-task plan and runs it through
// CoordinateWorkflow with a no-op executor closure, to satisfy the
// shared Agent interface.
func (o *Orchestrator) Execute(ctx context.Context, item work.Item) (work.Result, error) {
	plan := work.Plan{Description: item.Description, Phase: item.Phase, Tasks: []work.Item{item}}
	stats, err := o.CoordinateWorkflow(ctx, plan, nil)
	if err != nil {
		return work.Result{Success: false, Error: err.Error()}, nil
	}
	return work.Result{Success: stats.Failed == 0}, nil
}

// CoordinateWorkflow builds a WorkGraph from plan.Tasks (rejecting
// cycles), registers each task's agent with the Coordinator, drives
// execution through the ParallelExecutor (whose MaxConcurrent already
// enforces MaxParallelAgents), then marks every agent complete and
// clears the active set. runItem executes one task's WorkItem; if nil,
// every task is a no-op.
func (o *Orchestrator) CoordinateWorkflow(ctx context.Context, plan work.Plan, runItem func(context.Context, work.Item) (work.Result, error)) (workgraph.Stats, error) {
	o.setPhase(WorkflowPlanning)

	graph := workgraph.NewGraph()
	for _, item := range plan.Tasks {
		item := item
		deps := plan.DependsOn[item.ID]
		var run workgraph.ExecutorFunc
		if runItem != nil {
			run = func(ctx context.Context) (work.Result, error) { return runItem(ctx, item) }
		}
		graph.AddTask(item.ID, deps, run)
	}

	if err := graph.Validate(); err != nil {
		return workgraph.Stats{}, err
	}

	o.mu.Lock()
	o.currentGraph = graph
	for _, item := range plan.Tasks {
		agentID := "task-" + item.ID
		o.activeAgents[agentID] = true
		o.coord.RegisterAgent(agentID)
	}
	o.mu.Unlock()

	o.setPhase(WorkflowExecuting)
	stats, err := o.executor.Execute(ctx, graph)

	o.setPhase(WorkflowCompleted)
	o.mu.Lock()
	for agentID := range o.activeAgents {
		o.coord.UpdateAgentState(agentID, coordinator.StateComplete)
	}
	o.activeAgents = make(map[string]bool)
	o.mu.Unlock()

	return stats, err
}

func (o *Orchestrator) setPhase(p WorkflowPhase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Phase returns the orchestrator's current workflow phase.
func (o *Orchestrator) Phase() WorkflowPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Checkpoint is installed as the shared ContextMonitor's preservation
// callback: on fire, it snapshots the active agent map, the work graph
// being executed, and the current utilization, and writes it as a
// memory under Namespace with importance 10, incrementing
// checkpoint_count.
func (o *Orchestrator) Checkpoint(utilization float64) {
	o.mu.Lock()
	snapshot := checkpointSnapshot{
		ActiveAgents: o.coord.GetAllAgentStates(),
		WorkGraph:    graphSnapshot(o.currentGraph),
		Utilization:  utilization,
		Timestamp:    time.Now().UTC(),
	}
	o.checkpointCount++
	count := o.checkpointCount
	o.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if o.mem != nil {
		_, _ = o.mem.Store(context.Background(), ports.StoreRequest{
			Content:    string(data),
			Namespace:  o.cfg.Namespace,
			Importance: 10,
			Summary:    fmt.Sprintf("checkpoint #%d at utilization %.2f", count, utilization),
			Tags:       []string{"checkpoint"},
		})
	}
	if o.coord != nil {
		o.coord.SetMetric("checkpoint_count", float64(count))
	}
}

// graphSnapshot renders g's tasks into their serializable checkpoint
// form. A nil graph (no workflow coordinated yet) yields nil.
func graphSnapshot(g *workgraph.Graph) []taskSnapshot {
	if g == nil {
		return nil
	}
	tasks := g.Tasks()
	out := make([]taskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskSnapshot{
			ID:        t.ID,
			DependsOn: t.DependsOn,
			Status:    string(t.Status()),
		})
	}
	return out
}

// CheckpointCount returns the number of checkpoints written so far.
func (o *Orchestrator) CheckpointCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkpointCount
}
