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
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemosyne-project/mnemosyne/pkg/breaker"
	"github.com/mnemosyne-project/mnemosyne/pkg/coordinator"
	"github.com/mnemosyne-project/mnemosyne/pkg/errs"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// Phase is the ExecutorAgent's observable activity, reported to the
// Coordinator but never gating behavior.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAnalyzing Phase = "analyzing"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseCompleted Phase = "completed"
)

// ExecutorCoordinator is the subset of *coordinator.Coordinator the
// ExecutorAgent reads and writes.
type ExecutorCoordinator interface {
	GetContextUtilization() float64
	RegisterAgent(id string)
	UpdateAgentState(id string, state coordinator.AgentState)
}

// ExecutorConfig configures one ExecutorAgent: a fixed record of
// well-known fields.
type ExecutorConfig struct {
	AgentID       string
	MaxSubagents  int // default 4
	MaxIterations int // default 10
}

func (c *ExecutorConfig) setDefaults() {
	if c.AgentID == "" {
		c.AgentID = "executor-" + uuid.NewString()
	}
	if c.MaxSubagents <= 0 {
		c.MaxSubagents = 4
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
}

// itemMetrics is one work item's recorded execution stats.
type itemMetrics struct {
	phase    work.Phase
	duration time.Duration
	success  bool
	errKind  string
}

// Stats is the aggregate per-agent metrics view: success rate and
// avg/min/max duration across every item executed so far.
type Stats struct {
	Count       int
	SuccessRate float64
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Executor is the ExecutorAgent: a tool-use loop over the LLM, backed
// by a CircuitBreaker, the four fixed FsPort tools, and a MemoryPort for
// durable artifacts.
type Executor struct {
	cfg   ExecutorConfig
	llm   ports.LlmPort
	fs    ports.FsPort
	mem   ports.MemoryPort
	brk   *breaker.CircuitBreaker
	coord ExecutorCoordinator

	mu              sync.Mutex
	sessionActive   bool
	credentialFn    func() (string, bool)
	activeSubagents map[string]bool
	history         []itemMetrics
	phase           Phase
}

var _ Agent = (*Executor)(nil)

// NewExecutor creates an ExecutorAgent. credentialFn resolves the LLM
// credential (e.g. reading ANTHROPIC_API_KEY); StartSession fails if it
// reports ok=false.
func NewExecutor(cfg ExecutorConfig, llm ports.LlmPort, fs ports.FsPort, mem ports.MemoryPort, brk *breaker.CircuitBreaker, coord ExecutorCoordinator, credentialFn func() (string, bool)) *Executor {
	cfg.setDefaults()
	return &Executor{
		cfg:             cfg,
		llm:             llm,
		fs:              fs,
		mem:             mem,
		brk:             brk,
		coord:           coord,
		credentialFn:    credentialFn,
		activeSubagents: make(map[string]bool),
		phase:           PhaseIdle,
	}
}

// Role implements Agent.
func (e *Executor) Role() Role { return RoleExecutor }

// StartSession requires an LLM credential to be resolvable; otherwise
// it fails with a StateError.
func (e *Executor) StartSession(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.credentialFn != nil {
		if _, ok := e.credentialFn(); !ok {
			return &errs.StateError{Message: "no LLM credential resolvable; session not started"}
		}
	}
	e.sessionActive = true
	if e.coord != nil {
		e.coord.RegisterAgent(e.cfg.AgentID)
	}
	return nil
}

// StopSession is idempotent.
func (e *Executor) StopSession(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionActive = false
	return nil
}

func (e *Executor) sessionIsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionActive
}

func (e *Executor) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	if e.coord != nil {
		e.coord.UpdateAgentState(e.cfg.AgentID, coordinator.StateRunning)
	}
}

// Execute runs item as a single-task plan through ExecuteWorkPlan, the
// shape Agent.Execute requires.
func (e *Executor) Execute(ctx context.Context, item work.Item) (work.Result, error) {
	plan := work.Plan{
		Description:     item.Description,
		Phase:           item.Phase,
		SuccessCriteria: []string{"work item completes without error"},
		TechStack:       []string{"go"},
		Tasks:           []work.Item{item},
	}
	return e.ExecuteWorkPlan(ctx, plan, item)
}

// ExecuteWorkPlan validates the plan, checks the CircuitBreaker, then
// drives the bounded tool-use loop.
func (e *Executor) ExecuteWorkPlan(ctx context.Context, plan work.Plan, item work.Item) (work.Result, error) {
	start := time.Now()
	if !e.sessionIsActive() {
		// auto-start; an inactive session is recoverable here.
		if err := e.StartSession(ctx); err != nil {
			e.record(item.Phase, 0, false, "state_error")
			return work.Result{Success: false, Error: err.Error()}, nil
		}
	}

	e.setPhase(PhaseAnalyzing)
	validation := ValidatePlan(plan)
	if validation.NeedsClarification {
		e.record(item.Phase, time.Since(start), false, "validation_error")
		return work.Result{
			Success: false,
			Error:   "clarification required: " + joinLines(validation.Questions),
		}, nil
	}

	e.setPhase(PhasePlanning)
	if !e.brk.CanAttempt() {
		if e.coord != nil {
			e.coord.UpdateAgentState(e.cfg.AgentID, coordinator.StateDegraded)
		}
		e.record(item.Phase, time.Since(start), false, "circuit_open")
		return work.CircuitOpenResult(e.brk.RetryAfter()), nil
	}

	e.setPhase(PhaseExecuting)
	result := e.runToolUseLoop(ctx, plan, item)
	e.setPhase(PhaseCompleted)

	e.record(item.Phase, time.Since(start), result.Success, errKindFor(result))
	return result, nil
}

func errKindFor(r work.Result) string {
	if r.Success {
		return ""
	}
	if r.Status == "circuit_open" {
		return "circuit_open"
	}
	return "error"
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "; "
		}
		out += l
	}
	return out
}

// toolSchemas declares the four fixed tools exposed to the LLM.
func toolSchemas() []ports.ToolSchema {
	return []ports.ToolSchema{
		{
			Name:        "read_file",
			Description: "Read the full contents of a file.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
				"required":   []string{"file_path"},
			},
		},
		{
			Name:        "create_file",
			Description: "Create a file with the given content, creating parent directories as needed.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{"type": "string"},
					"content":   map[string]any{"type": "string"},
				},
				"required": []string{"file_path", "content"},
			},
		},
		{
			Name:        "edit_file",
			Description: "Replace the single occurrence of old_text with new_text in a file.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{"type": "string"},
					"old_text":  map[string]any{"type": "string"},
					"new_text":  map[string]any{"type": "string"},
				},
				"required": []string{"file_path", "old_text", "new_text"},
			},
		},
		{
			Name:        "run_command",
			Description: "Run a shell command, optionally in a given working directory, with a 30s timeout.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command":     map[string]any{"type": "string"},
					"working_dir": map[string]any{"type": "string"},
				},
				"required": []string{"command"},
			},
		},
	}
}

// runToolUseLoop alternates LLM tool_use requests with ToolResult
// replies for up to MaxIterations round-trips.
func (e *Executor) runToolUseLoop(ctx context.Context, plan work.Plan, item work.Item) work.Result {
	messages := []ports.Message{ports.Text(ports.RoleUser, promptFor(plan, item))}
	tools := toolSchemas()

	for i := 0; i < e.cfg.MaxIterations; i++ {
		resp, err := e.llm.Chat(ctx, messages, tools)
		if err != nil {
			e.brk.RecordFailure()
			ec := NewErrorContext("TransientLlmError", err, item.ID, string(item.Phase), item.Description, e.cfg.AgentID, string(e.phase), e.sessionIsActive())
			return work.Result{Success: false, Error: ec.Compressed()}
		}
		e.brk.RecordSuccess()

		switch resp.StopReason {
		case ports.StopEndTurn:
			text := concatText(resp.Content)
			return e.finalizeResult(ctx, item, text)

		case ports.StopToolUse:
			assistantMsg := ports.Message{Role: ports.RoleAssistant, Content: resp.Content}
			resultBlocks := e.runTools(ctx, resp.Content)
			userMsg := ports.Message{Role: ports.RoleUser, Content: resultBlocks}
			messages = append(messages, assistantMsg, userMsg)

		default:
			text := concatText(resp.Content)
			return e.finalizeResult(ctx, item, text)
		}
	}

	return work.Result{Success: false, Error: "degraded: max tool execution iterations reached", Status: "degraded"}
}

func promptFor(plan work.Plan, item work.Item) string {
	return fmt.Sprintf("Task: %s\nPhase: %s\nSuccess criteria: %v\nTech stack: %v",
		item.Description, item.Phase, plan.SuccessCriteria, plan.TechStack)
}

func concatText(blocks []ports.Block) string {
	out := ""
	for _, b := range blocks {
		if b.Type == ports.BlockText {
			out += b.Text
		}
	}
	return out
}

// runTools executes every requested tool_use block via FsPort and returns
// the matching tool_result blocks, one per tool-use id, in the same
// order.
func (e *Executor) runTools(ctx context.Context, blocks []ports.Block) []ports.Block {
	var out []ports.Block
	for _, b := range blocks {
		if b.Type != ports.BlockToolUse {
			continue
		}
		content := e.runOneTool(ctx, b)
		out = append(out, ports.Block{Type: ports.BlockToolResult, ToolUseID: b.ID, Content: content})
	}
	return out
}

func (e *Executor) runOneTool(ctx context.Context, b ports.Block) string {
	switch b.Name {
	case "read_file":
		path, _ := b.Input["file_path"].(string)
		res, err := e.fs.ReadFile(ctx, path)
		if err != nil {
			return (&errs.ToolError{Tool: b.Name, Message: err.Error()}).Error()
		}
		return fmt.Sprintf("%+v", res)

	case "create_file":
		path, _ := b.Input["file_path"].(string)
		content, _ := b.Input["content"].(string)
		res, err := e.fs.CreateFile(ctx, path, content)
		if err != nil {
			return (&errs.ToolError{Tool: b.Name, Message: err.Error()}).Error()
		}
		return fmt.Sprintf("%+v", res)

	case "edit_file":
		path, _ := b.Input["file_path"].(string)
		oldText, _ := b.Input["old_text"].(string)
		newText, _ := b.Input["new_text"].(string)
		res, err := e.fs.EditFile(ctx, path, oldText, newText)
		if err != nil {
			return (&errs.ToolError{Tool: b.Name, Message: err.Error()}).Error()
		}
		return fmt.Sprintf("%+v", res)

	case "run_command":
		cmd, _ := b.Input["command"].(string)
		cwd, _ := b.Input["working_dir"].(string)
		res, err := e.fs.RunCommand(ctx, cmd, cwd)
		if err != nil {
			return (&errs.ToolError{Tool: b.Name, Message: err.Error()}).Error()
		}
		return fmt.Sprintf("%+v", res)

	default:
		return (&errs.ToolError{Tool: b.Name, Message: ports.ErrToolNotFound.Error()}).Error()
	}
}

// finalizeResult stores the final artifact text via MemoryPort (if
// configured) and returns the terminal WorkResult.
func (e *Executor) finalizeResult(ctx context.Context, item work.Item, text string) work.Result {
	result := work.Result{Success: true, Data: text}
	if e.mem != nil {
		handle, err := e.mem.Store(ctx, ports.StoreRequest{
			Content:    text,
			Namespace:  "project:agent-" + e.cfg.AgentID,
			Importance: 5,
			Tags:       []string{"executor", string(item.Phase)},
		})
		if err == nil {
			result.MemoryIDs = append(result.MemoryIDs, handle)
		}
	}
	return result
}

// SpawnSubagent checks |active| < MaxSubagents AND context utilization
// <= 0.75, fail-fast otherwise, and returns a derived id.
func (e *Executor) SpawnSubagent() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.activeSubagents) >= e.cfg.MaxSubagents {
		return "", &errs.StateError{Message: "max_subagents reached"}
	}
	if e.coord != nil && e.coord.GetContextUtilization() > 0.75 {
		return "", &errs.StateError{Message: "insufficient context headroom to spawn a sub-agent"}
	}

	id := e.cfg.AgentID + "-sub-" + strconv.Itoa(len(e.activeSubagents)+1) + "-" + uuid.NewString()[:8]
	e.activeSubagents[id] = true
	if e.coord != nil {
		e.coord.RegisterAgent(id)
	}
	return id, nil
}

// ReleaseSubagent marks id no longer active.
func (e *Executor) ReleaseSubagent(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.activeSubagents, id)
}

func (e *Executor) record(phase work.Phase, dur time.Duration, success bool, errKind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, itemMetrics{phase: phase, duration: dur, success: success, errKind: errKind})
}

// Stats returns the aggregate per-agent metrics view over every item
// executed so far.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) == 0 {
		return Stats{}
	}

	var sum time.Duration
	successes := 0
	first := true
	s := Stats{Count: len(e.history)}
	for _, m := range e.history {
		if m.success {
			successes++
		}
		sum += m.duration
		if first || m.duration < s.MinDuration {
			s.MinDuration = m.duration
		}
		if m.duration > s.MaxDuration {
			s.MaxDuration = m.duration
		}
		first = false
	}
	s.SuccessRate = float64(successes) / float64(len(e.history))
	s.AvgDuration = sum / time.Duration(len(e.history))
	return s
}
