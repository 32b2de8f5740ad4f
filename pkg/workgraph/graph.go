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

// Package workgraph implements the dependency-aware WorkGraph and its
// ParallelExecutor: a DAG validator plus a bounded-concurrency
// scheduler with timeouts, deadlock detection and rollback.
package workgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnemosyne-project/mnemosyne/pkg/errs"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// Status is a task's position in the scheduling state machine.
type Status string

const (
	Pending   Status = "pending"
	Ready     Status = "ready"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Blocked   Status = "blocked"
)

// ExecutorFunc performs one task's work. A nil ExecutorFunc is treated as
// a no-op that completes immediately with a neutral (successful, empty)
// result.
type ExecutorFunc func(ctx context.Context) (work.Result, error)

// Task is one node in a WorkGraph.
type Task struct {
	ID        string
	DependsOn []string
	Run       ExecutorFunc

	mu       sync.RWMutex
	status   Status
	result   *work.Result
	start    time.Time
	end      time.Time
	agentID  string
}

func newTask(id string, dependsOn []string, run ExecutorFunc) *Task {
	return &Task{ID: id, DependsOn: dependsOn, Run: run, status: Pending}
}

// Status returns the task's current status (thread-safe).
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns the task's result, if it has one yet.
func (t *Task) Result() *work.Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Duration returns End.Sub(Start); zero if the task hasn't completed.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.start.IsZero() || t.end.IsZero() {
		return 0
	}
	return t.end.Sub(t.start)
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *Task) isTerminal() bool {
	s := t.Status()
	return s == Completed || s == Failed
}

// Graph is a mapping task_id -> set of dependency task_ids, owned
// exclusively by the ParallelExecutor for the duration of one Execute
// call.
type Graph struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*Task
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{tasks: make(map[string]*Task)}
}

// AddTask adds a task with the given dependency ids. run may be nil.
func (g *Graph) AddTask(id string, dependsOn []string, run ExecutorFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tasks[id]; !exists {
		g.order = append(g.order, id)
	}
	g.tasks[id] = newTask(id, dependsOn, run)
}

// Task returns the named task, if present.
func (g *Graph) Task(id string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns every task in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Validate runs a DFS with a recursion-stack set to reject cyclic graphs,
// and rejects any dependency edge referencing an unknown task id — both
// before any task starts.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, t := range g.tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return &errs.ValidationError{
					Message: fmt.Sprintf("task %q depends on unknown task %q", id, dep),
					Fields:  []string{"depends_on"},
				}
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))

	var visit func(id string, stack []string) error
	visit = func(id string, stack []string) error {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.tasks[id].DependsOn {
			switch color[dep] {
			case gray:
				return &errs.ValidationError{
					Message: fmt.Sprintf("cycle detected: %v -> %s", stack, dep),
				}
			case white:
				if err := visit(dep, stack); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range g.tasks {
		if color[id] == white {
			if err := visit(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
