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

package workgraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mnemosyne-project/mnemosyne/pkg/coordinator"
	"github.com/mnemosyne-project/mnemosyne/pkg/errs"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// Config tunes the ParallelExecutor; both fields have named defaults.
type Config struct {
	// MaxConcurrent bounds the number of tasks running at once. Default 4.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// SpawnTimeout is the deadline given to each spawned task. Default 30s.
	SpawnTimeout time.Duration `yaml:"spawn_timeout" mapstructure:"spawn_timeout"`
}

// DefaultConfig returns the named scheduling defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 4, SpawnTimeout: 30 * time.Second}
}

// contextGate is the subset of *coordinator.Coordinator the safety gate
// and agent-state bookkeeping need.
type contextGate interface {
	GetContextUtilization() float64
	RegisterAgent(id string)
	UpdateAgentState(id string, state coordinator.AgentState)
}

// Executor is the dependency-aware, bounded-concurrency scheduler.
type Executor struct {
	coord contextGate
	cfg   Config
	now   func() time.Time
}

// NewExecutor creates an Executor backed by coord, which the safety
// gate reads and every spawned task's synthetic agent id is registered
// against.
func NewExecutor(coord contextGate, cfg Config) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.SpawnTimeout <= 0 {
		cfg.SpawnTimeout = DefaultConfig().SpawnTimeout
	}
	return &Executor{coord: coord, cfg: cfg, now: time.Now}
}

// Stats summarizes one Execute call.
type Stats struct {
	Total              int
	Successful         int
	Failed             int
	AvgDuration        time.Duration
	MinDuration        time.Duration
	MaxDuration        time.Duration
	ParallelEfficiency float64
}

type completion struct {
	id      string
	result  work.Result
	err     error
	agentID string
}

// Execute validates g, checks the pre-execution safety gate, then runs
// g's tasks to completion (or failure+rollback), returning aggregate
// Stats.
func (e *Executor) Execute(ctx context.Context, g *Graph) (Stats, error) {
	if err := g.Validate(); err != nil {
		return Stats{}, err
	}

	// Pre-execution safety gate: there must be context headroom for
	// sub-agent work. Non-blocking: the gauge is sampled once at the
	// instant of the check.
	if e.coord.GetContextUtilization() > 0.75 {
		return Stats{}, &errs.StateError{
			Message: "insufficient context headroom: utilization above 0.75",
		}
	}

	wallStart := e.now()

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrent))
	done := make(chan completion, len(g.Tasks()))

	completedSet := make(map[string]bool)
	failedSet := make(map[string]bool)
	// runningCancel and the two sets above are only ever touched from this
	// goroutine (the scheduling loop below); the spawned goroutines only
	// write to the done channel.
	runningCancel := make(map[string]context.CancelFunc)
	var runningWG sync.WaitGroup

	spawn := func(t *Task) {
		taskCtx, cancel := context.WithTimeout(ctx, e.cfg.SpawnTimeout)
		runningCancel[t.ID] = cancel

		agentID := fmt.Sprintf("exec_%s_%d", t.ID, e.now().UnixNano())
		e.coord.RegisterAgent(agentID)
		e.coord.UpdateAgentState(agentID, coordinator.StateRunning)

		t.mu.Lock()
		t.status = Running
		t.start = e.now()
		t.agentID = agentID
		t.mu.Unlock()

		runningWG.Add(1)
		go func() {
			defer runningWG.Done()
			defer cancel()
			defer sem.Release(1)

			res, err := runTask(taskCtx, t)
			done <- completion{id: t.ID, result: res, err: err, agentID: agentID}
		}()
	}

	allTasks := g.Tasks()
	remaining := len(allTasks)

	for remaining > 0 {
		// (1) Compute ready = pending tasks whose deps are all completed
		// and that are not already running.
		var ready []*Task
		runningCount := 0
		for _, t := range allTasks {
			switch t.Status() {
			case Running:
				runningCount++
			case Pending:
				depsOK := true
				for _, dep := range t.DependsOn {
					if !completedSet[dep] {
						depsOK = false
						break
					}
				}
				if depsOK {
					ready = append(ready, t)
				}
			}
		}

		// (4) Deadlock detection: no running, no ready, but work remains.
		if runningCount == 0 && len(ready) == 0 {
			var blocked []string
			for _, t := range allTasks {
				if !t.isTerminal() {
					blocked = append(blocked, t.ID)
				}
			}
			return e.rollbackAndReturn(allTasks, runningCancel, &runningWG,
				&errs.DeadlockError{Blocked: blocked})
		}

		// (2) Spawn up to MaxConcurrent-|running| tasks from ready, in
		// iteration (insertion) order.
		slots := e.cfg.MaxConcurrent - runningCount
		for _, t := range ready {
			if slots <= 0 {
				break
			}
			if !sem.TryAcquire(1) {
				break
			}
			t.setStatus(Ready)
			spawn(t)
			slots--
		}

		// (3) Wait until at least one spawned task finishes.
		c := <-done
		delete(runningCancel, c.id)

		t, _ := g.Task(c.id)
		t.mu.Lock()
		t.end = e.now()
		result := c.result
		t.result = &result
		if c.err != nil || !c.result.Success {
			t.status = Failed
		} else {
			t.status = Completed
		}
		finalStatus := t.status
		t.mu.Unlock()

		if finalStatus == Completed {
			completedSet[c.id] = true
			e.coord.UpdateAgentState(c.agentID, coordinator.StateComplete)
		} else {
			failedSet[c.id] = true
			e.coord.UpdateAgentState(c.agentID, coordinator.StateFailed)
		}
		remaining--
	}

	if len(failedSet) > 0 {
		return e.rollbackAndReturn(allTasks, runningCancel, &runningWG,
			fmt.Errorf("execution failed: %d tasks failed", len(failedSet)))
	}

	return e.computeStats(allTasks, e.now().Sub(wallStart)), nil
}

// rollbackAndReturn cancels any still-running tasks, awaits their actual
// exit, marks their coordinator agents failed, and returns origErr.
func (e *Executor) rollbackAndReturn(
	allTasks []*Task,
	runningCancel map[string]context.CancelFunc,
	runningWG *sync.WaitGroup,
	origErr error,
) (Stats, error) {
	var eg errgroup.Group
	for _, cancel := range runningCancel {
		cancel := cancel
		eg.Go(func() error {
			cancel()
			return nil
		})
	}
	_ = eg.Wait() // cancellation is fire-and-forget; errors are suppressed

	runningWG.Wait() // await every spawned goroutine's actual exit

	for _, t := range allTasks {
		if t.Status() == Running {
			t.setStatus(Failed)
		}
		if t.agentID != "" {
			e.coord.UpdateAgentState(t.agentID, coordinator.StateFailed)
		}
	}

	return Stats{}, origErr
}

func (e *Executor) computeStats(tasks []*Task, wall time.Duration) Stats {
	stats := Stats{Total: len(tasks)}
	var sum time.Duration
	first := true

	for _, t := range tasks {
		d := t.Duration()
		if t.Status() == Completed {
			stats.Successful++
		} else {
			stats.Failed++
		}
		sum += d
		if first || d < stats.MinDuration {
			stats.MinDuration = d
		}
		if d > stats.MaxDuration {
			stats.MaxDuration = d
		}
		first = false
	}

	if stats.Total > 0 {
		stats.AvgDuration = sum / time.Duration(stats.Total)
	}

	if wall > 0 && e.cfg.MaxConcurrent > 0 {
		eff := float64(sum) / float64(wall*time.Duration(e.cfg.MaxConcurrent))
		if eff > 1 {
			eff = 1
		}
		stats.ParallelEfficiency = eff
	}

	return stats
}

// runTask invokes t.Run, treating a nil Run as a no-op that completes
// immediately with a neutral result, and returning a failed result with an
// error wrapping ctx.Err() if ctx's deadline fires first.
func runTask(ctx context.Context, t *Task) (work.Result, error) {
	if t.Run == nil {
		return work.Result{Success: true}, nil
	}

	resultCh := make(chan struct {
		res work.Result
		err error
	}, 1)

	go func() {
		res, err := t.Run(ctx)
		resultCh <- struct {
			res work.Result
			err error
		}{res, err}
	}()

	select {
	case r := <-resultCh:
		return r.res, r.err
	case <-ctx.Done():
		return work.Result{Success: false, Error: "task timed out"}, fmt.Errorf("task %s timed out: %w", t.ID, ctx.Err())
	}
}
