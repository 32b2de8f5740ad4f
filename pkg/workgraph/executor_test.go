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

package workgraph_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/coordinator"
	"github.com/mnemosyne-project/mnemosyne/pkg/errs"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
	"github.com/mnemosyne-project/mnemosyne/pkg/workgraph"
)

func sleeper(d time.Duration) workgraph.ExecutorFunc {
	return func(ctx context.Context) (work.Result, error) {
		select {
		case <-time.After(d):
			return work.Result{Success: true}, nil
		case <-ctx.Done():
			return work.Result{Success: false, Error: "cancelled"}, ctx.Err()
		}
	}
}

// Diamond fan-in: A and B run in parallel, C waits on both, D on C. Three
// sequential waves of 50ms each, so wall time sits well under the 200ms
// a serial run would take.
func TestExecute_ParallelFanIn(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{MaxConcurrent: 4})

	g := workgraph.NewGraph()
	g.AddTask("a", nil, sleeper(50*time.Millisecond))
	g.AddTask("b", nil, sleeper(50*time.Millisecond))
	g.AddTask("c", []string{"a", "b"}, sleeper(50*time.Millisecond))
	g.AddTask("d", []string{"c"}, sleeper(50*time.Millisecond))

	start := time.Now()
	stats, err := exec.Execute(context.Background(), g)
	wall := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 4, stats.Successful)
	require.Zero(t, stats.Failed)
	require.GreaterOrEqual(t, wall, 100*time.Millisecond, "three dependency waves cannot finish faster than 150ms minus timer slack")
	require.Less(t, wall, 400*time.Millisecond, "independent tasks must overlap")
	require.Greater(t, stats.ParallelEfficiency, 0.0)
	require.LessOrEqual(t, stats.ParallelEfficiency, 1.0)

	for _, task := range g.Tasks() {
		require.Equal(t, workgraph.Completed, task.Status())
	}
}

// For every dependency edge u->v, u must have ended before v started.
func TestExecute_DependencyOrdering(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{MaxConcurrent: 4})

	var mu sync.Mutex
	starts := make(map[string]time.Time)
	ends := make(map[string]time.Time)
	record := func(id string) workgraph.ExecutorFunc {
		return func(ctx context.Context) (work.Result, error) {
			mu.Lock()
			starts[id] = time.Now()
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			ends[id] = time.Now()
			mu.Unlock()
			return work.Result{Success: true}, nil
		}
	}

	deps := map[string][]string{
		"a": nil, "b": {"a"}, "c": {"a"}, "d": {"b", "c"},
	}
	g := workgraph.NewGraph()
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddTask(id, deps[id], record(id))
	}

	_, err := exec.Execute(context.Background(), g)
	require.NoError(t, err)

	for id, ds := range deps {
		for _, dep := range ds {
			require.False(t, starts[id].Before(ends[dep]),
				"task %s started before its dependency %s ended", id, dep)
		}
	}
}

// |running| never exceeds MaxConcurrent at any instant.
func TestExecute_ConcurrencyBound(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{MaxConcurrent: 2})

	var current, peak int64
	g := workgraph.NewGraph()
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		g.AddTask(id, nil, func(ctx context.Context) (work.Result, error) {
			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return work.Result{Success: true}, nil
		})
	}

	_, err := exec.Execute(context.Background(), g)
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

// countingCoord wraps the real coordinator to prove the cycle-rejection
// path never touches agent state.
type countingCoord struct {
	*coordinator.Coordinator
	registered int64
}

func (c *countingCoord) RegisterAgent(id string) {
	atomic.AddInt64(&c.registered, 1)
	c.Coordinator.RegisterAgent(id)
}

// A cyclic graph is rejected before any task starts; the coordinator is
// untouched.
func TestExecute_CycleRejectedBeforeStart(t *testing.T) {
	coord := &countingCoord{Coordinator: coordinator.New()}
	exec := workgraph.NewExecutor(coord, workgraph.Config{})

	ran := false
	g := workgraph.NewGraph()
	g.AddTask("x", []string{"z"}, func(ctx context.Context) (work.Result, error) {
		ran = true
		return work.Result{Success: true}, nil
	})
	g.AddTask("y", []string{"x"}, nil)
	g.AddTask("z", []string{"y"}, nil)

	_, err := exec.Execute(context.Background(), g)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrValidation))
	require.False(t, ran)
	require.Zero(t, atomic.LoadInt64(&coord.registered))
	require.Empty(t, coord.GetAllAgentStates())
}

// A failed dependency strands its dependents: no running, no ready, work
// remaining -> deadlock error naming the blocked set, and rollback leaves
// no graph agent in state running.
func TestExecute_FailedDependencyDeadlocks(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{})

	g := workgraph.NewGraph()
	g.AddTask("root", nil, func(ctx context.Context) (work.Result, error) {
		return work.Result{Success: false, Error: "boom"}, nil
	})
	g.AddTask("child", []string{"root"}, sleeper(time.Millisecond))

	_, err := exec.Execute(context.Background(), g)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrDeadlock))
	require.Contains(t, err.Error(), "child")

	for _, state := range coord.GetAllAgentStates() {
		require.NotEqual(t, coordinator.StateRunning, state)
	}
}

// Independent failures drain the graph and surface as an execution error,
// not a deadlock.
func TestExecute_FailureTriggersRollback(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{})

	g := workgraph.NewGraph()
	g.AddTask("ok", nil, sleeper(time.Millisecond))
	g.AddTask("bad", nil, func(ctx context.Context) (work.Result, error) {
		return work.Result{}, errors.New("task blew up")
	})

	_, err := exec.Execute(context.Background(), g)
	require.Error(t, err)
	require.False(t, errors.Is(err, errs.ErrDeadlock))
	require.Contains(t, err.Error(), "1 tasks failed")

	bad, _ := g.Task("bad")
	require.Equal(t, workgraph.Failed, bad.Status())
	for _, state := range coord.GetAllAgentStates() {
		require.NotEqual(t, coordinator.StateRunning, state)
	}
}

// A task overrunning SpawnTimeout is failed with a timeout result.
func TestExecute_SpawnTimeout(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{SpawnTimeout: 25 * time.Millisecond})

	g := workgraph.NewGraph()
	g.AddTask("slow", nil, sleeper(500*time.Millisecond))

	_, err := exec.Execute(context.Background(), g)
	require.Error(t, err)

	slow, _ := g.Task("slow")
	require.Equal(t, workgraph.Failed, slow.Status())
}

// The pre-execution safety gate rejects when context utilization is above
// 0.75 at the instant of the check.
func TestExecute_SafetyGate(t *testing.T) {
	coord := coordinator.New()
	coord.UpdateContextUtilization(0.8)
	exec := workgraph.NewExecutor(coord, workgraph.Config{})

	g := workgraph.NewGraph()
	g.AddTask("a", nil, nil)

	_, err := exec.Execute(context.Background(), g)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrState))
}

// A nil executor closure is a no-op completing immediately with a neutral
// result.
func TestExecute_NilClosureIsNoop(t *testing.T) {
	coord := coordinator.New()
	exec := workgraph.NewExecutor(coord, workgraph.Config{})

	g := workgraph.NewGraph()
	g.AddTask("noop", nil, nil)

	stats, err := exec.Execute(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Successful)

	noop, _ := g.Task("noop")
	require.NotNil(t, noop.Result())
	require.True(t, noop.Result().Success)
}
