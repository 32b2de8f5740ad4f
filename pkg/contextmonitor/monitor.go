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

// Package contextmonitor runs a cooperative, low-latency polling loop over
// the Coordinator's context-utilization gauge, firing preservation and
// critical callbacks as utilization crosses thresholds. Target period is
// 10ms with a <1ms per-iteration budget excluding callbacks.
package contextmonitor

import (
	"context"
	"time"
)

// State is one of the four context-utilization bands.
type State string

const (
	StateSafe     State = "safe"
	StateModerate State = "moderate"
	StateHigh     State = "high"
	StateCritical State = "critical"
)

// TotalTokens is the fixed context window cap used to derive used/available
// token counts from the utilization fraction.
const TotalTokens = 200000

func stateFor(utilization float64) State {
	switch {
	case utilization < 0.5:
		return StateSafe
	case utilization < 0.75:
		return StateModerate
	case utilization < 0.90:
		return StateHigh
	default:
		return StateCritical
	}
}

// Metrics is one poll's reading.
type Metrics struct {
	Utilization    float64
	State          State
	TotalTokens    int
	UsedTokens     int
	AvailableTokens int
	Timestamp      time.Time
	AgentCount     int
	SkillCount     int
	FileCount      int
}

// Coordinator is the subset of *coordinator.Coordinator the monitor reads
// from and writes back to. Declared here (rather than imported) so the
// monitor has no compile-time dependency on the coordinator package beyond
// this narrow interface.
type Coordinator interface {
	GetContextUtilization() float64
	UpdateContextUtilization(float64)
	RunningAgentCount() int
	GetMetric(name string) float64
	SetMetric(name string, value float64)
}

// Config configures the polling loop; every field has a named default.
type Config struct {
	// PollingInterval is the target tick period. Default 10ms.
	PollingInterval time.Duration

	// PreservationThreshold triggers the Preservation callback. Default 0.75.
	PreservationThreshold float64

	// CriticalThreshold triggers the Critical callback. Default 0.90.
	CriticalThreshold float64

	// StateChange fires whenever metrics.State differs from the previous
	// iteration's state.
	StateChange func(prev, next State)

	// Preservation fires when PreservationThreshold <= utilization <
	// CriticalThreshold. Never fires on the same reading as Critical.
	Preservation func(Metrics)

	// Critical fires when utilization >= CriticalThreshold.
	Critical func(Metrics)
}

func (c *Config) setDefaults() {
	if c.PollingInterval <= 0 {
		c.PollingInterval = 10 * time.Millisecond
	}
	if c.PreservationThreshold <= 0 {
		c.PreservationThreshold = 0.75
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = 0.90
	}
}

// Monitor is the polling loop itself.
type Monitor struct {
	coord Coordinator
	cfg   Config

	lastState State
	now       func() time.Time
	sleep     func(time.Duration)
}

// New creates a Monitor reading from and writing to coord. The first
// poll always reports a state change (from the empty zero State) so
// observers see the initial band.
func New(coord Coordinator, cfg Config) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		coord: coord,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Poll runs exactly one iteration: read, write-back, threshold checks. It
// is exported so tests can drive the state machine deterministically
// without depending on wall-clock sleeps, and so Run's loop body has a
// single source of truth.
func (m *Monitor) Poll() Metrics {
	start := m.now()

	utilization := m.coord.GetContextUtilization()
	m.coord.UpdateContextUtilization(utilization)

	used := int(utilization * TotalTokens)
	metrics := Metrics{
		Utilization:     utilization,
		State:           stateFor(utilization),
		TotalTokens:     TotalTokens,
		UsedTokens:      used,
		AvailableTokens: TotalTokens - used,
		Timestamp:       start,
		AgentCount:      m.coord.RunningAgentCount(),
		SkillCount:      int(m.coord.GetMetric("skill_count")),
		FileCount:       int(m.coord.GetMetric("file_count")),
	}
	pollElapsed := m.now().Sub(start) // the per-iteration budget excludes callbacks

	if metrics.State != m.lastState && m.cfg.StateChange != nil {
		m.cfg.StateChange(m.lastState, metrics.State)
	}
	m.lastState = metrics.State

	// (d) and (e) are independent; preservation never fires on a critical
	// reading.
	if utilization >= m.cfg.PreservationThreshold && utilization < m.cfg.CriticalThreshold {
		if m.cfg.Preservation != nil {
			m.cfg.Preservation(metrics)
		}
	}
	if utilization >= m.cfg.CriticalThreshold {
		if m.cfg.Critical != nil {
			m.cfg.Critical(metrics)
		}
	}

	if pollElapsed > time.Millisecond {
		m.coord.SetMetric("context_monitor_slow_poll", pollElapsed.Seconds())
	}

	return metrics
}

// Run polls at PollingInterval until ctx is cancelled. Overrun ticks are
// skipped, not stacked: if one iteration (including callbacks) takes
// longer than PollingInterval, the next tick starts immediately rather
// than queuing up a backlog. Stopping is cooperative: Run checks ctx on
// each iteration boundary and returns promptly once cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for {
		start := m.now()
		m.Poll()

		elapsed := m.now().Sub(start)
		remaining := m.cfg.PollingInterval - elapsed
		if remaining < 0 {
			remaining = 0
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
