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

// Package breaker provides a three-state circuit breaker guarding calls to
// the LLM: Closed -> (N consecutive failures) -> Open -> (cooldown elapsed)
// -> HalfOpen -> (success) -> Closed, with HalfOpen failing immediately
// back to Open.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config are the breaker's tunables; all three have named defaults.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that trips the breaker to Open. Default 3.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// CooldownSeconds is how long Open waits before admitting one
	// HalfOpen attempt. Default 60.
	CooldownSeconds float64 `yaml:"cooldown_seconds" mapstructure:"cooldown_seconds"`

	// HalfOpenAttempts is the number of consecutive HalfOpen successes
	// needed to close the breaker. Default 1.
	HalfOpenAttempts int `yaml:"half_open_attempts" mapstructure:"half_open_attempts"`
}

// DefaultConfig returns the named circuit-breaker defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, CooldownSeconds: 60, HalfOpenAttempts: 1}
}

// CircuitBreaker guards a single downstream (one ExecutorAgent's LLM calls).
// Its transitions are sequentially consistent: concurrent callers serialize
// through an internal mutex.
type CircuitBreaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	now func() time.Time
}

// New creates a CircuitBreaker starting Closed.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = DefaultConfig().CooldownSeconds
	}
	if cfg.HalfOpenAttempts <= 0 {
		cfg.HalfOpenAttempts = DefaultConfig().HalfOpenAttempts
	}
	return &CircuitBreaker{cfg: cfg, state: Closed, now: time.Now}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// CanAttempt reports whether a call may proceed. True in Closed and
// HalfOpen. In Open it is true iff the cooldown has elapsed, in which case
// CanAttempt has the side effect of transitioning to HalfOpen (and
// resetting successCount) — one Open-to-HalfOpen transition per cooldown
// expiry. HalfOpen itself does not limit how many calls it admits.
func (b *CircuitBreaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		elapsed := b.now().Sub(b.lastFailureTime).Seconds()
		if elapsed >= b.cfg.CooldownSeconds {
			b.state = HalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RetryAfter returns the remaining cooldown in seconds, clamped to >= 0.
// Meaningful only while Open.
func (b *CircuitBreaker) RetryAfter() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.cfg.CooldownSeconds - b.now().Sub(b.lastFailureTime).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess reports a successful call. In Closed it resets
// failureCount; in HalfOpen it increments successCount and closes once
// HalfOpenAttempts is reached; in Open it is ignored (Open never observes a
// call succeed without first transitioning via CanAttempt).
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenAttempts {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	case Open:
		// ignored
	}
}

// RecordFailure reports a failed call. Always updates lastFailureTime; in
// Closed it increments failureCount and opens at the threshold; in
// HalfOpen it reopens immediately, pinning failureCount to the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = b.now()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		b.state = Open
		b.failureCount = b.cfg.FailureThreshold
		b.successCount = 0
	case Open:
		// already open; just refresh lastFailureTime above
	}
}
