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

// Package observability exports the engine's shared metrics through an
// OpenTelemetry meter backed by a Prometheus registry, so the context
// gauge, agent counts and per-call counters are visible to a /metrics
// scrape without the core depending on a running collector.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultMetricsPath is the default HTTP path the metrics handler is
// mounted at.
const DefaultMetricsPath = "/metrics"

// Config configures the observability Manager.
type Config struct {
	// Enabled gates the whole subsystem; when false NewManager returns a
	// no-op Manager whose handler reports 503.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Namespace prefixes every exported metric name. Default "mnemosyne".
	Namespace string `yaml:"namespace" mapstructure:"namespace"`

	// Endpoint is the HTTP path /metrics is served at. Default
	// DefaultMetricsPath.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// SetDefaults fills zero-valued fields with their named defaults.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "mnemosyne"
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultMetricsPath
	}
}

// Source is the read-only view of the Coordinator the observable gauges
// poll at scrape time. *coordinator.Coordinator satisfies it.
type Source interface {
	GetContextUtilization() float64
	RunningAgentCount() int
	GetMetric(name string) float64
}

// Manager owns the meter provider and the instruments the rest of the
// module records against. The zero Manager (and a nil one) is a no-op.
type Manager struct {
	cfg      Config
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	llmCalls        metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	itemsExecuted   metric.Int64Counter
	itemDuration    metric.Float64Histogram
	checkpoints     metric.Int64Counter
}

// NoopManager returns a Manager that records nothing.
func NoopManager() *Manager { return &Manager{} }

// NewManager builds the meter provider, wires the observable gauges to
// src, and creates the counter/histogram instruments.
func NewManager(cfg Config, src Source) (*Manager, error) {
	if !cfg.Enabled {
		return NoopManager(), nil
	}
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.Namespace),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter("github.com/mnemosyne-project/mnemosyne")

	m := &Manager{cfg: cfg, registry: registry, provider: provider}

	if err := m.initInstruments(meter, src); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Manager) initInstruments(meter metric.Meter, src Source) error {
	utilization, err := meter.Float64ObservableGauge("context_utilization",
		metric.WithDescription("Fraction of the LLM context window currently assumed in use"))
	if err != nil {
		return err
	}
	runningAgents, err := meter.Int64ObservableGauge("agents_running",
		metric.WithDescription("Number of coordinator agents in state running"))
	if err != nil {
		return err
	}
	checkpointCount, err := meter.Float64ObservableGauge("checkpoint_count",
		metric.WithDescription("Checkpoints written by the orchestrator's preservation callback"))
	if err != nil {
		return err
	}
	slowPoll, err := meter.Float64ObservableGauge("context_monitor_slow_poll_seconds",
		metric.WithDescription("Last over-budget context monitor iteration, in seconds"))
	if err != nil {
		return err
	}

	if src != nil {
		_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveFloat64(utilization, src.GetContextUtilization())
			o.ObserveInt64(runningAgents, int64(src.RunningAgentCount()))
			o.ObserveFloat64(checkpointCount, src.GetMetric("checkpoint_count"))
			o.ObserveFloat64(slowPoll, src.GetMetric("context_monitor_slow_poll"))
			return nil
		}, utilization, runningAgents, checkpointCount, slowPoll)
		if err != nil {
			return err
		}
	}

	if m.llmCalls, err = meter.Int64Counter("llm_calls",
		metric.WithDescription("LLM round-trips, by outcome")); err != nil {
		return err
	}
	if m.llmInputTokens, err = meter.Int64Counter("llm_input_tokens",
		metric.WithDescription("Input tokens reported by the LLM port")); err != nil {
		return err
	}
	if m.llmOutputTokens, err = meter.Int64Counter("llm_output_tokens",
		metric.WithDescription("Output tokens reported by the LLM port")); err != nil {
		return err
	}
	if m.itemsExecuted, err = meter.Int64Counter("work_items",
		metric.WithDescription("Work items executed, by outcome")); err != nil {
		return err
	}
	if m.itemDuration, err = meter.Float64Histogram("work_item_duration_seconds",
		metric.WithDescription("Per-work-item execution duration")); err != nil {
		return err
	}
	if m.checkpoints, err = meter.Int64Counter("checkpoints",
		metric.WithDescription("Preservation checkpoints written")); err != nil {
		return err
	}
	return nil
}

// RecordLLMCall records one LlmPort round-trip.
func (m *Manager) RecordLLMCall(ctx context.Context, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmCalls == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.llmInputTokens.Add(ctx, int64(inputTokens))
	m.llmOutputTokens.Add(ctx, int64(outputTokens))
}

// RecordWorkItem records one executed work item.
func (m *Manager) RecordWorkItem(ctx context.Context, phase string, duration time.Duration, success bool) {
	if m == nil || m.itemsExecuted == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	)
	m.itemsExecuted.Add(ctx, 1, attrs)
	m.itemDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCheckpoint records one preservation checkpoint write.
func (m *Manager) RecordCheckpoint(ctx context.Context) {
	if m == nil || m.checkpoints == nil {
		return
	}
	m.checkpoints.Add(ctx, 1)
}

// Handler returns the /metrics HTTP handler, or a 503 handler when
// metrics are disabled.
func (m *Manager) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Endpoint returns the configured metrics path.
func (m *Manager) Endpoint() string {
	if m == nil || m.cfg.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.cfg.Endpoint
}

// Shutdown flushes and stops the meter provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
