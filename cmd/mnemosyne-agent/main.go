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

// Command mnemosyne-agent runs one orchestration-engine agent as a
// standalone process, or the heartbeat/metrics sidecar those processes
// report to.
//
// Usage:
//
//	mnemosyne-agent run --agent-id exec-1 --api-url http://localhost:8080 --plan plan.yaml
//	mnemosyne-agent serve --listen :8080
//	mnemosyne-agent validate --config mnemosyne.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/mnemosyne-project/mnemosyne/pkg/config"
	"github.com/mnemosyne-project/mnemosyne/pkg/engine"
	"github.com/mnemosyne-project/mnemosyne/pkg/fsport"
	"github.com/mnemosyne-project/mnemosyne/pkg/llms"
	"github.com/mnemosyne-project/mnemosyne/pkg/logger"
	"github.com/mnemosyne-project/mnemosyne/pkg/memstore"
	"github.com/mnemosyne-project/mnemosyne/pkg/observability"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
	"github.com/mnemosyne-project/mnemosyne/pkg/server"
	"github.com/mnemosyne-project/mnemosyne/pkg/work"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run one agent process against a work plan."`
	Serve    ServeCmd    `cmd:"" help:"Run the heartbeat/metrics sidecar receiver."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	AgentID   string `name:"agent-id" help:"Stable agent identity reported in heartbeats."`
	APIURL    string `name:"api-url" help:"Sidecar base URL heartbeats are emitted to." default:"http://localhost:8080"`
	Database  string `help:"Memory store path (overrides the config default)."`
	Namespace string `help:"Memory namespace for this agent." default:"project:agent-default"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("mnemosyne-agent version %s\n", version)
	return nil
}

// ValidateCmd loads the config and reports whether it parses.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("configuration ok\n%s", out)
	return nil
}

// ServeCmd runs the sidecar receiver: /events, /metrics, /healthz.
type ServeCmd struct {
	Listen string `help:"Listen address." default:":8080"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	obs, err := observability.NewManager(observability.Config{Enabled: true}, nil)
	if err != nil {
		return err
	}
	srv := server.New(c.Listen, obs.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down sidecar")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.HeartbeatInterval)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return obs.Shutdown(shutdownCtx)
}

// RunCmd runs one agent process: engine + heartbeat emitter, optionally
// executing a work plan from a YAML or JSON file.
type RunCmd struct {
	Plan string `help:"Path to a work plan file (YAML or JSON). Without one the process idles until signalled." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cli.Database != "" {
		cfg.Database = cli.Database
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.LogFile = cli.LogFile
	}

	cleanup, err := logger.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	var llm ports.LlmPort
	if config.HasLlmCredential() {
		llm, err = llms.NewAnthropicFromEnv()
		if err != nil {
			return err
		}
	} else {
		// Absence is warned at load and fatal only at session start.
		slog.Warn("ANTHROPIC_API_KEY not set; LLM sessions will fail to start")
		llm = unconfiguredLlm{}
	}

	mem, err := memstore.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open memory store %q: %w", cfg.Database, err)
	}
	defer func() { _ = mem.Close() }()

	eng := engine.New(cfg, llm, fsport.New(), mem)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	defer eng.Stop(context.Background())

	agentID := cli.AgentID
	if agentID == "" {
		host, _ := os.Hostname()
		agentID = "agent-" + host
	}
	emitter := server.NewEmitter(cli.APIURL, agentID, cli.Namespace)
	emitter.State = func() string {
		return fmt.Sprintf("utilization=%.2f", eng.Coordinator.GetContextUtilization())
	}
	go emitter.Run(ctx)

	if c.Plan == "" {
		logger.ForAgent(agentID).Info("agent running; no plan given, idling until signal")
		<-ctx.Done()
		return nil
	}

	plan, err := loadPlan(c.Plan)
	if err != nil {
		return err
	}

	stats, err := eng.ExecuteWorkPlan(ctx, plan)
	if err != nil {
		return fmt.Errorf("work plan failed: %w", err)
	}
	slog.Info("work plan complete",
		"total", stats.Total,
		"successful", stats.Successful,
		"failed", stats.Failed,
		"parallel_efficiency", stats.ParallelEfficiency,
	)
	return nil
}

// loadPlan reads a work.Plan from a YAML or JSON file.
func loadPlan(path string) (work.Plan, error) {
	var plan work.Plan
	data, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("failed to read plan: %w", err)
	}
	if json.Valid(data) {
		if err := json.Unmarshal(data, &plan); err != nil {
			return plan, fmt.Errorf("failed to parse plan JSON: %w", err)
		}
		return plan, nil
	}
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return plan, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	return plan, nil
}

// unconfiguredLlm is the LlmPort used when no credential is available: it
// refuses every call with ports.ErrUnauthorized.
type unconfiguredLlm struct{}

func (unconfiguredLlm) Chat(context.Context, []ports.Message, []ports.ToolSchema) (ports.Response, error) {
	return ports.Response{}, fmt.Errorf("no LLM credential configured: %w", ports.ErrUnauthorized)
}

func main() {
	cli := &CLI{}
	parsed := kong.Parse(cli,
		kong.Name("mnemosyne-agent"),
		kong.Description("Multi-agent orchestration engine runner."),
		kong.UsageOnError(),
	)
	if err := parsed.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
