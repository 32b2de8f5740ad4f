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

// Package llms provides concrete ports.LlmPort implementations. The core
// itself never depends on this package; it exists so the CLI can run
// against a live provider.
package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
)

const (
	defaultAnthropicHost  = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	defaultModel          = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 4096
	defaultRequestTimeout = 120 * time.Second
)

// AnthropicConfig configures one Anthropic-backed LlmPort.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	Host      string
	MaxTokens int
	System    string
	Timeout   time.Duration
}

func (c *AnthropicConfig) setDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Host == "" {
		c.Host = defaultAnthropicHost
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultRequestTimeout
	}
}

// Anthropic implements ports.LlmPort against the Anthropic Messages API.
type Anthropic struct {
	cfg    AnthropicConfig
	client *http.Client
}

var _ ports.LlmPort = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic LlmPort. The API key is required.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required for Anthropic")
	}
	cfg.setDefaults()
	return &Anthropic{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewAnthropicFromEnv creates an Anthropic LlmPort from ANTHROPIC_API_KEY.
func NewAnthropicFromEnv() (*Anthropic, error) {
	key, ok := os.LookupEnv("ANTHROPIC_API_KEY")
	if !ok || key == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set: %w", ports.ErrUnauthorized)
	}
	return NewAnthropic(AnthropicConfig{APIKey: key})
}

// request/response mirror the wire contract the core depends on:
// {model, max_tokens, system?, tools?, messages} in,
// {content, stop_reason, usage} out. ports.Block and ports.Message already
// carry the exact field names, so they marshal directly.

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Tools     []ports.ToolSchema `json:"tools,omitempty"`
	Messages  []ports.Message    `json:"messages"`
}

type anthropicResponse struct {
	Content    []ports.Block    `json:"content"`
	StopReason ports.StopReason `json:"stop_reason"`
	Usage      ports.Usage      `json:"usage"`
	Error      *anthropicError  `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Chat implements ports.LlmPort.
func (a *Anthropic) Chat(ctx context.Context, messages []ports.Message, tools []ports.ToolSchema) (ports.Response, error) {
	payload := anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    a.cfg.System,
		Tools:     tools,
		Messages:  messages,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return ports.Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ports.Response{}, fmt.Errorf("anthropic request: %w", ports.ErrLlmTimeout)
		}
		return ports.Response{}, fmt.Errorf("anthropic request: %v: %w", err, ports.ErrTransport)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.Response{}, fmt.Errorf("failed to read response: %w", ports.ErrTransport)
	}

	if resp.StatusCode != http.StatusOK {
		return ports.Response{}, statusError(resp.StatusCode, data)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ports.Response{}, fmt.Errorf("failed to parse response: %w", ports.ErrTransport)
	}
	if parsed.Error != nil {
		return ports.Response{}, fmt.Errorf("anthropic api error (%s): %s: %w",
			parsed.Error.Type, parsed.Error.Message, ports.ErrTransport)
	}

	return ports.Response{
		Content:    parsed.Content,
		StopReason: parsed.StopReason,
		Usage:      parsed.Usage,
	}, nil
}

// statusError maps HTTP status codes to the distinguishable sentinels the
// CircuitBreaker and ExecutorAgent branch on.
func statusError(code int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("anthropic status %d: %s: %w", code, msg, ports.ErrRateLimited)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("anthropic status %d: %s: %w", code, msg, ports.ErrUnauthorized)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("anthropic status %d: %s: %w", code, msg, ports.ErrLlmTimeout)
	default:
		return fmt.Errorf("anthropic status %d: %s: %w", code, msg, ports.ErrTransport)
	}
}
