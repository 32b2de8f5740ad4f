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

package observability

import (
	"context"

	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
)

// WrapLlm decorates inner so every Chat round-trip is recorded against
// the Manager's LLM instruments. A nil or no-op Manager returns inner
// unchanged.
func (m *Manager) WrapLlm(inner ports.LlmPort) ports.LlmPort {
	if m == nil || m.llmCalls == nil {
		return inner
	}
	return &instrumentedLlm{inner: inner, m: m}
}

type instrumentedLlm struct {
	inner ports.LlmPort
	m     *Manager
}

func (l *instrumentedLlm) Chat(ctx context.Context, messages []ports.Message, tools []ports.ToolSchema) (ports.Response, error) {
	resp, err := l.inner.Chat(ctx, messages, tools)
	l.m.RecordLLMCall(ctx, resp.Usage.InputTokens, resp.Usage.OutputTokens, err)
	return resp, err
}
