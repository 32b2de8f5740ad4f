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

// Package ports declares the external collaborators the core depends on:
// the LLM chat+tool-use API, the content-addressed memory store, and the
// filesystem/subprocess surface the ExecutorAgent's tools use. These are
// plain interfaces; the core never assumes a concrete provider.
package ports

import "context"

// BlockType tags the kind of content carried by a Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one content block of an LLM message, per the wire contract:
// {type: "text", text} | {type: "tool_use", id, name, input} |
// {type: "tool_result", tool_use_id, content}.
type Block struct {
	Type BlockType `json:"type"`

	// Text is set when Type == BlockText.
	Text string `json:"text,omitempty"`

	// ID, Name, Input are set when Type == BlockToolUse.
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// ToolUseID, Content are set when Type == BlockToolResult.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to or received from the LLM.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// Text is a convenience constructor for a single-text-block user/assistant
// message.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: []Block{{Type: BlockText, Text: text}}}
}

// ToolSchema describes one tool the LLM may call, one of the fixed
// four-tool surface (read_file, create_file, edit_file, run_command).
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// StopReason is why the LLM call returned.
type StopReason string

const (
	StopToolUse  StopReason = "tool_use"
	StopEndTurn  StopReason = "end_turn"
	StopMaxTurns StopReason = "max_tokens"
)

// Usage reports per-call token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is what one LlmPort.Chat call returns.
type Response struct {
	Content    []Block    `json:"content"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// LlmPort is the chat+tool-use API the core depends on. Exactly one of
// StopToolUse or StopEndTurn is returned per call; on StopToolUse the
// caller replies with a user Message whose Content is the matching
// BlockToolResult blocks, then calls Chat again.
type LlmPort interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSchema) (Response, error)
}

// Distinguishable LLM transport failure kinds, checked with errors.Is
// against the sentinel values in this package (see errors.go).
