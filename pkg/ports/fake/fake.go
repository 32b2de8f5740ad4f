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

// Package fake provides hand-written in-memory doubles of ports.LlmPort,
// ports.MemoryPort and ports.FsPort for tests: guarded maps, no
// mock-generation framework.
package fake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
)

var (
	_ ports.LlmPort    = (*LLM)(nil)
	_ ports.MemoryPort = (*Memory)(nil)
	_ ports.FsPort     = (*Fs)(nil)
)

// LLM is a scripted LlmPort: each call to Chat pops the next queued
// response (or repeats the last one, if Repeat is true).
type LLM struct {
	mu        sync.Mutex
	Responses []ports.Response
	Repeat    bool
	Calls     []struct {
		Messages []ports.Message
		Tools    []ports.ToolSchema
	}
	Err error
}

// Chat implements ports.LlmPort.
func (l *LLM) Chat(_ context.Context, messages []ports.Message, tools []ports.ToolSchema) (ports.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Calls = append(l.Calls, struct {
		Messages []ports.Message
		Tools    []ports.ToolSchema
	}{messages, tools})

	if l.Err != nil {
		return ports.Response{}, l.Err
	}
	if len(l.Responses) == 0 {
		return ports.Response{StopReason: ports.StopEndTurn}, nil
	}

	resp := l.Responses[0]
	if l.Repeat && len(l.Responses) == 1 {
		return resp, nil
	}
	l.Responses = l.Responses[1:]
	return resp, nil
}

// Memory is an in-memory MemoryPort, keyed by a random handle per Store
// call.
type Memory struct {
	mu    sync.RWMutex
	items map[ports.MemoryHandle]ports.StoreRequest
}

// NewMemory creates an empty Memory fake.
func NewMemory() *Memory {
	return &Memory{items: make(map[ports.MemoryHandle]ports.StoreRequest)}
}

// Store implements ports.MemoryPort.
func (m *Memory) Store(_ context.Context, req ports.StoreRequest) (ports.MemoryHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := ports.MemoryHandle(uuid.NewString())
	m.items[h] = req
	return h, nil
}

// Query implements ports.MemoryPort, matching on namespace prefix and any
// overlapping tag.
func (m *Memory) Query(_ context.Context, req ports.QueryRequest) ([]ports.QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ports.QueryResult
	for h, item := range m.items {
		if req.Namespace != "" && !strings.HasPrefix(item.Namespace, req.Namespace) {
			continue
		}
		if len(req.Tags) > 0 && !hasOverlap(req.Tags, item.Tags) {
			continue
		}
		out = append(out, ports.QueryResult{Handle: h, Content: item.Content, Tags: item.Tags})
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func hasOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

// Fs is a real-filesystem-backed FsPort rooted at Root, used by tests that
// want the tool loop to exercise actual file I/O without touching the
// process's working directory.
type Fs struct {
	Root string
}

func (f *Fs) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.Root, path)
}

// ReadFile implements ports.FsPort.
func (f *Fs) ReadFile(_ context.Context, path string) (ports.ReadFileResult, error) {
	data, err := os.ReadFile(f.abs(path))
	if err != nil {
		return ports.ReadFileResult{Success: false, Error: err.Error()}, nil
	}
	return ports.ReadFileResult{Success: true, Content: string(data), Size: len(data)}, nil
}

// CreateFile implements ports.FsPort, creating parent directories as needed.
func (f *Fs) CreateFile(_ context.Context, path, content string) (ports.CreateFileResult, error) {
	full := f.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ports.CreateFileResult{Success: false, Error: err.Error()}, nil
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return ports.CreateFileResult{Success: false, Error: err.Error()}, nil
	}
	return ports.CreateFileResult{Success: true, Message: "created " + path, Size: len(content)}, nil
}

// EditFile implements ports.FsPort's exact single-occurrence replace.
func (f *Fs) EditFile(_ context.Context, path, oldText, newText string) (ports.EditFileResult, error) {
	full := f.abs(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return ports.EditFileResult{Success: false, Error: err.Error()}, nil
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return ports.EditFileResult{Success: false, Error: ports.ErrOldTextMissing.Error()}, nil
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return ports.EditFileResult{Success: false, Error: err.Error()}, nil
	}
	return ports.EditFileResult{
		Success:        true,
		Message:        "edited " + path,
		ReplacedLength: len(oldText),
		NewLength:      len(updated),
	}, nil
}

// RunCommand implements ports.FsPort. The fake never actually execs; it
// recognizes a small set of deterministic pseudo-commands so tests stay
// hermetic (no forking a real shell from a test binary).
func (f *Fs) RunCommand(_ context.Context, cmd, _ string) (ports.RunCommandResult, error) {
	switch {
	case cmd == "true":
		return ports.RunCommandResult{Success: true, ExitCode: 0}, nil
	case cmd == "false":
		return ports.RunCommandResult{Success: false, ExitCode: 1}, nil
	case strings.HasPrefix(cmd, "echo "):
		out := strings.TrimPrefix(cmd, "echo ")
		return ports.RunCommandResult{Success: true, ExitCode: 0, Stdout: out + "\n"}, nil
	default:
		return ports.RunCommandResult{
			Success:  false,
			ExitCode: 127,
			Stderr:   fmt.Sprintf("command not found: %s", cmd),
			Error:    "unsupported in fake FsPort: " + strconv.Quote(cmd),
		}, nil
	}
}
