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

package ports

import (
	"context"
	"time"
)

// RunCommandTimeout is the hard ceiling on FsPort.RunCommand.
const RunCommandTimeout = 30 * time.Second

// ReadFileResult is the typed return of the read_file tool.
type ReadFileResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Size    int    `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateFileResult is the typed return of the create_file tool.
type CreateFileResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Size    int    `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EditFileResult is the typed return of the edit_file tool.
type EditFileResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	ReplacedLength int    `json:"replaced_length,omitempty"`
	NewLength      int    `json:"new_length,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RunCommandResult is the typed return of the run_command tool.
type RunCommandResult struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
}

// FsPort is the filesystem/subprocess surface backing the ExecutorAgent's
// four fixed tools.
type FsPort interface {
	// ReadFile returns the full content of path.
	ReadFile(ctx context.Context, path string) (ReadFileResult, error)

	// CreateFile writes content to path, creating parent directories.
	CreateFile(ctx context.Context, path, content string) (CreateFileResult, error)

	// EditFile performs an exact single-occurrence replace of oldText with
	// newText in path; it fails if oldText is not present.
	EditFile(ctx context.Context, path, oldText, newText string) (EditFileResult, error)

	// RunCommand executes cmd in cwd (or the process's cwd if empty) under
	// RunCommandTimeout.
	RunCommand(ctx context.Context, cmd, cwd string) (RunCommandResult, error)
}
