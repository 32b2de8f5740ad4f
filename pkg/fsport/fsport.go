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

// Package fsport is the real-filesystem ports.FsPort backing the
// ExecutorAgent's four fixed tools: read/create/edit plus run_command via
// the shell under the 30s hard timeout. Tool failures are reported inside
// the result value, never as a Go error, so the LLM sees them in its
// tool-result block and may recover within the same loop.
package fsport

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
)

// Fs implements ports.FsPort over the real filesystem. Root, when set,
// anchors relative paths; absolute paths are used as given.
type Fs struct {
	Root string
}

var _ ports.FsPort = (*Fs)(nil)

// New creates an Fs rooted at the process working directory.
func New() *Fs { return &Fs{} }

func (f *Fs) abs(path string) string {
	if filepath.IsAbs(path) || f.Root == "" {
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

// CreateFile implements ports.FsPort, creating parent directories as
// needed.
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

// EditFile implements ports.FsPort's exact single-occurrence replace; it
// fails if oldText is not present.
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

// RunCommand implements ports.FsPort: the command runs through the shell
// in cwd (or the process cwd if empty) under ports.RunCommandTimeout; a
// sooner deadline or a cancellation already on ctx also stops it.
func (f *Fs) RunCommand(ctx context.Context, cmd, cwd string) (ports.RunCommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, ports.RunCommandTimeout)
	defer cancel()

	command := exec.CommandContext(runCtx, "sh", "-c", cmd)
	if cwd != "" {
		command.Dir = f.abs(cwd)
	} else if f.Root != "" {
		command.Dir = f.Root
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	result := ports.RunCommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Success = false
		result.ExitCode = -1
		result.Error = "command timed out after " + ports.RunCommandTimeout.String()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Success = false
		result.Error = err.Error()
	}
	return result, nil
}
