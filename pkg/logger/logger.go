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

// Package logger configures slog for the orchestration engine: a compact
// text handler that hoists the engine's conventional keys (agent, work
// item, phase) to the front of each line, and that quiets records
// emitted from outside this module unless debug logging is on. Library
// code logs through slog as usual; only the process entry point calls
// Setup.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

const modulePrefix = "github.com/mnemosyne-project/mnemosyne"

// Conventional attribute keys the engine logs under. The handler pulls
// these ahead of any other attributes so lines about the same agent or
// work item align visually.
const (
	KeyAgent    = "agent_id"
	KeyWorkItem = "work_item"
	KeyPhase    = "phase"
)

var hoistedKeys = []string{KeyAgent, KeyWorkItem, KeyPhase}

// ParseLevel maps a config string onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn, or error)", s)
	}
}

// Setup parses levelStr, opens filePath for appending (stderr when
// empty), installs the engine handler as the slog default, and returns a
// cleanup func that closes the log file.
func Setup(levelStr, filePath string) (func(), error) {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	cleanup := func() {}
	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
		cleanup = func() { _ = f.Close() }
	}

	slog.SetDefault(slog.New(NewHandler(w, level)))
	return cleanup, nil
}

// ForAgent returns a logger pre-tagged with the agent's id.
func ForAgent(id string) *slog.Logger {
	return slog.Default().With(KeyAgent, id)
}

// ForWorkItem returns a logger pre-tagged with a work item's id and
// phase.
func ForWorkItem(id, phase string) *slog.Logger {
	return slog.Default().With(KeyWorkItem, id, KeyPhase, phase)
}

// Handler is the engine's slog.Handler. One line per record:
//
//	15:04:05.000 INFO  agent_id=exec-1 phase=implementation work item complete
//
// Records emitted from outside this module are dropped below WARN unless
// the handler level is DEBUG, so chatty dependencies cannot drown the
// engine's own output.
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

// NewHandler creates a Handler writing to w at the given minimum level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	if h.level > slog.LevelDebug && rec.Level < slog.LevelWarn && !fromThisModule(rec.PC) {
		return nil
	}

	hoisted := make(map[string]slog.Value, len(hoistedKeys))
	var rest []slog.Attr
	collect := func(a slog.Attr) {
		for _, key := range hoistedKeys {
			if a.Key == key {
				hoisted[key] = a.Value
				return
			}
		}
		rest = append(rest, a)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	var b strings.Builder
	b.WriteString(rec.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(rec.Level))
	for _, key := range hoistedKeys {
		if v, ok := hoisted[key]; ok {
			b.WriteByte(' ')
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(v.String())
		}
	}
	b.WriteByte(' ')
	b.WriteString(rec.Message)
	for _, a := range rest {
		b.WriteByte(' ')
		if h.group != "" {
			b.WriteString(h.group)
			b.WriteByte('.')
		}
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN "
	case l >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

// fromThisModule reports whether the record was emitted by code in this
// module, judged by the emitting function's fully qualified name. An
// unknown PC counts as ours so nothing important is silently dropped.
func fromThisModule(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.Function == "" {
		return true
	}
	return strings.HasPrefix(frame.Function, modulePrefix) ||
		strings.HasPrefix(frame.Function, "main.")
}
