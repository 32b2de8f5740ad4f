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

// Package memstore is a small file-backed ports.MemoryPort used by the
// CLI: an in-memory map with an append-only JSON-lines journal at the
// configured database path, reloaded on open. Production deployments plug
// in a real store; this one exists so a standalone agent process has
// durable checkpoints out of the box.
package memstore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
)

// record is one journaled memory.
type record struct {
	Handle    ports.MemoryHandle `json:"handle"`
	StoredAt  time.Time          `json:"stored_at"`
	Content   string             `json:"content"`
	Namespace string             `json:"namespace"`
	Important int                `json:"importance"`
	Summary   string             `json:"summary,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
}

// Store is the file-backed MemoryPort.
type Store struct {
	mu      sync.RWMutex
	path    string
	journal *os.File
	items   map[ports.MemoryHandle]record
	order   []ports.MemoryHandle
}

var _ ports.MemoryPort = (*Store)(nil)

// Open loads (or creates) the journal at path. An empty path yields a
// purely in-memory store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, items: make(map[ports.MemoryHandle]record)}
	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // a torn trailing write is not fatal
		}
		if _, dup := s.items[rec.Handle]; !dup {
			s.order = append(s.order, rec.Handle)
		}
		s.items[rec.Handle] = rec
	}
	if err := scanner.Err(); err != nil {
		_ = f.Close()
		return nil, err
	}

	if _, err := f.Seek(0, 2); err != nil {
		_ = f.Close()
		return nil, err
	}
	s.journal = f
	return s, nil
}

// Close flushes and closes the journal.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

// Store implements ports.MemoryPort.
func (s *Store) Store(_ context.Context, req ports.StoreRequest) (ports.MemoryHandle, error) {
	rec := record{
		Handle:    ports.MemoryHandle(uuid.NewString()),
		StoredAt:  time.Now().UTC(),
		Content:   req.Content,
		Namespace: req.Namespace,
		Important: req.Importance,
		Summary:   req.Summary,
		Tags:      req.Tags,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[rec.Handle] = rec
	s.order = append(s.order, rec.Handle)

	if s.journal != nil {
		line, err := json.Marshal(rec)
		if err != nil {
			return "", err
		}
		if _, err := s.journal.Write(append(line, '\n')); err != nil {
			return "", err
		}
	}
	return rec.Handle, nil
}

// Query implements ports.MemoryPort: namespace prefix match plus
// any-overlapping-tag match, newest first.
func (s *Store) Query(_ context.Context, req ports.QueryRequest) ([]ports.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ports.QueryResult
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.items[s.order[i]]
		if req.Namespace != "" && !strings.HasPrefix(rec.Namespace, req.Namespace) {
			continue
		}
		if len(req.Tags) > 0 && !tagsOverlap(req.Tags, rec.Tags) {
			continue
		}
		out = append(out, ports.QueryResult{Handle: rec.Handle, Content: rec.Content, Tags: rec.Tags})
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of memories held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func tagsOverlap(a, b []string) bool {
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
