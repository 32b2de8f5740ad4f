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

import "context"

// MemoryHandle is an opaque reference into the memory store. The core never
// interprets it; the store owns the underlying content.
type MemoryHandle string

// StoreRequest is the payload handed to MemoryPort.Store, matching the
// wire shape {content, namespace, importance, summary?, tags?}.
type StoreRequest struct {
	Content    string   `json:"content"`
	Namespace  string   `json:"namespace"`
	Importance int      `json:"importance"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// QueryRequest is a memory lookup. Namespace and Tags are both optional
// filters; an empty QueryRequest matches everything the store holds.
type QueryRequest struct {
	Namespace string
	Tags      []string
	Limit     int
}

// QueryResult is one matching memory, with a copy of its stored content so
// the caller does not need a second round-trip.
type QueryResult struct {
	Handle  MemoryHandle
	Content string
	Tags    []string
}

// MemoryPort is the opaque content-addressed store every agent writes
// durable memories to. namespace is colon-delimited, e.g.
// "project:agent-<id>".
type MemoryPort interface {
	Store(ctx context.Context, req StoreRequest) (MemoryHandle, error)
	Query(ctx context.Context, req QueryRequest) ([]QueryResult, error)
}
