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

package memstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/memstore"
	"github.com/mnemosyne-project/mnemosyne/pkg/ports"
)

func TestStoreAndQuery(t *testing.T) {
	s, err := memstore.Open("")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Store(ctx, ports.StoreRequest{
		Content: "checkpoint one", Namespace: "project:agent-orchestration",
		Importance: 10, Tags: []string{"checkpoint"},
	})
	require.NoError(t, err)
	_, err = s.Store(ctx, ports.StoreRequest{
		Content: "session note", Namespace: "session:abc", Importance: 3,
	})
	require.NoError(t, err)

	found, err := s.Query(ctx, ports.QueryRequest{Namespace: "project:"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "checkpoint one", found[0].Content)

	found, err = s.Query(ctx, ports.QueryRequest{Tags: []string{"checkpoint"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestQuery_NewestFirstWithLimit(t *testing.T) {
	s, err := memstore.Open("")
	require.NoError(t, err)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		_, err = s.Store(ctx, ports.StoreRequest{Content: content, Namespace: "global"})
		require.NoError(t, err)
	}

	found, err := s.Query(ctx, ports.QueryRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "third", found[0].Content)
	assert.Equal(t, "second", found[1].Content)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mnemosyne.db")
	ctx := context.Background()

	s, err := memstore.Open(path)
	require.NoError(t, err)
	h, err := s.Store(ctx, ports.StoreRequest{
		Content: "durable checkpoint", Namespace: "project:agent-orchestration",
		Tags: []string{"checkpoint"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := memstore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Count())

	found, err := reopened.Query(ctx, ports.QueryRequest{Tags: []string{"checkpoint"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, h, found[0].Handle)
	assert.Equal(t, "durable checkpoint", found[0].Content)
}
