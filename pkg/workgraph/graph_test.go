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

package workgraph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/errs"
	"github.com/mnemosyne-project/mnemosyne/pkg/workgraph"
)

func TestValidate_AcceptsAcyclicGraph(t *testing.T) {
	g := workgraph.NewGraph()
	g.AddTask("a", nil, nil)
	g.AddTask("b", []string{"a"}, nil)
	g.AddTask("c", []string{"a", "b"}, nil)

	require.NoError(t, g.Validate())
}

// A three-node cycle is rejected before any task starts.
func TestValidate_RejectsCycle(t *testing.T) {
	g := workgraph.NewGraph()
	g.AddTask("x", []string{"z"}, nil)
	g.AddTask("y", []string{"x"}, nil)
	g.AddTask("z", []string{"y"}, nil)

	err := g.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrValidation))
	require.Contains(t, err.Error(), "cycle")
}

func TestValidate_RejectsSelfDependency(t *testing.T) {
	g := workgraph.NewGraph()
	g.AddTask("a", []string{"a"}, nil)

	err := g.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrValidation))
}

func TestValidate_RejectsUnknownDependency(t *testing.T) {
	g := workgraph.NewGraph()
	g.AddTask("a", []string{"ghost"}, nil)

	err := g.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrValidation))
	require.Contains(t, err.Error(), "ghost")
}

func TestTasks_InsertionOrderPreserved(t *testing.T) {
	g := workgraph.NewGraph()
	for _, id := range []string{"m", "a", "z", "k"} {
		g.AddTask(id, nil, nil)
	}

	tasks := g.Tasks()
	require.Len(t, tasks, 4)
	require.Equal(t, "m", tasks[0].ID)
	require.Equal(t, "a", tasks[1].ID)
	require.Equal(t, "z", tasks[2].ID)
	require.Equal(t, "k", tasks[3].ID)
}
