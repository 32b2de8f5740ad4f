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

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-project/mnemosyne/pkg/server"
)

func TestHealthz(t *testing.T) {
	srv := server.New(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEvents_AcceptAndList(t *testing.T) {
	srv := server.New(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := `{"agent_id":"exec-1","namespace":"project:agent-exec-1","state":"running"}`
	resp, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	hbs := srv.Heartbeats()
	require.Contains(t, hbs, "exec-1")
	assert.Equal(t, "running", hbs["exec-1"].State)
	assert.False(t, hbs["exec-1"].Timestamp.IsZero(), "missing timestamps are filled in")
}

func TestEvents_RejectsMissingAgentID(t *testing.T) {
	srv := server.New(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetrics_DisabledReturns503(t *testing.T) {
	srv := server.New(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEmitter_PostsHeartbeat(t *testing.T) {
	srv := server.New(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	em := server.NewEmitter(ts.URL, "worker-7", "project:agent-worker-7")
	em.State = func() string { return "utilization=0.10" }
	require.NoError(t, em.Emit(context.Background()))

	hbs := srv.Heartbeats()
	require.Contains(t, hbs, "worker-7")
	assert.Equal(t, "utilization=0.10", hbs["worker-7"].State)
	assert.Equal(t, "project:agent-worker-7", hbs["worker-7"].Namespace)
}
