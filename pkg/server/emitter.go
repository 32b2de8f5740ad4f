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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HeartbeatInterval is how often a running agent process emits a
// Heartbeat to its api-url.
const HeartbeatInterval = 10 * time.Second

// Emitter posts Heartbeat events to {api-url}/events for one agent
// process.
type Emitter struct {
	APIURL    string
	AgentID   string
	Namespace string
	State     func() string // optional; reported verbatim when set

	client *http.Client
}

// NewEmitter creates an Emitter against apiURL.
func NewEmitter(apiURL, agentID, namespace string) *Emitter {
	return &Emitter{
		APIURL:    strings.TrimRight(apiURL, "/"),
		AgentID:   agentID,
		Namespace: namespace,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Emit posts one heartbeat now.
func (e *Emitter) Emit(ctx context.Context) error {
	hb := Heartbeat{
		AgentID:   e.AgentID,
		Namespace: e.Namespace,
		Timestamp: time.Now().UTC(),
	}
	if e.State != nil {
		hb.State = e.State()
	}

	body, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.APIURL+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Run emits a heartbeat every HeartbeatInterval until ctx is cancelled.
// Emission failures are logged and do not stop the loop; the receiver may
// simply not be up yet.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		if err := e.Emit(ctx); err != nil && ctx.Err() == nil {
			slog.Debug("heartbeat emission failed", "agent_id", e.AgentID, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
