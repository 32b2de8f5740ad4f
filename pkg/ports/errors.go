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

import "errors"

// LlmPort implementations are expected to return errors satisfying one of
// these sentinels (via errors.Is) so the CircuitBreaker and ExecutorAgent
// can distinguish rate-limit/timeout/auth/transport failures.
var (
	ErrRateLimited    = errors.New("llm: rate limited")
	ErrLlmTimeout     = errors.New("llm: timeout")
	ErrUnauthorized   = errors.New("llm: unauthorized")
	ErrTransport      = errors.New("llm: transport error")
	ErrToolNotFound   = errors.New("fs: unknown tool")
	ErrOldTextMissing = errors.New("fs: old_text not found in file")
)
