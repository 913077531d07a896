// Copyright 2025 Edgeo SCADA
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

package opcua

import (
	"sync"
	"time"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/ua"
)

// outcome is what a completion slot carries.
type outcome struct {
	resp ua.Response
	err  error
}

// pendingCall is one outstanding request. slot has capacity one and
// receives at most one outcome.
type pendingCall struct {
	token     uint64
	requestID engine.RequestID
	service   ua.ServiceID
	started   time.Time
	slot      chan outcome
}

// correlationTable maps client tokens to pending calls. Completions look
// their call up by token, so a call abandoned by its caller is simply
// absent when its completion fires.
type correlationTable struct {
	mu      sync.Mutex
	next    uint64
	calls   map[uint64]*pendingCall
	pending *Counter
}

func newCorrelationTable(pending *Counter) *correlationTable {
	return &correlationTable{
		calls:   make(map[uint64]*pendingCall),
		pending: pending,
	}
}

func (t *correlationTable) register(svc ua.ServiceID) *pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	p := &pendingCall{
		token:   t.next,
		service: svc,
		started: time.Now(),
		slot:    make(chan outcome, 1),
	}
	t.calls[p.token] = p
	t.pending.Add(1)
	return p
}

func (t *correlationTable) bind(token uint64, id engine.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.calls[token]; ok {
		p.requestID = id
	}
}

// resolve delivers an outcome. It reports false if the call was already
// resolved, abandoned or failed.
func (t *correlationTable) resolve(token uint64, resp ua.Response, err error) bool {
	t.mu.Lock()
	p, ok := t.calls[token]
	if ok {
		delete(t.calls, token)
		t.pending.Add(-1)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.slot <- outcome{resp: resp, err: err}
	return true
}

// forget abandons a call. It reports false if the call had already been
// resolved, in which case its outcome is waiting in the slot.
func (t *correlationTable) forget(token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.calls[token]; !ok {
		return false
	}
	delete(t.calls, token)
	t.pending.Add(-1)
	return true
}

// failAll resolves every pending call with err and returns how many there
// were.
func (t *correlationTable) failAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[uint64]*pendingCall)
	t.pending.Add(-int64(len(calls)))
	t.mu.Unlock()

	for _, p := range calls {
		p.slot <- outcome{err: err}
	}
	return len(calls)
}

func (t *correlationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
