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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/opcua-async/ua"
)

func TestCorrelationResolveOnce(t *testing.T) {
	var pending Counter
	table := newCorrelationTable(&pending)

	p := table.register(ua.ServiceRead)
	table.bind(p.token, 11)
	assert.Equal(t, 1, table.len())
	assert.Equal(t, int64(1), pending.Value())

	resp := &ua.ReadResponse{}
	assert.True(t, table.resolve(p.token, resp, nil))
	assert.False(t, table.resolve(p.token, resp, nil), "second completion is ignored")

	out := <-p.slot
	assert.Same(t, resp, out.resp)
	assert.Zero(t, table.len())
	assert.Zero(t, pending.Value())
}

func TestCorrelationForget(t *testing.T) {
	var pending Counter
	table := newCorrelationTable(&pending)

	abandoned := table.register(ua.ServiceRead)
	kept := table.register(ua.ServiceRead)
	assert.True(t, table.forget(abandoned.token))
	assert.False(t, table.resolve(abandoned.token, &ua.ReadResponse{}, nil))

	assert.True(t, table.resolve(kept.token, &ua.ReadResponse{}, nil))
	assert.False(t, table.forget(kept.token), "already resolved")
	assert.Zero(t, pending.Value())
}

func TestCorrelationFailAll(t *testing.T) {
	var pending Counter
	table := newCorrelationTable(&pending)

	calls := make([]*pendingCall, 5)
	for i := range calls {
		calls[i] = table.register(ua.ServiceWrite)
	}
	assert.Equal(t, 5, table.failAll(ErrDisconnected))
	for _, p := range calls {
		out := <-p.slot
		assert.ErrorIs(t, out.err, ErrDisconnected)
	}
	assert.Zero(t, pending.Value())
}

func TestCorrelationConcurrentTokens(t *testing.T) {
	var pending Counter
	table := newCorrelationTable(&pending)

	const n = 100
	tokens := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens <- table.register(ua.ServiceRead).token
		}()
	}
	wg.Wait()
	close(tokens)

	seen := map[uint64]bool{}
	for tok := range tokens {
		require.False(t, seen[tok], "token %d issued twice", tok)
		seen[tok] = true
	}
	assert.Equal(t, n, table.len())
}
