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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/opcua-async/opcuatest"
	"github.com/edgeo-scada/opcua-async/ua"
)

func newTestPool(t *testing.T, s *opcuatest.Server, opts ...PoolOption) *Pool {
	t.Helper()
	base := []PoolOption{
		WithPoolLogger(discardLogger()),
		WithClientOptions(
			WithDialer(s.Dial),
			WithPollInterval(testPoll),
			WithLogger(discardLogger()),
		),
	}
	p, err := NewPool(testContext(t), "opc.tcp://localhost:4840", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoolRead(t *testing.T) {
	s := newTestServer()
	p := newTestPool(t, s, WithPoolSize(2))
	assert.Equal(t, 2, s.SessionCount())
	assert.Equal(t, 2, p.Size())

	results, err := p.Read(testContext(t), []ua.ReadValueID{
		{NodeID: tempNode, AttributeID: ua.AttributeValue},
		{NodeID: speedNode, AttributeID: ua.AttributeValue},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 20.0, results[0].Interface())
	assert.Equal(t, int32(100), results[1].Interface())

	stats := p.Metrics().Collect()
	assert.Equal(t, int64(2), stats["idle_connections"])
	assert.Equal(t, int64(0), stats["active_connections"])
}

func TestPoolGetWaitsForIdleClient(t *testing.T) {
	s := newTestServer()
	p := newTestPool(t, s, WithPoolSize(1))

	held, err := p.Get(testContext(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Close())
	require.NoError(t, held.Close(), "second close is a no-op")

	again, err := p.Get(testContext(t))
	require.NoError(t, err)
	assert.Same(t, held.Client, again.Client)
	again.Close()
}

func TestPoolReplacesClientOnGet(t *testing.T) {
	s := newTestServer()
	p := newTestPool(t, s, WithPoolSize(1), WithHealthCheckFrequency(time.Hour))

	var first *Client
	require.NoError(t, p.Execute(testContext(t), func(c *Client) error {
		first = c
		return nil
	}))

	s.CloseSessions()
	require.Eventually(t, func() bool { return !first.IsConnected() }, waitFor, waitTick)

	var second *Client
	require.NoError(t, p.Execute(testContext(t), func(c *Client) error {
		second = c
		_, err := c.ReadValue(testContext(t), tempNode)
		return err
	}))
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), p.Metrics().ConnectionsCreated.Value())
	assert.Equal(t, int64(1), p.Metrics().ConnectionsClosed.Value())
}

func TestPoolHealthCheckReplacesTerminatedClients(t *testing.T) {
	s := newTestServer()
	p := newTestPool(t, s, WithPoolSize(2), WithHealthCheckFrequency(5*time.Millisecond))

	s.CloseSessions()
	require.Eventually(t, func() bool {
		return p.Metrics().ConnectionsCreated.Value() == 4
	}, waitFor, waitTick)
	require.Eventually(t, func() bool { return s.SessionCount() == 2 }, waitFor, waitTick)

	_, err := p.Read(testContext(t), []ua.ReadValueID{{NodeID: tempNode, AttributeID: ua.AttributeValue}})
	assert.NoError(t, err)
}

func TestPoolClose(t *testing.T) {
	s := newTestServer()
	p := newTestPool(t, s, WithPoolSize(3))

	held, err := p.Get(testContext(t))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, s.SessionCount(), "client in use stays open")

	_, err = p.Get(testContext(t))
	assert.ErrorIs(t, err, ErrPoolClosed)

	held.Close()
	assert.Zero(t, s.SessionCount())
	assert.Zero(t, p.Metrics().TotalConnections.Value())
}

func TestNewPoolDialFailure(t *testing.T) {
	_, err := NewPool(context.Background(), "opc.tcp://localhost:4840", WithPoolLogger(discardLogger()))
	assert.ErrorIs(t, err, ErrNoDialer)

	_, err = NewPool(context.Background(), "")
	assert.Error(t, err)
}
