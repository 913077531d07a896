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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/opcuatest"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

func TestDialRequiresDialer(t *testing.T) {
	_, err := Dial(context.Background(), "opc.tcp://localhost:4840")
	assert.ErrorIs(t, err, ErrNoDialer)
}

func TestDialError(t *testing.T) {
	boom := errors.New("refused")
	dialer := func(context.Context, string) (engine.Engine, error) { return nil, boom }
	_, err := Dial(context.Background(), "opc.tcp://nowhere", WithDialer(dialer))
	assert.ErrorIs(t, err, boom)
}

func TestReadWriteCall(t *testing.T) {
	s := newTestServer()
	method := ua.NewStringNodeID(2, "Plant.Double")
	s.HandleMethod(plantNode, method, "Double", func(args []ua.Variant) ([]ua.Variant, ua.StatusCode) {
		if len(args) != 1 {
			return nil, ua.StatusBadArgumentsMissing
		}
		return []ua.Variant{ua.MustVariant(args[0].Value.(float64) * 2)}, ua.StatusGood
	})
	c := newTestClient(t, s)
	ctx := testContext(t)

	dv, err := c.ReadValue(ctx, tempNode)
	require.NoError(t, err)
	assert.Equal(t, 20.0, dv.Interface())

	require.NoError(t, c.WriteValue(ctx, tempNode, ua.MustVariant(42.5)))
	dv, err = c.ReadValue(ctx, tempNode)
	require.NoError(t, err)
	assert.Equal(t, 42.5, dv.Interface())

	out, err := c.CallMethod(ctx, plantNode, method, ua.MustVariant(21.0))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 42.0, out[0].Value)

	_, err = c.CallMethod(ctx, plantNode, method)
	assert.True(t, IsStatusCode(err, ua.StatusBadArgumentsMissing))

	assert.Equal(t, int64(0), c.Metrics().Pending.Value())
	assert.Equal(t, int64(5), c.Metrics().RequestsTotal.Value())
}

func TestPerNodeErrors(t *testing.T) {
	c := newTestClient(t, newTestServer())
	ctx := testContext(t)

	_, err := c.ReadValue(ctx, ua.NewStringNodeID(2, "Missing"))
	assert.True(t, IsNodeIDUnknown(err))

	err = c.WriteValue(ctx, plantNode, ua.MustVariant(1.0))
	assert.True(t, IsNotWritable(err))

	results, err := c.Read(ctx, []ua.ReadValueID{
		{NodeID: tempNode, AttributeID: ua.AttributeValue},
		{NodeID: ua.NewStringNodeID(2, "Missing"), AttributeID: ua.AttributeValue},
	})
	require.NoError(t, err, "a bad node does not fail the batch")
	require.Len(t, results, 2)
	assert.True(t, results[0].StatusCode.IsGood())
	assert.Equal(t, ua.StatusBadNodeIdUnknown, results[1].StatusCode)

	_, err = c.Read(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	const n = 32
	s := opcuatest.NewServer()
	nodes := make([]ua.NodeID, n)
	for i := range nodes {
		nodes[i] = ua.NewNumericNodeID(2, uint32(1000+i))
		s.AddVariable(ua.ObjectsFolder, nodes[i], fmt.Sprintf("V%d", i), ua.MustVariant(int64(i)), false)
	}
	c := newTestClient(t, s)
	ctx := testContext(t)

	s.HoldCompletions(true)
	s.SetDeliveryOrder(opcuatest.OrderReverse)

	var wg sync.WaitGroup
	got := make([]interface{}, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dv, err := c.ReadValue(ctx, nodes[i])
			if err != nil {
				errs[i] = err
				return
			}
			got[i] = dv.Interface()
		}(i)
	}

	require.Eventually(t, func() bool { return s.RequestCount(ua.ServiceRead) == n }, waitFor, waitTick)
	s.HoldCompletions(false)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(i), got[i], "call %d", i)
	}
}

func TestAbandonedCallLeavesTableIntact(t *testing.T) {
	s := newTestServer()
	c := newTestClient(t, s)
	ctx := testContext(t)

	s.HoldCompletions(true)
	callCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadValue(callCtx, tempNode)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return s.RequestCount(ua.ServiceRead) == 1 }, waitFor, waitTick)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, int64(1), c.Metrics().Abandoned.Value())
	assert.Equal(t, int64(0), c.Metrics().Pending.Value())

	// The abandoned completion fires first and is discarded.
	s.HoldCompletions(false)
	dv, err := c.ReadValue(ctx, speedNode)
	require.NoError(t, err)
	assert.Equal(t, int32(100), dv.Interface())
}

func TestDisconnectWithOutstandingCalls(t *testing.T) {
	for _, outstanding := range []int{0, 1, 8} {
		t.Run(fmt.Sprint(outstanding), func(t *testing.T) {
			s := newTestServer()
			c := newTestClient(t, s)
			ctx := testContext(t)
			s.HoldCompletions(true)

			errCh := make(chan error, outstanding)
			for i := 0; i < outstanding; i++ {
				go func() {
					_, err := c.ReadValue(ctx, tempNode)
					errCh <- err
				}()
			}
			require.Eventually(t, func() bool { return s.RequestCount(ua.ServiceRead) == outstanding }, waitFor, waitTick)

			require.NoError(t, c.Disconnect(ctx))
			assert.Equal(t, StateDisconnected, c.State())
			assert.NoError(t, c.Err())

			for i := 0; i < outstanding; i++ {
				err := <-errCh
				assert.True(t, IsDisconnected(err), "got %v", err)
			}

			_, err := c.ReadValue(ctx, tempNode)
			assert.ErrorIs(t, err, ErrDisconnected)
			assert.NoError(t, c.Disconnect(ctx), "second disconnect")
		})
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	s := newTestServer()
	c := newTestClient(t, s)
	ctx := testContext(t)
	s.HoldCompletions(true)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadValue(ctx, tempNode)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return s.RequestCount(ua.ServiceRead) == 1 }, waitFor, waitTick)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, <-errCh, ErrDisconnected)
	assert.Zero(t, s.SessionCount())
	assert.Equal(t, int64(0), c.Metrics().Pending.Value())
}

func TestSubmitAfterCloseAndDisconnect(t *testing.T) {
	closed := newTestClient(t, newTestServer())
	require.NoError(t, closed.Close())
	_, err := closed.ReadValue(testContext(t), tempNode)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.True(t, IsDisconnected(err))

	gone := newTestClient(t, newTestServer())
	require.NoError(t, gone.Disconnect(testContext(t)))
	_, err = gone.ReadValue(testContext(t), tempNode)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.NotErrorIs(t, err, ErrClientClosed)
}

func TestServerClosesConnection(t *testing.T) {
	s := newTestServer()
	c := newTestClient(t, s)

	s.CloseSessions()
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("poll loop did not stop")
	}
	assert.NoError(t, c.Err())
	assert.False(t, c.IsConnected())
}

func TestFatalDriveStatus(t *testing.T) {
	s := newTestServer()
	capture := &logCapture{}
	c := newTestClient(t, s, WithLogger(slog.New(capture)))

	s.SetDriveFault(ua.StatusBadInternalError)
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("poll loop did not stop")
	}
	assert.True(t, IsStatusCode(c.Err(), ua.StatusBadInternalError))
	assert.Equal(t, 1, capture.count(slog.LevelError, "engine failure, stopping poll loop"))
}

func TestStateChanges(t *testing.T) {
	var mu sync.Mutex
	var states []ConnectionState
	record := func(s ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}
	c := newTestClient(t, newTestServer(), WithOnStateChange(record))
	require.NoError(t, c.Disconnect(testContext(t)))

	want := []ConnectionState{StateConnected, StateDisconnecting, StateDisconnected}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == len(want)
	}, waitFor, waitTick)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, states)
}

func TestStateCallbackReentersClient(t *testing.T) {
	var client atomic.Pointer[Client]
	reentered := make(chan error, 1)
	onState := func(s ConnectionState) {
		if s != StateDisconnected {
			return
		}
		c := client.Load()
		_ = c.Close()
		_, err := c.ReadValue(context.Background(), tempNode)
		reentered <- err
	}
	c := newTestClient(t, newTestServer(), WithOnStateChange(onState))
	client.Store(c)

	done := make(chan error, 1)
	go func() { done <- c.Disconnect(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("disconnect blocked on the state callback")
	}
	select {
	case err := <-reentered:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(waitFor):
		t.Fatal("state callback did not complete")
	}
}

func TestReadManyBatches(t *testing.T) {
	s := opcuatest.NewServer()
	var reads []ua.ReadValueID
	for i := 0; i < 7; i++ {
		id := ua.NewNumericNodeID(2, uint32(i+1))
		s.AddVariable(ua.ObjectsFolder, id, fmt.Sprintf("V%d", i), ua.MustVariant(int64(i)), false)
		reads = append(reads, ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeValue})
	}
	c := newTestClient(t, s, WithReadBatchSize(2))

	results, err := c.ReadMany(testContext(t), reads)
	require.NoError(t, err)
	require.Len(t, results, 7)
	for i, dv := range results {
		assert.Equal(t, int64(i), dv.Interface())
	}
	assert.Equal(t, 4, s.RequestCount(ua.ServiceRead))
}

func TestTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.trace")
	fl, err := trace.NewFileLogger(path)
	require.NoError(t, err)

	c := newTestClient(t, newTestServer(), WithTracer(fl))
	_, err = c.ReadValue(testContext(t), tempNode)
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(testContext(t)))
	require.NoError(t, fl.Close())

	r, err := trace.NewReader(path, trace.Filter{ConnectionID: c.ConnectionID()})
	require.NoError(t, err)
	defer r.Close()

	var kinds []trace.Kind
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, trace.KindSubmit)
	assert.Contains(t, kinds, trace.KindComplete)
	assert.Contains(t, kinds, trace.KindStateChange)
}

func TestSubmitFailure(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not connected status", ua.StatusBadServerNotConnected, IsNotConnected},
		{"connection end", ua.StatusBadConnectionClosed, IsDisconnected},
		{"engine error", errors.New("socket gone"), IsNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockEngine{}
			m.On("Drive", mock.Anything).Return(ua.StatusGood).Maybe()
			m.On("Submit", mock.Anything, mock.Anything).Return(engine.RequestID(0), tt.err)
			c := dialMock(t, m)

			_, err := c.ReadValue(testContext(t), tempNode)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Equal(t, int64(1), c.Metrics().SubmitFailures.Value())
			assert.Equal(t, int64(0), c.Metrics().Pending.Value())
		})
	}
}

// completeWith scripts Submit to complete synchronously with resp.
func completeWith(m *mockEngine, resp ua.Response, err error) {
	m.On("Submit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(engine.CompletionFunc)(resp, err)
	}).Return(engine.RequestID(7), nil)
}

func TestMalformedCompletions(t *testing.T) {
	tests := []struct {
		name  string
		resp  ua.Response
		check func(*testing.T, error)
	}{
		{"no response and no error", nil, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrProtocolViolation)
		}},
		{"wrong response type", &ua.WriteResponse{}, func(t *testing.T, err error) {
			var pe *ProtocolError
			assert.ErrorAs(t, err, &pe)
		}},
		{"result count mismatch", &ua.ReadResponse{}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrProtocolViolation)
		}},
		{"bad service result", &ua.ReadResponse{ResponseHeader: ua.ResponseHeader{ServiceResult: ua.StatusBadTimeout}}, func(t *testing.T, err error) {
			assert.True(t, IsTimeout(err))
			assert.ErrorIs(t, err, ua.StatusBadTimeout)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockEngine{}
			m.On("Drive", mock.Anything).Return(ua.StatusGood).Maybe()
			completeWith(m, tt.resp, nil)
			c := dialMock(t, m)

			_, err := c.ReadValue(testContext(t), tempNode)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestMissedCycles(t *testing.T) {
	m := &mockEngine{}
	m.On("Drive", mock.Anything).Run(func(mock.Arguments) {
		time.Sleep(5 * testPoll)
	}).Return(ua.StatusGood)
	capture := &logCapture{}
	c := dialMock(t, m, WithLogger(slog.New(capture)))

	require.Eventually(t, func() bool { return c.Metrics().MissedCycles.Value() >= 4 }, waitFor, waitTick)
	assert.Positive(t, capture.count(slog.LevelWarn, "poll cycle overran interval"))
}

func TestDisconnectTimeoutCloses(t *testing.T) {
	m := &mockEngine{}
	m.On("Drive", mock.Anything).Return(ua.StatusGood)
	m.On("Disconnect").Return(ua.StatusGood)
	c := dialMock(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Disconnect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDisconnected, c.State())
	m.AssertCalled(t, "Close")
}
