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
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/opcuatest"
	"github.com/edgeo-scada/opcua-async/ua"
)

const (
	testPoll    = time.Millisecond
	waitFor     = 2 * time.Second
	waitTick    = time.Millisecond
	testTimeout = 5 * time.Second
)

var (
	tempNode  = ua.NewStringNodeID(2, "Temp")
	speedNode = ua.NewStringNodeID(2, "Speed")
	plantNode = ua.NewStringNodeID(2, "Plant")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer returns a server with a Plant object holding two
// writable variables.
func newTestServer() *opcuatest.Server {
	s := opcuatest.NewServer()
	s.AddObject(ua.ObjectsFolder, plantNode, "Plant", true)
	s.AddVariable(plantNode, tempNode, "Temp", ua.MustVariant(20.0), true)
	s.AddVariable(plantNode, speedNode, "Speed", ua.MustVariant(int32(100)), true)
	return s
}

func newTestClient(t *testing.T, s *opcuatest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithDialer(s.Dial),
		WithPollInterval(testPoll),
		WithLogger(discardLogger()),
	}
	c, err := Dial(context.Background(), "opc.tcp://localhost:4840", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// logCapture is a slog.Handler that keeps every record.
type logCapture struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (h *logCapture) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r.Clone())
	h.mu.Unlock()
	return nil
}

func (h *logCapture) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logCapture) WithGroup(string) slog.Handler      { return h }

func (h *logCapture) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

// mockEngine is a scripted engine.Engine.
type mockEngine struct{ mock.Mock }

func (m *mockEngine) Submit(req ua.Request, done engine.CompletionFunc) (engine.RequestID, error) {
	args := m.Called(req, done)
	return args.Get(0).(engine.RequestID), args.Error(1)
}

func (m *mockEngine) SubmitMonitoredItems(req *ua.CreateMonitoredItemsRequest, handlers []engine.ItemHandler, done engine.CompletionFunc) (engine.RequestID, error) {
	args := m.Called(req, handlers, done)
	return args.Get(0).(engine.RequestID), args.Error(1)
}

func (m *mockEngine) Drive(timeout time.Duration) ua.StatusCode {
	return m.Called(timeout).Get(0).(ua.StatusCode)
}

func (m *mockEngine) Disconnect() ua.StatusCode {
	return m.Called().Get(0).(ua.StatusCode)
}

func (m *mockEngine) Close() error {
	return m.Called().Error(0)
}

func dialMock(t *testing.T, m *mockEngine, opts ...Option) *Client {
	t.Helper()
	m.On("Close").Return(nil).Maybe()
	dialer := func(context.Context, string) (engine.Engine, error) { return m, nil }
	base := []Option{
		WithDialer(dialer),
		WithPollInterval(testPoll),
		WithLogger(discardLogger()),
	}
	c, err := Dial(context.Background(), "opc.tcp://mock", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
