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

// Package opcua provides an asynchronous OPC UA client runtime on top of a
// single-threaded protocol engine.
//
// A Client owns one engine and one background poll loop. The loop is the
// only goroutine that touches the engine: it drives network I/O on a
// fixed interval and fires request completions and monitored item
// notifications. Any number of goroutines may issue service calls, create
// subscriptions and drain notification channels concurrently.
package opcua

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

// ConnectionState represents the state of a client connection.
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateDisconnecting
	StateDisconnected
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client is a connection to one OPC UA server.
type Client struct {
	endpoint string
	connID   string
	opts     *clientOptions

	eng    engine.Engine // poll loop only
	ops    chan *op
	stopCh chan struct{}
	doneCh chan struct{}
	stop   sync.Once
	closed atomic.Bool

	mu      sync.Mutex
	state   ConnectionState
	termErr error
	states  chan ConnectionState // nil without a state callback

	pending       *correlationTable
	registry      *itemRegistry
	subscriptions sync.Map // uint32 -> *Subscription
	handles       atomic.Uint32
	requestHandle atomic.Uint32

	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Logger
}

// Dial connects to endpoint through the configured dialer and starts the
// poll loop.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.dialer == nil {
		return nil, ErrNoDialer
	}

	connID := uuid.NewString()
	logger := options.logger.With(
		slog.String("conn_id", connID),
		slog.String("endpoint", endpoint),
	)

	logger.Debug("connecting")
	eng, err := options.dialer(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("opcua: dial %s: %w", endpoint, err)
	}

	c := &Client{
		endpoint: endpoint,
		connID:   connID,
		opts:     options,
		eng:      eng,
		ops:      make(chan *op),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		state:    StateConnected,
		metrics:  NewMetrics(),
		logger:   logger,
		tracer:   options.tracer,
	}
	c.pending = newCorrelationTable(&c.metrics.Pending)
	c.registry = newItemRegistry()
	if options.onStateChange != nil {
		// One slot per state: each is entered at most once.
		c.states = make(chan ConnectionState, 3)
		c.states <- StateConnected
		go c.dispatchStates()
	}

	go c.run()

	c.logger.Info("connected", slog.Duration("poll_interval", options.pollInterval))
	c.traceEvent(trace.Event{Kind: trace.KindStateChange, State: StateConnected.String()})
	return c, nil
}

// dispatchStates runs the state callback in transition order, off the
// poll loop, so the callback may call back into the client.
func (c *Client) dispatchStates() {
	for s := range c.states {
		c.opts.onStateChange(s)
	}
}

// Disconnect closes the connection gracefully. It asks the engine to
// disconnect and waits for the poll loop to finish. Calls still
// outstanding when the loop ends fail with ErrDisconnected. If ctx
// expires first the client is closed abruptly.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return c.wait(ctx)
	}
	c.mu.Unlock()
	c.setState(StateDisconnecting)

	c.logger.Debug("disconnecting", slog.Int("pending", c.pending.len()))

	o := &op{kind: opDisconnect}
	if _, err := c.submit(o); err != nil && !IsDisconnected(err) {
		c.logger.Warn("engine disconnect failed, closing", slog.String("error", err.Error()))
		c.abort()
	}
	return c.wait(ctx)
}

func (c *Client) wait(ctx context.Context) error {
	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		c.logger.Warn("disconnect timed out, closing")
		c.abort()
		<-c.doneCh
		return ctx.Err()
	}
}

// Close tears the connection down immediately: the poll loop is stopped
// at its next wait point and the engine is released synchronously.
// Outstanding calls fail with ErrDisconnected.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.abort()
	<-c.doneCh
	return nil
}

func (c *Client) abort() {
	c.stop.Do(func() { close(c.stopCh) })
}

// Done is closed once the poll loop has terminated.
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the reason the poll loop terminated, or nil while it runs
// and after an orderly end.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termErr
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Endpoint returns the server endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ConnectionID returns the unique id of this connection, as used in logs
// and traces.
func (c *Client) ConnectionID() string {
	return c.connID
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	if c.state == s || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = s
	if c.states != nil {
		c.states <- s
		if s == StateDisconnected {
			close(c.states)
		}
	}
	c.mu.Unlock()

	c.traceEvent(trace.Event{Kind: trace.KindStateChange, State: s.String()})
}

func (c *Client) traceEvent(ev trace.Event) {
	ev.Timestamp = time.Now()
	ev.ConnectionID = c.connID
	c.tracer.Log(ev)
}

func (c *Client) nextHandle() uint32 {
	return c.handles.Add(1)
}

func (c *Client) stamp(req ua.Request) {
	h := req.Header()
	h.Timestamp = time.Now()
	h.RequestHandle = c.requestHandle.Add(1)
	if h.TimeoutHint == 0 {
		h.TimeoutHint = c.opts.timeoutHint
	}
}
