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
	"log/slog"
	"sync"
	"time"

	"github.com/edgeo-scada/opcua-async/ua"
)

// Pool keeps a fixed number of clients connected to one endpoint. Clients
// whose connection ended are closed and dialed again, either when they
// are handed out or by the periodic health check.
type Pool struct {
	endpoint string
	opts     *poolOptions
	clients  chan *Client
	mu       sync.Mutex
	closed   bool
	closeCh  chan struct{}
	wg       sync.WaitGroup
	metrics  *PoolMetrics
	logger   *slog.Logger
}

// NewPool dials the pool's clients. The client options must include a
// dialer.
func NewPool(ctx context.Context, endpoint string, opts ...PoolOption) (*Pool, error) {
	if endpoint == "" {
		return nil, errors.New("opcua: endpoint cannot be empty")
	}

	options := defaultPoolOptions()
	for _, opt := range opts {
		opt(options)
	}

	p := &Pool{
		endpoint: endpoint,
		opts:     options,
		clients:  make(chan *Client, options.size),
		closeCh:  make(chan struct{}),
		metrics:  NewPoolMetrics(),
		logger:   options.logger.With(slog.String("endpoint", endpoint)),
	}

	// Pre-create connections
	for i := 0; i < options.size; i++ {
		client, err := p.dial(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.clients <- client
		p.metrics.IdleConnections.Add(1)
	}

	p.wg.Add(1)
	go p.healthChecker()

	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*Client, error) {
	client, err := Dial(ctx, p.endpoint, p.opts.clientOpts...)
	if err != nil {
		return nil, err
	}
	p.metrics.TotalConnections.Add(1)
	p.metrics.ConnectionsCreated.Add(1)
	return client, nil
}

func (p *Pool) discard(client *Client) {
	client.Close()
	p.metrics.ConnectionsClosed.Add(1)
	p.metrics.TotalConnections.Add(-1)
}

// offer returns client to the idle set. It reports false if the pool is
// closed or already full.
func (p *Pool) offer(client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	select {
	case p.clients <- client:
		p.metrics.IdleConnections.Add(1)
		return true
	default:
		return false
	}
}

// Get retrieves a connected client from the pool, waiting for one to be
// returned if all are in use.
func (p *Pool) Get(ctx context.Context) (*PooledClient, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	start := time.Now()
	p.metrics.WaitCount.Add(1)

	var client *Client
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closeCh:
		return nil, ErrPoolClosed
	case c, ok := <-p.clients:
		if !ok {
			return nil, ErrPoolClosed
		}
		client = c
	}
	p.metrics.WaitDuration.Observe(time.Since(start))
	p.metrics.IdleConnections.Add(-1)

	if !client.IsConnected() {
		p.logger.Debug("replacing terminated client", slog.String("conn_id", client.ConnectionID()))
		p.discard(client)
		fresh, err := p.dial(ctx)
		if err != nil {
			return nil, err
		}
		client = fresh
	}

	p.metrics.ActiveConnections.Add(1)
	return &PooledClient{
		Client: client,
		pool:   p,
	}, nil
}

// Put returns a client to the pool.
func (p *Pool) Put(client *Client) {
	p.metrics.ActiveConnections.Add(-1)
	if !client.IsConnected() || !p.offer(client) {
		p.discard(client)
	}
}

// Close closes the pool and its idle clients. Clients in use are closed
// when they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	close(p.clients)
	p.mu.Unlock()

	p.wg.Wait()
	for client := range p.clients {
		p.metrics.IdleConnections.Add(-1)
		p.discard(client)
	}
	return nil
}

// Metrics returns the pool metrics.
func (p *Pool) Metrics() *PoolMetrics {
	return p.metrics
}

// Size returns the number of idle clients.
func (p *Pool) Size() int {
	return len(p.clients)
}

func (p *Pool) healthChecker() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.healthCheckFreq)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

// checkHealth replaces idle clients whose connection ended and dials
// clients lost by a failed replacement in Get.
func (p *Pool) checkHealth() {
	var toCheck []*Client
	for draining := true; draining; {
		select {
		case client, ok := <-p.clients:
			if !ok {
				return
			}
			p.metrics.IdleConnections.Add(-1)
			toCheck = append(toCheck, client)
		default:
			draining = false
		}
	}

	for _, client := range toCheck {
		if client.IsConnected() {
			if !p.offer(client) {
				p.discard(client)
			}
			continue
		}
		attrs := []interface{}{slog.String("conn_id", client.ConnectionID())}
		if err := client.Err(); err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		p.logger.Warn("pooled client terminated", attrs...)
		p.discard(client)
	}

	missing := p.opts.size - int(p.metrics.TotalConnections.Value())
	for i := 0; i < missing; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.dialTimeout)
		client, err := p.dial(ctx)
		cancel()
		if err != nil {
			p.logger.Error("failed to create replacement client", slog.String("error", err.Error()))
			return
		}
		if !p.offer(client) {
			p.discard(client)
		}
	}
}

// PooledClient wraps a Client with automatic return to pool.
type PooledClient struct {
	*Client
	pool     *Pool
	returned bool
	mu       sync.Mutex
}

// Close returns the client to the pool instead of closing it.
func (c *PooledClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.returned {
		return nil
	}
	c.returned = true
	c.pool.Put(c.Client)
	return nil
}

// Execute executes a function with the pooled client and automatically returns it.
func (p *Pool) Execute(ctx context.Context, fn func(*Client) error) error {
	client, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(client.Client)
}

// Read reads values using a pooled connection.
func (p *Pool) Read(ctx context.Context, nodesToRead []ua.ReadValueID) ([]ua.DataValue, error) {
	var results []ua.DataValue
	err := p.Execute(ctx, func(c *Client) error {
		var err error
		results, err = c.ReadMany(ctx, nodesToRead)
		return err
	})
	return results, err
}

// Write writes values using a pooled connection.
func (p *Pool) Write(ctx context.Context, nodesToWrite []ua.WriteValue) ([]ua.StatusCode, error) {
	var results []ua.StatusCode
	err := p.Execute(ctx, func(c *Client) error {
		var err error
		results, err = c.Write(ctx, nodesToWrite)
		return err
	})
	return results, err
}

// BrowseAll browses nodes to completion using a pooled connection.
func (p *Pool) BrowseAll(ctx context.Context, nodesToBrowse []ua.BrowseDescription) ([]BrowseNodeResult, error) {
	var results []BrowseNodeResult
	err := p.Execute(ctx, func(c *Client) error {
		var err error
		results, err = c.BrowseAll(ctx, nodesToBrowse)
		return err
	})
	return results, err
}
