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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

type opKind int

const (
	opSubmit opKind = iota
	opSubmitItems
	opDisconnect
)

// op is a request for the poll loop to touch the engine on behalf of a
// caller goroutine.
type op struct {
	kind     opKind
	req      ua.Request
	items    *ua.CreateMonitoredItemsRequest
	handlers []engine.ItemHandler
	done     engine.CompletionFunc
	reply    chan opResult
}

type opResult struct {
	id  engine.RequestID
	err error
}

// submit hands o to the poll loop and returns the engine's verdict. It
// fails with ErrDisconnected once the loop has terminated, or with
// ErrClientClosed after Close.
func (c *Client) submit(o *op) (engine.RequestID, error) {
	o.reply = make(chan opResult, 1)
	select {
	case c.ops <- o:
	case <-c.doneCh:
		if c.closed.Load() {
			return 0, ErrClientClosed
		}
		return 0, ErrDisconnected
	}
	r := <-o.reply
	return r.id, r.err
}

// run is the poll loop. It owns the engine for the lifetime of the
// client.
func (c *Client) run() {
	defer close(c.doneCh)

	interval := c.opts.pollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.logger.Debug("poll loop stopped")
			c.finish(nil)
			return

		case o := <-c.ops:
			o.reply <- c.exec(o)

		case <-ticker.C:
			start := time.Now()
			status := c.eng.Drive(0)
			elapsed := time.Since(start)
			c.metrics.PollCycles.Add(1)

			if missed := int64(elapsed / interval); missed > 0 {
				c.metrics.MissedCycles.Add(missed)
				c.logger.Warn("poll cycle overran interval",
					slog.Int64("missed", missed),
					slog.Duration("elapsed", elapsed))
			}

			if !status.IsBad() {
				continue
			}
			if status.IsConnectionEnd() {
				c.logger.Info("connection closed", slog.String("status", status.String()))
				c.finish(nil)
				return
			}
			c.logger.Error("engine failure, stopping poll loop", slog.String("status", status.String()))
			c.traceEvent(trace.Event{Kind: trace.KindPollFault, Status: uint32(status)})
			c.finish(NewServiceError(0, status, "poll"))
			return
		}
	}
}

func (c *Client) exec(o *op) opResult {
	switch o.kind {
	case opSubmit:
		id, err := c.eng.Submit(o.req, o.done)
		return opResult{id: id, err: submitError(o.req.ServiceID(), err)}
	case opSubmitItems:
		id, err := c.eng.SubmitMonitoredItems(o.items, o.handlers, o.done)
		return opResult{id: id, err: submitError(ua.ServiceCreateMonitoredItems, err)}
	case opDisconnect:
		status := c.eng.Disconnect()
		if status.IsBad() && !status.IsConnectionEnd() {
			return opResult{err: NewServiceError(0, status, "disconnect")}
		}
		return opResult{}
	default:
		return opResult{err: fmt.Errorf("opcua: unknown op %d", o.kind)}
	}
}

func submitError(svc ua.ServiceID, err error) error {
	if err == nil {
		return nil
	}
	var sc ua.StatusCode
	if errors.As(err, &sc) {
		if sc.IsConnectionEnd() {
			return fmt.Errorf("%w: %w", ErrDisconnected, NewServiceError(svc, sc, "submit"))
		}
		return NewServiceError(svc, sc, "submit")
	}
	return fmt.Errorf("%w: %s: %w", ErrNotConnected, svc, err)
}

// finish runs on the poll loop goroutine after its last engine drive. It
// releases the engine, fails outstanding calls and closes every
// notification channel still open.
func (c *Client) finish(cause error) {
	if err := c.eng.Close(); err != nil {
		c.logger.Debug("engine close", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	c.termErr = cause
	c.mu.Unlock()

	if n := c.pending.failAll(ErrDisconnected); n > 0 {
		c.logger.Debug("failed outstanding requests", slog.Int("count", n))
	}
	for _, item := range c.registry.drain() {
		c.releaseItem(item)
	}
	c.subscriptions.Range(func(key, value interface{}) bool {
		c.subscriptions.Delete(key)
		c.metrics.ActiveSubscriptions.Add(-1)
		return true
	})

	c.setState(StateDisconnected)
	c.logger.Info("disconnected")
}
