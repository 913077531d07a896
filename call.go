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
	"log/slog"
	"time"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

// call submits req and waits for its response. A bad ServiceResult in
// the response header is returned as a *ServiceError.
func (c *Client) call(ctx context.Context, req ua.Request) (ua.Response, error) {
	return c.roundTrip(ctx, &op{kind: opSubmit, req: req})
}

// roundTrip registers a completion slot, submits o through the poll loop
// and waits on the slot. o.done is filled in here.
func (c *Client) roundTrip(ctx context.Context, o *op) (ua.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := o.req
	if o.kind == opSubmitItems {
		req = o.items
	}
	svc := req.ServiceID()
	c.stamp(req)

	p := c.pending.register(svc)
	c.metrics.RequestsTotal.Add(1)
	o.done = c.completion(p)

	id, err := c.submit(o)
	if err != nil {
		c.pending.forget(p.token)
		c.metrics.SubmitFailures.Add(1)
		c.traceEvent(trace.Event{Kind: trace.KindSubmitFailed, Service: svc.String(), Message: err.Error()})
		c.logger.Debug("submit failed",
			slog.String("service", svc.String()),
			slog.String("error", err.Error()))
		return nil, err
	}
	c.pending.bind(p.token, id)
	c.traceEvent(trace.Event{Kind: trace.KindSubmit, Service: svc.String(), RequestID: uint32(id)})

	return c.await(ctx, p, id)
}

// completion builds the callback the engine fires from the poll loop.
// Delivery is best effort: the caller may have given up already.
func (c *Client) completion(p *pendingCall) engine.CompletionFunc {
	return func(resp ua.Response, err error) {
		if err == nil && resp != nil {
			if sr := resp.Header().ServiceResult; sr.IsBad() {
				err = NewServiceError(p.service, sr, "")
				resp = nil
			}
		}
		if !c.pending.resolve(p.token, resp, err) {
			c.logger.Debug("completion for abandoned request",
				slog.String("service", p.service.String()))
		}
	}
}

func (c *Client) await(ctx context.Context, p *pendingCall, id engine.RequestID) (ua.Response, error) {
	var out outcome
	select {
	case out = <-p.slot:
	case <-ctx.Done():
		if c.pending.forget(p.token) {
			c.metrics.Abandoned.Add(1)
			c.traceEvent(trace.Event{Kind: trace.KindAbandoned, Service: p.service.String(), RequestID: uint32(id)})
			return nil, ctx.Err()
		}
		// Resolved while we were giving up.
		out = <-p.slot
	}

	elapsed := time.Since(p.started)
	if out.resp == nil && out.err == nil {
		out.err = protocolErrorf(p.service.String(), "completion carried neither response nor error")
	}
	c.metrics.observe(p.service, elapsed, out.err)

	ev := trace.Event{Kind: trace.KindComplete, Service: p.service.String(), RequestID: uint32(id), Duration: elapsed}
	if out.resp != nil {
		ev.Status = uint32(out.resp.Header().ServiceResult)
	} else {
		ev.Message = out.err.Error()
	}
	c.traceEvent(ev)

	return out.resp, out.err
}

// invoke is call with the response asserted to the expected type.
func invoke[T ua.Response](ctx context.Context, c *Client, req ua.Request) (T, error) {
	var zero T
	resp, err := c.call(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, protocolErrorf(req.ServiceID().String(), "unexpected response type %T", resp)
	}
	return typed, nil
}

// checkResults verifies a result list matches its request list.
func checkResults(svc ua.ServiceID, want, got int) error {
	if want != got {
		return protocolErrorf(svc.String(), "%d results for %d operations", got, want)
	}
	return nil
}

// fireAndForget submits req without waiting for its response. Failures
// are only logged. It is used by Close methods, which must not block on
// the server.
func (c *Client) fireAndForget(req ua.Request) {
	if !c.IsConnected() {
		return
	}
	svc := req.ServiceID()
	c.stamp(req)

	o := &op{kind: opSubmit, req: req}
	o.done = func(resp ua.Response, err error) {
		if err == nil && resp != nil {
			if sr := resp.Header().ServiceResult; sr.IsBad() {
				err = NewServiceError(svc, sr, "")
			} else {
				err = firstBadResult(svc, resp)
			}
		}
		if err != nil {
			c.logger.Warn("background request failed",
				slog.String("service", svc.String()),
				slog.String("error", err.Error()))
		}
	}

	c.metrics.RequestsTotal.Add(1)
	id, err := c.submit(o)
	if err != nil {
		c.metrics.SubmitFailures.Add(1)
		c.logger.Warn("background submit failed",
			slog.String("service", svc.String()),
			slog.String("error", err.Error()))
		return
	}
	c.traceEvent(trace.Event{Kind: trace.KindSubmit, Service: svc.String(), RequestID: uint32(id)})
}

// firstBadResult returns the first bad per-operation status of a delete
// or release response.
func firstBadResult(svc ua.ServiceID, resp ua.Response) error {
	var results []ua.StatusCode
	switch r := resp.(type) {
	case *ua.DeleteSubscriptionsResponse:
		results = r.Results
	case *ua.DeleteMonitoredItemsResponse:
		results = r.Results
	case *ua.BrowseNextResponse:
		for _, br := range r.Results {
			results = append(results, br.StatusCode)
		}
	}
	for _, sc := range results {
		if sc.IsBad() {
			return NewServiceError(svc, sc, "")
		}
	}
	return nil
}
