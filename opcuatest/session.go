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
package opcuatest

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/ua"
)

type sessionState int

const (
	sessionOpen sessionState = iota
	sessionDisconnecting
	sessionClosed
)

// delivery is a queued callback. Completions are distinguished because
// they are subject to holding and reordering.
type delivery struct {
	completion bool
	fire       func()
}

// Session is an engine.Engine bound to a Server. Submit and the other
// methods must be called from a single goroutine; the server may queue
// notifications from any goroutine.
type Session struct {
	srv *Server

	mu        sync.Mutex
	state     sessionState
	endStatus ua.StatusCode
	queue     []delivery
	held      []delivery
	nextID    engine.RequestID

	cps map[string]*continuationPoint // guarded by srv.mu
}

var _ engine.Engine = (*Session)(nil)

func newSession(srv *Server) *Session {
	return &Session{
		srv: srv,
		cps: make(map[string]*continuationPoint),
	}
}

func (e *Session) accept() (engine.RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != sessionOpen {
		return 0, ua.StatusBadServerNotConnected
	}
	e.nextID++
	return e.nextID, nil
}

// Submit implements engine.Engine.
func (e *Session) Submit(req ua.Request, done engine.CompletionFunc) (engine.RequestID, error) {
	if _, ok := req.(*ua.CreateMonitoredItemsRequest); ok {
		return 0, fmt.Errorf("opcuatest: CreateMonitoredItems must go through SubmitMonitoredItems")
	}
	id, err := e.accept()
	if err != nil {
		return 0, err
	}
	if !e.srv.handle(e, req, done) {
		return 0, ua.StatusBadServiceUnsupported
	}
	return id, nil
}

// SubmitMonitoredItems implements engine.Engine.
func (e *Session) SubmitMonitoredItems(req *ua.CreateMonitoredItemsRequest, handlers []engine.ItemHandler, done engine.CompletionFunc) (engine.RequestID, error) {
	if len(handlers) != len(req.ItemsToCreate) {
		return 0, fmt.Errorf("opcuatest: %d handlers for %d items", len(handlers), len(req.ItemsToCreate))
	}
	id, err := e.accept()
	if err != nil {
		return 0, err
	}
	e.srv.handleItems(e, req, handlers, done)
	return id, nil
}

// Drive fires every queued callback. Completions are held or reordered
// according to the server settings. The timeout is ignored: queued work
// is already due and there is no I/O to wait for.
func (e *Session) Drive(timeout time.Duration) ua.StatusCode {
	order, hold, fault := e.srv.settings()
	if fault.IsBad() {
		return fault
	}

	e.mu.Lock()
	if e.state == sessionClosed {
		status := e.endStatus
		e.mu.Unlock()
		return status
	}
	var completions, others []delivery
	for _, d := range e.queue {
		if d.completion {
			completions = append(completions, d)
		} else {
			others = append(others, d)
		}
	}
	e.queue = nil
	if hold {
		e.held = append(e.held, completions...)
		completions = nil
	} else {
		completions = append(e.held, completions...)
		e.held = nil
	}
	ending := e.state == sessionDisconnecting
	if ending {
		e.state = sessionClosed
		e.endStatus = ua.StatusBadDisconnect
		e.held = nil
	}
	e.mu.Unlock()

	if order == OrderReverse {
		slices.Reverse(completions)
	}
	for _, d := range completions {
		d.fire()
	}
	for _, d := range others {
		d.fire()
	}

	if ending {
		return ua.StatusBadDisconnect
	}
	return ua.StatusGood
}

// Disconnect starts a graceful shutdown. Callbacks already queued fire on
// the next Drive, which then reports StatusBadDisconnect. Held
// completions never fire.
func (e *Session) Disconnect() ua.StatusCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case sessionOpen:
		e.state = sessionDisconnecting
		return ua.StatusGood
	case sessionDisconnecting:
		return ua.StatusGood
	default:
		return e.endStatus
	}
}

// Close releases the session immediately. Queued callbacks are dropped.
func (e *Session) Close() error {
	e.terminate(ua.StatusBadConnectionClosed)
	return nil
}

func (e *Session) terminate(status ua.StatusCode) {
	e.mu.Lock()
	if e.state != sessionClosed {
		e.state = sessionClosed
		e.endStatus = status
	}
	e.queue = nil
	e.held = nil
	e.mu.Unlock()
	e.srv.detach(e)
}

func (e *Session) enqueue(d delivery) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == sessionClosed {
		return
	}
	e.queue = append(e.queue, d)
}

func (e *Session) enqueueCompletion(resp ua.Response, done engine.CompletionFunc) {
	e.enqueue(delivery{completion: true, fire: func() { done(resp, nil) }})
}

func (e *Session) enqueueDataChange(w *watch, v ua.DataValue) {
	fn := w.handler.DataChange
	if fn == nil {
		return
	}
	e.enqueue(delivery{fire: func() { fn(w.subID, w.itemID, v) }})
}

func (e *Session) enqueueEvent(w *watch, fields []ua.Variant) {
	fn := w.handler.Event
	if fn == nil {
		return
	}
	fields = slices.Clone(fields)
	e.enqueue(delivery{fire: func() { fn(w.subID, w.itemID, fields) }})
}

func (e *Session) enqueueDeleted(w *watch) {
	fn := w.handler.Deleted
	if fn == nil {
		return
	}
	e.enqueue(delivery{fire: func() { fn(w.subID, w.itemID) }})
}
