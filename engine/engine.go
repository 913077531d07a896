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

// Package engine defines the contract between the client runtime and a
// callback-driven OPC UA protocol engine.
//
// An Engine is not safe for concurrent use. The client runtime confines
// every call on an Engine to a single goroutine, and every callback
// registered with the Engine is invoked on that same goroutine from
// within Drive.
package engine

import (
	"context"
	"time"

	"github.com/edgeo-scada/opcua-async/ua"
)

// RequestID identifies a request submitted to an engine.
type RequestID uint32

// CompletionFunc receives the outcome of a submitted request. Exactly one
// of resp and err is non-nil. It is called at most once.
type CompletionFunc func(resp ua.Response, err error)

// NotificationKind is the kind of notifications a monitored item receives.
type NotificationKind uint8

// Notification kinds.
const (
	KindDataChange NotificationKind = iota
	KindEvent
)

// String returns the kind name.
func (k NotificationKind) String() string {
	switch k {
	case KindDataChange:
		return "datachange"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ItemHandler bundles the per-item callbacks registered at creation.
// Only the entry matching Kind is invoked for notifications. Deleted is
// invoked once when the server side of the item goes away, either
// explicitly or because the connection ended.
type ItemHandler struct {
	Kind       NotificationKind
	DataChange func(subID, itemID uint32, v ua.DataValue)
	Event      func(subID, itemID uint32, fields []ua.Variant)
	Deleted    func(subID, itemID uint32)
}

// Engine is a single-threaded protocol engine.
type Engine interface {
	// Submit queues a service request. done is invoked from a later Drive.
	Submit(req ua.Request, done CompletionFunc) (RequestID, error)

	// SubmitMonitoredItems queues a CreateMonitoredItems request with one
	// handler per item, in request order. Handlers of items the server
	// rejects are discarded.
	SubmitMonitoredItems(req *ua.CreateMonitoredItemsRequest, handlers []ItemHandler, done CompletionFunc) (RequestID, error)

	// Drive processes network traffic and pending callbacks for at most
	// timeout. A bad status ends the engine's usefulness.
	Drive(timeout time.Duration) ua.StatusCode

	// Disconnect requests an orderly close. Completions and deletion
	// callbacks may still fire from subsequent Drive calls, which then
	// report a connection-end status.
	Disconnect() ua.StatusCode

	// Close releases the engine immediately. No callbacks fire afterwards.
	Close() error
}

// Dialer establishes a connected engine for an endpoint.
type Dialer func(ctx context.Context, endpoint string) (Engine, error)
