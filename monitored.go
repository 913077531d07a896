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
	"sync"
	"sync/atomic"
	"weak"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

// MonitoredItem is a node attribute or event source registered in a
// subscription. Its notifications are queued in a bounded channel that
// is closed when the server deletes the item or the connection ends.
//
// Dropping a MonitoredItem does not stop server-side monitoring; call
// Delete or Close.
type MonitoredItem struct {
	ID                      uint32
	ClientHandle            uint32
	SubscriptionID          uint32
	NodeID                  ua.NodeID
	AttributeID             ua.AttributeID
	Kind                    engine.NotificationKind
	RevisedSamplingInterval float64
	RevisedQueueSize        uint32

	st     *itemState
	client weak.Pointer[Client]
}

// itemState is the part of an item shared with the poll loop.
type itemState struct {
	handle uint32
	subID  uint32
	kind   engine.NotificationKind
	id     atomic.Uint32
	live   atomic.Bool
	ch     *notificationChannel
	item   atomic.Pointer[MonitoredItem]
}

// MonitoredItemResult is the outcome of creating one item of a batch.
type MonitoredItemResult struct {
	Item *MonitoredItem
	Err  error
}

// Next waits for the next notification. It returns ErrItemClosed once the
// item has been deleted and every queued notification was read.
func (m *MonitoredItem) Next(ctx context.Context) (Notification, error) {
	return m.st.ch.next(ctx)
}

// Notifications returns a stream of notifications that is closed when the
// item is deleted and the stream drained, or when Close is called. A
// consumer that stops reading early must call Close. Mixing it with Next
// splits values between the two.
func (m *MonitoredItem) Notifications() <-chan Notification {
	return m.st.ch.notifications()
}

// Dropped returns how many notifications were discarded on overflow.
func (m *MonitoredItem) Dropped() uint64 {
	return m.st.ch.dropped.Load()
}

// Closed reports whether the notification channel has been closed.
func (m *MonitoredItem) Closed() bool {
	return m.st.ch.isClosed()
}

// Delete removes the item from the server and waits for the result.
func (m *MonitoredItem) Delete(ctx context.Context) error {
	c := m.client.Value()
	if c == nil {
		return ErrAlreadyDisconnected
	}
	results, err := c.DeleteMonitoredItems(ctx, m.SubscriptionID, m.ID)
	if err != nil {
		return err
	}
	if results[0].IsBad() {
		return NewServiceError(ua.ServiceDeleteMonitoredItems, results[0], "")
	}
	c.releaseItem(m.st)
	return nil
}

// Close removes the item from the server without waiting and stops the
// Notifications stream. Failures are logged. The server is not contacted
// once the client is gone or disconnected.
func (m *MonitoredItem) Close() {
	m.st.ch.abandon()
	c := m.client.Value()
	if c == nil || !c.IsConnected() {
		return
	}
	c.fireAndForget(&ua.DeleteMonitoredItemsRequest{
		SubscriptionID:   m.SubscriptionID,
		MonitoredItemIDs: []uint32{m.ID},
	})
}

// itemRegistry tracks the items whose channels are still open, keyed by
// client handle, so that teardown can close them.
type itemRegistry struct {
	mu    sync.Mutex
	items map[uint32]*itemState
}

func newItemRegistry() *itemRegistry {
	return &itemRegistry{items: make(map[uint32]*itemState)}
}

func (r *itemRegistry) add(st *itemState) {
	r.mu.Lock()
	r.items[st.handle] = st
	r.mu.Unlock()
}

func (r *itemRegistry) remove(handle uint32) {
	r.mu.Lock()
	delete(r.items, handle)
	r.mu.Unlock()
}

func (r *itemRegistry) bySubscription(subID uint32) []*MonitoredItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []*MonitoredItem
	for _, st := range r.items {
		if st.subID != subID || !st.live.Load() {
			continue
		}
		if item := st.item.Load(); item != nil {
			items = append(items, item)
		}
	}
	return items
}

func (r *itemRegistry) drain() []*itemState {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]*itemState, 0, len(r.items))
	for _, st := range r.items {
		items = append(items, st)
	}
	r.items = make(map[uint32]*itemState)
	return items
}

func (r *itemRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// createMonitoredItems creates items in a subscription, one request per
// create batch. Results are matched to requests by position: an item the
// server rejects yields an error in its own slot only. A batch that fails
// as a whole aborts the call; results of earlier batches are returned
// along with the error.
func (c *Client) createMonitoredItems(ctx context.Context, subID uint32, reqs []ua.MonitoredItemCreateRequest, capacities []int) ([]MonitoredItemResult, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyRequest
	}
	results := make([]MonitoredItemResult, len(reqs))
	size := c.opts.createBatchSize
	for start := 0; start < len(reqs); start += size {
		end := min(start+size, len(reqs))
		if err := c.createItemBatch(ctx, subID, reqs[start:end], capacities[start:end], results[start:end]); err != nil {
			return results[:start], err
		}
	}
	return results, nil
}

func (c *Client) createItemBatch(ctx context.Context, subID uint32, reqs []ua.MonitoredItemCreateRequest, capacities []int, results []MonitoredItemResult) error {
	states := make([]*itemState, len(reqs))
	handlers := make([]engine.ItemHandler, len(reqs))
	batch := make([]ua.MonitoredItemCreateRequest, len(reqs))

	for i := range reqs {
		batch[i] = reqs[i]
		batch[i].RequestedParameters.ClientHandle = c.nextHandle()
		states[i] = c.newItemState(subID, &batch[i], capacities[i])
		handlers[i] = c.itemHandler(states[i])
		c.registry.add(states[i])
	}

	req := &ua.CreateMonitoredItemsRequest{
		SubscriptionID:     subID,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		ItemsToCreate:      batch,
	}
	resp, err := c.roundTrip(ctx, &op{kind: opSubmitItems, items: req, handlers: handlers})
	if err == nil {
		typed, ok := resp.(*ua.CreateMonitoredItemsResponse)
		if !ok {
			err = protocolErrorf(ua.ServiceCreateMonitoredItems.String(), "unexpected response type %T", resp)
		} else if err = checkResults(ua.ServiceCreateMonitoredItems, len(batch), len(typed.Results)); err == nil {
			c.acceptItems(batch, states, typed.Results, results)
			return nil
		}
	}
	for _, st := range states {
		c.registry.remove(st.handle)
		st.ch.close()
	}
	return err
}

func (c *Client) newItemState(subID uint32, req *ua.MonitoredItemCreateRequest, capacity int) *itemState {
	if capacity <= 0 {
		capacity = c.opts.queueCapacity
	}
	kind := engine.KindDataChange
	if req.IsEvent() {
		kind = engine.KindEvent
	}
	return &itemState{
		handle: req.RequestedParameters.ClientHandle,
		subID:  subID,
		kind:   kind,
		ch:     newNotificationChannel(capacity, c.opts.overflowPolicy),
	}
}

func (c *Client) acceptItems(batch []ua.MonitoredItemCreateRequest, states []*itemState, created []ua.MonitoredItemCreateResult, results []MonitoredItemResult) {
	for i, r := range created {
		st := states[i]
		nodeID := batch[i].ItemToMonitor.NodeID
		if r.StatusCode.IsBad() {
			c.registry.remove(st.handle)
			st.ch.close()
			results[i].Err = NewServiceError(ua.ServiceCreateMonitoredItems, r.StatusCode, nodeID.String())
			c.logger.Debug("monitored item rejected",
				slog.String("node_id", nodeID.String()),
				slog.String("status", r.StatusCode.String()))
			continue
		}

		item := &MonitoredItem{
			ID:                      r.MonitoredItemID,
			ClientHandle:            st.handle,
			SubscriptionID:          st.subID,
			NodeID:                  nodeID,
			AttributeID:             batch[i].ItemToMonitor.AttributeID,
			Kind:                    st.kind,
			RevisedSamplingInterval: r.RevisedSamplingInterval,
			RevisedQueueSize:        r.RevisedQueueSize,
			st:                      st,
			client:                  weak.Make(c),
		}
		st.id.Store(r.MonitoredItemID)
		st.item.Store(item)
		st.live.Store(true)
		c.metrics.MonitoredItems.Add(1)
		// The server may have deleted the item before we got here.
		if st.ch.isClosed() && st.live.CompareAndSwap(true, false) {
			c.metrics.MonitoredItems.Add(-1)
		}
		results[i].Item = item
	}
}

// itemHandler builds the engine callbacks of one item. Only the entry
// matching the item kind delivers; the other never fires for a correctly
// behaving engine and is logged if it does.
func (c *Client) itemHandler(st *itemState) engine.ItemHandler {
	h := engine.ItemHandler{
		Kind: st.kind,
		Deleted: func(subID, itemID uint32) {
			c.releaseItem(st)
		},
	}
	mismatch := func(subID, itemID uint32) {
		c.logger.Warn("notification shape does not match item kind",
			slog.Uint64("subscription_id", uint64(subID)),
			slog.Uint64("item_id", uint64(itemID)),
			slog.String("kind", st.kind.String()))
	}
	switch st.kind {
	case engine.KindEvent:
		h.Event = func(subID, itemID uint32, fields []ua.Variant) {
			c.deliver(st, itemID, Notification{Kind: engine.KindEvent, Fields: fields})
		}
		h.DataChange = func(subID, itemID uint32, _ ua.DataValue) { mismatch(subID, itemID) }
	default:
		h.DataChange = func(subID, itemID uint32, v ua.DataValue) {
			c.deliver(st, itemID, Notification{Kind: engine.KindDataChange, Value: v})
		}
		h.Event = func(subID, itemID uint32, _ []ua.Variant) { mismatch(subID, itemID) }
	}
	return h
}

// deliver runs on the poll loop and must not block.
func (c *Client) deliver(st *itemState, itemID uint32, n Notification) {
	switch st.ch.push(n) {
	case pushQueued:
		c.metrics.NotificationsDelivered.Add(1)
		c.traceEvent(trace.Event{Kind: trace.KindNotification, SubscriptionID: st.subID, ItemID: itemID})
		return
	case pushEvicted:
		c.metrics.NotificationsDelivered.Add(1)
	case pushClosed:
		return
	}
	c.metrics.NotificationsDropped.Add(1)
	c.logger.Warn("notification channel full, dropping notification",
		slog.Uint64("subscription_id", uint64(st.subID)),
		slog.Uint64("item_id", uint64(itemID)),
		slog.String("policy", c.opts.overflowPolicy.String()))
	c.traceEvent(trace.Event{Kind: trace.KindDropped, SubscriptionID: st.subID, ItemID: itemID})
}

// releaseItem closes an item's channel and forgets it. It is idempotent.
func (c *Client) releaseItem(st *itemState) {
	c.registry.remove(st.handle)
	if !st.ch.close() {
		return
	}
	if st.live.CompareAndSwap(true, false) {
		c.metrics.MonitoredItems.Add(-1)
	}
	id := st.id.Load()
	c.traceEvent(trace.Event{Kind: trace.KindItemDeleted, SubscriptionID: st.subID, ItemID: id})
	c.logger.Debug("monitored item closed",
		slog.Uint64("subscription_id", uint64(st.subID)),
		slog.Uint64("item_id", uint64(id)))
}
