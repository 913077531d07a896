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
	"weak"

	"github.com/edgeo-scada/opcua-async/ua"
)

// Subscription represents an OPC UA subscription. It holds only a weak
// reference to its Client: once the Client is gone every method that
// needs the connection fails with ErrAlreadyDisconnected, and Close does
// nothing.
type Subscription struct {
	ID                        uint32
	RevisedPublishingInterval float64
	RevisedLifetimeCount      uint32
	RevisedMaxKeepAliveCount  uint32

	client weak.Pointer[Client]
}

// CreateSubscription creates a new subscription.
func (c *Client) CreateSubscription(ctx context.Context, opts ...SubscriptionOption) (*Subscription, error) {
	options := defaultSubscriptionOptions()
	for _, opt := range opts {
		opt(options)
	}

	req := &ua.CreateSubscriptionRequest{
		RequestedPublishingInterval: options.publishingInterval,
		RequestedLifetimeCount:      options.lifetimeCount,
		RequestedMaxKeepAliveCount:  options.maxKeepAliveCount,
		MaxNotificationsPerPublish:  options.maxNotifications,
		PublishingEnabled:           options.publishingEnabled,
		Priority:                    options.priority,
	}
	resp, err := invoke[*ua.CreateSubscriptionResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:                        resp.SubscriptionID,
		RevisedPublishingInterval: resp.RevisedPublishingInterval,
		RevisedLifetimeCount:      resp.RevisedLifetimeCount,
		RevisedMaxKeepAliveCount:  resp.RevisedMaxKeepAliveCount,
		client:                    weak.Make(c),
	}

	c.subscriptions.Store(sub.ID, sub)
	c.metrics.ActiveSubscriptions.Add(1)

	c.logger.Info("subscription created",
		slog.Uint64("subscription_id", uint64(sub.ID)),
		slog.Float64("publishing_interval", sub.RevisedPublishingInterval))

	return sub, nil
}

// Subscription returns a subscription created by this client by id.
func (c *Client) Subscription(id uint32) (*Subscription, error) {
	v, ok := c.subscriptions.Load(id)
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return v.(*Subscription), nil
}

// forgetSubscription drops local state of a deleted subscription. The
// server removes its items along with it.
func (c *Client) forgetSubscription(id uint32) {
	if _, loaded := c.subscriptions.LoadAndDelete(id); !loaded {
		return
	}
	c.metrics.ActiveSubscriptions.Add(-1)
	for _, item := range c.registry.bySubscription(id) {
		c.releaseItem(item.st)
	}
	c.logger.Info("subscription deleted", slog.Uint64("subscription_id", uint64(id)))
}

// CreateMonitoredItem creates a single data change or event item.
func (s *Subscription) CreateMonitoredItem(ctx context.Context, nodeID ua.NodeID, opts ...MonitoredItemOption) (*MonitoredItem, error) {
	results, err := s.CreateMonitoredItems(ctx, []ua.NodeID{nodeID}, opts...)
	if err != nil {
		return nil, err
	}
	return results[0].Item, results[0].Err
}

// CreateMonitoredItems creates one item per node with the same options,
// in as few requests as the create batch size allows. The result list has
// one entry per node; a node the server rejects only fails its own entry.
func (s *Subscription) CreateMonitoredItems(ctx context.Context, nodeIDs []ua.NodeID, opts ...MonitoredItemOption) ([]MonitoredItemResult, error) {
	options := defaultMonitoredItemOptions()
	for _, opt := range opts {
		opt(options)
	}

	reqs := make([]ua.MonitoredItemCreateRequest, len(nodeIDs))
	capacities := make([]int, len(nodeIDs))
	for i, nodeID := range nodeIDs {
		reqs[i] = options.request(nodeID)
		capacities[i] = options.capacity
	}
	return s.createItems(ctx, reqs, capacities)
}

// CreateMonitoredItemsFromRequests creates items from fully specified
// requests. Client handles are assigned by the client and overwritten.
func (s *Subscription) CreateMonitoredItemsFromRequests(ctx context.Context, reqs []ua.MonitoredItemCreateRequest) ([]MonitoredItemResult, error) {
	return s.createItems(ctx, reqs, make([]int, len(reqs)))
}

func (s *Subscription) createItems(ctx context.Context, reqs []ua.MonitoredItemCreateRequest, capacities []int) ([]MonitoredItemResult, error) {
	c := s.client.Value()
	if c == nil {
		return nil, ErrAlreadyDisconnected
	}
	return c.createMonitoredItems(ctx, s.ID, reqs, capacities)
}

// Items returns the live monitored items of the subscription.
func (s *Subscription) Items() []*MonitoredItem {
	c := s.client.Value()
	if c == nil {
		return nil
	}
	return c.registry.bySubscription(s.ID)
}

// Delete deletes the subscription and waits for the server to confirm.
// Its monitored items are closed.
func (s *Subscription) Delete(ctx context.Context) error {
	c := s.client.Value()
	if c == nil {
		return ErrAlreadyDisconnected
	}
	results, err := c.DeleteSubscriptions(ctx, s.ID)
	if err != nil {
		return err
	}
	if results[0].IsBad() {
		return NewServiceError(ua.ServiceDeleteSubscriptions, results[0], "")
	}
	return nil
}

// Close deletes the subscription without waiting for the server. Errors
// are logged, never returned. It is a no-op once the client is gone or
// disconnected.
func (s *Subscription) Close() {
	c := s.client.Value()
	if c == nil || !c.IsConnected() {
		return
	}
	c.forgetSubscription(s.ID)
	c.fireAndForget(&ua.DeleteSubscriptionsRequest{SubscriptionIDs: []uint32{s.ID}})
}
