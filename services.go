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

	"golang.org/x/sync/errgroup"

	"github.com/edgeo-scada/opcua-async/ua"
)

// maxConcurrentBatches bounds how many batches ReadMany keeps in flight.
const maxConcurrentBatches = 4

// Read reads attributes from the server in one request. Per-node
// failures are reported in the StatusCode of each DataValue.
func (c *Client) Read(ctx context.Context, nodesToRead []ua.ReadValueID) ([]ua.DataValue, error) {
	if len(nodesToRead) == 0 {
		return nil, ErrEmptyRequest
	}
	req := &ua.ReadRequest{
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead:        nodesToRead,
	}
	resp, err := invoke[*ua.ReadResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceRead, len(nodesToRead), len(resp.Results)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ReadMany reads any number of attributes, splitting them into requests
// of at most the configured read batch size. Batches run concurrently;
// results keep the input order.
func (c *Client) ReadMany(ctx context.Context, nodesToRead []ua.ReadValueID) ([]ua.DataValue, error) {
	if len(nodesToRead) == 0 {
		return nil, ErrEmptyRequest
	}
	size := c.opts.readBatchSize
	results := make([]ua.DataValue, len(nodesToRead))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for start := 0; start < len(nodesToRead); start += size {
		end := min(start+size, len(nodesToRead))
		g.Go(func() error {
			values, err := c.Read(gctx, nodesToRead[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], values)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReadValue reads the Value attribute of a single node.
func (c *Client) ReadValue(ctx context.Context, nodeID ua.NodeID) (*ua.DataValue, error) {
	results, err := c.Read(ctx, []ua.ReadValueID{
		{NodeID: nodeID, AttributeID: ua.AttributeValue},
	})
	if err != nil {
		return nil, err
	}
	if results[0].StatusCode.IsBad() {
		return nil, NewServiceError(ua.ServiceRead, results[0].StatusCode, nodeID.String())
	}
	return &results[0], nil
}

// Write writes values to the server.
func (c *Client) Write(ctx context.Context, nodesToWrite []ua.WriteValue) ([]ua.StatusCode, error) {
	if len(nodesToWrite) == 0 {
		return nil, ErrEmptyRequest
	}
	resp, err := invoke[*ua.WriteResponse](ctx, c, &ua.WriteRequest{NodesToWrite: nodesToWrite})
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceWrite, len(nodesToWrite), len(resp.Results)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// WriteValue writes the Value attribute of a single node.
func (c *Client) WriteValue(ctx context.Context, nodeID ua.NodeID, value ua.Variant) error {
	results, err := c.Write(ctx, []ua.WriteValue{
		{
			NodeID:      nodeID,
			AttributeID: ua.AttributeValue,
			Value:       ua.DataValue{Value: &value},
		},
	})
	if err != nil {
		return err
	}
	if results[0].IsBad() {
		return NewServiceError(ua.ServiceWrite, results[0], nodeID.String())
	}
	return nil
}

// Call calls methods on the server.
func (c *Client) Call(ctx context.Context, methodsToCall []ua.CallMethodRequest) ([]ua.CallMethodResult, error) {
	if len(methodsToCall) == 0 {
		return nil, ErrEmptyRequest
	}
	resp, err := invoke[*ua.CallResponse](ctx, c, &ua.CallRequest{MethodsToCall: methodsToCall})
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceCall, len(methodsToCall), len(resp.Results)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// CallMethod calls a single method and returns its output arguments.
func (c *Client) CallMethod(ctx context.Context, objectID, methodID ua.NodeID, args ...ua.Variant) ([]ua.Variant, error) {
	results, err := c.Call(ctx, []ua.CallMethodRequest{
		{
			ObjectID:       objectID,
			MethodID:       methodID,
			InputArguments: args,
		},
	})
	if err != nil {
		return nil, err
	}
	if results[0].StatusCode.IsBad() {
		return nil, NewServiceError(ua.ServiceCall, results[0].StatusCode, methodID.String())
	}
	return results[0].OutputArguments, nil
}

// Browse browses nodes in one request. Continuation points in the
// results must be followed with BrowseNext or released.
func (c *Client) Browse(ctx context.Context, nodesToBrowse []ua.BrowseDescription) ([]ua.BrowseResult, error) {
	if len(nodesToBrowse) == 0 {
		return nil, ErrEmptyRequest
	}
	req := &ua.BrowseRequest{
		RequestedMaxReferencesPerNode: c.opts.maxReferencesPerNode,
		NodesToBrowse:                 nodesToBrowse,
	}
	resp, err := invoke[*ua.BrowseResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceBrowse, len(nodesToBrowse), len(resp.Results)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// BrowseNode returns all forward references of a single node, following
// continuation points.
func (c *Client) BrowseNode(ctx context.Context, nodeID ua.NodeID, direction ua.BrowseDirection) ([]ua.ReferenceDescription, error) {
	results, err := c.BrowseAll(ctx, []ua.BrowseDescription{NewBrowseDescription(nodeID, direction)})
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return results[0].References, nil
}

// BrowseNext continues browses. With release set the server frees the
// continuation points and returns no references.
func (c *Client) BrowseNext(ctx context.Context, release bool, continuationPoints [][]byte) ([]ua.BrowseResult, error) {
	if len(continuationPoints) == 0 {
		return nil, ErrEmptyRequest
	}
	req := &ua.BrowseNextRequest{
		ReleaseContinuationPoints: release,
		ContinuationPoints:        continuationPoints,
	}
	resp, err := invoke[*ua.BrowseNextResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceBrowseNext, len(continuationPoints), len(resp.Results)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ReleaseContinuationPoints frees server-side browse state.
func (c *Client) ReleaseContinuationPoints(ctx context.Context, continuationPoints [][]byte) error {
	_, err := c.BrowseNext(ctx, true, continuationPoints)
	return err
}

// DeleteSubscriptions deletes subscriptions by id and returns one status
// per id.
func (c *Client) DeleteSubscriptions(ctx context.Context, ids ...uint32) ([]ua.StatusCode, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyRequest
	}
	resp, err := invoke[*ua.DeleteSubscriptionsResponse](ctx, c, &ua.DeleteSubscriptionsRequest{SubscriptionIDs: ids})
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceDeleteSubscriptions, len(ids), len(resp.Results)); err != nil {
		return nil, err
	}
	for i, id := range ids {
		if resp.Results[i].IsGood() {
			c.forgetSubscription(id)
		}
	}
	return resp.Results, nil
}

// DeleteMonitoredItems deletes monitored items of a subscription and
// returns one status per id.
func (c *Client) DeleteMonitoredItems(ctx context.Context, subscriptionID uint32, ids ...uint32) ([]ua.StatusCode, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyRequest
	}
	req := &ua.DeleteMonitoredItemsRequest{
		SubscriptionID:   subscriptionID,
		MonitoredItemIDs: ids,
	}
	resp, err := invoke[*ua.DeleteMonitoredItemsResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	if err := checkResults(ua.ServiceDeleteMonitoredItems, len(ids), len(resp.Results)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// NewBrowseDescription returns a description that browses all
// hierarchical references of nodeID in direction.
func NewBrowseDescription(nodeID ua.NodeID, direction ua.BrowseDirection) ua.BrowseDescription {
	return ua.BrowseDescription{
		NodeID:          nodeID,
		BrowseDirection: direction,
		ReferenceTypeID: ua.HierarchicalRefs,
		IncludeSubtypes: true,
		NodeClassMask:   0,    // all node classes
		ResultMask:      0x3F, // all fields
	}
}
