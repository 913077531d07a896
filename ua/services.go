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

package ua

import "time"

// RequestHeader is carried by every service request.
type RequestHeader struct {
	Timestamp     time.Time
	RequestHandle uint32
	TimeoutHint   time.Duration
}

// ResponseHeader is carried by every service response. ServiceResult
// reports the outcome of the request as a whole.
type ResponseHeader struct {
	Timestamp     time.Time
	RequestHandle uint32
	ServiceResult StatusCode
}

// Request is a service request submitted to an engine.
type Request interface {
	ServiceID() ServiceID
	Header() *RequestHeader
}

// Response is a service response delivered by an engine.
type Response interface {
	ServiceID() ServiceID
	Header() *ResponseHeader
}

// ReadRequest reads attributes of one or more nodes.
type ReadRequest struct {
	RequestHeader      RequestHeader
	MaxAge             float64
	TimestampsToReturn TimestampsToReturn
	NodesToRead        []ReadValueID
}

func (*ReadRequest) ServiceID() ServiceID { return ServiceRead }
func (r *ReadRequest) Header() *RequestHeader { return &r.RequestHeader }

// ReadResponse holds one DataValue per requested node, in request order.
type ReadResponse struct {
	ResponseHeader ResponseHeader
	Results        []DataValue
}

func (*ReadResponse) ServiceID() ServiceID { return ServiceRead }
func (r *ReadResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// WriteRequest writes attributes of one or more nodes.
type WriteRequest struct {
	RequestHeader RequestHeader
	NodesToWrite  []WriteValue
}

func (*WriteRequest) ServiceID() ServiceID { return ServiceWrite }
func (r *WriteRequest) Header() *RequestHeader { return &r.RequestHeader }

// WriteResponse holds one status per written value.
type WriteResponse struct {
	ResponseHeader ResponseHeader
	Results        []StatusCode
}

func (*WriteResponse) ServiceID() ServiceID { return ServiceWrite }
func (r *WriteResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// CallRequest invokes one or more methods.
type CallRequest struct {
	RequestHeader RequestHeader
	MethodsToCall []CallMethodRequest
}

func (*CallRequest) ServiceID() ServiceID { return ServiceCall }
func (r *CallRequest) Header() *RequestHeader { return &r.RequestHeader }

// CallResponse holds one result per method call.
type CallResponse struct {
	ResponseHeader ResponseHeader
	Results        []CallMethodResult
}

func (*CallResponse) ServiceID() ServiceID { return ServiceCall }
func (r *CallResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// BrowseRequest browses the references of one or more nodes.
type BrowseRequest struct {
	RequestHeader                 RequestHeader
	RequestedMaxReferencesPerNode uint32
	NodesToBrowse                 []BrowseDescription
}

func (*BrowseRequest) ServiceID() ServiceID { return ServiceBrowse }
func (r *BrowseRequest) Header() *RequestHeader { return &r.RequestHeader }

// BrowseResponse holds one result per browsed node.
type BrowseResponse struct {
	ResponseHeader ResponseHeader
	Results        []BrowseResult
}

func (*BrowseResponse) ServiceID() ServiceID { return ServiceBrowse }
func (r *BrowseResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// BrowseNextRequest continues or releases browses using continuation
// points returned by a previous Browse or BrowseNext.
type BrowseNextRequest struct {
	RequestHeader             RequestHeader
	ReleaseContinuationPoints bool
	ContinuationPoints        [][]byte
}

func (*BrowseNextRequest) ServiceID() ServiceID { return ServiceBrowseNext }
func (r *BrowseNextRequest) Header() *RequestHeader { return &r.RequestHeader }

// BrowseNextResponse holds one result per continuation point.
type BrowseNextResponse struct {
	ResponseHeader ResponseHeader
	Results        []BrowseResult
}

func (*BrowseNextResponse) ServiceID() ServiceID { return ServiceBrowseNext }
func (r *BrowseNextResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// CreateSubscriptionRequest creates a subscription.
type CreateSubscriptionRequest struct {
	RequestHeader               RequestHeader
	RequestedPublishingInterval float64
	RequestedLifetimeCount      uint32
	RequestedMaxKeepAliveCount  uint32
	MaxNotificationsPerPublish  uint32
	PublishingEnabled           bool
	Priority                    uint8
}

func (*CreateSubscriptionRequest) ServiceID() ServiceID { return ServiceCreateSubscription }
func (r *CreateSubscriptionRequest) Header() *RequestHeader { return &r.RequestHeader }

// CreateSubscriptionResponse contains the response to a CreateSubscription request.
type CreateSubscriptionResponse struct {
	ResponseHeader            ResponseHeader
	SubscriptionID            uint32
	RevisedPublishingInterval float64
	RevisedLifetimeCount      uint32
	RevisedMaxKeepAliveCount  uint32
}

func (*CreateSubscriptionResponse) ServiceID() ServiceID { return ServiceCreateSubscription }
func (r *CreateSubscriptionResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// DeleteSubscriptionsRequest deletes subscriptions.
type DeleteSubscriptionsRequest struct {
	RequestHeader   RequestHeader
	SubscriptionIDs []uint32
}

func (*DeleteSubscriptionsRequest) ServiceID() ServiceID { return ServiceDeleteSubscriptions }
func (r *DeleteSubscriptionsRequest) Header() *RequestHeader { return &r.RequestHeader }

// DeleteSubscriptionsResponse holds one status per subscription id.
type DeleteSubscriptionsResponse struct {
	ResponseHeader ResponseHeader
	Results        []StatusCode
}

func (*DeleteSubscriptionsResponse) ServiceID() ServiceID { return ServiceDeleteSubscriptions }
func (r *DeleteSubscriptionsResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// CreateMonitoredItemsRequest creates monitored items in a subscription.
type CreateMonitoredItemsRequest struct {
	RequestHeader      RequestHeader
	SubscriptionID     uint32
	TimestampsToReturn TimestampsToReturn
	ItemsToCreate      []MonitoredItemCreateRequest
}

func (*CreateMonitoredItemsRequest) ServiceID() ServiceID { return ServiceCreateMonitoredItems }
func (r *CreateMonitoredItemsRequest) Header() *RequestHeader { return &r.RequestHeader }

// CreateMonitoredItemsResponse holds one result per item, in request order.
type CreateMonitoredItemsResponse struct {
	ResponseHeader ResponseHeader
	Results        []MonitoredItemCreateResult
}

func (*CreateMonitoredItemsResponse) ServiceID() ServiceID { return ServiceCreateMonitoredItems }
func (r *CreateMonitoredItemsResponse) Header() *ResponseHeader { return &r.ResponseHeader }

// DeleteMonitoredItemsRequest deletes monitored items of a subscription.
type DeleteMonitoredItemsRequest struct {
	RequestHeader    RequestHeader
	SubscriptionID   uint32
	MonitoredItemIDs []uint32
}

func (*DeleteMonitoredItemsRequest) ServiceID() ServiceID { return ServiceDeleteMonitoredItems }
func (r *DeleteMonitoredItemsRequest) Header() *RequestHeader { return &r.RequestHeader }

// DeleteMonitoredItemsResponse holds one status per item id.
type DeleteMonitoredItemsResponse struct {
	ResponseHeader ResponseHeader
	Results        []StatusCode
}

func (*DeleteMonitoredItemsResponse) ServiceID() ServiceID { return ServiceDeleteMonitoredItems }
func (r *DeleteMonitoredItemsResponse) Header() *ResponseHeader { return &r.ResponseHeader }
