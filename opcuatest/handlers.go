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
	"time"

	"github.com/google/uuid"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/ua"
)

// continuationPoint is the server-side state of a paged browse.
type continuationPoint struct {
	nodeKey string
	refs    []ua.ReferenceDescription
}

// handle processes req on behalf of sess and queues its completion. The
// server lock is held throughout, so side effects such as notifications
// are queued right after the completion.
func (s *Server) handle(sess *Session, req ua.Request, done engine.CompletionFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resp ua.Response
	var after func()

	switch r := req.(type) {
	case *ua.ReadRequest:
		resp = s.read(r)
	case *ua.WriteRequest:
		var changed []*node
		resp, changed = s.write(r)
		after = func() {
			for _, n := range changed {
				s.notifyValue(n)
			}
		}
	case *ua.CallRequest:
		resp = s.call(r)
	case *ua.BrowseRequest:
		resp = s.browse(sess, r)
	case *ua.BrowseNextRequest:
		resp = s.browseNext(sess, r)
	case *ua.CreateSubscriptionRequest:
		resp = s.createSubscription(sess, r)
	case *ua.DeleteSubscriptionsRequest:
		var removed []*watch
		resp, removed = s.deleteSubscriptions(sess, r)
		after = func() { notifyDeleted(removed) }
	case *ua.DeleteMonitoredItemsRequest:
		var removed []*watch
		resp, removed = s.deleteMonitoredItems(sess, r)
		after = func() { notifyDeleted(removed) }
	default:
		return false
	}

	s.requests[req.ServiceID()]++
	stampResponse(resp, req)
	sess.enqueueCompletion(resp, done)
	if after != nil {
		after()
	}
	return true
}

// handleItems processes a create monitored items request.
func (s *Server) handleItems(sess *Session, req *ua.CreateMonitoredItemsRequest, handlers []engine.ItemHandler, done engine.CompletionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[ua.ServiceCreateMonitoredItems]++
	resp := &ua.CreateMonitoredItemsResponse{}
	stampResponse(resp, req)

	sub, ok := s.subs[req.SubscriptionID]
	if !ok || sub.sess != sess {
		resp.ResponseHeader.ServiceResult = ua.StatusBadSubscriptionIdInvalid
		sess.enqueueCompletion(resp, done)
		return
	}

	var initial []*watch
	resp.Results = make([]ua.MonitoredItemCreateResult, len(req.ItemsToCreate))
	for i, item := range req.ItemsToCreate {
		status := s.checkItem(&item, handlers[i])
		if status.IsBad() {
			resp.Results[i].StatusCode = status
			continue
		}
		s.nextItem++
		w := &watch{
			sess:      sess,
			subID:     sub.id,
			itemID:    s.nextItem,
			nodeKey:   item.ItemToMonitor.NodeID.String(),
			attribute: item.ItemToMonitor.AttributeID,
			handler:   handlers[i],
		}
		sub.items[w.itemID] = w
		resp.Results[i] = ua.MonitoredItemCreateResult{
			StatusCode:              ua.StatusGood,
			MonitoredItemID:         w.itemID,
			RevisedSamplingInterval: item.RequestedParameters.SamplingInterval,
			RevisedQueueSize:        max(item.RequestedParameters.QueueSize, 1),
		}
		if w.handler.Kind == engine.KindDataChange {
			initial = append(initial, w)
		}
	}
	sess.enqueueCompletion(resp, done)

	for _, w := range initial {
		sess.enqueueDataChange(w, s.readAttribute(s.nodes[w.nodeKey], w.attribute))
	}
}

func (s *Server) checkItem(item *ua.MonitoredItemCreateRequest, h engine.ItemHandler) ua.StatusCode {
	n, ok := s.nodes[item.ItemToMonitor.NodeID.String()]
	if !ok {
		return ua.StatusBadNodeIdUnknown
	}
	if h.Kind == engine.KindEvent {
		if !n.eventNotifier {
			return ua.StatusBadAttributeIdInvalid
		}
		return ua.StatusGood
	}
	if item.RequestedParameters.Filter != nil {
		if _, ok := item.RequestedParameters.Filter.(ua.DataChangeFilter); !ok {
			return ua.StatusBadMonitoredItemFilterInvalid
		}
	}
	if dv := s.readAttribute(n, item.ItemToMonitor.AttributeID); dv.StatusCode.IsBad() {
		return dv.StatusCode
	}
	return ua.StatusGood
}

func stampResponse(resp ua.Response, req ua.Request) {
	h := resp.Header()
	h.Timestamp = time.Now()
	h.RequestHandle = req.Header().RequestHandle
}

func notifyDeleted(removed []*watch) {
	for _, w := range removed {
		w.sess.enqueueDeleted(w)
	}
}

func (s *Server) read(req *ua.ReadRequest) *ua.ReadResponse {
	resp := &ua.ReadResponse{Results: make([]ua.DataValue, len(req.NodesToRead))}
	for i, rv := range req.NodesToRead {
		n, ok := s.nodes[rv.NodeID.String()]
		if !ok {
			resp.Results[i] = ua.DataValue{StatusCode: ua.StatusBadNodeIdUnknown}
			continue
		}
		resp.Results[i] = s.readAttribute(n, rv.AttributeID)
	}
	return resp
}

func (s *Server) readAttribute(n *node, attr ua.AttributeID) ua.DataValue {
	now := time.Now()
	var v ua.Variant
	switch attr {
	case ua.AttributeValue:
		if n.class != ua.NodeClassVariable {
			return ua.DataValue{StatusCode: ua.StatusBadAttributeIdInvalid}
		}
		v = n.value
	case ua.AttributeNodeID:
		v = ua.MustVariant(n.id)
	case ua.AttributeNodeClass:
		v = ua.MustVariant(int32(n.class))
	case ua.AttributeBrowseName:
		v = ua.MustVariant(n.browseName)
	case ua.AttributeDisplayName:
		v = ua.MustVariant(n.displayName)
	case ua.AttributeEventNotifier:
		if n.class != ua.NodeClassObject {
			return ua.DataValue{StatusCode: ua.StatusBadAttributeIdInvalid}
		}
		var notifier uint8
		if n.eventNotifier {
			notifier = 1
		}
		v = ua.MustVariant(notifier)
	case ua.AttributeAccessLevel:
		if n.class != ua.NodeClassVariable {
			return ua.DataValue{StatusCode: ua.StatusBadAttributeIdInvalid}
		}
		level := uint8(1)
		if n.writable {
			level |= 2
		}
		v = ua.MustVariant(level)
	default:
		return ua.DataValue{StatusCode: ua.StatusBadAttributeIdInvalid}
	}
	return ua.NewDataValue(v, now)
}

func (s *Server) write(req *ua.WriteRequest) (*ua.WriteResponse, []*node) {
	resp := &ua.WriteResponse{Results: make([]ua.StatusCode, len(req.NodesToWrite))}
	var changed []*node
	for i, wv := range req.NodesToWrite {
		n, ok := s.nodes[wv.NodeID.String()]
		switch {
		case !ok:
			resp.Results[i] = ua.StatusBadNodeIdUnknown
		case wv.AttributeID != ua.AttributeValue || n.class != ua.NodeClassVariable || !n.writable:
			resp.Results[i] = ua.StatusBadNotWritable
		case wv.Value.Value == nil:
			resp.Results[i] = ua.StatusBadTypeMismatch
		case n.value.Type != ua.TypeNull && wv.Value.Value.Type != n.value.Type:
			resp.Results[i] = ua.StatusBadTypeMismatch
		default:
			n.value = *wv.Value.Value
			changed = append(changed, n)
			resp.Results[i] = ua.StatusGood
		}
	}
	return resp, changed
}

func (s *Server) call(req *ua.CallRequest) *ua.CallResponse {
	resp := &ua.CallResponse{Results: make([]ua.CallMethodResult, len(req.MethodsToCall))}
	for i, m := range req.MethodsToCall {
		if _, ok := s.nodes[m.ObjectID.String()]; !ok {
			resp.Results[i].StatusCode = ua.StatusBadNodeIdUnknown
			continue
		}
		fn, ok := s.methods[methodKey(m.ObjectID, m.MethodID)]
		if !ok {
			resp.Results[i].StatusCode = ua.StatusBadMethodInvalid
			continue
		}
		out, status := fn(m.InputArguments)
		resp.Results[i] = ua.CallMethodResult{StatusCode: status, OutputArguments: out}
	}
	return resp
}

func (s *Server) browse(sess *Session, req *ua.BrowseRequest) *ua.BrowseResponse {
	resp := &ua.BrowseResponse{Results: make([]ua.BrowseResult, len(req.NodesToBrowse))}
	page := s.pageSize
	if limit := int(req.RequestedMaxReferencesPerNode); limit > 0 && (page == 0 || limit < page) {
		page = limit
	}
	for i, desc := range req.NodesToBrowse {
		n, ok := s.nodes[desc.NodeID.String()]
		if !ok {
			resp.Results[i].StatusCode = ua.StatusBadNodeIdUnknown
			continue
		}
		if desc.BrowseDirection > ua.BrowseDirectionBoth {
			resp.Results[i].StatusCode = ua.StatusBadBrowseDirectionInvalid
			continue
		}
		refs := filterReferences(n.refs, desc)
		resp.Results[i] = sess.page(n.id.String(), refs, page)
	}
	return resp
}

func filterReferences(refs []ua.ReferenceDescription, desc ua.BrowseDescription) []ua.ReferenceDescription {
	var out []ua.ReferenceDescription
	for _, r := range refs {
		switch desc.BrowseDirection {
		case ua.BrowseDirectionForward:
			if !r.IsForward {
				continue
			}
		case ua.BrowseDirectionInverse:
			if r.IsForward {
				continue
			}
		}
		if !desc.ReferenceTypeID.IsNull() && !desc.ReferenceTypeID.Equal(ua.HierarchicalRefs) &&
			!desc.ReferenceTypeID.Equal(r.ReferenceTypeID) {
			continue
		}
		if desc.NodeClassMask != 0 && uint32(r.NodeClass)&desc.NodeClassMask == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Server) browseNext(sess *Session, req *ua.BrowseNextRequest) *ua.BrowseNextResponse {
	resp := &ua.BrowseNextResponse{Results: make([]ua.BrowseResult, len(req.ContinuationPoints))}
	for i, point := range req.ContinuationPoints {
		key := string(point)
		cp, ok := sess.cps[key]
		if !ok {
			resp.Results[i].StatusCode = ua.StatusBadContinuationPointInvalid
			continue
		}
		delete(sess.cps, key)
		if req.ReleaseContinuationPoints {
			continue
		}
		if status, fail := s.browseFaults[cp.nodeKey]; fail {
			resp.Results[i].StatusCode = status
			continue
		}
		resp.Results[i] = sess.page(cp.nodeKey, cp.refs, s.pageSize)
	}
	return resp
}

// page returns the first page of refs and parks the rest behind a new
// continuation point.
func (sess *Session) page(nodeKey string, refs []ua.ReferenceDescription, size int) ua.BrowseResult {
	if size <= 0 || len(refs) <= size {
		return ua.BrowseResult{StatusCode: ua.StatusGood, References: refs}
	}
	id := uuid.New()
	sess.cps[string(id[:])] = &continuationPoint{nodeKey: nodeKey, refs: refs[size:]}
	return ua.BrowseResult{
		StatusCode:        ua.StatusGood,
		ContinuationPoint: id[:],
		References:        refs[:size],
	}
}

func (s *Server) createSubscription(sess *Session, req *ua.CreateSubscriptionRequest) *ua.CreateSubscriptionResponse {
	s.nextSub++
	s.subs[s.nextSub] = &subscription{id: s.nextSub, sess: sess, items: make(map[uint32]*watch)}

	interval := req.RequestedPublishingInterval
	if interval <= 0 {
		interval = 100
	}
	keepAlive := max(req.RequestedMaxKeepAliveCount, 1)
	return &ua.CreateSubscriptionResponse{
		SubscriptionID:            s.nextSub,
		RevisedPublishingInterval: interval,
		RevisedLifetimeCount:      max(req.RequestedLifetimeCount, 3*keepAlive),
		RevisedMaxKeepAliveCount:  keepAlive,
	}
}

func (s *Server) deleteSubscriptions(sess *Session, req *ua.DeleteSubscriptionsRequest) (*ua.DeleteSubscriptionsResponse, []*watch) {
	resp := &ua.DeleteSubscriptionsResponse{Results: make([]ua.StatusCode, len(req.SubscriptionIDs))}
	var removed []*watch
	for i, id := range req.SubscriptionIDs {
		sub, ok := s.subs[id]
		if !ok || sub.sess != sess {
			resp.Results[i] = ua.StatusBadSubscriptionIdInvalid
			continue
		}
		for _, w := range sub.items {
			removed = append(removed, w)
		}
		delete(s.subs, id)
		resp.Results[i] = ua.StatusGood
	}
	return resp, removed
}

func (s *Server) deleteMonitoredItems(sess *Session, req *ua.DeleteMonitoredItemsRequest) (*ua.DeleteMonitoredItemsResponse, []*watch) {
	resp := &ua.DeleteMonitoredItemsResponse{}
	sub, ok := s.subs[req.SubscriptionID]
	if !ok || sub.sess != sess {
		resp.ResponseHeader.ServiceResult = ua.StatusBadSubscriptionIdInvalid
		return resp, nil
	}
	resp.Results = make([]ua.StatusCode, len(req.MonitoredItemIDs))
	var removed []*watch
	for i, id := range req.MonitoredItemIDs {
		w, ok := sub.items[id]
		if !ok {
			resp.Results[i] = ua.StatusBadMonitoredItemIdInvalid
			continue
		}
		delete(sub.items, id)
		removed = append(removed, w)
		resp.Results[i] = ua.StatusGood
	}
	return resp, removed
}
