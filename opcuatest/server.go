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
// Package opcuatest provides an in-memory OPC UA server and a protocol
// engine bound to it. The engine honours the engine.Engine contract: it
// never blocks, queues completions and notifications, and fires them only
// from Drive. Fault injection hooks make paging, reordering, held
// completions and fatal drive statuses reproducible in tests.
package opcuatest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/ua"
)

// DeliveryOrder controls the order in which completions queued by the
// same Drive call are fired.
type DeliveryOrder int

const (
	// OrderFIFO fires completions in submission order.
	OrderFIFO DeliveryOrder = iota
	// OrderReverse fires completions in reverse submission order.
	OrderReverse
)

// MethodFunc implements a method node. It returns the output arguments
// and the status of the call. It runs with the server locked and must not
// call back into the Server.
type MethodFunc func(args []ua.Variant) ([]ua.Variant, ua.StatusCode)

type node struct {
	id            ua.NodeID
	class         ua.NodeClass
	browseName    ua.QualifiedName
	displayName   ua.LocalizedText
	typeDef       ua.NodeID
	value         ua.Variant
	writable      bool
	eventNotifier bool
	refs          []ua.ReferenceDescription
}

// watch is a monitored item registered by a session.
type watch struct {
	sess      *Session
	subID     uint32
	itemID    uint32
	nodeKey   string
	attribute ua.AttributeID
	handler   engine.ItemHandler
}

type subscription struct {
	id    uint32
	sess  *Session
	items map[uint32]*watch
}

// Server is an in-memory address space shared by any number of sessions.
type Server struct {
	mu       sync.Mutex
	nodes    map[string]*node
	methods  map[string]MethodFunc
	subs     map[uint32]*subscription
	sessions map[*Session]struct{}
	nextSub  uint32
	nextItem uint32
	requests map[ua.ServiceID]int

	pageSize       int
	browseFaults   map[string]ua.StatusCode
	order          DeliveryOrder
	hold           bool
	driveFault     ua.StatusCode
}

// NewServer returns a server holding the standard root folders.
func NewServer() *Server {
	s := &Server{
		nodes:        make(map[string]*node),
		methods:      make(map[string]MethodFunc),
		subs:         make(map[uint32]*subscription),
		sessions:     make(map[*Session]struct{}),
		requests:     make(map[ua.ServiceID]int),
		browseFaults: make(map[string]ua.StatusCode),
	}
	s.addNode(&node{id: ua.RootFolder, class: ua.NodeClassObject, typeDef: ua.FolderType,
		browseName: ua.QualifiedName{Name: "Root"}, displayName: ua.LocalizedText{Text: "Root"}})
	s.AddFolder(ua.RootFolder, ua.ObjectsFolder, "Objects")
	s.AddFolder(ua.RootFolder, ua.TypesFolder, "Types")
	s.AddFolder(ua.RootFolder, ua.ViewsFolder, "Views")
	s.AddObject(ua.ObjectsFolder, ua.Server, "Server", true)
	return s
}

// Dial opens a session. It has the signature of engine.Dialer.
func (s *Server) Dial(ctx context.Context, endpoint string) (engine.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess := newSession(s)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	return sess, nil
}

func (s *Server) addNode(n *node) {
	s.nodes[n.id.String()] = n
}

func (s *Server) addChild(parent, refType ua.NodeID, n *node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addNode(n)
	s.link(parent, refType, n.id)
}

// link adds a forward reference on src and the inverse one on dst.
func (s *Server) link(src, refType, dst ua.NodeID) {
	from, okFrom := s.nodes[src.String()]
	to, okTo := s.nodes[dst.String()]
	if !okFrom || !okTo {
		return
	}
	from.refs = append(from.refs, describe(refType, true, to))
	to.refs = append(to.refs, describe(refType, false, from))
}

func describe(refType ua.NodeID, forward bool, target *node) ua.ReferenceDescription {
	return ua.ReferenceDescription{
		ReferenceTypeID: refType,
		IsForward:       forward,
		NodeID:          target.id,
		BrowseName:      target.browseName,
		DisplayName:     target.displayName,
		NodeClass:       target.class,
		TypeDefinition:  target.typeDef,
	}
}

// AddFolder adds a folder organized by parent.
func (s *Server) AddFolder(parent, id ua.NodeID, name string) {
	s.addChild(parent, ua.OrganizesRef, &node{
		id:          id,
		class:       ua.NodeClassObject,
		typeDef:     ua.FolderType,
		browseName:  ua.QualifiedName{NamespaceIndex: id.Namespace, Name: name},
		displayName: ua.LocalizedText{Text: name},
	})
}

// AddObject adds an object organized by parent. Objects flagged as event
// notifiers accept event monitored items.
func (s *Server) AddObject(parent, id ua.NodeID, name string, eventNotifier bool) {
	s.addChild(parent, ua.OrganizesRef, &node{
		id:            id,
		class:         ua.NodeClassObject,
		browseName:    ua.QualifiedName{NamespaceIndex: id.Namespace, Name: name},
		displayName:   ua.LocalizedText{Text: name},
		eventNotifier: eventNotifier,
	})
}

// AddVariable adds a variable as a component of parent.
func (s *Server) AddVariable(parent, id ua.NodeID, name string, value ua.Variant, writable bool) {
	s.addChild(parent, ua.HasComponentRef, &node{
		id:          id,
		class:       ua.NodeClassVariable,
		typeDef:     ua.BaseDataVariableType,
		browseName:  ua.QualifiedName{NamespaceIndex: id.Namespace, Name: name},
		displayName: ua.LocalizedText{Text: name},
		value:       value,
		writable:    writable,
	})
}

// AddReference links two existing nodes.
func (s *Server) AddReference(src, refType, dst ua.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link(src, refType, dst)
}

// HandleMethod adds a method node as a component of object and installs
// its implementation.
func (s *Server) HandleMethod(object, method ua.NodeID, name string, fn MethodFunc) {
	s.addChild(object, ua.HasComponentRef, &node{
		id:          method,
		class:       ua.NodeClassMethod,
		browseName:  ua.QualifiedName{NamespaceIndex: method.Namespace, Name: name},
		displayName: ua.LocalizedText{Text: name},
	})
	s.mu.Lock()
	s.methods[methodKey(object, method)] = fn
	s.mu.Unlock()
}

func methodKey(object, method ua.NodeID) string {
	return object.String() + "/" + method.String()
}

// SetValue changes the value of a variable and notifies every monitored
// item watching it.
func (s *Server) SetValue(id ua.NodeID, value ua.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id.String()]
	if !ok || n.class != ua.NodeClassVariable {
		return fmt.Errorf("opcuatest: no variable %s", id)
	}
	n.value = value
	s.notifyValue(n)
	return nil
}

func (s *Server) notifyValue(n *node) {
	dv := ua.NewDataValue(n.value, time.Now())
	key := n.id.String()
	for _, sub := range s.subs {
		for _, w := range sub.items {
			if w.nodeKey != key || w.handler.Kind != engine.KindDataChange || w.attribute != ua.AttributeValue {
				continue
			}
			w.sess.enqueueDataChange(w, dv)
		}
	}
}

// EmitEvent reports an event on source to every event item watching it.
func (s *Server) EmitEvent(source ua.NodeID, fields ...ua.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[source.String()]
	if !ok || !n.eventNotifier {
		return fmt.Errorf("opcuatest: %s is not an event notifier", source)
	}
	key := n.id.String()
	for _, sub := range s.subs {
		for _, w := range sub.items {
			if w.nodeKey == key && w.handler.Kind == engine.KindEvent {
				w.sess.enqueueEvent(w, fields)
			}
		}
	}
	return nil
}

// RemoveNode deletes a node. Monitored items watching it are deleted by
// the server and their sessions are told so.
func (s *Server) RemoveNode(id ua.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.String()
	delete(s.nodes, key)
	for _, n := range s.nodes {
		refs := n.refs[:0]
		for _, r := range n.refs {
			if !r.NodeID.Equal(id) {
				refs = append(refs, r)
			}
		}
		n.refs = refs
	}
	for _, sub := range s.subs {
		for itemID, w := range sub.items {
			if w.nodeKey == key {
				delete(sub.items, itemID)
				w.sess.enqueueDeleted(w)
			}
		}
	}
}

// SetPageSize limits the references returned per node by Browse and
// BrowseNext. Zero means unlimited.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	s.pageSize = n
	s.mu.Unlock()
}

// FailBrowseNext makes every BrowseNext of a continuation point that
// belongs to id fail with status.
func (s *Server) FailBrowseNext(id ua.NodeID, status ua.StatusCode) {
	s.mu.Lock()
	s.browseFaults[id.String()] = status
	s.mu.Unlock()
}

// SetDeliveryOrder sets the order of completions within one Drive.
func (s *Server) SetDeliveryOrder(order DeliveryOrder) {
	s.mu.Lock()
	s.order = order
	s.mu.Unlock()
}

// HoldCompletions stops sessions from firing completions while hold is
// set. Held completions fire on the first Drive after it is cleared.
// Notifications are not held.
func (s *Server) HoldCompletions(hold bool) {
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()
}

// SetDriveFault makes every Drive return status. StatusGood clears it.
func (s *Server) SetDriveFault(status ua.StatusCode) {
	s.mu.Lock()
	s.driveFault = status
	s.mu.Unlock()
}

// CloseSessions ends every session as if the server had shut the
// connection down.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.terminate(ua.StatusBadConnectionClosed)
	}
}

// RequestCount returns how many requests of svc the server accepted.
func (s *Server) RequestCount(svc ua.ServiceID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[svc]
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SubscriptionCount returns the number of live subscriptions.
func (s *Server) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// MonitoredItemCount returns the number of live monitored items.
func (s *Server) MonitoredItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		n += len(sub.items)
	}
	return n
}

func (s *Server) settings() (order DeliveryOrder, hold bool, fault ua.StatusCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order, s.hold, s.driveFault
}

// detach forgets a session along with its subscriptions.
func (s *Server) detach(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
	for id, sub := range s.subs {
		if sub.sess == sess {
			delete(s.subs, id)
		}
	}
}
