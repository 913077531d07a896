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
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/ua"
)

// recorder collects completions fired by a session.
type recorder struct {
	resps []ua.Response
}

func (r *recorder) done(resp ua.Response, err error) {
	if err == nil {
		r.resps = append(r.resps, resp)
	}
}

func dial(t *testing.T, s *Server) *Session {
	t.Helper()
	eng, err := s.Dial(context.Background(), "opc.tcp://test")
	require.NoError(t, err)
	return eng.(*Session)
}

func TestSessionFiresCompletionsOnlyFromDrive(t *testing.T) {
	s := NewServer()
	temp := ua.NewStringNodeID(2, "Temp")
	s.AddVariable(ua.ObjectsFolder, temp, "Temp", ua.MustVariant(20.0), true)
	sess := dial(t, s)

	var rec recorder
	id, err := sess.Submit(&ua.ReadRequest{NodesToRead: []ua.ReadValueID{
		{NodeID: temp, AttributeID: ua.AttributeValue},
	}}, rec.done)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Empty(t, rec.resps)

	assert.Equal(t, ua.StatusGood, sess.Drive(0))
	require.Len(t, rec.resps, 1)
	read := rec.resps[0].(*ua.ReadResponse)
	assert.Equal(t, 20.0, read.Results[0].Interface())
	assert.Equal(t, 1, s.RequestCount(ua.ServiceRead))
}

func TestSessionReverseOrderAndHold(t *testing.T) {
	s := NewServer()
	sess := dial(t, s)
	s.HoldCompletions(true)
	s.SetDeliveryOrder(OrderReverse)

	var order []uint32
	for i := 0; i < 3; i++ {
		req := &ua.ReadRequest{NodesToRead: []ua.ReadValueID{{NodeID: ua.ObjectsFolder, AttributeID: ua.AttributeBrowseName}}}
		req.RequestHeader.RequestHandle = uint32(i + 1)
		_, err := sess.Submit(req, func(resp ua.Response, err error) {
			order = append(order, resp.Header().RequestHandle)
		})
		require.NoError(t, err)
	}

	sess.Drive(0)
	assert.Empty(t, order)

	s.HoldCompletions(false)
	sess.Drive(0)
	assert.Equal(t, []uint32{3, 2, 1}, order)
}

func TestSessionBrowsePaging(t *testing.T) {
	s := NewServer()
	folder := ua.NewStringNodeID(2, "Folder")
	s.AddFolder(ua.ObjectsFolder, folder, "Folder")
	for i := 0; i < 5; i++ {
		s.AddVariable(folder, ua.NewNumericNodeID(2, uint32(100+i)), fmt.Sprintf("V%d", i), ua.MustVariant(int32(i)), false)
	}
	s.SetPageSize(2)
	sess := dial(t, s)

	var rec recorder
	desc := ua.BrowseDescription{NodeID: folder, BrowseDirection: ua.BrowseDirectionForward, ReferenceTypeID: ua.HierarchicalRefs}
	_, err := sess.Submit(&ua.BrowseRequest{NodesToBrowse: []ua.BrowseDescription{desc}}, rec.done)
	require.NoError(t, err)
	sess.Drive(0)

	first := rec.resps[0].(*ua.BrowseResponse).Results[0]
	require.Len(t, first.References, 2)
	require.NotEmpty(t, first.ContinuationPoint)

	var names []string
	for _, r := range first.References {
		names = append(names, r.BrowseName.Name)
	}
	cp := first.ContinuationPoint
	for len(cp) > 0 {
		_, err := sess.Submit(&ua.BrowseNextRequest{ContinuationPoints: [][]byte{cp}}, rec.done)
		require.NoError(t, err)
		sess.Drive(0)
		next := rec.resps[len(rec.resps)-1].(*ua.BrowseNextResponse).Results[0]
		require.True(t, next.StatusCode.IsGood())
		for _, r := range next.References {
			names = append(names, r.BrowseName.Name)
		}
		cp = next.ContinuationPoint
	}
	assert.Equal(t, []string{"V0", "V1", "V2", "V3", "V4"}, names)

	// A consumed continuation point is gone.
	_, err = sess.Submit(&ua.BrowseNextRequest{ContinuationPoints: [][]byte{first.ContinuationPoint}}, rec.done)
	require.NoError(t, err)
	sess.Drive(0)
	stale := rec.resps[len(rec.resps)-1].(*ua.BrowseNextResponse).Results[0]
	assert.Equal(t, ua.StatusBadContinuationPointInvalid, stale.StatusCode)
}

func TestSessionMonitoredItems(t *testing.T) {
	s := NewServer()
	temp := ua.NewStringNodeID(2, "Temp")
	s.AddVariable(ua.ObjectsFolder, temp, "Temp", ua.MustVariant(1.0), true)
	sess := dial(t, s)

	var rec recorder
	_, err := sess.Submit(&ua.CreateSubscriptionRequest{RequestedPublishingInterval: 100}, rec.done)
	require.NoError(t, err)
	sess.Drive(0)
	subID := rec.resps[0].(*ua.CreateSubscriptionResponse).SubscriptionID

	var values []interface{}
	deleted := 0
	handler := engine.ItemHandler{
		Kind:       engine.KindDataChange,
		DataChange: func(_, _ uint32, v ua.DataValue) { values = append(values, v.Interface()) },
		Deleted:    func(_, _ uint32) { deleted++ },
	}
	req := &ua.CreateMonitoredItemsRequest{
		SubscriptionID: subID,
		ItemsToCreate: []ua.MonitoredItemCreateRequest{
			{ItemToMonitor: ua.ReadValueID{NodeID: temp, AttributeID: ua.AttributeValue}},
			{ItemToMonitor: ua.ReadValueID{NodeID: ua.NewStringNodeID(2, "Missing"), AttributeID: ua.AttributeValue}},
		},
	}
	_, err = sess.SubmitMonitoredItems(req, []engine.ItemHandler{handler, handler}, rec.done)
	require.NoError(t, err)
	sess.Drive(0)

	created := rec.resps[1].(*ua.CreateMonitoredItemsResponse)
	require.Len(t, created.Results, 2)
	assert.True(t, created.Results[0].StatusCode.IsGood())
	assert.Equal(t, ua.StatusBadNodeIdUnknown, created.Results[1].StatusCode)
	assert.Equal(t, []interface{}{1.0}, values, "initial value")

	require.NoError(t, s.SetValue(temp, ua.MustVariant(2.0)))
	sess.Drive(0)
	assert.Equal(t, []interface{}{1.0, 2.0}, values)

	s.RemoveNode(temp)
	sess.Drive(0)
	assert.Equal(t, 1, deleted)
	assert.Zero(t, s.MonitoredItemCount())
}

func TestSessionDisconnect(t *testing.T) {
	s := NewServer()
	sess := dial(t, s)

	var rec recorder
	_, err := sess.Submit(&ua.ReadRequest{NodesToRead: []ua.ReadValueID{{NodeID: ua.RootFolder, AttributeID: ua.AttributeNodeID}}}, rec.done)
	require.NoError(t, err)

	assert.Equal(t, ua.StatusGood, sess.Disconnect())
	_, err = sess.Submit(&ua.ReadRequest{}, rec.done)
	assert.ErrorIs(t, err, ua.StatusBadServerNotConnected)

	assert.Equal(t, ua.StatusBadDisconnect, sess.Drive(0))
	assert.Len(t, rec.resps, 1, "queued completion fires before the end")
	assert.Equal(t, ua.StatusBadDisconnect, sess.Drive(0))

	require.NoError(t, sess.Close())
	assert.Zero(t, s.SessionCount())
}

func TestSessionDriveFault(t *testing.T) {
	s := NewServer()
	sess := dial(t, s)
	s.SetDriveFault(ua.StatusBadInternalError)
	assert.Equal(t, ua.StatusBadInternalError, sess.Drive(0))
	s.SetDriveFault(ua.StatusGood)
	assert.Equal(t, ua.StatusGood, sess.Drive(0))
}

func TestCloseSessions(t *testing.T) {
	s := NewServer()
	sess := dial(t, s)
	s.CloseSessions()
	assert.Equal(t, ua.StatusBadConnectionClosed, sess.Drive(0))
	assert.True(t, sess.Drive(0).IsConnectionEnd())
}

func TestLoadServerFile(t *testing.T) {
	s, err := LoadServerFile("testdata/plant.yaml")
	require.NoError(t, err)
	sess := dial(t, s)

	var rec recorder
	_, err = sess.Submit(&ua.ReadRequest{NodesToRead: []ua.ReadValueID{
		{NodeID: ua.MustParseNodeID("ns=2;s=Plant.Line1.Temperature"), AttributeID: ua.AttributeValue},
		{NodeID: ua.MustParseNodeID("ns=2;s=Plant.Line1.Speed"), AttributeID: ua.AttributeValue},
		{NodeID: ua.MustParseNodeID("ns=2;s=Plant.Line1.Label"), AttributeID: ua.AttributeValue},
	}}, rec.done)
	require.NoError(t, err)
	sess.Drive(0)

	results := rec.resps[0].(*ua.ReadResponse).Results
	assert.Equal(t, 21.5, results[0].Interface())
	assert.Equal(t, ua.TypeInt32, results[1].Value.Type)
	assert.Equal(t, "line one", results[2].Interface())
}

func TestLoadServerErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "nodes: [", "failed to parse YAML"},
		{"bad id", "nodes:\n  - id: 'ns=x;i=1'\n", "invalid id"},
		{"unknown parent", "nodes:\n  - id: ns=2;s=A\n    parent: ns=2;s=Nope\n", "unknown parent"},
		{"duplicate", "nodes:\n  - id: ns=2;s=A\n  - id: ns=2;s=A\n", "duplicate id"},
		{"bad class", "nodes:\n  - id: ns=2;s=A\n    class: Gizmo\n", "unknown class"},
		{"bad value", "nodes:\n  - id: ns=2;s=A\n    class: Variable\n    type: Int32\n    value: hello\n", "invalid value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServer(strings.NewReader(tt.yaml))
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
