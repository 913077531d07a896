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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edgeo-scada/opcua-async/ua"
)

func TestServiceError(t *testing.T) {
	err := NewServiceError(ua.ServiceRead, ua.StatusBadNodeIdUnknown, "ns=2;s=X")
	assert.Contains(t, err.Error(), "Read")
	assert.Contains(t, err.Error(), "ns=2;s=X")

	wrapped := fmt.Errorf("reading: %w", err)
	assert.True(t, IsNodeIDUnknown(wrapped))
	assert.True(t, IsBadStatusCode(wrapped))
	assert.ErrorIs(t, wrapped, ua.StatusBadNodeIdUnknown)
	assert.ErrorIs(t, wrapped, &ServiceError{StatusCode: ua.StatusBadNodeIdUnknown})
	assert.False(t, IsTimeout(wrapped))
}

func TestProtocolError(t *testing.T) {
	err := protocolErrorf("Read", "%d results for %d operations", 1, 2)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.EqualError(t, err, "opcua: protocol violation in Read: 1 results for 2 operations")
	assert.False(t, IsBadStatusCode(err))
}

func TestIsDisconnected(t *testing.T) {
	assert.True(t, IsDisconnected(ErrDisconnected))
	assert.True(t, IsDisconnected(fmt.Errorf("x: %w", ErrAlreadyDisconnected)))
	assert.True(t, IsDisconnected(NewServiceError(ua.ServiceRead, ua.StatusBadSessionClosed, "")))
	assert.False(t, IsDisconnected(NewServiceError(ua.ServiceRead, ua.StatusBadTimeout, "")))
	assert.False(t, IsDisconnected(errors.New("other")))
}

func TestSubmitErrorClassification(t *testing.T) {
	assert.NoError(t, submitError(ua.ServiceRead, nil))
	assert.True(t, IsNotConnected(submitError(ua.ServiceRead, ua.StatusBadServerNotConnected)))
	assert.True(t, IsDisconnected(submitError(ua.ServiceRead, ua.StatusBadDisconnect)))
	assert.ErrorIs(t, submitError(ua.ServiceRead, errors.New("eof")), ErrNotConnected)
}

func TestOptionBounds(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithPollInterval(0),
		WithQueueCapacity(-1),
		WithBrowseBatchSize(0),
		WithReadBatchSize(0),
		WithCreateBatchSize(0),
	} {
		opt(o)
	}
	assert.Equal(t, DefaultPollInterval, o.pollInterval)
	assert.Equal(t, DefaultQueueCapacity, o.queueCapacity)
	assert.Equal(t, DefaultBatchSize, o.browseBatchSize)
	assert.Equal(t, DefaultBatchSize, o.readBatchSize)
	assert.Equal(t, DefaultBatchSize, o.createBatchSize)

	WithPollInterval(50 * time.Millisecond)(o)
	assert.Equal(t, 50*time.Millisecond, o.pollInterval)
}

func TestParseOverflowPolicy(t *testing.T) {
	for _, p := range []OverflowPolicy{DropNewest, DropOldest} {
		got, ok := ParseOverflowPolicy(p.String())
		assert.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := ParseOverflowPolicy("block")
	assert.False(t, ok)
}

func TestMonitoredItemRequest(t *testing.T) {
	o := defaultMonitoredItemOptions()
	WithAttribute(ua.AttributeEventNotifier)(o)
	WithQueueSize(5)(o)
	req := o.request(plantNode)
	assert.True(t, req.IsEvent())
	assert.Equal(t, uint32(5), req.RequestedParameters.QueueSize)
	assert.Equal(t, ua.MonitoringModeReporting, req.MonitoringMode)
}

func TestMetricsCollect(t *testing.T) {
	m := NewMetrics()
	m.observe(ua.ServiceRead, 2*time.Millisecond, nil)
	m.observe(ua.ServiceRead, 3*time.Millisecond, errors.New("x"))
	m.ActiveSubscriptions.Add(1)

	assert.Equal(t, int64(2), m.ForService(ua.ServiceRead).Requests.Value())
	assert.Equal(t, int64(1), m.RequestsErrors.Value())

	stats := m.Collect()
	assert.Contains(t, stats, "services")
	assert.Equal(t, int64(1), stats["requests_success"])

	m.Reset()
	assert.Zero(t, m.RequestsSuccess.Value())
	assert.Equal(t, int64(1), m.ActiveSubscriptions.Value(), "gauges survive reset")
}
