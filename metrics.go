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
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo-scada/opcua-async/ua"
)

// Counter is an atomic counter. Gauges use Add with negative deltas.
type Counter struct {
	value int64
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset resets the counter to zero.
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}

var latencyBounds = []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000} // ms
var latencyLabels = []string{"100us", "500us", "1ms", "5ms", "10ms", "25ms", "50ms", "100ms", "250ms", "500ms", "1s", "5s+"}

// LatencyHistogram tracks latency distribution.
type LatencyHistogram struct {
	mu      sync.Mutex
	buckets []int64
	sum     float64 // ms
	count   int64
	min     float64
	max     float64
}

// NewLatencyHistogram creates a new latency histogram with default buckets.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		buckets: make([]int64, len(latencyBounds)),
		min:     -1,
		max:     -1,
	}
}

// Observe records a latency observation.
func (h *LatencyHistogram) Observe(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += ms
	h.count++

	if h.min < 0 || ms < h.min {
		h.min = ms
	}
	if ms > h.max {
		h.max = ms
	}

	for i, bound := range latencyBounds {
		if ms <= bound {
			h.buckets[i]++
			return
		}
	}
	h.buckets[len(h.buckets)-1]++
}

// Stats returns histogram statistics.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := LatencyStats{
		Count:   h.count,
		Sum:     h.sum,
		Buckets: make(map[string]int64, len(h.buckets)),
	}
	if h.count > 0 {
		stats.Avg = h.sum / float64(h.count)
		stats.Min = h.min
		stats.Max = h.max
	}
	for i, count := range h.buckets {
		stats.Buckets[latencyLabels[i]] = count
	}
	return stats
}

// Reset resets the histogram.
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.buckets {
		h.buckets[i] = 0
	}
	h.sum = 0
	h.count = 0
	h.min = -1
	h.max = -1
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int64
	Sum     float64
	Avg     float64
	Min     float64
	Max     float64
	Buckets map[string]int64
}

// Metrics holds all client metrics.
type Metrics struct {
	RequestsTotal   Counter
	RequestsSuccess Counter
	RequestsErrors  Counter
	SubmitFailures  Counter
	Abandoned       Counter
	Pending         Counter

	ActiveSubscriptions Counter
	MonitoredItems      Counter

	NotificationsDelivered Counter
	NotificationsDropped   Counter

	PollCycles   Counter
	MissedCycles Counter

	Latency *LatencyHistogram

	serviceMetrics sync.Map // ua.ServiceID -> *ServiceMetrics
}

// ServiceMetrics holds metrics for a specific service.
type ServiceMetrics struct {
	Requests Counter
	Errors   Counter
	Latency  *LatencyHistogram
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		Latency: NewLatencyHistogram(),
	}
}

// ForService returns metrics for a specific service.
func (m *Metrics) ForService(svc ua.ServiceID) *ServiceMetrics {
	if val, ok := m.serviceMetrics.Load(svc); ok {
		return val.(*ServiceMetrics)
	}

	sm := &ServiceMetrics{
		Latency: NewLatencyHistogram(),
	}
	actual, _ := m.serviceMetrics.LoadOrStore(svc, sm)
	return actual.(*ServiceMetrics)
}

func (m *Metrics) observe(svc ua.ServiceID, d time.Duration, err error) {
	sm := m.ForService(svc)
	sm.Requests.Add(1)
	sm.Latency.Observe(d)
	m.Latency.Observe(d)
	if err != nil {
		sm.Errors.Add(1)
		m.RequestsErrors.Add(1)
		return
	}
	m.RequestsSuccess.Add(1)
}

// Collect returns all metrics as a map (compatible with expvar/prometheus).
func (m *Metrics) Collect() map[string]interface{} {
	result := map[string]interface{}{
		"requests_total":          m.RequestsTotal.Value(),
		"requests_success":        m.RequestsSuccess.Value(),
		"requests_errors":         m.RequestsErrors.Value(),
		"submit_failures":         m.SubmitFailures.Value(),
		"abandoned":               m.Abandoned.Value(),
		"pending":                 m.Pending.Value(),
		"active_subscriptions":    m.ActiveSubscriptions.Value(),
		"monitored_items":         m.MonitoredItems.Value(),
		"notifications_delivered": m.NotificationsDelivered.Value(),
		"notifications_dropped":   m.NotificationsDropped.Value(),
		"poll_cycles":             m.PollCycles.Value(),
		"missed_cycles":           m.MissedCycles.Value(),
		"latency":                 m.Latency.Stats(),
	}

	serviceStats := make(map[string]interface{})
	m.serviceMetrics.Range(func(key, value interface{}) bool {
		svc := key.(ua.ServiceID)
		sm := value.(*ServiceMetrics)
		serviceStats[svc.String()] = map[string]interface{}{
			"requests": sm.Requests.Value(),
			"errors":   sm.Errors.Value(),
			"latency":  sm.Latency.Stats(),
		}
		return true
	})
	if len(serviceStats) > 0 {
		result["services"] = serviceStats
	}

	return result
}

// Reset resets the cumulative counters. Gauges (pending, subscriptions,
// items) are left alone.
func (m *Metrics) Reset() {
	m.RequestsTotal.Reset()
	m.RequestsSuccess.Reset()
	m.RequestsErrors.Reset()
	m.SubmitFailures.Reset()
	m.Abandoned.Reset()
	m.NotificationsDelivered.Reset()
	m.NotificationsDropped.Reset()
	m.PollCycles.Reset()
	m.MissedCycles.Reset()
	m.Latency.Reset()

	m.serviceMetrics.Range(func(key, value interface{}) bool {
		sm := value.(*ServiceMetrics)
		sm.Requests.Reset()
		sm.Errors.Reset()
		sm.Latency.Reset()
		return true
	})
}

// PoolMetrics holds connection pool metrics.
type PoolMetrics struct {
	TotalConnections   Counter
	IdleConnections    Counter
	ActiveConnections  Counter
	ConnectionsCreated Counter
	ConnectionsClosed  Counter
	WaitCount          Counter
	WaitDuration       *LatencyHistogram
}

// NewPoolMetrics creates a new PoolMetrics instance.
func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{
		WaitDuration: NewLatencyHistogram(),
	}
}

// Collect returns all pool metrics as a map.
func (m *PoolMetrics) Collect() map[string]interface{} {
	return map[string]interface{}{
		"total_connections":   m.TotalConnections.Value(),
		"idle_connections":    m.IdleConnections.Value(),
		"active_connections":  m.ActiveConnections.Value(),
		"connections_created": m.ConnectionsCreated.Value(),
		"connections_closed":  m.ConnectionsClosed.Value(),
		"wait_count":          m.WaitCount.Value(),
		"wait_duration":       m.WaitDuration.Stats(),
	}
}
