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
	"log/slog"
	"time"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/trace"
	"github.com/edgeo-scada/opcua-async/ua"
)

// Default client settings.
const (
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultQueueCapacity = 3
	DefaultBatchSize     = 1000
	DefaultTimeoutHint   = 5 * time.Second
)

// OverflowPolicy selects what a full notification channel discards.
type OverflowPolicy int

const (
	// DropNewest discards the incoming notification.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the oldest queued notification to make room.
	DropOldest
)

// String returns the policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the names returned by OverflowPolicy.String.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "drop-newest", "":
		return DropNewest, true
	case "drop-oldest":
		return DropOldest, true
	}
	return DropNewest, false
}

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

type clientOptions struct {
	dialer engine.Dialer

	pollInterval   time.Duration
	queueCapacity  int
	overflowPolicy OverflowPolicy
	timeoutHint    time.Duration

	// Batching caps
	browseBatchSize      int
	readBatchSize        int
	createBatchSize      int
	maxReferencesPerNode uint32

	// Callbacks
	onStateChange func(ConnectionState)

	logger *slog.Logger
	tracer trace.Logger
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		pollInterval:    DefaultPollInterval,
		queueCapacity:   DefaultQueueCapacity,
		overflowPolicy:  DropNewest,
		timeoutHint:     DefaultTimeoutHint,
		browseBatchSize: DefaultBatchSize,
		readBatchSize:   DefaultBatchSize,
		createBatchSize: DefaultBatchSize,
		logger:          slog.Default(),
		tracer:          trace.NoopLogger{},
	}
}

// WithDialer sets the engine factory used by Dial.
func WithDialer(d engine.Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithPollInterval sets how often the background loop drives the engine.
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithQueueCapacity sets the default notification channel capacity of
// monitored items.
func WithQueueCapacity(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// WithOverflowPolicy sets what full notification channels discard.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(o *clientOptions) {
		o.overflowPolicy = p
	}
}

// WithTimeoutHint sets the timeout hint placed in request headers.
func WithTimeoutHint(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeoutHint = d
	}
}

// WithBrowseBatchSize caps the number of nodes per Browse request issued
// by BrowseAll.
func WithBrowseBatchSize(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.browseBatchSize = n
		}
	}
}

// WithReadBatchSize caps the number of nodes per Read request issued by
// ReadMany.
func WithReadBatchSize(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.readBatchSize = n
		}
	}
}

// WithCreateBatchSize caps the number of items per CreateMonitoredItems
// request.
func WithCreateBatchSize(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.createBatchSize = n
		}
	}
}

// WithMaxReferencesPerNode sets the per-node reference limit requested
// from the server by Browse. Zero leaves the choice to the server.
func WithMaxReferencesPerNode(n uint32) Option {
	return func(o *clientOptions) {
		o.maxReferencesPerNode = n
	}
}

// WithOnStateChange sets a callback invoked on every connection state
// transition. Callbacks run in order on a dedicated goroutine and may
// call back into the client.
func WithOnStateChange(fn func(ConnectionState)) Option {
	return func(o *clientOptions) {
		o.onStateChange = fn
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the protocol event tracer.
func WithTracer(t trace.Logger) Option {
	return func(o *clientOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// PoolOption is a functional option for configuring the connection pool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	size            int
	healthCheckFreq time.Duration
	dialTimeout     time.Duration
	clientOpts      []Option
	logger          *slog.Logger
}

func defaultPoolOptions() *poolOptions {
	return &poolOptions{
		size:            5,
		healthCheckFreq: 1 * time.Minute,
		dialTimeout:     DefaultTimeoutHint,
		logger:          slog.Default(),
	}
}

// WithPoolSize sets the number of clients kept by the pool.
func WithPoolSize(size int) PoolOption {
	return func(o *poolOptions) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithHealthCheckFrequency sets how often to check connection health.
func WithHealthCheckFrequency(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.healthCheckFreq = d
		}
	}
}

// WithClientOptions sets the options to use when creating new client connections.
func WithClientOptions(opts ...Option) PoolOption {
	return func(o *poolOptions) {
		o.clientOpts = opts
	}
}

// WithPoolLogger sets the logger for pool maintenance messages.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(o *poolOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// SubscriptionOption is a functional option for configuring subscriptions.
type SubscriptionOption func(*subscriptionOptions)

type subscriptionOptions struct {
	publishingInterval float64
	lifetimeCount      uint32
	maxKeepAliveCount  uint32
	maxNotifications   uint32
	publishingEnabled  bool
	priority           uint8
}

func defaultSubscriptionOptions() *subscriptionOptions {
	return &subscriptionOptions{
		publishingInterval: 1000, // 1 second
		lifetimeCount:      10000,
		maxKeepAliveCount:  10,
		maxNotifications:   0, // unlimited
		publishingEnabled:  true,
		priority:           0,
	}
}

// WithPublishingInterval sets the publishing interval in milliseconds.
func WithPublishingInterval(interval float64) SubscriptionOption {
	return func(o *subscriptionOptions) {
		o.publishingInterval = interval
	}
}

// WithLifetimeCount sets the lifetime count.
func WithLifetimeCount(count uint32) SubscriptionOption {
	return func(o *subscriptionOptions) {
		o.lifetimeCount = count
	}
}

// WithMaxKeepAliveCount sets the max keep alive count.
func WithMaxKeepAliveCount(count uint32) SubscriptionOption {
	return func(o *subscriptionOptions) {
		o.maxKeepAliveCount = count
	}
}

// WithMaxNotificationsPerPublish sets the max notifications per publish.
func WithMaxNotificationsPerPublish(count uint32) SubscriptionOption {
	return func(o *subscriptionOptions) {
		o.maxNotifications = count
	}
}

// WithPublishingEnabled sets whether publishing is enabled.
func WithPublishingEnabled(enabled bool) SubscriptionOption {
	return func(o *subscriptionOptions) {
		o.publishingEnabled = enabled
	}
}

// WithPriority sets the subscription priority.
func WithPriority(priority uint8) SubscriptionOption {
	return func(o *subscriptionOptions) {
		o.priority = priority
	}
}

// MonitoredItemOption is a functional option for configuring monitored items.
type MonitoredItemOption func(*monitoredItemOptions)

type monitoredItemOptions struct {
	attributeID      ua.AttributeID
	samplingInterval float64
	queueSize        uint32
	discardOldest    bool
	monitoringMode   ua.MonitoringMode
	filter           ua.MonitoringFilter
	capacity         int // 0 uses the client default
}

func defaultMonitoredItemOptions() *monitoredItemOptions {
	return &monitoredItemOptions{
		attributeID:      ua.AttributeValue,
		samplingInterval: 250, // 250 ms
		queueSize:        10,
		discardOldest:    true,
		monitoringMode:   ua.MonitoringModeReporting,
	}
}

// WithAttribute sets the monitored attribute. ua.AttributeEventNotifier
// creates an event item.
func WithAttribute(id ua.AttributeID) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.attributeID = id
	}
}

// WithSamplingInterval sets the sampling interval in milliseconds.
func WithSamplingInterval(interval float64) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.samplingInterval = interval
	}
}

// WithQueueSize sets the server-side queue size.
func WithQueueSize(size uint32) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.queueSize = size
	}
}

// WithDiscardOldest sets whether the server discards oldest values when
// its queue is full.
func WithDiscardOldest(discard bool) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.discardOldest = discard
	}
}

// WithMonitoringMode sets the monitoring mode.
func WithMonitoringMode(mode ua.MonitoringMode) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.monitoringMode = mode
	}
}

// WithFilter sets the data change or event filter.
func WithFilter(filter ua.MonitoringFilter) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.filter = filter
	}
}

// WithItemQueueCapacity overrides the client-side notification channel
// capacity for one item.
func WithItemQueueCapacity(n int) MonitoredItemOption {
	return func(o *monitoredItemOptions) {
		o.capacity = n
	}
}

func (o *monitoredItemOptions) request(nodeID ua.NodeID) ua.MonitoredItemCreateRequest {
	return ua.MonitoredItemCreateRequest{
		ItemToMonitor: ua.ReadValueID{
			NodeID:      nodeID,
			AttributeID: o.attributeID,
		},
		MonitoringMode: o.monitoringMode,
		RequestedParameters: ua.MonitoringParameters{
			SamplingInterval: o.samplingInterval,
			Filter:           o.filter,
			QueueSize:        o.queueSize,
			DiscardOldest:    o.discardOldest,
		},
	}
}
