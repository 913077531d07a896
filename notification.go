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
	"sync"
	"sync/atomic"

	"github.com/edgeo-scada/opcua-async/engine"
	"github.com/edgeo-scada/opcua-async/ua"
)

// Notification is one value delivered to a monitored item. Exactly one of
// Value (data change items) and Fields (event items) is meaningful,
// according to Kind.
type Notification struct {
	Kind   engine.NotificationKind
	Value  ua.DataValue
	Fields []ua.Variant
}

// notificationChannel is a bounded FIFO with one producer, the poll
// loop. push never blocks.
type notificationChannel struct {
	mu       sync.Mutex
	buf      []Notification
	capacity int
	policy   OverflowPolicy
	closed   bool
	signal   chan struct{} // closed on close
	wake     chan struct{} // capacity 1

	dropped atomic.Uint64

	streamOnce sync.Once
	stream     chan Notification
	quit       chan struct{} // closed by abandon
	quitOnce   sync.Once
}

func newNotificationChannel(capacity int, policy OverflowPolicy) *notificationChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &notificationChannel{
		buf:      make([]Notification, 0, capacity),
		capacity: capacity,
		policy:   policy,
		signal:   make(chan struct{}),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

type pushResult int

const (
	pushQueued pushResult = iota
	pushEvicted // queued after discarding the oldest
	pushDropped // discarded
	pushClosed
)

// push queues n according to the overflow policy.
func (ch *notificationChannel) push(n Notification) pushResult {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return pushClosed
	}
	result := pushQueued
	if len(ch.buf) == ch.capacity {
		ch.dropped.Add(1)
		if ch.policy != DropOldest {
			return pushDropped
		}
		copy(ch.buf, ch.buf[1:])
		ch.buf = ch.buf[:len(ch.buf)-1]
		result = pushEvicted
	}
	ch.buf = append(ch.buf, n)

	select {
	case ch.wake <- struct{}{}:
	default:
	}
	return result
}

// next returns the oldest queued notification, waiting for one if
// needed. Once the channel is closed and drained it returns
// ErrItemClosed.
func (ch *notificationChannel) next(ctx context.Context) (Notification, error) {
	return ch.receive(ctx, nil)
}

// receive is next that also gives up with ErrItemClosed when quit is
// closed.
func (ch *notificationChannel) receive(ctx context.Context, quit <-chan struct{}) (Notification, error) {
	for {
		ch.mu.Lock()
		if len(ch.buf) > 0 {
			n := ch.buf[0]
			copy(ch.buf, ch.buf[1:])
			ch.buf = ch.buf[:len(ch.buf)-1]
			if len(ch.buf) > 0 {
				select {
				case ch.wake <- struct{}{}:
				default:
				}
			}
			ch.mu.Unlock()
			return n, nil
		}
		closed := ch.closed
		ch.mu.Unlock()

		if closed {
			return Notification{}, ErrItemClosed
		}

		select {
		case <-ch.wake:
		case <-ch.signal:
		case <-quit:
			return Notification{}, ErrItemClosed
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		}
	}
}

// notifications returns a channel fed from the queue that is closed once
// the queue is closed and drained, or once the channel is abandoned. The
// pump holds at most one value outside the queue.
func (ch *notificationChannel) notifications() <-chan Notification {
	ch.streamOnce.Do(func() {
		ch.stream = make(chan Notification)
		go func() {
			defer close(ch.stream)
			for {
				select {
				case <-ch.quit:
					return
				default:
				}
				n, err := ch.receive(context.Background(), ch.quit)
				if err != nil {
					return
				}
				select {
				case ch.stream <- n:
				case <-ch.quit:
					return
				}
			}
		}()
	})
	return ch.stream
}

// abandon stops the stream pump. Values it has not handed over are
// discarded; the queue itself stays readable through next.
func (ch *notificationChannel) abandon() {
	ch.quitOnce.Do(func() { close(ch.quit) })
}

// close marks the channel closed. Queued notifications remain readable.
func (ch *notificationChannel) close() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return false
	}
	ch.closed = true
	close(ch.signal)
	return true
}

func (ch *notificationChannel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *notificationChannel) len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.buf)
}
