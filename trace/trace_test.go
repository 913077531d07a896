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

package trace

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEvent(t *testing.T) {
	event := Event{
		Timestamp:    time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC),
		ConnectionID: "c-1",
		Kind:         KindComplete,
		Service:      "Read",
		RequestID:    7,
		Duration:     3 * time.Millisecond,
	}

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, event.Service, got.Service)
	assert.Equal(t, event.RequestID, got.RequestID)
	assert.Equal(t, event.Duration, got.Duration)
	assert.Equal(t, KindComplete, got.Kind)
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.trace")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := KindSubmit
			if i%2 == 1 {
				kind = KindDropped
			}
			logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c", Kind: kind, ItemID: uint32(i + 1)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(10), logger.Events())
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	logger.Log(Event{Kind: KindSubmit}) // ignored after close

	dropped := KindDropped
	r, err := NewReader(path, Filter{Kind: &dropped})
	require.NoError(t, err)
	defer r.Close()

	n := 0
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, KindDropped, ev.Kind)
		n++
	}
	assert.Equal(t, 5, n)
}

func TestFileLoggerBuffersUntilFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffered.trace")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	logger.Log(Event{ConnectionID: "c", Kind: KindSubmit, RequestID: 1})
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	require.NoError(t, logger.Flush())
	r, err := NewReader(path, Filter{})
	require.NoError(t, err)
	defer r.Close()
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), ev.RequestID)
	assert.NoError(t, logger.Err())
}

func TestFileLoggerKeepsFirstWriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.trace")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	// Closing the file underneath makes the next flush fail.
	require.NoError(t, logger.file.Close())
	logger.Log(Event{Kind: KindSubmit})
	require.Error(t, logger.Flush())
	first := logger.Err()

	logger.Log(Event{Kind: KindSubmit})
	assert.Equal(t, uint64(1), logger.Events())
	assert.Equal(t, first, logger.Err())
	assert.Error(t, logger.Close())
}

func TestStreamReaderFilter(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Event{ConnectionID: "a", Kind: KindSubmit, SubscriptionID: 1}))
	require.NoError(t, enc.Encode(Event{ConnectionID: "b", Kind: KindSubmit, SubscriptionID: 2}))

	r := NewStreamReader(&buf, Filter{ConnectionID: "b"})
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ev.SubscriptionID)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, r.Close())
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Log(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestMultiLogger(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMultiLogger(a, nil, b)
	m.Log(Event{Kind: KindStateChange, State: "connected"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(logger).Log(Event{
		ConnectionID: "c-9",
		Kind:         KindSubmitFailed,
		Service:      "Browse",
		Status:       0x80AE0000,
	})

	out := buf.String()
	assert.True(t, strings.Contains(out, "kind=SUBMIT_FAILED"), out)
	assert.Contains(t, out, "service=Browse")
	assert.Contains(t, out, "status=BadConnectionClosed")
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("POLL_FAULT")
	assert.True(t, ok)
	assert.Equal(t, KindPollFault, k)

	_, ok = ParseKind("nope")
	assert.False(t, ok)
}
