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
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a file as a CBOR stream. Writes are
// buffered until Flush or Close. The first write failure is kept and
// stops further logging.
type FileLogger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	enc    *cbor.Encoder
	events uint64
	err    error
	closed bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	return &FileLogger{
		path: path,
		file: f,
		w:    w,
		enc:  NewEncoder(w),
	}, nil
}

// Log buffers the event. It is a no-op after Close or a write failure.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.err != nil {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.err = fmt.Errorf("trace: write %s: %w", l.path, err)
		return
	}
	l.events++
}

// Flush writes buffered events to the file.
func (l *FileLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *FileLogger) flushLocked() error {
	if l.closed || l.err != nil {
		return l.err
	}
	if err := l.w.Flush(); err != nil {
		l.err = fmt.Errorf("trace: write %s: %w", l.path, err)
	}
	return l.err
}

// Events returns how many events were encoded.
func (l *FileLogger) Events() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// Err returns the first write failure, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close flushes and closes the file. Later Log calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	flushErr := l.flushLocked()
	l.closed = true
	if err := l.file.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

var _ Logger = (*FileLogger)(nil)
