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
	"context"
	"log/slog"

	"github.com/edgeo-scada/opcua-async/ua"
)

// SlogAdapter writes events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("kind", event.Kind.String()),
	}
	if event.Service != "" {
		attrs = append(attrs, slog.String("service", event.Service))
	}
	if event.RequestID != 0 {
		attrs = append(attrs, slog.Uint64("request_id", uint64(event.RequestID)))
	}
	if event.Status != 0 {
		attrs = append(attrs, slog.String("status", ua.StatusCode(event.Status).String()))
	}
	if event.SubscriptionID != 0 {
		attrs = append(attrs, slog.Uint64("subscription_id", uint64(event.SubscriptionID)))
	}
	if event.ItemID != 0 {
		attrs = append(attrs, slog.Uint64("item_id", uint64(event.ItemID)))
	}
	if event.Duration != 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if event.State != "" {
		attrs = append(attrs, slog.String("state", event.State))
	}
	if event.Message != "" {
		attrs = append(attrs, slog.String("msg", event.Message))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
