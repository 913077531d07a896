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

// Package trace records machine-readable client protocol events.
//
// Events are written by the client runtime for request submission and
// completion, notification delivery and drops, and connection state
// changes. A FileLogger stores them as a CBOR stream that a Reader can
// replay; a SlogAdapter prints them during development.
package trace

import (
	"time"
)

// Event is one protocol event. CBOR encoding uses integer keys.
type Event struct {
	Timestamp      time.Time     `cbor:"1,keyasint"`
	ConnectionID   string        `cbor:"2,keyasint"`
	Kind           Kind          `cbor:"3,keyasint"`
	Service        string        `cbor:"4,keyasint,omitempty"`
	RequestID      uint32        `cbor:"5,keyasint,omitempty"`
	Status         uint32        `cbor:"6,keyasint,omitempty"`
	SubscriptionID uint32        `cbor:"7,keyasint,omitempty"`
	ItemID         uint32        `cbor:"8,keyasint,omitempty"`
	Duration       time.Duration `cbor:"9,keyasint,omitempty"`
	State          string        `cbor:"10,keyasint,omitempty"`
	Message        string        `cbor:"11,keyasint,omitempty"`
}

// Kind classifies an event.
type Kind uint8

const (
	KindSubmit Kind = iota
	KindComplete
	KindSubmitFailed
	KindAbandoned
	KindNotification
	KindDropped
	KindItemDeleted
	KindStateChange
	KindPollFault
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSubmit:
		return "SUBMIT"
	case KindComplete:
		return "COMPLETE"
	case KindSubmitFailed:
		return "SUBMIT_FAILED"
	case KindAbandoned:
		return "ABANDONED"
	case KindNotification:
		return "NOTIFICATION"
	case KindDropped:
		return "DROPPED"
	case KindItemDeleted:
		return "ITEM_DELETED"
	case KindStateChange:
		return "STATE_CHANGE"
	case KindPollFault:
		return "POLL_FAULT"
	default:
		return "UNKNOWN"
	}
}

// ParseKind returns the Kind whose String matches s.
func ParseKind(s string) (Kind, bool) {
	for k := KindSubmit; k <= KindPollFault; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
