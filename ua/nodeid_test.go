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

package ua

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeID(t *testing.T) {
	guid := uuid.MustParse("72962b91-fa75-4ae6-8d28-b404dc7daf63")

	tests := []struct {
		in   string
		want NodeID
	}{
		{"i=85", NewNumericNodeID(0, 85)},
		{"ns=2;i=1001", NewNumericNodeID(2, 1001)},
		{"ns=3;s=Boiler.Temp", NewStringNodeID(3, "Boiler.Temp")},
		{"s=Plain", NewStringNodeID(0, "Plain")},
		{"ns=1;g=72962b91-fa75-4ae6-8d28-b404dc7daf63", NewGUIDNodeID(1, guid)},
		{"b=cafe", NewOpaqueNodeID(0, []byte{0xca, 0xfe})},
		{"42", NewNumericNodeID(0, 42)},
		{"ns=4;Pump", NewStringNodeID(4, "Pump")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNodeID(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseNodeIDErrors(t *testing.T) {
	for _, in := range []string{"", "ns=2", "ns=x;i=1", "i=abc", "g=not-a-guid", "b=zz"} {
		_, err := ParseNodeID(in)
		assert.ErrorIs(t, err, ErrInvalidNodeID, in)
	}
}

func TestNodeIDStringRoundTrip(t *testing.T) {
	for _, s := range []string{"i=2253", "ns=2;s=Line1/Motor", "ns=7;b=00ff"} {
		n := MustParseNodeID(s)
		assert.Equal(t, s, n.String())
	}
}

func TestNodeIDText(t *testing.T) {
	var n NodeID
	require.NoError(t, n.UnmarshalText([]byte("ns=2;i=7")))
	b, err := n.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ns=2;i=7", string(b))
	assert.False(t, n.IsNull())
	assert.True(t, NodeID{}.IsNull())
}
