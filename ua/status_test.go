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

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeSeverity(t *testing.T) {
	assert.True(t, StatusGood.IsGood())
	assert.True(t, StatusGoodMoreData.IsGood())
	assert.True(t, StatusUncertainInitialValue.IsUncertain())
	assert.True(t, StatusBadNodeIdUnknown.IsBad())
	assert.False(t, StatusBadNodeIdUnknown.IsGood())
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "BadTimeout", StatusBadTimeout.String())
	assert.Equal(t, "StatusCode(0x80FF0000)", StatusCode(0x80FF0000).String())
	assert.Equal(t, "The operation failed", StatusCode(0x80FF0000).Description())
	assert.Contains(t, StatusBadTimeout.Error(), "0x800A0000")
}

func TestStatusCodeConnectionEnd(t *testing.T) {
	assert.True(t, StatusBadConnectionClosed.IsConnectionEnd())
	assert.True(t, StatusBadDisconnect.IsConnectionEnd())
	assert.False(t, StatusBadInternalError.IsConnectionEnd())
}

func TestParseStatusCode(t *testing.T) {
	sc, ok := ParseStatusCode("BadNodeIdUnknown")
	assert.True(t, ok)
	assert.Equal(t, StatusBadNodeIdUnknown, sc)

	_, ok = ParseStatusCode("NoSuchCode")
	assert.False(t, ok)
}

func TestNewVariant(t *testing.T) {
	v, err := NewVariant(3.5)
	assert.NoError(t, err)
	assert.Equal(t, TypeDouble, v.Type)

	v, err = NewVariant(7)
	assert.NoError(t, err)
	assert.Equal(t, TypeInt64, v.Type)
	assert.Equal(t, int64(7), v.Value)

	_, err = NewVariant(struct{}{})
	assert.Error(t, err)

	dv := NewDataValue(MustVariant("on"), DataValue{}.SourceTimestamp)
	assert.Equal(t, "on", dv.Interface())
	assert.Nil(t, DataValue{}.Interface())
}

func TestMonitoredItemCreateRequestIsEvent(t *testing.T) {
	r := MonitoredItemCreateRequest{ItemToMonitor: ReadValueID{AttributeID: AttributeValue}}
	assert.False(t, r.IsEvent())

	r.ItemToMonitor.AttributeID = AttributeEventNotifier
	assert.True(t, r.IsEvent())

	r = MonitoredItemCreateRequest{RequestedParameters: MonitoringParameters{Filter: EventFilter{}}}
	assert.True(t, r.IsEvent())
}
