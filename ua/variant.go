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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeID represents an OPC UA built-in type.
type TypeID uint8

// OPC UA Built-in Types.
const (
	TypeNull            TypeID = 0
	TypeBoolean         TypeID = 1
	TypeSByte           TypeID = 2
	TypeByte            TypeID = 3
	TypeInt16           TypeID = 4
	TypeUInt16          TypeID = 5
	TypeInt32           TypeID = 6
	TypeUInt32          TypeID = 7
	TypeInt64           TypeID = 8
	TypeUInt64          TypeID = 9
	TypeFloat           TypeID = 10
	TypeDouble          TypeID = 11
	TypeString          TypeID = 12
	TypeDateTime        TypeID = 13
	TypeGUID            TypeID = 14
	TypeByteString      TypeID = 15
	TypeXMLElement      TypeID = 16
	TypeNodeID          TypeID = 17
	TypeExpandedNodeID  TypeID = 18
	TypeStatusCode      TypeID = 19
	TypeQualifiedName   TypeID = 20
	TypeLocalizedText   TypeID = 21
	TypeExtensionObject TypeID = 22
	TypeDataValue       TypeID = 23
	TypeVariant         TypeID = 24
	TypeDiagnosticInfo  TypeID = 25
)

var typeNames = map[TypeID]string{
	TypeNull:          "Null",
	TypeBoolean:       "Boolean",
	TypeSByte:         "SByte",
	TypeByte:          "Byte",
	TypeInt16:         "Int16",
	TypeUInt16:        "UInt16",
	TypeInt32:         "Int32",
	TypeUInt32:        "UInt32",
	TypeInt64:         "Int64",
	TypeUInt64:        "UInt64",
	TypeFloat:         "Float",
	TypeDouble:        "Double",
	TypeString:        "String",
	TypeDateTime:      "DateTime",
	TypeGUID:          "Guid",
	TypeByteString:    "ByteString",
	TypeNodeID:        "NodeId",
	TypeStatusCode:    "StatusCode",
	TypeQualifiedName: "QualifiedName",
	TypeLocalizedText: "LocalizedText",
}

// String returns the built-in type name.
func (t TypeID) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TypeID(%d)", uint8(t))
}

// Variant represents an OPC UA Variant.
type Variant struct {
	Type  TypeID
	Value interface{}
}

// NewVariant wraps a Go value, inferring its built-in type. Values of
// unsupported Go types are rejected.
func NewVariant(v interface{}) (Variant, error) {
	switch v.(type) {
	case nil:
		return Variant{Type: TypeNull}, nil
	case bool:
		return Variant{Type: TypeBoolean, Value: v}, nil
	case int8:
		return Variant{Type: TypeSByte, Value: v}, nil
	case uint8:
		return Variant{Type: TypeByte, Value: v}, nil
	case int16:
		return Variant{Type: TypeInt16, Value: v}, nil
	case uint16:
		return Variant{Type: TypeUInt16, Value: v}, nil
	case int32:
		return Variant{Type: TypeInt32, Value: v}, nil
	case uint32:
		return Variant{Type: TypeUInt32, Value: v}, nil
	case int64:
		return Variant{Type: TypeInt64, Value: v}, nil
	case int:
		return Variant{Type: TypeInt64, Value: int64(v.(int))}, nil
	case uint64:
		return Variant{Type: TypeUInt64, Value: v}, nil
	case float32:
		return Variant{Type: TypeFloat, Value: v}, nil
	case float64:
		return Variant{Type: TypeDouble, Value: v}, nil
	case string:
		return Variant{Type: TypeString, Value: v}, nil
	case time.Time:
		return Variant{Type: TypeDateTime, Value: v}, nil
	case uuid.UUID:
		return Variant{Type: TypeGUID, Value: v}, nil
	case []byte:
		return Variant{Type: TypeByteString, Value: v}, nil
	case NodeID:
		return Variant{Type: TypeNodeID, Value: v}, nil
	case StatusCode:
		return Variant{Type: TypeStatusCode, Value: v}, nil
	case QualifiedName:
		return Variant{Type: TypeQualifiedName, Value: v}, nil
	case LocalizedText:
		return Variant{Type: TypeLocalizedText, Value: v}, nil
	default:
		return Variant{}, fmt.Errorf("ua: unsupported variant value %T", v)
	}
}

// MustVariant is like NewVariant but panics on unsupported values.
func MustVariant(v interface{}) Variant {
	vr, err := NewVariant(v)
	if err != nil {
		panic(err)
	}
	return vr
}

// String formats the variant value for display.
func (v Variant) String() string {
	switch val := v.Value.(type) {
	case nil:
		return "null"
	case NodeID:
		return val.String()
	case LocalizedText:
		return val.Text
	case QualifiedName:
		return val.Name
	case []byte:
		return fmt.Sprintf("%x", val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DataValue represents an OPC UA DataValue.
type DataValue struct {
	Value           *Variant
	StatusCode      StatusCode
	SourceTimestamp time.Time
	ServerTimestamp time.Time
}

// NewDataValue returns a Good DataValue carrying v with both timestamps
// set to ts.
func NewDataValue(v Variant, ts time.Time) DataValue {
	return DataValue{
		Value:           &v,
		StatusCode:      StatusGood,
		SourceTimestamp: ts,
		ServerTimestamp: ts,
	}
}

// Interface returns the Go value carried by the DataValue, or nil.
func (d DataValue) Interface() interface{} {
	if d.Value == nil {
		return nil
	}
	return d.Value.Value
}
