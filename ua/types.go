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

// Package ua holds the OPC UA value types and service shapes exchanged
// between the client runtime and a protocol engine.
package ua

import (
	"github.com/google/uuid"
)

// NodeIDType represents the type of a NodeID.
type NodeIDType uint8

// NodeID types.
const (
	NodeIDTypeNumeric NodeIDType = iota
	NodeIDTypeString
	NodeIDTypeGUID
	NodeIDTypeOpaque
)

// NodeID represents an OPC UA NodeID.
type NodeID struct {
	Type      NodeIDType
	Namespace uint16
	Numeric   uint32
	StringID  string
	GUID      uuid.UUID
	Opaque    []byte
}

// NewNumericNodeID creates a new numeric NodeID.
func NewNumericNodeID(namespace uint16, id uint32) NodeID {
	return NodeID{
		Type:      NodeIDTypeNumeric,
		Namespace: namespace,
		Numeric:   id,
	}
}

// NewStringNodeID creates a new string NodeID.
func NewStringNodeID(namespace uint16, id string) NodeID {
	return NodeID{
		Type:      NodeIDTypeString,
		Namespace: namespace,
		StringID:  id,
	}
}

// NewGUIDNodeID creates a new GUID NodeID.
func NewGUIDNodeID(namespace uint16, id uuid.UUID) NodeID {
	return NodeID{
		Type:      NodeIDTypeGUID,
		Namespace: namespace,
		GUID:      id,
	}
}

// NewOpaqueNodeID creates a new opaque NodeID.
func NewOpaqueNodeID(namespace uint16, id []byte) NodeID {
	return NodeID{
		Type:      NodeIDTypeOpaque,
		Namespace: namespace,
		Opaque:    id,
	}
}

// IsNull reports whether n is the null NodeID (ns=0;i=0).
func (n NodeID) IsNull() bool {
	return n.Type == NodeIDTypeNumeric && n.Namespace == 0 && n.Numeric == 0
}

// Well-known nodes of namespace 0.
var (
	RootFolder           = NewNumericNodeID(0, 84)
	ObjectsFolder        = NewNumericNodeID(0, 85)
	TypesFolder          = NewNumericNodeID(0, 86)
	ViewsFolder          = NewNumericNodeID(0, 87)
	Server               = NewNumericNodeID(0, 2253)
	HierarchicalRefs     = NewNumericNodeID(0, 33)
	OrganizesRef         = NewNumericNodeID(0, 35)
	HasComponentRef      = NewNumericNodeID(0, 47)
	HasPropertyRef       = NewNumericNodeID(0, 46)
	BaseEventType        = NewNumericNodeID(0, 2041)
	BaseDataVariableType = NewNumericNodeID(0, 63)
	FolderType           = NewNumericNodeID(0, 61)
)

// ServiceID represents an OPC UA service identifier.
type ServiceID uint32

// OPC UA Service IDs used by the client runtime.
const (
	ServiceBrowse               ServiceID = 527
	ServiceBrowseNext           ServiceID = 533
	ServiceRead                 ServiceID = 631
	ServiceWrite                ServiceID = 673
	ServiceCall                 ServiceID = 712
	ServiceCreateMonitoredItems ServiceID = 751
	ServiceDeleteMonitoredItems ServiceID = 781
	ServiceCreateSubscription   ServiceID = 787
	ServiceDeleteSubscriptions  ServiceID = 847
)

// String returns the string representation of a ServiceID.
func (s ServiceID) String() string {
	switch s {
	case ServiceBrowse:
		return "Browse"
	case ServiceBrowseNext:
		return "BrowseNext"
	case ServiceRead:
		return "Read"
	case ServiceWrite:
		return "Write"
	case ServiceCall:
		return "Call"
	case ServiceCreateMonitoredItems:
		return "CreateMonitoredItems"
	case ServiceDeleteMonitoredItems:
		return "DeleteMonitoredItems"
	case ServiceCreateSubscription:
		return "CreateSubscription"
	case ServiceDeleteSubscriptions:
		return "DeleteSubscriptions"
	default:
		return "Unknown"
	}
}

// AttributeID represents an OPC UA attribute identifier.
type AttributeID uint32

// OPC UA Attribute IDs.
const (
	AttributeNodeID                  AttributeID = 1
	AttributeNodeClass               AttributeID = 2
	AttributeBrowseName              AttributeID = 3
	AttributeDisplayName             AttributeID = 4
	AttributeDescription             AttributeID = 5
	AttributeWriteMask               AttributeID = 6
	AttributeUserWriteMask           AttributeID = 7
	AttributeIsAbstract              AttributeID = 8
	AttributeSymmetric               AttributeID = 9
	AttributeInverseName             AttributeID = 10
	AttributeContainsNoLoops         AttributeID = 11
	AttributeEventNotifier           AttributeID = 12
	AttributeValue                   AttributeID = 13
	AttributeDataType                AttributeID = 14
	AttributeValueRank               AttributeID = 15
	AttributeArrayDimensions         AttributeID = 16
	AttributeAccessLevel             AttributeID = 17
	AttributeUserAccessLevel         AttributeID = 18
	AttributeMinimumSamplingInterval AttributeID = 19
	AttributeHistorizing             AttributeID = 20
	AttributeExecutable              AttributeID = 21
	AttributeUserExecutable          AttributeID = 22
)

var attributeNames = map[AttributeID]string{
	AttributeNodeID:                  "NodeId",
	AttributeNodeClass:               "NodeClass",
	AttributeBrowseName:              "BrowseName",
	AttributeDisplayName:             "DisplayName",
	AttributeDescription:             "Description",
	AttributeWriteMask:               "WriteMask",
	AttributeUserWriteMask:           "UserWriteMask",
	AttributeIsAbstract:              "IsAbstract",
	AttributeSymmetric:               "Symmetric",
	AttributeInverseName:             "InverseName",
	AttributeContainsNoLoops:         "ContainsNoLoops",
	AttributeEventNotifier:           "EventNotifier",
	AttributeValue:                   "Value",
	AttributeDataType:                "DataType",
	AttributeValueRank:               "ValueRank",
	AttributeArrayDimensions:         "ArrayDimensions",
	AttributeAccessLevel:             "AccessLevel",
	AttributeUserAccessLevel:         "UserAccessLevel",
	AttributeMinimumSamplingInterval: "MinimumSamplingInterval",
	AttributeHistorizing:             "Historizing",
	AttributeExecutable:              "Executable",
	AttributeUserExecutable:          "UserExecutable",
}

// String returns the string representation of an AttributeID.
func (a AttributeID) String() string {
	if name, ok := attributeNames[a]; ok {
		return name
	}
	return "Unknown"
}

// NodeClass represents the class of an OPC UA node.
type NodeClass uint32

// OPC UA Node Classes.
const (
	NodeClassUnspecified   NodeClass = 0
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

// String returns the string representation of a NodeClass.
func (n NodeClass) String() string {
	switch n {
	case NodeClassUnspecified:
		return "Unspecified"
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	case NodeClassObjectType:
		return "ObjectType"
	case NodeClassVariableType:
		return "VariableType"
	case NodeClassReferenceType:
		return "ReferenceType"
	case NodeClassDataType:
		return "DataType"
	case NodeClassView:
		return "View"
	default:
		return "Unknown"
	}
}

// ParseNodeClass returns the NodeClass named s (case sensitive, as
// returned by String).
func ParseNodeClass(s string) (NodeClass, bool) {
	for _, c := range []NodeClass{
		NodeClassObject, NodeClassVariable, NodeClassMethod, NodeClassObjectType,
		NodeClassVariableType, NodeClassReferenceType, NodeClassDataType, NodeClassView,
	} {
		if c.String() == s {
			return c, true
		}
	}
	return NodeClassUnspecified, false
}

// BrowseDirection represents the direction to browse in the address space.
type BrowseDirection uint32

// Browse directions.
const (
	BrowseDirectionForward BrowseDirection = 0
	BrowseDirectionInverse BrowseDirection = 1
	BrowseDirectionBoth    BrowseDirection = 2
)

// TimestampsToReturn specifies which timestamps to return.
type TimestampsToReturn uint32

// Timestamps to return options.
const (
	TimestampsToReturnSource  TimestampsToReturn = 0
	TimestampsToReturnServer  TimestampsToReturn = 1
	TimestampsToReturnBoth    TimestampsToReturn = 2
	TimestampsToReturnNeither TimestampsToReturn = 3
)

// QualifiedName represents an OPC UA QualifiedName.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

// LocalizedText represents an OPC UA LocalizedText.
type LocalizedText struct {
	Locale string
	Text   string
}

// ReadValueID represents a node attribute to read.
type ReadValueID struct {
	NodeID       NodeID
	AttributeID  AttributeID
	IndexRange   string
	DataEncoding QualifiedName
}

// WriteValue represents a value to write to a node attribute.
type WriteValue struct {
	NodeID      NodeID
	AttributeID AttributeID
	IndexRange  string
	Value       DataValue
}

// BrowseDescription describes what to browse from a node.
type BrowseDescription struct {
	NodeID          NodeID
	BrowseDirection BrowseDirection
	ReferenceTypeID NodeID
	IncludeSubtypes bool
	NodeClassMask   uint32
	ResultMask      uint32
}

// ReferenceDescription describes a reference returned from a browse.
type ReferenceDescription struct {
	ReferenceTypeID NodeID
	IsForward       bool
	NodeID          NodeID
	BrowseName      QualifiedName
	DisplayName     LocalizedText
	NodeClass       NodeClass
	TypeDefinition  NodeID
}

// BrowseResult contains the result of a browse operation for one node.
// A non-empty ContinuationPoint means the server holds more references.
type BrowseResult struct {
	StatusCode        StatusCode
	ContinuationPoint []byte
	References        []ReferenceDescription
}

// CallMethodRequest describes a method to call.
type CallMethodRequest struct {
	ObjectID       NodeID
	MethodID       NodeID
	InputArguments []Variant
}

// CallMethodResult contains the result of a method call.
type CallMethodResult struct {
	StatusCode           StatusCode
	InputArgumentResults []StatusCode
	OutputArguments      []Variant
}

// MonitoringMode represents the monitoring mode for a monitored item.
type MonitoringMode uint32

// Monitoring modes.
const (
	MonitoringModeDisabled  MonitoringMode = 0
	MonitoringModeSampling  MonitoringMode = 1
	MonitoringModeReporting MonitoringMode = 2
)

// MonitoringParameters contains monitoring parameters.
type MonitoringParameters struct {
	ClientHandle     uint32
	SamplingInterval float64
	Filter           MonitoringFilter
	QueueSize        uint32
	DiscardOldest    bool
}

// MonitoringFilter is implemented by DataChangeFilter and EventFilter.
type MonitoringFilter interface {
	monitoringFilter()
}

// DeadbandType selects how a DataChangeFilter deadband is applied.
type DeadbandType uint32

// Deadband types.
const (
	DeadbandNone     DeadbandType = 0
	DeadbandAbsolute DeadbandType = 1
	DeadbandPercent  DeadbandType = 2
)

// DataChangeTrigger selects which changes are reported.
type DataChangeTrigger uint32

// Data change triggers.
const (
	TriggerStatus               DataChangeTrigger = 0
	TriggerStatusValue          DataChangeTrigger = 1
	TriggerStatusValueTimestamp DataChangeTrigger = 2
)

// DataChangeFilter filters data change notifications.
type DataChangeFilter struct {
	Trigger       DataChangeTrigger
	DeadbandType  DeadbandType
	DeadbandValue float64
}

func (DataChangeFilter) monitoringFilter() {}

// EventFilter selects the event fields delivered for an event item. Each
// select clause is a browse path relative to the event type.
type EventFilter struct {
	SelectClauses []QualifiedName
	EventType     NodeID
}

func (EventFilter) monitoringFilter() {}

// MonitoredItemCreateRequest describes a monitored item to create.
type MonitoredItemCreateRequest struct {
	ItemToMonitor       ReadValueID
	MonitoringMode      MonitoringMode
	RequestedParameters MonitoringParameters
}

// IsEvent reports whether the request describes an event item.
func (r *MonitoredItemCreateRequest) IsEvent() bool {
	if r.ItemToMonitor.AttributeID == AttributeEventNotifier {
		return true
	}
	_, ok := r.RequestedParameters.Filter.(EventFilter)
	return ok
}

// MonitoredItemCreateResult contains the result of creating a monitored item.
type MonitoredItemCreateResult struct {
	StatusCode              StatusCode
	MonitoredItemID         uint32
	RevisedSamplingInterval float64
	RevisedQueueSize        uint32
}
