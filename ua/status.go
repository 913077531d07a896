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

import "fmt"

// StatusCode represents an OPC UA StatusCode.
type StatusCode uint32

// StatusCode severity levels.
const (
	StatusSeverityGood      uint32 = 0x00000000
	StatusSeverityUncertain uint32 = 0x40000000
	StatusSeverityBad       uint32 = 0x80000000
	StatusSeverityMask      uint32 = 0xC0000000
)

// Status codes the client runtime produces or interprets.
const (
	StatusGood                          StatusCode = 0x00000000
	StatusUncertain                     StatusCode = 0x40000000
	StatusBad                           StatusCode = 0x80000000
	StatusBadUnexpectedError            StatusCode = 0x80010000
	StatusBadInternalError              StatusCode = 0x80020000
	StatusBadOutOfMemory                StatusCode = 0x80030000
	StatusBadResourceUnavailable        StatusCode = 0x80040000
	StatusBadCommunicationError         StatusCode = 0x80050000
	StatusBadEncodingError              StatusCode = 0x80060000
	StatusBadDecodingError              StatusCode = 0x80070000
	StatusBadUnknownResponse            StatusCode = 0x80090000
	StatusBadTimeout                    StatusCode = 0x800A0000
	StatusBadServiceUnsupported         StatusCode = 0x800B0000
	StatusBadShutdown                   StatusCode = 0x800C0000
	StatusBadServerNotConnected         StatusCode = 0x800D0000
	StatusBadServerHalted               StatusCode = 0x800E0000
	StatusBadNothingToDo                StatusCode = 0x800F0000
	StatusBadTooManyOperations          StatusCode = 0x80100000
	StatusBadTooManyMonitoredItems      StatusCode = 0x80DB0000
	StatusBadUserAccessDenied           StatusCode = 0x801F0000
	StatusBadSessionIdInvalid           StatusCode = 0x80250000
	StatusBadSessionClosed              StatusCode = 0x80260000
	StatusBadSessionNotActivated        StatusCode = 0x80270000
	StatusBadSubscriptionIdInvalid      StatusCode = 0x80280000
	StatusBadRequestCancelledByClient   StatusCode = 0x802C0000
	StatusBadNoCommunication            StatusCode = 0x80310000
	StatusBadWaitingForInitialData      StatusCode = 0x80320000
	StatusBadNodeIdInvalid              StatusCode = 0x80330000
	StatusBadNodeIdUnknown              StatusCode = 0x80340000
	StatusBadAttributeIdInvalid         StatusCode = 0x80350000
	StatusBadIndexRangeInvalid          StatusCode = 0x80360000
	StatusBadNotReadable                StatusCode = 0x803A0000
	StatusBadNotWritable                StatusCode = 0x803B0000
	StatusBadOutOfRange                 StatusCode = 0x803C0000
	StatusBadNotSupported               StatusCode = 0x803D0000
	StatusBadNotFound                   StatusCode = 0x803E0000
	StatusBadNotImplemented             StatusCode = 0x80400000
	StatusBadMonitoringModeInvalid      StatusCode = 0x80410000
	StatusBadMonitoredItemIdInvalid     StatusCode = 0x80420000
	StatusBadMonitoredItemFilterInvalid StatusCode = 0x80430000
	StatusBadFilterNotAllowed           StatusCode = 0x80450000
	StatusBadEventFilterInvalid         StatusCode = 0x80470000
	StatusBadContinuationPointInvalid   StatusCode = 0x804A0000
	StatusBadNoContinuationPoints       StatusCode = 0x804B0000
	StatusBadReferenceTypeIdInvalid     StatusCode = 0x804C0000
	StatusBadBrowseDirectionInvalid     StatusCode = 0x804D0000
	StatusBadTypeMismatch               StatusCode = 0x80740000
	StatusBadMethodInvalid              StatusCode = 0x80750000
	StatusBadArgumentsMissing           StatusCode = 0x80760000
	StatusBadTooManySubscriptions       StatusCode = 0x80770000
	StatusBadNoSubscription             StatusCode = 0x80790000
	StatusBadSecureChannelClosed        StatusCode = 0x80860000
	StatusBadNotConnected               StatusCode = 0x808A0000
	StatusBadInvalidArgument            StatusCode = 0x80AB0000
	StatusBadConnectionRejected         StatusCode = 0x80AC0000
	StatusBadDisconnect                 StatusCode = 0x80AD0000
	StatusBadConnectionClosed           StatusCode = 0x80AE0000
	StatusBadInvalidState               StatusCode = 0x80AF0000
	StatusBadOperationAbandoned         StatusCode = 0x80B30000
	StatusBadTooManyArguments           StatusCode = 0x80E50000
	StatusGoodResultsMayBeIncomplete    StatusCode = 0x00BA0000
	StatusGoodMoreData                  StatusCode = 0x00A60000
	StatusGoodNoData                    StatusCode = 0x00A50000
	StatusUncertainLastUsableValue      StatusCode = 0x40900000
	StatusUncertainInitialValue         StatusCode = 0x40920000
)

// statusCodeInfo contains name and description for a status code.
type statusCodeInfo struct {
	name        string
	description string
}

var statusCodeMap = map[StatusCode]statusCodeInfo{
	StatusGood:                          {"Good", "The operation completed successfully"},
	StatusUncertain:                     {"Uncertain", "The operation completed with an uncertain result"},
	StatusBad:                           {"Bad", "The operation failed"},
	StatusBadUnexpectedError:            {"BadUnexpectedError", "An unexpected error occurred"},
	StatusBadInternalError:              {"BadInternalError", "An internal error occurred"},
	StatusBadOutOfMemory:                {"BadOutOfMemory", "Not enough memory to complete the operation"},
	StatusBadResourceUnavailable:        {"BadResourceUnavailable", "An operating system resource is not available"},
	StatusBadCommunicationError:         {"BadCommunicationError", "A low level communication error occurred"},
	StatusBadEncodingError:              {"BadEncodingError", "Encoding halted because of invalid data"},
	StatusBadDecodingError:              {"BadDecodingError", "Decoding halted because of invalid data"},
	StatusBadUnknownResponse:            {"BadUnknownResponse", "An unrecognized response was received from the server"},
	StatusBadTimeout:                    {"BadTimeout", "The operation timed out"},
	StatusBadServiceUnsupported:         {"BadServiceUnsupported", "The server does not support the requested service"},
	StatusBadShutdown:                   {"BadShutdown", "The operation was cancelled because the application is shutting down"},
	StatusBadServerNotConnected:         {"BadServerNotConnected", "The operation could not complete because the client is not connected to the server"},
	StatusBadServerHalted:               {"BadServerHalted", "The server has stopped and cannot process any requests"},
	StatusBadNothingToDo:                {"BadNothingToDo", "No processing could be done because there was nothing to do"},
	StatusBadTooManyOperations:          {"BadTooManyOperations", "The request could not be processed because it specified too many operations"},
	StatusBadTooManyMonitoredItems:      {"BadTooManyMonitoredItems", "The request could not be processed because there are too many monitored items"},
	StatusBadUserAccessDenied:           {"BadUserAccessDenied", "User does not have permission to perform the requested operation"},
	StatusBadSessionIdInvalid:           {"BadSessionIdInvalid", "The session id is not valid"},
	StatusBadSessionClosed:              {"BadSessionClosed", "The session was closed by the client"},
	StatusBadSessionNotActivated:        {"BadSessionNotActivated", "The session cannot be used because ActivateSession has not been called"},
	StatusBadSubscriptionIdInvalid:      {"BadSubscriptionIdInvalid", "The subscription id is not valid"},
	StatusBadRequestCancelledByClient:   {"BadRequestCancelledByClient", "The request was cancelled by the client"},
	StatusBadNoCommunication:            {"BadNoCommunication", "Communication with the data source is defined, but not established"},
	StatusBadWaitingForInitialData:      {"BadWaitingForInitialData", "Waiting for the server to obtain values from the underlying data source"},
	StatusBadNodeIdInvalid:              {"BadNodeIdInvalid", "The syntax of the node id is not valid"},
	StatusBadNodeIdUnknown:              {"BadNodeIdUnknown", "The node id refers to a node that does not exist in the server address space"},
	StatusBadAttributeIdInvalid:         {"BadAttributeIdInvalid", "The attribute is not supported for the specified node"},
	StatusBadIndexRangeInvalid:          {"BadIndexRangeInvalid", "The syntax of the index range parameter is invalid"},
	StatusBadNotReadable:                {"BadNotReadable", "The access level does not allow reading or subscribing to the node"},
	StatusBadNotWritable:                {"BadNotWritable", "The access level does not allow writing to the node"},
	StatusBadOutOfRange:                 {"BadOutOfRange", "The value was out of range"},
	StatusBadNotSupported:               {"BadNotSupported", "The requested operation is not supported"},
	StatusBadNotFound:                   {"BadNotFound", "A requested item was not found or a search operation ended without success"},
	StatusBadNotImplemented:             {"BadNotImplemented", "Requested operation is not implemented"},
	StatusBadMonitoringModeInvalid:      {"BadMonitoringModeInvalid", "The monitoring mode is invalid"},
	StatusBadMonitoredItemIdInvalid:     {"BadMonitoredItemIdInvalid", "The monitoring item id does not refer to a valid monitored item"},
	StatusBadMonitoredItemFilterInvalid: {"BadMonitoredItemFilterInvalid", "The monitored item filter parameter is not valid"},
	StatusBadFilterNotAllowed:           {"BadFilterNotAllowed", "A monitoring filter cannot be used in combination with the attribute specified"},
	StatusBadEventFilterInvalid:         {"BadEventFilterInvalid", "The event filter is not valid"},
	StatusBadContinuationPointInvalid:   {"BadContinuationPointInvalid", "The continuation point provided is longer valid"},
	StatusBadNoContinuationPoints:       {"BadNoContinuationPoints", "The operation could not be processed because all continuation points have been allocated"},
	StatusBadReferenceTypeIdInvalid:     {"BadReferenceTypeIdInvalid", "The reference type id does not refer to a valid reference type node"},
	StatusBadBrowseDirectionInvalid:     {"BadBrowseDirectionInvalid", "The browse direction is not valid"},
	StatusBadTypeMismatch:               {"BadTypeMismatch", "The value supplied for the attribute is not of the same type as the attribute's value"},
	StatusBadMethodInvalid:              {"BadMethodInvalid", "The method id does not refer to a method for the specified object"},
	StatusBadArgumentsMissing:           {"BadArgumentsMissing", "The client did not specify all of the input arguments for the method"},
	StatusBadTooManySubscriptions:       {"BadTooManySubscriptions", "The server has reached its maximum number of subscriptions"},
	StatusBadNoSubscription:             {"BadNoSubscription", "There is no subscription available for this session"},
	StatusBadSecureChannelClosed:        {"BadSecureChannelClosed", "The secure channel has been closed"},
	StatusBadNotConnected:               {"BadNotConnected", "The variable should receive its value from another variable, but has never been configured to do so"},
	StatusBadInvalidArgument:            {"BadInvalidArgument", "One or more arguments are invalid"},
	StatusBadConnectionRejected:         {"BadConnectionRejected", "Could not establish a network connection to remote server"},
	StatusBadDisconnect:                 {"BadDisconnect", "The server has disconnected from the client"},
	StatusBadConnectionClosed:           {"BadConnectionClosed", "The network connection has been closed"},
	StatusBadInvalidState:               {"BadInvalidState", "The operation cannot be completed because the object is closed, uninitialized or in some other invalid state"},
	StatusBadOperationAbandoned:         {"BadOperationAbandoned", "The asynchronous operation was abandoned by the caller"},
	StatusBadTooManyArguments:           {"BadTooManyArguments", "Too many arguments were provided"},
	StatusGoodResultsMayBeIncomplete:    {"GoodResultsMayBeIncomplete", "The server should have followed a reference to a node in a remote server but did not"},
	StatusGoodMoreData:                  {"GoodMoreData", "The value is valid but more data is available"},
	StatusGoodNoData:                    {"GoodNoData", "No data exists for the requested time range or event filter"},
	StatusUncertainLastUsableValue:      {"UncertainLastUsableValue", "Whatever was updating this value has stopped doing so"},
	StatusUncertainInitialValue:         {"UncertainInitialValue", "The value is an initial value for a variable that normally receives its value from another variable"},
}

// String returns the string representation of the status code.
func (s StatusCode) String() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// Description returns a human-readable description of the status code.
func (s StatusCode) Description() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.description
	}
	switch {
	case s.IsGood():
		return "The operation completed successfully"
	case s.IsUncertain():
		return "The operation completed with uncertain result"
	case s.IsBad():
		return "The operation failed"
	default:
		return "Unknown status"
	}
}

// Error returns a formatted error string with code, name, and description.
func (s StatusCode) Error() string {
	if info, ok := statusCodeMap[s]; ok {
		return fmt.Sprintf("%s (0x%08X): %s", info.name, uint32(s), info.description)
	}
	return fmt.Sprintf("StatusCode 0x%08X", uint32(s))
}

// IsGood returns true if the status code indicates success.
func (s StatusCode) IsGood() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityGood
}

// IsUncertain returns true if the status code indicates uncertainty.
func (s StatusCode) IsUncertain() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityUncertain
}

// IsBad returns true if the status code indicates failure.
func (s StatusCode) IsBad() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityBad
}

// IsConnectionEnd reports whether s signals an orderly end of the
// connection rather than a fault.
func (s StatusCode) IsConnectionEnd() bool {
	switch s {
	case StatusBadConnectionClosed, StatusBadDisconnect, StatusBadSessionClosed, StatusBadSecureChannelClosed:
		return true
	}
	return false
}

// ParseStatusCode returns the status code with the given symbolic name.
func ParseStatusCode(name string) (StatusCode, bool) {
	for code, info := range statusCodeMap {
		if info.name == name {
			return code, true
		}
	}
	return StatusBad, false
}
