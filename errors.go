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
	"errors"
	"fmt"

	"github.com/edgeo-scada/opcua-async/ua"
)

// ServiceError reports a bad status returned by the server or the engine
// for a service request.
type ServiceError struct {
	ServiceID  ua.ServiceID
	StatusCode ua.StatusCode
	Message    string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("opcua: %s (%s): %s", e.StatusCode, e.ServiceID, e.Message)
	}
	return fmt.Sprintf("opcua: %s (%s)", e.StatusCode, e.ServiceID)
}

// Is checks if the error matches the target.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// Unwrap exposes the status code so errors.Is(err, ua.StatusBadTimeout)
// works.
func (e *ServiceError) Unwrap() error {
	return e.StatusCode
}

// NewServiceError creates a new service error.
func NewServiceError(svc ua.ServiceID, sc ua.StatusCode, msg string) *ServiceError {
	return &ServiceError{
		ServiceID:  svc,
		StatusCode: sc,
		Message:    msg,
	}
}

// ProtocolError reports a breach of the request/response contract, such
// as a missing result or a result list of the wrong length.
type ProtocolError struct {
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("opcua: protocol violation in %s: %s", e.Op, e.Reason)
}

// Is matches ErrProtocolViolation.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

func protocolErrorf(op, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Common errors.
var (
	// ErrDisconnected is returned for requests outstanding when the
	// connection terminated and for submissions after termination.
	ErrDisconnected = errors.New("opcua: disconnected")

	// ErrAlreadyDisconnected is returned when a subscription or monitored
	// item outlived its client.
	ErrAlreadyDisconnected = errors.New("opcua: client already gone")

	// ErrNotConnected is returned when the engine refuses a submission.
	ErrNotConnected = errors.New("opcua: not connected")

	// ErrClientClosed is returned by submissions after Close. It is
	// disconnect-class.
	ErrClientClosed = errors.New("opcua: client closed")

	// ErrProtocolViolation matches every *ProtocolError.
	ErrProtocolViolation = errors.New("opcua: protocol violation")

	// ErrEmptyRequest is returned when a bulk operation is given nothing.
	ErrEmptyRequest = errors.New("opcua: empty request")

	// ErrNoDialer is returned by Dial without WithDialer.
	ErrNoDialer = errors.New("opcua: no dialer configured")

	// ErrItemClosed is returned by Next once a notification channel has
	// been closed and drained.
	ErrItemClosed = errors.New("opcua: monitored item closed")

	// ErrSubscriptionNotFound is returned for unknown subscription ids.
	ErrSubscriptionNotFound = errors.New("opcua: subscription not found")

	// ErrPoolClosed is returned by a closed Pool.
	ErrPoolClosed = errors.New("opcua: pool closed")
)

// IsStatusCode checks if an error has a specific status code.
func IsStatusCode(err error, code ua.StatusCode) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode == code
	}
	return false
}

// IsBadStatusCode checks if an error has a bad status code.
func IsBadStatusCode(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode.IsBad()
	}
	return false
}

// IsDisconnected reports whether err is disconnect-class.
func IsDisconnected(err error) bool {
	if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrAlreadyDisconnected) || errors.Is(err, ErrClientClosed) {
		return true
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode.IsConnectionEnd()
	}
	return false
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	return IsStatusCode(err, ua.StatusBadTimeout)
}

// IsNotConnected checks if the error indicates not connected.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || IsStatusCode(err, ua.StatusBadServerNotConnected)
}

// IsNodeIDUnknown checks if the error indicates an unknown node ID.
func IsNodeIDUnknown(err error) bool {
	return IsStatusCode(err, ua.StatusBadNodeIdUnknown)
}

// IsNotWritable checks if the error indicates the value is not writable.
func IsNotWritable(err error) bool {
	return IsStatusCode(err, ua.StatusBadNotWritable)
}
