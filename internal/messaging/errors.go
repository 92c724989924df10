// Copyright 2025 Arion Yau
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

package messaging

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can tell a meaningless retry from a
// retry with different input or an infrastructure failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindProgramming is a local misuse of the API
	KindProgramming
	// KindProtocol is a peer violating the message contract
	KindProtocol
	// KindPermission is a request refused by a permission check
	KindPermission
	// KindInfrastructure is a transport, timeout or shutdown failure
	KindInfrastructure
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindProgramming:
		return "programming"
	case KindProtocol:
		return "protocol"
	case KindPermission:
		return "permission"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

var (
	ErrRoutingMismatch    = errors.New("messaging: routing key does not match message")
	ErrInvalidDestination = errors.New("messaging: destination not reachable from this device")
	ErrUnmatchedResponse  = errors.New("messaging: response references no pending request")
	ErrAlreadySettled     = errors.New("messaging: pending request already settled")
	ErrAlreadyAddressed   = errors.New("messaging: message already addressed")
	ErrSealed             = errors.New("messaging: message is sealed")
	ErrTimeout            = errors.New("messaging: request timed out")
	ErrNotConnected       = errors.New("transport: device not connected")
	ErrTransportClosed    = errors.New("transport: shutting down")
	ErrPoolStopped        = errors.New("executor: pool stopped")
	ErrNoPermission       = errors.New("permission denied")
	ErrUnknownPayloadType = errors.New("codec: unknown payload type")
)

// ClassifiedError wraps an error with its kind and the operation that failed
type ClassifiedError struct {
	Kind      Kind
	Err       error
	Operation string
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err with a kind and operation
func Classify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err, Operation: op}
}

// KindOf returns the kind of err, falling back to the kind of known sentinels
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	switch {
	case errors.Is(err, ErrRoutingMismatch),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrAlreadyAddressed),
		errors.Is(err, ErrSealed):
		return KindProgramming
	case errors.Is(err, ErrUnmatchedResponse),
		errors.Is(err, ErrAlreadySettled),
		errors.Is(err, ErrUnknownPayloadType):
		return KindProtocol
	case errors.Is(err, ErrNoPermission):
		return KindPermission
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrPoolStopped):
		return KindInfrastructure
	}
	return KindUnknown
}
