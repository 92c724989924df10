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

	"smarthome/internal/permission"
)

// Error codes carried by ErrorPayload
const (
	CodeFailed       = "failed"
	CodeInvalid      = "invalid"
	CodeNoPermission = "no_permission"
	CodeTimeout      = "timeout"
	CodeUnavailable  = "unavailable"
)

// ErrorPayload is the payload of every error reply. It is also an error, so
// a response future fails with it as cause.
type ErrorPayload struct {
	Code       string                `json:"code"`
	Message    string                `json:"message"`
	Permission permission.Permission `json:"permission,omitempty"`
}

// NewErrorPayload creates a generic failure payload
func NewErrorPayload(format string, args ...any) *ErrorPayload {
	return &ErrorPayload{Code: CodeFailed, Message: fmt.Sprintf(format, args...)}
}

// NoPermissionPayload names the permission the caller lacks
func NoPermissionPayload(p permission.Permission) *ErrorPayload {
	return &ErrorPayload{
		Code:       CodeNoPermission,
		Message:    fmt.Sprintf("no permission: %s", p),
		Permission: p,
	}
}

// ErrorPayloadFrom converts err into a payload suitable for an error reply
func ErrorPayloadFrom(err error) *ErrorPayload {
	var ep *ErrorPayload
	if errors.As(err, &ep) {
		return ep
	}
	code := CodeFailed
	switch KindOf(err) {
	case KindProgramming, KindProtocol:
		code = CodeInvalid
	case KindPermission:
		code = CodeNoPermission
	case KindInfrastructure:
		code = CodeUnavailable
		if errors.Is(err, ErrTimeout) {
			code = CodeTimeout
		}
	}
	return &ErrorPayload{Code: code, Message: err.Error()}
}

func (e *ErrorPayload) Error() string {
	return e.Message
}

// Is lets errors.Is match the sentinel that corresponds to the code
func (e *ErrorPayload) Is(target error) bool {
	switch target {
	case ErrNoPermission:
		return e.Code == CodeNoPermission
	case ErrTimeout:
		return e.Code == CodeTimeout
	}
	return false
}
