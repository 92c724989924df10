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

// Package messaging implements the addressed messaging core shared by the
// master, slave and app roles: typed routing keys, addressed messages with
// process-unique sequence numbers, the incoming dispatcher and the outgoing
// router.
package messaging

import (
	"fmt"
	"reflect"
	"strings"
)

const (
	PrefixMaster = "/master"
	PrefixSlave  = "/slave"
	PrefixApp    = "/app"
	PrefixGlobal = "/global"

	SuffixReply = "/reply"
	SuffixError = "/error"
)

// Void is the payload type of keys that carry no payload
type Void struct{}

// AnyKey is the untyped view of a RoutingKey used by the dispatcher, which
// registers handlers per routing-key string.
type AnyKey interface {
	Key() string
	PayloadType() reflect.Type
	PayloadMatches(p any) bool
}

// RoutingKey labels a message intent and the payload type it carries.
// Keys are immutable values, safe to share between goroutines.
type RoutingKey[T any] struct {
	key string
}

// NewRoutingKey creates a key for the given slash-structured string
func NewRoutingKey[T any](key string) RoutingKey[T] {
	return RoutingKey[T]{key: key}
}

// Key returns the routing-key string
func (k RoutingKey[T]) Key() string {
	return k.key
}

// PayloadType returns the declared payload type
func (k RoutingKey[T]) PayloadType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (k RoutingKey[T]) String() string {
	return fmt.Sprintf("%s<%s>", k.key, k.PayloadType())
}

// Equal reports whether both the string and the payload type match
func (k RoutingKey[T]) Equal(other AnyKey) bool {
	return other != nil && k.key == other.Key() && k.PayloadType() == other.PayloadType()
}

// IsReply reports whether this is a derived reply key
func (k RoutingKey[T]) IsReply() bool {
	return strings.HasSuffix(k.key, SuffixReply)
}

// IsError reports whether this is a derived error key
func (k RoutingKey[T]) IsError() bool {
	return strings.HasSuffix(k.key, SuffixError)
}

// BaseKey returns the request key string this key was derived from
func (k RoutingKey[T]) BaseKey() string {
	return BaseKey(k.key)
}

// PayloadMatches reports whether p may travel under this key
func (k RoutingKey[T]) PayloadMatches(p any) bool {
	_, ok := CastPayload[T](p)
	return ok
}

// Matches reports whether msg carries this key's string and a payload of
// this key's type. A Void key only matches a message without payload.
func (k RoutingKey[T]) Matches(msg *AddressedMessage) bool {
	if msg == nil || msg.RoutingKey() != k.key {
		return false
	}
	return k.PayloadMatches(msg.Payload())
}

// Payload extracts the typed payload of msg
func (k RoutingKey[T]) Payload(msg *AddressedMessage) (T, error) {
	var zero T
	if msg == nil {
		return zero, fmt.Errorf("%w: nil message for %s", ErrRoutingMismatch, k)
	}
	if msg.RoutingKey() != k.key {
		return zero, fmt.Errorf("%w: expected key %s, got %s", ErrRoutingMismatch, k.key, msg.RoutingKey())
	}
	v, ok := CastPayload[T](msg.Payload())
	if !ok {
		return zero, fmt.Errorf("%w: expected payload %s for %s, got %T",
			ErrRoutingMismatch, k.PayloadType(), k.key, msg.Payload())
	}
	return v, nil
}

// Reply derives the reply key of k carrying payload type R
func Reply[R, T any](k RoutingKey[T]) RoutingKey[R] {
	return RoutingKey[R]{key: k.key + SuffixReply}
}

// ErrorOf derives the error key of k
func ErrorOf[T any](k RoutingKey[T]) RoutingKey[*ErrorPayload] {
	return RoutingKey[*ErrorPayload]{key: k.key + SuffixError}
}

// BaseKey strips a reply or error suffix from key
func BaseKey(key string) string {
	if s, ok := strings.CutSuffix(key, SuffixReply); ok {
		return s
	}
	if s, ok := strings.CutSuffix(key, SuffixError); ok {
		return s
	}
	return key
}

// ReplyKeyString and ErrorKeyString derive suffixed strings for untyped use
func ReplyKeyString(key string) string { return BaseKey(key) + SuffixReply }
func ErrorKeyString(key string) string { return BaseKey(key) + SuffixError }

// CastPayload converts p to T. A nil payload converts to Void and only to
// Void; a Void payload never converts to anything else.
func CastPayload[T any](p any) (T, bool) {
	var zero T
	if _, void := any(zero).(Void); void {
		if p == nil {
			return zero, true
		}
		_, ok := p.(Void)
		return zero, ok
	}
	if p == nil {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}
