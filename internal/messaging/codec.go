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
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"smarthome/internal/naming"
)

// PayloadRegistry maps wire type names to payload types. Decoding refuses
// payload types that were never registered.
type PayloadRegistry struct {
	byName map[string]reflect.Type
	byType map[reflect.Type]string
	mu     sync.RWMutex
}

// NewPayloadRegistry creates a registry knowing only ErrorPayload
func NewPayloadRegistry() *PayloadRegistry {
	r := &PayloadRegistry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	_ = RegisterPayload[*ErrorPayload](r, "error")
	return r
}

// DefaultPayloads is the process-wide registry used by transports
var DefaultPayloads = NewPayloadRegistry()

// RegisterPayload registers T under name
func RegisterPayload[T any](r *PayloadRegistry, name string) error {
	if name == "" {
		return fmt.Errorf("payload name must not be empty")
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t == reflect.TypeOf((*Void)(nil)).Elem() {
		return fmt.Errorf("void is not a payload type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("payload name '%s' is already registered for %s", name, existing)
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("payload type %s is already registered as '%s'", t, existing)
	}
	r.byName[name] = t
	r.byType[t] = name
	return nil
}

// MustRegisterPayload is RegisterPayload for package initialisation
func MustRegisterPayload[T any](r *PayloadRegistry, name string) {
	if err := RegisterPayload[T](r, name); err != nil {
		panic(err)
	}
}

// NameOf returns the wire name of p's type
func (r *PayloadRegistry) NameOf(p any) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[reflect.TypeOf(p)]
	return name, ok
}

// Names returns every registered name in sorted order
func (r *PayloadRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// decode unmarshals raw into a fresh value of the type registered as name
func (r *PayloadRegistry) decode(name string, raw json.RawMessage) (any, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayloadType, name)
	}

	if t.Kind() == reflect.Pointer {
		v := reflect.New(t.Elem())
		if err := json.Unmarshal(raw, v.Interface()); err != nil {
			return nil, fmt.Errorf("failed to decode payload %s: %w", name, err)
		}
		return v.Interface(), nil
	}
	v := reflect.New(t)
	if err := json.Unmarshal(raw, v.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode payload %s: %w", name, err)
	}
	return v.Elem().Interface(), nil
}

// Envelope is the wire form of an AddressedMessage
type Envelope struct {
	From        naming.DeviceID `json:"from"`
	To          naming.DeviceID `json:"to"`
	RoutingKey  string          `json:"routing_key"`
	Seq         int64           `json:"seq"`
	Headers     WireHeaders     `json:"headers"`
	PayloadType string          `json:"payload_type,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// WireHeaders carries the well-known headers
type WireHeaders struct {
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	ReferencesID *int64     `json:"references_id,omitempty"`
	ReplyToKey   string     `json:"reply_to_key,omitempty"`
}

// Codec converts addressed messages to and from JSON envelopes
type Codec struct {
	registry *PayloadRegistry
}

// NewCodec creates a codec over registry, DefaultPayloads if nil
func NewCodec(registry *PayloadRegistry) *Codec {
	if registry == nil {
		registry = DefaultPayloads
	}
	return &Codec{registry: registry}
}

// Encode serializes msg
func (c *Codec) Encode(msg *AddressedMessage) ([]byte, error) {
	env := Envelope{
		From:       msg.From(),
		To:         msg.To(),
		RoutingKey: msg.RoutingKey(),
		Seq:        msg.Seq(),
	}
	if ts, ok := HeaderTimestamp.Get(msg.Message); ok {
		env.Headers.Timestamp = &ts
	}
	if ref, ok := HeaderReferencesID.Get(msg.Message); ok {
		env.Headers.ReferencesID = &ref
	}
	if hint, ok := HeaderReplyToKey.Get(msg.Message); ok {
		env.Headers.ReplyToKey = hint
	}

	payload := msg.Payload()
	if _, void := payload.(Void); payload != nil && !void {
		name, ok := c.registry.NameOf(payload)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnknownPayloadType, payload)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload %s: %w", name, err)
		}
		env.PayloadType = name
		env.Payload = raw
	}

	data, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses data into an addressed message carrying the sender's seq
func (c *Codec) Decode(data []byte) (*AddressedMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.RoutingKey == "" {
		return nil, fmt.Errorf("envelope without routing key")
	}
	if env.From.IsZero() || env.To.IsZero() {
		return nil, fmt.Errorf("envelope without sender or recipient")
	}

	var payload any
	if env.PayloadType != "" {
		p, err := c.registry.decode(env.PayloadType, env.Payload)
		if err != nil {
			return nil, err
		}
		payload = p
	}

	msg := NewMessage(payload)
	if env.Headers.Timestamp != nil {
		msg.headers[HeaderTimestamp.name] = *env.Headers.Timestamp
	}
	if env.Headers.ReferencesID != nil {
		msg.headers[HeaderReferencesID.name] = *env.Headers.ReferencesID
	}
	if env.Headers.ReplyToKey != "" {
		msg.headers[HeaderReplyToKey.name] = env.Headers.ReplyToKey
	}
	return RestoreAddressed(env.From, env.To, env.RoutingKey, env.Seq, msg)
}
