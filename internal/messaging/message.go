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
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"smarthome/internal/naming"
)

// HeaderKey is a typed message header. The value read back through a key
// always has the type it was stored with.
type HeaderKey[T any] struct {
	name string
}

// NewHeaderKey creates a typed header key
func NewHeaderKey[T any](name string) HeaderKey[T] {
	return HeaderKey[T]{name: name}
}

// Name returns the header name used on the wire
func (h HeaderKey[T]) Name() string {
	return h.name
}

// Get reads the header from m
func (h HeaderKey[T]) Get(m *Message) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	raw, ok := m.headers[h.name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// Put stores the header on m, failing once m has been addressed
func (h HeaderKey[T]) Put(m *Message, v T) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sealed {
		return fmt.Errorf("%w: cannot set header %s", ErrSealed, h.name)
	}
	m.headers[h.name] = v
	return nil
}

// Has reports whether the header is present on m
func (h HeaderKey[T]) Has(m *Message) bool {
	_, ok := h.Get(m)
	return ok
}

var (
	HeaderTimestamp    = NewHeaderKey[time.Time]("timestamp")
	HeaderReferencesID = NewHeaderKey[int64]("references_id")
	HeaderReplyToKey   = NewHeaderKey[string]("reply_to_key")
)

// Message is a header map and at most one payload. It stays mutable until
// it is addressed.
type Message struct {
	mutex   sync.RWMutex
	headers map[string]any
	payload any
	sealed  bool
}

// NewMessage creates a message carrying payload (nil for none)
func NewMessage(payload any) *Message {
	return &Message{
		headers: make(map[string]any),
		payload: payload,
	}
}

// Payload returns the payload, nil if none
func (m *Message) Payload() any {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.payload
}

// SetPayload replaces the payload of an unaddressed message
func (m *Message) SetPayload(p any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sealed {
		return fmt.Errorf("%w: cannot set payload", ErrSealed)
	}
	m.payload = p
	return nil
}

// Sealed reports whether the message has been addressed
func (m *Message) Sealed() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sealed
}

// Headers returns a copy of the raw header map
func (m *Message) Headers() map[string]any {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return maps.Clone(m.headers)
}

// seal marks m immutable; it fails if m was already sealed
func (m *Message) seal() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sealed {
		return ErrAlreadyAddressed
	}
	if _, ok := m.headers[HeaderTimestamp.name]; !ok {
		m.headers[HeaderTimestamp.name] = time.Now()
	}
	m.sealed = true
	return nil
}

// Sequencer hands out strictly increasing sequence numbers
type Sequencer struct {
	counter atomic.Int64
}

// NewSequencer creates a sequencer starting at 1
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next sequence number
func (s *Sequencer) Next() int64 {
	return s.counter.Add(1)
}

// DefaultSequencer is shared by every router of the process
var DefaultSequencer = NewSequencer()

// AddressedMessage is a sealed Message with sender, recipient, routing key
// and sequence number. Its send future completes when the transport write
// finishes, not when a reply arrives.
type AddressedMessage struct {
	*Message

	from       naming.DeviceID
	to         naming.DeviceID
	routingKey string
	seq        int64
	sendFuture *Future[struct{}]
}

// AddressOption configures addressing
type AddressOption func(*addressOptions)

type addressOptions struct {
	sequencer *Sequencer
}

// WithSequencer overrides the process sequencer
func WithSequencer(s *Sequencer) AddressOption {
	return func(o *addressOptions) {
		o.sequencer = s
	}
}

// Address seals m and assigns it a destination and a fresh sequence number.
// A message can only be addressed once.
func (m *Message) Address(from, to naming.DeviceID, routingKey string, opts ...AddressOption) (*AddressedMessage, error) {
	o := addressOptions{sequencer: DefaultSequencer}
	for _, opt := range opts {
		opt(&o)
	}
	if err := m.seal(); err != nil {
		return nil, err
	}
	return &AddressedMessage{
		Message:    m,
		from:       from,
		to:         to,
		routingKey: routingKey,
		seq:        o.sequencer.Next(),
		sendFuture: NewFuture[struct{}](),
	}, nil
}

// RestoreAddressed rebuilds an addressed message with a known sequence number,
// as read from the wire. It does not consume the sequencer.
func RestoreAddressed(from, to naming.DeviceID, routingKey string, seq int64, m *Message) (*AddressedMessage, error) {
	if err := m.seal(); err != nil {
		return nil, err
	}
	return &AddressedMessage{
		Message:    m,
		from:       from,
		to:         to,
		routingKey: routingKey,
		seq:        seq,
		sendFuture: Succeeded(struct{}{}),
	}, nil
}

// From returns the sender
func (a *AddressedMessage) From() naming.DeviceID { return a.from }

// To returns the recipient
func (a *AddressedMessage) To() naming.DeviceID { return a.to }

// RoutingKey returns the routing-key string
func (a *AddressedMessage) RoutingKey() string { return a.routingKey }

// Seq returns the sequence number
func (a *AddressedMessage) Seq() int64 { return a.seq }

// SendFuture completes when the message has been handed off
func (a *AddressedMessage) SendFuture() *Future[struct{}] { return a.sendFuture }

// ReferencesID returns the sequence number this message replies to
func (a *AddressedMessage) ReferencesID() (int64, bool) {
	return HeaderReferencesID.Get(a.Message)
}

func (a *AddressedMessage) String() string {
	return fmt.Sprintf("%s#%d %s->%s", a.routingKey, a.seq, a.from, a.to)
}
