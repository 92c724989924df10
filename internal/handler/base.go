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

// Package handler provides the building blocks shared by business handlers:
// registration bookkeeping, client-side response tracking, master-side
// proxying and the permission gate.
package handler

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/messaging"
)

// Base keeps track of the keys a handler is registered for
type Base struct {
	router *messaging.Router
	logger zerolog.Logger

	mutex      sync.RWMutex
	keys       []messaging.AnyKey
	registered map[string]struct{}
}

// NewBase creates the shared part of a handler named name
func NewBase(router *messaging.Router, name string) *Base {
	return &Base{
		router:     router,
		logger:     logger.GetLogger("handler." + name),
		registered: make(map[string]struct{}),
	}
}

// Router returns the router used for outgoing messages
func (b *Base) Router() *messaging.Router {
	return b.router
}

// Logger returns the handler logger
func (b *Base) Logger() *zerolog.Logger {
	return &b.logger
}

// Attach registers h with the router's dispatcher for keys and remembers
// them for Detach.
func (b *Base) Attach(h messaging.Handler, keys ...messaging.AnyKey) {
	b.mutex.Lock()
	b.keys = append(b.keys, keys...)
	b.mutex.Unlock()

	b.router.Dispatcher().Register(h, keys...)
}

// Detach unregisters h from every key it was attached to
func (b *Base) Detach(h messaging.Handler) {
	b.mutex.Lock()
	keys := b.keys
	b.keys = nil
	b.mutex.Unlock()

	b.router.Dispatcher().Unregister(h, keys...)
}

// HandlerAdded records the registration
func (b *Base) HandlerAdded(_ *messaging.Dispatcher, key string) {
	b.mutex.Lock()
	b.registered[key] = struct{}{}
	b.mutex.Unlock()
}

// HandlerRemoved forgets the registration
func (b *Base) HandlerRemoved(key string) {
	b.mutex.Lock()
	delete(b.registered, key)
	b.mutex.Unlock()
}

// IsRegistered reports whether the handler currently listens on key
func (b *Base) IsRegistered(key string) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	_, ok := b.registered[key]
	return ok
}

// InvalidMessage builds the error returned for a message no branch accepted
func (b *Base) InvalidMessage(msg *messaging.AddressedMessage) error {
	return fmt.Errorf("%w: unexpected message %s with payload %T",
		messaging.ErrRoutingMismatch, msg, msg.Payload())
}

// ReplyError answers original with err converted into an error payload
func (b *Base) ReplyError(original *messaging.AddressedMessage, err error) error {
	_, sendErr := b.router.SendError(original, messaging.ErrorPayloadFrom(err))
	return sendErr
}

// Reply answers original under key with payload
func (b *Base) Reply(original *messaging.AddressedMessage, key messaging.AnyKey, payload any) error {
	_, err := b.router.SendReply(original, key, messaging.NewMessage(payload))
	return err
}

// Fail answers original with err and returns err, so a handler can report
// the failure to the caller and to the dispatcher in one statement.
func (b *Base) Fail(original *messaging.AddressedMessage, err error) error {
	if replyErr := b.ReplyError(original, err); replyErr != nil {
		b.logger.Error().Err(replyErr).Str("routing_key", original.RoutingKey()).Msg("Failed to send error reply")
	}
	return err
}
