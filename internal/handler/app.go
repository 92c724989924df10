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

package handler

import (
	"smarthome/internal/messaging"
)

// AppBase is the base of handlers on devices that talk to the master through
// request/response pairs. Replies and errors for the handler's requests are
// resolved through its own tracker.
type AppBase struct {
	*Base
	tracker *ResponseTracker
}

// NewAppBase creates an AppBase with its own response tracker
func NewAppBase(router *messaging.Router, name string, opts ...TrackerOption) *AppBase {
	return &AppBase{
		Base:    NewBase(router, name),
		tracker: NewResponseTracker(router.Identity(), opts...),
	}
}

// Tracker returns the handler's response tracker
func (b *AppBase) Tracker() *ResponseTracker {
	return b.tracker
}

// TryHandleResponse resolves msg if it answers one of this handler's requests
func (b *AppBase) TryHandleResponse(msg *messaging.AddressedMessage) bool {
	return b.tracker.TryHandleResponse(msg)
}

// Request sends payload to the master under key and returns a future for the
// typed reply. The slot is registered before the message leaves, so even an
// immediate reply finds it.
func Request[T any](b *AppBase, key messaging.AnyKey, payload any) *messaging.Future[T] {
	router := b.Router()
	sent, err := router.Prepare(router.MasterID(), key, messaging.NewMessage(payload))
	if err != nil {
		return messaging.Failed[T](err)
	}
	future := Track[T](b.tracker, sent)
	router.Deliver(sent)
	return future
}
