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
	"fmt"

	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/permission"
)

// MasterBase is the base of master-side handlers. It gates requests on
// permissions and forwards requests to slaves on behalf of the caller.
type MasterBase struct {
	*Base
	gate    *PermissionGate
	proxies *ProxyTable
}

// NewMasterBase creates a MasterBase. A proxied request that is never
// answered, because it expired or its forward failed, is answered with an
// error unless opts install another unanswered callback.
func NewMasterBase(router *messaging.Router, name string, gate *PermissionGate, opts ...ProxyOption) *MasterBase {
	b := &MasterBase{
		Base: NewBase(router, name),
		gate: gate,
	}
	unanswered := WithUnansweredCallback(func(original *messaging.AddressedMessage, err error) {
		if replyErr := b.ReplyError(original, err); replyErr != nil {
			b.logger.Error().Err(replyErr).Str("routing_key", original.RoutingKey()).Msg("Failed to report unanswered request")
		}
	})
	b.proxies = NewProxyTable(append([]ProxyOption{unanswered}, opts...)...)
	return b
}

// Proxies returns the proxy table
func (b *MasterBase) Proxies() *ProxyTable {
	return b.proxies
}

// Gate returns the permission gate
func (b *MasterBase) Gate() *PermissionGate {
	return b.gate
}

// HasPermission asks the gate
func (b *MasterBase) HasPermission(device naming.DeviceID, perm permission.Permission, module string) bool {
	return b.gate.HasPermission(device, perm, module)
}

// SendNoPermissionReply answers original with an error naming perm
func (b *MasterBase) SendNoPermissionReply(original *messaging.AddressedMessage, perm permission.Permission) error {
	b.logger.Info().
		Str("from", original.From().String()).
		Str("routing_key", original.RoutingKey()).
		Str("permission", perm.String()).
		Msg("Request denied")
	_, err := b.Router().SendError(original, messaging.NoPermissionPayload(perm))
	return err
}

// SendToAllWithPermission sends payload to every connected device holding perm
func (b *MasterBase) SendToAllWithPermission(key messaging.AnyKey, payload any, perm permission.Permission, module string) ([]*messaging.AddressedMessage, error) {
	return b.Router().Broadcast(key, payload, func(id naming.DeviceID) bool {
		return b.gate.HasPermission(id, perm, module)
	})
}

// Proxy forwards payload to to under key on behalf of original. If the
// forward cannot be sent the original goes to the unanswered callback.
func (b *MasterBase) Proxy(original *messaging.AddressedMessage, to naming.DeviceID, key messaging.AnyKey, payload any) (*messaging.AddressedMessage, error) {
	router := b.Router()
	sent, err := router.Prepare(to, key, messaging.NewMessage(payload))
	if err != nil {
		return nil, err
	}
	b.proxies.RecordProxy(original, sent)

	sent.SendFuture().OnComplete(func(_ struct{}, err error) {
		if err == nil {
			return
		}
		if _, ok := b.proxies.Abandon(sent.Seq(), err); ok {
			b.logger.Warn().
				Err(err).
				Str("to", to.String()).
				Str("routing_key", key.Key()).
				Msg("Failed to forward request")
		}
	})
	router.Deliver(sent)
	return sent, nil
}

// ResolveProxy returns the original request answered by reply, if any
func (b *MasterBase) ResolveProxy(reply *messaging.AddressedMessage) (*messaging.AddressedMessage, bool) {
	ref, ok := reply.ReferencesID()
	if !ok {
		return nil, false
	}
	return b.proxies.MessageOnBehalfOf(ref)
}

// ForwardReply completes a proxy round trip: the second hop's reply is
// translated into a reply to the original caller under key, or into an
// error reply when the second hop answered with an error payload.
func (b *MasterBase) ForwardReply(reply *messaging.AddressedMessage, key messaging.AnyKey, payload any) (*messaging.AddressedMessage, error) {
	original, ok := b.ResolveProxy(reply)
	if !ok {
		return nil, fmt.Errorf("%w: %s", messaging.ErrUnmatchedResponse, reply)
	}
	if ep, isErr := reply.Payload().(*messaging.ErrorPayload); isErr {
		if _, err := b.Router().SendError(original, ep); err != nil {
			return original, err
		}
		return original, nil
	}
	if err := b.Reply(original, key, payload); err != nil {
		return original, err
	}
	return original, nil
}
