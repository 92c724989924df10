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

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/metrics"
	"smarthome/internal/naming"
)

// Transport delivers addressed messages to remote devices
type Transport interface {
	// Write hands msg to the wire. The returned future completes once the
	// write finished or failed.
	Write(msg *AddressedMessage) *Future[struct{}]
	Connected(id naming.DeviceID) bool
	ConnectedDevices() []naming.DeviceID
}

// Role decides which destinations a router may reach
type Role int

const (
	// RoleClient may reach itself and the master
	RoleClient Role = iota
	// RoleMaster may reach every connected device
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "client"
}

// Router addresses outgoing messages and routes them either back into the
// local dispatcher or out through the transport.
type Router struct {
	identity   naming.Identity
	role       Role
	dispatcher *Dispatcher
	transport  Transport
	sequencer  *Sequencer
	msink      gometrics.MetricSink
	logger     zerolog.Logger
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithRouterSequencer overrides the process sequencer
func WithRouterSequencer(s *Sequencer) RouterOption {
	return func(r *Router) {
		r.sequencer = s
	}
}

// WithRouterMetrics sets the metric sink
func WithRouterMetrics(sink gometrics.MetricSink) RouterOption {
	return func(r *Router) {
		r.msink = metrics.Sink(sink)
	}
}

// NewRouter creates a router. The role follows from the identity.
// transport may be nil for a device that only talks to itself.
func NewRouter(identity naming.Identity, dispatcher *Dispatcher, transport Transport, opts ...RouterOption) *Router {
	role := RoleClient
	if identity.IsMaster() {
		role = RoleMaster
	}
	r := &Router{
		identity:   identity,
		role:       role,
		dispatcher: dispatcher,
		transport:  transport,
		sequencer:  DefaultSequencer,
		msink:      metrics.Sink(nil),
		logger: logger.GetLogger("messaging.router").With().
			Str("device_id", identity.OwnID().String()).
			Str("role", role.String()).
			Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OwnID returns the local device id
func (r *Router) OwnID() naming.DeviceID { return r.identity.OwnID() }

// MasterID returns the master's device id
func (r *Router) MasterID() naming.DeviceID { return r.identity.MasterID() }

// Identity returns the identity the router was built with
func (r *Router) Identity() naming.Identity { return r.identity }

// Role returns the router role
func (r *Router) Role() Role { return r.role }

// Dispatcher returns the local dispatcher
func (r *Router) Dispatcher() *Dispatcher { return r.dispatcher }

// SendMessage addresses msg to to under key. A payload that does not fit the
// key fails immediately; every other failure is reported through the send
// future of the returned message.
func (r *Router) SendMessage(to naming.DeviceID, key AnyKey, msg *Message) (*AddressedMessage, error) {
	am, err := r.Prepare(to, key, msg)
	if err != nil {
		return nil, err
	}
	r.Deliver(am)
	return am, nil
}

// SendRaw is SendMessage without the payload check
func (r *Router) SendRaw(to naming.DeviceID, key string, msg *Message) (*AddressedMessage, error) {
	am, err := msg.Address(r.identity.OwnID(), to, key, WithSequencer(r.sequencer))
	if err != nil {
		return nil, err
	}
	r.Deliver(am)
	return am, nil
}

// Prepare addresses msg without sending it, so that a caller can register
// correlation state for its sequence number before any reply can arrive.
func (r *Router) Prepare(to naming.DeviceID, key AnyKey, msg *Message) (*AddressedMessage, error) {
	if !key.PayloadMatches(msg.Payload()) {
		return nil, fmt.Errorf("%w: payload %T cannot be sent as %s (%s)",
			ErrRoutingMismatch, msg.Payload(), key.Key(), key.PayloadType())
	}
	return msg.Address(r.identity.OwnID(), to, key.Key(), WithSequencer(r.sequencer))
}

// Deliver routes an addressed message: loop-back for the own id, the
// transport for reachable remotes, a failed send future otherwise.
func (r *Router) Deliver(am *AddressedMessage) {
	own := r.identity.OwnID()
	to := am.To()

	switch {
	case to == own:
		r.deliverLocal(am)
	case r.role == RoleMaster || to == r.identity.MasterID():
		r.deliverRemote(am)
	default:
		r.countSend("invalid")
		am.sendFuture.TryFail(fmt.Errorf("%w: %s may not send to %s", ErrInvalidDestination, own, to))
		r.logger.Warn().
			Str("to", to.String()).
			Str("routing_key", am.RoutingKey()).
			Int64("seq", am.Seq()).
			Msg("Refused to send to unreachable destination")
	}
}

func (r *Router) deliverLocal(am *AddressedMessage) {
	r.countSend("local")
	if !r.dispatcher.Dispatch(am) {
		r.logger.Debug().
			Str("routing_key", am.RoutingKey()).
			Int64("seq", am.Seq()).
			Msg("Loop-back message had no local handler")
	}
	am.sendFuture.TrySucceed(struct{}{})
}

func (r *Router) deliverRemote(am *AddressedMessage) {
	if r.transport == nil {
		r.countSend("unconnected")
		am.sendFuture.TryFail(fmt.Errorf("%w: no transport for %s", ErrNotConnected, am.To()))
		return
	}
	r.countSend("remote")
	written := r.transport.Write(am)
	written.OnComplete(func(_ struct{}, err error) {
		if err != nil {
			r.msink.IncrCounterWithLabels(metrics.MetricSendErrorCount, 1,
				[]gometrics.Label{metrics.LabelRoutingKey.M(am.RoutingKey())})
			r.logger.Warn().
				Err(err).
				Str("to", am.To().String()).
				Str("routing_key", am.RoutingKey()).
				Int64("seq", am.Seq()).
				Msg("Transport write failed")
			am.sendFuture.TryFail(err)
			return
		}
		am.sendFuture.TrySucceed(struct{}{})
	})
}

func (r *Router) countSend(route string) {
	r.msink.IncrCounterWithLabels(metrics.MetricSendCount, 1, []gometrics.Label{metrics.LabelRoute.M(route)})
}

// SendToMaster sends msg to the master
func (r *Router) SendToMaster(key AnyKey, msg *Message) (*AddressedMessage, error) {
	return r.SendMessage(r.identity.MasterID(), key, msg)
}

// SendLocal sends msg to the local dispatcher
func (r *Router) SendLocal(key AnyKey, msg *Message) (*AddressedMessage, error) {
	return r.SendMessage(r.identity.OwnID(), key, msg)
}

// SendReply answers original. The reply references original's sequence
// number, goes back to its sender and uses the sender's reply-to hint when
// one was given.
func (r *Router) SendReply(original *AddressedMessage, key AnyKey, msg *Message) (*AddressedMessage, error) {
	if !key.PayloadMatches(msg.Payload()) {
		return nil, fmt.Errorf("%w: payload %T cannot be sent as %s (%s)",
			ErrRoutingMismatch, msg.Payload(), key.Key(), key.PayloadType())
	}
	if err := HeaderReferencesID.Put(msg, original.Seq()); err != nil {
		return nil, err
	}
	routingKey := key.Key()
	if hint, ok := HeaderReplyToKey.Get(original.Message); ok && hint != "" {
		routingKey = hint
	}
	return r.SendRaw(original.From(), routingKey, msg)
}

// SendError answers original with an error payload on its error key
func (r *Router) SendError(original *AddressedMessage, payload *ErrorPayload) (*AddressedMessage, error) {
	msg := NewMessage(payload)
	if err := HeaderReferencesID.Put(msg, original.Seq()); err != nil {
		return nil, err
	}
	return r.SendRaw(original.From(), ErrorKeyString(original.RoutingKey()), msg)
}

// Broadcast sends payload under key to every connected device accepted by
// filter, each in its own message. Only the master may broadcast.
func (r *Router) Broadcast(key AnyKey, payload any, filter func(naming.DeviceID) bool) ([]*AddressedMessage, error) {
	if r.role != RoleMaster {
		return nil, fmt.Errorf("%w: only the master may broadcast", ErrInvalidDestination)
	}
	if r.transport == nil {
		return nil, nil
	}

	var sent []*AddressedMessage
	for _, id := range r.transport.ConnectedDevices() {
		if id == r.identity.OwnID() {
			continue
		}
		if filter != nil && !filter(id) {
			continue
		}
		am, err := r.SendMessage(id, key, NewMessage(payload))
		if err != nil {
			return sent, err
		}
		sent = append(sent, am)
	}
	return sent, nil
}

// Receive is the transport's entry point for inbound messages
func (r *Router) Receive(msg *AddressedMessage) {
	if !r.dispatcher.Dispatch(msg) {
		r.logger.Warn().
			Str("from", msg.From().String()).
			Str("routing_key", msg.RoutingKey()).
			Int64("seq", msg.Seq()).
			Msg("Dropped message without handler")
	}
}
