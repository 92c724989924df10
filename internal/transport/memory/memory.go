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

// Package memory is an in-process transport. Every message still goes
// through the wire codec, so it behaves like a network hop without sockets.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/transport"
)

var _ transport.Transport = (*Endpoint)(nil)

const queueSize = 1024

// Network connects endpoints in a star around the master
type Network struct {
	master    naming.DeviceID
	codec     *messaging.Codec
	mutex     sync.RWMutex
	endpoints map[naming.DeviceID]*Endpoint
	logger    zerolog.Logger
}

// NewNetwork creates a network whose hub is master
func NewNetwork(master naming.DeviceID, codec *messaging.Codec) *Network {
	if codec == nil {
		codec = messaging.NewCodec(nil)
	}
	return &Network{
		master:    master,
		codec:     codec,
		endpoints: make(map[naming.DeviceID]*Endpoint),
		logger:    logger.GetLogger("transport.memory"),
	}
}

// Endpoint is one device's connection to the network
type Endpoint struct {
	id      naming.DeviceID
	network *Network
	queue   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	writes  atomic.Int64

	mutex     sync.RWMutex
	inbound   func(*messaging.AddressedMessage)
	onConnect []func(naming.DeviceID)
}

// Join attaches a device. Joining twice replaces the earlier endpoint.
func (n *Network) Join(id naming.DeviceID) *Endpoint {
	e := &Endpoint{
		id:      id,
		network: n,
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	e.wg.Add(1)
	go e.readLoop()

	n.mutex.Lock()
	old := n.endpoints[id]
	n.endpoints[id] = e
	master := n.endpoints[n.master]
	n.mutex.Unlock()

	if old != nil {
		old.Close()
	}
	n.logger.Debug().Str("device_id", id.String()).Msg("Device joined")
	if master != nil && id != n.master {
		master.notifyConnected(id)
	}
	return e
}

func (n *Network) leave(e *Endpoint) {
	n.mutex.Lock()
	if n.endpoints[e.id] == e {
		delete(n.endpoints, e.id)
	}
	n.mutex.Unlock()
}

func (n *Network) lookup(id naming.DeviceID) (*Endpoint, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	e, ok := n.endpoints[id]
	return e, ok
}

// ID returns the device id of the endpoint
func (e *Endpoint) ID() naming.DeviceID {
	return e.id
}

// SetInbound sets the sink for decoded inbound messages
func (e *Endpoint) SetInbound(fn func(*messaging.AddressedMessage)) {
	e.mutex.Lock()
	e.inbound = fn
	e.mutex.Unlock()
}

// OnDeviceConnected registers fn to be told about devices joining. Only the
// master's endpoint hears about joins.
func (e *Endpoint) OnDeviceConnected(fn func(naming.DeviceID)) {
	e.mutex.Lock()
	e.onConnect = append(e.onConnect, fn)
	e.mutex.Unlock()
}

func (e *Endpoint) notifyConnected(id naming.DeviceID) {
	e.mutex.RLock()
	callbacks := append([]func(naming.DeviceID){}, e.onConnect...)
	e.mutex.RUnlock()
	for _, cb := range callbacks {
		cb(id)
	}
}

// Write encodes msg and queues it at the recipient
func (e *Endpoint) Write(msg *messaging.AddressedMessage) *messaging.Future[struct{}] {
	e.writes.Add(1)
	if e.closed.Load() {
		return messaging.Failed[struct{}](messaging.ErrTransportClosed)
	}
	if msg.From() != e.id {
		return messaging.Failed[struct{}](fmt.Errorf("endpoint %s cannot send as %s", e.id, msg.From()))
	}
	if !e.Connected(msg.To()) {
		return messaging.Failed[struct{}](fmt.Errorf("%w: %s", messaging.ErrNotConnected, msg.To()))
	}
	peer, ok := e.network.lookup(msg.To())
	if !ok {
		return messaging.Failed[struct{}](fmt.Errorf("%w: %s", messaging.ErrNotConnected, msg.To()))
	}

	data, err := e.network.codec.Encode(msg)
	if err != nil {
		return messaging.Failed[struct{}](err)
	}

	select {
	case peer.queue <- data:
		return messaging.Succeeded(struct{}{})
	case <-peer.done:
		return messaging.Failed[struct{}](fmt.Errorf("%w: %s", messaging.ErrNotConnected, msg.To()))
	}
}

// Writes returns how many writes were attempted through this endpoint
func (e *Endpoint) Writes() int64 {
	return e.writes.Load()
}

// Connected reports whether id is reachable. Clients only see the master.
func (e *Endpoint) Connected(id naming.DeviceID) bool {
	if id == e.id {
		return false
	}
	if e.id != e.network.master && id != e.network.master {
		return false
	}
	_, ok := e.network.lookup(id)
	return ok
}

// ConnectedDevices returns the reachable devices in sorted order
func (e *Endpoint) ConnectedDevices() []naming.DeviceID {
	e.network.mutex.RLock()
	var ids []naming.DeviceID
	for id := range e.network.endpoints {
		if id == e.id {
			continue
		}
		if e.id != e.network.master && id != e.network.master {
			continue
		}
		ids = append(ids, id)
	}
	e.network.mutex.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case data := <-e.queue:
			msg, err := e.network.codec.Decode(data)
			if err != nil {
				e.network.logger.Error().Err(err).Str("device_id", e.id.String()).Msg("Failed to decode message")
				continue
			}
			e.mutex.RLock()
			inbound := e.inbound
			e.mutex.RUnlock()
			if inbound != nil {
				inbound(msg)
			}
		}
	}
}

// Close detaches the endpoint from the network
func (e *Endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.network.leave(e)
	close(e.done)
	e.wg.Wait()
	return nil
}

// Start is a no-op; an endpoint is live from Join on
func (e *Endpoint) Start(context.Context) error {
	if e.closed.Load() {
		return messaging.ErrTransportClosed
	}
	return nil
}

// Stop closes the endpoint
func (e *Endpoint) Stop() error {
	return e.Close()
}
