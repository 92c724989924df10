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

package master

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/store"
)

var (
	hallLamp  = payload.Module{Name: "hall-lamp", Type: payload.ModuleLight, AtSlave: "slave1", Port: 4}
	hallCam   = payload.Module{Name: "hall-cam", Type: payload.ModuleCamera, AtSlave: "slave1"}
	frontDoor = payload.Module{Name: "front-door", Type: payload.ModuleDoor, AtSlave: "slave1", Port: 2}
)

// captureTransport records every message the master writes
type captureTransport struct {
	mu        sync.Mutex
	written   []*messaging.AddressedMessage
	connected []naming.DeviceID
	// writes under failKey are recorded but fail
	failKey string
}

func (c *captureTransport) Write(msg *messaging.AddressedMessage) *messaging.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	if c.failKey != "" && msg.RoutingKey() == c.failKey {
		return messaging.Failed[struct{}](fmt.Errorf("%w: %s", messaging.ErrNotConnected, msg.To()))
	}
	return messaging.Succeeded(struct{}{})
}

func (c *captureTransport) failWrites(key string) {
	c.mu.Lock()
	c.failKey = key
	c.mu.Unlock()
}

func (c *captureTransport) Connected(id naming.DeviceID) bool {
	for _, d := range c.ConnectedDevices() {
		if d == id {
			return true
		}
	}
	return false
}

func (c *captureTransport) ConnectedDevices() []naming.DeviceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]naming.DeviceID(nil), c.connected...)
}

func (c *captureTransport) find(to naming.DeviceID, key string) []*messaging.AddressedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*messaging.AddressedMessage
	for _, m := range c.written {
		if m.To() == to && m.RoutingKey() == key {
			out = append(out, m)
		}
	}
	return out
}

// spyStore counts slave writes on top of a real database
type spyStore struct {
	*store.Store
	addSlaveCalls atomic.Int64
}

func (s *spyStore) AddSlave(slave payload.Slave, tokenHash string) error {
	s.addSlaveCalls.Add(1)
	return s.Store.AddSlave(slave, tokenHash)
}

type harness struct {
	t        *testing.T
	tr       *captureTransport
	router   *messaging.Router
	store    *spyStore
	handlers *Handlers
}

// newHarness runs the master handlers against an in-memory database with
// one slave (hall lamp, camera and front door) and two apps connected.
func newHarness(t *testing.T, opts ...handler.ProxyOption) *harness {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	require.NoError(t, db.AddSlave(payload.Slave{ID: "slave1", Name: "Hall"}, ""))
	for _, m := range []payload.Module{hallLamp, hallCam, frontDoor} {
		require.NoError(t, db.AddModule(m))
	}

	tr := &captureTransport{connected: []naming.DeviceID{"app1", "app2", "slave1"}}
	dispatcher := messaging.NewDispatcher(messaging.NewExecutor(2, 64))
	t.Cleanup(func() {
		_ = dispatcher.Close(context.Background())
	})
	router := messaging.NewRouter(naming.NewStatic("master", "master"), dispatcher, tr,
		messaging.WithRouterSequencer(messaging.NewSequencer()))

	spy := &spyStore{Store: db}
	handlers, err := Register(router, spy, store.NewFastTokenHasher(), opts...)
	require.NoError(t, err)

	return &harness{t: t, tr: tr, router: router, store: spy, handlers: handlers}
}

func (h *harness) grant(device naming.DeviceID, perms ...permission.Permission) {
	h.t.Helper()
	for _, p := range perms {
		require.NoError(h.t, h.store.Grant(device, p, ""))
	}
}

// send delivers an inbound message as if it came off the wire
func (h *harness) send(from naming.DeviceID, key string, seq int64, p any) *messaging.AddressedMessage {
	h.t.Helper()
	am, err := messaging.RestoreAddressed(from, "master", key, seq, messaging.NewMessage(p))
	require.NoError(h.t, err)
	h.router.Receive(am)
	return am
}

// answer delivers a reply from from to the master referencing ref
func (h *harness) answer(from naming.DeviceID, key string, ref int64, p any) {
	h.t.Helper()
	msg := messaging.NewMessage(p)
	require.NoError(h.t, messaging.HeaderReferencesID.Put(msg, ref))
	am, err := messaging.RestoreAddressed(from, "master", key, 1000+ref, msg)
	require.NoError(h.t, err)
	h.router.Receive(am)
}

// waitFor returns the first message written to to under key
func (h *harness) waitFor(to naming.DeviceID, key string) *messaging.AddressedMessage {
	h.t.Helper()
	var found *messaging.AddressedMessage
	require.Eventually(h.t, func() bool {
		if msgs := h.tr.find(to, key); len(msgs) > 0 {
			found = msgs[0]
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s to %s", key, to)
	return found
}

func refOf(t *testing.T, msg *messaging.AddressedMessage) int64 {
	t.Helper()
	ref, ok := msg.ReferencesID()
	require.True(t, ok, "%s references nothing", msg)
	return ref
}
