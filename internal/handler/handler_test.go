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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smarthome/internal/messaging"
	"smarthome/internal/naming"
)

type lamp struct {
	On bool
}

var (
	lampSet      = messaging.NewRoutingKey[*lamp](messaging.PrefixMaster + "/lamp/set")
	lampSetReply = messaging.Reply[*lamp](lampSet)
	lampSetError = messaging.ErrorOf(lampSet)
	slaveLampSet = messaging.NewRoutingKey[*lamp](messaging.PrefixSlave + "/lamp/set")
)

// captureTransport records writes and lets the test decide their outcome
type captureTransport struct {
	mu        sync.Mutex
	written   []*messaging.AddressedMessage
	connected []naming.DeviceID
	fail      error
}

func (c *captureTransport) Write(msg *messaging.AddressedMessage) *messaging.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	if c.fail != nil {
		return messaging.Failed[struct{}](c.fail)
	}
	return messaging.Succeeded(struct{}{})
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

func (c *captureTransport) last(t *testing.T) *messaging.AddressedMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.written, "nothing was written")
	return c.written[len(c.written)-1]
}

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func newRouter(t *testing.T, own, master naming.DeviceID, tr messaging.Transport) *messaging.Router {
	t.Helper()
	d := messaging.NewDispatcher(messaging.NewExecutor(2, 16))
	t.Cleanup(func() {
		_ = d.Close(context.Background())
	})
	return messaging.NewRouter(naming.NewStatic(own, master), d, tr)
}

// reply builds an inbound message referencing seq
func reply(t *testing.T, from, to naming.DeviceID, key string, seq, ref int64, payload any) *messaging.AddressedMessage {
	t.Helper()
	msg := messaging.NewMessage(payload)
	require.NoError(t, messaging.HeaderReferencesID.Put(msg, ref))
	am, err := messaging.RestoreAddressed(from, to, key, seq, msg)
	require.NoError(t, err)
	return am
}

func request(t *testing.T, from, to naming.DeviceID, key string, seq int64, payload any) *messaging.AddressedMessage {
	t.Helper()
	am, err := messaging.RestoreAddressed(from, to, key, seq, messaging.NewMessage(payload))
	require.NoError(t, err)
	return am
}

func await[T any](t *testing.T, f *messaging.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}
