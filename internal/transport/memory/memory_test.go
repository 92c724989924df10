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

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smarthome/internal/messaging"
	"smarthome/internal/naming"
)

const testKey = "/master/test/ping"

func addressed(t *testing.T, from, to naming.DeviceID) *messaging.AddressedMessage {
	t.Helper()
	am, err := messaging.NewMessage(messaging.NewErrorPayload("ping")).Address(from, to, testKey)
	require.NoError(t, err)
	return am
}

func write(t *testing.T, e *Endpoint, msg *messaging.AddressedMessage) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := e.Write(msg).Await(ctx)
	return err
}

func TestNetworkDelivery(t *testing.T) {
	network := NewNetwork("master", nil)
	master := network.Join("master")
	app := network.Join("app")
	defer master.Close()
	defer app.Close()

	received := make(chan *messaging.AddressedMessage, 1)
	master.SetInbound(func(msg *messaging.AddressedMessage) { received <- msg })

	sent := addressed(t, "app", "master")
	require.NoError(t, write(t, app, sent))

	select {
	case msg := <-received:
		assert.Equal(t, sent.Seq(), msg.Seq())
		assert.Equal(t, naming.DeviceID("app"), msg.From())
		ep, ok := msg.Payload().(*messaging.ErrorPayload)
		require.True(t, ok, "payload survives the codec")
		assert.Equal(t, "ping", ep.Message)
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
	assert.Equal(t, int64(1), app.Writes())
}

func TestNetworkStarTopology(t *testing.T) {
	network := NewNetwork("master", nil)
	master := network.Join("master")
	app := network.Join("app")
	slave := network.Join("slave")
	defer master.Close()
	defer app.Close()
	defer slave.Close()

	assert.Equal(t, []naming.DeviceID{"app", "slave"}, master.ConnectedDevices())
	assert.Equal(t, []naming.DeviceID{"master"}, app.ConnectedDevices())
	assert.False(t, app.Connected("slave"))
	assert.False(t, app.Connected("app"))

	err := write(t, app, addressed(t, "app", "slave"))
	assert.ErrorIs(t, err, messaging.ErrNotConnected)

	err = write(t, app, addressed(t, "slave", "master"))
	assert.Error(t, err, "an endpoint cannot send as another device")
}

func TestNetworkConnectCallbacks(t *testing.T) {
	network := NewNetwork("master", nil)
	master := network.Join("master")
	defer master.Close()

	var mu sync.Mutex
	var joined []naming.DeviceID
	master.OnDeviceConnected(func(id naming.DeviceID) {
		mu.Lock()
		joined = append(joined, id)
		mu.Unlock()
	})

	app := network.Join("app")
	defer app.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []naming.DeviceID{"app"}, joined)
}

func TestEndpointClose(t *testing.T) {
	network := NewNetwork("master", nil)
	master := network.Join("master")
	app := network.Join("app")
	defer master.Close()

	require.NoError(t, app.Stop())
	require.NoError(t, app.Stop(), "closing twice is fine")

	assert.ErrorIs(t, app.Start(context.Background()), messaging.ErrTransportClosed)
	assert.ErrorIs(t, write(t, app, addressed(t, "app", "master")), messaging.ErrTransportClosed)
	assert.Empty(t, master.ConnectedDevices())
}
