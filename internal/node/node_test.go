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

package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smarthome/internal/config"
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/slave"
	"smarthome/internal/store"
	"smarthome/internal/transport/memory"
)

var hallLamp = payload.Module{Name: "hall-lamp", Type: payload.ModuleLight, AtSlave: "slave1", Port: 4}

func testConfig(id, role string) *config.Config {
	return &config.Config{
		Device: config.DeviceConfig{ID: id, Role: role, Name: id},
		Master: config.MasterConfig{ID: "master"},
		Messaging: config.MessagingConfig{
			Workers:          2,
			QueueSize:        64,
			ResponseTimeout:  2 * time.Second,
			ProxyTimeout:     2 * time.Second,
			SettledCacheSize: 64,
		},
		Transport: config.TransportConfig{Kind: config.TransportMemory},
		Database:  config.DatabaseConfig{Path: ":memory:"},
		Logging:   config.LoggingConfig{Level: "error"},
	}
}

type house struct {
	network *memory.Network
	master  *Node
	slave   *Node
	lights  *slave.MemoryLights
	app1    *Node
	app2    *Node
}

func startNode(t *testing.T, n *Node) {
	t.Helper()
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, n.Stop(ctx))
	})
}

// newHouse starts a master, one slave and two apps on an in-memory network
func newHouse(t *testing.T) *house {
	t.Helper()
	h := &house{network: memory.NewNetwork("master", nil), lights: slave.NewMemoryLights()}

	var err error
	h.master, err = New(testConfig("master", config.RoleMaster),
		WithTransport(h.network.Join("master")),
		WithTokenHasher(store.NewFastTokenHasher()),
	)
	require.NoError(t, err)
	startNode(t, h.master)

	st := h.master.Store()
	require.NotNil(t, st)
	require.NoError(t, st.AddSlave(payload.Slave{ID: "slave1", Name: "Hall"}, ""))
	require.NoError(t, st.AddModule(hallLamp))

	h.slave, err = New(testConfig("slave1", config.RoleSlave),
		WithTransport(h.network.Join("slave1")),
		WithDrivers(slave.Drivers{
			Lights: h.lights,
			Camera: slave.NewStaticCamera(nil),
			Doors:  slave.NewMemoryDoors(),
		}),
	)
	require.NoError(t, err)
	startNode(t, h.slave)

	for _, id := range []string{"app1", "app2"} {
		n, err := New(testConfig(id, config.RoleApp), WithTransport(h.network.Join(naming.DeviceID(id))))
		require.NoError(t, err)
		startNode(t, n)
		if id == "app1" {
			h.app1 = n
		} else {
			h.app2 = n
		}
	}
	return h
}

func (h *house) grant(t *testing.T, device naming.DeviceID, module string, perms ...permission.Permission) {
	t.Helper()
	for _, p := range perms {
		require.NoError(t, h.master.Store().Grant(device, p, module))
	}
}

func await[T any](t *testing.T, f *messaging.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("master", config.RoleMaster)
	cfg.Database.Path = ""
	_, err := New(cfg)
	assert.Error(t, err)

	_, err = New(testConfig("app1", config.RoleApp))
	assert.Error(t, err, "a memory transport has to be supplied")
}

func TestHolidaySimulationEndToEnd(t *testing.T) {
	h := newHouse(t)
	h.grant(t, "app1", "", permission.ToggleHolidaySim)
	h.grant(t, "app2", "", permission.HolidayModeSwitchedOn)

	notes := make(chan *payload.NotificationPayload, 1)
	h.app2.App.Notifications.OnNotification(func(p *payload.NotificationPayload) { notes <- p })

	state, err := await(t, h.app1.App.Holiday.Set(true))
	require.NoError(t, err)
	assert.True(t, state.On)

	on, err := h.master.Store().HolidaySimulation()
	require.NoError(t, err)
	assert.True(t, on)

	select {
	case p := <-notes:
		assert.Equal(t, permission.HolidayModeSwitchedOn, p.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("app2 was not notified")
	}

	_, err = await(t, h.app2.App.Holiday.Set(false))
	assert.ErrorIs(t, err, messaging.ErrNoPermission)
}

func TestLightThroughSlave(t *testing.T) {
	h := newHouse(t)
	h.grant(t, "app1", "hall-lamp", permission.SwitchLight)
	h.grant(t, "app2", "", permission.RequestLightStatus)

	updates := make(chan *payload.LightPayload, 1)
	h.app2.App.Light.OnUpdate(func(p *payload.LightPayload) { updates <- p })

	state, err := await(t, h.app1.App.Light.Set("hall-lamp", true))
	require.NoError(t, err)
	assert.True(t, state.On)
	assert.Equal(t, hallLamp, state.Module)

	on, err := h.lights.Light(4)
	require.NoError(t, err)
	assert.True(t, on)

	select {
	case p := <-updates:
		assert.Equal(t, "hall-lamp", p.Module.Name)
		assert.True(t, p.On)
	case <-time.After(3 * time.Second):
		t.Fatal("app2 saw no light update")
	}

	state, err = await(t, h.app2.App.Light.Get("hall-lamp"))
	require.NoError(t, err)
	assert.True(t, state.On)
}

func TestCatalogueReachesEveryDevice(t *testing.T) {
	h := newHouse(t)
	h.grant(t, "app1", "", permission.AddModule)

	bell := payload.Module{Name: "front-bell", Type: payload.ModuleDoorBell, AtSlave: "slave1", Port: 7}
	_, err := await(t, h.app1.App.Modules.Add(bell))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := h.slave.Slave.Modules.Own("front-bell")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
	for _, app := range []*Node{h.app1, h.app2} {
		assert.Eventually(t, func() bool {
			_, ok := app.App.Modules.Catalogue().Module("front-bell")
			return ok
		}, 3*time.Second, 10*time.Millisecond)
	}
}

func TestStopFailsPendingRequests(t *testing.T) {
	h := newHouse(t)
	h.grant(t, "app1", "", permission.RequestLightStatus)
	require.NoError(t, h.slave.Stop(context.Background()))

	_, err := await(t, h.app1.App.Light.Get("hall-lamp"))
	require.Error(t, err)
	var ep *messaging.ErrorPayload
	assert.ErrorAs(t, err, &ep)
}
