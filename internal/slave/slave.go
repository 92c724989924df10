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

// Package slave holds the handlers run by slaves: they drive the hardware
// modules attached to them on behalf of the master.
package slave

import (
	"context"
	"fmt"
	"sync"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/payload"
	"smarthome/internal/routes"
)

// Drivers bundles the hardware drivers of a slave
type Drivers struct {
	Lights LightDriver
	Camera CameraDriver
	Doors  DoorDriver
}

// Handlers is the set of slave handlers attached to one router
type Handlers struct {
	Modules  *ModuleHandler
	Light    *LightHandler
	Camera   *CameraHandler
	Door     *DoorHandler
	Reporter *Reporter
}

// Register creates every slave handler and attaches it to router
func Register(router *messaging.Router, drivers Drivers) (*Handlers, error) {
	if router.Identity().IsMaster() {
		return nil, fmt.Errorf("slave handlers cannot run on the master")
	}
	modules := NewModuleHandler(router)
	return &Handlers{
		Modules:  modules,
		Light:    NewLightHandler(router, drivers.Lights),
		Camera:   NewCameraHandler(router, drivers.Camera),
		Door:     NewDoorHandler(router, drivers.Doors, modules),
		Reporter: NewReporter(router),
	}, nil
}

// fromMaster rejects requests that were not sent by the master
func fromMaster(b *handler.Base, msg *messaging.AddressedMessage) error {
	if msg.From() != b.Router().MasterID() {
		return messaging.Classify(messaging.KindProtocol, msg.RoutingKey(),
			fmt.Errorf("request from %s, only the master may drive modules", msg.From()))
	}
	return nil
}

// ModuleHandler keeps the module catalogue pushed by the master
type ModuleHandler struct {
	*handler.Base

	mutex     sync.RWMutex
	catalogue *payload.ModulesPayload
}

func NewModuleHandler(router *messaging.Router) *ModuleHandler {
	h := &ModuleHandler{
		Base:      handler.NewBase(router, "slave_modules"),
		catalogue: &payload.ModulesPayload{},
	}
	h.Attach(h, routes.GlobalModulesUpdate)
	return h
}

func (h *ModuleHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.GlobalModulesUpdate.Matches(msg) {
		return h.InvalidMessage(msg)
	}
	if err := fromMaster(h.Base, msg); err != nil {
		return err
	}
	catalogue, _ := routes.GlobalModulesUpdate.Payload(msg)

	h.mutex.Lock()
	h.catalogue = catalogue
	h.mutex.Unlock()

	h.Logger().Info().
		Int("modules", len(catalogue.ModulesAt(h.Router().OwnID()))).
		Msg("Module catalogue updated")
	return nil
}

// Own returns the module named name if it is attached to this slave
func (h *ModuleHandler) Own(name string) (payload.Module, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	module, ok := h.catalogue.Module(name)
	if !ok || module.AtSlave != h.Router().OwnID() {
		return payload.Module{}, false
	}
	return module, true
}

// Modules returns the modules attached to this slave
func (h *ModuleHandler) Modules() []payload.Module {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.catalogue.ModulesAt(h.Router().OwnID())
}
