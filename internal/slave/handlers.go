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

package slave

import (
	"context"
	"fmt"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/payload"
	"smarthome/internal/routes"
)

// LightHandler reads and switches lights
type LightHandler struct {
	*handler.Base
	driver LightDriver
}

func NewLightHandler(router *messaging.Router, driver LightDriver) *LightHandler {
	h := &LightHandler{Base: handler.NewBase(router, "slave_light"), driver: driver}
	h.Attach(h, routes.SlaveLightGet, routes.SlaveLightSet)
	return h
}

func (h *LightHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if err := fromMaster(h.Base, msg); err != nil {
		return err
	}

	switch {
	case routes.SlaveLightGet.Matches(msg):
		req, _ := routes.SlaveLightGet.Payload(msg)
		if err := h.checkModule(req.Module); err != nil {
			return h.Fail(msg, err)
		}
		on, err := h.driver.Light(req.Module.Port)
		if err != nil {
			return h.Fail(msg, messaging.Classify(messaging.KindInfrastructure, "read light", err))
		}
		return h.Reply(msg, routes.SlaveLightGetReply, &payload.LightPayload{Module: req.Module, On: on})

	case routes.SlaveLightSet.Matches(msg):
		req, _ := routes.SlaveLightSet.Payload(msg)
		if err := h.checkModule(req.Module); err != nil {
			return h.Fail(msg, err)
		}
		if err := h.driver.SetLight(req.Module.Port, req.On); err != nil {
			return h.Fail(msg, messaging.Classify(messaging.KindInfrastructure, "switch light", err))
		}
		h.Logger().Info().Str("module", req.Module.Name).Bool("on", req.On).Msg("Light switched")
		return h.Reply(msg, routes.SlaveLightSetReply, &payload.LightPayload{Module: req.Module, On: req.On})
	}
	return h.InvalidMessage(msg)
}

func (h *LightHandler) checkModule(module payload.Module) error {
	if module.AtSlave != h.Router().OwnID() || module.Type != payload.ModuleLight {
		return messaging.Classify(messaging.KindProtocol, "light",
			fmt.Errorf("module %q is not a light of this slave", module.Name))
	}
	return nil
}

// CameraHandler takes pictures
type CameraHandler struct {
	*handler.Base
	driver CameraDriver
}

func NewCameraHandler(router *messaging.Router, driver CameraDriver) *CameraHandler {
	h := &CameraHandler{Base: handler.NewBase(router, "slave_camera"), driver: driver}
	h.Attach(h, routes.SlaveCameraGet)
	return h
}

func (h *CameraHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.SlaveCameraGet.Matches(msg) {
		return h.InvalidMessage(msg)
	}
	if err := fromMaster(h.Base, msg); err != nil {
		return err
	}
	req, _ := routes.SlaveCameraGet.Payload(msg)

	picture, err := h.driver.Picture(req.CameraID)
	if err != nil {
		return h.Fail(msg, messaging.Classify(messaging.KindInfrastructure, "take picture", err))
	}
	return h.Reply(msg, routes.SlaveCameraGetReply, &payload.CameraPayload{
		CameraID:   req.CameraID,
		ModuleName: req.ModuleName,
		Picture:    picture,
	})
}

// DoorHandler opens door latches
type DoorHandler struct {
	*handler.Base
	driver  DoorDriver
	modules *ModuleHandler
}

func NewDoorHandler(router *messaging.Router, driver DoorDriver, modules *ModuleHandler) *DoorHandler {
	h := &DoorHandler{Base: handler.NewBase(router, "slave_door"), driver: driver, modules: modules}
	h.Attach(h, routes.SlaveDoorUnlatch)
	return h
}

func (h *DoorHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.SlaveDoorUnlatch.Matches(msg) {
		return h.InvalidMessage(msg)
	}
	if err := fromMaster(h.Base, msg); err != nil {
		return err
	}
	req, _ := routes.SlaveDoorUnlatch.Payload(msg)

	module, ok := h.modules.Own(req.ModuleName)
	if !ok || module.Type != payload.ModuleDoor {
		return h.Fail(msg, messaging.Classify(messaging.KindProtocol, "unlatch",
			fmt.Errorf("module %q is not a door of this slave", req.ModuleName)))
	}
	if err := h.driver.Unlatch(module.Port); err != nil {
		return h.Fail(msg, messaging.Classify(messaging.KindInfrastructure, "unlatch", err))
	}

	h.Logger().Info().Str("module", module.Name).Msg("Door unlatched")
	return h.Reply(msg, routes.SlaveDoorUnlatchReply, &payload.DoorPayload{ModuleName: module.Name})
}

// Reporter sends events from the slave's hardware to the master
type Reporter struct {
	router *messaging.Router
}

func NewReporter(router *messaging.Router) *Reporter {
	return &Reporter{router: router}
}

// Ring reports a press of the door bell button
func (r *Reporter) Ring(moduleName string) *messaging.Future[struct{}] {
	return r.send(routes.MasterDoorBellRing, &payload.DoorBellPayload{ModuleName: moduleName})
}

// DoorStatus reports a door opening or closing
func (r *Reporter) DoorStatus(moduleName string, open bool) *messaging.Future[struct{}] {
	return r.send(routes.MasterDoorStatusUpdate, &payload.DoorStatusPayload{ModuleName: moduleName, Open: open})
}

// Health reports the state of a module
func (r *Reporter) Health(module payload.Module, failure bool) *messaging.Future[struct{}] {
	return r.send(routes.MasterSystemHealthCheck, &payload.SystemHealthPayload{Module: module, Failure: failure})
}

func (r *Reporter) send(key messaging.AnyKey, p any) *messaging.Future[struct{}] {
	sent, err := r.router.SendToMaster(key, messaging.NewMessage(p))
	if err != nil {
		return messaging.Failed[struct{}](err)
	}
	return sent.SendFuture()
}
