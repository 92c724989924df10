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
	"errors"
	"fmt"
	"sync"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

var errDoorBlocked = errors.New("door is blocked")

// DoorHandler unlatches doors through their slave and keeps the last known
// state of every door.
type DoorHandler struct {
	*handler.MasterBase
	modules ModuleLookup
	holiday HolidayStore

	mutex sync.RWMutex
	doors map[string]payload.DoorStatusPayload
}

func NewDoorHandler(router *messaging.Router, gate *handler.PermissionGate, modules ModuleLookup, holiday HolidayStore, opts ...handler.ProxyOption) *DoorHandler {
	h := &DoorHandler{
		MasterBase: handler.NewMasterBase(router, "door", gate, opts...),
		modules:    modules,
		holiday:    holiday,
		doors:      make(map[string]payload.DoorStatusPayload),
	}
	h.Attach(h,
		routes.MasterDoorUnlatch, routes.MasterDoorBlock, routes.MasterDoorGet,
		routes.MasterDoorStatusUpdate,
		routes.SlaveDoorUnlatchReply, routes.SlaveDoorUnlatchError,
	)
	return h
}

func (h *DoorHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.MasterDoorUnlatch.Matches(msg):
		req, _ := routes.MasterDoorUnlatch.Payload(msg)
		return h.unlatch(msg, req.ModuleName)

	case routes.MasterDoorBlock.Matches(msg):
		req, _ := routes.MasterDoorBlock.Payload(msg)
		return h.block(msg, req)

	case routes.MasterDoorGet.Matches(msg):
		req, _ := routes.MasterDoorGet.Payload(msg)
		if !h.HasPermission(msg.From(), permission.RequestDoorStatus, "") {
			return h.SendNoPermissionReply(msg, permission.RequestDoorStatus)
		}
		status := h.status(req.ModuleName)
		return h.Reply(msg, routes.MasterDoorGetReply, &status)

	case routes.MasterDoorStatusUpdate.Matches(msg):
		update, _ := routes.MasterDoorStatusUpdate.Payload(msg)
		return h.statusChanged(msg, update)

	case routes.SlaveDoorUnlatchReply.Matches(msg):
		door, _ := routes.SlaveDoorUnlatchReply.Payload(msg)
		if _, err := h.ForwardReply(msg, routes.MasterDoorUnlatchReply, messaging.Void{}); err != nil {
			return err
		}
		notify(h.MasterBase, permission.DoorUnlatched, door.ModuleName)
		return nil

	case routes.SlaveDoorUnlatchError.Matches(msg):
		_, err := h.ForwardReply(msg, routes.MasterDoorUnlatchReply, nil)
		return err
	}
	return h.InvalidMessage(msg)
}

// unlatch needs UNLATCH_DOOR_ON_HOLIDAY instead of UNLATCH_DOOR while the
// holiday simulation runs
func (h *DoorHandler) unlatch(msg *messaging.AddressedMessage, moduleName string) error {
	required := permission.UnlatchDoor
	on, err := h.holiday.HolidaySimulation()
	if err != nil {
		return h.Fail(msg, messaging.Classify(messaging.KindInfrastructure, "read holiday simulation", err))
	}
	if on {
		required = permission.UnlatchDoorOnHoliday
	}
	if !h.HasPermission(msg.From(), required, "") {
		return h.SendNoPermissionReply(msg, required)
	}

	if h.status(moduleName).Blocked {
		return h.Fail(msg, messaging.Classify(messaging.KindPermission, "unlatch door", errDoorBlocked))
	}

	module, err := lookupModule(h.modules, moduleName, payload.ModuleDoor)
	if err != nil {
		return h.Fail(msg, err)
	}
	if _, err := h.Proxy(msg, module.AtSlave, routes.SlaveDoorUnlatch, &payload.DoorPayload{ModuleName: module.Name}); err != nil {
		return h.Fail(msg, err)
	}
	return nil
}

func (h *DoorHandler) block(msg *messaging.AddressedMessage, req *payload.DoorBlockPayload) error {
	if !h.HasPermission(msg.From(), permission.LockDoor, "") {
		return h.SendNoPermissionReply(msg, permission.LockDoor)
	}
	if _, err := lookupModule(h.modules, req.ModuleName, payload.ModuleDoor); err != nil {
		return h.Fail(msg, err)
	}

	h.mutex.Lock()
	status := h.doors[req.ModuleName]
	status.ModuleName = req.ModuleName
	status.Blocked = req.Block
	h.doors[req.ModuleName] = status
	h.mutex.Unlock()

	if err := h.Reply(msg, routes.MasterDoorBlockReply, &payload.DoorBlockPayload{ModuleName: req.ModuleName, Block: req.Block}); err != nil {
		return err
	}
	if req.Block {
		notify(h.MasterBase, permission.DoorLocked, req.ModuleName)
	} else {
		notify(h.MasterBase, permission.DoorUnlocked, req.ModuleName)
	}
	return nil
}

// statusChanged records a door opening or closing. Only the slave hosting
// the door reports its state.
func (h *DoorHandler) statusChanged(msg *messaging.AddressedMessage, update *payload.DoorStatusPayload) error {
	module, err := lookupModule(h.modules, update.ModuleName, payload.ModuleDoor)
	if err != nil {
		return h.Fail(msg, err)
	}
	if msg.From() != module.AtSlave && msg.From() != h.Router().OwnID() {
		return h.Fail(msg, messaging.Classify(messaging.KindPermission, "door status",
			fmt.Errorf("%s does not host door %q", msg.From(), module.Name)))
	}

	h.mutex.Lock()
	status := h.doors[update.ModuleName]
	status.ModuleName = update.ModuleName
	status.Open = update.Open
	h.doors[update.ModuleName] = status
	h.mutex.Unlock()

	_, err = h.SendToAllWithPermission(routes.AppDoorStatusUpdate, &status, permission.RequestDoorStatus, "")
	return err
}

func (h *DoorHandler) status(moduleName string) payload.DoorStatusPayload {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	status, ok := h.doors[moduleName]
	if !ok {
		status.ModuleName = moduleName
	}
	return status
}
