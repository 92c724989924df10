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

package app

import (
	"context"
	"sync"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/payload"
	"smarthome/internal/routes"
)

// LightHandler reads and switches lights and relays light changes made by
// other users
type LightHandler struct {
	*handler.AppBase
	updates listeners[*payload.LightPayload]
}

func NewLightHandler(router *messaging.Router, opts ...handler.TrackerOption) *LightHandler {
	h := &LightHandler{AppBase: handler.NewAppBase(router, "app_light", opts...)}
	h.Attach(h,
		routes.MasterLightGetReply, routes.MasterLightGetError,
		routes.MasterLightSetReply, routes.MasterLightSetError,
		routes.AppLightUpdate,
	)
	return h
}

func (h *LightHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if routes.AppLightUpdate.Matches(msg) {
		update, _ := routes.AppLightUpdate.Payload(msg)
		h.updates.emit(update)
		return nil
	}
	return settle(h.AppBase, msg)
}

// OnUpdate registers fn for light changes
func (h *LightHandler) OnUpdate(fn func(*payload.LightPayload)) {
	h.updates.add(fn)
}

// Get reads the state of a light module
func (h *LightHandler) Get(moduleName string) *messaging.Future[*payload.LightPayload] {
	return handler.Request[*payload.LightPayload](h.AppBase, routes.MasterLightGet,
		&payload.LightPayload{Module: payload.Module{Name: moduleName}})
}

// Set switches a light module
func (h *LightHandler) Set(moduleName string, on bool) *messaging.Future[*payload.LightPayload] {
	return handler.Request[*payload.LightPayload](h.AppBase, routes.MasterLightSet,
		&payload.LightPayload{Module: payload.Module{Name: moduleName}, On: on})
}

// DoorHandler controls doors and relays door events
type DoorHandler struct {
	*handler.AppBase
	rings    listeners[*payload.DoorBellPayload]
	statuses listeners[*payload.DoorStatusPayload]
}

func NewDoorHandler(router *messaging.Router, opts ...handler.TrackerOption) *DoorHandler {
	h := &DoorHandler{AppBase: handler.NewAppBase(router, "app_door", opts...)}
	h.Attach(h,
		routes.MasterDoorUnlatchReply, routes.MasterDoorUnlatchError,
		routes.MasterDoorBlockReply, routes.MasterDoorBlockError,
		routes.MasterDoorGetReply, routes.MasterDoorGetError,
		routes.AppDoorRing, routes.AppDoorStatusUpdate,
	)
	return h
}

func (h *DoorHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.AppDoorRing.Matches(msg):
		ring, _ := routes.AppDoorRing.Payload(msg)
		h.Logger().Info().Str("module", ring.ModuleName).Msg("Door bell rang")
		h.rings.emit(ring)
		return nil
	case routes.AppDoorStatusUpdate.Matches(msg):
		status, _ := routes.AppDoorStatusUpdate.Payload(msg)
		h.statuses.emit(status)
		return nil
	}
	return settle(h.AppBase, msg)
}

// OnRing registers fn for door bell rings
func (h *DoorHandler) OnRing(fn func(*payload.DoorBellPayload)) {
	h.rings.add(fn)
}

// OnStatus registers fn for door status changes
func (h *DoorHandler) OnStatus(fn func(*payload.DoorStatusPayload)) {
	h.statuses.add(fn)
}

// Unlatch opens a door
func (h *DoorHandler) Unlatch(moduleName string) *messaging.Future[messaging.Void] {
	return handler.Request[messaging.Void](h.AppBase, routes.MasterDoorUnlatch,
		&payload.DoorPayload{ModuleName: moduleName})
}

// Block blocks or releases a door
func (h *DoorHandler) Block(moduleName string, block bool) *messaging.Future[*payload.DoorBlockPayload] {
	return handler.Request[*payload.DoorBlockPayload](h.AppBase, routes.MasterDoorBlock,
		&payload.DoorBlockPayload{ModuleName: moduleName, Block: block})
}

// Status reads the last known state of a door
func (h *DoorHandler) Status(moduleName string) *messaging.Future[*payload.DoorStatusPayload] {
	return handler.Request[*payload.DoorStatusPayload](h.AppBase, routes.MasterDoorGet,
		&payload.DoorPayload{ModuleName: moduleName})
}

// ModuleHandler adds and removes modules and keeps the catalogue pushed by
// the master
type ModuleHandler struct {
	*handler.AppBase
	updates listeners[*payload.ModulesPayload]

	mutex     sync.RWMutex
	catalogue *payload.ModulesPayload
}

func NewModuleHandler(router *messaging.Router, opts ...handler.TrackerOption) *ModuleHandler {
	h := &ModuleHandler{
		AppBase:   handler.NewAppBase(router, "app_modules", opts...),
		catalogue: &payload.ModulesPayload{},
	}
	h.Attach(h,
		routes.MasterModuleAddReply, routes.MasterModuleAddError,
		routes.MasterModuleRemoveReply, routes.MasterModuleRemoveError,
		routes.GlobalModulesUpdate,
	)
	return h
}

func (h *ModuleHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if routes.GlobalModulesUpdate.Matches(msg) {
		catalogue, _ := routes.GlobalModulesUpdate.Payload(msg)
		h.mutex.Lock()
		h.catalogue = catalogue
		h.mutex.Unlock()
		h.updates.emit(catalogue)
		return nil
	}
	return settle(h.AppBase, msg)
}

// OnUpdate registers fn for catalogue changes
func (h *ModuleHandler) OnUpdate(fn func(*payload.ModulesPayload)) {
	h.updates.add(fn)
}

// Catalogue returns the last catalogue received from the master
func (h *ModuleHandler) Catalogue() *payload.ModulesPayload {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.catalogue
}

// Add asks the master to add a module
func (h *ModuleHandler) Add(module payload.Module) *messaging.Future[messaging.Void] {
	return handler.Request[messaging.Void](h.AppBase, routes.MasterModuleAdd,
		&payload.ModifyModulePayload{Module: module})
}

// Remove asks the master to remove a module
func (h *ModuleHandler) Remove(name string) *messaging.Future[messaging.Void] {
	return handler.Request[messaging.Void](h.AppBase, routes.MasterModuleRemove,
		&payload.ModifyModulePayload{Module: payload.Module{Name: name}})
}

// NotificationHandler relays notifications from the master
type NotificationHandler struct {
	*handler.Base
	notifications listeners[*payload.NotificationPayload]
}

func NewNotificationHandler(router *messaging.Router) *NotificationHandler {
	h := &NotificationHandler{Base: handler.NewBase(router, "app_notifications")}
	h.Attach(h, routes.AppNotificationReceive)
	return h
}

func (h *NotificationHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.AppNotificationReceive.Matches(msg) {
		return h.InvalidMessage(msg)
	}
	n, _ := routes.AppNotificationReceive.Payload(msg)
	h.Logger().Info().Str("type", n.Type.String()).Strs("args", n.Args).Msg("Notification received")
	h.notifications.emit(n)
	return nil
}

// OnNotification registers fn for notifications
func (h *NotificationHandler) OnNotification(fn func(*payload.NotificationPayload)) {
	h.notifications.add(fn)
}
