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

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

var errInvalidModule = errors.New("module needs a name, a type and a slave")

// CatalogueSource returns the current module catalogue
type CatalogueSource interface {
	Catalogue() (*payload.ModulesPayload, error)
}

// ModuleHandler adds and removes modules
type ModuleHandler struct {
	*handler.MasterBase
	store       ModuleStore
	broadcaster *ModuleBroadcaster
}

func NewModuleHandler(router *messaging.Router, gate *handler.PermissionGate, store ModuleStore, broadcaster *ModuleBroadcaster) *ModuleHandler {
	h := &ModuleHandler{
		MasterBase:  handler.NewMasterBase(router, "modules", gate),
		store:       store,
		broadcaster: broadcaster,
	}
	h.Attach(h, routes.MasterModuleAdd, routes.MasterModuleRemove)
	return h
}

func (h *ModuleHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.MasterModuleAdd.Matches(msg):
		req, _ := routes.MasterModuleAdd.Payload(msg)
		return h.add(msg, req.Module)
	case routes.MasterModuleRemove.Matches(msg):
		req, _ := routes.MasterModuleRemove.Payload(msg)
		return h.remove(msg, req.Module)
	}
	return h.InvalidMessage(msg)
}

func (h *ModuleHandler) add(msg *messaging.AddressedMessage, module payload.Module) error {
	if !h.HasPermission(msg.From(), permission.AddModule, "") {
		return h.SendNoPermissionReply(msg, permission.AddModule)
	}
	if module.Name == "" || module.Type == "" || module.AtSlave.IsZero() {
		return h.Fail(msg, messaging.Classify(messaging.KindProtocol, "add module", errInvalidModule))
	}

	if err := h.store.AddModule(module); err != nil {
		return h.Fail(msg, err)
	}

	h.Logger().Info().
		Str("module", module.Name).
		Str("type", string(module.Type)).
		Str("slave_id", module.AtSlave.String()).
		Msg("Module added")

	if err := h.Reply(msg, routes.MasterModuleAddReply, messaging.Void{}); err != nil {
		return err
	}
	h.broadcaster.BroadcastAll()
	return nil
}

func (h *ModuleHandler) remove(msg *messaging.AddressedMessage, module payload.Module) error {
	if !h.HasPermission(msg.From(), permission.DeleteModule, "") {
		return h.SendNoPermissionReply(msg, permission.DeleteModule)
	}

	if err := h.store.RemoveModule(module.Name); err != nil {
		return h.Fail(msg, err)
	}

	h.Logger().Info().Str("module", module.Name).Msg("Module removed")

	if err := h.Reply(msg, routes.MasterModuleRemoveReply, messaging.Void{}); err != nil {
		return err
	}
	h.broadcaster.BroadcastAll()
	return nil
}

// ModuleBroadcaster pushes the module catalogue to devices: to each device
// as it connects and to everyone after a change.
type ModuleBroadcaster struct {
	*handler.Base
	catalogue CatalogueSource
}

func NewModuleBroadcaster(router *messaging.Router, catalogue CatalogueSource) *ModuleBroadcaster {
	b := &ModuleBroadcaster{
		Base:      handler.NewBase(router, "module_broadcaster"),
		catalogue: catalogue,
	}
	b.Attach(b, routes.MasterDeviceConnected)
	return b
}

func (b *ModuleBroadcaster) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.MasterDeviceConnected.Matches(msg) {
		return b.InvalidMessage(msg)
	}
	// Connection events come from the local transport only
	if msg.From() != b.Router().OwnID() {
		return messaging.Classify(messaging.KindProtocol, "device connected",
			errors.New("connection event from remote device "+msg.From().String()))
	}

	event, _ := routes.MasterDeviceConnected.Payload(msg)
	b.Logger().Info().Str("device_id", event.Device.String()).Msg("Sending module catalogue to new device")
	return b.SendTo(event.Device)
}

// SendTo sends the catalogue to a single device
func (b *ModuleBroadcaster) SendTo(id naming.DeviceID) error {
	catalogue, err := b.catalogue.Catalogue()
	if err != nil {
		return messaging.Classify(messaging.KindInfrastructure, "load catalogue", err)
	}
	_, err = b.Router().SendMessage(id, routes.GlobalModulesUpdate, messaging.NewMessage(catalogue))
	return err
}

// BroadcastAll sends the catalogue to every connected device
func (b *ModuleBroadcaster) BroadcastAll() {
	catalogue, err := b.catalogue.Catalogue()
	if err != nil {
		b.Logger().Error().Err(err).Msg("Failed to load module catalogue")
		return
	}
	sent, err := b.Router().Broadcast(routes.GlobalModulesUpdate, catalogue, nil)
	if err != nil {
		b.Logger().Error().Err(err).Msg("Failed to broadcast module catalogue")
		return
	}
	b.Logger().Debug().Int("recipients", len(sent)).Msg("Module catalogue broadcast")
}
