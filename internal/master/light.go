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

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

// ModuleLookup resolves a module by name
type ModuleLookup interface {
	Module(name string) (payload.Module, error)
}

func lookupModule(modules ModuleLookup, name string, want payload.ModuleType) (payload.Module, error) {
	module, err := modules.Module(name)
	if err != nil {
		return payload.Module{}, fmt.Errorf("failed to find module %q: %w", name, err)
	}
	if module.Type != want {
		return payload.Module{}, messaging.Classify(messaging.KindProtocol, "lookup module",
			fmt.Errorf("module %q is a %s, not a %s", name, module.Type, want))
	}
	return module, nil
}

// LightHandler forwards light requests to the slave driving the light
type LightHandler struct {
	*handler.MasterBase
	modules ModuleLookup
}

func NewLightHandler(router *messaging.Router, gate *handler.PermissionGate, modules ModuleLookup, opts ...handler.ProxyOption) *LightHandler {
	h := &LightHandler{
		MasterBase: handler.NewMasterBase(router, "light", gate, opts...),
		modules:    modules,
	}
	h.Attach(h,
		routes.MasterLightGet, routes.MasterLightSet,
		routes.SlaveLightGetReply, routes.SlaveLightGetError,
		routes.SlaveLightSetReply, routes.SlaveLightSetError,
	)
	return h
}

func (h *LightHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.MasterLightGet.Matches(msg):
		req, _ := routes.MasterLightGet.Payload(msg)
		if !h.HasPermission(msg.From(), permission.RequestLightStatus, "") {
			return h.SendNoPermissionReply(msg, permission.RequestLightStatus)
		}
		return h.forward(msg, req, routes.SlaveLightGet)

	case routes.MasterLightSet.Matches(msg):
		req, _ := routes.MasterLightSet.Payload(msg)
		if !h.HasPermission(msg.From(), permission.SwitchLight, req.Module.Name) {
			return h.SendNoPermissionReply(msg, permission.SwitchLight)
		}
		return h.forward(msg, req, routes.SlaveLightSet)

	case routes.SlaveLightGetReply.Matches(msg):
		state, _ := routes.SlaveLightGetReply.Payload(msg)
		_, err := h.ForwardReply(msg, routes.MasterLightGetReply, state)
		return err

	case routes.SlaveLightSetReply.Matches(msg):
		state, _ := routes.SlaveLightSetReply.Payload(msg)
		if _, err := h.ForwardReply(msg, routes.MasterLightSetReply, state); err != nil {
			return err
		}
		if _, err := h.SendToAllWithPermission(routes.AppLightUpdate, state, permission.RequestLightStatus, ""); err != nil {
			h.Logger().Error().Err(err).Msg("Failed to publish light update")
		}
		return nil

	case routes.SlaveLightGetError.Matches(msg):
		_, err := h.ForwardReply(msg, routes.MasterLightGetReply, nil)
		return err

	case routes.SlaveLightSetError.Matches(msg):
		_, err := h.ForwardReply(msg, routes.MasterLightSetReply, nil)
		return err
	}
	return h.InvalidMessage(msg)
}

func (h *LightHandler) forward(msg *messaging.AddressedMessage, req *payload.LightPayload, key messaging.RoutingKey[*payload.LightPayload]) error {
	module, err := lookupModule(h.modules, req.Module.Name, payload.ModuleLight)
	if err != nil {
		return h.Fail(msg, err)
	}
	if _, err := h.Proxy(msg, module.AtSlave, key, &payload.LightPayload{Module: module, On: req.On}); err != nil {
		return h.Fail(msg, err)
	}
	return nil
}
