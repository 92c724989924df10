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

// HolidayHandler switches the holiday simulation
type HolidayHandler struct {
	*handler.MasterBase
	store HolidayStore
}

func NewHolidayHandler(router *messaging.Router, gate *handler.PermissionGate, store HolidayStore) *HolidayHandler {
	h := &HolidayHandler{
		MasterBase: handler.NewMasterBase(router, "holiday", gate),
		store:      store,
	}
	h.Attach(h, routes.MasterHolidaySet, routes.MasterHolidayGet)
	return h
}

func (h *HolidayHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.MasterHolidaySet.Matches(msg):
		req, _ := routes.MasterHolidaySet.Payload(msg)
		return h.set(msg, req)
	case routes.MasterHolidayGet.Matches(msg):
		return h.get(msg)
	}
	return h.InvalidMessage(msg)
}

func (h *HolidayHandler) set(msg *messaging.AddressedMessage, req *payload.HolidaySimulationPayload) error {
	if !h.HasPermission(msg.From(), permission.ToggleHolidaySim, "") {
		return h.SendNoPermissionReply(msg, permission.ToggleHolidaySim)
	}

	if err := h.store.SetHolidaySimulation(req.On); err != nil {
		err = messaging.Classify(messaging.KindInfrastructure, "set holiday simulation", err)
		return h.Fail(msg, err)
	}

	h.Logger().Info().
		Bool("on", req.On).
		Str("by", msg.From().String()).
		Msg("Holiday simulation switched")

	if err := h.Reply(msg, routes.MasterHolidaySetReply, &payload.HolidaySimulationPayload{On: req.On}); err != nil {
		return fmt.Errorf("failed to reply to %s: %w", msg, err)
	}

	if req.On {
		notify(h.MasterBase, permission.HolidayModeSwitchedOn)
	} else {
		notify(h.MasterBase, permission.HolidayModeSwitchedOf)
	}
	return nil
}

func (h *HolidayHandler) get(msg *messaging.AddressedMessage) error {
	on, err := h.store.HolidaySimulation()
	if err != nil {
		err = messaging.Classify(messaging.KindInfrastructure, "read holiday simulation", err)
		return h.Fail(msg, err)
	}
	return h.Reply(msg, routes.MasterHolidayGetReply, &payload.HolidaySimulationPayload{On: on})
}
