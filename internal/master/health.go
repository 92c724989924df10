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

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

// HealthHandler relays module failures reported by slaves
type HealthHandler struct {
	*handler.MasterBase
}

func NewHealthHandler(router *messaging.Router, gate *handler.PermissionGate) *HealthHandler {
	h := &HealthHandler{MasterBase: handler.NewMasterBase(router, "health", gate)}
	h.Attach(h, routes.MasterSystemHealthCheck)
	return h
}

func (h *HealthHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.MasterSystemHealthCheck.Matches(msg) {
		return h.InvalidMessage(msg)
	}
	report, _ := routes.MasterSystemHealthCheck.Payload(msg)

	if !report.Failure {
		h.Logger().Debug().Str("module", report.Module.Name).Msg("Module healthy")
		return nil
	}

	h.Logger().Warn().
		Str("module", report.Module.Name).
		Str("slave_id", msg.From().String()).
		Msg("Module failure reported")
	notify(h.MasterBase, permission.SystemHealthWarning, report.Module.Name, msg.From().String())
	return nil
}
