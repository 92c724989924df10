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

// PermissionHandler grants and revokes permissions
type PermissionHandler struct {
	*handler.MasterBase
	store PermissionStore
}

func NewPermissionHandler(router *messaging.Router, gate *handler.PermissionGate, store PermissionStore) *PermissionHandler {
	h := &PermissionHandler{
		MasterBase: handler.NewMasterBase(router, "permissions", gate),
		store:      store,
	}
	h.Attach(h, routes.MasterPermissionSet)
	return h
}

func (h *PermissionHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	if !routes.MasterPermissionSet.Matches(msg) {
		return h.InvalidMessage(msg)
	}
	req, _ := routes.MasterPermissionSet.Payload(msg)

	if !h.HasPermission(msg.From(), permission.ModifyUserPermission, "") {
		return h.SendNoPermissionReply(msg, permission.ModifyUserPermission)
	}
	if err := validatePermissionChange(req); err != nil {
		return h.Fail(msg, messaging.Classify(messaging.KindProtocol, "set permission", err))
	}

	var err error
	switch req.Action {
	case payload.Grant:
		err = h.store.Grant(req.User, req.Permission, req.ModuleName)
	case payload.Revoke:
		err = h.store.Revoke(req.User, req.Permission, req.ModuleName)
	}
	if err != nil {
		return h.Fail(msg, err)
	}

	h.Logger().Info().
		Str("user", req.User.String()).
		Str("permission", req.Permission.String()).
		Str("module", req.ModuleName).
		Str("action", string(req.Action)).
		Msg("Permission changed")

	return h.Reply(msg, routes.MasterPermissionSetReply, messaging.Void{})
}

func validatePermissionChange(req *payload.SetPermissionPayload) error {
	if req.User.IsZero() {
		return fmt.Errorf("permission change without user")
	}
	if !req.Permission.Valid() {
		return fmt.Errorf("unknown permission %q", req.Permission)
	}
	if req.Permission.IsModuleBound() && req.ModuleName == "" {
		return fmt.Errorf("permission %s needs a module", req.Permission)
	}
	if req.Action != payload.Grant && req.Action != payload.Revoke {
		return fmt.Errorf("unknown action %q", req.Action)
	}
	return nil
}
