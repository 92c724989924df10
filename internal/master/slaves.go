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

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

var errInvalidSlave = errors.New("slave needs an id and a name")

// SlaveHandler registers and deletes slaves
type SlaveHandler struct {
	*handler.MasterBase
	store       SlaveStore
	hasher      TokenHasher
	broadcaster *ModuleBroadcaster
}

func NewSlaveHandler(router *messaging.Router, gate *handler.PermissionGate, store SlaveStore, hasher TokenHasher, broadcaster *ModuleBroadcaster) *SlaveHandler {
	h := &SlaveHandler{
		MasterBase:  handler.NewMasterBase(router, "slaves", gate),
		store:       store,
		hasher:      hasher,
		broadcaster: broadcaster,
	}
	h.Attach(h, routes.MasterSlaveRegister, routes.MasterSlaveDelete)
	return h
}

func (h *SlaveHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.MasterSlaveRegister.Matches(msg):
		req, _ := routes.MasterSlaveRegister.Payload(msg)
		return h.register(msg, req)
	case routes.MasterSlaveDelete.Matches(msg):
		req, _ := routes.MasterSlaveDelete.Payload(msg)
		return h.delete(msg, req)
	}
	return h.InvalidMessage(msg)
}

func (h *SlaveHandler) register(msg *messaging.AddressedMessage, req *payload.RegisterSlavePayload) error {
	if !h.HasPermission(msg.From(), permission.AddOdroid, "") {
		return h.SendNoPermissionReply(msg, permission.AddOdroid)
	}
	if req.SlaveID.IsZero() || req.Name == "" {
		return h.Fail(msg, messaging.Classify(messaging.KindProtocol, "register slave", errInvalidSlave))
	}

	var tokenHash string
	if len(req.Token) > 0 {
		hash, err := h.hasher.Hash(req.Token)
		if err != nil {
			return h.Fail(msg, fmt.Errorf("failed to hash registration token: %w", err))
		}
		tokenHash = hash
	}

	slave := payload.Slave{ID: req.SlaveID, Name: req.Name}
	if err := h.store.AddSlave(slave, tokenHash); err != nil {
		return h.Fail(msg, err)
	}

	h.Logger().Info().
		Str("slave_id", slave.ID.String()).
		Str("name", slave.Name).
		Msg("Slave registered")

	if err := h.Reply(msg, routes.MasterSlaveRegisterReply, messaging.Void{}); err != nil {
		return err
	}
	h.broadcaster.BroadcastAll()
	return nil
}

func (h *SlaveHandler) delete(msg *messaging.AddressedMessage, req *payload.DeleteDevicePayload) error {
	if !h.HasPermission(msg.From(), permission.DeleteOdroid, "") {
		return h.SendNoPermissionReply(msg, permission.DeleteOdroid)
	}

	if err := h.store.RemoveSlave(req.Device); err != nil {
		return h.Fail(msg, err)
	}

	h.Logger().Info().Str("slave_id", req.Device.String()).Msg("Slave deleted")

	if err := h.Reply(msg, routes.MasterSlaveDeleteReply, messaging.Void{}); err != nil {
		return err
	}
	h.broadcaster.BroadcastAll()
	return nil
}
