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
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

// CameraHandler forwards picture requests to slaves and turns door bell
// rings into a picture broadcast.
type CameraHandler struct {
	*handler.MasterBase
	catalogue CameraStore
}

// CameraStore is what the camera handler needs to resolve modules
type CameraStore interface {
	ModuleLookup
	CatalogueSource
}

func NewCameraHandler(router *messaging.Router, gate *handler.PermissionGate, store CameraStore, opts ...handler.ProxyOption) *CameraHandler {
	h := &CameraHandler{catalogue: store}
	// a ring is still announced when its camera never answers
	unanswered := handler.WithUnansweredCallback(func(original *messaging.AddressedMessage, err error) {
		if routes.MasterDoorBellRing.Matches(original) {
			h.ring(original, nil)
			return
		}
		if replyErr := h.ReplyError(original, err); replyErr != nil {
			h.Logger().Error().Err(replyErr).Msg("Failed to report unanswered picture request")
		}
	})
	h.MasterBase = handler.NewMasterBase(router, "camera", gate, append(opts, unanswered)...)
	h.Attach(h,
		routes.MasterCameraGet, routes.MasterDoorBellRing,
		routes.SlaveCameraGetReply, routes.SlaveCameraGetError,
	)
	return h
}

func (h *CameraHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	switch {
	case routes.MasterCameraGet.Matches(msg):
		req, _ := routes.MasterCameraGet.Payload(msg)
		return h.takePicture(msg, req.ModuleName)

	case routes.MasterDoorBellRing.Matches(msg):
		return h.doorBellRang(msg)

	case routes.SlaveCameraGetReply.Matches(msg):
		picture, _ := routes.SlaveCameraGetReply.Payload(msg)
		return h.pictureTaken(msg, picture)

	case routes.SlaveCameraGetError.Matches(msg):
		return h.pictureTaken(msg, nil)
	}
	return h.InvalidMessage(msg)
}

func (h *CameraHandler) takePicture(msg *messaging.AddressedMessage, moduleName string) error {
	if !h.HasPermission(msg.From(), permission.TakeCameraPicture, "") {
		return h.SendNoPermissionReply(msg, permission.TakeCameraPicture)
	}
	module, err := lookupModule(h.catalogue, moduleName, payload.ModuleCamera)
	if err != nil {
		return h.Fail(msg, err)
	}
	if _, err := h.Proxy(msg, module.AtSlave, routes.SlaveCameraGet, &payload.CameraPayload{
		CameraID:   module.Port,
		ModuleName: module.Name,
	}); err != nil {
		return h.Fail(msg, err)
	}
	return nil
}

// doorBellRang asks the camera attached to the ringing slave for a picture.
// The ring is announced once the picture arrives, or without one when the
// slave has no camera or the camera fails.
func (h *CameraHandler) doorBellRang(msg *messaging.AddressedMessage) error {
	ring, _ := routes.MasterDoorBellRing.Payload(msg)
	h.Logger().Info().
		Str("module", ring.ModuleName).
		Str("slave_id", msg.From().String()).
		Msg("Door bell rang")

	catalogue, err := h.catalogue.Catalogue()
	if err != nil {
		h.Logger().Error().Err(err).Msg("Failed to load module catalogue")
		h.ring(msg, nil)
		return nil
	}

	for _, module := range catalogue.ModulesAt(msg.From()) {
		if module.Type != payload.ModuleCamera {
			continue
		}
		if _, err := h.Proxy(msg, module.AtSlave, routes.SlaveCameraGet, &payload.CameraPayload{
			CameraID:   module.Port,
			ModuleName: module.Name,
		}); err != nil {
			h.Logger().Warn().Err(err).Msg("Failed to request door camera picture")
			break
		}
		return nil
	}

	h.ring(msg, nil)
	return nil
}

func (h *CameraHandler) pictureTaken(reply *messaging.AddressedMessage, picture *payload.CameraPayload) error {
	original, ok := h.ResolveProxy(reply)
	if !ok {
		h.Logger().Debug().Str("message", reply.String()).Msg("Picture answers no open request")
		return nil
	}

	if routes.MasterDoorBellRing.Matches(original) {
		h.ring(original, picture)
		return nil
	}

	if picture == nil {
		ep, _ := reply.Payload().(*messaging.ErrorPayload)
		if ep == nil {
			ep = messaging.NewErrorPayload("camera failed")
		}
		_, err := h.Router().SendError(original, ep)
		return err
	}
	return h.Reply(original, routes.MasterCameraGetReply, picture)
}

// ring tells every device holding BELL_RANG about the ring
func (h *CameraHandler) ring(original *messaging.AddressedMessage, picture *payload.CameraPayload) {
	ring, _ := routes.MasterDoorBellRing.Payload(original)
	event := &payload.DoorBellPayload{ModuleName: ring.ModuleName, Camera: picture}

	sent, err := h.SendToAllWithPermission(routes.AppDoorRing, event, permission.BellRang, "")
	if err != nil {
		h.Logger().Error().Err(err).Msg("Failed to announce door bell")
		return
	}
	h.Logger().Debug().
		Int("recipients", len(sent)).
		Bool("picture", picture != nil).
		Msg("Door bell announced")
}
