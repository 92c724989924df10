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

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

// HolidayHandler switches and reads the holiday simulation
type HolidayHandler struct {
	*handler.AppBase
}

func NewHolidayHandler(router *messaging.Router, opts ...handler.TrackerOption) *HolidayHandler {
	h := &HolidayHandler{AppBase: handler.NewAppBase(router, "app_holiday", opts...)}
	h.Attach(h,
		routes.MasterHolidaySetReply, routes.MasterHolidaySetError,
		routes.MasterHolidayGetReply, routes.MasterHolidayGetError,
	)
	return h
}

func (h *HolidayHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	return settle(h.AppBase, msg)
}

// Set switches the holiday simulation on or off
func (h *HolidayHandler) Set(on bool) *messaging.Future[*payload.HolidaySimulationPayload] {
	return handler.Request[*payload.HolidaySimulationPayload](h.AppBase, routes.MasterHolidaySet,
		&payload.HolidaySimulationPayload{On: on})
}

// Get reads the holiday simulation state
func (h *HolidayHandler) Get() *messaging.Future[*payload.HolidaySimulationPayload] {
	return handler.Request[*payload.HolidaySimulationPayload](h.AppBase, routes.MasterHolidayGet, messaging.Void{})
}

// SlaveHandler registers and deletes slaves
type SlaveHandler struct {
	*handler.AppBase
}

func NewSlaveHandler(router *messaging.Router, opts ...handler.TrackerOption) *SlaveHandler {
	h := &SlaveHandler{AppBase: handler.NewAppBase(router, "app_slaves", opts...)}
	h.Attach(h,
		routes.MasterSlaveRegisterReply, routes.MasterSlaveRegisterError,
		routes.MasterSlaveDeleteReply, routes.MasterSlaveDeleteError,
	)
	return h
}

func (h *SlaveHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	return settle(h.AppBase, msg)
}

// Register asks the master to accept a slave presenting token
func (h *SlaveHandler) Register(id naming.DeviceID, name string, token []byte) *messaging.Future[messaging.Void] {
	return handler.Request[messaging.Void](h.AppBase, routes.MasterSlaveRegister,
		&payload.RegisterSlavePayload{Name: name, SlaveID: id, Token: token})
}

// Delete asks the master to forget a slave and its modules
func (h *SlaveHandler) Delete(id naming.DeviceID) *messaging.Future[messaging.Void] {
	return handler.Request[messaging.Void](h.AppBase, routes.MasterSlaveDelete,
		&payload.DeleteDevicePayload{Device: id})
}

// PermissionHandler grants and revokes permissions of other users
type PermissionHandler struct {
	*handler.AppBase
}

func NewPermissionHandler(router *messaging.Router, opts ...handler.TrackerOption) *PermissionHandler {
	h := &PermissionHandler{AppBase: handler.NewAppBase(router, "app_permissions", opts...)}
	h.Attach(h, routes.MasterPermissionSetReply, routes.MasterPermissionSetError)
	return h
}

func (h *PermissionHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	return settle(h.AppBase, msg)
}

// Grant gives user perm, scoped to module for module bound permissions
func (h *PermissionHandler) Grant(user naming.DeviceID, perm permission.Permission, module string) *messaging.Future[messaging.Void] {
	return h.set(user, perm, module, payload.Grant)
}

// Revoke takes perm away from user
func (h *PermissionHandler) Revoke(user naming.DeviceID, perm permission.Permission, module string) *messaging.Future[messaging.Void] {
	return h.set(user, perm, module, payload.Revoke)
}

func (h *PermissionHandler) set(user naming.DeviceID, perm permission.Permission, module string, action payload.PermissionAction) *messaging.Future[messaging.Void] {
	return handler.Request[messaging.Void](h.AppBase, routes.MasterPermissionSet, &payload.SetPermissionPayload{
		User:       user,
		Permission: perm,
		ModuleName: module,
		Action:     action,
	})
}

// CameraHandler requests pictures
type CameraHandler struct {
	*handler.AppBase
}

func NewCameraHandler(router *messaging.Router, opts ...handler.TrackerOption) *CameraHandler {
	h := &CameraHandler{AppBase: handler.NewAppBase(router, "app_camera", opts...)}
	h.Attach(h, routes.MasterCameraGetReply, routes.MasterCameraGetError)
	return h
}

func (h *CameraHandler) Handle(_ context.Context, msg *messaging.AddressedMessage) error {
	return settle(h.AppBase, msg)
}

// Picture asks the camera module for a picture
func (h *CameraHandler) Picture(moduleName string) *messaging.Future[*payload.CameraPayload] {
	return handler.Request[*payload.CameraPayload](h.AppBase, routes.MasterCameraGet,
		&payload.CameraPayload{ModuleName: moduleName})
}
