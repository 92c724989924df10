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

// Package routes is the routing-key table shared by every device role
package routes

import (
	m "smarthome/internal/messaging"
	p "smarthome/internal/payload"
)

// User configuration
var (
	MasterPermissionSet      = m.NewRoutingKey[*p.SetPermissionPayload](m.PrefixMaster + "/permission/set")
	MasterPermissionSetReply = m.Reply[m.Void](MasterPermissionSet)
	MasterPermissionSetError = m.ErrorOf(MasterPermissionSet)
)

// Modules
var (
	MasterModuleAdd         = m.NewRoutingKey[*p.ModifyModulePayload](m.PrefixMaster + "/module/add")
	MasterModuleAddReply    = m.Reply[m.Void](MasterModuleAdd)
	MasterModuleAddError    = m.ErrorOf(MasterModuleAdd)
	MasterModuleRemove      = m.NewRoutingKey[*p.ModifyModulePayload](m.PrefixMaster + "/module/remove")
	MasterModuleRemoveReply = m.Reply[m.Void](MasterModuleRemove)
	MasterModuleRemoveError = m.ErrorOf(MasterModuleRemove)
)

// Slave management
var (
	MasterSlaveRegister      = m.NewRoutingKey[*p.RegisterSlavePayload](m.PrefixMaster + "/slave/register")
	MasterSlaveRegisterReply = m.Reply[m.Void](MasterSlaveRegister)
	MasterSlaveRegisterError = m.ErrorOf(MasterSlaveRegister)
	MasterSlaveDelete        = m.NewRoutingKey[*p.DeleteDevicePayload](m.PrefixMaster + "/slave/delete")
	MasterSlaveDeleteReply   = m.Reply[m.Void](MasterSlaveDelete)
	MasterSlaveDeleteError   = m.ErrorOf(MasterSlaveDelete)
)

// Light
var (
	MasterLightGet      = m.NewRoutingKey[*p.LightPayload](m.PrefixMaster + "/light/get")
	MasterLightGetReply = m.Reply[*p.LightPayload](MasterLightGet)
	MasterLightGetError = m.ErrorOf(MasterLightGet)
	MasterLightSet      = m.NewRoutingKey[*p.LightPayload](m.PrefixMaster + "/light/set")
	MasterLightSetReply = m.Reply[*p.LightPayload](MasterLightSet)
	MasterLightSetError = m.ErrorOf(MasterLightSet)
	SlaveLightGet       = m.NewRoutingKey[*p.LightPayload](m.PrefixSlave + "/light/get")
	SlaveLightGetReply  = m.Reply[*p.LightPayload](SlaveLightGet)
	SlaveLightGetError  = m.ErrorOf(SlaveLightGet)
	SlaveLightSet       = m.NewRoutingKey[*p.LightPayload](m.PrefixSlave + "/light/set")
	SlaveLightSetReply  = m.Reply[*p.LightPayload](SlaveLightSet)
	SlaveLightSetError  = m.ErrorOf(SlaveLightSet)
	AppLightUpdate      = m.NewRoutingKey[*p.LightPayload](m.PrefixApp + "/light/update")
)

// Door
var (
	MasterDoorBellRing     = m.NewRoutingKey[*p.DoorBellPayload](m.PrefixMaster + "/doorbell/ring")
	MasterDoorStatusUpdate = m.NewRoutingKey[*p.DoorStatusPayload](m.PrefixMaster + "/door/update")
	MasterDoorUnlatch      = m.NewRoutingKey[*p.DoorPayload](m.PrefixMaster + "/door/unlatch")
	MasterDoorUnlatchReply = m.Reply[m.Void](MasterDoorUnlatch)
	MasterDoorUnlatchError = m.ErrorOf(MasterDoorUnlatch)
	MasterDoorBlock        = m.NewRoutingKey[*p.DoorBlockPayload](m.PrefixMaster + "/door/block")
	MasterDoorBlockReply   = m.Reply[*p.DoorBlockPayload](MasterDoorBlock)
	MasterDoorBlockError   = m.ErrorOf(MasterDoorBlock)
	MasterDoorGet          = m.NewRoutingKey[*p.DoorPayload](m.PrefixMaster + "/door/get")
	MasterDoorGetReply     = m.Reply[*p.DoorStatusPayload](MasterDoorGet)
	MasterDoorGetError     = m.ErrorOf(MasterDoorGet)
	SlaveDoorUnlatch       = m.NewRoutingKey[*p.DoorPayload](m.PrefixSlave + "/door/unlatch")
	SlaveDoorUnlatchReply  = m.Reply[*p.DoorPayload](SlaveDoorUnlatch)
	SlaveDoorUnlatchError  = m.ErrorOf(SlaveDoorUnlatch)
	AppDoorStatusUpdate    = m.NewRoutingKey[*p.DoorStatusPayload](m.PrefixApp + "/door/update")
	AppDoorRing            = m.NewRoutingKey[*p.DoorBellPayload](m.PrefixApp + "/door/ring")
)

// Camera
var (
	MasterCameraGet      = m.NewRoutingKey[*p.CameraPayload](m.PrefixMaster + "/camera/get")
	MasterCameraGetReply = m.Reply[*p.CameraPayload](MasterCameraGet)
	MasterCameraGetError = m.ErrorOf(MasterCameraGet)
	SlaveCameraGet       = m.NewRoutingKey[*p.CameraPayload](m.PrefixSlave + "/camera/get")
	SlaveCameraGetReply  = m.Reply[*p.CameraPayload](SlaveCameraGet)
	SlaveCameraGetError  = m.ErrorOf(SlaveCameraGet)
	AppCameraBroadcast   = m.NewRoutingKey[*p.CameraPayload](m.PrefixApp + "/camera/broadcast")
)

// Notifications
var AppNotificationReceive = m.NewRoutingKey[*p.NotificationPayload](m.PrefixApp + "/notification/receive")

// Holiday simulation
var (
	MasterHolidaySet      = m.NewRoutingKey[*p.HolidaySimulationPayload](m.PrefixMaster + "/holiday/set")
	MasterHolidaySetReply = m.Reply[*p.HolidaySimulationPayload](MasterHolidaySet)
	MasterHolidaySetError = m.ErrorOf(MasterHolidaySet)
	MasterHolidayGet      = m.NewRoutingKey[m.Void](m.PrefixMaster + "/holiday/get")
	MasterHolidayGetReply = m.Reply[*p.HolidaySimulationPayload](MasterHolidayGet)
	MasterHolidayGetError = m.ErrorOf(MasterHolidayGet)
)

// System
var (
	MasterSystemHealthCheck = m.NewRoutingKey[*p.SystemHealthPayload](m.PrefixMaster + "/systemhealth/check")
	MasterDeviceConnected   = m.NewRoutingKey[*p.DeviceConnectedPayload](m.PrefixMaster + "/device/connected")
	GlobalModulesUpdate     = m.NewRoutingKey[*p.ModulesPayload](m.PrefixGlobal + "/modules/update")
)
