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

// Package payload defines the typed bodies carried by messages
package payload

import (
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/permission"
)

// ModuleType is the kind of hardware a module drives
type ModuleType string

const (
	ModuleLight    ModuleType = "light"
	ModuleCamera   ModuleType = "camera"
	ModuleDoorBell ModuleType = "doorbell"
	ModuleDoor     ModuleType = "door"
	ModuleSensor   ModuleType = "sensor"
)

// Module is a piece of hardware attached to a slave
type Module struct {
	Name    string          `json:"name"`
	Type    ModuleType      `json:"type"`
	AtSlave naming.DeviceID `json:"at_slave"`
	// Port is the driver address on the slave (GPIO pin, camera index, ...)
	Port int `json:"port"`
}

// Slave is a registered field controller
type Slave struct {
	ID   naming.DeviceID `json:"id"`
	Name string          `json:"name"`
}

type LightPayload struct {
	Module Module `json:"module"`
	On     bool   `json:"on"`
}

type CameraPayload struct {
	CameraID   int    `json:"camera_id"`
	ModuleName string `json:"module_name"`
	Picture    []byte `json:"picture,omitempty"`
}

type DoorBellPayload struct {
	ModuleName string         `json:"module_name"`
	Camera     *CameraPayload `json:"camera,omitempty"`
}

type DoorPayload struct {
	ModuleName string `json:"module_name"`
}

type DoorStatusPayload struct {
	ModuleName string `json:"module_name"`
	Open       bool   `json:"open"`
	Blocked    bool   `json:"blocked"`
}

type DoorBlockPayload struct {
	ModuleName string `json:"module_name"`
	Block      bool   `json:"block"`
}

type HolidaySimulationPayload struct {
	On bool `json:"on"`
}

// RegisterSlavePayload asks the master to accept a new slave. Token is the
// passive registration token the slave will present on first connect.
type RegisterSlavePayload struct {
	Name    string          `json:"name"`
	SlaveID naming.DeviceID `json:"slave_id"`
	Token   []byte          `json:"token,omitempty"`
}

type DeleteDevicePayload struct {
	Device naming.DeviceID `json:"device"`
}

type ModifyModulePayload struct {
	Module Module `json:"module"`
}

// ModulesPayload is the full module catalogue pushed to every device
type ModulesPayload struct {
	Slaves  []Slave  `json:"slaves"`
	Modules []Module `json:"modules"`
}

// ModulesAt returns the modules attached to slave
func (p *ModulesPayload) ModulesAt(slave naming.DeviceID) []Module {
	var out []Module
	for _, m := range p.Modules {
		if m.AtSlave == slave {
			out = append(out, m)
		}
	}
	return out
}

// Module looks up a module by name
func (p *ModulesPayload) Module(name string) (Module, bool) {
	for _, m := range p.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// PermissionAction is grant or revoke
type PermissionAction string

const (
	Grant  PermissionAction = "grant"
	Revoke PermissionAction = "revoke"
)

type SetPermissionPayload struct {
	User       naming.DeviceID       `json:"user"`
	Permission permission.Permission `json:"permission"`
	ModuleName string                `json:"module_name,omitempty"`
	Action     PermissionAction      `json:"action"`
}

type NotificationPayload struct {
	Type permission.Permission `json:"type"`
	Args []string              `json:"args,omitempty"`
}

type DeviceConnectedPayload struct {
	Device naming.DeviceID `json:"device"`
}

type SystemHealthPayload struct {
	Module  Module `json:"module"`
	Failure bool   `json:"failure"`
}

// Register adds every payload of this package to r
func Register(r *messaging.PayloadRegistry) {
	messaging.MustRegisterPayload[*LightPayload](r, "light")
	messaging.MustRegisterPayload[*CameraPayload](r, "camera")
	messaging.MustRegisterPayload[*DoorBellPayload](r, "doorbell")
	messaging.MustRegisterPayload[*DoorPayload](r, "door")
	messaging.MustRegisterPayload[*DoorStatusPayload](r, "door_status")
	messaging.MustRegisterPayload[*DoorBlockPayload](r, "door_block")
	messaging.MustRegisterPayload[*HolidaySimulationPayload](r, "holiday_simulation")
	messaging.MustRegisterPayload[*RegisterSlavePayload](r, "register_slave")
	messaging.MustRegisterPayload[*DeleteDevicePayload](r, "delete_device")
	messaging.MustRegisterPayload[*ModifyModulePayload](r, "modify_module")
	messaging.MustRegisterPayload[*ModulesPayload](r, "modules")
	messaging.MustRegisterPayload[*SetPermissionPayload](r, "set_permission")
	messaging.MustRegisterPayload[*NotificationPayload](r, "notification")
	messaging.MustRegisterPayload[*DeviceConnectedPayload](r, "device_connected")
	messaging.MustRegisterPayload[*SystemHealthPayload](r, "system_health")
}

func init() {
	Register(messaging.DefaultPayloads)
}
