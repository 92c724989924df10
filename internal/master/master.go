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

// Package master holds the handlers run by the master device: the authority
// for permissions, slaves and modules, and the proxy between apps and the
// slaves that drive hardware.
package master

import (
	"fmt"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/routes"
)

// HolidayStore persists the holiday simulation switch
type HolidayStore interface {
	HolidaySimulation() (bool, error)
	SetHolidaySimulation(on bool) error
}

// SlaveStore persists registered slaves
type SlaveStore interface {
	AddSlave(slave payload.Slave, tokenHash string) error
	RemoveSlave(id naming.DeviceID) error
}

// ModuleStore persists modules and answers catalogue lookups
type ModuleStore interface {
	AddModule(m payload.Module) error
	RemoveModule(name string) error
	Module(name string) (payload.Module, error)
	Catalogue() (*payload.ModulesPayload, error)
}

// PermissionStore grants and revokes permissions
type PermissionStore interface {
	handler.PermissionStore
	Grant(device naming.DeviceID, perm permission.Permission, module string) error
	Revoke(device naming.DeviceID, perm permission.Permission, module string) error
}

// Store is everything the master keeps on disk
type Store interface {
	HolidayStore
	SlaveStore
	ModuleStore
	PermissionStore
}

// TokenHasher hashes slave registration tokens before they are stored
type TokenHasher interface {
	Hash(token []byte) (string, error)
}

// Handlers is the set of master handlers attached to one router
type Handlers struct {
	Holiday     *HolidayHandler
	Slaves      *SlaveHandler
	Modules     *ModuleHandler
	Light       *LightHandler
	Camera      *CameraHandler
	Door        *DoorHandler
	Permissions *PermissionHandler
	Health      *HealthHandler
	Broadcaster *ModuleBroadcaster
}

// Register creates every master handler and attaches it to router
func Register(router *messaging.Router, store Store, hasher TokenHasher, opts ...handler.ProxyOption) (*Handlers, error) {
	if !router.Identity().IsMaster() {
		return nil, fmt.Errorf("master handlers need the master identity, got %s", router.OwnID())
	}

	gate := handler.NewPermissionGate(router.Identity(), store)
	broadcaster := NewModuleBroadcaster(router, store)

	return &Handlers{
		Holiday:     NewHolidayHandler(router, gate, store),
		Slaves:      NewSlaveHandler(router, gate, store, hasher, broadcaster),
		Modules:     NewModuleHandler(router, gate, store, broadcaster),
		Light:       NewLightHandler(router, gate, store, opts...),
		Camera:      NewCameraHandler(router, gate, store, opts...),
		Door:        NewDoorHandler(router, gate, store, store, opts...),
		Permissions: NewPermissionHandler(router, gate, store),
		Health:      NewHealthHandler(router, gate),
		Broadcaster: broadcaster,
	}, nil
}

// notify sends a notification of type perm to every device holding perm
func notify(b *handler.MasterBase, perm permission.Permission, args ...string) {
	sent, err := b.SendToAllWithPermission(routes.AppNotificationReceive, &payload.NotificationPayload{Type: perm, Args: args}, perm, "")
	if err != nil {
		b.Logger().Error().Err(err).Str("notification", perm.String()).Msg("Failed to send notification")
		return
	}
	b.Logger().Debug().Str("notification", perm.String()).Int("recipients", len(sent)).Msg("Notification sent")
}
