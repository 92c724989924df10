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

package handler

import (
	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/naming"
	"smarthome/internal/permission"
)

// PermissionStore answers permission queries, usually backed by the database
type PermissionStore interface {
	HasPermission(device naming.DeviceID, perm permission.Permission, module string) (bool, error)
}

// PermissionGate is consulted by master handlers before honouring a request
type PermissionGate struct {
	identity naming.Identity
	store    PermissionStore
	logger   zerolog.Logger
}

// NewPermissionGate creates a gate over store
func NewPermissionGate(identity naming.Identity, store PermissionStore) *PermissionGate {
	return &PermissionGate{
		identity: identity,
		store:    store,
		logger:   logger.GetLogger("handler.permission"),
	}
}

// HasPermission reports whether device holds perm, for module when the
// permission is module bound. The master itself is always allowed. A store
// failure denies.
func (g *PermissionGate) HasPermission(device naming.DeviceID, perm permission.Permission, module string) bool {
	if device == g.identity.MasterID() {
		return true
	}
	if g.store == nil {
		return false
	}

	ok, err := g.store.HasPermission(device, perm, module)
	if err != nil {
		g.logger.Error().
			Err(err).
			Str("device_id", device.String()).
			Str("permission", perm.String()).
			Str("module", module).
			Msg("Permission lookup failed")
		return false
	}
	return ok
}
