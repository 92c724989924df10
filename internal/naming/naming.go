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

// Package naming resolves device identities for the messaging layer.
package naming

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DeviceID identifies a device (master, slave or app) on the network
type DeviceID string

// String returns the id as a plain string
func (d DeviceID) String() string {
	return string(d)
}

// IsZero reports whether the id is empty
func (d DeviceID) IsZero() bool {
	return d == ""
}

// NewDeviceID generates a fresh random device id with the given role prefix,
// e.g. "slave_3f2a...".
func NewDeviceID(prefix string) DeviceID {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if prefix == "" {
		return DeviceID(id)
	}
	return DeviceID(fmt.Sprintf("%s_%s", prefix, id))
}

// Identity answers the questions the router asks before sending
type Identity interface {
	OwnID() DeviceID
	MasterID() DeviceID
	IsMaster() bool
}

// Static is an Identity fixed at construction time
type Static struct {
	Own    DeviceID
	Master DeviceID
}

// NewStatic creates a static identity
func NewStatic(own, master DeviceID) *Static {
	return &Static{Own: own, Master: master}
}

// OwnID returns the local device id
func (s *Static) OwnID() DeviceID {
	return s.Own
}

// MasterID returns the master's device id
func (s *Static) MasterID() DeviceID {
	return s.Master
}

// IsMaster reports whether the local device is the master
func (s *Static) IsMaster() bool {
	return s.Own != "" && s.Own == s.Master
}
