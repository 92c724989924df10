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

// Package app holds the handlers of user devices. Every request goes to the
// master and returns a future that settles with the master's reply.
package app

import (
	"fmt"
	"sync"

	"smarthome/internal/handler"
	"smarthome/internal/messaging"
)

// Handlers is the set of app handlers attached to one router
type Handlers struct {
	Holiday       *HolidayHandler
	Light         *LightHandler
	Camera        *CameraHandler
	Door          *DoorHandler
	Slaves        *SlaveHandler
	Modules       *ModuleHandler
	Permissions   *PermissionHandler
	Notifications *NotificationHandler
}

// Register creates every app handler and attaches it to router
func Register(router *messaging.Router, opts ...handler.TrackerOption) (*Handlers, error) {
	if router.Identity().IsMaster() {
		return nil, fmt.Errorf("app handlers cannot run on the master")
	}
	return &Handlers{
		Holiday:       NewHolidayHandler(router, opts...),
		Light:         NewLightHandler(router, opts...),
		Camera:        NewCameraHandler(router, opts...),
		Door:          NewDoorHandler(router, opts...),
		Slaves:        NewSlaveHandler(router, opts...),
		Modules:       NewModuleHandler(router, opts...),
		Permissions:   NewPermissionHandler(router, opts...),
		Notifications: NewNotificationHandler(router),
	}, nil
}

// Close fails every request still waiting for the master
func (h *Handlers) Close() {
	for _, b := range []*handler.AppBase{
		h.Holiday.AppBase, h.Light.AppBase, h.Camera.AppBase, h.Door.AppBase,
		h.Slaves.AppBase, h.Modules.AppBase, h.Permissions.AppBase,
	} {
		b.Tracker().Purge(messaging.ErrTransportClosed)
	}
}

// settle resolves msg against b's pending requests
func settle(b *handler.AppBase, msg *messaging.AddressedMessage) error {
	return b.Tracker().HandleResponse(msg)
}

// listeners is a set of callbacks for unsolicited messages
type listeners[T any] struct {
	mutex sync.RWMutex
	fns   []func(T)
}

func (l *listeners[T]) add(fn func(T)) {
	l.mutex.Lock()
	l.fns = append(l.fns, fn)
	l.mutex.Unlock()
}

func (l *listeners[T]) emit(v T) {
	l.mutex.RLock()
	fns := l.fns
	l.mutex.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}
