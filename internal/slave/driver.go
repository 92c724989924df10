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

package slave

import (
	"fmt"
	"sync"
)

// LightDriver switches the light attached to a port
type LightDriver interface {
	Light(port int) (bool, error)
	SetLight(port int, on bool) error
}

// CameraDriver takes pictures with the camera at an index
type CameraDriver interface {
	Picture(camera int) ([]byte, error)
}

// DoorDriver opens the door latch at a port
type DoorDriver interface {
	Unlatch(port int) error
}

// MemoryLights is a LightDriver keeping light state in memory
type MemoryLights struct {
	mutex  sync.RWMutex
	lights map[int]bool
}

func NewMemoryLights() *MemoryLights {
	return &MemoryLights{lights: make(map[int]bool)}
}

func (l *MemoryLights) Light(port int) (bool, error) {
	if port < 0 {
		return false, fmt.Errorf("invalid light port %d", port)
	}
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.lights[port], nil
}

func (l *MemoryLights) SetLight(port int, on bool) error {
	if port < 0 {
		return fmt.Errorf("invalid light port %d", port)
	}
	l.mutex.Lock()
	l.lights[port] = on
	l.mutex.Unlock()
	return nil
}

// StaticCamera returns the same picture for every camera
type StaticCamera struct {
	picture []byte
}

func NewStaticCamera(picture []byte) *StaticCamera {
	return &StaticCamera{picture: picture}
}

func (c *StaticCamera) Picture(camera int) ([]byte, error) {
	if camera < 0 {
		return nil, fmt.Errorf("invalid camera index %d", camera)
	}
	out := make([]byte, len(c.picture))
	copy(out, c.picture)
	return out, nil
}

// MemoryDoors is a DoorDriver that counts unlatches per port
type MemoryDoors struct {
	mutex     sync.Mutex
	unlatched map[int]int
}

func NewMemoryDoors() *MemoryDoors {
	return &MemoryDoors{unlatched: make(map[int]int)}
}

func (d *MemoryDoors) Unlatch(port int) error {
	if port < 0 {
		return fmt.Errorf("invalid door port %d", port)
	}
	d.mutex.Lock()
	d.unlatched[port]++
	d.mutex.Unlock()
	return nil
}

// Unlatched returns how often the door at port was unlatched
func (d *MemoryDoors) Unlatched(port int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.unlatched[port]
}
