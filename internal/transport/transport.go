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

// Package transport defines what a device needs from the wire connecting it
// to the rest of the installation.
package transport

import (
	"context"

	"smarthome/internal/messaging"
	"smarthome/internal/naming"
)

// Transport moves addressed messages between devices. The master reaches
// every connected device; any other device reaches the master only.
type Transport interface {
	messaging.Transport

	// SetInbound sets the sink for messages addressed to this device
	SetInbound(fn func(*messaging.AddressedMessage))
	// OnDeviceConnected registers fn to be told when a device appears
	OnDeviceConnected(fn func(naming.DeviceID))

	Start(ctx context.Context) error
	Stop() error
}
