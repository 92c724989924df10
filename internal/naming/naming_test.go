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

package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDeviceID(t *testing.T) {
	a := NewDeviceID("slave")
	b := NewDeviceID("slave")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a.String(), "slave_"))
	assert.NotContains(t, strings.TrimPrefix(a.String(), "slave_"), "-")

	assert.False(t, strings.Contains(NewDeviceID("").String(), "_"))
	assert.True(t, DeviceID("").IsZero())
}

func TestStaticIdentity(t *testing.T) {
	assert.True(t, NewStatic("master", "master").IsMaster())
	assert.False(t, NewStatic("app1", "master").IsMaster())
	assert.False(t, NewStatic("", "").IsMaster(), "an unconfigured device is never the master")

	id := NewStatic("app1", "master")
	assert.Equal(t, DeviceID("app1"), id.OwnID())
	assert.Equal(t, DeviceID("master"), id.MasterID())
}
