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

package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lightState struct {
	On bool
}

type doorState struct {
	Open bool
}

var (
	testLightSet      = NewRoutingKey[*lightState](PrefixMaster + "/light/set")
	testLightSetReply = Reply[*lightState](testLightSet)
	testLightSetError = ErrorOf(testLightSet)
	testHolidayGet    = NewRoutingKey[Void](PrefixMaster + "/holiday/get")
)

func addressed(t *testing.T, key string, payload any) *AddressedMessage {
	t.Helper()
	am, err := RestoreAddressed("app", "master", key, 1, NewMessage(payload))
	require.NoError(t, err)
	return am
}

func TestRoutingKeyDerivation(t *testing.T) {
	assert.Equal(t, "/master/light/set/reply", testLightSetReply.Key())
	assert.Equal(t, "/master/light/set/error", testLightSetError.Key())
	assert.True(t, testLightSetReply.IsReply())
	assert.True(t, testLightSetError.IsError())
	assert.False(t, testLightSet.IsReply())

	assert.Equal(t, testLightSet.Key(), testLightSetReply.BaseKey())
	assert.Equal(t, testLightSet.Key(), testLightSetError.BaseKey())
	assert.Equal(t, "/master/light/set/error", ErrorKeyString("/master/light/set/reply"))
	assert.Equal(t, "/master/light/set/reply", ReplyKeyString("/master/light/set"))
}

func TestRoutingKeyMatches(t *testing.T) {
	tests := []struct {
		name    string
		key     AnyKey
		msgKey  string
		payload any
		want    bool
	}{
		{"same key and payload type", testLightSet, testLightSet.Key(), &lightState{On: true}, true},
		{"other payload type", testLightSet, testLightSet.Key(), &doorState{}, false},
		{"other key string", testLightSet, testLightSetReply.Key(), &lightState{}, false},
		{"nil payload on typed key", testLightSet, testLightSet.Key(), nil, false},
		{"void key without payload", testHolidayGet, testHolidayGet.Key(), nil, true},
		{"void key with void payload", testHolidayGet, testHolidayGet.Key(), Void{}, true},
		{"void key with payload", testHolidayGet, testHolidayGet.Key(), &lightState{}, false},
		{"error key with error payload", testLightSetError, testLightSetError.Key(), NewErrorPayload("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := addressed(t, tt.msgKey, tt.payload)
			switch k := tt.key.(type) {
			case RoutingKey[*lightState]:
				assert.Equal(t, tt.want, k.Matches(msg))
			case RoutingKey[Void]:
				assert.Equal(t, tt.want, k.Matches(msg))
			case RoutingKey[*ErrorPayload]:
				assert.Equal(t, tt.want, k.Matches(msg))
			default:
				t.Fatalf("unexpected key type %T", tt.key)
			}
		})
	}
}

func TestRoutingKeyPayload(t *testing.T) {
	msg := addressed(t, testLightSet.Key(), &lightState{On: true})

	state, err := testLightSet.Payload(msg)
	require.NoError(t, err)
	assert.True(t, state.On)

	_, err = testLightSetReply.Payload(msg)
	assert.ErrorIs(t, err, ErrRoutingMismatch)

	other := addressed(t, testLightSet.Key(), &doorState{})
	_, err = testLightSet.Payload(other)
	assert.ErrorIs(t, err, ErrRoutingMismatch)
	assert.Equal(t, KindProgramming, KindOf(err))
}

func TestCastPayloadVoid(t *testing.T) {
	_, ok := CastPayload[Void](nil)
	assert.True(t, ok)
	_, ok = CastPayload[*lightState](Void{})
	assert.False(t, ok, "void never casts to a payload type")
	_, ok = CastPayload[any](Void{})
	assert.True(t, ok, "any accepts every non-nil payload")
}
