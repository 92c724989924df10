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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	registry := NewPayloadRegistry()
	require.NoError(t, RegisterPayload[*lightState](registry, "light_state"))
	return NewCodec(registry)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	msg := NewMessage(&lightState{On: true})
	require.NoError(t, HeaderReferencesID.Put(msg, 12))
	require.NoError(t, HeaderReplyToKey.Put(msg, "/app/light/update"))
	am, err := msg.Address("slave", "master", testLightSetReply.Key(), WithSequencer(NewSequencer()))
	require.NoError(t, err)

	data, err := codec.Encode(am)
	require.NoError(t, err)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, am.From(), decoded.From())
	assert.Equal(t, am.To(), decoded.To())
	assert.Equal(t, am.Seq(), decoded.Seq())
	assert.True(t, decoded.Sealed())

	state, err := testLightSetReply.Payload(decoded)
	require.NoError(t, err)
	assert.True(t, state.On)

	ref, ok := decoded.ReferencesID()
	require.True(t, ok)
	assert.Equal(t, int64(12), ref)

	hint, _ := HeaderReplyToKey.Get(decoded.Message)
	assert.Equal(t, "/app/light/update", hint)

	sent, _ := HeaderTimestamp.Get(am.Message)
	received, ok := HeaderTimestamp.Get(decoded.Message)
	require.True(t, ok)
	assert.WithinDuration(t, sent, received, time.Millisecond)
}

func TestCodecVoidPayload(t *testing.T) {
	codec := newTestCodec(t)

	am := addressed(t, testHolidayGet.Key(), Void{})
	data, err := codec.Encode(am)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Empty(t, env.PayloadType)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Payload())
	assert.True(t, testHolidayGet.Matches(decoded))
}

func TestCodecErrors(t *testing.T) {
	codec := newTestCodec(t)

	t.Run("unregistered payload on encode", func(t *testing.T) {
		_, err := codec.Encode(addressed(t, "/master/door/get", &doorState{}))
		assert.ErrorIs(t, err, ErrUnknownPayloadType)
	})

	t.Run("unregistered payload on decode", func(t *testing.T) {
		data := []byte(`{"from":"app","to":"master","routing_key":"/master/door/get","seq":1,` +
			`"headers":{},"payload_type":"door_state","payload":{"Open":true}}`)
		_, err := codec.Decode(data)
		assert.ErrorIs(t, err, ErrUnknownPayloadType)
		assert.Equal(t, KindProtocol, KindOf(err))
	})

	t.Run("missing routing key", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{"from":"app","to":"master","seq":1}`))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := codec.Decode([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestPayloadRegistry(t *testing.T) {
	registry := NewPayloadRegistry()

	require.NoError(t, RegisterPayload[*lightState](registry, "light_state"))
	require.NoError(t, RegisterPayload[*lightState](registry, "light_state"), "same pair twice is fine")
	assert.Error(t, RegisterPayload[*doorState](registry, "light_state"))
	assert.Error(t, RegisterPayload[*lightState](registry, "other"))
	assert.Error(t, RegisterPayload[Void](registry, "void"))

	assert.Equal(t, []string{"error", "light_state"}, registry.Names())
	name, ok := registry.NameOf(&lightState{})
	require.True(t, ok)
	assert.Equal(t, "light_state", name)
}

func TestErrorPayloadFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"timeout", Classify(KindInfrastructure, "request", ErrTimeout), CodeTimeout},
		{"not connected", ErrNotConnected, CodeUnavailable},
		{"denied", ErrNoPermission, CodeNoPermission},
		{"mismatch", ErrRoutingMismatch, CodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorPayloadFrom(tt.err).Code)
		})
	}

	ep := NoPermissionPayload("switch_light")
	assert.Same(t, ep, ErrorPayloadFrom(ep))
	assert.ErrorIs(t, ep, ErrNoPermission)
}
