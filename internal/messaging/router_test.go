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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smarthome/internal/naming"
)

type fakeTransport struct {
	mu        sync.Mutex
	written   []*AddressedMessage
	connected []naming.DeviceID
	writeErr  error
}

func (f *fakeTransport) Write(msg *AddressedMessage) *Future[struct{}] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msg)
	if f.writeErr != nil {
		return Failed[struct{}](f.writeErr)
	}
	return Succeeded(struct{}{})
}

func (f *fakeTransport) Connected(id naming.DeviceID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.connected {
		if c == id {
			return true
		}
	}
	return false
}

func (f *fakeTransport) ConnectedDevices() []naming.DeviceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]naming.DeviceID(nil), f.connected...)
}

func (f *fakeTransport) writes() []*AddressedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*AddressedMessage(nil), f.written...)
}

func newTestRouter(t *testing.T, own, master naming.DeviceID, tr Transport) *Router {
	t.Helper()
	return NewRouter(naming.NewStatic(own, master), newTestDispatcher(t), tr, WithRouterSequencer(NewSequencer()))
}

func awaitSend(t *testing.T, am *AddressedMessage) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := am.SendFuture().Await(ctx)
	return err
}

func TestRouterRole(t *testing.T) {
	assert.Equal(t, RoleMaster, newTestRouter(t, "master", "master", nil).Role())
	assert.Equal(t, RoleClient, newTestRouter(t, "app", "master", nil).Role())
}

func TestRouterLoopBack(t *testing.T) {
	tr := &fakeTransport{}
	r := newTestRouter(t, "app", "master", tr)

	got := make(chan *AddressedMessage, 1)
	r.Dispatcher().Register(Func(func(_ context.Context, msg *AddressedMessage) error {
		got <- msg
		return nil
	}), testLightSet)

	am, err := r.SendLocal(testLightSet, NewMessage(&lightState{On: true}))
	require.NoError(t, err)
	require.NoError(t, awaitSend(t, am))

	select {
	case msg := <-got:
		assert.Equal(t, naming.DeviceID("app"), msg.From())
		assert.Equal(t, naming.DeviceID("app"), msg.To())
	case <-time.After(time.Second):
		t.Fatal("loop-back message was not dispatched")
	}
	assert.Empty(t, tr.writes(), "loop-back never touches the transport")
}

func TestRouterClientDestinations(t *testing.T) {
	tr := &fakeTransport{connected: []naming.DeviceID{"master"}}
	r := newTestRouter(t, "app", "master", tr)

	t.Run("to master", func(t *testing.T) {
		am, err := r.SendToMaster(testLightSet, NewMessage(&lightState{}))
		require.NoError(t, err)
		require.NoError(t, awaitSend(t, am))
		require.Len(t, tr.writes(), 1)
	})

	t.Run("to another client", func(t *testing.T) {
		am, err := r.SendMessage("slave", testLightSet, NewMessage(&lightState{}))
		require.NoError(t, err)
		err = awaitSend(t, am)
		assert.ErrorIs(t, err, ErrInvalidDestination)
		assert.Equal(t, KindProgramming, KindOf(err))
		assert.Len(t, tr.writes(), 1, "refused messages are never written")
	})
}

func TestRouterMasterReachesEveryone(t *testing.T) {
	tr := &fakeTransport{connected: []naming.DeviceID{"app", "slave"}}
	r := newTestRouter(t, "master", "master", tr)

	am, err := r.SendMessage("slave", testLightSet, NewMessage(&lightState{}))
	require.NoError(t, err)
	require.NoError(t, awaitSend(t, am))
	require.Len(t, tr.writes(), 1)
	assert.Equal(t, naming.DeviceID("slave"), tr.writes()[0].To())
}

func TestRouterWriteFailure(t *testing.T) {
	tr := &fakeTransport{writeErr: ErrNotConnected}
	r := newTestRouter(t, "app", "master", tr)

	am, err := r.SendToMaster(testHolidayGet, NewMessage(Void{}))
	require.NoError(t, err)
	assert.ErrorIs(t, awaitSend(t, am), ErrNotConnected)
}

func TestRouterRejectsMismatchedPayload(t *testing.T) {
	tr := &fakeTransport{}
	r := newTestRouter(t, "app", "master", tr)

	msg := NewMessage(&doorState{})
	_, err := r.SendToMaster(testLightSet, msg)
	assert.ErrorIs(t, err, ErrRoutingMismatch)
	assert.False(t, msg.Sealed(), "a rejected message stays unaddressed")
	assert.Empty(t, tr.writes())
}

func TestRouterReplies(t *testing.T) {
	tr := &fakeTransport{connected: []naming.DeviceID{"app"}}
	r := newTestRouter(t, "master", "master", tr)

	t.Run("reply references request", func(t *testing.T) {
		req := addressed(t, testLightSet.Key(), &lightState{})

		reply, err := r.SendReply(req, testLightSetReply, NewMessage(&lightState{On: true}))
		require.NoError(t, err)
		assert.Equal(t, naming.DeviceID("app"), reply.To())
		assert.Equal(t, testLightSetReply.Key(), reply.RoutingKey())

		ref, ok := reply.ReferencesID()
		require.True(t, ok)
		assert.Equal(t, req.Seq(), ref)
	})

	t.Run("reply honours reply-to hint", func(t *testing.T) {
		msg := NewMessage(&lightState{})
		require.NoError(t, HeaderReplyToKey.Put(msg, "/app/light/update"))
		req, err := RestoreAddressed("app", "master", testLightSet.Key(), 4, msg)
		require.NoError(t, err)

		reply, err := r.SendReply(req, testLightSetReply, NewMessage(&lightState{}))
		require.NoError(t, err)
		assert.Equal(t, "/app/light/update", reply.RoutingKey())
	})

	t.Run("error reply", func(t *testing.T) {
		req := addressed(t, testLightSet.Key(), &lightState{})

		reply, err := r.SendError(req, NewErrorPayload("bulb %d broken", 3))
		require.NoError(t, err)
		assert.Equal(t, testLightSetError.Key(), reply.RoutingKey())

		ep, err := testLightSetError.Payload(reply)
		require.NoError(t, err)
		assert.Equal(t, CodeFailed, ep.Code)
		assert.Equal(t, "bulb 3 broken", ep.Message)
	})
}

func TestRouterBroadcast(t *testing.T) {
	t.Run("master", func(t *testing.T) {
		tr := &fakeTransport{connected: []naming.DeviceID{"app1", "app2", "slave1"}}
		r := newTestRouter(t, "master", "master", tr)

		sent, err := r.Broadcast(testLightSet, &lightState{On: true}, func(id naming.DeviceID) bool {
			return id != "slave1"
		})
		require.NoError(t, err)
		require.Len(t, sent, 2)
		assert.Equal(t, naming.DeviceID("app1"), sent[0].To())
		assert.Equal(t, naming.DeviceID("app2"), sent[1].To())
		assert.NotEqual(t, sent[0].Seq(), sent[1].Seq())
		assert.Len(t, tr.writes(), 2)
	})

	t.Run("client", func(t *testing.T) {
		r := newTestRouter(t, "app", "master", &fakeTransport{})
		_, err := r.Broadcast(testLightSet, &lightState{}, nil)
		assert.ErrorIs(t, err, ErrInvalidDestination)
	})
}
