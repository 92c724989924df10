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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smarthome/internal/messaging"
	"smarthome/internal/naming"
	"smarthome/internal/permission"
)

func TestProxyTable(t *testing.T) {
	table := NewProxyTable()

	original := request(t, "app1", "master", lampSet.Key(), 5, &lamp{})
	forwarded := request(t, "master", "slave", slaveLampSet.Key(), 9, &lamp{})
	table.RecordProxy(original, forwarded)
	assert.Equal(t, 1, table.Len())

	got, ok := table.MessageOnBehalfOf(9)
	require.True(t, ok)
	assert.Same(t, original, got)

	_, ok = table.MessageOnBehalfOf(9)
	assert.False(t, ok, "an original is handed out once")
	assert.Equal(t, 0, table.Len())

	_, ok = table.MessageOnBehalfOf(5)
	assert.False(t, ok, "lookups use the forwarded sequence number")
}

func TestProxyTableKeysBySender(t *testing.T) {
	table := NewProxyTable()

	fromApp1 := request(t, "app1", "master", lampSet.Key(), 5, &lamp{})
	fromApp2 := request(t, "app2", "master", lampSet.Key(), 5, &lamp{})
	table.RecordProxy(fromApp1, request(t, "master", "slave", slaveLampSet.Key(), 10, &lamp{}))
	table.RecordProxy(fromApp2, request(t, "master", "slave", slaveLampSet.Key(), 11, &lamp{}))
	assert.Equal(t, 2, table.Len())

	got, ok := table.MessageOnBehalfOf(11)
	require.True(t, ok)
	assert.Equal(t, naming.DeviceID("app2"), got.From())

	got, ok = table.MessageOnBehalfOf(10)
	require.True(t, ok)
	assert.Equal(t, naming.DeviceID("app1"), got.From())
}

func TestProxyTableExpiry(t *testing.T) {
	expired := make(chan *messaging.AddressedMessage, 1)
	table := NewProxyTable(
		WithProxyTimeout(30*time.Millisecond),
		WithUnansweredCallback(func(msg *messaging.AddressedMessage, err error) {
			assert.ErrorIs(t, err, messaging.ErrTimeout)
			expired <- msg
		}),
	)

	original := request(t, "app1", "master", lampSet.Key(), 5, &lamp{})
	table.RecordProxy(original, request(t, "master", "slave", slaveLampSet.Key(), 9, &lamp{}))

	select {
	case msg := <-expired:
		assert.Same(t, original, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback did not run")
	}

	_, ok := table.MessageOnBehalfOf(9)
	assert.False(t, ok, "an expired original cannot be answered")
}

func TestProxyTableTakenEntryDoesNotExpire(t *testing.T) {
	expired := make(chan *messaging.AddressedMessage, 1)
	table := NewProxyTable(
		WithProxyTimeout(30*time.Millisecond),
		WithUnansweredCallback(func(msg *messaging.AddressedMessage, _ error) { expired <- msg }),
	)
	table.RecordProxy(request(t, "app1", "master", lampSet.Key(), 5, &lamp{}),
		request(t, "master", "slave", slaveLampSet.Key(), 9, &lamp{}))

	_, ok := table.MessageOnBehalfOf(9)
	require.True(t, ok)

	select {
	case <-expired:
		t.Fatal("answered request expired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProxyTableAbandon(t *testing.T) {
	var abandoned []*messaging.AddressedMessage
	sendErr := errors.New("socket gone")
	table := NewProxyTable(WithUnansweredCallback(func(msg *messaging.AddressedMessage, err error) {
		assert.ErrorIs(t, err, sendErr)
		abandoned = append(abandoned, msg)
	}))

	original := request(t, "app1", "master", lampSet.Key(), 5, &lamp{})
	table.RecordProxy(original, request(t, "master", "slave", slaveLampSet.Key(), 9, &lamp{}))

	got, ok := table.Abandon(9, sendErr)
	require.True(t, ok)
	assert.Same(t, original, got)
	require.Len(t, abandoned, 1)
	assert.Zero(t, table.Len())

	_, ok = table.Abandon(9, sendErr)
	assert.False(t, ok, "an original is given up once")
	_, ok = table.MessageOnBehalfOf(9)
	assert.False(t, ok)
	assert.Len(t, abandoned, 1)
}

type stubPermissions struct {
	grants map[naming.DeviceID][]permission.Permission
	err    error
	calls  int
}

func (s *stubPermissions) HasPermission(device naming.DeviceID, perm permission.Permission, _ string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	for _, p := range s.grants[device] {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

func TestPermissionGate(t *testing.T) {
	store := &stubPermissions{grants: map[naming.DeviceID][]permission.Permission{
		"app1": {permission.RequestLightStatus},
	}}
	gate := NewPermissionGate(naming.NewStatic("master", "master"), store)

	assert.True(t, gate.HasPermission("master", permission.AddOdroid, ""))
	assert.Equal(t, 0, store.calls, "the master is never looked up")

	assert.True(t, gate.HasPermission("app1", permission.RequestLightStatus, ""))
	assert.False(t, gate.HasPermission("app1", permission.AddOdroid, ""))
	assert.False(t, gate.HasPermission("app2", permission.RequestLightStatus, ""))

	store.err = errors.New("database locked")
	assert.False(t, gate.HasPermission("app1", permission.RequestLightStatus, ""), "a failing store denies")

	assert.False(t, NewPermissionGate(naming.NewStatic("master", "master"), nil).HasPermission("app1", permission.RequestLightStatus, ""))
}

func TestMasterBaseProxyRoundTrip(t *testing.T) {
	tr := &captureTransport{connected: []naming.DeviceID{"app1", "slave"}}
	router := newRouter(t, "master", "master", tr)
	base := NewMasterBase(router, "lamp", NewPermissionGate(router.Identity(), &stubPermissions{}))

	original := request(t, "app1", "master", lampSet.Key(), 5, &lamp{On: true})
	forwarded, err := base.Proxy(original, "slave", slaveLampSet, &lamp{On: true})
	require.NoError(t, err)
	assert.Equal(t, naming.DeviceID("slave"), tr.last(t).To())

	slaveReply := reply(t, "slave", "master", messaging.ReplyKeyString(slaveLampSet.Key()), 2, forwarded.Seq(), &lamp{On: true})
	answered, err := base.ForwardReply(slaveReply, lampSetReply, &lamp{On: true})
	require.NoError(t, err)
	assert.Same(t, original, answered)

	sent := tr.last(t)
	assert.Equal(t, naming.DeviceID("app1"), sent.To())
	assert.Equal(t, lampSetReply.Key(), sent.RoutingKey())
	ref, _ := sent.ReferencesID()
	assert.Equal(t, int64(5), ref)

	_, err = base.ForwardReply(slaveReply, lampSetReply, &lamp{})
	assert.ErrorIs(t, err, messaging.ErrUnmatchedResponse)
}

func TestMasterBaseForwardsSlaveError(t *testing.T) {
	tr := &captureTransport{connected: []naming.DeviceID{"app1", "slave"}}
	router := newRouter(t, "master", "master", tr)
	base := NewMasterBase(router, "lamp", NewPermissionGate(router.Identity(), nil))

	original := request(t, "app1", "master", lampSet.Key(), 5, &lamp{})
	forwarded, err := base.Proxy(original, "slave", slaveLampSet, &lamp{})
	require.NoError(t, err)

	slaveErr := reply(t, "slave", "master", messaging.ErrorKeyString(slaveLampSet.Key()), 2, forwarded.Seq(),
		messaging.NewErrorPayload("relay stuck"))
	_, err = base.ForwardReply(slaveErr, lampSetReply, nil)
	require.NoError(t, err)

	sent := tr.last(t)
	assert.Equal(t, lampSetError.Key(), sent.RoutingKey())
	ep, err := lampSetError.Payload(sent)
	require.NoError(t, err)
	assert.Equal(t, "relay stuck", ep.Message)
}

func TestMasterBaseFailedForward(t *testing.T) {
	tr := &captureTransport{connected: []naming.DeviceID{"app1"}}
	router := newRouter(t, "master", "master", tr)
	base := NewMasterBase(router, "lamp", NewPermissionGate(router.Identity(), nil))

	tr.fail = messaging.ErrNotConnected
	original := request(t, "app1", "master", lampSet.Key(), 5, &lamp{})
	_, err := base.Proxy(original, "slave", slaveLampSet, &lamp{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return tr.count() == 2 }, time.Second, 5*time.Millisecond)
	sent := tr.last(t)
	assert.Equal(t, naming.DeviceID("app1"), sent.To())
	assert.Equal(t, lampSetError.Key(), sent.RoutingKey())
	assert.Equal(t, 0, base.Proxies().Len())
}
