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

// Package zmq carries addressed messages over ZeroMQ. The master binds a
// ROUTER socket; slaves and apps connect DEALER sockets whose identity is
// their device id.
package zmq

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"syscall"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/messaging"
	"smarthome/internal/metrics"
	"smarthome/internal/naming"
	"smarthome/internal/transport"
)

var _ transport.Transport = (*Transport)(nil)

const (
	DefaultHeartbeat  = 5 * time.Second
	heartbeatLiveness = 3
	outboxSize        = 1024
)

type outgoing struct {
	to   naming.DeviceID
	data []byte
	done *messaging.Future[struct{}]
}

// Config describes one side of the connection
type Config struct {
	Own       naming.DeviceID
	Master    naming.DeviceID
	Endpoint  string
	Heartbeat time.Duration
	Codec     *messaging.Codec
	Metrics   gometrics.MetricSink
}

// Transport is a messaging.Transport over a single ZeroMQ socket. Only the
// loop goroutine touches the socket; writers queue into the outbox.
type Transport struct {
	own       naming.DeviceID
	master    naming.DeviceID
	endpoint  string
	heartbeat time.Duration
	codec     *messaging.Codec
	msink     gometrics.MetricSink
	logger    zerolog.Logger

	socket *zmq4.Socket
	outbox chan outgoing
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex     sync.RWMutex
	running   bool
	peers     map[naming.DeviceID]time.Time
	inbound   func(*messaging.AddressedMessage)
	onConnect []func(naming.DeviceID)
}

// New creates a transport; Start opens the socket
func New(cfg Config) *Transport {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Codec == nil {
		cfg.Codec = messaging.NewCodec(nil)
	}
	return &Transport{
		own:       cfg.Own,
		master:    cfg.Master,
		endpoint:  cfg.Endpoint,
		heartbeat: cfg.Heartbeat,
		codec:     cfg.Codec,
		msink:     metrics.Sink(cfg.Metrics),
		logger:    logger.GetLogger("transport.zmq").With().Str("device_id", cfg.Own.String()).Logger(),
		outbox:    make(chan outgoing, outboxSize),
		peers:     make(map[naming.DeviceID]time.Time),
	}
}

func (t *Transport) isMaster() bool {
	return t.own == t.master
}

// SetInbound sets the sink for decoded inbound messages
func (t *Transport) SetInbound(fn func(*messaging.AddressedMessage)) {
	t.mutex.Lock()
	t.inbound = fn
	t.mutex.Unlock()
}

// OnDeviceConnected registers fn to be told when a device announces itself
func (t *Transport) OnDeviceConnected(fn func(naming.DeviceID)) {
	t.mutex.Lock()
	t.onConnect = append(t.onConnect, fn)
	t.mutex.Unlock()
}

// Start opens the socket and starts the loop
func (t *Transport) Start(ctx context.Context) (err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.running {
		return fmt.Errorf("zmq transport already running")
	}

	socketType := zmq4.DEALER
	if t.isMaster() {
		socketType = zmq4.ROUTER
	}
	socket, err := zmq4.NewSocket(socketType)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	defer func() {
		if err != nil {
			socket.Close()
		}
	}()

	if err = socket.SetLinger(time.Second); err != nil {
		return fmt.Errorf("failed to set linger: %w", err)
	}
	if err = socket.SetRcvhwm(1000); err != nil {
		return fmt.Errorf("failed to set receive high watermark: %w", err)
	}
	if err = socket.SetSndhwm(1000); err != nil {
		return fmt.Errorf("failed to set send high watermark: %w", err)
	}

	if t.isMaster() {
		// Unknown identities fail the send instead of being dropped silently
		if err = socket.SetRouterMandatory(1); err != nil {
			return fmt.Errorf("failed to set router mandatory: %w", err)
		}
		if err = socket.Bind(t.endpoint); err != nil {
			return fmt.Errorf("failed to bind to %s: %w", t.endpoint, err)
		}
	} else {
		if err = socket.SetIdentity(string(t.own)); err != nil {
			return fmt.Errorf("failed to set identity: %w", err)
		}
		if err = socket.Connect(t.endpoint); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", t.endpoint, err)
		}
		if _, err = socket.SendMessage(buildFrames(CMD_READY, nil)...); err != nil {
			return fmt.Errorf("failed to announce device: %w", err)
		}
	}

	t.socket = socket
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true

	t.wg.Add(1)
	go t.loop()

	t.logger.Info().
		Str("endpoint", t.endpoint).
		Bool("master", t.isMaster()).
		Msg("ZMQ transport started")
	return nil
}

// Stop closes the socket. Writes still queued fail with ErrTransportClosed.
func (t *Transport) Stop() error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return nil
	}
	t.running = false
	t.mutex.Unlock()

	t.cancel()
	t.wg.Wait()

	if !t.isMaster() {
		if _, err := t.socket.SendMessage(buildFrames(CMD_DISCONNECT, nil)...); err != nil {
			t.logger.Debug().Err(err).Msg("Failed to announce disconnect")
		}
	}

	for {
		select {
		case out := <-t.outbox:
			out.done.TryFail(messaging.ErrTransportClosed)
			continue
		default:
		}
		break
	}

	err := t.socket.Close()
	t.logger.Info().Msg("ZMQ transport stopped")
	return err
}

// Write queues msg for the loop goroutine
func (t *Transport) Write(msg *messaging.AddressedMessage) *messaging.Future[struct{}] {
	t.mutex.RLock()
	running := t.running
	t.mutex.RUnlock()
	if !running {
		return messaging.Failed[struct{}](messaging.ErrTransportClosed)
	}
	if !t.Connected(msg.To()) {
		return messaging.Failed[struct{}](fmt.Errorf("%w: %s", messaging.ErrNotConnected, msg.To()))
	}

	data, err := t.codec.Encode(msg)
	if err != nil {
		return messaging.Failed[struct{}](err)
	}

	out := outgoing{to: msg.To(), data: data, done: messaging.NewFuture[struct{}]()}
	select {
	case t.outbox <- out:
	case <-t.ctx.Done():
		out.done.TryFail(messaging.ErrTransportClosed)
	}
	return out.done
}

// Connected reports whether id can be written to. A client only reaches
// the master; the master reaches devices seen within the liveness window.
func (t *Transport) Connected(id naming.DeviceID) bool {
	if id == t.own {
		return false
	}
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.isMaster() {
		return t.running && id == t.master
	}
	lastSeen, ok := t.peers[id]
	return ok && time.Since(lastSeen) < t.heartbeat*heartbeatLiveness
}

// ConnectedDevices returns the reachable devices in sorted order
func (t *Transport) ConnectedDevices() []naming.DeviceID {
	t.mutex.RLock()
	var ids []naming.DeviceID
	if !t.isMaster() {
		if t.running {
			ids = append(ids, t.master)
		}
	} else {
		for id, lastSeen := range t.peers {
			if time.Since(lastSeen) < t.heartbeat*heartbeatLiveness {
				ids = append(ids, id)
			}
		}
	}
	t.mutex.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Transport) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case out := <-t.outbox:
			t.send(out)
		case <-ticker.C:
			t.tick()
		default:
			parts, err := t.socket.RecvMessageBytes(zmq4.DONTWAIT)
			if err != nil {
				if zmq4.AsErrno(err) != zmq4.Errno(syscall.EAGAIN) {
					t.logger.Error().Err(err).Msg("Failed to receive message")
				}
				time.Sleep(10 * time.Millisecond) // Small sleep to prevent busy waiting
				continue
			}
			t.receive(parts)
		}
	}
}

func (t *Transport) send(out outgoing) {
	var err error
	if t.isMaster() {
		parts := append([]interface{}{string(out.to)}, buildFrames(CMD_MESSAGE, out.data)...)
		_, err = t.socket.SendMessage(parts...)
	} else {
		_, err = t.socket.SendMessage(buildFrames(CMD_MESSAGE, out.data)...)
	}

	if err != nil {
		out.done.TryFail(fmt.Errorf("failed to send to %s: %w", out.to, err))
		return
	}
	t.msink.IncrCounterWithLabels(metrics.MetricTransportOutBytes, float32(len(out.data)),
		[]gometrics.Label{metrics.LabelDevice.M(out.to.String())})
	out.done.TrySucceed(struct{}{})
}

func (t *Transport) tick() {
	if !t.isMaster() {
		if _, err := t.socket.SendMessage(buildFrames(CMD_HEARTBEAT, nil)...); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to send heartbeat")
		}
		return
	}

	expiry := t.heartbeat * heartbeatLiveness
	t.mutex.Lock()
	for id, lastSeen := range t.peers {
		if time.Since(lastSeen) > expiry {
			delete(t.peers, id)
			t.logger.Warn().Str("peer", id.String()).Msg("Device expired - removing")
		}
	}
	t.mutex.Unlock()
}

// receive handles the raw parts read from the socket
func (t *Transport) receive(parts [][]byte) {
	sender := t.master
	if t.isMaster() {
		if len(parts) < 1 || len(parts[0]) == 0 {
			t.logger.Warn().Msg("Received message without identity")
			return
		}
		sender = naming.DeviceID(parts[0])
		parts = parts[1:]
	}

	f, err := parseFrames(parts)
	if err != nil {
		t.logger.Warn().Err(err).Str("sender", sender.String()).Msg("Dropped malformed message")
		return
	}
	if err := t.handleFrame(sender, f); err != nil {
		t.msink.IncrCounterWithLabels(metrics.MetricTransportDecodeErrCnt, 1,
			[]gometrics.Label{metrics.LabelDevice.M(sender.String())})
		t.logger.Warn().Err(err).Str("sender", sender.String()).Msg("Dropped message")
	}
}

func (t *Transport) handleFrame(sender naming.DeviceID, f frame) error {
	if t.isMaster() {
		t.touch(sender, f.command)
	}

	switch f.command {
	case CMD_READY, CMD_HEARTBEAT, CMD_DISCONNECT:
		return nil
	}

	t.msink.IncrCounterWithLabels(metrics.MetricTransportInBytes, float32(len(f.body)),
		[]gometrics.Label{metrics.LabelDevice.M(sender.String())})

	msg, err := t.codec.Decode(f.body)
	if err != nil {
		return err
	}
	if msg.From() != sender {
		return fmt.Errorf("envelope sender %s does not match connection %s", msg.From(), sender)
	}
	if msg.To() != t.own {
		return fmt.Errorf("message for %s delivered to %s", msg.To(), t.own)
	}

	t.mutex.RLock()
	inbound := t.inbound
	t.mutex.RUnlock()
	if inbound != nil {
		inbound(msg)
	}
	return nil
}

// touch updates peer liveness on the master and fires connect callbacks
// for devices not seen before
func (t *Transport) touch(sender naming.DeviceID, command string) {
	t.mutex.Lock()
	if command == CMD_DISCONNECT {
		delete(t.peers, sender)
		t.mutex.Unlock()
		t.logger.Info().Str("peer", sender.String()).Msg("Device disconnected")
		return
	}
	_, known := t.peers[sender]
	t.peers[sender] = time.Now()
	callbacks := append([]func(naming.DeviceID){}, t.onConnect...)
	t.mutex.Unlock()

	if !known {
		t.logger.Info().Str("peer", sender.String()).Msg("Device connected")
		for _, cb := range callbacks {
			cb(sender)
		}
	}
}
