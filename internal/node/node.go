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

// Package node assembles a running device from its configuration: the
// dispatch pool, the router, the transport and the handlers of its role.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"

	"smarthome/internal/app"
	"smarthome/internal/config"
	"smarthome/internal/handler"
	"smarthome/internal/logger"
	"smarthome/internal/master"
	"smarthome/internal/messaging"
	"smarthome/internal/metrics"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/routes"
	"smarthome/internal/slave"
	"smarthome/internal/store"
	"smarthome/internal/transport"
	"smarthome/internal/transport/zmq"
)

const statsInterval = time.Minute

// Node is one running device
type Node struct {
	config     *config.Config
	identity   *naming.Static
	executor   *messaging.Executor
	dispatcher *messaging.Dispatcher
	router     *messaging.Router
	transport  transport.Transport
	sink       *gometrics.InmemSink
	logger     zerolog.Logger

	store *store.Store
	api   *master.APIServer

	Master *master.Handlers
	Slave  *slave.Handlers
	App    *app.Handlers

	drivers    slave.Drivers
	hasher     master.TokenHasher
	mutex      sync.Mutex
	running    bool
	cancel     context.CancelFunc
	statsGroup sync.WaitGroup
}

// Option customizes a node
type Option func(*Node)

// WithTransport replaces the transport built from the configuration
func WithTransport(t transport.Transport) Option {
	return func(n *Node) {
		n.transport = t
	}
}

// WithDrivers sets the hardware drivers of a slave
func WithDrivers(d slave.Drivers) Option {
	return func(n *Node) {
		n.drivers = d
	}
}

// WithTokenHasher replaces the registration token hasher of a master
func WithTokenHasher(h master.TokenHasher) Option {
	return func(n *Node) {
		n.hasher = h
	}
}

// New builds a node for cfg. Nothing talks to the network until Start.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.SetLevel(cfg.Logging.Level)

	n := &Node{
		config:   cfg,
		identity: cfg.Identity(),
		sink:     metrics.NewInmem(),
		logger:   logger.GetLogger("node").With().Str("device_id", cfg.Device.ID).Str("role", cfg.Device.Role).Logger(),
		hasher:   store.NewTokenHasher(),
		drivers: slave.Drivers{
			Lights: slave.NewMemoryLights(),
			Camera: slave.NewStaticCamera(nil),
			Doors:  slave.NewMemoryDoors(),
		},
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.transport == nil {
		if cfg.Transport.Kind != config.TransportZMQ {
			return nil, fmt.Errorf("transport %q needs to be supplied by the caller", cfg.Transport.Kind)
		}
		endpoint := cfg.Master.Endpoint
		if n.identity.IsMaster() {
			endpoint = cfg.Transport.Bind
		}
		n.transport = zmq.New(zmq.Config{
			Own:      n.identity.OwnID(),
			Master:   n.identity.MasterID(),
			Endpoint: endpoint,
			Codec:    messaging.NewCodec(nil),
			Metrics:  n.sink,
		})
	}

	n.executor = messaging.NewExecutor(cfg.Messaging.Workers, cfg.Messaging.QueueSize)
	n.dispatcher = messaging.NewDispatcher(n.executor, messaging.WithDispatchMetrics(n.sink))
	n.router = messaging.NewRouter(n.identity, n.dispatcher, n.transport, messaging.WithRouterMetrics(n.sink))
	n.transport.SetInbound(n.router.Receive)

	var err error
	switch cfg.Device.Role {
	case config.RoleMaster:
		err = n.setupMaster()
	case config.RoleSlave:
		n.Slave, err = slave.Register(n.router, n.drivers)
	case config.RoleApp:
		n.App, err = app.Register(n.router,
			handler.WithResponseTimeout(cfg.Messaging.ResponseTimeout),
			handler.WithSettledCacheSize(cfg.Messaging.SettledCacheSize),
			handler.WithTrackerMetrics(n.sink),
		)
	}
	if err != nil {
		n.closeEarly()
		return nil, err
	}

	return n, nil
}

func (n *Node) setupMaster() error {
	st, err := store.Open(n.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	n.store = st

	n.Master, err = master.Register(n.router, st, n.hasher,
		handler.WithProxyTimeout(n.config.Messaging.ProxyTimeout),
		handler.WithProxyMetrics(n.sink),
	)
	if err != nil {
		return err
	}

	n.transport.OnDeviceConnected(func(id naming.DeviceID) {
		event := messaging.NewMessage(&payload.DeviceConnectedPayload{Device: id})
		if _, err := n.router.SendLocal(routes.MasterDeviceConnected, event); err != nil {
			n.logger.Error().Err(err).Str("peer", id.String()).Msg("Failed to announce connected device")
		}
	})

	if n.config.API.Listen != "" {
		jwt := master.NewJWTService(n.config.API.JWTSecret, n.identity.OwnID().String(), n.config.API.TokenExpiry)
		n.api = master.NewAPIServer(n.config.API.Listen, n.identity, st, n.transport, jwt)
	}
	return nil
}

func (n *Node) closeEarly() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.dispatcher.Close(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to stop dispatcher")
	}
	if n.store != nil {
		n.store.Close()
	}
}

// Router returns the node's router
func (n *Node) Router() *messaging.Router {
	return n.router
}

// Transport returns the node's transport
func (n *Node) Transport() transport.Transport {
	return n.transport
}

// Store returns the master store, nil on other roles
func (n *Node) Store() *store.Store {
	return n.store
}

// Metrics returns the in-memory metrics of the node
func (n *Node) Metrics() *gometrics.InmemSink {
	return n.sink
}

// Start connects the node
func (n *Node) Start(ctx context.Context) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.running {
		return fmt.Errorf("node is already running")
	}

	if err := n.transport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	if n.api != nil {
		if err := n.api.Start(); err != nil {
			n.transport.Stop()
			return fmt.Errorf("failed to start admin API: %w", err)
		}
	}

	statsCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.statsGroup.Add(1)
	go n.statsLoop(statsCtx)

	n.running = true
	n.logger.Info().
		Str("master_id", n.identity.MasterID().String()).
		Int("workers", n.config.Messaging.Workers).
		Msg("Node started")
	return nil
}

// Run starts the node and blocks until ctx is done or a termination signal
// arrives, then stops it
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		n.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case <-ctx.Done():
		n.logger.Info().Msg("Context cancelled")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.Stop(stopCtx)
}

// Stop disconnects the node, lets queued handlers finish and fails every
// request still waiting for an answer
func (n *Node) Stop(ctx context.Context) error {
	n.mutex.Lock()
	if !n.running {
		n.mutex.Unlock()
		return nil
	}
	n.running = false
	n.mutex.Unlock()

	n.logger.Info().Msg("Stopping node")

	n.cancel()
	n.statsGroup.Wait()

	if n.api != nil {
		if err := n.api.Stop(ctx); err != nil {
			n.logger.Error().Err(err).Msg("Error stopping admin API")
		}
	}
	if err := n.transport.Stop(); err != nil {
		n.logger.Error().Err(err).Msg("Error stopping transport")
	}
	if err := n.dispatcher.Close(ctx); err != nil {
		n.logger.Error().Err(err).Msg("Error stopping dispatcher")
	}
	if n.App != nil {
		n.App.Close()
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Error closing store")
		}
	}

	n.logger.Info().Msg("Node stopped")
	return nil
}

func (n *Node) statsLoop(ctx context.Context) {
	defer n.statsGroup.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := n.executor.Stats()
			n.logger.Debug().
				Int("queued", stats.Queued).
				Int64("processed", stats.Processed).
				Int64("panicked", stats.Panicked).
				Int("connected", len(n.transport.ConnectedDevices())).
				Msg("Node health check")
		}
	}
}
