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
	"fmt"
	"sort"
	"sync"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/metrics"
)

// Handler receives inbound messages for the routing keys it is registered for
type Handler interface {
	Handle(ctx context.Context, msg *AddressedMessage) error
	HandlerAdded(d *Dispatcher, key string)
	HandlerRemoved(key string)
}

// HandlerFunc adapts a function to a Handler without lifecycle callbacks.
// Use a pointer (&fn) when registering so that the handler is comparable.
type HandlerFunc func(ctx context.Context, msg *AddressedMessage) error

// Handle calls f
func (f *HandlerFunc) Handle(ctx context.Context, msg *AddressedMessage) error {
	return (*f)(ctx, msg)
}

func (f *HandlerFunc) HandlerAdded(*Dispatcher, string) {}
func (f *HandlerFunc) HandlerRemoved(string)            {}

// Func wraps fn into a registrable Handler
func Func(fn func(ctx context.Context, msg *AddressedMessage) error) Handler {
	h := HandlerFunc(fn)
	return &h
}

// Dispatcher maps routing-key strings to the handlers interested in them.
// Differently typed keys sharing a string share a bucket.
type Dispatcher struct {
	handlers map[string]map[Handler]struct{}
	mutex    sync.RWMutex
	executor *Executor
	msink    gometrics.MetricSink
	logger   zerolog.Logger
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatchMetrics sets the metric sink
func WithDispatchMetrics(sink gometrics.MetricSink) DispatcherOption {
	return func(d *Dispatcher) {
		d.msink = metrics.Sink(sink)
	}
}

// NewDispatcher creates a dispatcher running handlers on executor
func NewDispatcher(executor *Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]map[Handler]struct{}),
		executor: executor,
		msink:    metrics.Sink(nil),
		logger:   logger.GetLogger("messaging.dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds h to the listeners of every key. Registering twice is a no-op.
func (d *Dispatcher) Register(h Handler, keys ...AnyKey) {
	added := make([]string, 0, len(keys))

	d.mutex.Lock()
	for _, k := range keys {
		set, ok := d.handlers[k.Key()]
		if !ok {
			set = make(map[Handler]struct{})
			d.handlers[k.Key()] = set
		}
		if _, exists := set[h]; exists {
			continue
		}
		set[h] = struct{}{}
		added = append(added, k.Key())
	}
	d.mutex.Unlock()

	for _, key := range added {
		h.HandlerAdded(d, key)
		d.logger.Debug().Str("routing_key", key).Msg("Handler registered")
	}
}

// Unregister removes h from the listeners of every key. Unknown pairs are ignored.
func (d *Dispatcher) Unregister(h Handler, keys ...AnyKey) {
	removed := make([]string, 0, len(keys))

	d.mutex.Lock()
	for _, k := range keys {
		set, ok := d.handlers[k.Key()]
		if !ok {
			continue
		}
		if _, exists := set[h]; !exists {
			continue
		}
		delete(set, h)
		if len(set) == 0 {
			delete(d.handlers, k.Key())
		}
		removed = append(removed, k.Key())
	}
	d.mutex.Unlock()

	for _, key := range removed {
		h.HandlerRemoved(key)
		d.logger.Debug().Str("routing_key", key).Msg("Handler unregistered")
	}
}

// Handlers returns the number of handlers registered for key
func (d *Dispatcher) Handlers(key string) int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.handlers[key])
}

// Keys returns the registered routing-key strings in sorted order
func (d *Dispatcher) Keys() []string {
	d.mutex.RLock()
	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	d.mutex.RUnlock()

	sort.Strings(keys)
	return keys
}

// Dispatch schedules every handler registered for msg's routing key and
// reports whether there was any. Handler failures never reach the caller.
func (d *Dispatcher) Dispatch(msg *AddressedMessage) bool {
	d.mutex.RLock()
	set := d.handlers[msg.RoutingKey()]
	targets := make([]Handler, 0, len(set))
	for h := range set {
		targets = append(targets, h)
	}
	d.mutex.RUnlock()

	keyLabel := metrics.LabelRoutingKey.M(msg.RoutingKey())
	if len(targets) == 0 {
		d.msink.IncrCounterWithLabels(metrics.MetricDispatchUndeliveredCnt, 1, []gometrics.Label{keyLabel})
		d.logger.Debug().
			Str("routing_key", msg.RoutingKey()).
			Int64("seq", msg.Seq()).
			Str("from", msg.From().String()).
			Msg("No handler registered for message")
		return false
	}

	for _, h := range targets {
		h := h
		err := d.executor.Submit(context.Background(), func(ctx context.Context) {
			d.invoke(ctx, h, msg)
		})
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("routing_key", msg.RoutingKey()).
				Int64("seq", msg.Seq()).
				Msg("Failed to schedule handler")
		}
	}
	d.msink.IncrCounterWithLabels(metrics.MetricDispatchCount, float32(len(targets)), []gometrics.Label{keyLabel})
	return true
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, msg *AddressedMessage) {
	start := time.Now()
	keyLabel := metrics.LabelRoutingKey.M(msg.RoutingKey())
	defer metrics.Since(d.msink, metrics.MetricHandlerDuration, start, keyLabel)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panicked: %v", r)
			}
		}()
		return h.Handle(ctx, msg)
	}()

	if err != nil {
		d.msink.IncrCounterWithLabels(metrics.MetricHandlerErrorCount, 1, []gometrics.Label{keyLabel})
		d.logger.Error().
			Err(err).
			Str("routing_key", msg.RoutingKey()).
			Int64("seq", msg.Seq()).
			Str("from", msg.From().String()).
			Str("handler", fmt.Sprintf("%T", h)).
			Msg("Handler failed to process message")
	}
}

// Close stops the executor after the queued handlers ran
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.executor.Stop(ctx)
}
