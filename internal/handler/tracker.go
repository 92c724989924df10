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
	"fmt"
	"sync"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/messaging"
	"smarthome/internal/metrics"
	"smarthome/internal/naming"
)

const (
	DefaultResponseTimeout   = 30 * time.Second
	DefaultSettledCacheSize  = 1024
	defaultMaxPendingEntries = 4096
)

// pendingEntry is a type-erased slot waiting for the reply to seq
type pendingEntry struct {
	seq     int64
	key     string
	created time.Time
	settle  func(payload any, err error) bool
}

// ResponseTracker correlates replies from the master with requests sent by
// this device. Slots are keyed by the request's sequence number, settle at
// most once and expire after the response timeout.
type ResponseTracker struct {
	identity naming.Identity
	timeout  time.Duration
	mutex    sync.Mutex
	pending  *expirable.LRU[int64, *pendingEntry]
	settled  *lru.Cache[int64, struct{}]
	msink    gometrics.MetricSink
	logger   zerolog.Logger
}

// TrackerOption configures a ResponseTracker
type TrackerOption func(*trackerConfig)

type trackerConfig struct {
	timeout     time.Duration
	settledSize int
	maxPending  int
	sink        gometrics.MetricSink
}

// WithResponseTimeout bounds how long a slot waits for its reply
func WithResponseTimeout(d time.Duration) TrackerOption {
	return func(c *trackerConfig) {
		c.timeout = d
	}
}

// WithSettledCacheSize sets how many settled sequence numbers are remembered
func WithSettledCacheSize(n int) TrackerOption {
	return func(c *trackerConfig) {
		c.settledSize = n
	}
}

// WithTrackerMetrics sets the metric sink
func WithTrackerMetrics(sink gometrics.MetricSink) TrackerOption {
	return func(c *trackerConfig) {
		c.sink = sink
	}
}

// NewResponseTracker creates a tracker for the device described by identity
func NewResponseTracker(identity naming.Identity, opts ...TrackerOption) *ResponseTracker {
	cfg := trackerConfig{
		timeout:     DefaultResponseTimeout,
		settledSize: DefaultSettledCacheSize,
		maxPending:  defaultMaxPendingEntries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultResponseTimeout
	}
	if cfg.settledSize <= 0 {
		cfg.settledSize = DefaultSettledCacheSize
	}

	t := &ResponseTracker{
		identity: identity,
		timeout:  cfg.timeout,
		msink:    metrics.Sink(cfg.sink),
		logger:   logger.GetLogger("handler.tracker").With().Str("device_id", identity.OwnID().String()).Logger(),
	}
	t.settled, _ = lru.New[int64, struct{}](cfg.settledSize)
	t.pending = expirable.NewLRU[int64, *pendingEntry](cfg.maxPending, t.onEvict, cfg.timeout)
	return t
}

// onEvict runs under the pending cache's lock on removal, capacity eviction
// and expiry. Slots settled by a reply are already done, so only abandoned
// slots fail here.
func (t *ResponseTracker) onEvict(seq int64, entry *pendingEntry) {
	if entry.settle(nil, fmt.Errorf("%w: no reply to %s#%d after %s",
		messaging.ErrTimeout, entry.key, seq, t.timeout)) {
		t.settled.Add(seq, struct{}{})
		t.msink.IncrCounterWithLabels(metrics.MetricPendingExpiredCount, 1,
			[]gometrics.Label{metrics.LabelRoutingKey.M(entry.key)})
		t.logger.Warn().
			Int64("seq", seq).
			Str("routing_key", entry.key).
			Dur("waited", time.Since(entry.created)).
			Msg("Pending request expired")
	}
}

// Track registers a slot for the reply to sent and returns its future. Only
// requests from this device to the master can be tracked. A failed send
// fails the future and frees the slot.
func Track[T any](t *ResponseTracker, sent *messaging.AddressedMessage) *messaging.Future[T] {
	future := messaging.NewFuture[T]()

	own, master := t.identity.OwnID(), t.identity.MasterID()
	if sent.From() != own || sent.To() != master {
		future.TryFail(fmt.Errorf("%w: only requests from %s to the master %s can be tracked, got %s",
			messaging.ErrInvalidDestination, own, master, sent))
		return future
	}

	seq := sent.Seq()
	entry := &pendingEntry{
		seq:     seq,
		key:     sent.RoutingKey(),
		created: time.Now(),
		settle: func(p any, err error) bool {
			if err != nil {
				return future.TryFail(err)
			}
			if ep, ok := p.(*messaging.ErrorPayload); ok {
				return future.TryFail(ep)
			}
			v, ok := messaging.CastPayload[T](p)
			if !ok {
				var zero T
				return future.TryFail(fmt.Errorf("%w: reply to %s#%d carries %T, expected %T",
					messaging.ErrRoutingMismatch, sent.RoutingKey(), seq, p, zero))
			}
			return future.TrySucceed(v)
		},
	}
	// a sequence number is a correlation key at most once
	t.mutex.Lock()
	if t.pending.Contains(seq) {
		t.mutex.Unlock()
		future.TryFail(messaging.Classify(messaging.KindProgramming, "track",
			fmt.Errorf("request #%d is already pending", seq)))
		return future
	}
	t.pending.Add(seq, entry)
	t.mutex.Unlock()
	t.msink.SetGauge(metrics.MetricPendingCount, float32(t.pending.Len()))

	sent.SendFuture().OnComplete(func(_ struct{}, err error) {
		if err == nil {
			return
		}
		if entry.settle(nil, err) {
			t.settled.Add(seq, struct{}{})
			t.pending.Remove(seq)
			t.logger.Debug().
				Err(err).
				Int64("seq", seq).
				Str("routing_key", entry.key).
				Msg("Request failed before a reply could arrive")
		}
	})
	return future
}

// HandleResponse settles the slot referenced by msg. It fails with
// ErrUnmatchedResponse when no slot exists and ErrAlreadySettled when the
// slot was resolved before.
func (t *ResponseTracker) HandleResponse(msg *messaging.AddressedMessage) error {
	ref, ok := msg.ReferencesID()
	if !ok {
		return fmt.Errorf("%w: %s carries no reference", messaging.ErrUnmatchedResponse, msg)
	}

	entry, ok := t.pending.Peek(ref)
	if !ok {
		if t.settled.Contains(ref) {
			return fmt.Errorf("%w: %s references #%d", messaging.ErrAlreadySettled, msg, ref)
		}
		return fmt.Errorf("%w: %s references #%d", messaging.ErrUnmatchedResponse, msg, ref)
	}

	if !entry.settle(msg.Payload(), nil) {
		return fmt.Errorf("%w: %s references #%d", messaging.ErrAlreadySettled, msg, ref)
	}
	t.settled.Add(ref, struct{}{})
	t.pending.Remove(ref)
	t.msink.SetGauge(metrics.MetricPendingCount, float32(t.pending.Len()))
	return nil
}

// TryHandleResponse is HandleResponse reporting success as a bool, for
// callers that fall back to treating msg as unsolicited
func (t *ResponseTracker) TryHandleResponse(msg *messaging.AddressedMessage) bool {
	if err := t.HandleResponse(msg); err != nil {
		t.logger.Debug().Err(err).Msg("Message is not a tracked response")
		return false
	}
	return true
}

// Pending returns the number of unsettled slots
func (t *ResponseTracker) Pending() int {
	return t.pending.Len()
}

// Purge fails every pending slot with err, used on shutdown
func (t *ResponseTracker) Purge(err error) {
	if err == nil {
		err = messaging.ErrTransportClosed
	}
	for _, seq := range t.pending.Keys() {
		entry, ok := t.pending.Peek(seq)
		if !ok {
			continue
		}
		if entry.settle(nil, err) {
			t.settled.Add(seq, struct{}{})
		}
	}
	t.pending.Purge()
}
