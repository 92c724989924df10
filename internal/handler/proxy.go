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
	"sync/atomic"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"smarthome/internal/logger"
	"smarthome/internal/messaging"
	"smarthome/internal/metrics"
	"smarthome/internal/naming"
)

const (
	DefaultProxyTimeout    = 30 * time.Second
	defaultMaxProxyEntries = 4096
)

// Origin identifies an inbound request. Sequence numbers are only unique per
// sender, so the sender is part of the key.
type Origin struct {
	From naming.DeviceID
	Seq  int64
}

// OriginOf returns the origin of msg
func OriginOf(msg *messaging.AddressedMessage) Origin {
	return Origin{From: msg.From(), Seq: msg.Seq()}
}

type savedMessage struct {
	msg   *messaging.AddressedMessage
	taken atomic.Bool
}

// ProxyTable lets the master forward a request to a second device and later
// find the original request again when the second hop answers. Saved
// requests that are never answered, because they expire or because the
// forward could not be sent, are handed to the unanswered callback exactly
// once.
type ProxyTable struct {
	ttl          time.Duration
	inbox        *expirable.LRU[Origin, *savedMessage]
	onBehalfOf   *expirable.LRU[int64, Origin]
	onUnanswered func(*messaging.AddressedMessage, error)
	msink        gometrics.MetricSink
	logger       zerolog.Logger
}

// ProxyOption configures a ProxyTable
type ProxyOption func(*proxyConfig)

type proxyConfig struct {
	ttl          time.Duration
	size         int
	onUnanswered func(*messaging.AddressedMessage, error)
	sink         gometrics.MetricSink
}

// WithProxyTimeout bounds how long a proxied request waits for the second hop
func WithProxyTimeout(d time.Duration) ProxyOption {
	return func(c *proxyConfig) {
		c.ttl = d
	}
}

// WithUnansweredCallback is called with the original request when the
// second hop will never answer it. err wraps messaging.ErrTimeout on expiry,
// or is the send error when the forward failed. On expiry it runs on its own
// goroutine.
func WithUnansweredCallback(fn func(original *messaging.AddressedMessage, err error)) ProxyOption {
	return func(c *proxyConfig) {
		c.onUnanswered = fn
	}
}

// WithProxyMetrics sets the metric sink
func WithProxyMetrics(sink gometrics.MetricSink) ProxyOption {
	return func(c *proxyConfig) {
		c.sink = sink
	}
}

// NewProxyTable creates an empty table
func NewProxyTable(opts ...ProxyOption) *ProxyTable {
	cfg := proxyConfig{ttl: DefaultProxyTimeout, size: defaultMaxProxyEntries}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultProxyTimeout
	}

	p := &ProxyTable{
		ttl:          cfg.ttl,
		onUnanswered: cfg.onUnanswered,
		msink:        metrics.Sink(cfg.sink),
		logger:       logger.GetLogger("handler.proxy"),
	}
	p.inbox = expirable.NewLRU[Origin, *savedMessage](cfg.size, p.evicted, cfg.ttl)
	p.onBehalfOf = expirable.NewLRU[int64, Origin](cfg.size, nil, cfg.ttl)
	return p
}

func (p *ProxyTable) evicted(origin Origin, saved *savedMessage) {
	if !saved.taken.CompareAndSwap(false, true) {
		return
	}
	p.msink.IncrCounterWithLabels(metrics.MetricProxyExpiredCount, 1,
		[]gometrics.Label{metrics.LabelRoutingKey.M(saved.msg.RoutingKey())})
	p.logger.Warn().
		Str("from", origin.From.String()).
		Int64("seq", origin.Seq).
		Str("routing_key", saved.msg.RoutingKey()).
		Msg("Proxied request expired without answer")
	if p.onUnanswered != nil {
		err := fmt.Errorf("%w: no answer to %s within %s", messaging.ErrTimeout, saved.msg.RoutingKey(), p.ttl)
		go p.onUnanswered(saved.msg, err)
	}
}

// SaveMessage keeps original until the second hop answers
func (p *ProxyTable) SaveMessage(original *messaging.AddressedMessage) {
	p.inbox.Add(OriginOf(original), &savedMessage{msg: original})
}

// PutOnBehalfOf records that the message with newSeq was sent on behalf of origin
func (p *ProxyTable) PutOnBehalfOf(newSeq int64, origin Origin) {
	p.onBehalfOf.Add(newSeq, origin)
}

// RecordProxy saves original and links sent to it
func (p *ProxyTable) RecordProxy(original, sent *messaging.AddressedMessage) {
	p.SaveMessage(original)
	p.PutOnBehalfOf(sent.Seq(), OriginOf(original))
}

// MessageOnBehalfOf returns the original request that the message with seq
// was sent for. An original is handed out once; both entries are removed.
func (p *ProxyTable) MessageOnBehalfOf(seq int64) (*messaging.AddressedMessage, bool) {
	origin, ok := p.onBehalfOf.Peek(seq)
	if !ok {
		return nil, false
	}
	p.onBehalfOf.Remove(seq)

	saved, ok := p.inbox.Peek(origin)
	if !ok || !saved.taken.CompareAndSwap(false, true) {
		return nil, false
	}
	p.inbox.Remove(origin)
	return saved.msg, true
}

// Abandon gives up on the message with seq after its forward failed with
// err. The original, if still open, is handed to the unanswered callback.
func (p *ProxyTable) Abandon(seq int64, err error) (*messaging.AddressedMessage, bool) {
	original, ok := p.MessageOnBehalfOf(seq)
	if !ok {
		return nil, false
	}
	p.logger.Warn().
		Err(err).
		Str("from", original.From().String()).
		Int64("seq", original.Seq()).
		Str("routing_key", original.RoutingKey()).
		Msg("Proxied request abandoned")
	if p.onUnanswered != nil {
		p.onUnanswered(original, err)
	}
	return original, true
}

// Len returns the number of saved originals
func (p *ProxyTable) Len() int {
	return p.inbox.Len()
}
