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

// Package metrics names the telemetry emitted by the messaging layer.
package metrics

import (
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

var (
	MetricDispatchCount          = []string{"smarthome", "dispatch", "count"}
	MetricDispatchUndeliveredCnt = []string{"smarthome", "dispatch", "undelivered", "count"}
	MetricHandlerErrorCount      = []string{"smarthome", "handler", "error", "count"}
	MetricHandlerDuration        = []string{"smarthome", "handler", "duration"}
	MetricSendCount              = []string{"smarthome", "send", "count"}
	MetricSendErrorCount         = []string{"smarthome", "send", "error", "count"}
	MetricPendingCount           = []string{"smarthome", "correlation", "pending", "count"}
	MetricPendingExpiredCount    = []string{"smarthome", "correlation", "pending", "expired", "count"}
	MetricProxyExpiredCount      = []string{"smarthome", "correlation", "proxy", "expired", "count"}
	MetricTransportInBytes       = []string{"smarthome", "transport", "in", "bytes"}
	MetricTransportOutBytes      = []string{"smarthome", "transport", "out", "bytes"}
	MetricTransportDecodeErrCnt  = []string{"smarthome", "transport", "decode", "error", "count"}
)

// TelemetryLabel is the name of a metric label
type TelemetryLabel string

var (
	LabelRoutingKey TelemetryLabel = "routing_key"
	LabelDevice     TelemetryLabel = "device_id"
	LabelRoute      TelemetryLabel = "route"
	LabelError      TelemetryLabel = "error"
)

// M builds a metric label with the given value
func (lab TelemetryLabel) M(val string) gometrics.Label {
	return gometrics.Label{Name: string(lab), Value: val}
}

// Sink returns s, or a blackhole sink when s is nil
func Sink(s gometrics.MetricSink) gometrics.MetricSink {
	if s == nil {
		return &gometrics.BlackholeSink{}
	}
	return s
}

// NewInmem creates an in-memory sink suitable for the CLI and tests
func NewInmem() *gometrics.InmemSink {
	return gometrics.NewInmemSink(10*time.Second, time.Minute)
}

// Since records the elapsed time since start in milliseconds
func Since(sink gometrics.MetricSink, key []string, start time.Time, labels ...gometrics.Label) {
	elapsed := float32(time.Since(start).Seconds() * 1000)
	sink.AddSampleWithLabels(key, elapsed, labels)
}
