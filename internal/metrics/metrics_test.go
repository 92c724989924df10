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

package metrics

import (
	"strings"
	"testing"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink(t *testing.T) {
	assert.IsType(t, &gometrics.BlackholeSink{}, Sink(nil))

	inmem := NewInmem()
	assert.Same(t, inmem, Sink(inmem))
}

func TestSince(t *testing.T) {
	sink := NewInmem()
	Since(sink, MetricHandlerDuration, time.Now().Add(-5*time.Millisecond), LabelRoutingKey.M("/master/light/set"))

	data := sink.Data()
	require.NotEmpty(t, data)

	var found bool
	for name, sample := range data[len(data)-1].Samples {
		if strings.HasPrefix(name, "smarthome.handler.duration") {
			found = true
			assert.Equal(t, 1, sample.Count)
			assert.GreaterOrEqual(t, sample.Max, 5.0)
		}
	}
	assert.True(t, found)
}

func TestLabel(t *testing.T) {
	l := LabelDevice.M("slave1")
	assert.Equal(t, "device_id", l.Name)
	assert.Equal(t, "slave1", l.Value)
}
