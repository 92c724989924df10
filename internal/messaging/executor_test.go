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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestExecutorRunsTasks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := NewExecutor(4, 16)

	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Submit(context.Background(), func(context.Context) {
			ran.Add(1)
		}))
	}

	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, int64(100), ran.Load(), "stop drains the queue")

	stats := e.Stats()
	assert.Equal(t, int64(100), stats.Submitted)
	assert.Equal(t, int64(100), stats.Processed)
}

func TestExecutorSurvivesPanics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := NewExecutor(1, 4)

	done := make(chan struct{})
	require.NoError(t, e.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, e.Submit(context.Background(), func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}

	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, int64(1), e.Stats().Panicked)
}

func TestExecutorRejectsAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := NewExecutor(2, 2)
	require.NoError(t, e.Stop(context.Background()))
	require.NoError(t, e.Stop(context.Background()), "stop is idempotent")

	err := e.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestExecutorSubmitBlocksWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := NewExecutor(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, e.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, e.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, e.Stop(context.Background()))
}
