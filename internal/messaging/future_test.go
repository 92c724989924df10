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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureSettlesOnce(t *testing.T) {
	f := NewFuture[int]()

	_, err := f.Result()
	assert.ErrorIs(t, err, ErrNotCompleted)

	assert.True(t, f.TrySucceed(1))
	assert.False(t, f.TrySucceed(2))
	assert.False(t, f.TryFail(errors.New("late")))

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFutureCallbacks(t *testing.T) {
	f := NewFuture[string]()

	before := make(chan string, 1)
	f.OnComplete(func(v string, err error) { before <- v })

	boom := errors.New("boom")
	require.True(t, f.TryFail(boom))

	after := make(chan error, 1)
	f.OnComplete(func(_ string, err error) { after <- err })

	select {
	case v := <-before:
		assert.Empty(t, v)
	case <-time.After(time.Second):
		t.Fatal("callback registered before completion did not run")
	}
	select {
	case err := <-after:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("callback registered after completion did not run")
	}
}

func TestFutureAwait(t *testing.T) {
	f := NewFuture[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go f.TrySucceed(7)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
