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
	"sync"
)

// ErrNotCompleted is returned by Result on a future that is still pending
var ErrNotCompleted = errors.New("messaging: future not completed")

// Future is a settable-once result. The first TrySucceed or TryFail wins,
// every later attempt reports false.
type Future[T any] struct {
	mutex     sync.Mutex
	done      chan struct{}
	value     T
	err       error
	callbacks []func(T, error)
}

// NewFuture creates a pending future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Succeeded returns a future already completed with v
func Succeeded[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.TrySucceed(v)
	return f
}

// Failed returns a future already failed with err
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.TryFail(err)
	return f
}

// TrySucceed completes the future with v
func (f *Future[T]) TrySucceed(v T) bool {
	return f.complete(v, nil)
}

// TryFail completes the future with err
func (f *Future[T]) TryFail(err error) bool {
	if err == nil {
		err = errors.New("messaging: future failed without cause")
	}
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	f.mutex.Lock()
	select {
	case <-f.done:
		f.mutex.Unlock()
		return false
	default:
	}
	f.value = v
	f.err = err
	close(f.done)
	callbacks := f.callbacks
	f.callbacks = nil
	f.mutex.Unlock()

	for _, cb := range callbacks {
		go cb(v, err)
	}
	return true
}

// Done is closed once the future completes
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking
func (f *Future[T]) Result() (T, error) {
	if !f.IsDone() {
		var zero T
		return zero, ErrNotCompleted
	}
	return f.value, f.err
}

// Await blocks until the future completes or ctx is done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run once the future completes. fn always runs
// on its own goroutine, never under the caller's locks.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mutex.Lock()
	select {
	case <-f.done:
		f.mutex.Unlock()
		go fn(f.value, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mutex.Unlock()
}
