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
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smarthome/internal/logger"
)

// Task is a unit of work run by the executor
type Task func(ctx context.Context)

// Executor is a fixed-size worker pool fed by a bounded queue. Submit blocks
// while the queue is full, so a flood of inbound messages slows the reader
// instead of growing memory.
type Executor struct {
	workers   int
	queueSize int
	tasks     chan Task

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	lifecycleMu sync.RWMutex
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	panicked  atomic.Int64

	logger zerolog.Logger
}

// ExecutorStats is a snapshot of executor counters
type ExecutorStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Processed int64 `json:"processed"`
	Panicked  int64 `json:"panicked"`
}

// NewExecutor creates an executor and starts its workers
func NewExecutor(workers, queueSize int) *Executor {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	e := &Executor{
		workers:   workers,
		queueSize: queueSize,
		tasks:     make(chan Task, queueSize),
		ctx:       gctx,
		cancel:    cancel,
		group:     group,
		logger:    logger.GetLogger("messaging.executor"),
	}

	for i := 0; i < workers; i++ {
		id := i
		group.Go(func() error {
			e.worker(id)
			return nil
		})
	}
	return e
}

func (e *Executor) worker(id int) {
	for task := range e.tasks {
		e.run(id, task)
	}
}

func (e *Executor) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
			e.logger.Error().
				Int("worker", id).
				Interface("panic", r).
				Msg("Task panicked")
		}
		e.processed.Add(1)
	}()
	task(e.ctx)
}

// Submit queues task, blocking while the queue is full
func (e *Executor) Submit(ctx context.Context, task Task) error {
	e.lifecycleMu.RLock()
	defer e.lifecycleMu.RUnlock()

	if e.stopped {
		return ErrPoolStopped
	}

	select {
	case e.tasks <- task:
		e.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to submit task: %w", ctx.Err())
	case <-e.ctx.Done():
		return ErrPoolStopped
	}
}

// Stop refuses new tasks and waits for queued ones to finish. If ctx ends
// first, running tasks see their context cancelled.
func (e *Executor) Stop(ctx context.Context) error {
	e.lifecycleMu.Lock()
	if e.stopped {
		e.lifecycleMu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.tasks)
	e.lifecycleMu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- e.group.Wait()
	}()

	select {
	case err := <-done:
		e.cancel()
		return err
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns executor counters
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Workers:   e.workers,
		Queued:    len(e.tasks),
		Submitted: e.submitted.Load(),
		Processed: e.processed.Load(),
		Panicked:  e.panicked.Load(),
	}
}
