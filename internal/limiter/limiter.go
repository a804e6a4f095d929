/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package limiter runs tasks with bounded parallelism.
//
// At most N tasks run at once. Submit never blocks: a task either starts right
// away or waits in a FIFO queue, and queued tasks start in submission order as
// slots free up. A failing task does not affect its siblings.
package limiter

import (
	"context"
	"sync"
)

// Limiter is a bounded-parallelism executor. The zero value is not usable; call New.
type Limiter struct {
	max int

	mu       sync.Mutex
	inFlight int
	queue    []*job
}

type job struct {
	ctx context.Context
	run func()
	// abort completes the future with the context error without running.
	abort func(error)
	stop  func() bool
}

// New returns a limiter allowing n concurrent tasks. n < 1 is treated as 1.
func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{max: n}
}

// Max returns the concurrency bound.
func (l *Limiter) Max() int { return l.max }

// InFlight returns the number of started but unfinished tasks.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Queued returns the number of tasks waiting for a slot.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the task finished or was aborted.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the task completes or ctx is done. A ctx error here only
// stops the wait; the task itself keeps its own context.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) complete(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Submit schedules fn and returns immediately. fn receives ctx. If ctx is done
// before fn gets a slot, the future completes with ctx.Err() and fn never runs.
func Submit[T any](l *Limiter, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	j := &job{ctx: ctx}
	j.abort = func(err error) {
		var zero T
		f.complete(zero, err)
	}
	j.run = func() {
		defer l.release()
		v, err := fn(ctx)
		f.complete(v, err)
	}

	if err := ctx.Err(); err != nil {
		j.abort(err)
		return f
	}

	l.mu.Lock()
	if l.inFlight < l.max {
		l.inFlight++
		l.mu.Unlock()
		go j.run()
		return f
	}
	// A queued task whose context ends leaves the queue right away.
	j.stop = context.AfterFunc(ctx, func() {
		if l.remove(j) {
			j.abort(ctx.Err())
		}
	})
	l.queue = append(l.queue, j)
	l.mu.Unlock()
	return f
}

// Run submits fn and waits for its result.
func Run[T any](l *Limiter, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	f := Submit(l, ctx, fn)
	<-f.Done()
	return f.val, f.err
}

func (l *Limiter) remove(j *job) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, q := range l.queue {
		if q == j {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

// release frees a slot and hands it to the next live queued job.
func (l *Limiter) release() {
	var aborted []*job
	l.mu.Lock()
	var next *job
	for len(l.queue) > 0 {
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		if j.ctx.Err() != nil {
			aborted = append(aborted, j)
			continue
		}
		next = j
		break
	}
	if next == nil {
		l.inFlight--
	}
	l.mu.Unlock()

	for _, j := range aborted {
		j.abort(j.ctx.Err())
	}
	if next != nil {
		if next.stop != nil {
			next.stop()
		}
		// the slot passes straight to next; inFlight stays the same
		go next.run()
	}
}
