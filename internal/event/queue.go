// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package event

import (
	"context"
	"sync/atomic"
)

// DefaultCapacity matches the firmware's application queue depth.
const DefaultCapacity = 10

// Queue is a bounded multi-producer, single-consumer FIFO.
//
// Producers that must never block (timer expiries, GPIO edges) use TryPost;
// producers running in task context (gesture callbacks, web handlers) use
// Post, which waits for space. Both feed the same channel, so delivery order
// is enqueue order.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity pending events.
// A non-positive capacity falls back to DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPost enqueues ev without blocking. When the queue is full the event is
// dropped and counted; the caller is not told why.
func (q *Queue) TryPost(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Post enqueues ev, blocking while the queue is full.
func (q *Queue) Post(ctx context.Context, ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until an event is available or ctx is done.
func (q *Queue) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len is the number of pending events.
func (q *Queue) Len() int { return len(q.ch) }

// Cap is the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped counts events lost by TryPost on a full queue.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
