// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package event

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// Handler processes one event. It runs on the dispatcher goroutine and must
// return well within one sampling period.
type Handler func(ctx context.Context, ev Event)

// Dispatcher drains a Queue and routes each event through a table keyed by
// Tag. All handlers run on the goroutine that called Run.
type Dispatcher struct {
	queue    *Queue
	handlers map[Tag]Handler
}

func NewDispatcher(q *Queue) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		handlers: make(map[Tag]Handler),
	}
}

// Handle registers h for tag, replacing any previous handler.
func (d *Dispatcher) Handle(tag Tag, h Handler) {
	d.handlers[tag] = h
}

// Dispatch runs the handler for a single event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	h, ok := d.handlers[ev.Tag()]
	if !ok {
		log.Debugf("dispatcher: no handler for %s, dropped", ev.Tag())
		return
	}
	h(ctx, ev)
}

// Run handles events in arrival order until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Println("dispatcher: waiting for events")
	for {
		ev, err := d.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Println("dispatcher: stopped")
				return nil
			}
			return err
		}
		d.Dispatch(ctx, ev)
	}
}

// Drain handles every event currently queued without waiting for more.
func (d *Dispatcher) Drain(ctx context.Context) int {
	n := 0
	for d.queue.Len() > 0 {
		ev, err := d.queue.Next(ctx)
		if err != nil {
			return n
		}
		d.Dispatch(ctx, ev)
		n++
	}
	return n
}
