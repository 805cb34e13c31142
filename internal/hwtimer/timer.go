// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hwtimer provides a periodic timer that posts an event on every
// expiry from its own goroutine, standing in for a hardware timer interrupt.
package hwtimer

import (
	"sync"
	"time"

	"github.com/relabs-tech/shot_node/internal/event"
	log "github.com/sirupsen/logrus"
)

// Poster is the non-blocking side of event.Queue.
type Poster interface {
	TryPost(ev event.Event) bool
}

// Timer posts build(now) every period while running.
type Timer struct {
	name  string
	post  Poster
	build func(time.Time) event.Event

	mu      sync.Mutex
	period  time.Duration
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a stopped timer.
func New(name string, period time.Duration, post Poster, build func(time.Time) event.Event) *Timer {
	return &Timer{
		name:   name,
		post:   post,
		build:  build,
		period: period,
	}
}

// Start arms the timer. Starting a running timer does nothing and returns false.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	t.startLocked()
	return true
}

// Stop disarms the timer. Once Stop returns no further expiry is posted;
// an event already queued is still delivered. Stopping a stopped timer does
// nothing and returns false.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return false
	}
	t.stopLocked()
	return true
}

// SetPeriod changes the period and (re)starts the timer.
func (t *Timer) SetPeriod(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.stopLocked()
	}
	t.period = d
	t.startLocked()
}

// Period returns the current period.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Running reports whether the timer is armed.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) startLocked() {
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.running = true
	go t.loop(t.period, t.stop, t.done)
}

func (t *Timer) stopLocked() {
	close(t.stop)
	<-t.done
	t.running = false
}

func (t *Timer) loop(period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			// stop wins over a tick that raced with it
			select {
			case <-stop:
				return
			default:
			}
			if !t.post.TryPost(t.build(now)) {
				log.Debugf("%s timer: queue full, expiry dropped", t.name)
			}
		}
	}
}
