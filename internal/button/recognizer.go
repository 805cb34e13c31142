// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package button turns press/release edges into gestures. A gesture is a
// number of presses followed by a quiet period; bit i of its pattern is set
// when press i was long.
package button

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultTimeout   = 600 * time.Millisecond
	DefaultLongPress = 800 * time.Millisecond

	// presses shorter than this are contact bounce
	debounce = 20 * time.Millisecond

	maxPresses = 32
)

type gesture struct {
	count   uint8
	pattern uint32
	cb      func()
}

// Recognizer is safe to feed from one goroutine while callbacks run on
// another.
type Recognizer struct {
	timeout   time.Duration
	longPress time.Duration

	mu        sync.Mutex
	gestures  []gesture
	pressed   bool
	pressedAt time.Time
	count     uint8
	pattern   uint32
	timer     *time.Timer
	gen       uint64 // bumped whenever the pending timer is replaced or cancelled
}

func NewRecognizer(timeout, longPress time.Duration) *Recognizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	return &Recognizer{timeout: timeout, longPress: longPress}
}

// Register calls cb whenever a sequence of count presses with the given
// long/short pattern completes. A later registration for the same
// sequence replaces the earlier one.
func (r *Recognizer) Register(count uint8, pattern uint32, cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.gestures {
		if g.count == count && g.pattern == pattern {
			r.gestures[i].cb = cb
			return
		}
	}
	r.gestures = append(r.gestures, gesture{count: count, pattern: pattern, cb: cb})
}

// Edge records a level change of the button at time at.
func (r *Recognizer) Edge(pressed bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pressed == r.pressed {
		return
	}
	r.pressed = pressed

	if pressed {
		r.pressedAt = at
		r.cancel()
		return
	}

	held := at.Sub(r.pressedAt)
	if held < debounce {
		r.arm()
		return
	}
	if held >= r.longPress {
		r.pattern |= 1 << r.count
	}
	r.count++

	if r.count == maxPresses {
		r.start(0)
		return
	}
	r.arm()
}

// arm restarts the quiet-period timer. Caller holds mu.
func (r *Recognizer) arm() {
	if r.count == 0 {
		return
	}
	r.start(r.timeout)
}

// start replaces the pending timer with one firing after d. Caller holds mu.
func (r *Recognizer) start(d time.Duration) {
	r.cancel()
	gen := r.gen
	r.timer = time.AfterFunc(d, func() { r.expire(gen) })
}

// cancel stops the pending timer. A callback that already fired sees a
// newer generation and does nothing. Caller holds mu.
func (r *Recognizer) cancel() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// expire is the timer callback for generation gen.
func (r *Recognizer) expire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.finish()
}

// flush ends the current sequence and runs the matching callback, if any.
func (r *Recognizer) flush() {
	r.mu.Lock()
	r.finish()
}

// finish runs with mu held and releases it before calling back.
func (r *Recognizer) finish() {
	if r.pressed || r.count == 0 {
		r.mu.Unlock()
		return
	}
	count, pattern := r.count, r.pattern
	r.count, r.pattern = 0, 0
	r.cancel()

	var cb func()
	for _, g := range r.gestures {
		if g.count == count && g.pattern == pattern {
			cb = g.cb
			break
		}
	}
	r.mu.Unlock()

	if cb == nil {
		log.Debugf("button: unrecognised sequence count=%d pattern=%b", count, pattern)
		return
	}
	log.Debugf("button: gesture count=%d pattern=%b", count, pattern)
	cb()
}
