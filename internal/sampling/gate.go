// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sampling decides when the sensors are sampled: a periodic
// scheduler and a motion gate driven by the IMU's no-motion interrupt.
package sampling

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/hwtimer"
)

// Switch is the start/stop side of the sampling timer.
type Switch interface {
	Start() bool
	Stop() bool
	Running() bool
}

// Gate turns the sampling timer on and off following the motion line.
//
// OnLevel runs in the GPIO watcher goroutine and only posts events. Start,
// Stop, SetMode and SetHold run in the consumer. The fields read from both
// sides are atomics.
type Gate struct {
	timer Switch
	post  hwtimer.Poster

	mode   atomic.Uint32 // event.SamplingMode
	hold   atomic.Bool
	motion atomic.Bool
	seen   atomic.Bool
}

// NewGate creates a gate in auto mode. Motion is assumed until the line
// reports otherwise, matching a timer started at boot.
func NewGate(timer Switch, post hwtimer.Poster) *Gate {
	g := &Gate{timer: timer, post: post}
	g.motion.Store(true)
	return g
}

// OnLevel handles an edge on the motion line. Repeats of the current level
// are ignored. Returns true when an event was posted.
func (g *Gate) OnLevel(motion bool) bool {
	prev := g.motion.Swap(motion)
	if g.seen.Swap(true) && prev == motion {
		return false
	}

	var ev event.Event = event.SamplingStop{}
	if motion {
		ev = event.SamplingStart{}
	}
	return g.post.TryPost(ev)
}

// Start starts the sampling timer unless sampling is switched off.
func (g *Gate) Start() bool {
	if g.Mode() == event.SamplingOff {
		return false
	}
	started := g.timer.Start()
	if started {
		log.Debugln("gate: sampling started")
	}
	return started
}

// Stop stops the sampling timer unless sampling is forced on, either by
// mode or by a hold.
func (g *Gate) Stop() bool {
	if g.Forced() {
		return false
	}
	stopped := g.timer.Stop()
	if stopped {
		log.Debugln("gate: sampling stopped")
	}
	return stopped
}

// SetMode changes the sampling mode and applies it to the timer.
func (g *Gate) SetMode(m event.SamplingMode) {
	g.mode.Store(uint32(m))
	g.apply()
}

// Mode returns the current sampling mode.
func (g *Gate) Mode() event.SamplingMode {
	return event.SamplingMode(g.mode.Load())
}

// SetHold keeps sampling running regardless of motion while on. Releasing
// the hold stops the timer if the last reported level was no motion.
func (g *Gate) SetHold(on bool) {
	g.hold.Store(on)
	g.apply()
}

// Forced reports whether motion-driven stops are suppressed.
func (g *Gate) Forced() bool {
	return g.Mode() == event.SamplingOn || g.hold.Load()
}

// Motion is the last level seen on the motion line.
func (g *Gate) Motion() bool { return g.motion.Load() }

// Running reports whether the sampling timer is armed.
func (g *Gate) Running() bool { return g.timer.Running() }

func (g *Gate) apply() {
	var want bool
	switch g.Mode() {
	case event.SamplingOn:
		want = true
	case event.SamplingOff:
		want = false
	default:
		want = g.motion.Load() || g.hold.Load()
	}

	if want {
		g.timer.Start()
	} else {
		g.timer.Stop()
	}
}
