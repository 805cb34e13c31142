// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package shotdetect classifies bursts of acceleration energy as shots.
//
// Each sample is pushed into a fixed-length window, the window is convolved
// with a reference kernel and the centre of the convolution is summed into
// an energy figure. A three-state machine with hysteresis turns the energy
// into a single pulse per shot:
//
//	Idle       -- E > trigger --> InProgress
//	InProgress -- E < trigger --> Completed
//	Completed  -- E < idle    --> Idle (shot reported)
//
// Comparisons are strict; equality never transitions.
package shotdetect

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// State of the detector.
type State uint8

const (
	Idle State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Detector holds the window, scratch buffer and state. It is not safe for
// concurrent use; the node's consumer goroutine owns it.
type Detector struct {
	state     State
	trigger   float64
	idle      float64
	reference []float64
	sampled   []float64
	convolved []float64
	energy    float64
}

// New creates an idle detector. The window length is len(reference).
func New(reference []float64, trigger, idle float64) (*Detector, error) {
	n := len(reference)
	if n == 0 {
		return nil, errors.New("shotdetect: empty reference signal")
	}
	ref := make([]float64, n)
	copy(ref, reference)
	return &Detector{
		state:     Idle,
		trigger:   trigger,
		idle:      idle,
		reference: ref,
		sampled:   make([]float64, n),
		convolved: make([]float64, 2*n-1),
	}, nil
}

// Sample pushes v into the window, discarding the oldest entry.
func (d *Detector) Sample(v float64) {
	copy(d.sampled, d.sampled[1:])
	d.sampled[len(d.sampled)-1] = v
}

// Step recomputes the energy over the current window and advances the
// state machine. It returns true only on Completed -> Idle.
func (d *Detector) Step() bool {
	n := len(d.reference)
	convolve(d.convolved, d.reference, d.sampled)

	offset := n / 2
	d.energy = floats.Sum(d.convolved[offset : offset+n])

	switch d.state {
	case Idle:
		if d.energy > d.trigger {
			d.state = InProgress
		}
	case InProgress:
		if d.energy < d.trigger {
			d.state = Completed
		}
	case Completed:
		if d.energy < d.idle {
			d.state = Idle
			return true
		}
	}
	return false
}

// Process is Sample followed by Step.
func (d *Detector) Process(v float64) bool {
	d.Sample(v)
	return d.Step()
}

// Reset returns to Idle with an empty window.
func (d *Detector) Reset() {
	d.state = Idle
	d.energy = 0
	for i := range d.sampled {
		d.sampled[i] = 0
	}
}

func (d *Detector) State() State { return d.state }

// Energy from the last Step.
func (d *Detector) Energy() float64 { return d.energy }

// Window returns a copy of the window, oldest first.
func (d *Detector) Window() []float64 {
	w := make([]float64, len(d.sampled))
	copy(w, d.sampled)
	return w
}

func (d *Detector) Len() int { return len(d.reference) }

func (d *Detector) Thresholds() (trigger, idle float64) { return d.trigger, d.idle }

// convolve writes the full linear convolution of a and b into dst, which
// must hold len(a)+len(b)-1 values.
func convolve(dst, a, b []float64) {
	for k := range dst {
		dst[k] = 0
	}
	for i, av := range a {
		for j, bv := range b {
			dst[i+j] += av * bv
		}
	}
}
