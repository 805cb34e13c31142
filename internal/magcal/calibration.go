// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package magcal derives magnetometer hard-iron offsets and per-axis scale
// factors from running min/max values, and persists them.
package magcal

import (
	"gonum.org/v1/gonum/floats"

	"github.com/relabs-tech/shot_node/internal/imu"
)

// Calibration is the persisted hard-iron record.
type Calibration struct {
	Initialised bool `json:"initialised"`

	// Hard-iron offsets (µT)
	Ox float64 `json:"ox"`
	Oy float64 `json:"oy"`
	Oz float64 `json:"oz"`

	// Per-axis scale factors
	Sx float64 `json:"sx"`
	Sy float64 `json:"sy"`
	Sz float64 `json:"sz"`

	MxMin float64 `json:"mx_min"`
	MxMax float64 `json:"mx_max"`
	MyMin float64 `json:"my_min"`
	MyMax float64 `json:"my_max"`
	MzMin float64 `json:"mz_min"`
	MzMax float64 `json:"mz_max"`
}

// Reset zeroes the whole record, min/max included. Accumulation then starts
// from zero rather than from the first sample.
func (c *Calibration) Reset() {
	*c = Calibration{}
}

// Update folds one uncorrected sample into the running min/max and
// recomputes offsets and scales.
//
// An axis with zero range gets scale 1.0, so the record never holds NaN or
// Inf even before every axis has moved.
func (c *Calibration) Update(s imu.MagneticSample) {
	c.MxMin, c.MxMax = minMax(c.MxMin, c.MxMax, s.Mx)
	c.MyMin, c.MyMax = minMax(c.MyMin, c.MyMax, s.My)
	c.MzMin, c.MzMax = minMax(c.MzMin, c.MzMax, s.Mz)

	c.derive()
}

// Finalize marks the record as usable. Offsets and scales are derived from
// the min/max again, so a session that saw no samples ends with unit
// scales instead of zeros.
func (c *Calibration) Finalize() {
	c.derive()
	c.Initialised = true
}

func (c *Calibration) derive() {
	c.Ox = (c.MxMin + c.MxMax) / 2
	c.Oy = (c.MyMin + c.MyMax) / 2
	c.Oz = (c.MzMin + c.MzMax) / 2

	ranges := []float64{
		c.MxMax - c.MxMin,
		c.MyMax - c.MyMin,
		c.MzMax - c.MzMin,
	}
	maxRange := floats.Max(ranges)

	c.Sx = scale(maxRange, ranges[0])
	c.Sy = scale(maxRange, ranges[1])
	c.Sz = scale(maxRange, ranges[2])
}

// Apply returns s with offsets removed and scales applied.
func (c *Calibration) Apply(s imu.MagneticSample) imu.MagneticSample {
	s.Mx = (s.Mx - c.Ox) * c.Sx
	s.My = (s.My - c.Oy) * c.Sy
	s.Mz = (s.Mz - c.Oz) * c.Sz
	return s
}

// Ranges returns the observed span per axis.
func (c *Calibration) Ranges() (x, y, z float64) {
	return c.MxMax - c.MxMin, c.MyMax - c.MyMin, c.MzMax - c.MzMin
}

func minMax(lo, hi, v float64) (float64, float64) {
	if v < lo {
		lo = v
	}
	if v > hi {
		hi = v
	}
	return lo, hi
}

func scale(maxRange, axisRange float64) float64 {
	if axisRange == 0 {
		return 1.0
	}
	return maxRange / axisRange
}
