// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package event carries the node's messages from interrupt-like producers
// (timers, GPIO watchers) and task producers (gesture callbacks, web API)
// to the single consumer that owns application state.
package event

import (
	"fmt"
	"time"
)

// Tag identifies an event variant and keys the dispatch table.
type Tag uint8

const (
	TagLedTick Tag = iota
	TagSamplingTrigger
	TagSamplingStart
	TagSamplingStop
	TagCalibrateStart
	TagCalibrateStop
	TagSamplingModeChange
)

var tagNames = map[Tag]string{
	TagLedTick:            "LedTick",
	TagSamplingTrigger:    "SamplingTrigger",
	TagSamplingStart:      "SamplingStart",
	TagSamplingStop:       "SamplingStop",
	TagCalibrateStart:     "CalibrateStart",
	TagCalibrateStop:      "CalibrateStop",
	TagSamplingModeChange: "SamplingModeChange",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Event is the closed set of messages. The unexported method keeps other
// packages from adding variants.
type Event interface {
	Tag() Tag
	sealed()
}

// LedTick toggles the status indicator.
type LedTick struct{}

// SamplingTrigger is posted on every sampling timer expiry.
type SamplingTrigger struct {
	At time.Time
}

// SamplingStart is posted when the motion line reports motion.
type SamplingStart struct{}

// SamplingStop is posted when the motion line reports no motion.
type SamplingStop struct{}

// CalibrateStart enters magnetometer calibration mode.
type CalibrateStart struct{}

// CalibrateStop leaves calibration mode and persists the result.
type CalibrateStop struct{}

// SamplingMode selects how the motion gate drives the sampling timer.
type SamplingMode uint8

const (
	// SamplingAuto follows the motion line.
	SamplingAuto SamplingMode = iota
	// SamplingOn keeps sampling regardless of motion.
	SamplingOn
	// SamplingOff stops sampling until the mode changes.
	SamplingOff
)

func (m SamplingMode) String() string {
	switch m {
	case SamplingAuto:
		return "auto"
	case SamplingOn:
		return "on"
	case SamplingOff:
		return "off"
	}
	return fmt.Sprintf("SamplingMode(%d)", uint8(m))
}

// ParseSamplingMode accepts "auto", "on" or "off".
func ParseSamplingMode(s string) (SamplingMode, error) {
	switch s {
	case "auto":
		return SamplingAuto, nil
	case "on":
		return SamplingOn, nil
	case "off":
		return SamplingOff, nil
	}
	return SamplingAuto, fmt.Errorf("unknown sampling mode %q (want auto, on or off)", s)
}

// SamplingModeChange requests a new sampling mode.
type SamplingModeChange struct {
	Mode SamplingMode
}

func (LedTick) Tag() Tag            { return TagLedTick }
func (SamplingTrigger) Tag() Tag    { return TagSamplingTrigger }
func (SamplingStart) Tag() Tag      { return TagSamplingStart }
func (SamplingStop) Tag() Tag       { return TagSamplingStop }
func (CalibrateStart) Tag() Tag     { return TagCalibrateStart }
func (CalibrateStop) Tag() Tag      { return TagCalibrateStop }
func (SamplingModeChange) Tag() Tag { return TagSamplingModeChange }

func (LedTick) sealed()            {}
func (SamplingTrigger) sealed()    {}
func (SamplingStart) sealed()      {}
func (SamplingStop) sealed()       {}
func (CalibrateStart) sealed()     {}
func (CalibrateStop) sealed()      {}
func (SamplingModeChange) sealed() {}
