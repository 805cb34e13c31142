// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"time"

	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/hwtimer"
)

// The sampling clock runs from the 12 kHz HFRC, one tick every 83 µs.
const (
	ClockHz    = 12000
	TickPeriod = 83 * time.Microsecond
)

// PeriodTicks converts a sampling period in milliseconds to clock ticks.
// 10 ms (100 Hz) gives 120 ticks.
func PeriodTicks(periodMS uint32) uint32 {
	ticks := periodMS * 1000 / uint32(TickPeriod/time.Microsecond)
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

// Scheduler is the periodic sampling trigger. Every expiry posts a
// SamplingTrigger; the bus read itself happens in the consumer.
type Scheduler struct {
	*hwtimer.Timer
	ticks uint32
}

// NewScheduler creates a stopped scheduler for the given period.
func NewScheduler(periodMS uint32, post hwtimer.Poster) *Scheduler {
	ticks := PeriodTicks(periodMS)
	period := time.Duration(ticks) * TickPeriod
	return &Scheduler{
		Timer: hwtimer.New("sampling", period, post, func(now time.Time) event.Event {
			return event.SamplingTrigger{At: now}
		}),
		ticks: ticks,
	}
}

// Ticks is the programmed timer period in clock ticks.
func (s *Scheduler) Ticks() uint32 { return s.ticks }
