// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"time"

	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/hwtimer"
)

// NewBlinker creates the status LED timer. Each expiry posts a LedTick;
// the node toggles the LED when it handles it.
func NewBlinker(period time.Duration, post hwtimer.Poster) *hwtimer.Timer {
	return hwtimer.New("led", period, post, func(time.Time) event.Event {
		return event.LedTick{}
	})
}
