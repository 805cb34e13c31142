// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/shot_node/internal/gps"
	"github.com/relabs-tech/shot_node/internal/magcal"
)

// ReportKind says what a Report carries.
type ReportKind string

const (
	KindShot        ReportKind = "shot"
	KindMode        ReportKind = "mode"
	KindCalibration ReportKind = "calibration"
)

// ShotInfo describes one detected shot.
type ShotInfo struct {
	Number     uint64  `json:"number"`
	PeakEnergy float64 `json:"peak_energy"`
	PeakForce  float64 `json:"peak_force"` // m/s²
	Samples    int     `json:"samples"`    // sampling ticks from trigger to completion
}

// Report is what the node tells the outside world. Every report gets a
// fresh ID so consumers can de-duplicate retransmissions.
type Report struct {
	ID           string              `json:"id"`
	Kind         ReportKind          `json:"kind"`
	Time         time.Time           `json:"time"`
	Mode         string              `json:"mode"`
	SamplingMode string              `json:"sampling_mode"`
	Shot         *ShotInfo           `json:"shot,omitempty"`
	Calibration  *magcal.Calibration `json:"calibration,omitempty"`
	Fix          *gps.Fix            `json:"fix,omitempty"`
}

func newReport(kind ReportKind, now time.Time) Report {
	return Report{
		ID:   uuid.NewString(),
		Kind: kind,
		Time: now.UTC(),
	}
}

// Sink receives reports from the dispatcher goroutine. Send must not block.
type Sink interface {
	Send(r Report)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r Report)

func (f SinkFunc) Send(r Report) { f(r) }
