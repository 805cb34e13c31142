// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/relabs-tech/shot_node/internal/imu"
	"github.com/relabs-tech/shot_node/internal/magcal"
)

// DefaultLockTimeout bounds the wait for the shared bus.
const DefaultLockTimeout = 5 * time.Millisecond

// InertialReader reads one accel+gyro sample. Timestamp is filled by the Adapter.
type InertialReader interface {
	ReadInertial() (imu.InertialSample, error)
}

// MagneticReader reads one uncorrected magnetometer sample in µT.
type MagneticReader interface {
	ReadMagnetic() (imu.MagneticSample, error)
}

// Reading is what one sampling tick produced. A sample that could not be
// refreshed is the previous one, with its Fresh flag false.
type Reading struct {
	Inertial      imu.InertialSample
	Magnetic      imu.MagneticSample
	InertialFresh bool
	MagneticFresh bool
}

// Stats counts adapter outcomes.
type Stats struct {
	Reads          uint64 `json:"reads"`
	InertialErrors uint64 `json:"inertial_errors"`
	MagneticErrors uint64 `json:"magnetic_errors"`
	LockMisses     uint64 `json:"lock_misses"`
}

// Adapter pulls samples from the drivers while holding the bus, and keeps
// the last good sample of each kind. It must only be used from the
// consumer goroutine.
type Adapter struct {
	inertial    InertialReader
	magnetic    MagneticReader
	bus         *semaphore.Weighted
	lockTimeout time.Duration

	lastInertial imu.InertialSample
	lastMagnetic imu.MagneticSample
	inertialSeq  uint32
	magneticSeq  uint32

	stats Stats
}

// NewAdapter wires the drivers to a shared bus semaphore. bus may be nil
// when nothing else uses the bus.
func NewAdapter(inertial InertialReader, magnetic MagneticReader, bus *semaphore.Weighted, lockTimeout time.Duration) *Adapter {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Adapter{
		inertial:    inertial,
		magnetic:    magnetic,
		bus:         bus,
		lockTimeout: lockTimeout,
	}
}

// Read samples both sensors. When cal is non-nil and initialised the
// magnetometer sample is corrected before it is returned.
//
// If the bus cannot be acquired within the lock timeout nothing is read and
// the previous samples are returned. A failed read keeps the previous
// sample for that sensor. Neither is an error for the caller.
func (a *Adapter) Read(ctx context.Context, cal *magcal.Calibration) Reading {
	r := Reading{
		Inertial: a.lastInertial,
		Magnetic: a.exposed(a.lastMagnetic, cal),
	}

	if a.bus != nil {
		lockCtx, cancel := context.WithTimeout(ctx, a.lockTimeout)
		err := a.bus.Acquire(lockCtx, 1)
		cancel()
		if err != nil {
			a.stats.LockMisses++
			log.Debugf("sensors: bus busy, sample skipped: %v", err)
			return r
		}
		defer a.bus.Release(1)
	}
	a.stats.Reads++

	if s, err := a.inertial.ReadInertial(); err != nil {
		a.stats.InertialErrors++
		log.WithField("sensor", "imu").Warnf("sensors: inertial read error: %v", err)
	} else {
		s.Timestamp = a.inertialSeq
		a.inertialSeq++
		a.lastInertial = s
		r.Inertial = s
		r.InertialFresh = true
	}

	if s, err := a.magnetic.ReadMagnetic(); err != nil {
		a.stats.MagneticErrors++
		log.WithField("sensor", "mag").Warnf("sensors: magnetic read error: %v", err)
	} else {
		s.Timestamp = a.magneticSeq
		a.magneticSeq++
		a.lastMagnetic = s
		r.Magnetic = a.exposed(s, cal)
		r.MagneticFresh = true
	}

	return r
}

// Stats returns a copy of the counters.
func (a *Adapter) Stats() Stats { return a.stats }

func (a *Adapter) exposed(s imu.MagneticSample, cal *magcal.Calibration) imu.MagneticSample {
	if cal == nil || !cal.Initialised {
		return s
	}
	return cal.Apply(s)
}
