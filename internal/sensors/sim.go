// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/shot_node/internal/imu"
)

const (
	simBurstLength = 60 * time.Millisecond
	simBurstG      = 6.0
)

type simInertial struct {
	start time.Time
	now   func() time.Time
	scale float64 // m/s² per LSB
	every time.Duration
}

// NewSimInertial creates a reader that rests at 1 g on Z and produces a
// short recoil burst along X every shotEvery.
func NewSimInertial(scale float64, shotEvery time.Duration) InertialReader {
	return &simInertial{start: time.Now(), now: time.Now, scale: scale, every: shotEvery}
}

func (m *simInertial) ReadInertial() (imu.InertialSample, error) {
	elapsed := m.now().Sub(m.start)

	ax := 0.0
	if m.every > 0 {
		phase := elapsed % m.every
		if phase < simBurstLength {
			ax = simBurstG * imu.StandardGravity * math.Sin(math.Pi*float64(phase)/float64(simBurstLength))
		}
	}
	wobble := 0.05 * imu.StandardGravity * math.Sin(elapsed.Seconds()*3)

	return imu.InertialSample{
		Ax: m.counts(ax),
		Ay: m.counts(wobble),
		Az: m.counts(imu.StandardGravity),
	}, nil
}

func (m *simInertial) counts(v float64) int16 {
	c := math.Round(v / m.scale)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, c)))
}

type simMagnetic struct {
	start time.Time
	now   func() time.Time
}

// NewSimMagnetic creates a reader for a board slowly turning in a 45 µT
// horizontal field, seen through a fixed hard-iron offset.
func NewSimMagnetic() MagneticReader {
	return &simMagnetic{start: time.Now(), now: time.Now}
}

func (m *simMagnetic) ReadMagnetic() (imu.MagneticSample, error) {
	a := m.now().Sub(m.start).Seconds() * 0.5

	return imu.MagneticSample{
		Mx: 45*math.Cos(a) + 12,
		My: 45*math.Sin(a) - 8,
		Mz: 20*math.Sin(a*0.3) + 5,
	}, nil
}
