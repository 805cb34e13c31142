// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.80665

// InertialSample represents a single raw accel+gyro sample.
// Timestamp is a monotonic read counter, not wall time.
type InertialSample struct {
	Timestamp uint32 `json:"timestamp"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// MagneticSample is a magnetometer reading in µT.
type MagneticSample struct {
	Timestamp uint32  `json:"timestamp"`
	Mx        float64 `json:"mx"`
	My        float64 `json:"my"`
	Mz        float64 `json:"mz"`
}

// AccelScale returns m/s² per LSB for a 16-bit accelerometer at the given
// full-scale range in g (2, 4, 8 or 16).
func AccelScale(rangeG int) float64 {
	return StandardGravity * float64(rangeG) / float64(1<<15)
}

// AccelRangeG maps the MPU9250 range code (0-3) to its full scale in g.
func AccelRangeG(code byte) int {
	return []int{2, 4, 8, 16}[code&0x03]
}

// ForceMagnitude is the norm of the acceleration vector in m/s².
func ForceMagnitude(s InertialSample, scale float64) float64 {
	ax := float64(s.Ax) * scale
	ay := float64(s.Ay) * scale
	az := float64(s.Az) * scale
	return math.Sqrt(ax*ax + ay*ay + az*az)
}

// Norm returns |B| in µT.
func (m MagneticSample) Norm() float64 {
	return math.Sqrt(m.Mx*m.Mx + m.My*m.My + m.Mz*m.Mz)
}
