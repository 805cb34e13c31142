// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/shot_node/internal/imu"
)

type mpu9250Reader struct {
	dev *mpu9250.MPU9250
}

// NewMPU9250 brings up the MPU9250 on spiDev with chip select csPin and
// applies the accel and gyro range codes (0-3).
func NewMPU9250(spiDev, csPin string, accelRange, gyroRange byte) (InertialReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("imu: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("imu: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("imu: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("imu: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("imu: initialization: %w", err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("imu: set accel range: %w", err)
	}
	log.Printf("imu: accelerometer range set to %d (±%dg)", accelRange, imu.AccelRangeG(accelRange))

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("imu: set gyro range: %w", err)
	}
	log.Printf("imu: gyroscope range set to %d (±%d°/s)", gyroRange, []int{250, 500, 1000, 2000}[gyroRange&3])

	if _, err := dev.SelfTest(); err != nil {
		log.Warnf("imu: self-test failed: %v", err)
	} else {
		log.Println("imu: self-test passed")
	}

	// Calibrate assumes the board is at rest.
	if err := dev.Calibrate(); err != nil {
		log.Warnf("imu: calibration failed: %v", err)
	}

	return &mpu9250Reader{dev: dev}, nil
}

func (r *mpu9250Reader) ReadInertial() (imu.InertialSample, error) {
	var s imu.InertialSample
	var err error

	if s.Ax, err = r.dev.GetAccelerationX(); err != nil {
		return imu.InertialSample{}, fmt.Errorf("imu accel X: %w", err)
	}
	if s.Ay, err = r.dev.GetAccelerationY(); err != nil {
		return imu.InertialSample{}, fmt.Errorf("imu accel Y: %w", err)
	}
	if s.Az, err = r.dev.GetAccelerationZ(); err != nil {
		return imu.InertialSample{}, fmt.Errorf("imu accel Z: %w", err)
	}

	if s.Gx, err = r.dev.GetRotationX(); err != nil {
		return imu.InertialSample{}, fmt.Errorf("imu gyro X: %w", err)
	}
	if s.Gy, err = r.dev.GetRotationY(); err != nil {
		return imu.InertialSample{}, fmt.Errorf("imu gyro Y: %w", err)
	}
	if s.Gz, err = r.dev.GetRotationZ(); err != nil {
		return imu.InertialSample{}, fmt.Errorf("imu gyro Z: %w", err)
	}

	return s, nil
}
