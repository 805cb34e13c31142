// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/shot_node/internal/imu"
)

// HMC5983 registers
const (
	hmcRegConfigA = 0x00
	hmcRegConfigB = 0x01
	hmcRegMode    = 0x02
	hmcRegDataX   = 0x03 // X, Z, Y; MSB first
	hmcRegIDA     = 0x0A
)

// CRA: temperature compensation, 2-sample average, 220 Hz output rate.
const hmcConfigA = 0x80 | 0x01<<5 | 0x07<<2

const hmcModeContinuous = 0x00

// hmcOverflow is what a saturated axis reads.
const hmcOverflow = -4096

// LSB per gauss for each CRB gain code.
var hmcGainLSB = [8]float64{1370, 1090, 820, 660, 440, 390, 330, 230}

// ErrMagOverflow is returned when an axis saturates at the current gain.
var ErrMagOverflow = errors.New("mag: axis overflow")

// HMC5983 is the magnetometer on the I2C bus.
type HMC5983 struct {
	bus i2c.BusCloser
	dev *i2c.Dev
	lsb float64
}

// NewHMC5983 opens busName, checks the identification registers and puts
// the device in continuous mode with the given gain code (0-7).
func NewHMC5983(busName string, addr uint16, gain byte) (*HMC5983, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mag: periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("mag: i2c open bus %s: %w", busName, err)
	}

	h := &HMC5983{
		bus: bus,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
		lsb: hmcGainLSB[gain&0x07],
	}

	id := make([]byte, 3)
	if err := h.dev.Tx([]byte{hmcRegIDA}, id); err != nil {
		bus.Close()
		return nil, fmt.Errorf("mag: read id: %w", err)
	}
	if string(id) != "H43" {
		bus.Close()
		return nil, fmt.Errorf("mag: unexpected id %q at 0x%02X", id, addr)
	}

	for _, w := range [][]byte{
		{hmcRegConfigA, hmcConfigA},
		{hmcRegConfigB, (gain & 0x07) << 5},
		{hmcRegMode, hmcModeContinuous},
	} {
		if err := h.dev.Tx(w, nil); err != nil {
			bus.Close()
			return nil, fmt.Errorf("mag: write reg 0x%02X: %w", w[0], err)
		}
	}

	log.Printf("mag: HMC5983 ready on bus %s addr 0x%02X (gain %d, %.0f LSB/G)", busName, addr, gain&0x07, h.lsb)
	return h, nil
}

func (h *HMC5983) ReadMagnetic() (imu.MagneticSample, error) {
	buf := make([]byte, 6)
	if err := h.dev.Tx([]byte{hmcRegDataX}, buf); err != nil {
		return imu.MagneticSample{}, fmt.Errorf("mag: read data: %w", err)
	}
	return decodeHMC5983(buf, h.lsb)
}

func (h *HMC5983) Close() error {
	return h.bus.Close()
}

// decodeHMC5983 converts the X, Z, Y register block to µT.
func decodeHMC5983(buf []byte, lsbPerGauss float64) (imu.MagneticSample, error) {
	x := int16(binary.BigEndian.Uint16(buf[0:2]))
	z := int16(binary.BigEndian.Uint16(buf[2:4]))
	y := int16(binary.BigEndian.Uint16(buf[4:6]))
	if x == hmcOverflow || y == hmcOverflow || z == hmcOverflow {
		return imu.MagneticSample{}, ErrMagOverflow
	}

	// 1 gauss = 100 µT
	return imu.MagneticSample{
		Mx: float64(x) * 100 / lsbPerGauss,
		My: float64(y) * 100 / lsbPerGauss,
		Mz: float64(z) * 100 / lsbPerGauss,
	}, nil
}
