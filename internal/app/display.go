// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/semaphore"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// the display shares the bus with the magnetometer; it gives way quickly
const displayLockTimeout = 20 * time.Millisecond

const ssd1306Addr = 0x3C

// Display shows the node status on an SSD1306 OLED.
type Display struct {
	bus  i2c.BusCloser
	dev  *ssd1306.Dev
	lock *semaphore.Weighted

	mu       sync.Mutex
	lastShot *ShotInfo
}

// NewDisplay opens the OLED at addr on busName. lock is the semaphore
// guarding the shared bus and may be nil.
func NewDisplay(busName string, addr uint16, lock *semaphore.Weighted) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	// the upstream driver always talks to 0x3C
	if addr != ssd1306Addr {
		log.Warnf("display: DISPLAY_I2C_ADDR 0x%02X ignored, driver uses 0x%02X", addr, ssd1306Addr)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", ssd1306Addr)

	d := &Display{bus: bus, dev: dev, lock: lock}
	if err := d.draw(context.Background(), renderLines("Shot node", "Starting...")); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d, nil
}

// Send remembers the last shot for the next refresh.
func (d *Display) Send(r Report) {
	if r.Kind != KindShot || r.Shot == nil {
		return
	}
	shot := *r.Shot
	d.mu.Lock()
	d.lastShot = &shot
	d.mu.Unlock()
}

// Run redraws the status every interval until ctx is done.
func (d *Display) Run(ctx context.Context, status func() Status, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer d.bus.Close()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		var shot *ShotInfo
		if d.lastShot != nil {
			s := *d.lastShot
			shot = &s
		}
		d.mu.Unlock()

		if err := d.draw(ctx, renderStatus(status(), shot)); err != nil {
			log.Debugf("display: error updating: %v", err)
		}
	}
}

func (d *Display) draw(ctx context.Context, img *image1bit.VerticalLSB) error {
	if d.lock != nil {
		lockCtx, cancel := context.WithTimeout(ctx, displayLockTimeout)
		defer cancel()
		if err := d.lock.Acquire(lockCtx, 1); err != nil {
			return fmt.Errorf("bus busy: %w", err)
		}
		defer d.lock.Release(1)
	}
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func renderStatus(st Status, shot *ShotInfo) *image1bit.VerticalLSB {
	if st.Mode == ModeCalibration.String() {
		x, y, z := st.Calibration.Ranges()
		return renderLines(
			"CALIBRATING",
			fmt.Sprintf("X:%6.1f", x),
			fmt.Sprintf("Y:%6.1f", y),
			fmt.Sprintf("Z:%6.1f", z),
		)
	}

	sampling := "idle"
	if st.Sampling {
		sampling = "on"
	}
	lines := []string{
		fmt.Sprintf("Shots: %d", st.Shots),
		fmt.Sprintf("Smp:%s (%s)", sampling, st.SamplingMode),
	}
	if shot != nil {
		lines = append(lines, fmt.Sprintf("Peak:%.0f", shot.PeakEnergy))
	} else {
		lines = append(lines, "Waiting...")
	}
	if st.Fix != nil {
		lines = append(lines, fmt.Sprintf("%.4f %.4f", st.Fix.Latitude, st.Fix.Longitude))
	}
	return renderLines(lines...)
}

// renderLines draws up to four lines of 7x13 text.
func renderLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i == 4 {
			break
		}
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}
