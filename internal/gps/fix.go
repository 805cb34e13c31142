// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

// Fix is the last valid position, attached to shot reports.
type Fix struct {
	Time       string  `json:"time"`
	Date       string  `json:"date"`
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
}

// Tracker keeps the latest valid RMC fix.
type Tracker struct {
	mu     sync.RWMutex
	latest Fix
	valid  bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Feed parses one NMEA line. It returns true when the line was a valid RMC
// fix and replaced the latest one.
func (t *Tracker) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		log.Debugf("gps: parse: %v", err)
		return false
	}

	m, ok := sentence.(nmea.RMC)
	if !ok || m.Validity != nmea.ValidRMC {
		return false
	}

	t.mu.Lock()
	t.latest = Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
	}
	t.valid = true
	t.mu.Unlock()
	return true
}

// Latest returns the last valid fix, or false if none has been seen.
func (t *Tracker) Latest() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.valid
}

// Run feeds every line read from r until r fails or ctx is done.
func (t *Tracker) Run(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gps: read: %w", err)
		}
		t.Feed(line)
	}
	return nil
}

// RunSerial opens the receiver's serial port and runs the tracker on it.
// The port is closed when ctx is done.
func (t *Tracker) RunSerial(ctx context.Context, portName string, baud int) error {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", portName, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", portName, baud)

	go func() {
		<-ctx.Done()
		port.Close()
	}()
	return t.Run(ctx, port)
}
