// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWait bounds each WaitForEdge so WatchLine notices cancellation.
const edgeWait = 200 * time.Millisecond

// WatchLine configures pin as an input with interrupts on both edges and
// calls onLevel with the current level once, then after every edge, until
// ctx is done. It runs in the caller's goroutine.
func WatchLine(ctx context.Context, name string, pull gpio.Pull, onLevel func(high bool)) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gpio: periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return fmt.Errorf("gpio: pin %q not found", name)
	}
	if err := p.In(pull, gpio.BothEdges); err != nil {
		return fmt.Errorf("gpio: %s as input: %w", name, err)
	}
	defer p.Halt()

	onLevel(p.Read() == gpio.High)
	for ctx.Err() == nil {
		if p.WaitForEdge(edgeWait) {
			onLevel(p.Read() == gpio.High)
		}
	}
	return nil
}

// Indicator is an on/off output such as an LED.
type Indicator interface {
	Set(on bool) error
	Toggle() error
}

type pinIndicator struct {
	mu  sync.Mutex
	pin gpio.PinOut
	on  bool
}

// NewPinIndicator drives the named GPIO, starting low.
func NewPinIndicator(name string) (Indicator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio: pin %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio: %s as output: %w", name, err)
	}
	return &pinIndicator{pin: p}, nil
}

func (i *pinIndicator) Set(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.pin.Out(gpio.Level(on)); err != nil {
		return err
	}
	i.on = on
	return nil
}

func (i *pinIndicator) Toggle() error {
	i.mu.Lock()
	on := !i.on
	i.mu.Unlock()
	return i.Set(on)
}

// LogIndicator stands in for an LED when running without hardware.
type LogIndicator struct {
	Name string

	mu sync.Mutex
	on bool
}

func (l *LogIndicator) Set(on bool) error {
	l.mu.Lock()
	l.on = on
	l.mu.Unlock()
	log.WithField("led", l.Name).Debugf("led: %v", on)
	return nil
}

func (l *LogIndicator) Toggle() error {
	l.mu.Lock()
	on := !l.on
	l.mu.Unlock()
	return l.Set(on)
}

// On reports the last level set.
func (l *LogIndicator) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
