// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/gps"
	"github.com/relabs-tech/shot_node/internal/imu"
	"github.com/relabs-tech/shot_node/internal/magcal"
	"github.com/relabs-tech/shot_node/internal/sampling"
	"github.com/relabs-tech/shot_node/internal/sensors"
	"github.com/relabs-tech/shot_node/internal/shotdetect"
)

// Mode is the application mode.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeCalibration
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeCalibration:
		return "calibration"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// State is owned by the dispatcher goroutine.
type State struct {
	Mode             Mode
	SamplingAlwaysOn bool
}

// SensorReader is satisfied by *sensors.Adapter.
type SensorReader interface {
	Read(ctx context.Context, cal *magcal.Calibration) sensors.Reading
}

// PeriodSetter changes the status LED blink period.
type PeriodSetter interface {
	SetPeriod(d time.Duration)
}

// FixSource is satisfied by *gps.Tracker.
type FixSource interface {
	Latest() (gps.Fix, bool)
}

// Options wires a Node. Queue, Sensors, Gate, Detector and Store are
// required; the rest may be left nil.
type Options struct {
	Queue       *event.Queue
	Sensors     SensorReader
	Gate        *sampling.Gate
	Detector    *shotdetect.Detector
	Store       magcal.Store
	Calibration magcal.Calibration
	AccelScale  float64

	StatusLED        sensors.Indicator
	SamplingLED      sensors.Indicator
	Blinker          PeriodSetter
	BlinkNormal      time.Duration
	BlinkCalibration time.Duration

	Fix   FixSource
	Sinks []Sink
	Now   func() time.Time
}

// Status is a snapshot of the node for the web API and display.
type Status struct {
	Mode         string             `json:"mode"`
	SamplingMode string             `json:"sampling_mode"`
	AlwaysOn     bool               `json:"sampling_always_on"`
	Sampling     bool               `json:"sampling"`
	Motion       bool               `json:"motion"`
	Detector     string             `json:"detector"`
	Energy       float64            `json:"energy"`
	Shots        uint64             `json:"shots"`
	QueueDropped uint64             `json:"queue_dropped"`
	Sensors      *sensors.Stats     `json:"sensors,omitempty"`
	Calibration  magcal.Calibration `json:"calibration"`
	Fix          *gps.Fix           `json:"fix,omitempty"`
}

// Node is the application: it owns the mode, the detector and the
// calibration record, and reacts to events through a dispatch table.
type Node struct {
	q          *event.Queue
	dispatcher *event.Dispatcher
	sensors    SensorReader
	gate       *sampling.Gate
	det        *shotdetect.Detector
	store      magcal.Store
	accelScale float64

	statusLED        sensors.Indicator
	samplingLED      sensors.Indicator
	blinker          PeriodSetter
	blinkNormal      time.Duration
	blinkCalibration time.Duration

	fix   FixSource
	sinks []Sink
	now   func() time.Time

	state State
	cal   magcal.Calibration
	shots uint64

	// shot in progress
	peakEnergy  float64
	peakForce   float64
	shotSamples int

	mu     sync.RWMutex
	status Status
}

// NewNode builds the node and registers one handler per event tag.
func NewNode(o Options) *Node {
	if o.AccelScale == 0 {
		o.AccelScale = imu.AccelScale(16)
	}
	if o.BlinkNormal == 0 {
		o.BlinkNormal = time.Second
	}
	if o.BlinkCalibration == 0 {
		o.BlinkCalibration = 100 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	n := &Node{
		q:                o.Queue,
		dispatcher:       event.NewDispatcher(o.Queue),
		sensors:          o.Sensors,
		gate:             o.Gate,
		det:              o.Detector,
		store:            o.Store,
		accelScale:       o.AccelScale,
		statusLED:        o.StatusLED,
		samplingLED:      o.SamplingLED,
		blinker:          o.Blinker,
		blinkNormal:      o.BlinkNormal,
		blinkCalibration: o.BlinkCalibration,
		fix:              o.Fix,
		sinks:            o.Sinks,
		now:              o.Now,
		cal:              o.Calibration,
	}
	n.state.SamplingAlwaysOn = o.Gate.Mode() == event.SamplingOn

	n.dispatcher.Handle(event.TagLedTick, n.onLedTick)
	n.dispatcher.Handle(event.TagSamplingTrigger, n.onSamplingTrigger)
	n.dispatcher.Handle(event.TagSamplingStart, n.onSamplingStart)
	n.dispatcher.Handle(event.TagSamplingStop, n.onSamplingStop)
	n.dispatcher.Handle(event.TagCalibrateStart, n.onCalibrateStart)
	n.dispatcher.Handle(event.TagCalibrateStop, n.onCalibrateStop)
	n.dispatcher.Handle(event.TagSamplingModeChange, n.onSamplingModeChange)

	n.refreshStatus()
	return n
}

// Run dispatches events until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	return n.dispatcher.Run(ctx)
}

// Drain handles every queued event on the caller's goroutine.
func (n *Node) Drain(ctx context.Context) int {
	return n.dispatcher.Drain(ctx)
}

// AddSink registers another report consumer. Call before Run.
func (n *Node) AddSink(s Sink) {
	n.sinks = append(n.sinks, s)
}

// Status returns the latest snapshot. Safe from any goroutine.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// State and Calibration must only be called from the dispatcher goroutine
// or after it has stopped.
func (n *Node) State() State                    { return n.state }
func (n *Node) Calibration() magcal.Calibration { return n.cal }

func (n *Node) onLedTick(ctx context.Context, ev event.Event) {
	if n.statusLED == nil {
		return
	}
	if err := n.statusLED.Toggle(); err != nil {
		log.Debugf("node: status led: %v", err)
	}
}

func (n *Node) onSamplingTrigger(ctx context.Context, ev event.Event) {
	switch n.state.Mode {
	case ModeCalibration:
		// the calibrator needs uncorrected values
		r := n.sensors.Read(ctx, nil)
		if r.MagneticFresh {
			n.cal.Update(r.Magnetic)
		}

	default:
		r := n.sensors.Read(ctx, &n.cal)
		if !r.InertialFresh {
			break
		}
		force := imu.ForceMagnitude(r.Inertial, n.accelScale)
		if n.det.Process(force) {
			n.shotDetected()
		} else if n.det.State() != shotdetect.Idle {
			n.shotSamples++
			if e := n.det.Energy(); e > n.peakEnergy {
				n.peakEnergy = e
			}
			if force > n.peakForce {
				n.peakForce = force
			}
		}
	}
	n.refreshStatus()
}

func (n *Node) shotDetected() {
	n.shots++
	r := n.report(KindShot)
	r.Shot = &ShotInfo{
		Number:     n.shots,
		PeakEnergy: n.peakEnergy,
		PeakForce:  n.peakForce,
		Samples:    n.shotSamples + 1,
	}
	log.WithFields(log.Fields{
		"shot":   n.shots,
		"energy": n.peakEnergy,
		"force":  n.peakForce,
	}).Info("node: shot detected")

	n.peakEnergy, n.peakForce, n.shotSamples = 0, 0, 0
	n.emit(r)
}

func (n *Node) onSamplingStart(ctx context.Context, ev event.Event) {
	n.gate.Start()
	n.refreshSamplingLED()
	n.refreshStatus()
}

func (n *Node) onSamplingStop(ctx context.Context, ev event.Event) {
	n.gate.Stop()
	n.refreshSamplingLED()
	n.refreshStatus()
}

func (n *Node) onCalibrateStart(ctx context.Context, ev event.Event) {
	if n.state.Mode == ModeCalibration {
		log.Debugln("node: already calibrating, start ignored")
		return
	}
	log.Println("node: entering calibration mode")

	n.state.Mode = ModeCalibration
	n.cal.Reset()
	n.det.Reset()
	n.peakEnergy, n.peakForce, n.shotSamples = 0, 0, 0

	n.gate.SetHold(true)
	n.refreshSamplingLED()
	if n.blinker != nil {
		n.blinker.SetPeriod(n.blinkCalibration)
	}

	n.emit(n.report(KindMode))
	n.refreshStatus()
}

func (n *Node) onCalibrateStop(ctx context.Context, ev event.Event) {
	if n.state.Mode != ModeCalibration {
		log.Debugln("node: not calibrating, stop ignored")
		return
	}

	n.cal.Finalize()
	if err := n.store.Save(ctx, n.cal); err != nil {
		// keep using the new record; it is simply not persisted
		log.Errorf("node: save calibration: %v", err)
	}
	x, y, z := n.cal.Ranges()
	log.WithFields(log.Fields{
		"ox":      n.cal.Ox,
		"oy":      n.cal.Oy,
		"oz":      n.cal.Oz,
		"sx":      n.cal.Sx,
		"sy":      n.cal.Sy,
		"sz":      n.cal.Sz,
		"range_x": x,
		"range_y": y,
		"range_z": z,
	}).Info("node: calibration complete")

	n.state.Mode = ModeNormal
	n.gate.SetHold(false)
	n.refreshSamplingLED()
	if n.blinker != nil {
		n.blinker.SetPeriod(n.blinkNormal)
	}

	r := n.report(KindCalibration)
	cal := n.cal
	r.Calibration = &cal
	n.emit(r)
	n.emit(n.report(KindMode))
	n.refreshStatus()
}

func (n *Node) onSamplingModeChange(ctx context.Context, ev event.Event) {
	m, ok := ev.(event.SamplingModeChange)
	if !ok {
		return
	}
	log.Printf("node: sampling mode %s", m.Mode)

	n.gate.SetMode(m.Mode)
	n.state.SamplingAlwaysOn = m.Mode == event.SamplingOn
	n.refreshSamplingLED()

	n.emit(n.report(KindMode))
	n.refreshStatus()
}

func (n *Node) refreshSamplingLED() {
	if n.samplingLED == nil {
		return
	}
	if err := n.samplingLED.Set(n.gate.Running()); err != nil {
		log.Debugf("node: sampling led: %v", err)
	}
}

func (n *Node) report(kind ReportKind) Report {
	r := newReport(kind, n.now())
	r.Mode = n.state.Mode.String()
	r.SamplingMode = n.gate.Mode().String()
	if n.fix != nil {
		if f, ok := n.fix.Latest(); ok {
			r.Fix = &f
		}
	}
	return r
}

func (n *Node) emit(r Report) {
	for _, s := range n.sinks {
		s.Send(r)
	}
}

func (n *Node) refreshStatus() {
	st := Status{
		Mode:         n.state.Mode.String(),
		SamplingMode: n.gate.Mode().String(),
		AlwaysOn:     n.state.SamplingAlwaysOn,
		Sampling:     n.gate.Running(),
		Motion:       n.gate.Motion(),
		Detector:     n.det.State().String(),
		Energy:       n.det.Energy(),
		Shots:        n.shots,
		QueueDropped: n.q.Dropped(),
		Calibration:  n.cal,
	}
	if a, ok := n.sensors.(interface{ Stats() sensors.Stats }); ok {
		s := a.Stats()
		st.Sensors = &s
	}
	if n.fix != nil {
		if f, ok := n.fix.Latest(); ok {
			st.Fix = &f
		}
	}

	n.mu.Lock()
	n.status = st
	n.mu.Unlock()
}
