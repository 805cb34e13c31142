// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/shot_node/internal/button"
	"github.com/relabs-tech/shot_node/internal/config"
	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/gps"
	"github.com/relabs-tech/shot_node/internal/imu"
	"github.com/relabs-tech/shot_node/internal/magcal"
	"github.com/relabs-tech/shot_node/internal/sampling"
	"github.com/relabs-tech/shot_node/internal/sensors"
	"github.com/relabs-tech/shot_node/internal/shotdetect"
)

// demoShotEvery is how often the simulated IMU fires.
const demoShotEvery = 4 * time.Second

// RunNode brings up the sensors, timers and sinks described by cfg and
// dispatches events until ctx is done. With demo set, simulated sensors
// and log-only LEDs replace the hardware.
func RunNode(ctx context.Context, cfg *config.Config, demo bool) error {
	q := event.NewQueue(cfg.QueueCapacity)
	bus := semaphore.NewWeighted(1)
	accelScale := imu.AccelScale(imu.AccelRangeG(cfg.IMUAccelRange))

	// Sensors
	var (
		inertial sensors.InertialReader
		magnetic sensors.MagneticReader
	)
	if demo {
		log.Println("node: demo mode, using simulated sensors")
		if cfg.WebServerPort == 0 {
			log.Warnln("node: no button in demo mode; set WEB_SERVER_PORT to drive calibration via POST /api/calibration")
		}
		inertial = sensors.NewSimInertial(accelScale, demoShotEvery)
		magnetic = sensors.NewSimMagnetic()
	} else {
		var err error
		inertial, err = sensors.NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
		if err != nil {
			return err
		}
		mag, err := sensors.NewHMC5983(cfg.MagI2CBus, cfg.MagI2CAddr, cfg.MagGain)
		if err != nil {
			return err
		}
		defer mag.Close()
		magnetic = mag
	}
	adapter := sensors.NewAdapter(inertial, magnetic, bus, cfg.BusLockTimeout())

	// Calibration record
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	cal := magcal.LoadOrDefault(ctx, store)

	det, err := shotdetect.New(cfg.ShotReferenceKernel, cfg.ShotTriggerThreshold, cfg.ShotIdleThreshold)
	if err != nil {
		return err
	}

	// Timers
	sched := sampling.NewScheduler(cfg.SamplingPeriodMS, q)
	defer sched.Stop()
	log.Printf("node: sampling every %d ticks (%v)", sched.Ticks(), sched.Period())

	gate := sampling.NewGate(sched, q)
	gate.SetMode(cfg.SamplingMode)

	blinker := NewBlinker(cfg.BlinkNormal(), q)
	blinker.Start()
	defer blinker.Stop()

	statusLED := indicator("status", cfg.LEDStatusPin, demo)
	samplingLED := indicator("sampling", cfg.LEDSamplingPin, demo)

	opts := Options{
		Queue:            q,
		Sensors:          adapter,
		Gate:             gate,
		Detector:         det,
		Store:            store,
		Calibration:      cal,
		AccelScale:       accelScale,
		StatusLED:        statusLED,
		SamplingLED:      samplingLED,
		Blinker:          blinker,
		BlinkNormal:      cfg.BlinkNormal(),
		BlinkCalibration: cfg.BlinkCalibration(),
	}

	if cfg.GPSSerialPort != "" && !demo {
		tracker := gps.NewTracker()
		go func() {
			if err := tracker.RunSerial(ctx, cfg.GPSSerialPort, cfg.GPSBaudRate); err != nil {
				log.Warnf("gps: %v", err)
			}
		}()
		opts.Fix = tracker
	}

	node := NewNode(opts)

	// Sinks
	if cfg.MQTTBroker != "" {
		pub, err := NewPublisher(cfg.MQTTBroker, cfg.MQTTClientIDNode, Topics{
			Shot:        cfg.TopicShot,
			Mode:        cfg.TopicMode,
			Calibration: cfg.TopicCalibration,
		})
		if err != nil {
			log.Warnf("node: reports will not be published: %v", err)
		} else {
			defer pub.Close()
			node.AddSink(pub)
		}
	}

	if cfg.WebServerPort != 0 {
		web := NewStatusServer(node.Status, q)
		node.AddSink(web)
		go func() {
			if err := web.Run(ctx, cfg.WebServerPort, cfg.MDNSEnable); err != nil {
				log.Errorf("web: %v", err)
			}
		}()
	}

	if cfg.DisplayI2CAddr != 0 && !demo {
		display, err := NewDisplay(cfg.MagI2CBus, cfg.DisplayI2CAddr, bus)
		if err != nil {
			log.Warnf("node: no display: %v", err)
		} else {
			node.AddSink(display)
			go display.Run(ctx, node.Status, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond)
		}
	}

	// Button gestures and the motion line
	rec := button.NewRecognizer(
		time.Duration(cfg.GestureTimeoutMS)*time.Millisecond,
		time.Duration(cfg.GestureLongPressMS)*time.Millisecond,
	)
	rec.Register(cfg.CalibrateStartCount, cfg.CalibrateStartPattern, postFunc(ctx, q, event.CalibrateStart{}))
	rec.Register(cfg.CalibrateStopCount, cfg.CalibrateStopPattern, postFunc(ctx, q, event.CalibrateStop{}))

	if !demo {
		go func() {
			// active low with pull-up
			err := sensors.WatchLine(ctx, cfg.ButtonPin, gpio.PullUp, func(high bool) {
				rec.Edge(!high, time.Now())
			})
			if err != nil {
				log.Warnf("node: button disabled: %v", err)
			}
		}()
		go func() {
			err := sensors.WatchLine(ctx, cfg.MotionIntPin, gpio.PullDown, func(high bool) {
				gate.OnLevel(high)
			})
			if err != nil {
				log.Warnf("node: motion line disabled, sampling stays on: %v", err)
			}
		}()
	}

	log.WithFields(log.Fields{
		"sampling_mode": cfg.SamplingMode.String(),
		"calibrated":    cal.Initialised,
		"queue":         q.Cap(),
	}).Info("node: running")
	return node.Run(ctx)
}

// postFunc returns a callback that posts ev, waiting for queue space.
func postFunc(ctx context.Context, q *event.Queue, ev event.Event) func() {
	return func() {
		if err := q.Post(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("node: post %s: %v", ev.Tag(), err)
		}
	}
}

func indicator(name, pin string, demo bool) sensors.Indicator {
	if demo || pin == "" {
		return &sensors.LogIndicator{Name: name}
	}
	ind, err := sensors.NewPinIndicator(pin)
	if err != nil {
		log.Warnf("node: %s led unavailable: %v", name, err)
		return &sensors.LogIndicator{Name: name}
	}
	return ind
}

// OpenStore returns the calibration store selected by CALIBRATION_STORE.
func OpenStore(ctx context.Context, cfg *config.Config) (magcal.Store, error) {
	switch cfg.CalibrationStore {
	case "file", "":
		return magcal.NewFileStore(cfg.CalibrationFile), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warnf("magcal: redis %s not reachable yet: %v", cfg.RedisAddr, err)
		}
		return magcal.NewRedisStore(client, cfg.RedisPrefix), nil
	}
	return nil, fmt.Errorf("unknown calibration store %q", cfg.CalibrationStore)
}

// ShowCalibration prints the stored calibration record as JSON.
func ShowCalibration(ctx context.Context, cfg *config.Config, out io.Writer) error {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	c, err := store.Load(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
