// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/shot_node/internal/event"
)

// Config holds all node configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDNode    string
	MQTTClientIDConsole string

	// Topics
	TopicShot        string
	TopicMode        string
	TopicCalibration string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// GPIO lines
	MotionIntPin   string
	ButtonPin      string
	LEDStatusPin   string
	LEDSamplingPin string

	// Magnetometer (HMC5983)
	MagI2CBus  string
	MagI2CAddr uint16
	MagGain    byte // 0-7, CRB gain code

	// Sampling
	SamplingPeriodMS uint32
	SamplingMode     event.SamplingMode
	QueueCapacity    int
	BusLockTimeoutMS int

	// Status LED
	LEDBlinkNormalMS      int
	LEDBlinkCalibrationMS int

	// Shot detection
	ShotReferenceKernel  []float64
	ShotTriggerThreshold float64
	ShotIdleThreshold    float64

	// Button gestures
	GestureTimeoutMS      int
	GestureLongPressMS    int
	CalibrateStartCount   uint8
	CalibrateStartPattern uint32
	CalibrateStopCount    uint8
	CalibrateStopPattern  uint32

	// Calibration storage: "file" or "redis"
	CalibrationStore string
	CalibrationFile  string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string

	// GPS (empty port disables the tracker)
	GPSSerialPort string
	GPSBaudRate   int

	// Web Server (0 disables it)
	WebServerPort int
	MDNSEnable    bool

	// Display (0 disables it)
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	LogLevel string
}

// Package-level state for the singleton: InitGlobal sets it once, Get reads
// it under the read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns the configuration used for keys the file does not set.
func Defaults() *Config {
	return &Config{
		MQTTClientIDNode:    "shot_node",
		MQTTClientIDConsole: "shot_console",

		TopicShot:        "shot_node/shot",
		TopicMode:        "shot_node/mode",
		TopicCalibration: "shot_node/calibration",

		IMUSPIDevice:  "/dev/spidev0.0",
		IMUCSPin:      "GPIO8",
		IMUAccelRange: 3,
		IMUGyroRange:  3,

		MotionIntPin:   "GPIO17",
		ButtonPin:      "GPIO27",
		LEDStatusPin:   "GPIO22",
		LEDSamplingPin: "GPIO23",

		MagI2CBus:  "1",
		MagI2CAddr: 0x1E,
		MagGain:    1,

		SamplingPeriodMS: 10,
		SamplingMode:     event.SamplingAuto,
		QueueCapacity:    event.DefaultCapacity,
		BusLockTimeoutMS: 5,

		LEDBlinkNormalMS:      1000,
		LEDBlinkCalibrationMS: 100,

		ShotReferenceKernel:  []float64{0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125},
		ShotTriggerThreshold: 150,
		ShotIdleThreshold:    70,

		GestureTimeoutMS:      600,
		GestureLongPressMS:    800,
		CalibrateStartCount:   3,
		CalibrateStartPattern: 0,
		CalibrateStopCount:    1,
		CalibrateStopPattern:  1,

		CalibrationStore: "file",
		CalibrationFile:  "mag_calibration.json",
		RedisPrefix:      "shot_node",

		GPSBaudRate: 9600,

		DisplayUpdateInterval: 500,

		LogLevel: "info",
	}
}

// Load reads the configuration file on top of Defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_NODE":
		c.MQTTClientIDNode = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_SHOT":
		c.TopicShot = value
	case "TOPIC_MODE":
		c.TopicMode = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		val, err := parseRange(key, value, 0, 3)
		if err != nil {
			return err
		}
		c.IMUAccelRange = byte(val)
	case "IMU_GYRO_RANGE":
		val, err := parseRange(key, value, 0, 3)
		if err != nil {
			return err
		}
		c.IMUGyroRange = byte(val)

	// GPIO lines
	case "MOTION_INT_PIN":
		c.MotionIntPin = value
	case "BUTTON_PIN":
		c.ButtonPin = value
	case "LED_STATUS_PIN":
		c.LEDStatusPin = value
	case "LED_SAMPLING_PIN":
		c.LEDSamplingPin = value

	// Magnetometer
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MAG_I2C_ADDR %q: %w", value, err)
		}
		c.MagI2CAddr = uint16(addr)
	case "MAG_GAIN":
		val, err := parseRange(key, value, 0, 7)
		if err != nil {
			return err
		}
		c.MagGain = byte(val)

	// Sampling
	case "SAMPLING_PERIOD_MS":
		val, err := parseRange(key, value, 1, 10000)
		if err != nil {
			return err
		}
		c.SamplingPeriodMS = uint32(val)
	case "SAMPLING_MODE":
		mode, err := event.ParseSamplingMode(value)
		if err != nil {
			return err
		}
		c.SamplingMode = mode
	case "SAMPLING_ALWAYS_ON":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLING_ALWAYS_ON %q: %w", value, err)
		}
		if on {
			c.SamplingMode = event.SamplingOn
		} else if c.SamplingMode == event.SamplingOn {
			c.SamplingMode = event.SamplingAuto
		}
	case "QUEUE_CAPACITY":
		val, err := parseRange(key, value, 1, 4096)
		if err != nil {
			return err
		}
		c.QueueCapacity = val
	case "BUS_LOCK_TIMEOUT_MS":
		val, err := parseRange(key, value, 1, 1000)
		if err != nil {
			return err
		}
		c.BusLockTimeoutMS = val

	// Status LED
	case "LED_BLINK_NORMAL_MS":
		val, err := parseRange(key, value, 1, 60000)
		if err != nil {
			return err
		}
		c.LEDBlinkNormalMS = val
	case "LED_BLINK_CALIBRATION_MS":
		val, err := parseRange(key, value, 1, 60000)
		if err != nil {
			return err
		}
		c.LEDBlinkCalibrationMS = val

	// Shot detection
	case "SHOT_REFERENCE_KERNEL":
		kernel, err := parseKernel(value)
		if err != nil {
			return err
		}
		c.ShotReferenceKernel = kernel
	case "SHOT_TRIGGER_THRESHOLD":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SHOT_TRIGGER_THRESHOLD %q: %w", value, err)
		}
		c.ShotTriggerThreshold = val
	case "SHOT_IDLE_THRESHOLD":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SHOT_IDLE_THRESHOLD %q: %w", value, err)
		}
		c.ShotIdleThreshold = val

	// Button gestures
	case "GESTURE_TIMEOUT_MS":
		val, err := parseRange(key, value, 50, 10000)
		if err != nil {
			return err
		}
		c.GestureTimeoutMS = val
	case "GESTURE_LONG_PRESS_MS":
		val, err := parseRange(key, value, 50, 10000)
		if err != nil {
			return err
		}
		c.GestureLongPressMS = val
	case "CALIBRATE_START_COUNT":
		val, err := parseRange(key, value, 1, 32)
		if err != nil {
			return err
		}
		c.CalibrateStartCount = uint8(val)
	case "CALIBRATE_START_PATTERN":
		val, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATE_START_PATTERN %q: %w", value, err)
		}
		c.CalibrateStartPattern = uint32(val)
	case "CALIBRATE_STOP_COUNT":
		val, err := parseRange(key, value, 1, 32)
		if err != nil {
			return err
		}
		c.CalibrateStopCount = uint8(val)
	case "CALIBRATE_STOP_PATTERN":
		val, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATE_STOP_PATTERN %q: %w", value, err)
		}
		c.CalibrateStopPattern = uint32(val)

	// Calibration storage
	case "CALIBRATION_STORE":
		c.CalibrationStore = strings.ToLower(value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "REDIS_ADDR":
		c.RedisAddr = value
	case "REDIS_PASSWORD":
		c.RedisPassword = value
	case "REDIS_DB":
		val, err := parseRange(key, value, 0, 15)
		if err != nil {
			return err
		}
		c.RedisDB = val
	case "REDIS_PREFIX":
		c.RedisPrefix = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := parseRange(key, value, 0, 65535)
		if err != nil {
			return err
		}
		c.WebServerPort = port
	case "MDNS_ENABLE":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid MDNS_ENABLE %q: %w", value, err)
		}
		c.MDNSEnable = on

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "LOG_LEVEL":
		if _, err := log.ParseLevel(value); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
		}
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseRange(key, value string, lo, hi int) (int, error) {
	val, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if val < lo || val > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, val)
	}
	return val, nil
}

// parseKernel reads a comma-separated list of floats.
func parseKernel(value string) ([]float64, error) {
	fields := strings.Split(value, ",")
	kernel := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SHOT_REFERENCE_KERNEL value %q: %w", f, err)
		}
		kernel = append(kernel, v)
	}
	if len(kernel) == 0 {
		return nil, fmt.Errorf("SHOT_REFERENCE_KERNEL is empty")
	}
	return kernel, nil
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.ShotIdleThreshold > c.ShotTriggerThreshold {
		return fmt.Errorf("SHOT_IDLE_THRESHOLD (%g) must not exceed SHOT_TRIGGER_THRESHOLD (%g)",
			c.ShotIdleThreshold, c.ShotTriggerThreshold)
	}
	if c.CalibrateStartCount < 32 && c.CalibrateStartPattern >= 1<<c.CalibrateStartCount {
		return fmt.Errorf("CALIBRATE_START_PATTERN 0x%x has more bits than CALIBRATE_START_COUNT=%d",
			c.CalibrateStartPattern, c.CalibrateStartCount)
	}
	if c.CalibrateStopCount < 32 && c.CalibrateStopPattern >= 1<<c.CalibrateStopCount {
		return fmt.Errorf("CALIBRATE_STOP_PATTERN 0x%x has more bits than CALIBRATE_STOP_COUNT=%d",
			c.CalibrateStopPattern, c.CalibrateStopCount)
	}
	if c.CalibrateStartCount == c.CalibrateStopCount && c.CalibrateStartPattern == c.CalibrateStopPattern {
		return fmt.Errorf("calibrate start and stop gestures are identical")
	}
	switch c.CalibrationStore {
	case "file":
		if c.CalibrationFile == "" {
			return fmt.Errorf("CALIBRATION_FILE is required when CALIBRATION_STORE=file")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CALIBRATION_STORE=redis")
		}
	default:
		return fmt.Errorf("CALIBRATION_STORE must be file or redis, got %q", c.CalibrationStore)
	}
	if c.GPSSerialPort != "" && c.GPSBaudRate == 0 {
		return fmt.Errorf("GPS_BAUD_RATE is required when GPS_SERIAL_PORT is set")
	}
	return nil
}

// SamplingPeriod returns SAMPLING_PERIOD_MS as a duration.
func (c *Config) SamplingPeriod() time.Duration {
	return time.Duration(c.SamplingPeriodMS) * time.Millisecond
}

func (c *Config) BusLockTimeout() time.Duration {
	return time.Duration(c.BusLockTimeoutMS) * time.Millisecond
}

func (c *Config) BlinkNormal() time.Duration {
	return time.Duration(c.LEDBlinkNormalMS) * time.Millisecond
}

func (c *Config) BlinkCalibration() time.Duration {
	return time.Duration(c.LEDBlinkCalibrationMS) * time.Millisecond
}

// InitGlobal initializes the global configuration. An empty path uses
// Defaults. Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Defaults()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
