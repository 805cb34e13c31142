package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/shot_node/internal/event"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot_node.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# only comments\n\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SamplingPeriod() != 10*time.Millisecond {
		t.Errorf("SamplingPeriod = %v, want 10ms", cfg.SamplingPeriod())
	}
	if cfg.QueueCapacity != 10 {
		t.Errorf("QueueCapacity = %d, want 10", cfg.QueueCapacity)
	}
	if cfg.BlinkNormal() != time.Second || cfg.BlinkCalibration() != 100*time.Millisecond {
		t.Errorf("blink = %v/%v, want 1s/100ms", cfg.BlinkNormal(), cfg.BlinkCalibration())
	}
	if cfg.BusLockTimeout() != 5*time.Millisecond {
		t.Errorf("BusLockTimeout = %v, want 5ms", cfg.BusLockTimeout())
	}
	if cfg.SamplingMode != event.SamplingAuto {
		t.Errorf("SamplingMode = %v, want auto", cfg.SamplingMode)
	}
	if cfg.CalibrateStartCount != 3 || cfg.CalibrateStopCount != 1 || cfg.CalibrateStopPattern != 1 {
		t.Errorf("gestures = %d/%d/%d", cfg.CalibrateStartCount, cfg.CalibrateStopCount, cfg.CalibrateStopPattern)
	}
}

func TestLoadOverrides(t *testing.T) {
	body := strings.Join([]string{
		"MQTT_BROKER = tcp://broker:1883",
		"SAMPLING_PERIOD_MS=20",
		"SAMPLING_ALWAYS_ON=true",
		"SHOT_REFERENCE_KERNEL=1, 2 ,3",
		"SHOT_TRIGGER_THRESHOLD=10",
		"SHOT_IDLE_THRESHOLD=5",
		"MAG_I2C_ADDR=0x1e",
		"CALIBRATE_START_PATTERN=0b101",
		"CALIBRATION_STORE=redis",
		"REDIS_ADDR=localhost:6379",
		"LOG_LEVEL=debug",
	}, "\n")

	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "tcp://broker:1883" {
		t.Errorf("MQTTBroker = %q", cfg.MQTTBroker)
	}
	if cfg.SamplingPeriodMS != 20 {
		t.Errorf("SamplingPeriodMS = %d", cfg.SamplingPeriodMS)
	}
	if cfg.SamplingMode != event.SamplingOn {
		t.Errorf("SamplingMode = %v, want on", cfg.SamplingMode)
	}
	if len(cfg.ShotReferenceKernel) != 3 || cfg.ShotReferenceKernel[1] != 2 {
		t.Errorf("ShotReferenceKernel = %v", cfg.ShotReferenceKernel)
	}
	if cfg.MagI2CAddr != 0x1E {
		t.Errorf("MagI2CAddr = 0x%x", cfg.MagI2CAddr)
	}
	if cfg.CalibrateStartPattern != 5 {
		t.Errorf("CalibrateStartPattern = %d, want 5", cfg.CalibrateStartPattern)
	}
	if cfg.CalibrationStore != "redis" || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("store = %q %q", cfg.CalibrationStore, cfg.RedisAddr)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "NOT_A_KEY=1"},
		{"missing equals", "SAMPLING_PERIOD_MS"},
		{"range", "IMU_ACCEL_RANGE=4"},
		{"zero period", "SAMPLING_PERIOD_MS=0"},
		{"bad mode", "SAMPLING_MODE=sometimes"},
		{"empty kernel", "SHOT_REFERENCE_KERNEL= , "},
		{"idle above trigger", "SHOT_IDLE_THRESHOLD=500"},
		{"pattern too wide", "CALIBRATE_STOP_PATTERN=2"},
		{"same gestures", "CALIBRATE_START_COUNT=1\nCALIBRATE_START_PATTERN=1"},
		{"redis without addr", "CALIBRATION_STORE=redis"},
		{"unknown store", "CALIBRATION_STORE=sdcard"},
		{"bad log level", "LOG_LEVEL=loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("Load(%q) succeeded, want error", tt.body)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.conf")); err == nil {
		t.Fatal("Load of missing file succeeded")
	}
}
