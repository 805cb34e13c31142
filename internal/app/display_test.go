package app

import (
	"strings"
	"testing"
	"time"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/shot_node/internal/magcal"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	for _, b := range img.Pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestRenderStatus(t *testing.T) {
	blank := renderLines()
	if litPixels(blank) != 0 {
		t.Fatal("empty render is not blank")
	}

	normal := renderStatus(Status{Mode: "normal", SamplingMode: "auto", Shots: 2}, &ShotInfo{PeakEnergy: 300})
	if litPixels(normal) == 0 {
		t.Fatal("status render drew nothing")
	}
	if b := normal.Bounds(); b.Dx() != 128 || b.Dy() != 64 {
		t.Fatalf("bounds = %v", b)
	}

	cal := renderStatus(Status{
		Mode:        "calibration",
		Calibration: magcal.Calibration{MxMin: -20, MxMax: 20},
	}, nil)
	if litPixels(cal) == 0 || string(cal.Pix) == string(normal.Pix) {
		t.Fatal("calibration screen matches normal screen")
	}
}

func TestFormatReport(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	shot := formatReport(Report{Kind: KindShot, Time: at, Shot: &ShotInfo{Number: 1, PeakEnergy: 250}})
	if !strings.Contains(shot, "[SHOT   1]") || !strings.Contains(shot, "energy=   250.0") {
		t.Fatalf("shot line = %q", shot)
	}

	cal := formatReport(Report{Kind: KindCalibration, Time: at, Calibration: &magcal.Calibration{Ox: 1.5, Sx: 2}})
	if !strings.Contains(cal, "offset=(1.50, 0.00, 0.00)") {
		t.Fatalf("calibration line = %q", cal)
	}

	mode := formatReport(Report{Kind: KindMode, Time: at, Mode: "calibration", SamplingMode: "on"})
	if !strings.Contains(mode, "calibration sampling=on") {
		t.Fatalf("mode line = %q", mode)
	}
}
