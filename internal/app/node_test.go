package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/shot_node/internal/event"
	"github.com/relabs-tech/shot_node/internal/gps"
	"github.com/relabs-tech/shot_node/internal/imu"
	"github.com/relabs-tech/shot_node/internal/magcal"
	"github.com/relabs-tech/shot_node/internal/sampling"
	"github.com/relabs-tech/shot_node/internal/sensors"
	"github.com/relabs-tech/shot_node/internal/shotdetect"
)

type fakeSwitch struct {
	running bool
}

func (f *fakeSwitch) Start() bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeSwitch) Stop() bool {
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeSwitch) Running() bool { return f.running }

// fakeSensors hands out queued samples and records the calibration each
// read was given.
type fakeSensors struct {
	inertial []imu.InertialSample
	magnetic []imu.MagneticSample
	cals     []*magcal.Calibration
}

func (f *fakeSensors) Read(ctx context.Context, cal *magcal.Calibration) sensors.Reading {
	f.cals = append(f.cals, cal)
	var r sensors.Reading
	if len(f.inertial) > 0 {
		r.Inertial, f.inertial = f.inertial[0], f.inertial[1:]
		r.InertialFresh = true
	}
	if len(f.magnetic) > 0 {
		r.Magnetic, f.magnetic = f.magnetic[0], f.magnetic[1:]
		r.MagneticFresh = true
	}
	return r
}

type memStore struct {
	saves int
	saved magcal.Calibration
	err   error
}

func (m *memStore) Load(ctx context.Context) (magcal.Calibration, error) {
	if m.saves == 0 {
		return magcal.Calibration{}, magcal.ErrNoCalibration
	}
	return m.saved, nil
}

func (m *memStore) Save(ctx context.Context, c magcal.Calibration) error {
	m.saves++
	m.saved = c
	return m.err
}

type fakeBlinker struct {
	periods []time.Duration
}

func (f *fakeBlinker) SetPeriod(d time.Duration) { f.periods = append(f.periods, d) }

type fakeFix struct{ fix gps.Fix }

func (f fakeFix) Latest() (gps.Fix, bool) { return f.fix, true }

type harness struct {
	t       *testing.T
	q       *event.Queue
	node    *Node
	sw      *fakeSwitch
	gate    *sampling.Gate
	sensors *fakeSensors
	store   *memStore
	blinker *fakeBlinker
	status  *sensors.LogIndicator
	smpLED  *sensors.LogIndicator
	reports []Report
}

func newHarness(t *testing.T, mutate func(o *Options)) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		q:       event.NewQueue(event.DefaultCapacity),
		sw:      &fakeSwitch{},
		sensors: &fakeSensors{},
		store:   &memStore{},
		blinker: &fakeBlinker{},
		status:  &sensors.LogIndicator{Name: "status"},
		smpLED:  &sensors.LogIndicator{Name: "sampling"},
	}
	h.gate = sampling.NewGate(h.sw, h.q)
	h.gate.SetMode(event.SamplingAuto)

	det, err := shotdetect.New([]float64{1}, 5, 2)
	if err != nil {
		t.Fatal(err)
	}

	o := Options{
		Queue:            h.q,
		Sensors:          h.sensors,
		Gate:             h.gate,
		Detector:         det,
		Store:            h.store,
		AccelScale:       1,
		StatusLED:        h.status,
		SamplingLED:      h.smpLED,
		Blinker:          h.blinker,
		BlinkNormal:      time.Second,
		BlinkCalibration: 100 * time.Millisecond,
		Sinks: []Sink{SinkFunc(func(r Report) {
			h.reports = append(h.reports, r)
		})},
		Now: func() time.Time { return time.Unix(1700000000, 0) },
	}
	if mutate != nil {
		mutate(&o)
	}
	h.node = NewNode(o)
	return h
}

// run posts evs and handles them all on the test goroutine.
func (h *harness) run(evs ...event.Event) {
	h.t.Helper()
	for _, ev := range evs {
		if !h.q.TryPost(ev) {
			h.t.Fatalf("queue full posting %s", ev.Tag())
		}
	}
	if n := h.node.Drain(context.Background()); n != len(evs) {
		h.t.Fatalf("drained %d events, want %d", n, len(evs))
	}
}

func (h *harness) kinds() []ReportKind {
	var k []ReportKind
	for _, r := range h.reports {
		k = append(k, r.Kind)
	}
	return k
}

func TestCalibrationScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.sensors.magnetic = []imu.MagneticSample{
		{Mx: 10},
		{Mx: -10},
		{My: 5, Mz: -5},
	}

	h.run(event.CalibrateStart{})
	if h.node.State().Mode != ModeCalibration {
		t.Fatalf("mode = %v, want calibration", h.node.State().Mode)
	}
	if !h.gate.Forced() || !h.sw.running {
		t.Fatal("sampling not held on during calibration")
	}

	h.run(event.SamplingTrigger{}, event.SamplingTrigger{}, event.SamplingTrigger{})
	for i, c := range h.sensors.cals {
		if c != nil {
			t.Fatalf("read %d got a calibration during calibration mode", i)
		}
	}

	h.run(event.CalibrateStop{})

	c := h.node.Calibration()
	if !c.Initialised {
		t.Fatal("calibration not finalized")
	}
	if c.Ox != 0 || c.Oy != 2.5 || c.Oz != -2.5 {
		t.Fatalf("offsets = %v %v %v, want 0 2.5 -2.5", c.Ox, c.Oy, c.Oz)
	}
	if c.Sx != 1 || c.Sy != 4 || c.Sz != 4 {
		t.Fatalf("scales = %v %v %v, want 1 4 4", c.Sx, c.Sy, c.Sz)
	}
	if h.store.saves != 1 || h.store.saved != c {
		t.Fatalf("saves = %d (%+v), want exactly one of %+v", h.store.saves, h.store.saved, c)
	}
	if h.node.State().Mode != ModeNormal {
		t.Fatalf("mode = %v, want normal", h.node.State().Mode)
	}
	if h.gate.Forced() {
		t.Fatal("hold not released")
	}

	want := []time.Duration{100 * time.Millisecond, time.Second}
	if len(h.blinker.periods) != 2 || h.blinker.periods[0] != want[0] || h.blinker.periods[1] != want[1] {
		t.Fatalf("blink periods = %v, want %v", h.blinker.periods, want)
	}

	kinds := h.kinds()
	if len(kinds) != 3 || kinds[0] != KindMode || kinds[1] != KindCalibration || kinds[2] != KindMode {
		t.Fatalf("reports = %v", kinds)
	}
	if h.reports[1].Calibration == nil || *h.reports[1].Calibration != c {
		t.Fatalf("calibration report = %+v", h.reports[1].Calibration)
	}

	// back in normal mode reads get the finalized record
	h.run(event.SamplingTrigger{})
	if last := h.sensors.cals[len(h.sensors.cals)-1]; last == nil || !last.Initialised {
		t.Fatalf("normal read calibration = %+v, want the initialised record", last)
	}
}

func TestCalibrateEventsOutOfOrder(t *testing.T) {
	h := newHarness(t, nil)

	h.run(event.CalibrateStop{})
	if h.store.saves != 0 || h.node.State().Mode != ModeNormal || len(h.reports) != 0 {
		t.Fatalf("stop in normal mode had an effect: saves=%d mode=%v reports=%v",
			h.store.saves, h.node.State().Mode, h.kinds())
	}

	h.sensors.magnetic = []imu.MagneticSample{{Mx: 10}, {Mx: -10}}
	h.run(event.CalibrateStart{}, event.SamplingTrigger{}, event.CalibrateStart{}, event.SamplingTrigger{}, event.CalibrateStop{})

	c := h.node.Calibration()
	if c.MxMin != -10 || c.MxMax != 10 {
		t.Fatalf("x range = [%v, %v]; second start must not reset", c.MxMin, c.MxMax)
	}
	if h.store.saves != 1 {
		t.Fatalf("saves = %d, want 1", h.store.saves)
	}
}

func TestCalibrationSaveFailureKeepsRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.store.err = errors.New("disk full")
	h.sensors.magnetic = []imu.MagneticSample{{Mx: 4}}

	h.run(event.CalibrateStart{}, event.SamplingTrigger{}, event.CalibrateStop{})

	if !h.node.Calibration().Initialised || h.node.State().Mode != ModeNormal {
		t.Fatal("failed save left the node calibrating")
	}
}

func TestEmptyCalibrationSessionKeepsUnitScales(t *testing.T) {
	h := newHarness(t, nil)

	h.run(event.CalibrateStart{}, event.CalibrateStop{})

	c := h.node.Calibration()
	if h.store.saves != 1 || !h.store.saved.Initialised {
		t.Fatalf("saves = %d (%+v), want one initialised record", h.store.saves, h.store.saved)
	}
	if c.Sx != 1 || c.Sy != 1 || c.Sz != 1 {
		t.Fatalf("scales = %v %v %v, want 1 1 1", c.Sx, c.Sy, c.Sz)
	}
	in := imu.MagneticSample{Mx: 30, My: -20, Mz: 10}
	if got := c.Apply(in); got != in {
		t.Fatalf("Apply = %+v, want %+v", got, in)
	}
}

func TestShotReport(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Fix = fakeFix{fix: gps.Fix{Latitude: 51.5, Longitude: -0.7}}
	})
	for _, ax := range []int16{0, 10, 10, 1, 1} {
		h.sensors.inertial = append(h.sensors.inertial, imu.InertialSample{Ax: ax})
	}

	h.run(event.SamplingTrigger{}, event.SamplingTrigger{}, event.SamplingTrigger{}, event.SamplingTrigger{})
	if len(h.reports) != 0 {
		t.Fatalf("shot reported before the detector returned to idle: %v", h.kinds())
	}

	h.run(event.SamplingTrigger{})
	if len(h.reports) != 1 || h.reports[0].Kind != KindShot {
		t.Fatalf("reports = %v, want one shot", h.kinds())
	}

	r := h.reports[0]
	want := ShotInfo{Number: 1, PeakEnergy: 10, PeakForce: 10, Samples: 4}
	if r.Shot == nil || *r.Shot != want {
		t.Fatalf("shot = %+v, want %+v", r.Shot, want)
	}
	if r.ID == "" || r.Mode != "normal" || r.SamplingMode != "auto" {
		t.Fatalf("report header = %+v", r)
	}
	if r.Fix == nil || r.Fix.Latitude != 51.5 {
		t.Fatalf("fix = %+v", r.Fix)
	}
	if st := h.node.Status(); st.Shots != 1 || st.Detector != "idle" {
		t.Fatalf("status = %+v", st)
	}
}

func TestNoDetectionWhileCalibrating(t *testing.T) {
	h := newHarness(t, nil)
	h.sensors.inertial = []imu.InertialSample{{Ax: 100}, {Ax: 0}, {Ax: 0}}

	h.run(event.CalibrateStart{}, event.SamplingTrigger{}, event.SamplingTrigger{}, event.SamplingTrigger{})

	for _, r := range h.reports {
		if r.Kind == KindShot {
			t.Fatal("shot reported in calibration mode")
		}
	}
}

func TestSamplingModes(t *testing.T) {
	h := newHarness(t, nil)

	h.run(event.SamplingStop{})
	if h.sw.running || h.smpLED.On() {
		t.Fatal("auto mode did not stop on no motion")
	}

	h.run(event.SamplingModeChange{Mode: event.SamplingOn})
	if !h.node.State().SamplingAlwaysOn || !h.sw.running || !h.smpLED.On() {
		t.Fatal("on mode did not start sampling")
	}
	h.run(event.SamplingStop{})
	if !h.sw.running {
		t.Fatal("on mode stopped on no motion")
	}

	h.run(event.SamplingModeChange{Mode: event.SamplingOff})
	if h.node.State().SamplingAlwaysOn || h.sw.running {
		t.Fatal("off mode left sampling running")
	}
	h.run(event.SamplingStart{})
	if h.sw.running {
		t.Fatal("off mode started on motion")
	}

	h.run(event.SamplingModeChange{Mode: event.SamplingAuto}, event.SamplingStart{})
	if !h.sw.running || !h.smpLED.On() {
		t.Fatal("auto mode did not start on motion")
	}

	if n := len(h.kinds()); n != 3 {
		t.Fatalf("mode reports = %d, want 3", n)
	}
}

func TestLedTickToggles(t *testing.T) {
	h := newHarness(t, nil)
	h.run(event.LedTick{})
	if !h.status.On() {
		t.Fatal("status led not toggled on")
	}
	h.run(event.LedTick{})
	if h.status.On() {
		t.Fatal("status led not toggled off")
	}
}
