package shotdetect

import (
	"math"
	"testing"
)

// feedWindow pushes a whole window and steps once.
func feedWindow(d *Detector, w []float64) bool {
	for _, v := range w {
		d.Sample(v)
	}
	return d.Step()
}

func TestScenarioShotCycle(t *testing.T) {
	d, err := New([]float64{1, 1, 1}, 2.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		window []float64
		state  State
		shot   bool
	}{
		{[]float64{0, 0, 0}, Idle, false},
		{[]float64{3, 3, 3}, InProgress, false},
		{[]float64{3, 3, 3}, InProgress, false},
		{[]float64{0, 0, 0}, Completed, false},
		{[]float64{0, 0, 0}, Idle, true},
	}

	for i, s := range steps {
		shot := feedWindow(d, s.window)
		if d.State() != s.state {
			t.Fatalf("step %d: state = %s, want %s (energy %v)", i, d.State(), s.state, d.Energy())
		}
		if shot != s.shot {
			t.Fatalf("step %d: shot = %v, want %v", i, shot, s.shot)
		}
	}
}

func TestEnergyCentreOfConvolution(t *testing.T) {
	d, _ := New([]float64{1, 1, 1}, 100, 0)
	feedWindow(d, []float64{3, 3, 3})
	// conv = [3 6 9 6 3], centre n=3 values from offset 1 = 6+9+6
	if d.Energy() != 21 {
		t.Fatalf("Energy = %v, want 21", d.Energy())
	}
}

func TestEqualityDoesNotTransition(t *testing.T) {
	t.Run("idle at trigger", func(t *testing.T) {
		d, _ := New([]float64{1}, 2.5, 0.5)
		if d.Process(2.5) {
			t.Fatal("unexpected shot")
		}
		if d.State() != Idle {
			t.Fatalf("state = %s, want idle", d.State())
		}
	})

	t.Run("in progress at trigger", func(t *testing.T) {
		d, _ := New([]float64{1}, 2.5, 0.5)
		d.Process(3)
		d.Process(2.5)
		if d.State() != InProgress {
			t.Fatalf("state = %s, want in_progress", d.State())
		}
	})

	t.Run("completed at idle", func(t *testing.T) {
		d, _ := New([]float64{1}, 2.5, 0.5)
		d.Process(3)
		d.Process(1)
		if d.State() != Completed {
			t.Fatalf("state = %s, want completed", d.State())
		}
		if d.Process(0.5) {
			t.Fatal("shot reported at idle threshold")
		}
		if d.State() != Completed {
			t.Fatalf("state = %s, want completed", d.State())
		}
		if !d.Process(0.49) {
			t.Fatal("shot not reported below idle threshold")
		}
	})
}

func TestCompletedWaitsForIdle(t *testing.T) {
	// between idle and trigger the detector stays completed
	d, _ := New([]float64{1}, 10, 2)
	d.Process(11)
	d.Process(5)
	for i := 0; i < 5; i++ {
		if d.Process(5) {
			t.Fatal("shot reported above idle threshold")
		}
	}
	if d.State() != Completed {
		t.Fatalf("state = %s, want completed", d.State())
	}
	// a new burst does not restart from completed
	d.Process(20)
	if d.State() != Completed {
		t.Fatalf("state = %s, want completed", d.State())
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	d, _ := New(make([]float64, 4), 0, 0)
	for _, v := range []float64{1, 2, 3, 4} {
		d.Sample(v)
	}
	d.Sample(5)

	want := []float64{2, 3, 4, 5}
	got := d.Window()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window = %v, want %v", got, want)
		}
	}
}

func TestConvolveMatchesDirectSum(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{0, 1, 0.5}
	dst := make([]float64, 5)
	convolve(dst, a, b)

	want := []float64{0, 1, 2.5, 4, 1.5}
	for i := range want {
		if math.Abs(dst[i]-want[i]) > 1e-12 {
			t.Fatalf("conv = %v, want %v", dst, want)
		}
	}
}

func TestEvenLengthOffset(t *testing.T) {
	d, _ := New([]float64{1, 1, 1, 1}, 100, 0)
	feedWindow(d, []float64{1, 1, 1, 1})
	// conv = [1 2 3 4 3 2 1], offset 2 -> 3+4+3+2
	if d.Energy() != 12 {
		t.Fatalf("Energy = %v, want 12", d.Energy())
	}
}

func TestNewRejectsEmptyReference(t *testing.T) {
	if _, err := New(nil, 1, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestReset(t *testing.T) {
	d, _ := New([]float64{1}, 1, 0)
	d.Process(5)
	d.Reset()
	if d.State() != Idle || d.Window()[0] != 0 {
		t.Fatalf("Reset left state %s window %v", d.State(), d.Window())
	}
}
