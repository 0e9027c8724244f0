package main

import (
	"math"
	"testing"
)

func TestDriftDetectorIdenticalFramesNeverDetect(t *testing.T) {
	detector := newDriftDetector(testBasis())
	frame := uniformFace(0.5)

	for step := 1; step <= 12; step++ {
		if detector.Observe(frame) {
			t.Fatalf("unexpected detection at step %d for identical frames", step)
		}
	}

	for i, rmse := range detector.history {
		if rmse > 1e-9 {
			t.Fatalf("history[%d] = %v, want ~0 for identical frames", i, rmse)
		}
	}
}

func TestDriftDetectorDetectsChangedFrame(t *testing.T) {
	detector := newDriftDetector(testBasis())
	baseline := uniformFace(0.2)
	changed := uniformFace(0.8)

	for step := 1; step <= 10; step++ {
		if detector.Observe(baseline) {
			t.Fatalf("unexpected detection at step %d, before the changed frame", step)
		}
	}

	if !detector.Observe(changed) {
		t.Fatal("expected detection on the changed frame at step 11")
	}
}

func TestDriftDetectorNoDetectionBeforeMinHistory(t *testing.T) {
	detector := newDriftDetector(testBasis())
	baseline := uniformFace(0.2)
	changed := uniformFace(0.8)

	// A wild swing on the very first frames still cannot trigger until
	// the history is long enough to smooth.
	for step := 1; step < driftMinHistory; step++ {
		frame := baseline
		if step%2 == 0 {
			frame = changed
		}
		if detector.Observe(frame) {
			t.Fatalf("unexpected detection at step %d with only %d history samples", step, step)
		}
	}
}

func TestDriftDetectorFirstSampleDeviationIsZero(t *testing.T) {
	detector := newDriftDetector(testBasis())
	detector.Observe(uniformFace(0.9))

	if len(detector.history) != 1 {
		t.Fatalf("history length = %d, want 1", len(detector.history))
	}
	if detector.history[0] != 0 {
		t.Fatalf("first deviation = %v, want 0", detector.history[0])
	}
}

func TestDriftDetectorWindowAndHistoryBounded(t *testing.T) {
	detector := newDriftDetector(testBasis())

	for step := 0; step < driftWindow*driftHistoryFactor+25; step++ {
		detector.Observe(uniformFace(float64(step%7) / 7))
	}

	if len(detector.window) != driftWindow {
		t.Fatalf("window length = %d, want %d", len(detector.window), driftWindow)
	}
	if len(detector.history) != driftWindow*driftHistoryFactor {
		t.Fatalf("history length = %d, want %d", len(detector.history), driftWindow*driftHistoryFactor)
	}
}

func TestSmoothQuadraticReproducesQuadratic(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		x := float64(i)
		series[i] = 3 + 0.5*x - 0.02*x*x
	}

	smoothed := smoothQuadratic(series)

	for i := range series {
		if math.Abs(smoothed[i]-series[i]) > 1e-9 {
			t.Fatalf("smoothed[%d] = %v, want %v", i, smoothed[i], series[i])
		}
	}
}

func TestSmoothQuadraticShortSeriesPassthrough(t *testing.T) {
	series := []float64{1, 2}
	smoothed := smoothQuadratic(series)

	if len(smoothed) != 2 || smoothed[0] != 1 || smoothed[1] != 2 {
		t.Fatalf("short series changed by smoothing: %v", smoothed)
	}
}

func TestFindPeaks(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		height float64
		want   []int
	}{
		{"interior peak", []float64{0, 1, 0}, 0.5, []int{1}},
		{"below threshold", []float64{0, 0.3, 0}, 0.5, nil},
		{"trailing peak", []float64{0, 0, 0, 1}, 0.5, []int{3}},
		{"leading peak", []float64{1, 0, 0}, 0.5, []int{0}},
		{"flat series", []float64{1, 1, 1}, 0.5, nil},
		{"two peaks", []float64{0, 2, 0, 3, 0}, 1, []int{1, 3}},
	}

	for _, tc := range tests {
		got := findPeaks(tc.series, tc.height)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: peaks = %v, want %v", tc.name, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: peaks = %v, want %v", tc.name, got, tc.want)
			}
		}
	}
}

func TestEigenBasisDegenerateReferenceSet(t *testing.T) {
	basis := NewEigenBasis([]*Face{uniformFace(0)}, eigenComponents)

	projection := basis.Project(uniformFace(0.7))
	if len(projection) != eigenComponents {
		t.Fatalf("projection length = %d, want %d", len(projection), eigenComponents)
	}

	// The fallback basis projects onto raw centered pixels.
	for i, v := range projection {
		if math.Abs(v-0.7) > 1e-9 {
			t.Fatalf("projection[%d] = %v, want 0.7", i, v)
		}
	}
}

func TestEigenBasisSeparatesDistinctFrames(t *testing.T) {
	basis := testBasis()

	a := basis.Project(uniformFace(0.2))
	b := basis.Project(uniformFace(0.8))

	var dist float64
	for i := range a {
		diff := a[i] - b[i]
		dist += diff * diff
	}

	if math.Sqrt(dist) < 1 {
		t.Fatalf("projections of distinct frames too close: %v", math.Sqrt(dist))
	}
}
