package main

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// Sliding window of recent eigenface projections per player.
	driftWindow = 10
	// The deviation history holds four windows' worth of samples.
	driftHistoryFactor = 4
	// Smoothing and peak detection wait for this many deviation samples.
	driftMinHistory = 10
	// Amplitude a smoothed peak must reach to count as a change.
	driftPeakThreshold = 0.005
	// Number of basis components retained from the reference set.
	eigenComponents = 50
)

// EigenBasis is a fixed linear basis for face images: the mean face of a
// reference set plus the leading right singular vectors of the centered
// reference matrix. Projecting onto it yields a compact appearance
// fingerprint.
type EigenBasis struct {
	mean       []float64
	components *mat.Dense // one component per row
}

// NewEigenBasis computes the basis from a reference image set. A
// degenerate reference set (e.g. all-zero placeholder frames) falls back
// to a truncated standard basis rather than failing.
func NewEigenBasis(refs []*Face, k int) *EigenBasis {
	if len(refs) == 0 {
		refs = []*Face{newFace(faceSize, faceSize)}
	}

	dim := len(refs[0].Pix)
	if k > dim {
		k = dim
	}

	mean := make([]float64, dim)
	for _, ref := range refs {
		for i, v := range ref.Pix {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(refs))
	}

	centered := mat.NewDense(len(refs), dim, nil)
	for r, ref := range refs {
		for i, v := range ref.Pix {
			centered.Set(r, i, v-mean[i])
		}
	}

	var svd mat.SVD
	components := mat.NewDense(k, dim, nil)

	if svd.Factorize(centered, mat.SVDThin) {
		values := svd.Values(nil)

		var v mat.Dense
		svd.VTo(&v)
		_, cols := v.Dims()

		kept := 0
		for j := 0; j < cols && kept < k; j++ {
			if values[j] <= 1e-12 {
				continue
			}
			for i := 0; i < dim; i++ {
				components.Set(kept, i, v.At(i, j))
			}
			kept++
		}

		if kept > 0 {
			return &EigenBasis{mean: mean, components: components}
		}
	}

	// Degenerate reference set: project onto raw centered pixels.
	for i := 0; i < k; i++ {
		components.Set(i, i, 1)
	}
	return &EigenBasis{mean: mean, components: components}
}

// Project returns the coordinates of a face image in the basis.
func (b *EigenBasis) Project(face *Face) []float64 {
	dim := len(b.mean)
	centered := mat.NewVecDense(dim, nil)
	for i := 0; i < dim && i < len(face.Pix); i++ {
		centered.SetVec(i, face.Pix[i]-b.mean[i])
	}

	rows, _ := b.components.Dims()
	projection := mat.NewVecDense(rows, nil)
	projection.MulVec(b.components, centered)

	return projection.RawVector().Data
}

// defaultEigenBasis builds a placeholder basis from a single flat frame.
// Real deployments would feed NewEigenBasis a curated reference set.
func defaultEigenBasis() *EigenBasis {
	return NewEigenBasis([]*Face{newFace(faceSize, faceSize)}, eigenComponents)
}

// DriftDetector flags significant appearance changes in one player's
// face stream: project each frame, track the deviation of the current
// projection from the rolling window mean, smooth the deviation history,
// and look for peaks above a fixed amplitude.
type DriftDetector struct {
	basis   *EigenBasis
	window  [][]float64
	history []float64
}

func newDriftDetector(basis *EigenBasis) *DriftDetector {
	return &DriftDetector{basis: basis}
}

// Observe ingests one frame and reports whether a significant change is
// visible at this step. Before the history reaches driftMinHistory
// samples it always reports false.
func (d *DriftDetector) Observe(face *Face) bool {
	projection := d.basis.Project(face)

	d.window = append(d.window, projection)
	if len(d.window) > driftWindow {
		d.window = d.window[1:]
	}

	d.history = append(d.history, d.deviation(projection))
	if len(d.history) > driftWindow*driftHistoryFactor {
		d.history = d.history[1:]
	}

	if len(d.history) < driftMinHistory {
		return false
	}

	smoothed := smoothQuadratic(d.history)

	return len(findPeaks(smoothed, driftPeakThreshold)) > 0
}

// deviation is the root-mean-square distance of the projection from the
// window mean. A single-sample window has nothing to deviate from.
func (d *DriftDetector) deviation(projection []float64) float64 {
	if len(d.window) < 2 {
		return 0
	}

	avg := make([]float64, len(projection))
	for _, p := range d.window {
		for i, v := range p {
			avg[i] += v
		}
	}
	for i := range avg {
		avg[i] /= float64(len(d.window))
	}

	var mse float64
	for i, v := range projection {
		diff := v - avg[i]
		mse += diff * diff
	}
	mse /= float64(len(projection))

	return math.Sqrt(mse)
}

// smoothQuadratic fits an order-2 polynomial to the series by least
// squares and evaluates it at every index, a Savitzky-Golay filter
// whose window spans the whole series.
func smoothQuadratic(series []float64) []float64 {
	m := len(series)
	if m < 3 {
		return append([]float64(nil), series...)
	}

	design := mat.NewDense(m, 3, nil)
	rhs := mat.NewVecDense(m, nil)
	for i, v := range series {
		x := float64(i)
		design.Set(i, 0, 1)
		design.Set(i, 1, x)
		design.Set(i, 2, x*x)
		rhs.SetVec(i, v)
	}

	var qr mat.QR
	qr.Factorize(design)

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, rhs); err != nil {
		return append([]float64(nil), series...)
	}

	smoothed := make([]float64, m)
	for i := range smoothed {
		x := float64(i)
		smoothed[i] = coef.AtVec(0) + coef.AtVec(1)*x + coef.AtVec(2)*x*x
	}
	return smoothed
}

// findPeaks returns the indices of local maxima at or above height.
// Endpoints count when they exceed their single neighbor, so a change on
// the newest sample is reportable immediately.
func findPeaks(series []float64, height float64) []int {
	var peaks []int
	for i, v := range series {
		if v < height {
			continue
		}
		if i > 0 && series[i-1] >= v {
			continue
		}
		if i < len(series)-1 && series[i+1] >= v {
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}
