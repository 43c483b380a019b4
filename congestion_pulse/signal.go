package congestion_pulse

import (
	"math"
	"math/cmplx"
	"sort"
)

// uniformGrid returns the points start, start+step, ... strictly below stop.
func uniformGrid(start, stop, step float64) []float64 {
	if !(step > 0) || !(stop > start) {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = start + float64(i)*step
	}
	return grid
}

// interpolate evaluates the piecewise linear function through (ts, vs) at
// every x, holding the end values outside [ts[0], ts[len-1]]. ts must be
// non-decreasing.
func interpolate(xs, ts, vs []float64) []float64 {
	out := make([]float64, len(xs))
	last := len(ts) - 1
	for i, x := range xs {
		switch {
		case x <= ts[0]:
			out[i] = vs[0]
		case x >= ts[last]:
			out[i] = vs[last]
		default:
			j := sort.SearchFloat64s(ts, x)
			if ts[j] == x {
				out[i] = vs[j]
				continue
			}
			t0, t1 := ts[j-1], ts[j]
			out[i] = vs[j-1] + (vs[j]-vs[j-1])*(x-t0)/(t1-t0)
		}
	}
	return out
}

// resample moves (ts, vs) onto a grid of the given rate. Series too short to
// interpolate are returned as a copy.
func resample(ts, vs []float64, rate float64) []float64 {
	if len(ts) < 2 {
		return append([]float64(nil), vs...)
	}
	grid := uniformGrid(ts[0], ts[len(ts)-1], 1/rate)
	if len(grid) == 0 {
		return append([]float64(nil), vs...)
	}
	return interpolate(grid, ts, vs)
}

// smooth applies a centred moving average of the given width, shrinking the
// window at the edges.
func smooth(vs []float64, width int) []float64 {
	out := make([]float64, len(vs))
	if width <= 1 {
		copy(out, vs)
		return out
	}
	half := width / 2
	for i := range vs {
		lo := max(0, i-half)
		hi := min(len(vs), lo+width)
		lo = max(0, hi-width)
		out[i] = mean(vs[lo:hi])
	}
	return out
}

// findPeaks returns the indices of strict local maxima. A flat top counts once,
// at its midpoint; the first and last element are never peaks.
func findPeaks(vs []float64) []int {
	var peaks []int
	last := len(vs) - 1
	for i := 1; i < last; i++ {
		if vs[i-1] >= vs[i] {
			continue
		}
		ahead := i + 1
		for ahead < last && vs[ahead] == vs[i] {
			ahead++
		}
		if vs[ahead] < vs[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead
		}
	}
	return peaks
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return SumOf(vs) / float64(len(vs))
}

// percentile uses linear interpolation between closest ranks. vs must not be
// empty.
func percentile(vs []float64, p float64) float64 {
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// detrend removes the least-squares line through (i, vs[i]).
func detrend(vs []float64) []float64 {
	n := float64(len(vs))
	out := make([]float64, len(vs))
	if len(vs) < 2 {
		return out
	}
	xMean := (n - 1) / 2
	yMean := mean(vs)
	var sxy, sxx float64
	for i, v := range vs {
		dx := float64(i) - xMean
		sxy += dx * (v - yMean)
		sxx += dx * dx
	}
	slope := sxy / sxx
	for i, v := range vs {
		out[i] = v - (yMean + slope*(float64(i)-xMean))
	}
	return out
}

// hann returns the symmetric Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
	}
	for i := 0; n > 1 && i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// binMagnitude is |X[k]| of the length-n DFT of vs zero-padded to n, for the
// real-FFT bin nearest to freq at sampling rate rate.
func binMagnitude(vs []float64, n int, rate, freq float64) float64 {
	k := int(math.Round(freq * float64(n) / rate))
	k = Clamp(k, 0, n/2)
	var sum complex128
	for i, v := range vs {
		sum += complex(v, 0) * cmplx.Rect(1, -2*math.Pi*float64(k)*float64(i)/float64(n))
	}
	return cmplx.Abs(sum)
}

// harmonicRatio compares the second harmonic of freq to the fundamental in a
// detrended, Hann-windowed and zero-padded copy of vs.
func harmonicRatio(vs []float64, rate, freq float64, padFactor int) float64 {
	if len(vs) < 2 {
		return 0
	}
	x := detrend(vs)
	for i, w := range hann(len(x)) {
		x[i] *= w
	}
	n := len(x) * (1 + padFactor)
	base := binMagnitude(x, n, rate, freq)
	if base == 0 {
		return 0
	}
	return binMagnitude(x, n, rate, 2*freq) / base
}
