package congestion_pulse

import (
	"math"
	"time"
)

// neutralRatio is reported whenever the window cannot support a ratio.
const neutralRatio = 0.5

// Sample is one sampling tick as seen by the analyzer. Rates are byte counts
// scaled to the RTT estimate; RTT is in seconds.
type Sample struct {
	DeltaT    float64
	Cwnd      float64
	AckedRate float64
	RTT       float64
	BaseCwnd  float64
	SentRate  float64
	LostRate  float64
}

// Statistics is everything the analyzer derives from one window.
type Statistics struct {
	Samples         int
	RTT             time.Duration
	Ratio           float64
	RatioMean       float64
	RatioPercentile float64
	LossRate        float64
	BDP             float64
	HasBDP          bool
	HarmonicRatio   float64
}

// Analyzer keeps the sliding window of samples and the history of ratios
// computed from it.
type Analyzer struct {
	params  *Params
	samples *Window[Sample]
	ratios  *Window[float64]
	stats   Statistics
}

// NewAnalyzer creates an analyzer sized by params.WindowCapacity.
func NewAnalyzer(params *Params) *Analyzer {
	capacity := params.WindowCapacity()
	a := &Analyzer{
		params:  params,
		samples: NewWindow[Sample](capacity),
		ratios:  NewWindow[float64](capacity),
	}
	a.stats = Statistics{
		RTT:             params.InitialRTT,
		Ratio:           neutralRatio,
		RatioMean:       neutralRatio,
		RatioPercentile: neutralRatio,
	}
	return a
}

// Push appends a sample, clamping negative rates to zero.
func (a *Analyzer) Push(sample Sample) {
	sample.AckedRate = math.Max(sample.AckedRate, 0)
	sample.SentRate = math.Max(sample.SentRate, 0)
	sample.LostRate = math.Max(sample.LostRate, 0)
	a.samples.Push(sample)
}

// Samples exposes the sliding window.
func (a *Analyzer) Samples() *Window[Sample] {
	return a.samples
}

// Statistics returns the result of the last Update.
func (a *Analyzer) Statistics() Statistics {
	return a.stats
}

// Update recomputes every statistic from the current window and records the
// new ratio in the ratio history.
func (a *Analyzer) Update() Statistics {
	ratio := a.CongestionWindowRatio()
	a.ratios.Push(ratio)
	history := a.ratios.Values()
	bdp, hasBDP := a.BDPEstimate()
	a.stats = Statistics{
		Samples:         a.samples.Len(),
		RTT:             a.RTTEstimate(),
		Ratio:           ratio,
		RatioMean:       mean(history),
		RatioPercentile: percentile(history, a.params.IncreasePercentile),
		LossRate:        a.LossRate(),
		BDP:             bdp,
		HasBDP:          hasBDP,
		HarmonicRatio:   a.HarmonicRatio(),
	}
	return a.stats
}

// RTTEstimate is the smallest positive RTT in the window.
func (a *Analyzer) RTTEstimate() time.Duration {
	best := math.Inf(1)
	for i := 0; i < a.samples.Len(); i++ {
		if rtt := a.samples.At(i).RTT; rtt > 0 && rtt < best {
			best = rtt
		}
	}
	if math.IsInf(best, 1) {
		return a.params.InitialRTT
	}
	return time.Duration(best * float64(time.Second))
}

// CongestionWindowRatio compares the probed window peak with the delivered
// peak, normalised by the peak-to-peak probing amplitude. It tends to 0 when
// delivery follows the probe and to 1 when the path saturates below it.
func (a *Analyzer) CongestionWindowRatio() float64 {
	newest, loaded := a.samples.Last()
	if !loaded {
		return neutralRatio
	}
	denominator := 2 * newest.BaseCwnd * a.params.BaseToAmplitudeRatio
	if !(denominator > 0) {
		return neutralRatio
	}
	maxCwnd := math.Inf(-1)
	maxAcked := math.Inf(-1)
	for i := 0; i < a.samples.Len(); i++ {
		sample := a.samples.At(i)
		maxCwnd = math.Max(maxCwnd, sample.Cwnd)
		maxAcked = math.Max(maxAcked, sample.AckedRate)
	}
	return (maxCwnd - maxAcked) / denominator
}

// LossRate is the lost share of sent bytes over the window.
func (a *Analyzer) LossRate() float64 {
	var lost, sent float64
	for i := 0; i < a.samples.Len(); i++ {
		sample := a.samples.At(i)
		lost += sample.LostRate
		sent += sample.SentRate
	}
	return lost / math.Max(sent, a.params.LossEpsilon)
}

// BDPEstimate reduces the resampled acked-rate series to a window size.
func (a *Analyzer) BDPEstimate() (float64, bool) {
	series := a.ackedSeries()
	if len(series) == 0 {
		return 0, false
	}
	if a.params.BDPEstimator == BDPEstimatorPeaks {
		peaks := findPeaks(series)
		if len(peaks) > 0 {
			var sum float64
			for _, i := range peaks {
				sum += series[i]
			}
			return sum / float64(len(peaks)), true
		}
	}
	return MaxOf(series), true
}

// HarmonicRatio is the second-harmonic to fundamental magnitude ratio of the
// acked-rate response.
func (a *Analyzer) HarmonicRatio() float64 {
	return harmonicRatio(a.ackedSeries(), a.params.SamplingRate, a.params.ModulationFrequency, a.params.ZeroPadFactor)
}

// ackedSeries is the acked-rate column on a uniform time grid, smoothed.
func (a *Analyzer) ackedSeries() []float64 {
	n := a.samples.Len()
	if n == 0 {
		return nil
	}
	ts := make([]float64, n)
	vs := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := a.samples.At(i)
		ts[i] = sample.DeltaT
		vs[i] = sample.AckedRate
	}
	return smooth(resample(ts, vs, a.params.SamplingRate), a.params.SmoothingWidth)
}
