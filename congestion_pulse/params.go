package congestion_pulse

import (
	"math"
	"time"

	"github.com/sagernet/quic-go/congestion"
	E "github.com/sagernet/sing/common/exceptions"
)

const (
	// DefaultInitialBaseWindow is the base window used before any adaptation.
	DefaultInitialBaseWindow = 30000

	// DefaultMinimumCongestionWindow is the floor applied to every window the
	// modulator produces.
	DefaultMinimumCongestionWindow = 4 * congestion.InitialPacketSize

	maxWindowPeriods = 5
)

// BDPEstimator selects how the analyzer reduces the acked-rate series to a
// bandwidth-delay product.
type BDPEstimator int

const (
	// BDPEstimatorPeaks averages the local maxima of the resampled series and
	// falls back to its maximum when no peak exists.
	BDPEstimatorPeaks BDPEstimator = iota
	// BDPEstimatorMax takes the maximum of the resampled series.
	BDPEstimatorMax
)

func (e BDPEstimator) String() string {
	switch e {
	case BDPEstimatorPeaks:
		return "peaks"
	case BDPEstimatorMax:
		return "max"
	default:
		return "unknown"
	}
}

// ParseBDPEstimator parses the names produced by BDPEstimator.String.
func ParseBDPEstimator(name string) (BDPEstimator, error) {
	switch name {
	case "", "peaks":
		return BDPEstimatorPeaks, nil
	case "max":
		return BDPEstimatorMax, nil
	default:
		return 0, E.New("unknown bdp estimator: ", name)
	}
}

// Params contains PULSE tunable parameters.
type Params struct {
	// Probing
	SamplingRate         float64 // samples per second
	ModulationFrequency  float64 // Hz
	BaseToAmplitudeRatio float64
	Waveform             Waveform
	ModulationSubsteps   int

	// Window bounds
	InitialBaseWindow   congestion.ByteCount
	MinCongestionWindow congestion.ByteCount
	MaxCongestionWindow congestion.ByteCount // 0 means unbounded
	InitialRTT          time.Duration

	// Analyzer
	WindowPeriods      int
	LossEpsilon        float64
	BDPEstimator       BDPEstimator
	SmoothingWidth     int
	ZeroPadFactor      int
	IncreasePercentile float64

	// STARTUP
	StartupSpans float64

	// INCREASE
	IncreaseStep        float64
	SaturationThreshold float64

	// SENSE
	LossMitigation bool
	LossThreshold  float64
	LossDecay      float64

	// STATIC
	StableLow  float64
	StableHigh float64

	// PinScalingRTT keeps the byte-rate scaling RTT on the analyzer snapshots
	// taken by the state machine instead of following every RTT sample.
	PinScalingRTT bool

	// Metrics lists the registered metric names in snapshot order.
	Metrics []string
}

// DefaultParams returns the default PULSE parameters.
func DefaultParams() *Params {
	return &Params{
		SamplingRate:         5,
		ModulationFrequency:  1,
		BaseToAmplitudeRatio: 0.25,
		Waveform:             WaveformSine,
		ModulationSubsteps:   1,

		InitialBaseWindow:   DefaultInitialBaseWindow,
		MinCongestionWindow: DefaultMinimumCongestionWindow,
		InitialRTT:          100 * time.Millisecond,

		WindowPeriods:      2,
		LossEpsilon:        1,
		BDPEstimator:       BDPEstimatorPeaks,
		SmoothingWidth:     1,
		ZeroPadFactor:      4,
		IncreasePercentile: 25,

		StartupSpans: 2,

		IncreaseStep:        0.05,
		SaturationThreshold: 0.5,

		LossThreshold: 0.01,
		LossDecay:     0.99,

		StableLow:  0.4,
		StableHigh: 0.6,

		Metrics: DefaultMetrics(),
	}
}

// Validate reports the first invalid parameter.
func (p *Params) Validate() error {
	switch {
	case !(p.SamplingRate > 0) || math.IsInf(p.SamplingRate, 0):
		return E.New("invalid sampling rate: ", p.SamplingRate)
	case !(p.ModulationFrequency > 0) || math.IsInf(p.ModulationFrequency, 0):
		return E.New("invalid modulation frequency: ", p.ModulationFrequency)
	case !(p.BaseToAmplitudeRatio > 0) || p.BaseToAmplitudeRatio >= 1:
		return E.New("base to amplitude ratio must be in (0, 1): ", p.BaseToAmplitudeRatio)
	case !p.Waveform.IsValid():
		return E.New("invalid waveform: ", int(p.Waveform))
	case p.ModulationSubsteps < 1:
		return E.New("modulation substeps must be positive: ", p.ModulationSubsteps)
	case p.InitialBaseWindow <= 0:
		return E.New("missing initial base window")
	case p.MinCongestionWindow <= 0:
		return E.New("missing minimum congestion window")
	case p.MaxCongestionWindow != 0 && p.MaxCongestionWindow < p.MinCongestionWindow:
		return E.New("maximum congestion window below minimum: ", p.MaxCongestionWindow)
	case p.InitialRTT <= 0:
		return E.New("missing initial rtt")
	case p.WindowPeriods < 1 || p.WindowPeriods > maxWindowPeriods:
		return E.New("window periods must be in [1, ", maxWindowPeriods, "]: ", p.WindowPeriods)
	case p.WindowCapacity() < 2:
		return E.New("sliding window must hold at least two samples, got ", p.WindowCapacity())
	case !(p.LossEpsilon > 0):
		return E.New("loss epsilon must be positive")
	case p.SmoothingWidth < 1:
		return E.New("smoothing width must be positive: ", p.SmoothingWidth)
	case p.ZeroPadFactor < 0:
		return E.New("zero pad factor must not be negative: ", p.ZeroPadFactor)
	case p.IncreasePercentile < 0 || p.IncreasePercentile > 100:
		return E.New("increase percentile must be in [0, 100]: ", p.IncreasePercentile)
	case !(p.StartupSpans >= 0):
		return E.New("startup spans must not be negative")
	case !(p.IncreaseStep > 0):
		return E.New("increase step must be positive")
	case p.LossDecay <= 0 || p.LossDecay > 1:
		return E.New("loss decay must be in (0, 1]: ", p.LossDecay)
	case p.LossThreshold < 0:
		return E.New("loss threshold must not be negative")
	case p.StableLow > p.StableHigh:
		return E.New("stable band inverted: ", p.StableLow, " > ", p.StableHigh)
	}
	return nil
}

// SamplingInterval is the period of the sampler and the control loop.
func (p *Params) SamplingInterval() time.Duration {
	return time.Duration(float64(time.Second) / p.SamplingRate)
}

// ModulationInterval is the period of the modulator.
func (p *Params) ModulationInterval() time.Duration {
	return p.SamplingInterval() / time.Duration(p.ModulationSubsteps)
}

// WindowCapacity is the number of samples spanning WindowPeriods modulation periods.
func (p *Params) WindowCapacity() int {
	return int(math.Round(p.SamplingRate / p.ModulationFrequency * float64(p.WindowPeriods)))
}

// WindowSpan is the wall time covered by a full sliding window.
func (p *Params) WindowSpan() time.Duration {
	return time.Duration(p.WindowCapacity()) * p.SamplingInterval()
}

// StartupWait is how long STARTUP holds the base window.
func (p *Params) StartupWait() time.Duration {
	return time.Duration(p.StartupSpans * float64(p.WindowSpan()))
}

// increaseFactor is the per-tick geometric growth applied in INCREASE.
func (p *Params) increaseFactor() float64 {
	return 1 + 2*math.Pi*p.BaseToAmplitudeRatio*p.ModulationFrequency*p.IncreaseStep
}
