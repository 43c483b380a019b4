package congestion_pulse

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzerEmptyWindow(t *testing.T) {
	params := DefaultParams()
	analyzer := NewAnalyzer(params)

	assert.Equal(t, 0.5, analyzer.Statistics().Ratio)
	assert.Equal(t, 0.5, analyzer.CongestionWindowRatio())
	assert.Equal(t, params.InitialRTT, analyzer.RTTEstimate())
	_, ok := analyzer.BDPEstimate()
	assert.False(t, ok)

	stats := analyzer.Update()
	assert.Equal(t, 0.5, stats.Ratio)
	assert.Equal(t, 0.5, stats.RatioMean)
	assert.Equal(t, 0.5, stats.RatioPercentile)
	assert.Zero(t, stats.LossRate)
	assert.False(t, stats.HasBDP)
}

func TestAnalyzerZeroBase(t *testing.T) {
	analyzer := NewAnalyzer(DefaultParams())
	analyzer.Push(Sample{DeltaT: 0.2, Cwnd: 1000, AckedRate: 500})
	assert.Equal(t, 0.5, analyzer.CongestionWindowRatio())
}

func TestAnalyzerRatioClosedForm(t *testing.T) {
	params := DefaultParams()
	analyzer := NewAnalyzer(params)
	require.Equal(t, 10, params.WindowCapacity())

	var samples []Sample
	for i := 0; i < 15; i++ {
		sample := Sample{
			DeltaT:    0.2 * float64(i+1),
			Cwnd:      100000 + 25000*math.Sin(2*math.Pi*0.2*float64(i+1)),
			AckedRate: 80000 + float64(i%4)*1000,
			RTT:       0.1,
			BaseCwnd:  100000,
		}
		if i == 2 {
			// evicted before the ratio is taken
			sample.Cwnd = 500000
		}
		samples = append(samples, sample)
		analyzer.Push(sample)
	}
	maxCwnd, maxAcked := math.Inf(-1), math.Inf(-1)
	for _, sample := range samples[5:] {
		maxCwnd = math.Max(maxCwnd, sample.Cwnd)
		maxAcked = math.Max(maxAcked, sample.AckedRate)
	}
	expected := (maxCwnd - maxAcked) / (2 * 100000 * 0.25)
	assert.InDelta(t, expected, analyzer.CongestionWindowRatio(), 1e-9)

	stats := analyzer.Update()
	assert.InDelta(t, expected, stats.Ratio, 1e-9)
	assert.InDelta(t, expected, stats.RatioMean, 1e-9)
	assert.Equal(t, 10, stats.Samples)
	assert.Equal(t, 100*time.Millisecond, stats.RTT)
}

func TestAnalyzerRatioHistory(t *testing.T) {
	params := DefaultParams()
	analyzer := NewAnalyzer(params)
	for _, acked := range []float64{100000, 75000, 50000, 25000} {
		analyzer.Samples().Reset()
		analyzer.Push(Sample{DeltaT: 1, Cwnd: 125000, AckedRate: acked, BaseCwnd: 100000})
		analyzer.Update()
	}
	// ratios 0.5, 1, 1.5, 2
	stats := analyzer.Statistics()
	assert.InDelta(t, 1.25, stats.RatioMean, 1e-9)
	assert.InDelta(t, 0.875, stats.RatioPercentile, 1e-9)
}

func TestAnalyzerLossRate(t *testing.T) {
	cases := []struct {
		name string
		sent float64
		lost float64
		want float64
	}{
		{"no loss", 100, 0, 0},
		{"nothing sent", 0, 50, 50},
		{"ten percent", 200, 20, 0.1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			analyzer := NewAnalyzer(DefaultParams())
			analyzer.Push(Sample{DeltaT: 0.2, SentRate: c.sent / 2, LostRate: c.lost / 2})
			analyzer.Push(Sample{DeltaT: 0.4, SentRate: c.sent / 2, LostRate: c.lost / 2})
			assert.InDelta(t, c.want, analyzer.LossRate(), 1e-12)
		})
	}
}

func TestAnalyzerClampsNegativeRates(t *testing.T) {
	analyzer := NewAnalyzer(DefaultParams())
	analyzer.Push(Sample{DeltaT: 0.2, AckedRate: -5, SentRate: -1, LostRate: -2})
	sample, _ := analyzer.Samples().Last()
	assert.Zero(t, sample.AckedRate)
	assert.Zero(t, sample.SentRate)
	assert.Zero(t, sample.LostRate)
}

func TestAnalyzerRTTEstimate(t *testing.T) {
	analyzer := NewAnalyzer(DefaultParams())
	analyzer.Push(Sample{DeltaT: 0.2, RTT: 0.3})
	analyzer.Push(Sample{DeltaT: 0.4, RTT: 0})
	analyzer.Push(Sample{DeltaT: 0.6, RTT: 0.25})
	assert.Equal(t, 250*time.Millisecond, analyzer.RTTEstimate())
}

func TestAnalyzerBDPEstimate(t *testing.T) {
	acked := []float64{1, 3, 1, 5, 1, 3, 1, 1, 1}
	push := func(analyzer *Analyzer) {
		for i, value := range acked {
			analyzer.Push(Sample{DeltaT: 0.2 * float64(i), AckedRate: value})
		}
	}

	params := DefaultParams()
	analyzer := NewAnalyzer(params)
	push(analyzer)
	bdp, ok := analyzer.BDPEstimate()
	require.True(t, ok)
	assert.InDelta(t, 11.0/3, bdp, 1e-9)

	params = DefaultParams()
	params.BDPEstimator = BDPEstimatorMax
	analyzer = NewAnalyzer(params)
	push(analyzer)
	bdp, ok = analyzer.BDPEstimate()
	require.True(t, ok)
	assert.Equal(t, 5.0, bdp)

	analyzer = NewAnalyzer(DefaultParams())
	analyzer.Push(Sample{DeltaT: 0.2, AckedRate: 7})
	analyzer.Push(Sample{DeltaT: 0.4, AckedRate: 9})
	bdp, ok = analyzer.BDPEstimate()
	require.True(t, ok)
	assert.Equal(t, 7.0, bdp, "no peak falls back to the series maximum")
}
