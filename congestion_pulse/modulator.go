package congestion_pulse

import (
	"math"
	"time"

	"github.com/sagernet/quic-go/congestion"
)

// Modulator turns the base window into the instantaneous congestion window.
type Modulator struct {
	frequency      float64
	amplitudeRatio float64
	waveform       Waveform
	minWindow      congestion.ByteCount
	maxWindow      congestion.ByteCount
}

// NewModulator creates a modulator from params.
func NewModulator(params *Params) *Modulator {
	return &Modulator{
		frequency:      params.ModulationFrequency,
		amplitudeRatio: params.BaseToAmplitudeRatio,
		waveform:       params.Waveform,
		minWindow:      params.MinCongestionWindow,
		maxWindow:      params.MaxCongestionWindow,
	}
}

// Window returns the congestion window deltaT after the start of modulation
// for the given base window.
func (m *Modulator) Window(deltaT time.Duration, base float64) congestion.ByteCount {
	amplitude := base * m.amplitudeRatio
	phase := 2 * math.Pi * m.frequency * deltaT.Seconds()
	cwnd := congestion.ByteCount(math.Round(base + amplitude*m.waveform.Value(phase)))
	return Clamp(cwnd, m.minWindow, m.maxWindow)
}

// Period is the length of one modulation cycle.
func (m *Modulator) Period() time.Duration {
	return time.Duration(float64(time.Second) / m.frequency)
}
