package congestion_pulse

import (
	"math"

	E "github.com/sagernet/sing/common/exceptions"
)

// Waveform is the periodic shape applied to the base window.
type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformSquare
	WaveformTriangle
	WaveformSawtooth
)

func (w Waveform) String() string {
	switch w {
	case WaveformSine:
		return "sine"
	case WaveformSquare:
		return "square"
	case WaveformTriangle:
		return "triangle"
	case WaveformSawtooth:
		return "sawtooth"
	default:
		return "unknown"
	}
}

// IsValid reports whether w has an entry in the waveform table.
func (w Waveform) IsValid() bool {
	_, loaded := waveforms[w]
	return loaded
}

// Value evaluates the waveform at phase (radians). The result is in [-1, 1].
func (w Waveform) Value(phase float64) float64 {
	return waveforms[w](phase)
}

// ParseWaveform parses the names produced by Waveform.String.
func ParseWaveform(name string) (Waveform, error) {
	for w := range waveforms {
		if w.String() == name {
			return w, nil
		}
	}
	return 0, E.New("unknown waveform: ", name)
}

var waveforms = map[Waveform]func(phase float64) float64{
	WaveformSine: math.Sin,
	WaveformSquare: func(phase float64) float64 {
		if cycleFraction(phase) < 0.5 {
			return 1
		}
		return -1
	},
	WaveformTriangle: func(phase float64) float64 {
		return 4*math.Abs(cycleFraction(phase)-0.5) - 1
	},
	WaveformSawtooth: func(phase float64) float64 {
		return 2*cycleFraction(phase) - 1
	},
}

// cycleFraction maps a phase to (freq*t) mod 1.
func cycleFraction(phase float64) float64 {
	x := math.Mod(phase/(2*math.Pi), 1)
	if x < 0 {
		x++
	}
	return x
}
