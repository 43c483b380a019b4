package congestion_pulse

import (
	"math"
	"time"
)

// Mode represents the PULSE adaptation state machine states.
type Mode int

const (
	// ModeStartup holds the base window while the analyzer fills.
	ModeStartup Mode = iota
	// ModeIncrease grows the base window geometrically until the response saturates.
	ModeIncrease
	// ModeCorrect snaps the base window to the BDP estimate.
	ModeCorrect
	// ModeSense watches losses for one window span after a correction.
	ModeSense
	// ModeStatic holds the base window while the ratio stays in the stable band.
	ModeStatic
)

func (m Mode) String() string {
	switch m {
	case ModeStartup:
		return "STARTUP"
	case ModeIncrease:
		return "INCREASE"
	case ModeCorrect:
		return "CORRECT"
	case ModeSense:
		return "SENSE"
	case ModeStatic:
		return "STATIC"
	default:
		return "UNKNOWN"
	}
}

// Observation is the input of one control tick.
type Observation struct {
	Statistics
	// Time spent in the current mode.
	InMode time.Duration
}

// ControlState is the state owned by the adaptation state machine.
type ControlState struct {
	Mode Mode
	// Base window in bytes.
	Base float64
	// Loss rate remembered by the first mitigation of a loss excursion.
	SuppressedLoss float64
	// PinRTT asks the caller to move the scaling RTT to the analyzer estimate.
	PinRTT bool
}

// Advance computes the state after one control tick. It has no side effects.
func Advance(state ControlState, obs Observation, params *Params) ControlState {
	next := state
	next.PinRTT = false

	switch state.Mode {
	case ModeStartup:
		if obs.InMode > params.StartupWait() {
			next.PinRTT = true
			next.Mode = ModeIncrease
		}
	case ModeIncrease:
		next.Base = state.Base * params.increaseFactor()
		if obs.RatioPercentile > params.SaturationThreshold {
			next.Mode = ModeCorrect
		}
	case ModeCorrect:
		if obs.HasBDP {
			next.Base = obs.BDP
		}
		next.Mode = ModeSense
	case ModeSense:
		next.PinRTT = true
		if params.LossMitigation && obs.LossRate > params.LossThreshold {
			if state.SuppressedLoss == 0 {
				next.SuppressedLoss = obs.LossRate
			}
			next.Base = state.Base * params.LossDecay
		}
		if obs.InMode > params.WindowSpan() {
			next.Mode = ModeStatic
		}
	case ModeStatic:
		switch {
		case obs.RatioMean < params.StableLow && (state.SuppressedLoss == 0 || !params.LossMitigation):
			next.Mode = ModeCorrect
		case obs.RatioMean > params.StableHigh:
			next.Mode = ModeCorrect
		case params.LossMitigation && obs.LossRate > 0:
			next.Mode = ModeSense
		}
	}

	if next.Mode == ModeSense && state.Mode != ModeSense {
		next.SuppressedLoss = 0
	}
	next.Base = math.Max(next.Base, float64(params.MinCongestionWindow))
	if params.MaxCongestionWindow > 0 {
		next.Base = math.Min(next.Base, float64(params.MaxCongestionWindow))
	}
	return next
}
