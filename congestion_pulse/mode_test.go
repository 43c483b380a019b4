package congestion_pulse

import (
	"testing"
	"time"

	"github.com/sagernet/quic-go/monotime"
	"github.com/sagernet/sing/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observe(inMode time.Duration, stats Statistics) Observation {
	return Observation{Statistics: stats, InMode: inMode}
}

func TestAdvanceScriptedRun(t *testing.T) {
	params := DefaultParams()
	require.Equal(t, 2*time.Second, params.WindowSpan())
	require.Equal(t, 4*time.Second, params.StartupWait())

	state := ControlState{Mode: ModeStartup, Base: 30000}

	state = Advance(state, observe(time.Second, Statistics{RatioPercentile: 0.95}), params)
	assert.Equal(t, ModeStartup, state.Mode)
	assert.Equal(t, 30000.0, state.Base)
	assert.False(t, state.PinRTT)

	state = Advance(state, observe(4200*time.Millisecond, Statistics{}), params)
	assert.Equal(t, ModeIncrease, state.Mode)
	assert.True(t, state.PinRTT)

	growth := params.increaseFactor()
	assert.InDelta(t, 1+2*3.141592653589793*0.25*0.05, growth, 1e-12)
	state = Advance(state, observe(200*time.Millisecond, Statistics{RatioPercentile: 0.3}), params)
	assert.Equal(t, ModeIncrease, state.Mode)
	assert.InDelta(t, 30000*growth, state.Base, 1e-6)
	assert.False(t, state.PinRTT)

	state = Advance(state, observe(400*time.Millisecond, Statistics{RatioPercentile: 0.95}), params)
	assert.Equal(t, ModeCorrect, state.Mode)
	assert.InDelta(t, 30000*growth*growth, state.Base, 1e-6)

	state = Advance(state, observe(0, Statistics{BDP: 50000, HasBDP: true}), params)
	assert.Equal(t, ModeSense, state.Mode)
	assert.Equal(t, 50000.0, state.Base)

	state = Advance(state, observe(time.Second, Statistics{LossRate: 0.2}), params)
	assert.Equal(t, ModeSense, state.Mode)
	assert.True(t, state.PinRTT)
	assert.Equal(t, 50000.0, state.Base, "loss is ignored without mitigation")

	state = Advance(state, observe(2200*time.Millisecond, Statistics{}), params)
	assert.Equal(t, ModeStatic, state.Mode)

	state = Advance(state, observe(time.Second, Statistics{RatioMean: 0.5, LossRate: 0.3}), params)
	assert.Equal(t, ModeStatic, state.Mode)

	state = Advance(state, observe(2*time.Second, Statistics{RatioMean: 0.95}), params)
	assert.Equal(t, ModeCorrect, state.Mode)
}

func TestAdvanceStaticLeavesBand(t *testing.T) {
	params := DefaultParams()
	static := ControlState{Mode: ModeStatic, Base: 80000}

	assert.Equal(t, ModeCorrect, Advance(static, observe(0, Statistics{RatioMean: 0.2}), params).Mode)
	assert.Equal(t, ModeCorrect, Advance(static, observe(0, Statistics{RatioMean: 0.7}), params).Mode)
	assert.Equal(t, ModeStatic, Advance(static, observe(0, Statistics{RatioMean: 0.45}), params).Mode)
}

func TestAdvanceCorrectWithoutEstimateKeepsBase(t *testing.T) {
	params := DefaultParams()
	state := Advance(ControlState{Mode: ModeCorrect, Base: 64000}, observe(0, Statistics{}), params)
	assert.Equal(t, ModeSense, state.Mode)
	assert.Equal(t, 64000.0, state.Base)

	state = Advance(ControlState{Mode: ModeCorrect, Base: 64000}, observe(0, Statistics{BDP: 10, HasBDP: true}), params)
	assert.Equal(t, float64(params.MinCongestionWindow), state.Base)
}

func TestAdvanceLossMitigation(t *testing.T) {
	params := DefaultParams()
	params.LossMitigation = true

	state := ControlState{Mode: ModeSense, Base: 100000}
	state = Advance(state, observe(200*time.Millisecond, Statistics{LossRate: 0.05}), params)
	assert.Equal(t, 0.05, state.SuppressedLoss)
	assert.InDelta(t, 99000, state.Base, 1e-6)

	state = Advance(state, observe(400*time.Millisecond, Statistics{LossRate: 0.1}), params)
	assert.Equal(t, 0.05, state.SuppressedLoss, "first excursion level is kept")
	assert.InDelta(t, 98010, state.Base, 1e-6)

	state = Advance(state, observe(400*time.Millisecond, Statistics{LossRate: 0.005}), params)
	assert.InDelta(t, 98010, state.Base, 1e-6)

	state = Advance(state, observe(2200*time.Millisecond, Statistics{}), params)
	require.Equal(t, ModeStatic, state.Mode)

	low := Advance(state, observe(0, Statistics{RatioMean: 0.3}), params)
	assert.Equal(t, ModeStatic, low.Mode, "suppressed loss holds a low ratio")

	lossy := Advance(state, observe(0, Statistics{RatioMean: 0.5, LossRate: 0.001}), params)
	assert.Equal(t, ModeSense, lossy.Mode)
	assert.Zero(t, lossy.SuppressedLoss)
}

func TestControllerTimer(t *testing.T) {
	params := DefaultParams()
	start := monotime.Now()
	controller := NewController(params, logger.NOP(), start)
	assert.Equal(t, ModeStartup, controller.Mode())
	assert.Equal(t, float64(params.InitialBaseWindow), controller.Base())

	_, changed := controller.Tick(start.Add(time.Second), Statistics{})
	assert.False(t, changed)
	state, changed := controller.Tick(start.Add(4200*time.Millisecond), Statistics{})
	assert.True(t, changed)
	assert.Equal(t, ModeIncrease, state.Mode)
	assert.True(t, state.PinRTT)

	controller.SetMode(ModeSense, start.Add(5*time.Second))
	_, changed = controller.Tick(start.Add(6*time.Second), Statistics{})
	assert.False(t, changed)
	state, changed = controller.Tick(start.Add(7200*time.Millisecond), Statistics{})
	assert.True(t, changed)
	assert.Equal(t, ModeStatic, state.Mode)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "STARTUP", ModeStartup.String())
	assert.Equal(t, "STATIC", ModeStatic.String())
	assert.Equal(t, "UNKNOWN", Mode(9).String())
}
