package congestion_pulse

import (
	"github.com/sagernet/quic-go/monotime"
	"github.com/sagernet/sing/common/logger"
)

// Controller drives Advance on the control cadence and keeps the per-mode
// timer.
type Controller struct {
	params    *Params
	logger    logger.Logger
	state     ControlState
	modeStart monotime.Time
}

// NewController starts in STARTUP with the initial base window.
func NewController(params *Params, logger logger.Logger, now monotime.Time) *Controller {
	return &Controller{
		params: params,
		logger: logger,
		state: ControlState{
			Mode: ModeStartup,
			Base: float64(params.InitialBaseWindow),
		},
		modeStart: now,
	}
}

func (c *Controller) State() ControlState {
	return c.state
}

func (c *Controller) Mode() Mode {
	return c.state.Mode
}

func (c *Controller) Base() float64 {
	return c.state.Base
}

// SetMode forces a mode and restarts its timer.
func (c *Controller) SetMode(mode Mode, now monotime.Time) {
	c.state.Mode = mode
	c.modeStart = now
}

// Tick advances the state machine by one control step and reports whether
// the mode changed.
func (c *Controller) Tick(now monotime.Time, stats Statistics) (ControlState, bool) {
	previous := c.state
	c.state = Advance(previous, Observation{Statistics: stats, InMode: now.Sub(c.modeStart)}, c.params)
	if previous.Mode == ModeCorrect && stats.HasBDP {
		if c.state.Base < previous.Base {
			c.logger.Debug("step down, base set to ", int64(c.state.Base))
		} else {
			c.logger.Debug("step up, base set to ", int64(c.state.Base))
		}
	}
	if c.state.SuppressedLoss != 0 && previous.SuppressedLoss == 0 {
		c.logger.Debug("suppressed loss rate ", c.state.SuppressedLoss)
	}
	changed := c.state.Mode != previous.Mode
	if changed {
		c.modeStart = now
		c.logger.Info("switching to ", c.state.Mode, " (ratio ", stats.Ratio, ", base ", int64(c.state.Base), ")")
	}
	return c.state, changed
}
