package congestion_pulse

import (
	"context"
	"time"

	"github.com/sagernet/quic-go/monotime"
	"github.com/sagernet/sing/common/ntp"
)

// Clock is the time source of the periodic tasks.
type Clock interface {
	Now() monotime.Time
}

// DefaultClock reads TimeFunc when set and the monotonic clock otherwise.
type DefaultClock struct {
	TimeFunc func() time.Time
}

func (c DefaultClock) Now() monotime.Time {
	if c.TimeFunc == nil {
		return monotime.Now()
	}
	return monotime.Time(c.TimeFunc().UnixNano())
}

// ClockFromContext follows the NTP service registered in ctx, if any.
func ClockFromContext(ctx context.Context) Clock {
	return DefaultClock{TimeFunc: ntp.TimeFuncFromContext(ctx)}
}

// elapsed is the delta_t column: seconds since the engine started.
func elapsed(start, now monotime.Time) float64 {
	return now.Sub(start).Seconds()
}
