package congestion_pulse

import (
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/quic-go/monotime"
)

const (
	maxBurstPackets = 10
	minPacingDelay  = time.Millisecond
	pacingGain      = 1.25
)

// PacingRate spreads window over one rtt, in bytes per second. Zero means
// the rate is unknown and pacing is off.
func PacingRate(window congestion.ByteCount, rtt time.Duration) float64 {
	if window == 0 || rtt <= 0 {
		return 0
	}
	return float64(window) * pacingGain / rtt.Seconds()
}

// Pacer is a token bucket holding at most maxBurstPackets datagrams. It is
// refilled at the rate returned by rate.
type Pacer struct {
	rate       func() float64
	datagram   congestion.ByteCount
	tokens     congestion.ByteCount
	lastRefill monotime.Time
}

func NewPacer(rate func() float64) *Pacer {
	return &Pacer{
		rate:     rate,
		datagram: congestion.InitialPacketSize,
	}
}

func (p *Pacer) SetMaxDatagramSize(size congestion.ByteCount) {
	p.datagram = size
}

func (p *Pacer) burst() congestion.ByteCount {
	return maxBurstPackets * p.datagram
}

// Budget returns the bytes that may leave at now.
func (p *Pacer) Budget(now monotime.Time) congestion.ByteCount {
	burst := p.burst()
	rate := p.rate()
	if p.lastRefill.IsZero() || rate <= 0 {
		return burst
	}
	refill := rate * now.Sub(p.lastRefill).Seconds()
	if float64(p.tokens)+refill >= float64(burst) {
		return burst
	}
	return p.tokens + congestion.ByteCount(refill)
}

// TimeUntilSend returns when one datagram fits into the bucket. Zero means
// now.
func (p *Pacer) TimeUntilSend() monotime.Time {
	if p.lastRefill.IsZero() || p.tokens >= p.datagram {
		return 0
	}
	rate := p.rate()
	if rate <= 0 {
		return 0
	}
	wait := time.Duration(float64(p.datagram-p.tokens) / rate * float64(time.Second))
	return p.lastRefill.Add(max(wait, minPacingDelay))
}

func (p *Pacer) OnPacketSent(sentTime monotime.Time, size congestion.ByteCount) {
	p.tokens = p.Budget(sentTime)
	p.lastRefill = sentTime
	if size >= p.tokens {
		p.tokens = 0
	} else {
		p.tokens -= size
	}
}
