package congestion_pulse

import (
	"time"

	"github.com/sagernet/quic-go/monotime"
	"github.com/sagernet/sing/common/logger"
)

// Packet is a packet handed over by the transport.
type Packet struct {
	Bytes    uint64
	SentTime monotime.Time
}

// Accountant tracks bytes in flight and the per-interval byte counters read by
// the sampler. Scaled counters are multiplied by scalingRTT/samplingInterval
// so that they are comparable across RTTs; raw counters are plain bytes.
//
// Accountant is not safe for concurrent use; the Sender serializes access.
type Accountant struct {
	logger           logger.Logger
	samplingInterval time.Duration
	pinScalingRTT    bool

	bytesInFlight    int64
	negativeInFlight uint64

	latestRTT  time.Duration
	scalingRTT time.Duration

	acked float64
	sent  float64
	lost  float64

	ackedRaw uint64
	sentRaw  uint64
	lostRaw  uint64
}

// NewAccountant creates an accountant with both RTTs set to params.InitialRTT.
func NewAccountant(params *Params, logger logger.Logger) *Accountant {
	return &Accountant{
		logger:           logger,
		samplingInterval: params.SamplingInterval(),
		pinScalingRTT:    params.PinScalingRTT,
		latestRTT:        params.InitialRTT,
		scalingRTT:       params.InitialRTT,
	}
}

func (a *Accountant) scale() float64 {
	return a.scalingRTT.Seconds() / a.samplingInterval.Seconds()
}

func (a *Accountant) removeInFlight(bytes uint64) {
	a.bytesInFlight -= int64(bytes)
	if a.bytesInFlight < 0 {
		a.negativeInFlight++
		a.logger.Debug("bytes in flight below zero: ", a.bytesInFlight)
	}
}

// OnPacketSent accounts a sent packet.
func (a *Accountant) OnPacketSent(bytes uint64) {
	a.bytesInFlight += int64(bytes)
	a.sent += float64(bytes) * a.scale()
	a.sentRaw += bytes
}

// OnPacketAcked accounts an acknowledged packet.
func (a *Accountant) OnPacketAcked(bytes uint64, _ monotime.Time) {
	a.removeInFlight(bytes)
	a.acked += float64(bytes) * a.scale()
	a.ackedRaw += bytes
}

// OnPacketsLost accounts lost packets.
func (a *Accountant) OnPacketsLost(packets []Packet) {
	scale := a.scale()
	for _, packet := range packets {
		a.removeInFlight(packet.Bytes)
		a.lost += float64(packet.Bytes) * scale
		a.lostRaw += packet.Bytes
	}
}

// OnPacketsExpired removes packets from flight without counting them as lost.
func (a *Accountant) OnPacketsExpired(packets []Packet) {
	for _, packet := range packets {
		a.removeInFlight(packet.Bytes)
	}
}

// OnRTTMeasurement retains the latest RTT sample.
func (a *Accountant) OnRTTMeasurement(rtt time.Duration) {
	if rtt <= 0 {
		return
	}
	a.latestRTT = rtt
	if !a.pinScalingRTT {
		a.scalingRTT = rtt
	}
}

// PinRTT moves the scaling RTT to an analyzer estimate. Without
// Params.PinScalingRTT the next RTT sample replaces it again.
func (a *Accountant) PinRTT(rtt time.Duration) {
	if rtt > 0 {
		a.scalingRTT = rtt
	}
}

func (a *Accountant) BytesInFlight() int64 {
	return a.bytesInFlight
}

// NegativeInFlightEvents counts removals that left bytes in flight below zero.
func (a *Accountant) NegativeInFlightEvents() uint64 {
	return a.negativeInFlight
}

func (a *Accountant) LatestRTT() time.Duration {
	return a.latestRTT
}

func (a *Accountant) ScalingRTT() time.Duration {
	return a.scalingRTT
}

func (a *Accountant) Acked() float64 { return a.acked }
func (a *Accountant) Sent() float64  { return a.sent }
func (a *Accountant) Lost() float64  { return a.lost }

func (a *Accountant) AckedRaw() uint64 { return a.ackedRaw }
func (a *Accountant) SentRaw() uint64  { return a.sentRaw }
func (a *Accountant) LostRaw() uint64  { return a.lostRaw }

func (a *Accountant) ResetAcked() {
	a.acked = 0
	a.ackedRaw = 0
}

func (a *Accountant) ResetSent() {
	a.sent = 0
	a.sentRaw = 0
}

func (a *Accountant) ResetLost() {
	a.lost = 0
	a.lostRaw = 0
}
