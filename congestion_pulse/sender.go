package congestion_pulse

import (
	"context"
	"sync"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/quic-go/monotime"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"

	"golang.org/x/sync/errgroup"
)

var _ congestion.CongestionControlEx = (*Sender)(nil)

const progressInterval = 10 * time.Second

type Options struct {
	Context context.Context
	Logger  logger.Logger
	Clock   Clock
	// Params defaults to DefaultParams().
	Params *Params
	// MaxDatagramSize defaults to congestion.InitialPacketSize.
	MaxDatagramSize congestion.ByteCount
	// Recorder enables CSV persistence when set.
	Recorder *RecorderOptions
	// Sink receives every scaled snapshot when set.
	Sink Sink
}

type sentPacket struct {
	bytes    congestion.ByteCount
	sentTime monotime.Time
}

// Sender is a PULSE congestion controller. Packet hooks may be called from any
// goroutine; the modulator, controller and sampler run as periodic tasks
// between Start and Close.
type Sender struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger logger.Logger
	clock  Clock
	params *Params
	sink   Sink

	access     sync.Mutex
	start      monotime.Time
	cwnd       congestion.ByteCount
	accountant *Accountant
	analyzer   *Analyzer
	modulator  *Modulator
	controller *Controller
	registry   *Registry
	sampler    *Sampler
	recorder   *Recorder

	rttStats        congestion.RTTStatsProvider
	maxDatagramSize congestion.ByteCount
	pacer           *Pacer
	sentPackets     map[congestion.PacketNumber]sentPacket

	startOnce    sync.Once
	closeOnce    sync.Once
	closeErr     error
	nextProgress float64
}

// NewSender validates options and builds a stopped sender. Configuration
// errors such as duplicate or missing metrics are returned here.
func NewSender(options Options) (*Sender, error) {
	if options.Context == nil {
		options.Context = context.Background()
	}
	if options.Logger == nil {
		options.Logger = logger.NOP()
	}
	if options.Clock == nil {
		options.Clock = DefaultClock{}
	}
	if options.Params == nil {
		options.Params = DefaultParams()
	}
	if options.MaxDatagramSize == 0 {
		options.MaxDatagramSize = congestion.InitialPacketSize
	}
	params := options.Params
	err := params.Validate()
	if err != nil {
		return nil, E.Cause(err, "invalid params")
	}
	now := options.Clock.Now()
	ctx, cancel := context.WithCancel(options.Context)
	group, ctx := errgroup.WithContext(ctx)
	s := &Sender{
		ctx:             ctx,
		cancel:          cancel,
		group:           group,
		logger:          options.Logger,
		clock:           options.Clock,
		params:          params,
		sink:            options.Sink,
		start:           now,
		accountant:      NewAccountant(params, options.Logger),
		analyzer:        NewAnalyzer(params),
		modulator:       NewModulator(params),
		controller:      NewController(params, options.Logger, now),
		registry:        NewRegistry(),
		maxDatagramSize: options.MaxDatagramSize,
		sentPackets:     make(map[congestion.PacketNumber]sentPacket),
		nextProgress:    progressInterval.Seconds(),
	}
	s.cwnd = s.modulator.Window(0, s.controller.Base())
	s.pacer = NewPacer(s.pacingRate)
	s.pacer.SetMaxDatagramSize(options.MaxDatagramSize)

	catalog := s.metricCatalog()
	for _, name := range params.Metrics {
		metric, loaded := catalog[name]
		if !loaded {
			cancel()
			return nil, E.Cause(ErrMissingMetric, "unknown metric ", name)
		}
		err = s.registry.Register(name, metric)
		if err != nil {
			cancel()
			return nil, err
		}
	}
	s.registry.Freeze()
	s.sampler, err = NewSampler(s.registry, s.analyzer)
	if err != nil {
		cancel()
		return nil, err
	}
	if options.Recorder != nil {
		s.recorder, err = NewRecorder(*options.Recorder, s.registry.Names())
		if err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

func (s *Sender) metricCatalog() map[string]Metric {
	a := s.accountant
	return map[string]Metric{
		MetricCwnd: MetricFunc{Get: func() float64 { return float64(s.cwnd) }},
		MetricAckedByte: MetricFunc{
			Get:       a.Acked,
			Raw:       func() float64 { return float64(a.AckedRaw()) },
			ResetFunc: a.ResetAcked,
		},
		MetricRTT:  MetricFunc{Get: func() float64 { return a.LatestRTT().Seconds() }},
		MetricBase: MetricFunc{Get: s.controller.Base},
		MetricSentByte: MetricFunc{
			Get:       a.Sent,
			Raw:       func() float64 { return float64(a.SentRaw()) },
			ResetFunc: a.ResetSent,
		},
		MetricLostByte: MetricFunc{
			Get:       a.Lost,
			Raw:       func() float64 { return float64(a.LostRaw()) },
			ResetFunc: a.ResetLost,
		},
		MetricRatio:         MetricFunc{Get: func() float64 { return s.analyzer.Statistics().Ratio }},
		MetricLossRate:      MetricFunc{Get: func() float64 { return s.analyzer.Statistics().LossRate }},
		MetricBDP:           MetricFunc{Get: func() float64 { return s.analyzer.Statistics().BDP }},
		MetricMode:          MetricFunc{Get: func() float64 { return float64(s.controller.Mode()) }},
		MetricBytesInFlight: MetricFunc{Get: func() float64 { return float64(a.BytesInFlight()) }},
		MetricHarmonicRatio: MetricFunc{Get: func() float64 { return s.analyzer.Statistics().HarmonicRatio }},
	}
}

// Start launches the periodic tasks. Calls after the first are ignored.
func (s *Sender) Start() {
	s.startOnce.Do(func() {
		s.group.Go(func() error {
			return s.loop(s.params.ModulationInterval(), func(now monotime.Time) error {
				s.modulate(now)
				return nil
			})
		})
		s.group.Go(func() error {
			return s.loop(s.params.SamplingInterval(), func(now monotime.Time) error {
				s.control(now)
				return nil
			})
		})
		s.group.Go(func() error {
			return s.loop(s.params.SamplingInterval(), s.sample)
		})
	})
}

func (s *Sender) loop(interval time.Duration, tick func(now monotime.Time) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			err := tick(s.clock.Now())
			if err != nil {
				return err
			}
		}
	}
}

// Done is closed when the sender is closed or a task failed.
func (s *Sender) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close stops the periodic tasks, flushes an unsaved recorder and returns the
// first task error.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		err := s.group.Wait()
		if err != nil {
			s.logger.Error(E.Cause(err, "pulse task failed"))
		}
		if s.recorder != nil && !s.recorder.Saved() {
			err = E.Errors(err, s.recorder.Persist())
		}
		s.closeErr = err
	})
	return s.closeErr
}

func (s *Sender) modulate(now monotime.Time) {
	s.access.Lock()
	defer s.access.Unlock()
	s.cwnd = s.modulator.Window(now.Sub(s.start), s.controller.Base())
}

func (s *Sender) control(now monotime.Time) {
	s.access.Lock()
	defer s.access.Unlock()
	stats := s.analyzer.Update()
	state, _ := s.controller.Tick(now, stats)
	if state.PinRTT {
		s.accountant.PinRTT(stats.RTT)
	}
}

func (s *Sender) sample(now monotime.Time) error {
	s.access.Lock()
	deltaT := elapsed(s.start, now)
	scaled, raw, sample := s.sampler.Sample(deltaT)
	s.access.Unlock()

	if deltaT >= s.nextProgress {
		s.logger.Debug("running for ", int64(deltaT), "s")
		s.nextProgress += progressInterval.Seconds()
	}
	if s.sink != nil {
		err := s.sink.Publish(scaled)
		if err != nil {
			s.logger.Warn(E.Cause(err, "publish snapshot"))
		}
	}
	if s.recorder == nil {
		return nil
	}
	s.recorder.Append(scaled, raw)
	if !s.recorder.Due(deltaT, sample.AckedRate) {
		return nil
	}
	err := s.recorder.Persist()
	if err != nil {
		return E.Cause(err, "persist logs")
	}
	rawPath, scaledPath := s.recorder.Paths()
	s.logger.Info("logs written to ", rawPath, " and ", scaledPath)
	return nil
}

// Mode returns the current adaptation mode.
func (s *Sender) Mode() Mode {
	s.access.Lock()
	defer s.access.Unlock()
	return s.controller.Mode()
}

// Statistics returns the statistics of the last control tick.
func (s *Sender) Statistics() Statistics {
	s.access.Lock()
	defer s.access.Unlock()
	return s.analyzer.Statistics()
}

// MetricNames returns the registered metric names in snapshot order.
func (s *Sender) MetricNames() []string {
	return s.registry.Names()
}

// BytesInFlight returns the accountant's view of bytes in flight.
func (s *Sender) BytesInFlight() int64 {
	s.access.Lock()
	defer s.access.Unlock()
	return s.accountant.BytesInFlight()
}

// CongestionWindow returns the modulated window in bytes.
func (s *Sender) CongestionWindow() uint64 {
	s.access.Lock()
	defer s.access.Unlock()
	return uint64(s.cwnd)
}

func (s *Sender) OnPacketSentBytes(bytes uint64) {
	s.access.Lock()
	defer s.access.Unlock()
	s.accountant.OnPacketSent(bytes)
}

func (s *Sender) OnPacketAckedBytes(bytes uint64, sentTime monotime.Time) {
	s.access.Lock()
	defer s.access.Unlock()
	s.accountant.OnPacketAcked(bytes, sentTime)
}

func (s *Sender) OnPacketsLostBytes(packets []Packet) {
	s.access.Lock()
	defer s.access.Unlock()
	s.accountant.OnPacketsLost(packets)
}

func (s *Sender) OnPacketsExpiredBytes(packets []Packet) {
	s.access.Lock()
	defer s.access.Unlock()
	s.accountant.OnPacketsExpired(packets)
}

func (s *Sender) OnRTTMeasurement(rtt time.Duration) {
	s.access.Lock()
	defer s.access.Unlock()
	s.accountant.OnRTTMeasurement(rtt)
}

func (s *Sender) pacingRate() float64 {
	rtt := s.accountant.LatestRTT()
	if s.rttStats != nil && s.rttStats.SmoothedRTT() > 0 {
		rtt = s.rttStats.SmoothedRTT()
	}
	return PacingRate(s.cwnd, rtt)
}

// SetRTTStatsProvider sets the RTT stats provider.
func (s *Sender) SetRTTStatsProvider(provider congestion.RTTStatsProvider) {
	s.access.Lock()
	defer s.access.Unlock()
	s.rttStats = provider
}

// TimeUntilSend returns the time until the next packet can be sent.
func (s *Sender) TimeUntilSend(bytesInFlight congestion.ByteCount) monotime.Time {
	s.access.Lock()
	defer s.access.Unlock()
	return s.pacer.TimeUntilSend()
}

// HasPacingBudget returns whether the pacer has budget to send.
func (s *Sender) HasPacingBudget(now monotime.Time) bool {
	s.access.Lock()
	defer s.access.Unlock()
	return s.pacer.Budget(now) >= s.maxDatagramSize
}

// OnPacketSent is called when a packet is sent.
func (s *Sender) OnPacketSent(
	sentTime monotime.Time,
	bytesInFlight congestion.ByteCount,
	packetNumber congestion.PacketNumber,
	bytes congestion.ByteCount,
	isRetransmittable bool,
) {
	s.access.Lock()
	defer s.access.Unlock()
	s.pacer.OnPacketSent(sentTime, bytes)
	if !isRetransmittable {
		return
	}
	// Packet number spaces share numbers; only the first packet is tracked.
	if _, loaded := s.sentPackets[packetNumber]; loaded {
		return
	}
	s.sentPackets[packetNumber] = sentPacket{bytes: bytes, sentTime: sentTime}
	s.accountant.OnPacketSent(uint64(bytes))
}

// CanSend returns whether the sender can send more data.
func (s *Sender) CanSend(bytesInFlight congestion.ByteCount) bool {
	return bytesInFlight < s.GetCongestionWindow()
}

// MaybeExitSlowStart is not used by PULSE.
func (s *Sender) MaybeExitSlowStart() {}

// OnPacketAcked is not used by PULSE (uses OnCongestionEventEx instead).
func (s *Sender) OnPacketAcked(number congestion.PacketNumber, ackedBytes congestion.ByteCount, priorInFlight congestion.ByteCount, eventTime monotime.Time) {
}

// OnCongestionEvent is not used by PULSE (uses OnCongestionEventEx instead).
func (s *Sender) OnCongestionEvent(number congestion.PacketNumber, lostBytes congestion.ByteCount, priorInFlight congestion.ByteCount) {
}

// OnCongestionEventEx is called when packets are acked or lost.
func (s *Sender) OnCongestionEventEx(
	priorInFlight congestion.ByteCount,
	eventTime monotime.Time,
	ackedPackets []congestion.AckedPacketInfo,
	lostPackets []congestion.LostPacketInfo,
) {
	s.access.Lock()
	defer s.access.Unlock()
	if len(ackedPackets) > 0 && s.rttStats != nil {
		s.accountant.OnRTTMeasurement(s.rttStats.LatestRTT())
	}
	for _, p := range ackedPackets {
		packet, loaded := s.sentPackets[p.PacketNumber]
		if !loaded {
			continue
		}
		delete(s.sentPackets, p.PacketNumber)
		s.accountant.OnPacketAcked(uint64(p.BytesAcked), packet.sentTime)
	}
	if len(lostPackets) == 0 {
		return
	}
	lost := make([]Packet, 0, len(lostPackets))
	for _, p := range lostPackets {
		packet, loaded := s.sentPackets[p.PacketNumber]
		if !loaded {
			continue
		}
		delete(s.sentPackets, p.PacketNumber)
		lost = append(lost, Packet{Bytes: uint64(p.BytesLost), SentTime: packet.sentTime})
	}
	s.accountant.OnPacketsLost(lost)
}

// OnPacketNeutered removes a packet that will never be acked or declared lost.
func (s *Sender) OnPacketNeutered(number congestion.PacketNumber) {
	s.access.Lock()
	defer s.access.Unlock()
	packet, loaded := s.sentPackets[number]
	if !loaded {
		return
	}
	delete(s.sentPackets, number)
	s.accountant.OnPacketsExpired([]Packet{{Bytes: uint64(packet.bytes), SentTime: packet.sentTime}})
}

// OnPacketsLost is called with the least unacked packet number. Tracked
// packets below it will never be acked or declared lost and leave flight as
// expired.
func (s *Sender) OnPacketsLost(leastUnacked congestion.PacketNumber) {
	s.access.Lock()
	defer s.access.Unlock()
	var obsolete []Packet
	for number, packet := range s.sentPackets {
		if number >= leastUnacked {
			continue
		}
		delete(s.sentPackets, number)
		obsolete = append(obsolete, Packet{Bytes: uint64(packet.bytes), SentTime: packet.sentTime})
	}
	s.accountant.OnPacketsExpired(obsolete)
}

// OnAppLimited is not used by PULSE.
func (s *Sender) OnAppLimited(bytesInFlight congestion.ByteCount) {}

// OnRetransmissionTimeout is not used by PULSE.
func (s *Sender) OnRetransmissionTimeout(packetsRetransmitted bool) {}

// SetMaxDatagramSize sets the maximum datagram size.
func (s *Sender) SetMaxDatagramSize(size congestion.ByteCount) {
	s.access.Lock()
	defer s.access.Unlock()
	s.maxDatagramSize = size
	s.pacer.SetMaxDatagramSize(size)
}

// InSlowStart returns whether the base window is still growing.
func (s *Sender) InSlowStart() bool {
	mode := s.Mode()
	return mode == ModeStartup || mode == ModeIncrease
}

// InRecovery returns whether the sender is mitigating losses.
func (s *Sender) InRecovery() bool {
	s.access.Lock()
	defer s.access.Unlock()
	return s.controller.Mode() == ModeSense && s.controller.State().SuppressedLoss > 0
}

// GetCongestionWindow returns the current congestion window.
func (s *Sender) GetCongestionWindow() congestion.ByteCount {
	s.access.Lock()
	defer s.access.Unlock()
	return s.cwnd
}
