package congestion_pulse

import (
	E "github.com/sagernet/sing/common/exceptions"
)

// Metric names known to the Sender.
const (
	MetricCwnd      = "cwnd"
	MetricAckedByte = "acked_byte"
	MetricRTT       = "rtt"
	MetricBase      = "cwnd_base"
	MetricSentByte  = "sent_byte"
	MetricLostByte  = "lost_byte"

	MetricRatio         = "ratio"
	MetricLossRate      = "loss_rate"
	MetricBDP           = "bdp"
	MetricMode          = "mode"
	MetricBytesInFlight = "bytes_in_flight"
	MetricHarmonicRatio = "harmonic_ratio"
)

var (
	ErrDuplicateMetric = E.New("duplicate metric")
	ErrMissingMetric   = E.New("missing metric")
	ErrRegistryFrozen  = E.New("metric registry frozen")
)

// DefaultMetrics returns the metrics every sample is built from, in the
// column order used by the logs.
func DefaultMetrics() []string {
	return []string{MetricCwnd, MetricAckedByte, MetricRTT, MetricBase, MetricSentByte, MetricLostByte}
}

// Metric is a sampled value.
type Metric interface {
	Value() float64
}

// Resetter is implemented by metrics that accumulate over a sampling interval.
type Resetter interface {
	Reset()
}

// RawReader is implemented by metrics whose raw log column differs from the
// scaled value.
type RawReader interface {
	RawValue() float64
}

// MetricFunc adapts closures to Metric, RawReader and Resetter. Raw and
// ResetFunc are optional.
type MetricFunc struct {
	Get       func() float64
	Raw       func() float64
	ResetFunc func()
}

func (m MetricFunc) Value() float64 {
	return m.Get()
}

func (m MetricFunc) RawValue() float64 {
	if m.Raw == nil {
		return m.Get()
	}
	return m.Raw()
}

func (m MetricFunc) Reset() {
	if m.ResetFunc != nil {
		m.ResetFunc()
	}
}

// Registry is an ordered set of named metrics. It is filled once before
// sampling starts and frozen afterwards.
type Registry struct {
	names   []string
	metrics map[string]Metric
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register appends a metric. Names must be unique.
func (r *Registry) Register(name string, metric Metric) error {
	if r.frozen {
		return E.Cause(ErrRegistryFrozen, name)
	}
	if _, loaded := r.metrics[name]; loaded {
		return E.Cause(ErrDuplicateMetric, name)
	}
	r.names = append(r.names, name)
	r.metrics[name] = metric
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Names returns the metric names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Registry) Len() int {
	return len(r.names)
}

// Lookup returns the metric registered under name.
func (r *Registry) Lookup(name string) (Metric, error) {
	metric, loaded := r.metrics[name]
	if !loaded {
		return nil, E.Cause(ErrMissingMetric, name)
	}
	return metric, nil
}

// Index returns the position of name in registration order.
func (r *Registry) Index(name string) (int, error) {
	for i, registered := range r.names {
		if registered == name {
			return i, nil
		}
	}
	return 0, E.Cause(ErrMissingMetric, name)
}

// Read fills one snapshot of every metric, using raw readers when raw is set.
func (r *Registry) Read(deltaT float64, raw bool) Snapshot {
	snapshot := make(Snapshot, 1, 1+len(r.names))
	snapshot[0] = deltaT
	for _, name := range r.names {
		metric := r.metrics[name]
		if rawReader, isRaw := metric.(RawReader); raw && isRaw {
			snapshot = append(snapshot, rawReader.RawValue())
		} else {
			snapshot = append(snapshot, metric.Value())
		}
	}
	return snapshot
}

// ResetAll resets every accumulating metric.
func (r *Registry) ResetAll() {
	for _, name := range r.names {
		if resetter, isResetter := r.metrics[name].(Resetter); isResetter {
			resetter.Reset()
		}
	}
}
