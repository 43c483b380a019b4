package congestion_pulse

// Snapshot is one telemetry row: delta_t followed by one value per registered
// metric, in registration order.
type Snapshot []float64

// DeltaT returns the first field.
func (s Snapshot) DeltaT() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// Sink receives every scaled snapshot.
type Sink interface {
	Publish(snapshot Snapshot) error
}

// Header returns the column names of snapshots built from names.
func Header(names []string) []string {
	return append([]string{"delta_t"}, names...)
}

// Sampler reads the registry once per sampling tick and feeds the analyzer.
type Sampler struct {
	registry *Registry
	analyzer *Analyzer
	columns  [6]int
}

// NewSampler resolves the columns a Sample is built from. Every name in
// DefaultMetrics must be registered.
func NewSampler(registry *Registry, analyzer *Analyzer) (*Sampler, error) {
	s := &Sampler{registry: registry, analyzer: analyzer}
	for i, name := range DefaultMetrics() {
		index, err := registry.Index(name)
		if err != nil {
			return nil, err
		}
		s.columns[i] = index + 1
	}
	return s, nil
}

// Sample takes the scaled and raw snapshots, pushes the derived sample into
// the analyzer and resets the interval accumulators. Callers must hold the
// lock that serializes metric writers so that no write lands between the read
// and the reset.
func (s *Sampler) Sample(deltaT float64) (scaled Snapshot, raw Snapshot, sample Sample) {
	scaled = s.registry.Read(deltaT, false)
	raw = s.registry.Read(deltaT, true)
	sample = s.toSample(scaled)
	s.analyzer.Push(sample)
	s.registry.ResetAll()
	return
}

func (s *Sampler) toSample(snapshot Snapshot) Sample {
	return Sample{
		DeltaT:    snapshot[0],
		Cwnd:      snapshot[s.columns[0]],
		AckedRate: snapshot[s.columns[1]],
		RTT:       snapshot[s.columns[2]],
		BaseCwnd:  snapshot[s.columns[3]],
		SentRate:  snapshot[s.columns[4]],
		LostRate:  snapshot[s.columns[5]],
	}
}
