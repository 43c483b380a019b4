// Package telemetry forwards PULSE snapshots over NATS.
package telemetry

import (
	"encoding/json"

	"github.com/sagernet/sing-pulse/congestion_pulse"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/gofrs/uuid/v5"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "pulse.snapshot"

// Publisher is the subset of *nats.Conn used by Sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subject returns the per-engine subject below prefix.
func Subject(prefix string, id uuid.UUID) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + id.String()
}

// Encode marshals a snapshot as a JSON array of numbers.
func Encode(snapshot congestion_pulse.Snapshot) ([]byte, error) {
	return json.Marshal([]float64(snapshot))
}

// Decode is the inverse of Encode.
func Decode(data []byte) (congestion_pulse.Snapshot, error) {
	var values []float64
	err := json.Unmarshal(data, &values)
	if err != nil {
		return nil, E.Cause(err, "decode snapshot")
	}
	if len(values) == 0 {
		return nil, E.New("empty snapshot")
	}
	return values, nil
}

// Sink publishes every snapshot on one subject.
type Sink struct {
	publisher Publisher
	subject   string
}

var _ congestion_pulse.Sink = (*Sink)(nil)

func NewSink(publisher Publisher, subject string) *Sink {
	return &Sink{publisher: publisher, subject: subject}
}

func (s *Sink) Subject() string {
	return s.subject
}

func (s *Sink) Publish(snapshot congestion_pulse.Snapshot) error {
	data, err := Encode(snapshot)
	if err != nil {
		return err
	}
	return s.publisher.Publish(s.subject, data)
}
