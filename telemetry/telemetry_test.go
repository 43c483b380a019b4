package telemetry

import (
	"testing"

	"github.com/sagernet/sing-pulse/congestion_pulse"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestSinkPublishesJSONArray(t *testing.T) {
	publisher := &recordingPublisher{}
	sink := NewSink(publisher, "pulse.snapshot.test")

	require.NoError(t, sink.Publish(congestion_pulse.Snapshot{0.2, 100000, 90000.5}))

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "pulse.snapshot.test", publisher.subjects[0])
	assert.JSONEq(t, `[0.2, 100000, 90000.5]`, string(publisher.payloads[0]))

	decoded, err := Decode(publisher.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, congestion_pulse.Snapshot{0.2, 100000, 90000.5}, decoded)
}

func TestSinkReturnsPublisherError(t *testing.T) {
	publisher := &recordingPublisher{err: E.New("connection closed")}
	sink := NewSink(publisher, "pulse.snapshot.test")
	assert.Error(t, sink.Publish(congestion_pulse.Snapshot{1}))
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	_, err := Decode([]byte(`{"cwnd": 1}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`[]`))
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	id := uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Equal(t, "pulse.snapshot.6ba7b810-9dad-11d1-80b4-00c04fd430c8", Subject("", id))
	assert.Equal(t, "lab.6ba7b810-9dad-11d1-80b4-00c04fd430c8", Subject("lab", id))
}
