package option

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-pulse/congestion_pulse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[cca]
name = "pulse"
cwnd_base_0 = 100000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
shallow_buffer_mitigation = true
transferred_metrics = ["cwnd", "acked_byte", "rtt", "cwnd_base", "sent_byte", "lost_byte", "ratio"]
waveform = "triangle"

[out]
out_after = 600
filename = "bulk/run1"

[provider]
single_file_mode = true

[telemetry]
enabled = true
url = "nats://127.0.0.1:4222"
`

func TestParse(t *testing.T) {
	options, err := Parse(sampleConfig)
	require.NoError(t, err)

	params, err := options.Params()
	require.NoError(t, err)
	assert.Equal(t, congestion.ByteCount(100000), params.InitialBaseWindow)
	assert.Equal(t, 0.25, params.BaseToAmplitudeRatio)
	assert.Equal(t, 1.0, params.ModulationFrequency)
	assert.Equal(t, 5.0, params.SamplingRate)
	assert.True(t, params.LossMitigation)
	assert.Equal(t, congestion_pulse.WaveformTriangle, params.Waveform)
	assert.Equal(t, "ratio", params.Metrics[len(params.Metrics)-1])

	recorder := options.Recorder()
	require.NotNil(t, recorder)
	assert.Equal(t, filepath.Join(DefaultOutputDirectory, "pulse", "bulk"), recorder.Directory)
	assert.Equal(t, "run1", recorder.Name)
	assert.Equal(t, 600*time.Second, recorder.After)
	assert.True(t, recorder.SingleFlow)
}

func TestParseMissingRequired(t *testing.T) {
	_, err := Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
sampling_rate = 5
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cca.mod_rate")
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
modrate = 2
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cca.modrate")
}

func TestParseInvalidParams(t *testing.T) {
	_, err := Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 1.5
mod_rate = 1
sampling_rate = 5
`)
	assert.Error(t, err)

	_, err = Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
waveform = "noise"
`)
	assert.Error(t, err)
}

func TestRecorderDisabledWithoutFilename(t *testing.T) {
	options, err := Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
`)
	require.NoError(t, err)
	assert.Nil(t, options.Recorder())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	options, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://127.0.0.1:4222", options.Telemetry.URL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseThresholds(t *testing.T) {
	options, err := Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
startup_spans = 0
increase_step = 0.1
increase_percentile = 50
saturation_threshold = 0.825
loss_threshold = 0
loss_decay = 0.9
stable_low = 0.3
stable_high = 0.7
`)
	require.NoError(t, err)
	params, err := options.Params()
	require.NoError(t, err)
	assert.Equal(t, 0.0, params.StartupSpans)
	assert.Equal(t, 0.1, params.IncreaseStep)
	assert.Equal(t, 50.0, params.IncreasePercentile)
	assert.Equal(t, 0.825, params.SaturationThreshold)
	assert.Equal(t, 0.0, params.LossThreshold)
	assert.Equal(t, 0.9, params.LossDecay)
	assert.Equal(t, 0.3, params.StableLow)
	assert.Equal(t, 0.7, params.StableHigh)

	defaults := congestion_pulse.DefaultParams()
	options, err = Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
`)
	require.NoError(t, err)
	params, err = options.Params()
	require.NoError(t, err)
	assert.Equal(t, defaults.StartupSpans, params.StartupSpans)
	assert.Equal(t, defaults.LossThreshold, params.LossThreshold)
	assert.Equal(t, defaults.StableLow, params.StableLow)

	_, err = Parse(`
[cca]
cwnd_base_0 = 30000
base_to_amplitude_ratio = 0.25
mod_rate = 1
sampling_rate = 5
stable_low = 0.8
stable_high = 0.2
`)
	assert.Error(t, err)
}
