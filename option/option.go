// Package option loads PULSE run configuration from TOML.
package option

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-pulse/congestion_pulse"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/BurntSushi/toml"
)

// Options mirrors the configuration file.
type Options struct {
	CCA       CCAOptions       `toml:"cca"`
	Out       OutOptions       `toml:"out"`
	Provider  ProviderOptions  `toml:"provider"`
	Telemetry TelemetryOptions `toml:"telemetry"`
}

type CCAOptions struct {
	Name                    string   `toml:"name"`
	BaseWindow              *float64 `toml:"cwnd_base_0"`
	BaseToAmplitudeRatio    *float64 `toml:"base_to_amplitude_ratio"`
	ModulationRate          *float64 `toml:"mod_rate"`
	SamplingRate            *float64 `toml:"sampling_rate"`
	ShallowBufferMitigation bool     `toml:"shallow_buffer_mitigation"`
	TransferredMetrics      []string `toml:"transferred_metrics"`

	Waveform           string  `toml:"waveform"`
	ModulationSubsteps int     `toml:"modulation_substeps"`
	WindowPeriods      int     `toml:"window_periods"`
	BDPEstimator       string  `toml:"bdp_estimator"`
	MinWindow          uint64  `toml:"min_cwnd"`
	MaxWindow          uint64  `toml:"max_cwnd"`
	PinScalingRTT      bool    `toml:"pin_scaling_rtt"`

	// State machine thresholds. Unset keys keep the defaults.
	StartupSpans        *float64 `toml:"startup_spans"`
	IncreaseStep        *float64 `toml:"increase_step"`
	IncreasePercentile  *float64 `toml:"increase_percentile"`
	SaturationThreshold *float64 `toml:"saturation_threshold"`
	LossThreshold       *float64 `toml:"loss_threshold"`
	LossDecay           *float64 `toml:"loss_decay"`
	StableLow           *float64 `toml:"stable_low"`
	StableHigh          *float64 `toml:"stable_high"`
}

type OutOptions struct {
	// OutAfter is in seconds.
	OutAfter  float64 `toml:"out_after"`
	Filename  string  `toml:"filename"`
	Directory string  `toml:"directory"`
}

type ProviderOptions struct {
	SingleFileMode bool `toml:"single_file_mode"`
	// Grace is in seconds.
	Grace float64 `toml:"grace"`
}

type TelemetryOptions struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// DefaultOutputDirectory is the root of the CSV logs.
const DefaultOutputDirectory = "data_out"

// Load reads and validates a configuration file.
func Load(path string) (*Options, error) {
	var options Options
	metadata, err := toml.DecodeFile(path, &options)
	if err != nil {
		return nil, E.Cause(err, "decode ", path)
	}
	return finish(&options, metadata)
}

// Parse reads and validates configuration text.
func Parse(content string) (*Options, error) {
	var options Options
	metadata, err := toml.Decode(content, &options)
	if err != nil {
		return nil, E.Cause(err, "decode config")
	}
	return finish(&options, metadata)
}

func finish(options *Options, metadata toml.MetaData) (*Options, error) {
	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, E.New("unknown config keys: ", strings.Join(keys, ", "))
	}
	err := options.Validate()
	if err != nil {
		return nil, err
	}
	return options, nil
}

// Validate reports missing required fields.
func (o *Options) Validate() error {
	switch {
	case o.CCA.BaseWindow == nil:
		return E.New("missing cca.cwnd_base_0")
	case o.CCA.BaseToAmplitudeRatio == nil:
		return E.New("missing cca.base_to_amplitude_ratio")
	case o.CCA.ModulationRate == nil:
		return E.New("missing cca.mod_rate")
	case o.CCA.SamplingRate == nil:
		return E.New("missing cca.sampling_rate")
	case o.Out.Filename == "" && (o.Out.OutAfter > 0 || o.Provider.SingleFileMode):
		return E.New("missing out.filename")
	case o.Telemetry.Enabled && o.Telemetry.URL == "":
		return E.New("missing telemetry.url")
	}
	_, err := o.Params()
	return err
}

// Params converts the [cca] section.
func (o *Options) Params() (*congestion_pulse.Params, error) {
	params := congestion_pulse.DefaultParams()
	cca := o.CCA
	if cca.BaseWindow != nil {
		if *cca.BaseWindow <= 0 {
			return nil, E.New("cca.cwnd_base_0 must be positive")
		}
		params.InitialBaseWindow = congestion.ByteCount(*cca.BaseWindow)
	}
	if cca.BaseToAmplitudeRatio != nil {
		params.BaseToAmplitudeRatio = *cca.BaseToAmplitudeRatio
	}
	if cca.ModulationRate != nil {
		params.ModulationFrequency = *cca.ModulationRate
	}
	if cca.SamplingRate != nil {
		params.SamplingRate = *cca.SamplingRate
	}
	params.LossMitigation = cca.ShallowBufferMitigation
	if len(cca.TransferredMetrics) > 0 {
		params.Metrics = append([]string(nil), cca.TransferredMetrics...)
	}
	if cca.Waveform != "" {
		waveform, err := congestion_pulse.ParseWaveform(cca.Waveform)
		if err != nil {
			return nil, E.Cause(err, "cca.waveform")
		}
		params.Waveform = waveform
	}
	if cca.ModulationSubsteps != 0 {
		params.ModulationSubsteps = cca.ModulationSubsteps
	}
	if cca.WindowPeriods != 0 {
		params.WindowPeriods = cca.WindowPeriods
	}
	estimator, err := congestion_pulse.ParseBDPEstimator(cca.BDPEstimator)
	if err != nil {
		return nil, E.Cause(err, "cca.bdp_estimator")
	}
	params.BDPEstimator = estimator
	if cca.MinWindow != 0 {
		params.MinCongestionWindow = congestion.ByteCount(cca.MinWindow)
	}
	params.MaxCongestionWindow = congestion.ByteCount(cca.MaxWindow)
	params.PinScalingRTT = cca.PinScalingRTT
	for _, threshold := range []struct {
		value  *float64
		target *float64
	}{
		{cca.StartupSpans, &params.StartupSpans},
		{cca.IncreaseStep, &params.IncreaseStep},
		{cca.IncreasePercentile, &params.IncreasePercentile},
		{cca.SaturationThreshold, &params.SaturationThreshold},
		{cca.LossThreshold, &params.LossThreshold},
		{cca.LossDecay, &params.LossDecay},
		{cca.StableLow, &params.StableLow},
		{cca.StableHigh, &params.StableHigh},
	} {
		if threshold.value != nil {
			*threshold.target = *threshold.value
		}
	}
	err = params.Validate()
	if err != nil {
		return nil, E.Cause(err, "cca")
	}
	return params, nil
}

// Recorder converts the [out] and [provider] sections. It returns nil when
// no log should be written.
func (o *Options) Recorder() *congestion_pulse.RecorderOptions {
	if o.Out.Filename == "" {
		return nil
	}
	directory := o.Out.Directory
	if directory == "" {
		directory = DefaultOutputDirectory
	}
	name := o.CCA.Name
	if name == "" {
		name = "pulse"
	}
	filename := filepath.Join(directory, name, o.Out.Filename)
	return &congestion_pulse.RecorderOptions{
		Directory:  filepath.Dir(filename),
		Name:       filepath.Base(filename),
		After:      seconds(o.Out.OutAfter),
		SingleFlow: o.Provider.SingleFileMode,
		Grace:      seconds(o.Provider.Grace),
	}
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}
