package pulse

import (
	"context"

	"github.com/sagernet/quic-go"
	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-pulse/congestion_pulse"
	"github.com/sagernet/sing-pulse/telemetry"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"

	"github.com/gofrs/uuid/v5"
)

type CongestionOptions struct {
	Logger logger.Logger
	// Params defaults to congestion_pulse.DefaultParams().
	Params   *congestion_pulse.Params
	Recorder *congestion_pulse.RecorderOptions
	// Publisher enables telemetry, one subject per connection below SubjectPrefix.
	Publisher     telemetry.Publisher
	SubjectPrefix string
}

// SetCongestion installs a started PULSE sender on connection. The sender is
// closed when the connection is; its logs are flushed at that point.
func SetCongestion(ctx context.Context, connection *quic.Conn, options CongestionOptions) (*congestion_pulse.Sender, error) {
	if options.Logger == nil {
		options.Logger = logger.NOP()
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, E.Cause(err, "generate engine id")
	}
	var sink congestion_pulse.Sink
	if options.Publisher != nil {
		sink = telemetry.NewSink(options.Publisher, telemetry.Subject(options.SubjectPrefix, id))
	}
	sender, err := congestion_pulse.NewSender(congestion_pulse.Options{
		Context:         connection.Context(),
		Logger:          options.Logger,
		Clock:           congestion_pulse.ClockFromContext(ctx),
		Params:          options.Params,
		MaxDatagramSize: congestion.ByteCount(connection.Config().InitialPacketSize),
		Recorder:        options.Recorder,
		Sink:            sink,
	})
	if err != nil {
		return nil, E.Cause(err, "create pulse sender")
	}
	connection.SetCongestionControl(sender)
	sender.Start()
	options.Logger.Debug("pulse engine ", id, " installed on ", connection.RemoteAddr())
	go func() {
		select {
		case <-connection.Context().Done():
		case <-sender.Done():
		}
		err := sender.Close()
		if err != nil {
			options.Logger.Error(E.Cause(err, "pulse engine ", id))
		}
	}()
	return sender, nil
}
