package telemetry

import (
	"context"
	"strings"

	"github.com/sagernet/sing-pulse/congestion_pulse"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"

	"github.com/nats-io/nats.go"
)

// Message is a snapshot received from one engine.
type Message struct {
	Engine   string
	Snapshot congestion_pulse.Snapshot
}

// Subscriber receives the snapshots of every engine publishing below a prefix.
type Subscriber struct {
	logger       logger.Logger
	prefix       string
	subscription *nats.Subscription
	messages     chan *nats.Msg
}

// Subscribe listens on <prefix>.> of conn.
func Subscribe(conn *nats.Conn, prefix string, logger logger.Logger) (*Subscriber, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	messages := make(chan *nats.Msg, 64)
	subscription, err := conn.ChanSubscribe(prefix+".>", messages)
	if err != nil {
		return nil, E.Cause(err, "subscribe ", prefix)
	}
	return &Subscriber{
		logger:       logger,
		prefix:       prefix,
		subscription: subscription,
		messages:     messages,
	}, nil
}

// Next blocks until a valid snapshot arrives or ctx is done. Malformed
// payloads are logged and skipped.
func (s *Subscriber) Next(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case msg := <-s.messages:
			snapshot, err := Decode(msg.Data)
			if err != nil {
				s.logger.Warn(E.Cause(err, "message on ", msg.Subject))
				continue
			}
			return Message{
				Engine:   strings.TrimPrefix(msg.Subject, s.prefix+"."),
				Snapshot: snapshot,
			}, nil
		}
	}
}

func (s *Subscriber) Close() error {
	return s.subscription.Unsubscribe()
}
