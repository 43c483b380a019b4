package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sagernet/quic-go"
	"github.com/sagernet/sing-pulse"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const chunkSize = 32 * 1024

func runServer(args []string) error {
	flags := flag.NewFlagSet("server", flag.ExitOnError)
	var common commonFlags
	common.register(flags)
	listen := flags.String("l", ":4433", "listen address")
	flags.Parse(args)

	logger, err := common.logger("server")
	if err != nil {
		return err
	}
	options, err := common.options()
	if err != nil {
		return err
	}
	params, err := options.Params()
	if err != nil {
		return err
	}
	congestionOptions := pulse.CongestionOptions{
		Logger:        logger,
		Params:        params,
		SubjectPrefix: options.Telemetry.SubjectPrefix,
	}
	if options.Telemetry.Enabled {
		natsConn, err := nats.Connect(options.Telemetry.URL)
		if err != nil {
			return E.Cause(err, "connect telemetry")
		}
		defer natsConn.Close()
		congestionOptions.Publisher = natsConn
	}
	recorder := options.Recorder()

	tlsConfig, err := selfSignedConfig()
	if err != nil {
		return E.Cause(err, "generate certificate")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	listener, err := quic.ListenAddr(*listen, tlsConfig, &quic.Config{})
	if err != nil {
		return err
	}
	defer listener.Close()
	logger.Info("listening on ", listener.Addr())

	for index := 0; ; index++ {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		connectionOptions := congestionOptions
		if recorder != nil {
			connectionRecorder := *recorder
			if index > 0 {
				connectionRecorder.Name = fmt.Sprint(recorder.Name, "_", index)
			}
			connectionOptions.Recorder = &connectionRecorder
		}
		go serveConnection(ctx, logger, conn, connectionOptions)
	}
}

func serveConnection(ctx context.Context, logger *logrus.Entry, conn *quic.Conn, options pulse.CongestionOptions) {
	logger = logger.WithField("remote", conn.RemoteAddr().String())
	options.Logger = logger
	sender, err := pulse.SetCongestion(ctx, conn, options)
	if err != nil {
		logger.Error(err)
		conn.CloseWithError(0, "")
		return
	}
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			logClosed(logger, pulse.WrapError(err), "accept stream")
			break
		}
		go serveStream(logger, stream)
	}
	logger.Info("connection finished in ", sender.Mode(), " mode")
}

func serveStream(logger *logrus.Entry, stream *quic.Stream) {
	defer stream.Close()
	var size uint64
	err := binary.Read(stream, binary.BigEndian, &size)
	if err != nil {
		logClosed(logger, pulse.WrapError(err), "read request")
		return
	}
	logger.Debug("sending ", size, " bytes")
	chunk := make([]byte, chunkSize)
	for size > 0 {
		n := min(size, chunkSize)
		_, err = stream.Write(chunk[:n])
		if err != nil {
			logClosed(logger, pulse.WrapError(err), "write payload")
			return
		}
		size -= n
	}
}

func logClosed(logger *logrus.Entry, err error, message string) {
	switch {
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		logger.Debug(E.Cause(err, message))
	case pulse.ClassifyClose(err) == pulse.CloseAborted:
		logger.Warn(E.Cause(err, message))
	default:
		logger.Error(E.Cause(err, message))
	}
}
