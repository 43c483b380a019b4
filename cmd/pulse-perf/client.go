package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sagernet/quic-go"
	"github.com/sagernet/sing-pulse"
	E "github.com/sagernet/sing/common/exceptions"
)

func runClient(args []string) error {
	flags := flag.NewFlagSet("client", flag.ExitOnError)
	var common commonFlags
	common.register(flags)
	server := flags.String("s", "127.0.0.1:4433", "server address")
	size := flags.Uint64("n", 100<<20, "bytes to download")
	flags.Parse(args)

	logger, err := common.logger("client")
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := quic.DialAddr(ctx, *server, clientConfig(), &quic.Config{})
	if err != nil {
		return E.Cause(err, "dial ", *server)
	}
	defer conn.CloseWithError(0, "")
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return E.Cause(err, "open stream")
	}
	start := time.Now()
	err = binary.Write(stream, binary.BigEndian, *size)
	if err != nil {
		return E.Cause(err, "write request")
	}
	stream.Close()
	received, err := io.Copy(io.Discard, stream)
	err = pulse.WrapError(err)
	if err != nil && !errors.Is(err, io.EOF) {
		return E.Cause(err, "read payload")
	}
	elapsed := time.Since(start)
	logger.Info("received ", received, " bytes in ", elapsed.Round(time.Millisecond),
		" (", int64(float64(received)*8/elapsed.Seconds()/1e6), " Mbit/s)")
	if uint64(received) != *size {
		return E.New("short transfer: ", received, " of ", *size)
	}
	return nil
}
