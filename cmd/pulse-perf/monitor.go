package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sagernet/sing-pulse/congestion_pulse"
	"github.com/sagernet/sing-pulse/telemetry"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/nats-io/nats.go"
	"github.com/olekukonko/tablewriter"
)

func runMonitor(args []string) error {
	flags := flag.NewFlagSet("monitor", flag.ExitOnError)
	var common commonFlags
	common.register(flags)
	url := flags.String("na", nats.DefaultURL, "nats server address")
	prefix := flags.String("p", telemetry.DefaultSubjectPrefix, "subject prefix")
	metrics := flags.String("m", strings.Join(congestion_pulse.DefaultMetrics(), ","), "metric names in snapshot order")
	batch := flags.Int("b", 5, "rows per table")
	flags.Parse(args)

	logger, err := common.logger("monitor")
	if err != nil {
		return err
	}
	conn, err := nats.Connect(*url)
	if err != nil {
		return E.Cause(err, "connect ", *url)
	}
	defer conn.Close()
	subscriber, err := telemetry.Subscribe(conn, *prefix, logger)
	if err != nil {
		return err
	}
	defer subscriber.Close()
	logger.Info("watching ", *prefix, ".>")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	header := append([]string{"engine"}, congestion_pulse.Header(strings.Split(*metrics, ","))...)
	var rows [][]string
	for {
		message, err := subscriber.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		rows = append(rows, monitorRow(message))
		if len(rows) < *batch {
			continue
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader(header)
		table.AppendBulk(rows)
		table.Render()
		rows = rows[:0]
	}
}

func monitorRow(message telemetry.Message) []string {
	engine := message.Engine
	if len(engine) > 8 {
		engine = engine[:8]
	}
	row := []string{engine}
	for _, value := range message.Snapshot {
		row = append(row, strconv.FormatFloat(value, 'f', 2, 64))
	}
	return row
}
