package main

import (
	"flag"
	"io"
	"math"
	"strconv"

	"github.com/sagernet/sing-pulse/congestion_pulse"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/olekukonko/tablewriter"
)

type columnSummary struct {
	name  string
	min   float64
	mean  float64
	max   float64
	count int
}

func runReport(args []string, output io.Writer) error {
	flags := flag.NewFlagSet("report", flag.ExitOnError)
	flags.Parse(args)
	if flags.NArg() == 0 {
		return E.New("missing log files")
	}
	for _, path := range flags.Args() {
		header, rows, err := congestion_pulse.ReadLog(path)
		if err != nil {
			return err
		}
		io.WriteString(output, path+"\n")
		table := tablewriter.NewWriter(output)
		table.SetHeader([]string{"Metric", "Min", "Mean", "Max"})
		for _, summary := range summarize(header, rows) {
			table.Append([]string{
				summary.name,
				formatValue(summary.min),
				formatValue(summary.mean),
				formatValue(summary.max),
			})
		}
		table.Render()
	}
	return nil
}

// summarize skips delta_t and reports the remaining columns.
func summarize(header []string, rows []congestion_pulse.Snapshot) []columnSummary {
	summaries := make([]columnSummary, 0, len(header))
	for column := 1; column < len(header); column++ {
		summary := columnSummary{name: header[column], min: math.Inf(1), max: math.Inf(-1)}
		var sum float64
		for _, row := range rows {
			if column >= len(row) {
				continue
			}
			value := row[column]
			summary.min = math.Min(summary.min, value)
			summary.max = math.Max(summary.max, value)
			sum += value
			summary.count++
		}
		if summary.count == 0 {
			summary.min, summary.max = 0, 0
		} else {
			summary.mean = sum / float64(summary.count)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
