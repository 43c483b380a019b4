package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sagernet/sing-pulse/option"

	"github.com/sirupsen/logrus"
)

const usage = `usage: pulse-perf <command> [flags]

commands:
  server   serve bulk transfers with the PULSE controller
  client   download from a server
  monitor  print live snapshots from NATS
  report   summarize CSV logs
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch command, args := os.Args[1], os.Args[2:]; command {
	case "server":
		err = runServer(args)
	case "client":
		err = runClient(args)
	case "monitor":
		err = runMonitor(args)
	case "report":
		err = runReport(args, os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatal(err)
	}
}

type commonFlags struct {
	configPath string
	logLevel   string
}

func (f *commonFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&f.configPath, "c", "", "configuration file")
	flags.StringVar(&f.logLevel, "log-level", "info", "log level")
}

func (f *commonFlags) logger(command string) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(f.logLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	return logger.WithField("cmd", command), nil
}

func (f *commonFlags) options() (*option.Options, error) {
	if f.configPath == "" {
		return &option.Options{}, nil
	}
	return option.Load(f.configPath)
}
