package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// options configures a demo run. Every field can come from a flag or from
// the YAML file named by -config.
type options struct {
	Transport   string        `yaml:"transport"`
	Count       int           `yaml:"count"`
	Interval    time.Duration `yaml:"interval"`
	Drop        float64       `yaml:"drop"`
	SyncTimeout time.Duration `yaml:"sync_timeout"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Verbose     bool          `yaml:"verbose"`
}

func defaultOptions() options {
	return options{
		Transport:   "pipe",
		Count:       5,
		Interval:    200 * time.Millisecond,
		SyncTimeout: 500 * time.Millisecond,
	}
}

// parseFlags reads the command line. Values from -config fill in every
// option not given as a flag.
func parseFlags() (options, error) {
	return parseArgs(flag.CommandLine, os.Args[1:])
}

func parseArgs(fs *flag.FlagSet, args []string) (options, error) {
	defaults := defaultOptions()
	o := defaults
	var configPath string

	fs.StringVar(&o.Transport, "transport", defaults.Transport, `"pipe" or "udp"`)
	fs.IntVar(&o.Count, "count", defaults.Count, "Group messages each node sends")
	fs.DurationVar(&o.Interval, "interval", defaults.Interval, "Delay between messages")
	fs.Float64Var(&o.Drop, "drop", defaults.Drop, "Packet drop rate on the pipe (0.0-1.0)")
	fs.DurationVar(&o.SyncTimeout, "sync-timeout", defaults.SyncTimeout, "Counter sync response timeout")
	fs.StringVar(&o.MetricsAddr, "metrics-addr", defaults.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.BoolVar(&o.Verbose, "verbose", defaults.Verbose, "Enable debug logging")
	fs.StringVar(&configPath, "config", "", "YAML options file")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if configPath != "" {
		file, err := loadOptionsFile(configPath, defaults)
		if err != nil {
			return options{}, err
		}
		o = mergeOptions(fs, o, file)
	}
	return o, o.validate()
}

func loadOptionsFile(path string, defaults options) (options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return options{}, fmt.Errorf("read config: %w", err)
	}
	o := defaults
	if err := yaml.UnmarshalStrict(data, &o); err != nil {
		return options{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return o, nil
}

// mergeOptions returns file with every explicitly set flag taken from flags.
func mergeOptions(fs *flag.FlagSet, flags, file options) options {
	o := file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			o.Transport = flags.Transport
		case "count":
			o.Count = flags.Count
		case "interval":
			o.Interval = flags.Interval
		case "drop":
			o.Drop = flags.Drop
		case "sync-timeout":
			o.SyncTimeout = flags.SyncTimeout
		case "metrics-addr":
			o.MetricsAddr = flags.MetricsAddr
		case "verbose":
			o.Verbose = flags.Verbose
		}
	})
	return o
}

func (o options) validate() error {
	switch {
	case o.Transport != "pipe" && o.Transport != "udp":
		return fmt.Errorf("transport must be pipe or udp, got %q", o.Transport)
	case o.Count < 0:
		return fmt.Errorf("count must not be negative, got %d", o.Count)
	case o.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %s", o.Interval)
	case o.Drop < 0 || o.Drop > 1:
		return fmt.Errorf("drop must be within 0.0-1.0, got %v", o.Drop)
	case o.SyncTimeout <= 0:
		return fmt.Errorf("sync timeout must be positive, got %s", o.SyncTimeout)
	}
	return nil
}
