package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"github.com/marcuoli/go-brokerdiscovery/internal/config"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/latency"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/resolver"
)

const (
	exitOK       = 0
	exitNotFound = 1
	exitUsage    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("brokerfind", flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := brokerdiscovery.DefaultOptions()
	var (
		port         = fs.Int("port", def.Port, "TCP port the broker listens on")
		candidates   = fs.String("candidates", "", "Comma-separated IPv4 addresses to probe first")
		cidr         = fs.String("cidr", "", "Extra CIDR to probe (e.g. 10.0.0.0/28)")
		auto         = fs.Bool("auto", def.AutoExpand, "Probe .1-.254 of every local /24")
		wait         = fs.Duration("wait", def.WaitTimeout, "Fast-path window before waiting for every probe")
		dialTimeout  = fs.Duration("dial-timeout", def.DialTimeout, "Per-connect timeout (negative = OS default)")
		maxInFlight  = fs.Int("max-inflight", 0, "Maximum concurrent connects (0 = unlimited)")
		interfaces   = fs.Bool("interfaces", false, "Add local interface addresses to the hostname lookup")
		useMDNS      = fs.Bool("mdns", false, "Probe mDNS responders for the MQTT service first")
		useSSDP      = fs.Bool("ssdp", false, "Probe SSDP responders first")
		measure      = fs.Int("measure", 0, "Measure connect latency N times after discovery")
		clientPrefix = fs.String("client-prefix", "", "Log a client id built from this prefix and the local addresses")
		envFile      = fs.String("env", ".env", "Optional .env file with BROKERFIND_* settings")
		verbose      = fs.Bool("v", false, "Verbose output")
		showVersion  = fs.Bool("version", false, "Print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *showVersion {
		fmt.Fprintln(stdout, brokerdiscovery.VersionInfo())
		return exitOK
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return exitUsage
	}

	// flags given on the command line override the environment
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "candidates":
			cfg.Candidates, flagErr = config.ParseCandidates(*candidates)
		case "cidr":
			cfg.CIDR = *cidr
		case "auto":
			cfg.AutoExpand = *auto
		case "wait":
			cfg.WaitTimeout = *wait
		case "dial-timeout":
			cfg.DialTimeout = *dialTimeout
		case "max-inflight":
			cfg.MaxInFlight = *maxInFlight
		case "interfaces":
			cfg.IncludeInterfaces = *interfaces
		case "mdns":
			cfg.MDNS = *useMDNS
		case "ssdp":
			cfg.SSDP = *useSSDP
		case "measure":
			cfg.Measure = *measure
		}
	})
	if flagErr != nil {
		fmt.Fprintf(stderr, "invalid candidates: %v\n", flagErr)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return exitUsage
	}
	if cfg.CIDR != "" {
		if _, _, err := net.ParseCIDR(cfg.CIDR); err != nil {
			fmt.Fprintf(stderr, "invalid CIDR: %v\n", err)
			return exitUsage
		}
	}

	logger := &log.Logger{Handler: cli.New(stderr), Level: cfg.Level()}
	switch {
	case *verbose:
		logger.Level = log.DebugLevel
		brokerdiscovery.SetDebugLevel(brokerdiscovery.DebugVerbose)
	case logger.Level == log.DebugLevel:
		brokerdiscovery.SetDebugLevel(brokerdiscovery.DebugBasic)
	default:
		brokerdiscovery.SetDebugLevel(brokerdiscovery.DebugOff)
	}
	brokerdiscovery.SetDebugLogger(func(method brokerdiscovery.DiscoveryMethod, format string, args ...interface{}) {
		logger.Debugf(brokerdiscovery.MethodToPrefix(method)+" "+format, args...)
	})
	defer brokerdiscovery.SetDebugLogger(nil)

	d := brokerdiscovery.New()
	d.Options = cfg.DiscoveryOptions()

	res, err := d.Discover(ctx)
	if err != nil {
		logger.WithError(err).Error("discovery failed")
		return exitNotFound
	}

	logger.WithFields(log.Fields{
		"hostname":   res.Hostname,
		"addresses":  strings.Join(res.LocalAddresses, ","),
		"candidates": res.Candidates,
		"elapsed":    res.Elapsed.Round(time.Millisecond),
	}).Debug("discovery finished")

	if *clientPrefix != "" {
		id := resolver.HostIdentity{Hostname: res.Hostname, Addresses: res.LocalAddresses}
		logger.Infof("client id %s", id.ClientID(*clientPrefix))
	}

	if !res.Found {
		logger.Error("broker not found, please start the broker")
		return exitNotFound
	}
	logger.WithField("method", string(res.Method)).Infof("broker found at %s", res.HostPort())
	fmt.Fprintln(stdout, res.Address)

	if cfg.Measure > 0 {
		opts := latency.Options{Count: cfg.Measure, Interval: cfg.MeasureInterval}
		if cfg.DialTimeout > 0 {
			opts.Timeout = cfg.DialTimeout
		}
		summary, err := res.MeasureLatency(ctx, opts)
		if err != nil {
			logger.WithError(err).Warn("latency measurement failed")
			return exitOK
		}
		fmt.Fprintf(stdout, "latency %s\n", summary)
	}
	return exitOK
}
