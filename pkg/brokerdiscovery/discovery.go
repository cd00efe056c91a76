// Package brokerdiscovery: Resolve, hint and probe in one call.
package brokerdiscovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/latency"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/mdns"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/network"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/prober"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/resolver"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/ssdp"
)

// Options configures Discover.
type Options struct {
	// Port to probe (default 1883).
	Port int
	// AutoExpand probes .1-.254 of every local address's /24.
	AutoExpand bool
	// WaitTimeout is the fast-path window before waiting for every probe.
	WaitTimeout time.Duration
	// DialTimeout bounds each connect; negative leaves it to the OS.
	DialTimeout time.Duration
	// MaxInFlight caps concurrent connects (0 = unlimited).
	MaxInFlight int

	// Candidates are probed in addition to any expansion.
	Candidates []string
	// CIDR, if set, adds every host address of that network.
	CIDR string
	// IncludeInterfaces adds local interface addresses to the hostname lookup.
	IncludeInterfaces bool

	// EnableMDNS browses MDNSService and probes responders first.
	EnableMDNS  bool
	MDNSService string
	// EnableSSDP sends an M-SEARCH for SSDPTarget and probes responders first.
	EnableSSDP bool
	SSDPTarget string
	SSDPMatch  string
	// HintTimeout bounds hint collection.
	HintTimeout time.Duration
}

// DefaultOptions returns options for MQTT on port 1883 with auto-expansion.
func DefaultOptions() Options {
	return Options{
		Port:        DefaultPort,
		AutoExpand:  true,
		WaitTimeout: DefaultWaitTimeout,
		DialTimeout: DefaultDialTimeout,
		MDNSService: DefaultMDNSService,
		SSDPTarget:  DefaultSSDPTarget,
		HintTimeout: DefaultHintTimeout,
	}
}

// Result describes a discovery run. Found is false when nothing responded;
// that is a normal outcome, not an error.
type Result struct {
	Hostname       string
	LocalAddresses []string
	Address        string
	Port           int
	Found          bool
	// Method is MethodMDNS or MethodSSDP when the winner came from a hint,
	// MethodTCP otherwise.
	Method     DiscoveryMethod
	Candidates int
	Elapsed    time.Duration
}

// HostPort returns "address:port", or "" when nothing was found.
func (r *Result) HostPort() string {
	if !r.Found {
		return ""
	}
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// HintSource yields addresses worth probing before the subnet sweep.
type HintSource interface {
	Method() DiscoveryMethod
	Hints(ctx context.Context) ([]string, error)
}

type mdnsHints struct {
	d       *mdns.Discovery
	service string
}

func (h mdnsHints) Method() DiscoveryMethod { return MethodMDNS }
func (h mdnsHints) Hints(ctx context.Context) ([]string, error) {
	return h.d.Browse(ctx, h.service)
}

type ssdpHints struct {
	d      *ssdp.Discovery
	target string
}

func (h ssdpHints) Method() DiscoveryMethod { return MethodSSDP }
func (h ssdpHints) Hints(ctx context.Context) ([]string, error) {
	return h.d.Search(ctx, h.target)
}

// Discovery ties the resolver, hint sources and prober together.
type Discovery struct {
	Options Options

	// Resolver defaults to resolver.NewResolver().
	Resolver *resolver.Resolver
	// Dialer is handed to the prober and defaults to net.Dialer.
	Dialer prober.ContextDialer
	// Hints are consulted after the mDNS and SSDP sources.
	Hints []HintSource
}

// New creates a discovery helper with DefaultOptions.
func New() *Discovery {
	return &Discovery{Options: DefaultOptions()}
}

// Discover resolves the local identity, builds the candidate list and probes it.
// The only error is a failure to determine the local identity or an invalid CIDR.
func (d *Discovery) Discover(ctx context.Context) (*Result, error) {
	start := time.Now()
	opts := d.Options
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	var r resolver.Resolver
	if d.Resolver != nil {
		r = *d.Resolver
	} else {
		r = *resolver.NewResolver()
	}
	r.IncludeInterfaces = r.IncludeInterfaces || opts.IncludeInterfaces

	id, err := r.ResolveHostAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve host: %w", err)
	}
	if opts.AutoExpand && len(id.Addresses) == 0 {
		debugLog(MethodResolve, "%s has no IPv4 addresses, nothing to expand", id.Hostname)
	}

	var extra []string
	if opts.CIDR != "" {
		extra, err = network.EnumerateIPStrings(opts.CIDR)
		if err != nil {
			return nil, fmt.Errorf("parse CIDR: %w", err)
		}
	}

	hints, origin := d.collectHints(ctx, opts)

	candidates := make([]string, 0, len(hints)+len(opts.Candidates)+len(extra))
	candidates = append(candidates, hints...)
	candidates = append(candidates, opts.Candidates...)
	candidates = append(candidates, extra...)

	p := &prober.Prober{
		Options: prober.Options{
			Port:        opts.Port,
			AutoExpand:  opts.AutoExpand,
			WaitTimeout: opts.WaitTimeout,
			DialTimeout: opts.DialTimeout,
			MaxInFlight: opts.MaxInFlight,
		},
		Dialer: d.Dialer,
	}

	res := &Result{
		Hostname:       id.Hostname,
		LocalAddresses: id.Addresses,
		Port:           opts.Port,
		Method:         MethodTCP,
		Candidates:     len(p.Candidates(candidates, id.Addresses)),
	}
	res.Address, res.Found = p.Probe(ctx, candidates, id.Addresses)
	if m, ok := origin[res.Address]; ok && res.Found {
		res.Method = m
	}
	res.Elapsed = time.Since(start)

	if res.Found {
		debugLog(MethodTCP, "found %s via %s in %v", res.HostPort(), res.Method, res.Elapsed)
	} else {
		debugLog(MethodTCP, "nothing listening on port %d after %d candidates", res.Port, res.Candidates)
	}
	return res, nil
}

// collectHints runs every hint source concurrently and returns the unique
// addresses in source order, plus the source that first reported each one.
func (d *Discovery) collectHints(ctx context.Context, opts Options) ([]string, map[string]DiscoveryMethod) {
	var sources []HintSource
	if opts.EnableMDNS {
		m := mdns.NewDiscovery()
		if opts.HintTimeout > 0 {
			m.Timeout = opts.HintTimeout
		}
		sources = append(sources, mdnsHints{d: m, service: opts.MDNSService})
	}
	if opts.EnableSSDP {
		s := ssdp.NewDiscovery()
		if opts.HintTimeout > 0 {
			s.Timeout = opts.HintTimeout
		}
		s.Match = opts.SSDPMatch
		sources = append(sources, ssdpHints{d: s, target: opts.SSDPTarget})
	}
	sources = append(sources, d.Hints...)
	if len(sources) == 0 {
		return nil, nil
	}

	timeout := opts.HintTimeout
	if timeout <= 0 {
		timeout = DefaultHintTimeout
	}
	// go-ssdp waits in whole seconds; leave room for it to return.
	hintCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	found := make([][]string, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(idx int, src HintSource) {
			defer wg.Done()
			addrs, err := src.Hints(hintCtx)
			if err != nil {
				debugLog(src.Method(), "hints unavailable: %v", err)
				return
			}
			found[idx] = addrs
		}(i, src)
	}
	wg.Wait()

	origin := make(map[string]DiscoveryMethod)
	var all []string
	for i, addrs := range found {
		for _, a := range addrs {
			if _, ok := origin[a]; !ok {
				origin[a] = sources[i].Method()
			}
		}
		all = append(all, addrs...)
	}
	all = network.Dedup(all)
	if len(all) > 0 {
		debugLog(MethodHints, "%d hint addresses: %v", len(all), all)
	}
	return all, origin
}

// MeasureLatency samples connect times to the discovered address.
func (r *Result) MeasureLatency(ctx context.Context, opts latency.Options) (*latency.Summary, error) {
	if !r.Found {
		return nil, fmt.Errorf("measure latency: %w", latency.ErrNoSamples)
	}
	return latency.Measure(ctx, r.HostPort(), opts)
}
