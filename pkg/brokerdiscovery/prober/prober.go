// Package prober finds the first candidate address that accepts a TCP
// connection on a given port.
//
// One goroutine is started per candidate. Successful candidates are written
// to a result channel buffered to the candidate count, so no probe ever blocks
// on its write. The collector waits up to WaitTimeout for the first result and
// returns it at once; probes still in flight finish in the background and their
// results are dropped. If nothing arrives in time, the collector waits for every
// probe to finish and then takes whatever result is queued, if any.
package prober

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/network"
)

const (
	// DefaultPort is the MQTT port.
	DefaultPort = 1883
	// DefaultWaitTimeout is how long the collector prefers a fast result
	// before falling back to a full join.
	DefaultWaitTimeout = 5 * time.Second
	// DefaultDialTimeout bounds each connect attempt.
	DefaultDialTimeout = 2 * time.Second
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from probe operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// VerboseLogger receives per-candidate connect failures. Nil keeps them silent.
var VerboseLogger func(format string, args ...interface{})

func debugLogVerbose(format string, args ...interface{}) {
	if VerboseLogger != nil {
		VerboseLogger(format, args...)
	}
}

// ContextDialer opens connections. *net.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a probe run.
type Options struct {
	// Port to probe on every candidate.
	Port int
	// AutoExpand appends the .1-.254 range of every local address's /24.
	AutoExpand bool
	// WaitTimeout is the fast-path window. Zero means DefaultWaitTimeout.
	WaitTimeout time.Duration
	// DialTimeout bounds each connect. Zero means DefaultDialTimeout,
	// negative leaves it to the operating system.
	DialTimeout time.Duration
	// MaxInFlight caps concurrent connect attempts. Zero means unlimited.
	MaxInFlight int
}

// DefaultOptions returns options for the MQTT port with auto-expansion enabled.
func DefaultOptions() Options {
	return Options{
		Port:        DefaultPort,
		AutoExpand:  true,
		WaitTimeout: DefaultWaitTimeout,
		DialTimeout: DefaultDialTimeout,
	}
}

// Prober runs concurrent reachability probes.
type Prober struct {
	Options Options
	// Dialer defaults to a zero net.Dialer.
	Dialer ContextDialer
}

// NewProber creates a prober with DefaultOptions.
func NewProber() *Prober {
	return &Prober{Options: DefaultOptions()}
}

// Candidates returns the list Probe would fan out over.
func (p *Prober) Candidates(candidates []string, localAddresses []string) []string {
	if !p.Options.AutoExpand {
		return candidates
	}
	return network.ExpandCandidates(candidates, localAddresses)
}

// Probe returns the first candidate observed to accept a TCP connection on
// Options.Port. found is false when no candidate responded by the time every
// probe finished. Connection failures are expected and never reported.
func (p *Prober) Probe(ctx context.Context, candidates []string, localAddresses []string) (addr string, found bool) {
	all := p.Candidates(candidates, localAddresses)
	if len(all) == 0 {
		return "", false
	}

	wait := p.Options.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}

	var sem *semaphore.Weighted
	if p.Options.MaxInFlight > 0 {
		sem = semaphore.NewWeighted(int64(p.Options.MaxInFlight))
	}

	debugLog("probing %d candidates on port %d", len(all), p.Options.Port)

	results := make(chan string, len(all))
	var wg sync.WaitGroup
	for _, candidate := range all {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
			}
			if p.probeOne(ctx, ip) {
				results <- ip
			}
		}(candidate)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ip := <-results:
		debugLog("%s accepted on port %d", ip, p.Options.Port)
		return ip, true
	case <-timer.C:
		debugLog("no response within %v, waiting for %d probes", wait, len(all))
	case <-ctx.Done():
		debugLog("probe cancelled: %v", ctx.Err())
	}

	wg.Wait()
	select {
	case ip := <-results:
		debugLog("%s accepted on port %d (late)", ip, p.Options.Port)
		return ip, true
	default:
		debugLog("no candidate accepted on port %d", p.Options.Port)
		return "", false
	}
}

// probeOne reports whether ip accepts a TCP connection. The connection is closed before returning.
func (p *Prober) probeOne(ctx context.Context, ip string) bool {
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	timeout := p.Options.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	address := net.JoinHostPort(ip, strconv.Itoa(p.Options.Port))
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		debugLogVerbose("%s: %v", address, err)
		return false
	}
	_ = conn.Close()
	return true
}
