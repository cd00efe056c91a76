// Package latency samples TCP connect round-trip times to a discovered broker.
package latency

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	// DefaultCount is the number of connects per measurement.
	DefaultCount = 10
	// DefaultInterval separates consecutive connects.
	DefaultInterval = 100 * time.Millisecond
	// DefaultTimeout bounds each connect.
	DefaultTimeout = 2 * time.Second
)

// ErrNoSamples is returned when no connect attempt succeeded.
var ErrNoSamples = errors.New("no latency samples")

// DebugLogger is a callback for debug logging.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// ContextDialer opens connections. *net.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a measurement.
type Options struct {
	Count    int
	Interval time.Duration
	Timeout  time.Duration
	Dialer   ContextDialer
}

// Summary holds connect latency statistics in milliseconds.
type Summary struct {
	Min      float64
	Max      float64
	Mean     float64
	StdDev   float64
	Samples  int
	Failures int
}

// String formats the summary like "n=10 min=0.4ms max=1.2ms mean=0.7ms std=0.2ms".
func (s *Summary) String() string {
	return fmt.Sprintf("n=%d min=%.1fms max=%.1fms mean=%.1fms std=%.1fms",
		s.Samples, s.Min, s.Max, s.Mean, s.StdDev)
}

// Measure connects to address ("host:port") Count times and summarises the
// connect durations. Failed attempts are counted, not fatal.
func Measure(ctx context.Context, address string, opts Options) (*Summary, error) {
	count := opts.Count
	if count <= 0 {
		count = DefaultCount
	}
	interval := opts.Interval
	if interval < 0 {
		interval = 0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	samples := make([]float64, 0, count)
	failures := 0
	for i := 0; i < count; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}

		d, err := connectOnce(ctx, dialer, address, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			debugLog("%s: connect %d failed: %v", address, i+1, err)
			continue
		}
		ms := float64(d.Microseconds()) / 1000
		samples = append(samples, ms)
		debugLog("%s: connect %d took %.2fms", address, i+1, ms)
	}

	summary, err := Summarize(samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%d failures)", address, err, failures)
	}
	summary.Failures = failures
	return summary, nil
}

func connectOnce(ctx context.Context, dialer ContextDialer, address string, timeout time.Duration) (time.Duration, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return elapsed, nil
}

// Summarize computes min, max, mean and sample standard deviation.
// A single sample has a standard deviation of zero.
func Summarize(samples []float64) (*Summary, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	data := stats.Float64Data(samples)

	lo, err := stats.Min(data)
	if err != nil {
		return nil, err
	}
	hi, err := stats.Max(data)
	if err != nil {
		return nil, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return nil, err
	}
	var std float64
	if len(samples) > 1 {
		std, err = stats.StandardDeviationSample(data)
		if err != nil {
			return nil, err
		}
	}
	return &Summary{Min: lo, Max: hi, Mean: mean, StdDev: std, Samples: len(samples)}, nil
}
