package latency

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s, err := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 5.0, s.Mean)
	// sample standard deviation: sqrt(32/7)
	assert.InDelta(t, math.Sqrt(32.0/7.0), s.StdDev, 1e-9)
	assert.Equal(t, 8, s.Samples)
}

func TestSummarize_SingleSample(t *testing.T) {
	s, err := Summarize([]float64{3.5})
	require.NoError(t, err)
	assert.Equal(t, 3.5, s.Min)
	assert.Equal(t, 3.5, s.Max)
	assert.Equal(t, 3.5, s.Mean)
	assert.Zero(t, s.StdDev)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestSummary_String(t *testing.T) {
	s := &Summary{Min: 0.4, Max: 1.25, Mean: 0.7, StdDev: 0.2, Samples: 10}
	got := s.String()
	assert.True(t, strings.HasPrefix(got, "n=10 min=0.4ms"), got)
	assert.Contains(t, got, "std=0.2ms")
}

type flakyDialer struct {
	calls atomic.Int32
	fail  map[int32]bool
}

func (f *flakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n := f.calls.Add(1)
	if f.fail[n] {
		return nil, errors.New("refused")
	}
	c1, c2 := net.Pipe()
	_ = c2.Close()
	return c1, nil
}

func TestMeasure_CountsFailures(t *testing.T) {
	d := &flakyDialer{fail: map[int32]bool{2: true, 4: true}}
	s, err := Measure(context.Background(), "192.0.2.1:1883", Options{Count: 5, Interval: -1, Dialer: d})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 2, s.Failures)
	assert.Equal(t, int32(5), d.calls.Load())
}

func TestMeasure_AllFail(t *testing.T) {
	d := &flakyDialer{fail: map[int32]bool{1: true, 2: true}}
	_, err := Measure(context.Background(), "192.0.2.1:1883", Options{Count: 2, Dialer: d, Interval: time.Millisecond})
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestMeasure_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &flakyDialer{}
	_, err := Measure(ctx, "192.0.2.1:1883", Options{Count: 3, Interval: time.Second, Dialer: d})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMeasure_Loopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	s, err := Measure(context.Background(), ln.Addr().String(), Options{Count: 3, Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Samples)
	assert.Zero(t, s.Failures)
	assert.GreaterOrEqual(t, s.Max, s.Min)
}
