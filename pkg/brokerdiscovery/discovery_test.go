package brokerdiscovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/latency"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/resolver"
)

// openDialer accepts connections to the listed hosts and refuses the rest.
type openDialer struct {
	mu     sync.Mutex
	open   map[string]bool
	dialed []string
}

func newOpenDialer(hosts ...string) *openDialer {
	d := &openDialer{open: make(map[string]bool)}
	for _, h := range hosts {
		d.open[h] = true
	}
	return d
}

func (d *openDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dialed = append(d.dialed, address)
	d.mu.Unlock()
	if !d.open[host] {
		return nil, errors.New("connection refused")
	}
	c1, c2 := net.Pipe()
	_ = c2.Close()
	return c1, nil
}

type fakeLookup map[string][]net.IP

func (f fakeLookup) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func fakeResolver(hostname string, addrs ...string) *resolver.Resolver {
	var ips []net.IP
	for _, a := range addrs {
		ips = append(ips, net.ParseIP(a))
	}
	return &resolver.Resolver{
		Timeout:  time.Second,
		Hostname: func() (string, error) { return hostname, nil },
		Lookup:   fakeLookup{hostname: ips},
	}
}

type staticHints struct {
	method DiscoveryMethod
	addrs  []string
	err    error
}

func (s staticHints) Method() DiscoveryMethod { return s.method }
func (s staticHints) Hints(ctx context.Context) ([]string, error) {
	return s.addrs, s.err
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.WaitTimeout = time.Second
	opts.DialTimeout = 100 * time.Millisecond
	return opts
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 1883, opts.Port)
	assert.True(t, opts.AutoExpand)
	assert.Equal(t, 5*time.Second, opts.WaitTimeout)
	assert.Equal(t, DefaultDialTimeout, opts.DialTimeout)
	assert.Equal(t, "_mqtt._tcp", opts.MDNSService)
	assert.Equal(t, "ssdp:all", opts.SSDPTarget)
	assert.False(t, opts.EnableMDNS)
	assert.False(t, opts.EnableSSDP)
}

func TestDiscover_FindsBrokerOnLocalSubnet(t *testing.T) {
	d := &Discovery{
		Options:  testOptions(),
		Resolver: fakeResolver("sensor-7", "192.168.10.42"),
		Dialer:   newOpenDialer("192.168.10.5"),
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "192.168.10.5", res.Address)
	assert.Equal(t, "192.168.10.5:1883", res.HostPort())
	assert.Equal(t, MethodTCP, res.Method)
	assert.Equal(t, "sensor-7", res.Hostname)
	assert.Equal(t, []string{"192.168.10.42"}, res.LocalAddresses)
	assert.Equal(t, 254, res.Candidates)
}

func TestDiscover_NotFoundIsNotAnError(t *testing.T) {
	dialer := newOpenDialer()
	d := &Discovery{
		Options:  testOptions(),
		Resolver: fakeResolver("sensor-7", "10.0.0.9"),
		Dialer:   dialer,
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.HostPort())
	assert.Len(t, dialer.dialed, 254)
}

func TestDiscover_HostnameFailure(t *testing.T) {
	d := &Discovery{
		Options: testOptions(),
		Resolver: &resolver.Resolver{
			Hostname: func() (string, error) { return "", errors.New("uts namespace gone") },
		},
		Dialer: newOpenDialer(),
	}

	_, err := d.Discover(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrHostname)
}

func TestDiscover_NoAddressesNoCandidates(t *testing.T) {
	dialer := newOpenDialer()
	d := &Discovery{
		Options:  testOptions(),
		Resolver: fakeResolver("isolated"),
		Dialer:   dialer,
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Zero(t, res.Candidates)
	assert.Empty(t, dialer.dialed)
}

func TestDiscover_CallerCandidatesWithoutExpansion(t *testing.T) {
	opts := testOptions()
	opts.AutoExpand = false
	opts.Port = 8883
	opts.Candidates = []string{"172.16.0.3", "172.16.0.4"}

	d := &Discovery{
		Options:  opts,
		Resolver: fakeResolver("gw", "192.168.1.2"),
		Dialer:   newOpenDialer("172.16.0.4"),
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "172.16.0.4:8883", res.HostPort())
	assert.Equal(t, 2, res.Candidates)
}

func TestDiscover_CIDR(t *testing.T) {
	opts := testOptions()
	opts.AutoExpand = false
	opts.CIDR = "198.51.100.0/29"

	d := &Discovery{
		Options:  opts,
		Resolver: fakeResolver("gw"),
		Dialer:   newOpenDialer("198.51.100.6"),
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "198.51.100.6", res.Address)
	assert.Equal(t, 6, res.Candidates)
}

func TestDiscover_InvalidCIDR(t *testing.T) {
	opts := testOptions()
	opts.CIDR = "198.51.100.0/99"

	d := &Discovery{Options: opts, Resolver: fakeResolver("gw"), Dialer: newOpenDialer()}
	_, err := d.Discover(context.Background())
	assert.Error(t, err)
}

func TestDiscover_HintWinnerAttributed(t *testing.T) {
	opts := testOptions()
	opts.AutoExpand = false

	d := &Discovery{
		Options:  opts,
		Resolver: fakeResolver("gw", "192.168.1.2"),
		Dialer:   newOpenDialer("192.0.2.9"),
		Hints: []HintSource{
			staticHints{method: MethodMDNS, addrs: []string{"192.0.2.9"}},
			staticHints{method: MethodSSDP, addrs: []string{"192.0.2.9", "192.0.2.10"}},
		},
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "192.0.2.9", res.Address)
	assert.Equal(t, MethodMDNS, res.Method)
	assert.Equal(t, 2, res.Candidates)
}

func TestDiscover_HintErrorIsNotFatal(t *testing.T) {
	opts := testOptions()
	opts.AutoExpand = false
	opts.Candidates = []string{"203.0.113.1"}

	d := &Discovery{
		Options:  opts,
		Resolver: fakeResolver("gw"),
		Dialer:   newOpenDialer("203.0.113.1"),
		Hints:    []HintSource{staticHints{method: MethodSSDP, err: errors.New("no multicast route")}},
	}

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, MethodTCP, res.Method)
}

func TestDiscover_IncludeInterfaces(t *testing.T) {
	r := fakeResolver("gw")
	r.InterfaceAddrs = func() ([]net.Addr, error) {
		return []net.Addr{
			&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
			&net.IPNet{IP: net.ParseIP("10.20.30.40"), Mask: net.CIDRMask(24, 32)},
		}, nil
	}
	opts := testOptions()
	opts.IncludeInterfaces = true

	d := &Discovery{Options: opts, Resolver: r, Dialer: newOpenDialer("10.20.30.1")}
	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.20.30.40"}, res.LocalAddresses)
	assert.True(t, res.Found)
	assert.Equal(t, "10.20.30.1", res.Address)
}

func TestResult_MeasureLatencyNotFound(t *testing.T) {
	res := &Result{Port: DefaultPort}
	_, err := res.MeasureLatency(context.Background(), latency.Options{Count: 1})
	assert.ErrorIs(t, err, latency.ErrNoSamples)
}

func TestResult_MeasureLatency(t *testing.T) {
	res := &Result{Address: "192.0.2.1", Port: DefaultPort, Found: true}
	s, err := res.MeasureLatency(context.Background(), latency.Options{
		Count:    3,
		Interval: -1,
		Dialer:   newOpenDialer("192.0.2.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Samples)
}
