// Package resolver obtains the local hostname and the IPv4 addresses bound to it.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/network"
)

// DefaultTimeout bounds the forward address lookup.
const DefaultTimeout = 2 * time.Second

// ErrHostname is returned when the local hostname cannot be determined.
var ErrHostname = errors.New("hostname unavailable")

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from resolver operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// HostIdentity is the local hostname and its IPv4 address set.
type HostIdentity struct {
	Hostname string
	// Addresses is sorted and free of duplicates.
	Addresses []string
}

// ClientID joins prefix and every address with underscores,
// e.g. "testclient_192.168.1.42". Returns prefix when there are no addresses.
func (h *HostIdentity) ClientID(prefix string) string {
	if len(h.Addresses) == 0 {
		return prefix
	}
	return prefix + "_" + strings.Join(h.Addresses, "_")
}

// IPLookuper is the subset of *net.Resolver used for forward lookups.
type IPLookuper interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Resolver resolves the local host identity.
type Resolver struct {
	Timeout time.Duration
	// IncludeInterfaces adds the usable IPv4 addresses of the local interfaces.
	IncludeInterfaces bool

	// Hostname defaults to os.Hostname.
	Hostname func() (string, error)
	// Lookup defaults to net.DefaultResolver.
	Lookup IPLookuper
	// InterfaceAddrs defaults to net.InterfaceAddrs.
	InterfaceAddrs func() ([]net.Addr, error)
}

// NewResolver creates a resolver with defaults.
func NewResolver() *Resolver {
	return &Resolver{Timeout: DefaultTimeout}
}

// ResolveHostAddresses returns the hostname and its IPv4 addresses.
// A failed address lookup yields an empty set; only a missing hostname is an error.
func (r *Resolver) ResolveHostAddresses(ctx context.Context) (*HostIdentity, error) {
	hostnameFn := r.Hostname
	if hostnameFn == nil {
		hostnameFn = os.Hostname
	}
	name, err := hostnameFn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostname, err)
	}
	if name == "" {
		return nil, ErrHostname
	}

	set := make(map[string]struct{})
	for _, a := range r.lookupHost(ctx, name) {
		set[a] = struct{}{}
	}
	if r.IncludeInterfaces {
		for _, a := range r.interfaceAddresses() {
			set[a] = struct{}{}
		}
	}

	id := &HostIdentity{Hostname: name, Addresses: make([]string, 0, len(set))}
	for a := range set {
		id.Addresses = append(id.Addresses, a)
	}
	sort.Strings(id.Addresses)
	debugLog("%s -> %v", name, id.Addresses)
	return id, nil
}

func (r *Resolver) lookupHost(ctx context.Context, name string) []string {
	lookup := r.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := lookup.LookupIP(lookupCtx, "ip4", name)
	if err != nil {
		debugLog("%s: lookup failed: %v", name, err)
		return nil
	}
	var res []string
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			res = append(res, ip4.String())
		}
	}
	return res
}

func (r *Resolver) interfaceAddresses() []string {
	addrsFn := r.InterfaceAddrs
	if addrsFn == nil {
		addrsFn = net.InterfaceAddrs
	}
	addrs, err := addrsFn()
	if err != nil {
		debugLog("interface addresses: %v", err)
		return nil
	}
	var res []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || !network.IsUsableIPv4(ipnet.IP) {
			continue
		}
		res = append(res, ipnet.IP.To4().String())
	}
	return res
}
