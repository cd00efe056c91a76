// Package mdns browses for brokers that advertise themselves over multicast DNS,
// e.g. Mosquitto published through Avahi as "_mqtt._tcp".
//
// Uses github.com/miekg/dns for packet handling. Queries are sent from an
// ephemeral port, so responders answer by unicast (legacy one-shot query).
package mdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// Port is the mDNS port
	Port = 5353
	// MulticastAddr is the mDNS multicast address
	MulticastAddr = "224.0.0.251"
	// DefaultTimeout is how long responses are collected
	DefaultTimeout = 2 * time.Second
	// DefaultService is the DNS-SD service type of MQTT brokers
	DefaultService = "_mqtt._tcp"
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from mDNS operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// Discovery browses for a DNS-SD service type.
type Discovery struct {
	Timeout time.Duration
	// Addr is where the query is sent. Defaults to MulticastAddr:Port.
	Addr *net.UDPAddr
}

// NewDiscovery creates a new mDNS discovery helper with defaults.
func NewDiscovery() *Discovery {
	return &Discovery{Timeout: DefaultTimeout}
}

// ServiceName returns the fully qualified browse name, e.g. "_mqtt._tcp.local.".
func ServiceName(service string) string {
	if service == "" {
		service = DefaultService
	}
	service = strings.TrimSuffix(service, ".")
	if !strings.HasSuffix(service, ".local") {
		service += ".local"
	}
	return dns.Fqdn(service)
}

// Browse sends a PTR query for service and returns the IPv4 addresses of
// every responder, in the order they were first seen.
func (m *Discovery) Browse(ctx context.Context, service string) ([]string, error) {
	name := ServiceName(service)

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)
	msg.RecursionDesired = false // mDNS doesn't use recursion

	data, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("udp listen: %w", err)
	}
	defer conn.Close()

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock ReadFrom on cancellation.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	dst := m.Addr
	if dst == nil {
		dst = &net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: Port}
	}
	if _, err := conn.WriteTo(data, dst); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}
	debugLog("browse %s via %s", name, dst)

	seen := make(map[string]struct{})
	var addrs []string
	buf := make([]byte, 65536)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			break
		}
		var src net.IP
		if udpAddr, ok := from.(*net.UDPAddr); ok {
			src = udpAddr.IP
		}
		for _, a := range parseBrowseResponse(buf[:n], name, src) {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			addrs = append(addrs, a)
		}
	}

	debugLog("browse %s found %d responders", name, len(addrs))
	return addrs, nil
}

// parseBrowseResponse returns the IPv4 addresses a response points at.
// Only responses that answer the question count. A records from the answer and
// additional sections are preferred; without any the sender's address is used.
func parseBrowseResponse(data []byte, name string, src net.IP) []string {
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return nil
	}
	if !msg.Response {
		return nil
	}

	answered := false
	var addrs []string
	for _, rr := range append(msg.Answer, msg.Extra...) {
		switch r := rr.(type) {
		case *dns.PTR:
			if strings.EqualFold(r.Hdr.Name, name) {
				answered = true
			}
		case *dns.SRV:
			if strings.HasSuffix(strings.ToLower(r.Hdr.Name), strings.ToLower(name)) {
				answered = true
			}
		case *dns.A:
			if ip4 := r.A.To4(); ip4 != nil {
				addrs = append(addrs, ip4.String())
			}
		}
	}
	if !answered {
		return nil
	}
	if len(addrs) == 0 && src != nil && src.To4() != nil {
		addrs = append(addrs, src.To4().String())
	}
	return addrs
}
