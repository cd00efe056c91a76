// Package network provides candidate address expansion and IP enumeration.
package network

import (
	"errors"
	"fmt"
	"net"
)

// ErrNotIPv4 is returned when an address cannot be used for /24 expansion.
var ErrNotIPv4 = errors.New("not an IPv4 address")

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from expansion.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// ExpandSubnet returns h1.h2.h3.1 through h1.h2.h3.254 for the address h1.h2.h3.h4.
// The .0 and .255 addresses are never produced.
func ExpandSubnet(addr string) ([]string, error) {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("expand %q: %w", addr, ErrNotIPv4)
	}
	base := ipToUint32(ip) &^ 0xff
	res := make([]string, 0, 254)
	for u := base + 1; u < base|0xff; u++ {
		res = append(res, uint32ToIP(u).String())
	}
	return res, nil
}

// ExpandCandidates returns the caller candidates followed by the /24 expansion
// of every local address. Duplicates are kept; unusable local addresses are skipped.
func ExpandCandidates(candidates []string, local []string) []string {
	res := make([]string, 0, len(candidates)+254*len(local))
	res = append(res, candidates...)
	for _, addr := range local {
		expanded, err := ExpandSubnet(addr)
		if err != nil {
			debugLog("skipping local address: %v", err)
			continue
		}
		res = append(res, expanded...)
	}
	return res
}

// Dedup returns addrs with later duplicates removed, preserving order.
func Dedup(addrs []string) []string {
	if len(addrs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(addrs))
	res := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		res = append(res, a)
	}
	return res
}

// EnumerateIPs returns all usable host IPs in a CIDR (excludes network and broadcast).
func EnumerateIPs(cidr string) ([]net.IP, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return enumerateIPsFromNet(ipnet), nil
}

// EnumerateIPStrings returns all usable host IPs in a CIDR as strings.
func EnumerateIPStrings(cidr string) ([]string, error) {
	ips, err := EnumerateIPs(cidr)
	if err != nil {
		return nil, err
	}
	result := make([]string, len(ips))
	for i, ip := range ips {
		result[i] = ip.String()
	}
	return result, nil
}

func enumerateIPsFromNet(n *net.IPNet) []net.IP {
	var res []net.IP
	base := n.IP.To4()
	if base == nil {
		return res // IPv4 only
	}
	mask := net.IP(n.Mask).To4()
	if mask == nil {
		return res
	}
	network := ipToUint32(base) & ipToUint32(mask)
	broadcast := network | ^ipToUint32(mask)
	for u := network + 1; u < broadcast; u++ {
		res = append(res, uint32ToIP(u))
	}
	return res
}

// IsUsableIPv4 reports whether ip is a non-loopback, non-link-local IPv4 unicast address.
func IsUsableIPv4(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	return !ip4.IsLoopback() && !ip4.IsLinkLocalUnicast() && !ip4.IsUnspecified() && !ip4.IsMulticast()
}

func ipToUint32(ip net.IP) uint32 {
	ip = ip.To4()
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint32ToIP(u uint32) net.IP {
	return net.IPv4(byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}
