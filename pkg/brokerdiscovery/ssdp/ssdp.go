// Package ssdp collects candidate addresses from SSDP/UPnP announcements.
// Gateways and IoT hubs that embed a broker usually answer M-SEARCH, which
// makes them worth probing before a full subnet sweep.
//
// This implementation uses github.com/koron/go-ssdp for robust SSDP handling.
package ssdp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	gossdp "github.com/koron/go-ssdp"
)

// DebugLogger is the callback function for debug logging.
// Set this to enable debug output for SSDP operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

const (
	// DefaultTimeout is the default timeout for SSDP discovery
	DefaultTimeout = 2 * time.Second

	// All searches for all devices and services
	All = gossdp.All // "ssdp:all"

	// RootDevice searches for UPnP root devices only
	RootDevice = gossdp.RootDevice // "upnp:rootdevice"
)

// Discovery performs SSDP M-SEARCH requests.
type Discovery struct {
	Timeout time.Duration
	// Match keeps only services whose ST, USN or Server header contains it
	// (case-insensitive). Empty keeps everything.
	Match string

	search func(searchType string, waitSec int, localAddr string) ([]gossdp.Service, error)
}

// NewDiscovery creates a new SSDP discovery helper with defaults.
func NewDiscovery() *Discovery {
	return &Discovery{Timeout: DefaultTimeout}
}

// Search sends an M-SEARCH for target and returns the unique IPv4 addresses
// taken from the Location of every matching response.
func (s *Discovery) Search(ctx context.Context, target string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if target == "" {
		target = All
	}
	search := s.search
	if search == nil {
		search = func(st string, waitSec int, localAddr string) ([]gossdp.Service, error) {
			return gossdp.Search(st, waitSec, localAddr)
		}
	}

	// go-ssdp waits in whole seconds (minimum 1)
	waitSec := int(s.Timeout.Seconds())
	if waitSec < 1 {
		waitSec = 1
	}
	debugLog("SSDP search target=%s wait=%ds", target, waitSec)

	type searchResult struct {
		services []gossdp.Service
		err      error
	}
	resultCh := make(chan searchResult, 1)
	go func() {
		services, err := search(target, waitSec, "")
		resultCh <- searchResult{services: services, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("SSDP search: %w", r.err)
		}
		addrs := s.addresses(r.services)
		debugLog("SSDP search found %d addresses in %d responses", len(addrs), len(r.services))
		return addrs, nil
	}
}

func (s *Discovery) addresses(services []gossdp.Service) []string {
	match := strings.ToLower(s.Match)
	seen := make(map[string]struct{})
	var addrs []string
	for _, svc := range services {
		if match != "" && !matches(svc, match) {
			continue
		}
		ip := ipFromLocation(svc.Location)
		if ip == "" {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		addrs = append(addrs, ip)
	}
	return addrs
}

func matches(svc gossdp.Service, match string) bool {
	for _, field := range []string{svc.Type, svc.USN, svc.Server} {
		if strings.Contains(strings.ToLower(field), match) {
			return true
		}
	}
	return false
}

// ipFromLocation returns the IPv4 host of a Location URL like
// "http://192.168.1.1:8080/desc.xml", or "" when it has none.
func ipFromLocation(location string) string {
	if location == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	ip := net.ParseIP(u.Hostname())
	if ip == nil || ip.To4() == nil {
		return ""
	}
	return ip.To4().String()
}
