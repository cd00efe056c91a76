// Package brokerdiscovery locates a service, typically an MQTT broker, on the
// local /24 networks of this host by probing a known TCP port.
//
// Discovery flow:
//   - resolve the local hostname and its IPv4 addresses
//   - optionally collect hint addresses over mDNS and SSDP
//   - build the candidate list (hints, caller candidates, CIDR, /24 expansion)
//   - probe every candidate concurrently and return the first that accepts
package brokerdiscovery

import (
	"time"

	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/mdns"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/prober"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/ssdp"
)

// DiscoveryMethod identifies the component that produced a result or log line.
type DiscoveryMethod string

const (
	MethodResolve DiscoveryMethod = "resolve" // local hostname and addresses
	MethodExpand  DiscoveryMethod = "expand"  // /24 candidate expansion
	MethodTCP     DiscoveryMethod = "tcp"     // TCP connect probe
	MethodMDNS    DiscoveryMethod = "mdns"
	MethodSSDP    DiscoveryMethod = "ssdp"
	MethodHints   DiscoveryMethod = "hints" // merged mDNS/SSDP/custom hints
	MethodLatency DiscoveryMethod = "latency"
)

const (
	// DefaultPort is the MQTT port.
	DefaultPort = prober.DefaultPort
	// DefaultWaitTimeout is the fast-path window before a full join.
	DefaultWaitTimeout = prober.DefaultWaitTimeout
	// DefaultDialTimeout bounds each connect attempt.
	DefaultDialTimeout = prober.DefaultDialTimeout
	// DefaultHintTimeout bounds mDNS and SSDP collection.
	DefaultHintTimeout = 2 * time.Second
	// DefaultMDNSService is browsed when mDNS hints are enabled.
	DefaultMDNSService = mdns.DefaultService
	// DefaultSSDPTarget is searched when SSDP hints are enabled.
	DefaultSSDPTarget = ssdp.All
)
