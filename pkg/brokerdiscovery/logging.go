// Package brokerdiscovery: debug logging wiring for subpackages.
package brokerdiscovery

import (
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/latency"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/mdns"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/network"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/prober"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/resolver"
	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery/ssdp"
)

func init() {
	resolver.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodResolve, format, args...)
	}
	network.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodExpand, format, args...)
	}
	prober.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodTCP, format, args...)
	}
	prober.VerboseLogger = func(format string, args ...interface{}) {
		debugLogVerbose(MethodTCP, format, args...)
	}
	mdns.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodMDNS, format, args...)
	}
	ssdp.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodSSDP, format, args...)
	}
	latency.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodLatency, format, args...)
	}
}
