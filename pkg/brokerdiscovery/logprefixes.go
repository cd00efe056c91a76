// Package brokerdiscovery: Log prefix constants for consistent log tagging.
// Consumers can use them in their SetDebugLogger callback, but are free to
// choose their own.
package brokerdiscovery

// Log prefix constants, formatted as [Component] or [Component:Subcomponent].
const (
	LogPrefixDiscovery = "[Discovery]"

	LogPrefixResolve = "[Discovery:Resolve]"
	LogPrefixExpand  = "[Discovery:Expand]"
	LogPrefixTCP     = "[Discovery:TCP]"
	LogPrefixMDNS    = "[Discovery:mDNS]"
	LogPrefixSSDP    = "[Discovery:SSDP]"
	LogPrefixHints   = "[Discovery:Hints]"
	LogPrefixLatency = "[Discovery:Latency]"
)

// MethodToPrefix returns the log prefix for a given discovery method.
func MethodToPrefix(method DiscoveryMethod) string {
	switch method {
	case MethodResolve:
		return LogPrefixResolve
	case MethodExpand:
		return LogPrefixExpand
	case MethodTCP:
		return LogPrefixTCP
	case MethodMDNS:
		return LogPrefixMDNS
	case MethodSSDP:
		return LogPrefixSSDP
	case MethodHints:
		return LogPrefixHints
	case MethodLatency:
		return LogPrefixLatency
	default:
		return LogPrefixDiscovery
	}
}
