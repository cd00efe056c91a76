// Package brokerdiscovery: Debug logging support.
package brokerdiscovery

import "sync/atomic"

// DebugLevel controls how much the library reports through the debug logger.
type DebugLevel int32

const (
	// DebugOff disables all debug logging.
	DebugOff DebugLevel = iota
	// DebugBasic reports resolution, hint collection and the probe outcome.
	DebugBasic
	// DebugVerbose also reports every failed connect attempt.
	DebugVerbose
)

// DebugLogger receives debug output. method names the component that
// produced the message; see MethodToPrefix.
type DebugLogger func(method DiscoveryMethod, format string, args ...interface{})

var (
	debugLogger atomic.Pointer[DebugLogger]
	debugLevel  atomic.Int32
)

// SetDebugLogger installs the debug callback. nil disables output.
func SetDebugLogger(logger DebugLogger) {
	if logger == nil {
		debugLogger.Store(nil)
		return
	}
	debugLogger.Store(&logger)
}

// SetDebugLevel sets the debug verbosity level.
func SetDebugLevel(level DebugLevel) {
	debugLevel.Store(int32(level))
}

// GetDebugLevel returns the current debug level.
func GetDebugLevel() DebugLevel {
	return DebugLevel(debugLevel.Load())
}

func logAt(level DebugLevel, method DiscoveryMethod, format string, args ...interface{}) {
	if GetDebugLevel() < level {
		return
	}
	if logger := debugLogger.Load(); logger != nil {
		(*logger)(method, format, args...)
	}
}

func debugLog(method DiscoveryMethod, format string, args ...interface{}) {
	logAt(DebugBasic, method, format, args...)
}

func debugLogVerbose(method DiscoveryMethod, format string, args ...interface{}) {
	logAt(DebugVerbose, method, format, args...)
}
