// Package config loads brokerfind settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/marcuoli/go-brokerdiscovery/pkg/brokerdiscovery"
)

// Prefix is prepended to every environment variable, e.g. BROKERFIND_PORT.
const Prefix = "BROKERFIND"

// Config validation errors
var (
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidWaitTimeout = errors.New("wait_timeout cannot be negative")
	ErrInvalidMaxInFlight = errors.New("max_in_flight cannot be negative")
	ErrInvalidHintTimeout = errors.New("hint_timeout cannot be negative")
	ErrInvalidMeasure     = errors.New("measure cannot be negative")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, error or fatal")
	ErrInvalidCandidate   = errors.New("candidate must be an IPv4 address")
)

// Config holds every BROKERFIND_* setting.
type Config struct {
	Port              int           `envconfig:"PORT" default:"1883"`
	AutoExpand        bool          `envconfig:"AUTO_EXPAND" default:"true"`
	WaitTimeout       time.Duration `envconfig:"WAIT_TIMEOUT" default:"5s"`
	DialTimeout       time.Duration `envconfig:"DIAL_TIMEOUT" default:"2s"` // negative = OS default
	MaxInFlight       int           `envconfig:"MAX_IN_FLIGHT" default:"0"` // 0 means unlimited
	Candidates        []string      `envconfig:"CANDIDATES"`
	CIDR              string        `envconfig:"CIDR"`
	IncludeInterfaces bool          `envconfig:"INCLUDE_INTERFACES" default:"false"`

	MDNS        bool          `envconfig:"MDNS" default:"false"`
	MDNSService string        `envconfig:"MDNS_SERVICE" default:"_mqtt._tcp"`
	SSDP        bool          `envconfig:"SSDP" default:"false"`
	SSDPTarget  string        `envconfig:"SSDP_TARGET" default:"ssdp:all"`
	SSDPMatch   string        `envconfig:"SSDP_MATCH"`
	HintTimeout time.Duration `envconfig:"HINT_TIMEOUT" default:"2s"`

	Measure         int           `envconfig:"MEASURE" default:"0"`
	MeasureInterval time.Duration `envconfig:"MEASURE_INTERVAL" default:"100ms"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads envFile into the environment when it exists, then processes
// BROKERFIND_* variables. Variables already set take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process %s environment: %w", Prefix, err)
	}
	candidates, err := normalizeCandidates(cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("%s_CANDIDATES: %w", Prefix, err)
	}
	cfg.Candidates = candidates
	return &cfg, nil
}

// ParseCandidates splits a comma-separated list of IPv4 addresses.
// Blank entries are skipped; anything else that is not IPv4 is an error.
func ParseCandidates(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return normalizeCandidates(strings.Split(s, ","))
}

func normalizeCandidates(list []string) ([]string, error) {
	if len(list) == 0 {
		return nil, nil
	}
	res := make([]string, 0, len(list))
	for _, c := range list {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		ip4, err := candidateIPv4(c)
		if err != nil {
			return nil, err
		}
		res = append(res, ip4)
	}
	return res, nil
}

func candidateIPv4(c string) (string, error) {
	ip := net.ParseIP(c)
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCandidate, c)
	}
	return ip.To4().String(), nil
}

// Validate returns the first invalid setting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.WaitTimeout < 0 {
		return ErrInvalidWaitTimeout
	}
	if c.MaxInFlight < 0 {
		return ErrInvalidMaxInFlight
	}
	if c.HintTimeout < 0 {
		return ErrInvalidHintTimeout
	}
	if c.Measure < 0 {
		return ErrInvalidMeasure
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidLogLevel
	}
	for _, cand := range c.Candidates {
		if _, err := candidateIPv4(cand); err != nil {
			return err
		}
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// DiscoveryOptions maps the configuration onto brokerdiscovery.Options.
func (c *Config) DiscoveryOptions() brokerdiscovery.Options {
	opts := brokerdiscovery.DefaultOptions()
	opts.Port = c.Port
	opts.AutoExpand = c.AutoExpand
	opts.WaitTimeout = c.WaitTimeout
	opts.DialTimeout = c.DialTimeout
	opts.MaxInFlight = c.MaxInFlight
	opts.Candidates = append([]string(nil), c.Candidates...)
	opts.CIDR = c.CIDR
	opts.IncludeInterfaces = c.IncludeInterfaces
	opts.EnableMDNS = c.MDNS
	if c.MDNSService != "" {
		opts.MDNSService = c.MDNSService
	}
	opts.EnableSSDP = c.SSDP
	if c.SSDPTarget != "" {
		opts.SSDPTarget = c.SSDPTarget
	}
	opts.SSDPMatch = c.SSDPMatch
	if c.HintTimeout > 0 {
		opts.HintTimeout = c.HintTimeout
	}
	return opts
}
