// Package config turns CLI flags, environment variables and an
// optional YAML policy file into validated policy.LatencyPolicy,
// policy.LossPolicy and policy.BandwidthPolicy values. Bandwidth unit
// conversion (bps/kbps/mbps suffixes) also lives here: it is the
// proxy's external interface, not something the core forwarding
// engine needs to know about.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"faultline/policy"
)

// ValidationError wraps a configuration problem detected before the
// listener is bound (invalid latency range, bad bandwidth unit,
// zero burst size, ...). Keeping it as a distinct type lets callers
// use errors.As instead of string matching.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Listen describes where the proxy binds and where it dials.
type Listen struct {
	IP       string
	Port     uint16
	DestIP   string
	DestPort uint16
}

// BindAddress returns "ip:port" for the listener.
func (l Listen) BindAddress() string {
	return fmt.Sprintf("%s:%d", l.IP, l.Port)
}

// DestAddress returns "ip:port" for the dial target.
func (l Listen) DestAddress() string {
	return fmt.Sprintf("%s:%d", l.DestIP, l.DestPort)
}

// Config is the fully validated, effective configuration for one
// proxy process: where it listens, where it dials, and the three
// fault policies cloned into every accepted connection.
type Config struct {
	Listen    Listen
	Latency   policy.LatencyPolicy
	Loss      policy.LossPolicy
	Bandwidth policy.BandwidthPolicy
}

// FileOverlay is the shape of an optional --config YAML file. Only
// fields set in the file to a non-zero value (for the pointer fields:
// present at all) override the corresponding flag-derived Params
// field; a false or zero value in the file leaves the flag value as it
// is. See ApplyFileOverlay.
type FileOverlay struct {
	IP       string `yaml:"ip"`
	Port     uint16 `yaml:"port"`
	DestIP   string `yaml:"destIp"`
	DestPort uint16 `yaml:"destPort"`

	LatencyEnabled     bool     `yaml:"latencyEnabled"`
	LatencyFixedMS     uint64   `yaml:"latencyFixedMs"`
	LatencyRandomMS    string   `yaml:"latencyRandomMs"` // "min-max"
	LatencyProbability *float64 `yaml:"latencyProbability"`

	PacketLossEnabled          bool     `yaml:"packetLossEnabled"`
	PacketLossProbability      *float64 `yaml:"packetLossProbability"`
	PacketLossBurstSize        *uint32  `yaml:"packetLossBurstSize"`
	PacketLossBurstProbability *float64 `yaml:"packetLossBurstProbability"`

	BandwidthEnabled   bool   `yaml:"bandwidthEnabled"`
	BandwidthLimit     string `yaml:"bandwidthLimit"`
	BandwidthBurstSize uint64 `yaml:"bandwidthBurstSize"`
}

// LoadFile reads and parses a YAML policy file. It does not validate
// the result; merge it onto Params with ApplyFileOverlay and call
// Build.
func LoadFile(path string) (*FileOverlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var overlay FileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &overlay, nil
}

// ParseBandwidth converts a CLI bandwidth value into bytes/sec. It
// accepts a bare number (bytes/sec), or a number suffixed with
// "bps", "kbps" (x1024) or "mbps" (x1024^2), case-insensitively.
// "0" or "0bps" means unlimited.
func ParseBandwidth(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}

	multiplier := uint64(1)
	numeric := s
	switch {
	case strings.HasSuffix(s, "mbps"):
		multiplier = 1024 * 1024
		numeric = strings.TrimSuffix(s, "mbps")
	case strings.HasSuffix(s, "kbps"):
		multiplier = 1024
		numeric = strings.TrimSuffix(s, "kbps")
	case strings.HasSuffix(s, "bps"):
		numeric = strings.TrimSuffix(s, "bps")
	}

	numeric = strings.TrimSpace(numeric)
	value, err := strconv.ParseUint(numeric, 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "bandwidth-limit", Err: fmt.Errorf("cannot parse %q as a bandwidth value: %w", s, err)}
	}
	return value * multiplier, nil
}

// ParseLatencyRange parses a "min-max" string into a validated range.
// An empty string means "no random range".
func ParseLatencyRange(s string) (*[2]uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil, &ValidationError{Field: "latency-random-ms", Err: fmt.Errorf("expected \"min-max\", got %q", s)}
	}
	min, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "latency-random-ms", Err: fmt.Errorf("invalid min %q: %w", parts[0], err)}
	}
	max, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "latency-random-ms", Err: fmt.Errorf("invalid max %q: %w", parts[1], err)}
	}
	if min > max {
		return nil, &ValidationError{Field: "latency-random-ms", Err: fmt.Errorf("min %d > max %d", min, max)}
	}
	return &[2]uint64{min, max}, nil
}

// Params collects the already-parsed raw flag values Build needs.
// Each field mirrors one row of the CLI table in SPEC_FULL.md §6.
type Params struct {
	IP       string
	Port     uint16
	DestIP   string
	DestPort uint16

	LatencyEnabled     bool
	LatencyFixedMS     uint64
	LatencyRandomRange string // "min-max" or empty
	LatencyProbability float64

	PacketLossEnabled          bool
	PacketLossProbability      float64
	PacketLossBurstSize        uint32 // 0 means "not set"
	PacketLossBurstProbability float64

	BandwidthEnabled   bool
	BandwidthLimit     string // raw flag value, unit-suffixed
	BandwidthBurstSize uint64
}

// Build validates p and constructs the effective Config. Any
// malformed range, unit or burst size is reported as a
// *ValidationError before any socket is touched.
func Build(p Params) (*Config, error) {
	randomRange, err := ParseLatencyRange(p.LatencyRandomRange)
	if err != nil {
		return nil, err
	}
	latency, err := policy.NewLatencyPolicy(p.LatencyEnabled, p.LatencyFixedMS, randomRange, p.LatencyProbability)
	if err != nil {
		return nil, &ValidationError{Field: "latency", Err: err}
	}

	var burstSize *uint32
	if p.PacketLossBurstSize > 0 {
		bs := p.PacketLossBurstSize
		burstSize = &bs
	}
	loss, err := policy.NewLossPolicy(p.PacketLossEnabled, p.PacketLossProbability, burstSize, p.PacketLossBurstProbability)
	if err != nil {
		return nil, &ValidationError{Field: "packet-loss", Err: err}
	}

	limitBytesPerSec, err := ParseBandwidth(p.BandwidthLimit)
	if err != nil {
		return nil, err
	}
	bandwidth := policy.NewBandwidthPolicy(p.BandwidthEnabled, limitBytesPerSec, p.BandwidthBurstSize)

	return &Config{
		Listen: Listen{
			IP:       p.IP,
			Port:     p.Port,
			DestIP:   p.DestIP,
			DestPort: p.DestPort,
		},
		Latency:   latency,
		Loss:      loss,
		Bandwidth: bandwidth,
	}, nil
}

// ApplyFileOverlay merges a parsed YAML overlay onto flag-derived
// Params in place. The caller is expected to apply the overlay
// before parsing explicit flags on top, so that "explicit flags
// always override file values" (SPEC_FULL.md §4.5) holds regardless
// of call order convenience.
func ApplyFileOverlay(p *Params, overlay *FileOverlay) {
	if overlay.IP != "" {
		p.IP = overlay.IP
	}
	if overlay.Port != 0 {
		p.Port = overlay.Port
	}
	if overlay.DestIP != "" {
		p.DestIP = overlay.DestIP
	}
	if overlay.DestPort != 0 {
		p.DestPort = overlay.DestPort
	}

	if overlay.LatencyEnabled {
		p.LatencyEnabled = true
	}
	if overlay.LatencyFixedMS != 0 {
		p.LatencyFixedMS = overlay.LatencyFixedMS
	}
	if overlay.LatencyRandomMS != "" {
		p.LatencyRandomRange = overlay.LatencyRandomMS
	}
	if overlay.LatencyProbability != nil {
		p.LatencyProbability = *overlay.LatencyProbability
	}

	if overlay.PacketLossEnabled {
		p.PacketLossEnabled = true
	}
	if overlay.PacketLossProbability != nil {
		p.PacketLossProbability = *overlay.PacketLossProbability
	}
	if overlay.PacketLossBurstSize != nil {
		p.PacketLossBurstSize = *overlay.PacketLossBurstSize
	}
	if overlay.PacketLossBurstProbability != nil {
		p.PacketLossBurstProbability = *overlay.PacketLossBurstProbability
	}

	if overlay.BandwidthEnabled {
		p.BandwidthEnabled = true
	}
	if overlay.BandwidthLimit != "" {
		p.BandwidthLimit = overlay.BandwidthLimit
	}
	if overlay.BandwidthBurstSize != 0 {
		p.BandwidthBurstSize = overlay.BandwidthBurstSize
	}
}
