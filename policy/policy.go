// Package policy holds the immutable, per-connection-cloned value
// objects that describe the three fault classes the proxy can inject.
package policy

import "fmt"

func clampProbability(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// LatencyPolicy describes added-delay behavior for one direction of
// one connection. Zero value is the disabled policy.
type LatencyPolicy struct {
	Enabled     bool
	FixedMS     uint64
	RandomRange *[2]uint64 // [min, max], min <= max
	Probability float64
}

// NewLatencyPolicy clamps Probability to [0,1] and validates the
// random range, if one is given.
func NewLatencyPolicy(enabled bool, fixedMS uint64, randomRange *[2]uint64, probability float64) (LatencyPolicy, error) {
	if randomRange != nil && randomRange[0] > randomRange[1] {
		return LatencyPolicy{}, fmt.Errorf("latency random range invalid: min %d > max %d", randomRange[0], randomRange[1])
	}
	return LatencyPolicy{
		Enabled:     enabled,
		FixedMS:     fixedMS,
		RandomRange: randomRange,
		Probability: clampProbability(probability),
	}, nil
}

// IsDisabled reports whether this policy has no observable effect.
func (p LatencyPolicy) IsDisabled() bool {
	return !p.Enabled || (p.FixedMS == 0 && p.RandomRange == nil)
}

// LossPolicy describes chunk-drop behavior, with an optional
// geometric-burst mode layered on top of single-chunk drops.
type LossPolicy struct {
	Enabled          bool
	Probability      float64
	BurstSize        *uint32 // >= 1 when present
	BurstProbability float64
}

// NewLossPolicy clamps both probabilities and rejects a zero burst size.
func NewLossPolicy(enabled bool, probability float64, burstSize *uint32, burstProbability float64) (LossPolicy, error) {
	if burstSize != nil && *burstSize == 0 {
		return LossPolicy{}, fmt.Errorf("loss burst size must be >= 1, got 0")
	}
	return LossPolicy{
		Enabled:          enabled,
		Probability:      clampProbability(probability),
		BurstSize:        burstSize,
		BurstProbability: clampProbability(burstProbability),
	}, nil
}

// IsDisabled reports whether this policy has no observable effect.
func (p LossPolicy) IsDisabled() bool {
	burstPossible := p.BurstSize != nil && p.BurstProbability > 0
	return !p.Enabled || (p.Probability == 0 && !burstPossible)
}

// BandwidthPolicy describes a token-bucket shaper. LimitBytesPerSec is
// bytes/sec (see DESIGN.md for the bits-vs-bytes resolution); 0 means
// unlimited.
type BandwidthPolicy struct {
	Enabled          bool
	LimitBytesPerSec uint64
	BurstSize        uint64 // bucket capacity, bytes
}

// NewBandwidthPolicy constructs a BandwidthPolicy. BurstSize defaults
// to 8192 bytes when zero, matching the CLI default in spec.md §6.
func NewBandwidthPolicy(enabled bool, limitBytesPerSec, burstSize uint64) BandwidthPolicy {
	if burstSize == 0 {
		burstSize = 8192
	}
	return BandwidthPolicy{
		Enabled:          enabled,
		LimitBytesPerSec: limitBytesPerSec,
		BurstSize:        burstSize,
	}
}

// IsDisabled reports whether this policy has no observable effect.
func (p BandwidthPolicy) IsDisabled() bool {
	return !p.Enabled || p.LimitBytesPerSec == 0
}
