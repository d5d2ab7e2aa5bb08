// Package fault implements the per-connection, per-direction fault
// pipeline: probabilistic chunk loss with a geometric-burst mode,
// mixed fixed+random latency gated by a Bernoulli draw, and a
// token-bucket bandwidth shaper that permits debt.
//
// An Injector is single-consumer. Concurrent calls on one instance
// are forbidden; the forwarder gives each direction of a connection
// its own Injector so the rule is never at risk of being broken (see
// DESIGN.md, "per-direction injector sharing").
package fault

import (
	"crypto/rand"
	"encoding/binary"
	"log"
	mrand "math/rand"
	"time"

	"faultline/policy"
)

// Injector owns all randomness and timing decisions for one direction
// of one connection.
type Injector struct {
	latency   policy.LatencyPolicy
	loss      policy.LossPolicy
	bandwidth policy.BandwidthPolicy

	rng *mrand.Rand

	burstCounter uint32
	inBurst      bool

	tokens     float64
	lastRefill time.Time
}

// New creates an Injector seeded from OS entropy. The seed is never
// logged or exposed; it is not reused across instances.
func New(latency policy.LatencyPolicy, loss policy.LossPolicy, bandwidth policy.BandwidthPolicy) *Injector {
	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		// crypto/rand failure is effectively unheard of on supported
		// platforms; fall back to a clock-derived seed rather than
		// fail connection setup over it.
		log.Printf("fault: entropy read failed, falling back to clock seed: %v", err)
		binary.LittleEndian.PutUint64(seedBytes[:], uint64(time.Now().UnixNano()))
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))

	return &Injector{
		latency:    latency,
		loss:       loss,
		bandwidth:  bandwidth,
		rng:        mrand.New(mrand.NewSource(seed)),
		tokens:     float64(bandwidth.BurstSize),
		lastRefill: time.Now(),
	}
}

// ShouldDrop reports whether the chunk currently being processed for
// connectionID must be discarded. Synchronous: it never sleeps, but it
// advances the random stream and the burst state.
func (inj *Injector) ShouldDrop(connectionID string) bool {
	if inj.loss.IsDisabled() {
		return false
	}

	if inj.loss.BurstSize != nil {
		if inj.inBurst {
			inj.burstCounter++
			if inj.burstCounter >= *inj.loss.BurstSize {
				inj.inBurst = false
				inj.burstCounter = 0
			}
			return true
		}

		if inj.rng.Float64() <= inj.loss.BurstProbability {
			inj.inBurst = true
			inj.burstCounter = 1
			return true
		}
	}

	return inj.rng.Float64() <= inj.loss.Probability
}

// ApplyLatency suspends the caller for the configured delay, if the
// latency policy is enabled and its probability gate passes.
func (inj *Injector) ApplyLatency(connectionID string) {
	if inj.latency.IsDisabled() {
		return
	}

	if inj.latency.Probability < 1.0 {
		if inj.rng.Float64() > inj.latency.Probability {
			return
		}
	}

	delayMS := inj.latency.FixedMS
	if inj.latency.RandomRange != nil {
		min, max := inj.latency.RandomRange[0], inj.latency.RandomRange[1]
		delayMS += min + uint64(inj.rng.Int63n(int64(max-min+1)))
	}

	if delayMS > 0 {
		time.Sleep(time.Duration(delayMS) * time.Millisecond)
	}
}

// ApplyThrottle suspends the caller long enough to keep the long-run
// average rate at the configured bytes/sec, allowing the token bucket
// to go into debt for chunks larger than its capacity.
func (inj *Injector) ApplyThrottle(nBytes int, connectionID string) {
	if inj.bandwidth.IsDisabled() {
		return
	}
	rate := float64(inj.bandwidth.LimitBytesPerSec)
	if rate <= 0 {
		return
	}
	cap := float64(inj.bandwidth.BurstSize)

	now := time.Now()
	elapsed := now.Sub(inj.lastRefill).Seconds()
	inj.tokens = min(inj.tokens+elapsed*rate, cap)
	inj.lastRefill = now

	deficit := float64(nBytes) - inj.tokens
	if deficit > 0 {
		delayMS := int64((deficit / rate) * 1000)
		if delayMS > 0 {
			time.Sleep(time.Duration(delayMS) * time.Millisecond)
			inj.lastRefill = time.Now()
		}
	}

	inj.tokens -= float64(nBytes)
}
