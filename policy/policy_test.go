package policy

import "testing"

func TestLatencyPolicyIsDisabled(t *testing.T) {
	cases := []struct {
		name     string
		enabled  bool
		fixedMS  uint64
		rr       *[2]uint64
		disabled bool
	}{
		{"flag off", false, 100, nil, true},
		{"flag on but zero effect", true, 0, nil, true},
		{"flag on with fixed delay", true, 100, nil, false},
		{"flag on with only random range", true, 0, &[2]uint64{50, 200}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewLatencyPolicy(tc.enabled, tc.fixedMS, tc.rr, 1.0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := p.IsDisabled(); got != tc.disabled {
				t.Errorf("IsDisabled() = %v, want %v", got, tc.disabled)
			}
		})
	}
}

func TestLatencyPolicyInvalidRange(t *testing.T) {
	_, err := NewLatencyPolicy(true, 0, &[2]uint64{500, 100}, 1.0)
	if err == nil {
		t.Fatal("expected error for min > max range, got nil")
	}
}

func TestLatencyPolicyProbabilityClamping(t *testing.T) {
	p, err := NewLatencyPolicy(true, 100, nil, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Probability != 1.0 {
		t.Errorf("Probability = %v, want 1.0", p.Probability)
	}

	p, err = NewLatencyPolicy(true, 100, nil, -0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Probability != 0.0 {
		t.Errorf("Probability = %v, want 0.0", p.Probability)
	}
}

func TestLossPolicyIsDisabled(t *testing.T) {
	p, _ := NewLossPolicy(false, 0.5, nil, 0)
	if !p.IsDisabled() {
		t.Error("expected disabled when flag is off")
	}

	p, _ = NewLossPolicy(true, 0, nil, 0)
	if !p.IsDisabled() {
		t.Error("expected disabled when probability is zero")
	}

	p, _ = NewLossPolicy(true, 0.3, nil, 0)
	if p.IsDisabled() {
		t.Error("expected enabled when probability > 0")
	}
}

func TestLossPolicyRejectsZeroBurstSize(t *testing.T) {
	zero := uint32(0)
	_, err := NewLossPolicy(true, 0, &zero, 1.0)
	if err == nil {
		t.Fatal("expected error for burst size 0, got nil")
	}
}

func TestLossPolicyProbabilityClamping(t *testing.T) {
	p, err := NewLossPolicy(true, 2.0, nil, -1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Probability != 1.0 {
		t.Errorf("Probability = %v, want 1.0", p.Probability)
	}
	if p.BurstProbability != 0.0 {
		t.Errorf("BurstProbability = %v, want 0.0", p.BurstProbability)
	}
}

func TestBandwidthPolicyIsDisabled(t *testing.T) {
	p := NewBandwidthPolicy(false, 1024, 8192)
	if !p.IsDisabled() {
		t.Error("expected disabled when flag is off")
	}

	p = NewBandwidthPolicy(true, 0, 8192)
	if !p.IsDisabled() {
		t.Error("expected disabled when limit is zero")
	}

	p = NewBandwidthPolicy(true, 1024, 8192)
	if p.IsDisabled() {
		t.Error("expected enabled when limit > 0")
	}
}

func TestBandwidthPolicyDefaultBurstSize(t *testing.T) {
	p := NewBandwidthPolicy(true, 1024, 0)
	if p.BurstSize != 8192 {
		t.Errorf("BurstSize = %d, want default 8192", p.BurstSize)
	}
}
