package decay

import (
	"errors"
	"math/big"
	"testing"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name                         string
		bid                          *big.Int
		start, end, dispatch         int64
		wantRange, wantElapsed       int64
		wantLatency                  int64
		wantMult, wantBid, wantDecay float64
	}{
		{
			name: "halfway", bid: eth(2), start: 1000, end: 2000, dispatch: 1500,
			wantRange: 1000, wantElapsed: 500, wantLatency: 500,
			wantMult: 0.5, wantBid: 2.0, wantDecay: 1.0,
		},
		{
			name: "late dispatch clamps to zero", bid: eth(2), start: 1000, end: 2000, dispatch: 2500,
			wantRange: 1000, wantElapsed: -500, wantLatency: 1500,
			wantMult: 0, wantBid: 2.0, wantDecay: 0,
		},
		{
			name: "dispatch at decay start", bid: eth(3), start: 1000, end: 2000, dispatch: 1000,
			wantRange: 1000, wantElapsed: 1000, wantLatency: 0,
			wantMult: 1, wantBid: 3.0, wantDecay: 3.0,
		},
		{
			name: "dispatch before decay start is not capped", bid: eth(2), start: 1000, end: 2000, dispatch: 500,
			wantRange: 1000, wantElapsed: 1500, wantLatency: -500,
			wantMult: 1.5, wantBid: 2.0, wantDecay: 3.0,
		},
		{
			name: "dispatch at decay end", bid: eth(2), start: 1000, end: 2000, dispatch: 2000,
			wantRange: 1000, wantElapsed: 0, wantLatency: 1000,
			wantMult: 0, wantBid: 2.0, wantDecay: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Compute(tt.bid, tt.start, tt.end, tt.dispatch)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if v.DecayRange != tt.wantRange || v.ElapsedFromEnd != tt.wantElapsed || v.BidLatency != tt.wantLatency {
				t.Errorf("range/elapsed/latency = %d/%d/%d, want %d/%d/%d",
					v.DecayRange, v.ElapsedFromEnd, v.BidLatency, tt.wantRange, tt.wantElapsed, tt.wantLatency)
			}
			if v.Multiplier != tt.wantMult {
				t.Errorf("Multiplier = %v, want %v", v.Multiplier, tt.wantMult)
			}
			if v.BidEth != tt.wantBid {
				t.Errorf("BidEth = %v, want %v", v.BidEth, tt.wantBid)
			}
			if v.DecayedBidEth != tt.wantDecay {
				t.Errorf("DecayedBidEth = %v, want %v", v.DecayedBidEth, tt.wantDecay)
			}
		})
	}
}

func TestComputeLateDispatchIgnoresBid(t *testing.T) {
	for _, bid := range []*big.Int{big.NewInt(1), eth(1), eth(1_000_000)} {
		v, err := Compute(bid, 0, 100, 101)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if v.DecayedBidEth != 0 {
			t.Errorf("bid %s: DecayedBidEth = %v, want 0", bid, v.DecayedBidEth)
		}
	}
}

func TestComputeDegenerateWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end int64
		wantErr    error
	}{
		{"zero width", 1000, 1000, ErrZeroDecayWindow},
		{"inverted", 2000, 1000, ErrInvertedDecayWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Compute(eth(2), tt.start, tt.end, 900)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if v.Multiplier != 0 || v.DecayedBidEth != 0 {
				t.Errorf("degenerate window not fully decayed: %+v", v)
			}
			if v.BidEth != 2.0 {
				t.Errorf("BidEth = %v, want 2", v.BidEth)
			}
			if v.BidLatency != 900-tt.start {
				t.Errorf("BidLatency = %d", v.BidLatency)
			}
		})
	}
}

func TestApply(t *testing.T) {
	c := &domain.CommitmentEvent{
		BidAmount:           eth(2),
		DecayStartTimestamp: 1000,
		DecayEndTimestamp:   2000,
		DispatchTimestamp:   1500,
	}
	if err := Apply(c); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.DecayMultiplier != 0.5 || c.DecayedBidEth != 1.0 || c.BidEth != 2.0 {
		t.Errorf("unexpected valuation: mult=%v decayed=%v bid=%v", c.DecayMultiplier, c.DecayedBidEth, c.BidEth)
	}

	c.DecayEndTimestamp = c.DecayStartTimestamp
	if err := Apply(c); !errors.Is(err, ErrZeroDecayWindow) {
		t.Fatalf("Apply zero window err = %v", err)
	}
	if c.DecayedBidEth != 0 {
		t.Errorf("DecayedBidEth = %v after zero window", c.DecayedBidEth)
	}
}

func TestScaleWei(t *testing.T) {
	if got := ScaleWei(nil); got != 0 {
		t.Errorf("ScaleWei(nil) = %v", got)
	}
	if got := ScaleWei(big.NewInt(500_000_000_000_000_000)); got != 0.5 {
		t.Errorf("ScaleWei(0.5 eth) = %v", got)
	}
}
