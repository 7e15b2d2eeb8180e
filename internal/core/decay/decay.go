// Package decay values pre-confirmation bids against their decay window.
package decay

import (
	"errors"
	"math/big"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

var (
	// ErrZeroDecayWindow is returned when decay start equals decay end.
	ErrZeroDecayWindow = errors.New("decay window has zero width")
	// ErrInvertedDecayWindow is returned when decay end precedes decay start.
	ErrInvertedDecayWindow = errors.New("decay window end precedes start")
)

var weiPerEth = new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Valuation is the result of applying the decay model to one bid.
type Valuation struct {
	DecayRange     int64
	ElapsedFromEnd int64
	BidLatency     int64
	Multiplier     float64
	BidEth         float64
	DecayedBidEth  float64
}

// Compute values bid against the window [start, end] given the dispatch time.
//
// The multiplier is (end - dispatch) / (end - start), floored at zero and not
// capped above. A degenerate window yields a fully decayed valuation together
// with ErrZeroDecayWindow or ErrInvertedDecayWindow; the diagnostic fields are
// still populated.
func Compute(bid *big.Int, start, end, dispatch int64) (Valuation, error) {
	v := Valuation{
		DecayRange:     end - start,
		ElapsedFromEnd: end - dispatch,
		BidLatency:     dispatch - start,
		BidEth:         ScaleWei(bid),
	}

	switch {
	case v.DecayRange == 0:
		return v, ErrZeroDecayWindow
	case v.DecayRange < 0:
		return v, ErrInvertedDecayWindow
	}

	if v.ElapsedFromEnd <= 0 {
		return v, nil
	}

	mult := new(big.Rat).SetFrac(big.NewInt(v.ElapsedFromEnd), big.NewInt(v.DecayRange))
	v.Multiplier, _ = mult.Float64()

	if bid != nil {
		decayed := new(big.Rat).Mul(mult, new(big.Rat).SetInt(bid))
		decayed.Quo(decayed, weiPerEth)
		v.DecayedBidEth, _ = decayed.Float64()
	}
	return v, nil
}

// Apply computes the valuation of c and stores it on the record.
func Apply(c *domain.CommitmentEvent) error {
	v, err := Compute(c.BidAmount, c.DecayStartTimestamp, c.DecayEndTimestamp, c.DispatchTimestamp)
	c.DecayRange = v.DecayRange
	c.ElapsedFromEnd = v.ElapsedFromEnd
	c.BidLatency = v.BidLatency
	c.DecayMultiplier = v.Multiplier
	c.BidEth = v.BidEth
	c.DecayedBidEth = v.DecayedBidEth
	return err
}

// ScaleWei converts a wei amount to ether. A nil amount is zero.
func ScaleWei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Rat).Quo(new(big.Rat).SetInt(wei), weiPerEth).Float64()
	return f
}
