package domain

import "math/big"

// CommitmentEvent is one pre-confirmation commitment after all three
// source events have been joined.
type CommitmentEvent struct {
	CommitmentIndex       string
	BlockNumber           int64
	SettlementBlockNumber int64
	TransactionHash       string

	BidAmount *big.Int
	IsSlashed bool

	DecayStartTimestamp int64
	DecayEndTimestamp   int64
	DispatchTimestamp   int64

	BidderAddress    string
	CommitterAddress string

	CommitmentHash      string
	CommitmentDigest    string
	CommitmentSignature string
	BidHash             string
	BidSignature        string
	SharedSecretKey     string
	RevertingTxHashes   string

	// Filled by the decay model.
	DecayRange      int64
	ElapsedFromEnd  int64
	BidLatency      int64
	DecayMultiplier float64
	BidEth          float64
	DecayedBidEth   float64

	// Nil until joined with the settlement chain.
	Settlement *SettlementTransaction
	BlockDiff  *int64
}

// BlockCommitmentTotals aggregates commitments targeting one execution block.
type BlockCommitmentTotals struct {
	SettlementBlockNumber int64
	Commitments           int
	TotalBidEth           float64
	TotalDecayedBidEth    float64
}
