package domain

// RelayPayload is a payload a relay reports as delivered to a proposer.
type RelayPayload struct {
	Relay                string
	Slot                 int64
	BlockNumber          int64
	BlockHash            string
	BuilderPubkey        string
	ProposerPubkey       string
	ProposerFeeRecipient string
	Value                Wei
	GasUsed              int64
	GasLimit             int64
	NumTx                int64
}

// BuilderPayload is one execution block annotated with relay delivery and
// pre-confirmation data. Relay is nil when the block was built locally.
type BuilderPayload struct {
	BlockNumber   int64
	BlockHash     string
	Timestamp     int64
	BaseFeePerGas int64
	GasUsed       int64
	GasLimit      int64
	ExtraData     string
	Miner         string

	Relay                *string
	Slot                 *int64
	BuilderPubkey        *string
	ProposerPubkey       *string
	ProposerFeeRecipient *string
	ValueEth             *float64
	NumTx                *int64

	HadPreconf         bool
	Commitments        int
	TotalBidEth        *float64
	TotalDecayedBidEth *float64
}
