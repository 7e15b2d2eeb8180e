package domain

// StoredEvent is an opened commitment as reported by the indexing service.
type StoredEvent struct {
	CommitmentIndex       string   `json:"commitmentIndex"`
	BlockNumber           Quantity `json:"block_number"`
	SettlementBlockNumber Quantity `json:"blockNumber"`
	TxnHash               string   `json:"txnHash"`
	Bid                   Wei      `json:"bid"`
	Bidder                string   `json:"bidder"`
	DecayStartTimestamp   Quantity `json:"decayStartTimeStamp"`
	DecayEndTimestamp     Quantity `json:"decayEndTimeStamp"`
	CommitmentHash        string   `json:"commitmentHash"`
	RevertingTxHashes     string   `json:"revertingTxHashes"`
	BidHash               string   `json:"bidHash"`
	BidSignature          string   `json:"bidSignature"`
	SharedSecretKey       string   `json:"sharedSecretKey"`
}

// EncryptedStoredEvent is the unopened commitment stored before reveal.
type EncryptedStoredEvent struct {
	CommitmentIndex     string   `json:"commitmentIndex"`
	BlockNumber         Quantity `json:"block_number"`
	Committer           string   `json:"commiter"`
	CommitmentDigest    string   `json:"commitmentDigest"`
	CommitmentSignature string   `json:"commitmentSignature"`
	DispatchTimestamp   Quantity `json:"dispatchTimestamp"`
}

// ProcessedEvent records the settlement outcome of a commitment.
type ProcessedEvent struct {
	CommitmentIndex string   `json:"commitmentIndex"`
	BlockNumber     Quantity `json:"block_number"`
	IsSlash         bool     `json:"isSlash"`
}
