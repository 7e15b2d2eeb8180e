package domain

// StreamKind tags one of the commitment event streams.
type StreamKind int

const (
	StreamStored StreamKind = iota
	StreamEncryptedStored
	StreamProcessed
)

func (k StreamKind) String() string {
	switch k {
	case StreamStored:
		return "stored"
	case StreamEncryptedStored:
		return "encrypted_stored"
	case StreamProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// Stream describes an upstream event query and the fields every row must carry.
type Stream struct {
	Kind    StreamKind
	Event   string
	Columns []string
}

var (
	StoredStream = Stream{
		Kind:  StreamStored,
		Event: "OpenedCommitmentStored",
		Columns: []string{
			"commitmentIndex", "block_number", "blockNumber", "txnHash", "bid", "bidder",
			"decayStartTimeStamp", "decayEndTimeStamp",
		},
	}
	EncryptedStoredStream = Stream{
		Kind:    StreamEncryptedStored,
		Event:   "UnopenedCommitmentStored",
		Columns: []string{"commitmentIndex", "block_number", "commiter", "dispatchTimestamp"},
	}
	ProcessedStream = Stream{
		Kind:    StreamProcessed,
		Event:   "CommitmentProcessed",
		Columns: []string{"commitmentIndex", "block_number", "isSlash"},
	}
)
