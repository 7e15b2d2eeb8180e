// Package join correlates commitment event streams with each other and with
// settlement-chain data. All functions are pure.
package join

import (
	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

// Commitments joins the three commitment streams on commitment index.
//
// Encrypted-stored events drive the join; a commitment missing from any stream
// is dropped. Within a stream a repeated index keeps its last occurrence, so
// the result holds at most one record per index, in first-seen encrypted order.
func Commitments(
	stored []domain.StoredEvent,
	encrypted []domain.EncryptedStoredEvent,
	processed []domain.ProcessedEvent,
) []domain.CommitmentEvent {
	storedByIndex := make(map[string]domain.StoredEvent, len(stored))
	for _, s := range stored {
		storedByIndex[domain.NormalizeKey(s.CommitmentIndex)] = s
	}
	slashed := make(map[string]bool, len(processed))
	for _, p := range processed {
		slashed[domain.NormalizeKey(p.CommitmentIndex)] = p.IsSlash
	}

	encByIndex := make(map[string]domain.EncryptedStoredEvent, len(encrypted))
	order := make([]string, 0, len(encrypted))
	for _, e := range encrypted {
		key := domain.NormalizeKey(e.CommitmentIndex)
		if _, seen := encByIndex[key]; !seen {
			order = append(order, key)
		}
		encByIndex[key] = e
	}

	out := make([]domain.CommitmentEvent, 0, len(order))
	for _, key := range order {
		s, ok := storedByIndex[key]
		if !ok {
			continue
		}
		isSlash, ok := slashed[key]
		if !ok {
			continue
		}
		e := encByIndex[key]

		out = append(out, domain.CommitmentEvent{
			CommitmentIndex:       key,
			BlockNumber:           e.BlockNumber.Int64(),
			SettlementBlockNumber: s.SettlementBlockNumber.Int64(),
			TransactionHash:       domain.NormalizeHash(s.TxnHash),
			BidAmount:             s.Bid.Big(),
			IsSlashed:             isSlash,
			DecayStartTimestamp:   s.DecayStartTimestamp.Int64(),
			DecayEndTimestamp:     s.DecayEndTimestamp.Int64(),
			DispatchTimestamp:     e.DispatchTimestamp.Int64(),
			BidderAddress:         domain.NormalizeAddress(s.Bidder),
			CommitterAddress:      domain.NormalizeAddress(e.Committer),
			CommitmentHash:        s.CommitmentHash,
			CommitmentDigest:      e.CommitmentDigest,
			CommitmentSignature:   e.CommitmentSignature,
			BidHash:               s.BidHash,
			BidSignature:          s.BidSignature,
			SharedSecretKey:       s.SharedSecretKey,
			RevertingTxHashes:     s.RevertingTxHashes,
		})
	}
	return out
}

// TransactionHashes returns the distinct settlement hashes referenced by commitments.
func TransactionHashes(commitments []domain.CommitmentEvent) []string {
	seen := make(map[string]struct{}, len(commitments))
	hashes := make([]string, 0, len(commitments))
	for _, c := range commitments {
		if c.TransactionHash == "" {
			continue
		}
		if _, ok := seen[c.TransactionHash]; ok {
			continue
		}
		seen[c.TransactionHash] = struct{}{}
		hashes = append(hashes, c.TransactionHash)
	}
	return hashes
}
