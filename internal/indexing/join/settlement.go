package join

import (
	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

// Settlement left-joins commitments to settlement transactions on hash.
// Unmatched commitments keep nil settlement fields. BlockDiff is the
// inclusion block minus the block the commitment targeted.
func Settlement(commitments []domain.CommitmentEvent, txs []domain.SettlementTransaction) []domain.CommitmentEvent {
	byHash := make(map[string]domain.SettlementTransaction, len(txs))
	for _, tx := range txs {
		byHash[domain.NormalizeHash(tx.Hash)] = tx
	}

	out := make([]domain.CommitmentEvent, len(commitments))
	for i, c := range commitments {
		c.Settlement = nil
		c.BlockDiff = nil
		if tx, ok := byHash[domain.NormalizeHash(c.TransactionHash)]; ok {
			tx.Hash = domain.NormalizeHash(tx.Hash)
			diff := tx.BlockNumber.Int64() - c.SettlementBlockNumber
			c.Settlement = &tx
			c.BlockDiff = &diff
		}
		out[i] = c
	}
	return out
}
