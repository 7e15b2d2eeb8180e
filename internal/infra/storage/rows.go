package storage

import (
	"fmt"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

// Row holds one value per schema column, in column order. Values are int64,
// float64, string, bool or nil.
type Row []any

// KeyString renders a merge key value for in-memory comparison.
func KeyString(v any) string {
	return fmt.Sprint(v)
}

// Dedupe keeps the last row for each merge key, placed where that key last
// appeared.
func Dedupe(rows []Row, keyIdx int) ([]Row, error) {
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		if keyIdx >= len(r) || r[keyIdx] == nil {
			return nil, ErrNullKey
		}
		last[KeyString(r[keyIdx])] = i
	}
	if len(last) == len(rows) {
		return rows, nil
	}

	out := make([]Row, 0, len(last))
	for i, r := range rows {
		if last[KeyString(r[keyIdx])] == i {
			out = append(out, r)
		}
	}
	return out, nil
}

// CommitmentRows converts commitments to rows of the Commitments schema.
func CommitmentRows(commitments []domain.CommitmentEvent) []Row {
	rows := make([]Row, 0, len(commitments))
	for _, c := range commitments {
		bid := "0"
		if c.BidAmount != nil {
			bid = c.BidAmount.String()
		}
		var txBlock, txTime, txStatus any
		if c.Settlement != nil {
			txBlock = c.Settlement.BlockNumber.Int64()
			txTime = c.Settlement.Timestamp.Int64()
			txStatus = c.Settlement.Status.Int64()
		}
		rows = append(rows, Row{
			c.CommitmentIndex,
			c.BlockNumber,
			c.SettlementBlockNumber,
			c.TransactionHash,
			bid,
			c.BidEth,
			c.IsSlashed,
			c.DecayStartTimestamp,
			c.DecayEndTimestamp,
			c.DispatchTimestamp,
			c.DecayRange,
			c.ElapsedFromEnd,
			c.BidLatency,
			c.DecayMultiplier,
			c.DecayedBidEth,
			c.BidderAddress,
			c.CommitterAddress,
			c.CommitmentHash,
			c.CommitmentDigest,
			c.CommitmentSignature,
			c.BidHash,
			c.BidSignature,
			c.SharedSecretKey,
			c.RevertingTxHashes,
			txBlock,
			txTime,
			txStatus,
			nullable(c.BlockDiff),
		})
	}
	return rows
}

// SettlementTxRows converts settlement transactions to rows of the SettlementTxs schema.
func SettlementTxRows(txs []domain.SettlementTransaction) []Row {
	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, Row{
			domain.NormalizeHash(tx.Hash),
			tx.BlockNumber.Int64(),
			tx.Timestamp.Int64(),
			domain.NormalizeAddress(tx.From),
			domain.NormalizeAddress(tx.To),
			tx.GasUsed.Int64(),
			tx.EffectiveGasPrice.String(),
			tx.Status.Int64(),
		})
	}
	return rows
}

// BuilderPayloadRows converts payloads to rows of the BuilderBlocks schema.
func BuilderPayloadRows(payloads []domain.BuilderPayload) []Row {
	rows := make([]Row, 0, len(payloads))
	for _, p := range payloads {
		rows = append(rows, Row{
			p.BlockNumber,
			p.BlockHash,
			p.Timestamp,
			p.BaseFeePerGas,
			p.GasUsed,
			p.GasLimit,
			p.ExtraData,
			p.Miner,
			nullable(p.Relay),
			nullable(p.Slot),
			nullable(p.BuilderPubkey),
			nullable(p.ProposerPubkey),
			nullable(p.ProposerFeeRecipient),
			nullable(p.ValueEth),
			nullable(p.NumTx),
			p.HadPreconf,
			int64(p.Commitments),
			nullable(p.TotalBidEth),
			nullable(p.TotalDecayedBidEth),
		})
	}
	return rows
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
