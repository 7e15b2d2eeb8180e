package join

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vietddude/preconf-ingester/internal/core/decay"
	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

// BlockPayloads left-joins execution blocks to relay payloads on block number.
// A block no relay delivered keeps nil relay fields. Several relays reporting
// the same block collapse into one row listing every relay name.
func BlockPayloads(blocks []domain.ExecutionBlock, payloads []domain.RelayPayload) []domain.BuilderPayload {
	byBlock := make(map[int64][]domain.RelayPayload)
	for _, p := range payloads {
		byBlock[p.BlockNumber] = append(byBlock[p.BlockNumber], p)
	}

	seen := make(map[int64]struct{}, len(blocks))
	out := make([]domain.BuilderPayload, 0, len(blocks))
	for _, b := range blocks {
		num := b.Number.Int64()
		if _, dup := seen[num]; dup {
			continue
		}
		seen[num] = struct{}{}

		row := domain.BuilderPayload{
			BlockNumber:   num,
			BlockHash:     domain.NormalizeHash(b.Hash),
			Timestamp:     b.Timestamp.Int64(),
			BaseFeePerGas: b.BaseFeePerGas.Big().Int64(),
			GasUsed:       b.GasUsed.Int64(),
			GasLimit:      b.GasLimit.Int64(),
			ExtraData:     DecodeExtraData(b.ExtraData),
			Miner:         domain.NormalizeAddress(b.Miner),
		}

		if delivered := byBlock[num]; len(delivered) > 0 {
			first := delivered[0]
			relay := relayNames(delivered)
			value := decay.ScaleWei(first.Value.Big())
			slot, numTx := first.Slot, first.NumTx
			builder := strings.ToLower(first.BuilderPubkey)
			proposer := strings.ToLower(first.ProposerPubkey)
			feeRecipient := domain.NormalizeAddress(first.ProposerFeeRecipient)

			row.Relay = &relay
			row.Slot = &slot
			row.BuilderPubkey = &builder
			row.ProposerPubkey = &proposer
			row.ProposerFeeRecipient = &feeRecipient
			row.ValueEth = &value
			row.NumTx = &numTx
		}
		out = append(out, row)
	}
	return out
}

// BuilderPayloads left-joins payload rows to per-block commitment totals.
// HadPreconf is set exactly when totals exist for the block.
func BuilderPayloads(payloads []domain.BuilderPayload, totals map[int64]domain.BlockCommitmentTotals) []domain.BuilderPayload {
	out := make([]domain.BuilderPayload, len(payloads))
	for i, p := range payloads {
		p.HadPreconf = false
		p.Commitments = 0
		p.TotalBidEth = nil
		p.TotalDecayedBidEth = nil
		if t, ok := totals[p.BlockNumber]; ok {
			bid, decayed := t.TotalBidEth, t.TotalDecayedBidEth
			p.HadPreconf = true
			p.Commitments = t.Commitments
			p.TotalBidEth = &bid
			p.TotalDecayedBidEth = &decayed
		}
		out[i] = p
	}
	return out
}

// DecodeExtraData renders a block's hex extra data as display text.
// Runs of non-printable bytes become a single space; undecodable input is
// returned as-is.
func DecodeExtraData(extra string) string {
	if extra == "" {
		return ""
	}
	if !strings.HasPrefix(extra, "0x") && !strings.HasPrefix(extra, "0X") {
		extra = "0x" + extra
	}
	raw, err := hexutil.Decode(extra)
	if err != nil {
		return extra
	}

	var b strings.Builder
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		if r == utf8.RuneError || !unicode.IsPrint(r) {
			r = ' '
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func relayNames(payloads []domain.RelayPayload) string {
	set := make(map[string]struct{}, len(payloads))
	for _, p := range payloads {
		set[p.Relay] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
