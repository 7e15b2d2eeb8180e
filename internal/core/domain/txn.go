package domain

// SettlementTransaction is an execution-layer transaction referenced by a commitment.
type SettlementTransaction struct {
	Hash              string   `json:"hash"`
	BlockNumber       Quantity `json:"block_number"`
	Timestamp         Quantity `json:"timestamp"`
	From              string   `json:"from"`
	To                string   `json:"to"`
	GasUsed           Quantity `json:"gas_used"`
	EffectiveGasPrice Wei      `json:"effective_gas_price"`
	Status            Quantity `json:"status"`
}
