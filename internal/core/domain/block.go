package domain

// ExecutionBlock is a block header from the settlement chain.
type ExecutionBlock struct {
	Number        Quantity `json:"number"`
	Timestamp     Quantity `json:"timestamp"`
	Hash          string   `json:"hash"`
	BaseFeePerGas Wei      `json:"base_fee_per_gas"`
	GasUsed       Quantity `json:"gas_used"`
	GasLimit      Quantity `json:"gas_limit"`
	ExtraData     string   `json:"extra_data"`
	Miner         string   `json:"miner"`
}
