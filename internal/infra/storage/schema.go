package storage

// ColumnType is the logical type of a column. Backends map it to native types.
type ColumnType int

const (
	Int64 ColumnType = iota
	Float64
	Text
	Bool
)

// Column is a nullable table column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes a persisted table.
type Schema struct {
	Table    string
	Columns  []Column
	Progress string
	MergeKey string
}

// Index returns the position of name in the schema, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name is a column of s.
func (s Schema) HasColumn(name string) bool {
	return s.Index(name) >= 0
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

var Commitments = Schema{
	Table:    "commitments",
	Progress: "block_number",
	MergeKey: "commitment_index",
	Columns: []Column{
		{"commitment_index", Text},
		{"block_number", Int64},
		{"settlement_block_number", Int64},
		{"transaction_hash", Text},
		{"bid_amount", Text},
		{"bid_eth", Float64},
		{"is_slashed", Bool},
		{"decay_start_timestamp", Int64},
		{"decay_end_timestamp", Int64},
		{"dispatch_timestamp", Int64},
		{"decay_range", Int64},
		{"elapsed_from_end", Int64},
		{"bid_latency", Int64},
		{"decay_multiplier", Float64},
		{"decayed_bid_eth", Float64},
		{"bidder_address", Text},
		{"committer_address", Text},
		{"commitment_hash", Text},
		{"commitment_digest", Text},
		{"commitment_signature", Text},
		{"bid_hash", Text},
		{"bid_signature", Text},
		{"shared_secret_key", Text},
		{"reverting_tx_hashes", Text},
		{"settlement_tx_block_number", Int64},
		{"settlement_timestamp", Int64},
		{"settlement_status", Int64},
		{"block_diff", Int64},
	},
}

var SettlementTxs = Schema{
	Table:    "l1_txs",
	Progress: "block_number",
	MergeKey: "transaction_hash",
	Columns: []Column{
		{"transaction_hash", Text},
		{"block_number", Int64},
		{"timestamp", Int64},
		{"from_address", Text},
		{"to_address", Text},
		{"gas_used", Int64},
		{"effective_gas_price", Text},
		{"status", Int64},
	},
}

var BuilderBlocks = Schema{
	Table:    "mev_boost_blocks",
	Progress: "block_number",
	MergeKey: "block_number",
	Columns: []Column{
		{"block_number", Int64},
		{"block_hash", Text},
		{"block_timestamp", Int64},
		{"base_fee_per_gas", Int64},
		{"gas_used", Int64},
		{"gas_limit", Int64},
		{"extra_data", Text},
		{"miner", Text},
		{"relay", Text},
		{"slot", Int64},
		{"builder_pubkey", Text},
		{"proposer_pubkey", Text},
		{"proposer_fee_recipient", Text},
		{"value_eth", Float64},
		{"num_tx", Int64},
		{"had_preconf", Bool},
		{"commitments", Int64},
		{"total_bid_eth", Float64},
		{"total_decayed_bid_eth", Float64},
	},
}

// Tables lists every ingested table.
var Tables = []Schema{Commitments, SettlementTxs, BuilderBlocks}

// SchemaByName looks up one of Tables.
func SchemaByName(table string) (Schema, bool) {
	for _, s := range Tables {
		if s.Table == table {
			return s, true
		}
	}
	return Schema{}, false
}
