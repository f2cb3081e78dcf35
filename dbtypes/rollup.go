package dbtypes

type Block struct {
	Number         uint64 `db:"number"`
	Timestamp      uint64 `db:"timestamp"`
	ChunksSize     uint64 `db:"chunks_size"`
	FeeAccount     uint64 `db:"fee_account"`
	CommitGasLimit uint64 `db:"commit_gas_limit"`
	VerifyGasLimit uint64 `db:"verify_gas_limit"`
	NewStateRoot   []byte `db:"new_state_root"`
	Commitment     []byte `db:"commitment"`
	Operations     string `db:"operations"`
	Executed       bool   `db:"executed"`
}

type BlockAccountUpdate struct {
	BlockNumber uint64 `db:"block_number"`
	AccountID   uint64 `db:"account_id"`
	Nonce       uint64 `db:"nonce"`
	Balance     string `db:"balance"`
}

type Account struct {
	ID        uint64 `db:"id"`
	Nonce     uint64 `db:"nonce"`
	Balance   string `db:"balance"`
	LastBlock uint64 `db:"last_block"`
}

type BlockProof struct {
	BlockNumber uint64 `db:"block_number"`
	Proof       []byte `db:"proof"`
	CreatedAt   uint64 `db:"created_at"`
}

type AggregatedProof struct {
	FirstBlock uint64 `db:"first_block"`
	LastBlock  uint64 `db:"last_block"`
	Proof      []byte `db:"proof"`
	CreatedAt  uint64 `db:"created_at"`
}

type AggregateOperation struct {
	ID         int64  `db:"id"`
	ActionType string `db:"action_type"`
	Arguments  string `db:"arguments"`
	FromBlock  uint64 `db:"from_block"`
	ToBlock    uint64 `db:"to_block"`
	Confirmed  bool   `db:"confirmed"`
	CreatedAt  uint64 `db:"created_at"`
}

type EthOperation struct {
	ID                int64  `db:"id"`
	ActionType        string `db:"action_type"`
	AggregatedOpID    *int64 `db:"aggregated_op_id"`
	Nonce             uint64 `db:"nonce"`
	LastDeadlineBlock uint64 `db:"last_deadline_block"`
	LastUsedGasPrice  string `db:"last_used_gas_price"`
	TxData            []byte `db:"tx_data"`
	Confirmed         bool   `db:"confirmed"`
	FinalHash         []byte `db:"final_hash"`
	CreatedAt         uint64 `db:"created_at"`
}

type EthTxHash struct {
	ID            int64  `db:"id"`
	EthOpID       int64  `db:"eth_op_id"`
	TxHash        []byte `db:"tx_hash"`
	DeadlineBlock uint64 `db:"deadline_block"`
	GasPrice      string `db:"gas_price"`
	CreatedAt     uint64 `db:"created_at"`
}

type EthParameters struct {
	Nonce           uint64 `db:"nonce"`
	GasPriceLimit   string `db:"gas_price_limit"`
	AverageGasPrice string `db:"average_gas_price"`
}

type EthActionStats struct {
	ActionType string `db:"action_type"`
	OpCount    uint64 `db:"op_count"`
	LastBlock  uint64 `db:"last_block"`
}
