package optypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxAttempt is one signed transaction sent for an EthOperation.
type TxAttempt struct {
	Hash          common.Hash
	GasPrice      *big.Int
	DeadlineBlock uint64
}

// EthOperation tracks the lifecycle of one aggregated operation on the base chain. All attempts
// share the nonce; each replacement uses a gas price at least as high as the one before.
type EthOperation struct {
	ID                int64
	ActionType        AggregatedActionType
	AggregatedOpID    *int64
	Op                *AggregatedOperation
	Nonce             uint64
	LastDeadlineBlock uint64
	LastUsedGasPrice  *big.Int
	EncodedTxData     []byte
	Attempts          []TxAttempt
	Confirmed         bool
	FinalHash         *common.Hash
}

// IsBroadcast reports whether at least one transaction was handed to the base chain.
func (op *EthOperation) IsBroadcast() bool {
	return len(op.Attempts) > 0
}

func (op *EthOperation) TxHashes() []common.Hash {
	hashes := make([]common.Hash, len(op.Attempts))
	for i, attempt := range op.Attempts {
		hashes[i] = attempt.Hash
	}
	return hashes
}

// IsStuck reports whether the current attempt passed its deadline block.
func (op *EthOperation) IsStuck(currentBlock uint64) bool {
	return currentBlock > op.LastDeadlineBlock
}

// QueuedOperation is an aggregated operation not bound to any eth operation yet.
type QueuedOperation struct {
	ID int64
	Op *AggregatedOperation
}

// InsertedOperationResponse is returned when a new eth operation was saved.
type InsertedOperationResponse struct {
	ID    int64
	Nonce uint64
}

// ETHStats are counters derived from the saved eth operations.
type ETHStats struct {
	SavedOperations uint64
	CommitOps       uint64
	ProofOps        uint64
	ExecuteOps      uint64

	// highest block already handed to the base chain per action
	LastCommittedBlock uint64
	LastVerifiedBlock  uint64
	LastExecutedBlock  uint64
}
