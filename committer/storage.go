package committer

import (
	"context"

	"github.com/ethpandaops/zkoperator/optypes"
)

// BlockLedger is the read-only view over sealed blocks and their proofs. Missing entries are returned
// as nil without error.
type BlockLedger interface {
	// GetLastCommittedBlock returns the number of the highest sealed block.
	GetLastCommittedBlock(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*optypes.Block, error)
	GetBlockProof(ctx context.Context, number uint64) (*optypes.BlockProof, error)
	GetAggregatedProof(ctx context.Context, firstBlock uint64, lastBlock uint64) (*optypes.AggregatedProof, error)
}

// OperationStore is the append-only log of aggregated operations.
type OperationStore interface {
	StoreAggregatedAction(ctx context.Context, op *optypes.AggregatedOperation) (int64, error)
	// GetLastAffectedBlock returns the last block covered by any operation of the type, 0 if none.
	GetLastAffectedBlock(ctx context.Context, actionType optypes.AggregatedActionType) (uint64, error)
	// GetAggregatedOpThatAffectsBlock returns the operation of the type covering blockNumber, or a nil operation.
	GetAggregatedOpThatAffectsBlock(ctx context.Context, actionType optypes.AggregatedActionType, blockNumber uint64) (int64, *optypes.AggregatedOperation, error)
}
