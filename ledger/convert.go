package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/zkoperator/dbtypes"
	"github.com/ethpandaops/zkoperator/optypes"
)

// BlockToDb splits a block into its row and account update rows.
func BlockToDb(block *optypes.Block) (*dbtypes.Block, []*dbtypes.BlockAccountUpdate, error) {
	operations := block.Operations
	if operations == nil {
		operations = []optypes.ExecutedOperation{}
	}
	operationsJson, err := json.Marshal(operations)
	if err != nil {
		return nil, nil, fmt.Errorf("failed encoding operations of block %v: %w", block.Number, err)
	}

	dbBlock := &dbtypes.Block{
		Number:         block.Number,
		Timestamp:      block.Timestamp,
		ChunksSize:     block.ChunksSize,
		FeeAccount:     block.FeeAccount,
		CommitGasLimit: block.CommitGasLimit,
		VerifyGasLimit: block.VerifyGasLimit,
		NewStateRoot:   block.NewStateRoot.Bytes(),
		Commitment:     block.Commitment.Bytes(),
		Operations:     string(operationsJson),
	}

	updates := make([]*dbtypes.BlockAccountUpdate, len(block.AccountUpdates))
	for i, update := range block.AccountUpdates {
		balance := "0"
		if update.Balance != nil {
			balance = update.Balance.String()
		}
		updates[i] = &dbtypes.BlockAccountUpdate{
			BlockNumber: block.Number,
			AccountID:   update.AccountID,
			Nonce:       update.Nonce,
			Balance:     balance,
		}
	}

	return dbBlock, updates, nil
}

func BlockFromDb(dbBlock *dbtypes.Block, updates []*dbtypes.BlockAccountUpdate) (*optypes.Block, error) {
	block := &optypes.Block{
		Number:         dbBlock.Number,
		Timestamp:      dbBlock.Timestamp,
		ChunksSize:     dbBlock.ChunksSize,
		FeeAccount:     dbBlock.FeeAccount,
		CommitGasLimit: dbBlock.CommitGasLimit,
		VerifyGasLimit: dbBlock.VerifyGasLimit,
		NewStateRoot:   common.BytesToHash(dbBlock.NewStateRoot),
		Commitment:     common.BytesToHash(dbBlock.Commitment),
	}

	if err := json.Unmarshal([]byte(dbBlock.Operations), &block.Operations); err != nil {
		return nil, fmt.Errorf("failed decoding operations of block %v: %w", dbBlock.Number, err)
	}

	if len(updates) > 0 {
		block.AccountUpdates = make([]optypes.AccountUpdate, len(updates))
		for i, update := range updates {
			balance, ok := new(big.Int).SetString(update.Balance, 10)
			if !ok {
				return nil, fmt.Errorf("invalid balance %q for account %v in block %v", update.Balance, update.AccountID, dbBlock.Number)
			}
			block.AccountUpdates[i] = optypes.AccountUpdate{
				AccountID: update.AccountID,
				Nonce:     update.Nonce,
				Balance:   balance,
			}
		}
	}

	return block, nil
}

// AggregatedOperationToDb encodes the variant payload next to its discriminant and range.
func AggregatedOperationToDb(op *optypes.AggregatedOperation, createdAt time.Time) (*dbtypes.AggregateOperation, error) {
	payload, err := op.EncodePayload()
	if err != nil {
		return nil, err
	}

	first, last := op.BlockRange()
	return &dbtypes.AggregateOperation{
		ActionType: op.ActionType.String(),
		Arguments:  string(payload),
		FromBlock:  first,
		ToBlock:    last,
		CreatedAt:  uint64(createdAt.Unix()),
	}, nil
}

// AggregatedOperationFromDb decodes a persisted operation. A payload that does not match its range is corrupt.
func AggregatedOperationFromDb(dbOp *dbtypes.AggregateOperation) (*optypes.AggregatedOperation, error) {
	op, err := optypes.DecodeAggregatedOperation(dbOp.ActionType, []byte(dbOp.Arguments))
	if err != nil {
		return nil, fmt.Errorf("aggregated operation %v: %w", dbOp.ID, err)
	}

	first, last := op.BlockRange()
	if first != dbOp.FromBlock || last != dbOp.ToBlock {
		return nil, fmt.Errorf("%w: aggregated operation %v covers [%v,%v] but is indexed as [%v,%v]", optypes.ErrCorruptOperation, dbOp.ID, first, last, dbOp.FromBlock, dbOp.ToBlock)
	}
	return op, nil
}
