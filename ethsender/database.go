package ethsender

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/dbtypes"
	"github.com/ethpandaops/zkoperator/ledger"
	"github.com/ethpandaops/zkoperator/optypes"
)

var onchainActionTypes = []string{
	optypes.ActionCommitBlocks.String(),
	optypes.ActionPublishProofBlocksOnchain.String(),
	optypes.ActionExecuteBlocks.String(),
}

// Database implements DatabaseInterface on top of the sql store.
type Database struct{}

func NewDatabase() *Database {
	return &Database{}
}

func (d *Database) AcquireConnection(ctx context.Context) error {
	return db.Ping(ctx)
}

func (d *Database) RestoreState(ctx context.Context) (*RestoredState, error) {
	dbOps, err := db.GetUnconfirmedEthOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading unconfirmed eth operations: %w", err)
	}

	opIDs := make([]int64, len(dbOps))
	for i, dbOp := range dbOps {
		opIDs[i] = dbOp.ID
	}
	dbHashes, err := db.GetEthTxHashes(ctx, opIDs)
	if err != nil {
		return nil, fmt.Errorf("failed loading eth tx hashes: %w", err)
	}
	hashesByOp := map[int64][]*dbtypes.EthTxHash{}
	for _, hash := range dbHashes {
		hashesByOp[hash.EthOpID] = append(hashesByOp[hash.EthOpID], hash)
	}

	state := &RestoredState{
		Operations: make([]*optypes.EthOperation, 0, len(dbOps)),
	}
	for _, dbOp := range dbOps {
		op, err := d.loadEthOperation(ctx, dbOp, hashesByOp[dbOp.ID])
		if err != nil {
			return nil, err
		}
		state.Operations = append(state.Operations, op)
	}

	state.Unprocessed, err = d.LoadNewOperations(ctx, 0)
	if err != nil {
		return nil, err
	}

	return state, nil
}

func (d *Database) loadEthOperation(ctx context.Context, dbOp *dbtypes.EthOperation, hashes []*dbtypes.EthTxHash) (*optypes.EthOperation, error) {
	actionType, err := optypes.ParseAggregatedActionType(dbOp.ActionType)
	if err != nil {
		return nil, fmt.Errorf("%w: eth operation %v: %v", optypes.ErrCorruptOperation, dbOp.ID, err)
	}

	gasPrice, err := parseWei(dbOp.LastUsedGasPrice)
	if err != nil {
		return nil, fmt.Errorf("eth operation %v: %w", dbOp.ID, err)
	}

	op := &optypes.EthOperation{
		ID:                dbOp.ID,
		ActionType:        actionType,
		AggregatedOpID:    dbOp.AggregatedOpID,
		Nonce:             dbOp.Nonce,
		LastDeadlineBlock: dbOp.LastDeadlineBlock,
		LastUsedGasPrice:  gasPrice,
		EncodedTxData:     dbOp.TxData,
		Confirmed:         dbOp.Confirmed,
		Attempts:          make([]optypes.TxAttempt, 0, len(hashes)),
	}
	if len(dbOp.FinalHash) > 0 {
		finalHash := common.BytesToHash(dbOp.FinalHash)
		op.FinalHash = &finalHash
	}

	for _, hash := range hashes {
		attemptGasPrice, err := parseWei(hash.GasPrice)
		if err != nil {
			return nil, fmt.Errorf("eth operation %v attempt %v: %w", dbOp.ID, hash.ID, err)
		}
		op.Attempts = append(op.Attempts, optypes.TxAttempt{
			Hash:          common.BytesToHash(hash.TxHash),
			GasPrice:      attemptGasPrice,
			DeadlineBlock: hash.DeadlineBlock,
		})
	}

	if dbOp.AggregatedOpID != nil {
		dbAggOp, err := db.GetAggregateOperation(ctx, *dbOp.AggregatedOpID)
		if err != nil {
			return nil, fmt.Errorf("failed loading aggregated operation %v: %w", *dbOp.AggregatedOpID, err)
		}
		if dbAggOp == nil {
			return nil, fmt.Errorf("%w: eth operation %v references missing aggregated operation %v", optypes.ErrCorruptOperation, dbOp.ID, *dbOp.AggregatedOpID)
		}
		op.Op, err = ledger.AggregatedOperationFromDb(dbAggOp)
		if err != nil {
			return nil, err
		}
	}

	return op, nil
}

func (d *Database) LoadNewOperations(ctx context.Context, afterID int64) ([]*optypes.QueuedOperation, error) {
	dbOps, err := db.GetUnboundAggregateOperations(ctx, afterID, onchainActionTypes)
	if err != nil {
		return nil, fmt.Errorf("failed loading new aggregated operations: %w", err)
	}

	ops := make([]*optypes.QueuedOperation, 0, len(dbOps))
	for _, dbOp := range dbOps {
		op, err := ledger.AggregatedOperationFromDb(dbOp)
		if err != nil {
			return nil, err
		}
		ops = append(ops, &optypes.QueuedOperation{ID: dbOp.ID, Op: op})
	}
	return ops, nil
}

func (d *Database) SaveNewEthTx(ctx context.Context, opType optypes.AggregatedActionType, op *optypes.QueuedOperation, deadlineBlock uint64, gasPrice *big.Int, txData []byte) (*optypes.InsertedOperationResponse, error) {
	dbOp := &dbtypes.EthOperation{
		ActionType:        opType.String(),
		LastDeadlineBlock: deadlineBlock,
		LastUsedGasPrice:  gasPrice.String(),
		TxData:            txData,
		CreatedAt:         uint64(time.Now().Unix()),
	}
	if op != nil {
		aggOpID := op.ID
		dbOp.AggregatedOpID = &aggOpID
	}

	response := &optypes.InsertedOperationResponse{}
	err := db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		nonce, err := db.AllocateNonce(ctx, tx)
		if err != nil {
			return err
		}
		dbOp.Nonce = nonce

		id, err := db.InsertEthOperation(ctx, tx, dbOp)
		if err != nil {
			return err
		}

		response.ID = id
		response.Nonce = nonce
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed saving eth operation: %w", err)
	}
	return response, nil
}

func (d *Database) AddHashEntry(ctx context.Context, ethOpID int64, hash common.Hash) error {
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.InsertEthTxHash(ctx, tx, ethOpID, hash.Bytes(), uint64(time.Now().Unix()))
	})
}

func (d *Database) UpdateEthTx(ctx context.Context, ethOpID int64, newDeadlineBlock uint64, newGasPrice *big.Int) error {
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.UpdateEthOperationGas(ctx, tx, ethOpID, newDeadlineBlock, newGasPrice.String())
	})
}

func (d *Database) ConfirmOperation(ctx context.Context, hash common.Hash, op *optypes.EthOperation) error {
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		if op.Op != nil {
			if op.Op.ActionType == optypes.ActionExecuteBlocks {
				for _, block := range op.Op.Blocks() {
					if err := db.ApplyBlockAccountUpdates(ctx, tx, block.Number); err != nil {
						return err
					}
				}
			}

			first, last := op.Op.BlockRange()
			if err := db.ConfirmAggregateOperations(ctx, tx, op.Op.ActionType.String(), first, last); err != nil {
				return fmt.Errorf("failed confirming aggregated operations [%v,%v]: %w", first, last, err)
			}
		}

		return db.ConfirmEthOperation(ctx, tx, op.ID, hash.Bytes())
	})
}

func (d *Database) LoadStats(ctx context.Context) (*optypes.ETHStats, error) {
	savedOps, err := db.CountEthOperations(ctx)
	if err != nil {
		return nil, err
	}

	actionStats, err := db.GetEthActionStats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &optypes.ETHStats{
		SavedOperations: savedOps,
	}
	for _, actionStat := range actionStats {
		switch optypes.AggregatedActionType(actionStat.ActionType) {
		case optypes.ActionCommitBlocks:
			stats.CommitOps = actionStat.OpCount
			stats.LastCommittedBlock = actionStat.LastBlock
		case optypes.ActionPublishProofBlocksOnchain:
			stats.ProofOps = actionStat.OpCount
			stats.LastVerifiedBlock = actionStat.LastBlock
		case optypes.ActionExecuteBlocks:
			stats.ExecuteOps = actionStat.OpCount
			stats.LastExecutedBlock = actionStat.LastBlock
		}
	}
	return stats, nil
}

func (d *Database) LoadGasPriceLimit(ctx context.Context) (*big.Int, error) {
	params, err := db.GetEthParameters(ctx)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, fmt.Errorf("eth parameters not initialized")
	}
	return parseWei(params.GasPriceLimit)
}

func (d *Database) UpdateGasPriceParams(ctx context.Context, gasPriceLimit *big.Int, averageGasPrice *big.Int) error {
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.UpdateGasPriceParams(ctx, tx, gasPriceLimit.String(), averageGasPrice.String())
	})
}

func (d *Database) IsPreviousOperationConfirmed(ctx context.Context, op *optypes.EthOperation) (bool, error) {
	count, err := db.CountUnconfirmedEthOperationsBefore(ctx, op.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (d *Database) InitializeEthParameters(ctx context.Context, nonce uint64, gasPriceLimit *big.Int) error {
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.InitializeEthParameters(ctx, tx, nonce, gasPriceLimit.String())
	})
}

func parseWei(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", value)
	}
	return amount, nil
}
