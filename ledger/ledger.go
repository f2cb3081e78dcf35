package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/cache"
	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/dbtypes"
	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/proofdb"
)

// Ledger serves sealed blocks, proofs and the aggregated operation log from the database. Sealed blocks
// are immutable and kept in the block cache once loaded.
// With a proof store set, proof bytes live in the store and the database rows only index them.
type Ledger struct {
	logger          logrus.FieldLogger
	blockCache      *cache.TieredCache
	cacheExpiration time.Duration
	proofStore      *proofdb.ProofDb
}

func NewLedger(logger logrus.FieldLogger, blockCache *cache.TieredCache, cacheExpiration time.Duration) *Ledger {
	return &Ledger{
		logger:          logger,
		blockCache:      blockCache,
		cacheExpiration: cacheExpiration,
	}
}

func (l *Ledger) SetProofStore(store *proofdb.ProofDb) {
	l.proofStore = store
}

func blockCacheKey(number uint64) string {
	return fmt.Sprintf("block:%v", number)
}

// GetLastCommittedBlock returns the number of the highest sealed block.
func (l *Ledger) GetLastCommittedBlock(ctx context.Context) (uint64, error) {
	return db.GetLastSealedBlockNumber(ctx)
}

func (l *Ledger) GetBlock(ctx context.Context, number uint64) (*optypes.Block, error) {
	if l.blockCache != nil {
		block := &optypes.Block{}
		err := l.blockCache.Get(ctx, blockCacheKey(number), block)
		if err == nil {
			return block, nil
		}
		if !errors.Is(err, cache.CacheMissError) {
			l.logger.WithError(err).Debugf("block cache lookup failed for block %v", number)
		}
	}

	dbBlock, err := db.GetBlock(ctx, number)
	if err != nil || dbBlock == nil {
		return nil, err
	}

	updates, err := db.GetBlockAccountUpdates(ctx, number)
	if err != nil {
		return nil, err
	}

	block, err := BlockFromDb(dbBlock, updates)
	if err != nil {
		return nil, err
	}

	if l.blockCache != nil {
		if err := l.blockCache.Set(ctx, blockCacheKey(number), block, l.cacheExpiration); err != nil {
			l.logger.WithError(err).Debugf("failed caching block %v", number)
		}
	}

	return block, nil
}

func (l *Ledger) GetBlockProof(ctx context.Context, number uint64) (*optypes.BlockProof, error) {
	proof, err := db.GetBlockProof(ctx, number)
	if err != nil || proof == nil {
		return nil, err
	}

	data := proof.Proof
	if len(data) == 0 && l.proofStore != nil {
		data, err = l.proofStore.GetBlockProof(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("failed loading proof of block %v: %w", number, err)
		}
		if data == nil {
			return nil, fmt.Errorf("proof of block %v missing in proof store", number)
		}
	}
	return &optypes.BlockProof{BlockNumber: proof.BlockNumber, Proof: data}, nil
}

func (l *Ledger) GetAggregatedProof(ctx context.Context, firstBlock uint64, lastBlock uint64) (*optypes.AggregatedProof, error) {
	proof, err := db.GetAggregatedProof(ctx, firstBlock, lastBlock)
	if err != nil || proof == nil {
		return nil, err
	}

	data := proof.Proof
	if len(data) == 0 && l.proofStore != nil {
		data, err = l.proofStore.GetAggregatedProof(ctx, firstBlock, lastBlock)
		if err != nil {
			return nil, fmt.Errorf("failed loading aggregated proof %v-%v: %w", firstBlock, lastBlock, err)
		}
		if data == nil {
			return nil, fmt.Errorf("aggregated proof %v-%v missing in proof store", firstBlock, lastBlock)
		}
	}
	return &optypes.AggregatedProof{FirstBlock: proof.FirstBlock, LastBlock: proof.LastBlock, Proof: data}, nil
}

// StoreAggregatedAction appends an operation to the aggregated operation log.
func (l *Ledger) StoreAggregatedAction(ctx context.Context, op *optypes.AggregatedOperation) (int64, error) {
	dbOp, err := AggregatedOperationToDb(op, time.Now())
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		id, err = db.InsertAggregateOperation(ctx, tx, dbOp)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (l *Ledger) GetLastAffectedBlock(ctx context.Context, actionType optypes.AggregatedActionType) (uint64, error) {
	return db.GetLastAffectedBlock(ctx, actionType.String())
}

func (l *Ledger) GetAggregatedOpThatAffectsBlock(ctx context.Context, actionType optypes.AggregatedActionType, blockNumber uint64) (int64, *optypes.AggregatedOperation, error) {
	dbOp, err := db.GetAggregateOperationAffectingBlock(ctx, actionType.String(), blockNumber)
	if err != nil || dbOp == nil {
		return 0, nil, err
	}

	op, err := AggregatedOperationFromDb(dbOp)
	if err != nil {
		return 0, nil, err
	}
	return dbOp.ID, op, nil
}

// InsertBlock stores a sealed block with its account updates.
func (l *Ledger) InsertBlock(ctx context.Context, block *optypes.Block) error {
	dbBlock, updates, err := BlockToDb(block)
	if err != nil {
		return err
	}
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.InsertBlock(ctx, tx, dbBlock, updates)
	})
}

// InsertBlockProof stores the proof of a single block as produced by the prover.
func (l *Ledger) InsertBlockProof(ctx context.Context, proof *optypes.BlockProof) error {
	data := proof.Proof
	if l.proofStore != nil {
		if _, err := l.proofStore.AddBlockProof(ctx, proof.BlockNumber, proof.Proof); err != nil {
			return fmt.Errorf("failed storing proof of block %v: %w", proof.BlockNumber, err)
		}
		data = []byte{}
	}

	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.InsertBlockProof(ctx, tx, &dbtypes.BlockProof{
			BlockNumber: proof.BlockNumber,
			Proof:       data,
			CreatedAt:   uint64(time.Now().Unix()),
		})
	})
}

// InsertAggregatedProof stores an aggregated proof as produced by the prover.
func (l *Ledger) InsertAggregatedProof(ctx context.Context, proof *optypes.AggregatedProof) error {
	data := proof.Proof
	if l.proofStore != nil {
		if _, err := l.proofStore.AddAggregatedProof(ctx, proof.FirstBlock, proof.LastBlock, proof.Proof); err != nil {
			return fmt.Errorf("failed storing aggregated proof %v-%v: %w", proof.FirstBlock, proof.LastBlock, err)
		}
		data = []byte{}
	}

	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		return db.InsertAggregatedProof(ctx, tx, &dbtypes.AggregatedProof{
			FirstBlock: proof.FirstBlock,
			LastBlock:  proof.LastBlock,
			Proof:      data,
			CreatedAt:  uint64(time.Now().Unix()),
		})
	})
}
