package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/zkoperator/dbtypes"
)

func InsertBlockProof(ctx context.Context, tx *sqlx.Tx, proof *dbtypes.BlockProof) error {
	_, err := tx.ExecContext(ctx, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO proofs (block_number, proof, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (block_number) DO NOTHING`,
		dbtypes.DBEngineSqlite: `
			INSERT OR IGNORE INTO proofs (block_number, proof, created_at)
			VALUES ($1, $2, $3)`,
	}), proof.BlockNumber, proof.Proof, proof.CreatedAt)
	return err
}

func GetBlockProof(ctx context.Context, blockNumber uint64) (*dbtypes.BlockProof, error) {
	proof := dbtypes.BlockProof{}
	err := ReaderDb.GetContext(ctx, &proof, `SELECT block_number, proof, created_at FROM proofs WHERE block_number = $1`, blockNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proof, nil
}

func InsertAggregatedProof(ctx context.Context, tx *sqlx.Tx, proof *dbtypes.AggregatedProof) error {
	_, err := tx.ExecContext(ctx, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO aggregated_proofs (first_block, last_block, proof, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (first_block, last_block) DO NOTHING`,
		dbtypes.DBEngineSqlite: `
			INSERT OR IGNORE INTO aggregated_proofs (first_block, last_block, proof, created_at)
			VALUES ($1, $2, $3, $4)`,
	}), proof.FirstBlock, proof.LastBlock, proof.Proof, proof.CreatedAt)
	return err
}

// GetAggregatedProof returns the proof for exactly [firstBlock, lastBlock] or nil.
func GetAggregatedProof(ctx context.Context, firstBlock uint64, lastBlock uint64) (*dbtypes.AggregatedProof, error) {
	proof := dbtypes.AggregatedProof{}
	err := ReaderDb.GetContext(ctx, &proof, `
		SELECT first_block, last_block, proof, created_at
		FROM aggregated_proofs
		WHERE first_block = $1 AND last_block = $2`, firstBlock, lastBlock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proof, nil
}
