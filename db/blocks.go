package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/zkoperator/dbtypes"
)

func InsertBlock(ctx context.Context, tx *sqlx.Tx, block *dbtypes.Block, accountUpdates []*dbtypes.BlockAccountUpdate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO blocks (
			number, timestamp, chunks_size, fee_account, commit_gas_limit, verify_gas_limit,
			new_state_root, commitment, operations, executed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		block.Number, block.Timestamp, block.ChunksSize, block.FeeAccount, block.CommitGasLimit, block.VerifyGasLimit,
		block.NewStateRoot, block.Commitment, block.Operations, block.Executed)
	if err != nil {
		return err
	}

	if len(accountUpdates) == 0 {
		return nil
	}

	var query strings.Builder
	args := make([]any, 0, len(accountUpdates)*4)
	fmt.Fprint(&query, `INSERT INTO block_account_updates (block_number, account_id, nonce, balance) VALUES `)
	for i, update := range accountUpdates {
		if i > 0 {
			fmt.Fprint(&query, ", ")
		}
		argIdx := len(args)
		fmt.Fprintf(&query, "($%v, $%v, $%v, $%v)", argIdx+1, argIdx+2, argIdx+3, argIdx+4)
		args = append(args, block.Number, update.AccountID, update.Nonce, update.Balance)
	}

	_, err = tx.ExecContext(ctx, query.String(), args...)
	return err
}

// GetBlock returns nil without error if the block does not exist.
func GetBlock(ctx context.Context, number uint64) (*dbtypes.Block, error) {
	block := dbtypes.Block{}
	err := ReaderDb.GetContext(ctx, &block, `
		SELECT number, timestamp, chunks_size, fee_account, commit_gas_limit, verify_gas_limit,
			new_state_root, commitment, operations, executed
		FROM blocks
		WHERE number = $1`, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func GetBlockAccountUpdates(ctx context.Context, blockNumber uint64) ([]*dbtypes.BlockAccountUpdate, error) {
	updates := []*dbtypes.BlockAccountUpdate{}
	err := ReaderDb.SelectContext(ctx, &updates, `
		SELECT block_number, account_id, nonce, balance
		FROM block_account_updates
		WHERE block_number = $1
		ORDER BY account_id ASC`, blockNumber)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// GetLastSealedBlockNumber returns the highest sealed block number, 0 if only genesis (or nothing) exists.
func GetLastSealedBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := ReaderDb.GetContext(ctx, &number, `SELECT COALESCE(MAX(number), 0) FROM blocks`)
	if err != nil {
		return 0, err
	}
	return number, nil
}

func GetLastExecutedBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := ReaderDb.GetContext(ctx, &number, `SELECT COALESCE(MAX(number), 0) FROM blocks WHERE executed = TRUE`)
	if err != nil {
		return 0, err
	}
	return number, nil
}

// ApplyBlockAccountUpdates writes the account updates of a block to the account state and marks the block executed.
func ApplyBlockAccountUpdates(ctx context.Context, tx *sqlx.Tx, blockNumber uint64) error {
	_, err := tx.ExecContext(ctx, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO accounts (id, nonce, balance, last_block)
			SELECT account_id, nonce, balance, block_number
			FROM block_account_updates
			WHERE block_number = $1
			ON CONFLICT (id) DO UPDATE SET
				nonce = excluded.nonce,
				balance = excluded.balance,
				last_block = excluded.last_block`,
		dbtypes.DBEngineSqlite: `
			INSERT OR REPLACE INTO accounts (id, nonce, balance, last_block)
			SELECT account_id, nonce, balance, block_number
			FROM block_account_updates
			WHERE block_number = $1`,
	}), blockNumber)
	if err != nil {
		return fmt.Errorf("error applying account updates of block %v: %w", blockNumber, err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE blocks SET executed = TRUE WHERE number = $1`, blockNumber)
	if err != nil {
		return fmt.Errorf("error marking block %v executed: %w", blockNumber, err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows != 1 {
		return fmt.Errorf("block %v not found", blockNumber)
	}
	return nil
}

func GetAccount(ctx context.Context, id uint64) (*dbtypes.Account, error) {
	account := dbtypes.Account{}
	err := ReaderDb.GetContext(ctx, &account, `SELECT id, nonce, balance, last_block FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}
