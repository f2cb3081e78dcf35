package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/zkoperator/dbtypes"
)

func InsertEthOperation(ctx context.Context, tx *sqlx.Tx, op *dbtypes.EthOperation) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO eth_operations (
			action_type, aggregated_op_id, nonce, last_deadline_block, last_used_gas_price, tx_data, confirmed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		op.ActionType, op.AggregatedOpID, op.Nonce, op.LastDeadlineBlock, op.LastUsedGasPrice, op.TxData, op.Confirmed, op.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertEthTxHash records a sent transaction. The attempt copies the current deadline block and gas price
// of its eth operation.
func InsertEthTxHash(ctx context.Context, tx *sqlx.Tx, ethOpID int64, txHash []byte, createdAt uint64) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO eth_tx_hashes (eth_op_id, tx_hash, deadline_block, gas_price, created_at)
		SELECT id, $2, last_deadline_block, last_used_gas_price, $3
		FROM eth_operations
		WHERE id = $1`,
		ethOpID, txHash, createdAt)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows != 1 {
		return fmt.Errorf("eth operation %v not found", ethOpID)
	}
	return nil
}

func UpdateEthOperationGas(ctx context.Context, tx *sqlx.Tx, ethOpID int64, deadlineBlock uint64, gasPrice string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE eth_operations
		SET last_deadline_block = $2, last_used_gas_price = $3
		WHERE id = $1`,
		ethOpID, deadlineBlock, gasPrice)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows != 1 {
		return fmt.Errorf("eth operation %v not found", ethOpID)
	}
	return nil
}

// ConfirmEthOperation marks the eth operation confirmed by one of its own transactions.
func ConfirmEthOperation(ctx context.Context, tx *sqlx.Tx, ethOpID int64, finalHash []byte) error {
	var hashCount uint64
	err := tx.GetContext(ctx, &hashCount, `
		SELECT COUNT(*) FROM eth_tx_hashes WHERE eth_op_id = $1 AND tx_hash = $2`,
		ethOpID, finalHash)
	if err != nil {
		return err
	}
	if hashCount == 0 {
		return fmt.Errorf("tx hash 0x%x does not belong to eth operation %v", finalHash, ethOpID)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE eth_operations
		SET confirmed = TRUE, final_hash = $2
		WHERE id = $1 AND confirmed = FALSE`,
		ethOpID, finalHash)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows != 1 {
		return fmt.Errorf("eth operation %v not found or already confirmed", ethOpID)
	}
	return nil
}

func GetUnconfirmedEthOperations(ctx context.Context) ([]*dbtypes.EthOperation, error) {
	ops := []*dbtypes.EthOperation{}
	err := writerDb.SelectContext(ctx, &ops, `
		SELECT id, action_type, aggregated_op_id, nonce, last_deadline_block, last_used_gas_price, tx_data,
			confirmed, final_hash, created_at
		FROM eth_operations
		WHERE confirmed = FALSE
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// GetEthTxHashes returns the attempts of the given eth operations ordered by eth operation and attempt id.
func GetEthTxHashes(ctx context.Context, ethOpIDs []int64) ([]*dbtypes.EthTxHash, error) {
	hashes := []*dbtypes.EthTxHash{}
	if len(ethOpIDs) == 0 {
		return hashes, nil
	}

	var query strings.Builder
	args := []any{}

	fmt.Fprint(&query, `
		SELECT id, eth_op_id, tx_hash, deadline_block, gas_price, created_at
		FROM eth_tx_hashes
		WHERE eth_op_id IN (`)
	for i, id := range ethOpIDs {
		if i > 0 {
			fmt.Fprint(&query, ",")
		}
		args = append(args, id)
		fmt.Fprintf(&query, "$%v", len(args))
	}
	fmt.Fprint(&query, `)
		ORDER BY eth_op_id ASC, id ASC`)

	err := writerDb.SelectContext(ctx, &hashes, query.String(), args...)
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// CountUnconfirmedEthOperationsBefore counts unconfirmed eth operations with an id lower than ethOpID.
func CountUnconfirmedEthOperationsBefore(ctx context.Context, ethOpID int64) (uint64, error) {
	var count uint64
	err := writerDb.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM eth_operations WHERE id < $1 AND confirmed = FALSE`, ethOpID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func CountEthOperations(ctx context.Context) (uint64, error) {
	var count uint64
	err := ReaderDb.GetContext(ctx, &count, `SELECT COUNT(*) FROM eth_operations`)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetEthActionStats aggregates the eth operations per action type of their bound aggregated operation.
func GetEthActionStats(ctx context.Context) ([]*dbtypes.EthActionStats, error) {
	stats := []*dbtypes.EthActionStats{}
	err := ReaderDb.SelectContext(ctx, &stats, `
		SELECT a.action_type AS action_type, COUNT(*) AS op_count, COALESCE(MAX(a.to_block), 0) AS last_block
		FROM eth_operations e
		JOIN aggregate_operations a ON a.id = e.aggregated_op_id
		GROUP BY a.action_type`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
