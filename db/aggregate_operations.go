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

func InsertAggregateOperation(ctx context.Context, tx *sqlx.Tx, op *dbtypes.AggregateOperation) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO aggregate_operations (action_type, arguments, from_block, to_block, confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		op.ActionType, op.Arguments, op.FromBlock, op.ToBlock, op.Confirmed, op.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetLastAffectedBlock returns the highest to_block of all operations with the given action type, 0 if none.
func GetLastAffectedBlock(ctx context.Context, actionType string) (uint64, error) {
	var number uint64
	err := writerDb.GetContext(ctx, &number, `
		SELECT COALESCE(MAX(to_block), 0)
		FROM aggregate_operations
		WHERE action_type = $1`, actionType)
	if err != nil {
		return 0, err
	}
	return number, nil
}

// GetAggregateOperationAffectingBlock returns the operation of the given type whose range covers blockNumber, or nil.
func GetAggregateOperationAffectingBlock(ctx context.Context, actionType string, blockNumber uint64) (*dbtypes.AggregateOperation, error) {
	op := dbtypes.AggregateOperation{}
	err := writerDb.GetContext(ctx, &op, `
		SELECT id, action_type, arguments, from_block, to_block, confirmed, created_at
		FROM aggregate_operations
		WHERE action_type = $1 AND from_block <= $2 AND to_block >= $2
		ORDER BY id ASC
		LIMIT 1`, actionType, blockNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func GetAggregateOperation(ctx context.Context, id int64) (*dbtypes.AggregateOperation, error) {
	op := dbtypes.AggregateOperation{}
	err := ReaderDb.GetContext(ctx, &op, `
		SELECT id, action_type, arguments, from_block, to_block, confirmed, created_at
		FROM aggregate_operations
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// GetUnboundAggregateOperations returns operations of the given types with id > afterID that no eth operation
// references yet, ordered by id.
func GetUnboundAggregateOperations(ctx context.Context, afterID int64, actionTypes []string) ([]*dbtypes.AggregateOperation, error) {
	ops := []*dbtypes.AggregateOperation{}
	if len(actionTypes) == 0 {
		return ops, nil
	}

	var query strings.Builder
	args := []any{afterID}

	fmt.Fprint(&query, `
		SELECT a.id, a.action_type, a.arguments, a.from_block, a.to_block, a.confirmed, a.created_at
		FROM aggregate_operations a
		LEFT JOIN eth_operations e ON e.aggregated_op_id = a.id
		WHERE e.id IS NULL AND a.id > $1 AND a.action_type IN (`)
	for i, actionType := range actionTypes {
		if i > 0 {
			fmt.Fprint(&query, ",")
		}
		args = append(args, actionType)
		fmt.Fprintf(&query, "$%v", len(args))
	}
	fmt.Fprint(&query, `)
		ORDER BY a.id ASC`)

	err := writerDb.SelectContext(ctx, &ops, query.String(), args...)
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// ConfirmAggregateOperations sets the confirmed flag on all operations of the given type inside [fromBlock, toBlock].
func ConfirmAggregateOperations(ctx context.Context, tx *sqlx.Tx, actionType string, fromBlock uint64, toBlock uint64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE aggregate_operations
		SET confirmed = TRUE
		WHERE action_type = $1 AND from_block >= $2 AND to_block <= $3`,
		actionType, fromBlock, toBlock)
	return err
}

func GetAggregateOperationCounts(ctx context.Context) (map[string]uint64, error) {
	rows := []struct {
		ActionType string `db:"action_type"`
		Count      uint64 `db:"op_count"`
	}{}
	err := ReaderDb.SelectContext(ctx, &rows, `
		SELECT action_type, COUNT(*) AS op_count
		FROM aggregate_operations
		GROUP BY action_type`)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]uint64, len(rows))
	for _, row := range rows {
		counts[row.ActionType] = row.Count
	}
	return counts, nil
}
