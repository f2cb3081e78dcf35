package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/zkoperator/dbtypes"
)

const ethParametersRowID = 1

// InitializeEthParameters creates the parameters row if it does not exist yet.
func InitializeEthParameters(ctx context.Context, tx *sqlx.Tx, nonce uint64, gasPriceLimit string) error {
	_, err := tx.ExecContext(ctx, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO eth_parameters (id, nonce, gas_price_limit, average_gas_price)
			VALUES ($1, $2, $3, '0')
			ON CONFLICT (id) DO NOTHING`,
		dbtypes.DBEngineSqlite: `
			INSERT OR IGNORE INTO eth_parameters (id, nonce, gas_price_limit, average_gas_price)
			VALUES ($1, $2, $3, '0')`,
	}), ethParametersRowID, nonce, gasPriceLimit)
	return err
}

// GetEthParameters returns nil if the parameters were not initialized.
func GetEthParameters(ctx context.Context) (*dbtypes.EthParameters, error) {
	params := dbtypes.EthParameters{}
	err := ReaderDb.GetContext(ctx, &params, `
		SELECT nonce, gas_price_limit, average_gas_price
		FROM eth_parameters
		WHERE id = $1`, ethParametersRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &params, nil
}

// AllocateNonce returns the next nonce and advances the stored counter.
func AllocateNonce(ctx context.Context, tx *sqlx.Tx) (uint64, error) {
	var nonce uint64
	err := tx.GetContext(ctx, &nonce, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql:  `SELECT nonce FROM eth_parameters WHERE id = $1 FOR UPDATE`,
		dbtypes.DBEngineSqlite: `SELECT nonce FROM eth_parameters WHERE id = $1`,
	}), ethParametersRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("eth parameters not initialized")
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE eth_parameters SET nonce = $2 WHERE id = $1`, ethParametersRowID, nonce+1)
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

func UpdateGasPriceParams(ctx context.Context, tx *sqlx.Tx, gasPriceLimit string, averageGasPrice string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE eth_parameters
		SET gas_price_limit = $2, average_gas_price = $3
		WHERE id = $1`,
		ethParametersRowID, gasPriceLimit, averageGasPrice)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows != 1 {
		return fmt.Errorf("eth parameters not initialized")
	}
	return nil
}
