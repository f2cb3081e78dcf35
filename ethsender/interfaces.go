package ethsender

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/zkoperator/optypes"
)

// RestoredState is everything the sender needs to resume after a restart.
type RestoredState struct {
	// unconfirmed eth operations with their attempts, ordered by id
	Operations []*optypes.EthOperation
	// aggregated operations without an eth operation, ordered by id
	Unprocessed []*optypes.QueuedOperation
}

// DatabaseInterface is the storage used by the sender.
type DatabaseInterface interface {
	// AcquireConnection checks the store is reachable. Errors are transient.
	AcquireConnection(ctx context.Context) error
	RestoreState(ctx context.Context) (*RestoredState, error)
	// LoadNewOperations returns the on-chain aggregated operations with id > afterID that are not bound to an
	// eth operation yet.
	LoadNewOperations(ctx context.Context, afterID int64) ([]*optypes.QueuedOperation, error)
	// SaveNewEthTx stores a new eth operation and allocates its nonce in one transaction.
	SaveNewEthTx(ctx context.Context, opType optypes.AggregatedActionType, op *optypes.QueuedOperation, deadlineBlock uint64, gasPrice *big.Int, txData []byte) (*optypes.InsertedOperationResponse, error)
	// AddHashEntry records a signed attempt with the current deadline and gas price of the operation.
	AddHashEntry(ctx context.Context, ethOpID int64, hash common.Hash) error
	UpdateEthTx(ctx context.Context, ethOpID int64, newDeadlineBlock uint64, newGasPrice *big.Int) error
	// ConfirmOperation applies the rollup effects of the operation and marks it confirmed atomically.
	ConfirmOperation(ctx context.Context, hash common.Hash, op *optypes.EthOperation) error
	LoadStats(ctx context.Context) (*optypes.ETHStats, error)
	LoadGasPriceLimit(ctx context.Context) (*big.Int, error)
	UpdateGasPriceParams(ctx context.Context, gasPriceLimit *big.Int, averageGasPrice *big.Int) error
	// IsPreviousOperationConfirmed reports whether every eth operation older than op is confirmed.
	IsPreviousOperationConfirmed(ctx context.Context, op *optypes.EthOperation) (bool, error)
	// InitializeEthParameters creates the nonce and gas price limit record if missing.
	InitializeEthParameters(ctx context.Context, nonce uint64, gasPriceLimit *big.Int) error
}

// EthereumInterface is the base chain client used by the sender.
type EthereumInterface interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context) (uint64, error)
	SendRawTx(ctx context.Context, tx *optypes.SignedCallResult) error
	// GetTxStatus returns nil if the transaction is not mined.
	GetTxStatus(ctx context.Context, hash common.Hash) (*optypes.ExecutedTxStatus, error)
	EncodeTxData(op *optypes.AggregatedOperation) ([]byte, error)
	SignPreparedTx(ctx context.Context, data []byte, opts optypes.TxOptions) (*optypes.SignedCallResult, error)
}
