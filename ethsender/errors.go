package ethsender

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/zkoperator/optypes"
)

// OperationRevertedError is reported when a transaction of an eth operation was mined but reverted. The
// operation is halted until an operator intervenes.
type OperationRevertedError struct {
	EthOpID    int64
	ActionType optypes.AggregatedActionType
	TxHash     common.Hash
	FirstBlock uint64
	LastBlock  uint64
}

func (e *OperationRevertedError) Error() string {
	return fmt.Sprintf("eth operation %v (%v [%v,%v]) reverted in tx %v", e.EthOpID, e.ActionType, e.FirstBlock, e.LastBlock, e.TxHash.Hex())
}
