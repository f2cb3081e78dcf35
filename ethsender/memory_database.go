package ethsender

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/zkoperator/optypes"
)

type memoryAggregatedOperation struct {
	id        int64
	op        *optypes.AggregatedOperation
	confirmed bool
}

// MemoryDatabase is an in-memory DatabaseInterface. Operations are copied on the way in and out so callers
// never share state with the store.
type MemoryDatabase struct {
	mutex sync.Mutex

	aggregatedOps  []*memoryAggregatedOperation
	ethOps         []*optypes.EthOperation
	boundAggOps    map[int64]int64
	executedBlocks map[uint64]bool

	initialized     bool
	nonce           uint64
	gasPriceLimit   *big.Int
	averageGasPrice *big.Int

	// AcquireErr is returned by AcquireConnection if set.
	AcquireErr error
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		boundAggOps:    map[int64]int64{},
		executedBlocks: map[uint64]bool{},
	}
}

// AddAggregatedOperation appends an operation to the aggregated operation log and returns its id.
func (m *MemoryDatabase) AddAggregatedOperation(op *optypes.AggregatedOperation) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	id := int64(len(m.aggregatedOps) + 1)
	m.aggregatedOps = append(m.aggregatedOps, &memoryAggregatedOperation{id: id, op: op})
	return id
}

func (m *MemoryDatabase) IsAggregatedOperationConfirmed(id int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, aggOp := range m.aggregatedOps {
		if aggOp.id == id {
			return aggOp.confirmed
		}
	}
	return false
}

func (m *MemoryDatabase) IsBlockExecuted(number uint64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.executedBlocks[number]
}

// EthOperations returns copies of all stored eth operations.
func (m *MemoryDatabase) EthOperations() []*optypes.EthOperation {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ops := make([]*optypes.EthOperation, len(m.ethOps))
	for i, op := range m.ethOps {
		ops[i] = copyEthOperation(op)
	}
	return ops
}

func (m *MemoryDatabase) AcquireConnection(ctx context.Context) error {
	return m.AcquireErr
}

func (m *MemoryDatabase) RestoreState(ctx context.Context) (*RestoredState, error) {
	m.mutex.Lock()
	state := &RestoredState{}
	for _, op := range m.ethOps {
		if !op.Confirmed {
			state.Operations = append(state.Operations, copyEthOperation(op))
		}
	}
	m.mutex.Unlock()

	unprocessed, err := m.LoadNewOperations(ctx, 0)
	if err != nil {
		return nil, err
	}
	state.Unprocessed = unprocessed
	return state, nil
}

func (m *MemoryDatabase) LoadNewOperations(ctx context.Context, afterID int64) ([]*optypes.QueuedOperation, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ops := []*optypes.QueuedOperation{}
	for _, aggOp := range m.aggregatedOps {
		if aggOp.id <= afterID || !aggOp.op.ActionType.IsOnchain() {
			continue
		}
		if _, bound := m.boundAggOps[aggOp.id]; bound {
			continue
		}
		ops = append(ops, &optypes.QueuedOperation{ID: aggOp.id, Op: aggOp.op})
	}
	return ops, nil
}

func (m *MemoryDatabase) SaveNewEthTx(ctx context.Context, opType optypes.AggregatedActionType, op *optypes.QueuedOperation, deadlineBlock uint64, gasPrice *big.Int, txData []byte) (*optypes.InsertedOperationResponse, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("eth parameters not initialized")
	}

	ethOp := &optypes.EthOperation{
		ID:                int64(len(m.ethOps) + 1),
		ActionType:        opType,
		Nonce:             m.nonce,
		LastDeadlineBlock: deadlineBlock,
		LastUsedGasPrice:  new(big.Int).Set(gasPrice),
		EncodedTxData:     append([]byte(nil), txData...),
	}
	if op != nil {
		if _, bound := m.boundAggOps[op.ID]; bound {
			return nil, fmt.Errorf("aggregated operation %v already has an eth operation", op.ID)
		}
		aggOpID := op.ID
		ethOp.AggregatedOpID = &aggOpID
		ethOp.Op = op.Op
		m.boundAggOps[op.ID] = ethOp.ID
	}

	m.nonce++
	m.ethOps = append(m.ethOps, ethOp)

	return &optypes.InsertedOperationResponse{ID: ethOp.ID, Nonce: ethOp.Nonce}, nil
}

func (m *MemoryDatabase) getEthOperation(id int64) (*optypes.EthOperation, error) {
	if id <= 0 || id > int64(len(m.ethOps)) {
		return nil, fmt.Errorf("eth operation %v not found", id)
	}
	return m.ethOps[id-1], nil
}

func (m *MemoryDatabase) AddHashEntry(ctx context.Context, ethOpID int64, hash common.Hash) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	op, err := m.getEthOperation(ethOpID)
	if err != nil {
		return err
	}
	op.Attempts = append(op.Attempts, optypes.TxAttempt{
		Hash:          hash,
		GasPrice:      new(big.Int).Set(op.LastUsedGasPrice),
		DeadlineBlock: op.LastDeadlineBlock,
	})
	return nil
}

func (m *MemoryDatabase) UpdateEthTx(ctx context.Context, ethOpID int64, newDeadlineBlock uint64, newGasPrice *big.Int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	op, err := m.getEthOperation(ethOpID)
	if err != nil {
		return err
	}
	op.LastDeadlineBlock = newDeadlineBlock
	op.LastUsedGasPrice = new(big.Int).Set(newGasPrice)
	return nil
}

func (m *MemoryDatabase) ConfirmOperation(ctx context.Context, hash common.Hash, op *optypes.EthOperation) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored, err := m.getEthOperation(op.ID)
	if err != nil {
		return err
	}
	if stored.Confirmed {
		return fmt.Errorf("eth operation %v already confirmed", op.ID)
	}

	knownHash := false
	for _, attempt := range stored.Attempts {
		if attempt.Hash == hash {
			knownHash = true
			break
		}
	}
	if !knownHash {
		return fmt.Errorf("tx hash %v does not belong to eth operation %v", hash.Hex(), op.ID)
	}

	// validation passed, nothing below can fail
	if stored.Op != nil {
		if stored.Op.ActionType == optypes.ActionExecuteBlocks {
			for _, block := range stored.Op.Blocks() {
				m.executedBlocks[block.Number] = true
			}
		}

		first, last := stored.Op.BlockRange()
		for _, aggOp := range m.aggregatedOps {
			aggFirst, aggLast := aggOp.op.BlockRange()
			if aggOp.op.ActionType == stored.Op.ActionType && aggFirst >= first && aggLast <= last {
				aggOp.confirmed = true
			}
		}
	}

	finalHash := hash
	stored.Confirmed = true
	stored.FinalHash = &finalHash
	return nil
}

func (m *MemoryDatabase) LoadStats(ctx context.Context) (*optypes.ETHStats, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stats := &optypes.ETHStats{
		SavedOperations: uint64(len(m.ethOps)),
	}
	for _, op := range m.ethOps {
		if op.Op == nil {
			continue
		}
		_, last := op.Op.BlockRange()
		switch op.Op.ActionType {
		case optypes.ActionCommitBlocks:
			stats.CommitOps++
			stats.LastCommittedBlock = max(stats.LastCommittedBlock, last)
		case optypes.ActionPublishProofBlocksOnchain:
			stats.ProofOps++
			stats.LastVerifiedBlock = max(stats.LastVerifiedBlock, last)
		case optypes.ActionExecuteBlocks:
			stats.ExecuteOps++
			stats.LastExecutedBlock = max(stats.LastExecutedBlock, last)
		}
	}
	return stats, nil
}

func (m *MemoryDatabase) LoadGasPriceLimit(ctx context.Context) (*big.Int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("eth parameters not initialized")
	}
	return new(big.Int).Set(m.gasPriceLimit), nil
}

func (m *MemoryDatabase) UpdateGasPriceParams(ctx context.Context, gasPriceLimit *big.Int, averageGasPrice *big.Int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.initialized {
		return fmt.Errorf("eth parameters not initialized")
	}
	m.gasPriceLimit = new(big.Int).Set(gasPriceLimit)
	m.averageGasPrice = new(big.Int).Set(averageGasPrice)
	return nil
}

// AverageGasPrice returns the last stored average gas price.
func (m *MemoryDatabase) AverageGasPrice() *big.Int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.averageGasPrice == nil {
		return nil
	}
	return new(big.Int).Set(m.averageGasPrice)
}

func (m *MemoryDatabase) IsPreviousOperationConfirmed(ctx context.Context, op *optypes.EthOperation) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, stored := range m.ethOps {
		if stored.ID < op.ID && !stored.Confirmed {
			return false, nil
		}
	}
	return true, nil
}

func (m *MemoryDatabase) InitializeEthParameters(ctx context.Context, nonce uint64, gasPriceLimit *big.Int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.initialized {
		return nil
	}
	m.initialized = true
	m.nonce = nonce
	m.gasPriceLimit = new(big.Int).Set(gasPriceLimit)
	m.averageGasPrice = new(big.Int)
	return nil
}

func copyEthOperation(op *optypes.EthOperation) *optypes.EthOperation {
	opCopy := *op
	opCopy.LastUsedGasPrice = new(big.Int).Set(op.LastUsedGasPrice)
	opCopy.EncodedTxData = append([]byte(nil), op.EncodedTxData...)
	opCopy.Attempts = make([]optypes.TxAttempt, len(op.Attempts))
	for i, attempt := range op.Attempts {
		opCopy.Attempts[i] = optypes.TxAttempt{
			Hash:          attempt.Hash,
			GasPrice:      new(big.Int).Set(attempt.GasPrice),
			DeadlineBlock: attempt.DeadlineBlock,
		}
	}
	if op.AggregatedOpID != nil {
		aggOpID := *op.AggregatedOpID
		opCopy.AggregatedOpID = &aggOpID
	}
	if op.FinalHash != nil {
		finalHash := *op.FinalHash
		opCopy.FinalHash = &finalHash
	}
	return &opCopy
}
