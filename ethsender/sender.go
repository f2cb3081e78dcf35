package ethsender

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/types"
	"github.com/ethpandaops/zkoperator/utils"
)

// ETHSender turns aggregated operations into base chain transactions and follows them until they are
// confirmed. Each eth operation moves from created (saved, nothing sent) to pending (one or more attempts
// with the same nonce) to confirmed. A reverted operation is halted.
type ETHSender struct {
	logger logrus.FieldLogger
	config *types.EthSenderConfig
	db     DatabaseInterface
	eth    EthereumInterface

	gasAdjuster *GasAdjuster
	txQueue     *TxQueue
	ongoing     []*optypes.EthOperation
	halted      map[int64]*OperationRevertedError
	metrics     *senderMetrics
}

func NewETHSender(logger logrus.FieldLogger, config *types.EthSenderConfig, db DatabaseInterface, eth EthereumInterface) *ETHSender {
	return &ETHSender{
		logger:  logger,
		config:  config,
		db:      db,
		eth:     eth,
		halted:  map[int64]*OperationRevertedError{},
		metrics: getMetrics(),
	}
}

// RestoreState rebuilds the in-memory state from the store.
func (s *ETHSender) RestoreState(ctx context.Context) error {
	defaultLimit, err := parseWei(s.config.DefaultGasPriceLimit)
	if err != nil {
		return fmt.Errorf("invalid default gas price limit: %w", err)
	}
	nonce, err := s.eth.PendingNonce(ctx)
	if err != nil {
		return fmt.Errorf("failed loading operator nonce: %w", err)
	}
	if err := s.db.InitializeEthParameters(ctx, nonce, defaultLimit); err != nil {
		return fmt.Errorf("failed initializing eth parameters: %w", err)
	}

	state, err := s.db.RestoreState(ctx)
	if err != nil {
		return fmt.Errorf("failed restoring state: %w", err)
	}
	stats, err := s.db.LoadStats(ctx)
	if err != nil {
		return fmt.Errorf("failed loading stats: %w", err)
	}
	gasAdjuster, err := NewGasAdjuster(ctx, s.logger, s.config, s.db)
	if err != nil {
		return err
	}

	txQueue := NewTxQueue(s.config.MaxInFlight, stats)
	txQueue.SetInFlight(len(state.Operations))
	for _, op := range state.Unprocessed {
		txQueue.Add(op)
	}

	s.gasAdjuster = gasAdjuster
	s.txQueue = txQueue
	s.ongoing = state.Operations
	s.halted = map[int64]*OperationRevertedError{}

	s.logger.WithFields(logrus.Fields{
		"ongoing":     len(state.Operations),
		"queued":      txQueue.Len(),
		"savedOps":    stats.SavedOperations,
		"lastCommit":  stats.LastCommittedBlock,
		"lastVerify":  stats.LastVerifiedBlock,
		"lastExecute": stats.LastExecutedBlock,
	}).Infof("restored eth sender state")

	return nil
}

// Run restores the state and runs a sender cycle every poll interval until ctx is cancelled.
func (s *ETHSender) Run(ctx context.Context) error {
	for {
		err := s.RestoreState(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, optypes.ErrCorruptOperation) {
			utils.LogError(err, "eth sender state is corrupt", 0)
			return err
		}
		if ctx.Err() == nil {
			s.logger.WithError(err).Warnf("failed restoring eth sender state, retrying")
		}
		if !s.sleep(ctx) {
			return nil
		}
	}

	for {
		err := s.Process(ctx)
		if err != nil {
			if errors.Is(err, optypes.ErrCorruptOperation) {
				utils.LogError(err, "eth sender hit a corrupt operation", 0)
				return err
			}
			if ctx.Err() == nil {
				s.metrics.cycleErrors.Inc()
				s.logger.WithError(err).Warnf("eth sender cycle failed, retrying")
			}
		}

		if !s.sleep(ctx) {
			return nil
		}
	}
}

func (s *ETHSender) sleep(ctx context.Context) bool {
	wait := s.config.PollInterval
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if s.config.PollJitter > 0 {
		wait += time.Duration(rand.Int63n(int64(s.config.PollJitter)))
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Process runs one sender cycle.
func (s *ETHSender) Process(ctx context.Context) error {
	if s.txQueue == nil {
		if err := s.RestoreState(ctx); err != nil {
			return err
		}
	}

	if err := s.db.AcquireConnection(ctx); err != nil {
		return fmt.Errorf("failed acquiring store connection: %w", err)
	}

	newOps, err := s.db.LoadNewOperations(ctx, s.txQueue.LastQueuedID())
	if err != nil {
		return err
	}
	for _, op := range newOps {
		s.txQueue.Add(op)
	}

	if err := s.gasAdjuster.KeepUpdated(ctx, s.eth); err != nil {
		s.logger.WithError(err).Warnf("failed updating gas price statistics")
	}

	currentBlock, err := s.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed loading base chain block number: %w", err)
	}

	for {
		next := s.txQueue.Peek()
		if next == nil {
			break
		}
		if err := s.initializeNewOperation(ctx, next, currentBlock); err != nil {
			return err
		}
		s.txQueue.Pop(next)
	}

	ongoing := make([]*optypes.EthOperation, len(s.ongoing))
	copy(ongoing, s.ongoing)
	for _, op := range ongoing {
		if err := s.processOperation(ctx, op, currentBlock); err != nil {
			return fmt.Errorf("eth operation %v: %w", op.ID, err)
		}
	}

	s.metrics.ongoingOps.Set(float64(len(s.ongoing)))
	s.metrics.queuedOps.Set(float64(s.txQueue.Len()))
	gweiLimit, _ := new(big.Float).Quo(new(big.Float).SetInt(s.gasAdjuster.GasPriceLimit()), big.NewFloat(params.GWei)).Float64()
	s.metrics.gasPriceLimit.Set(gweiLimit)

	return nil
}

// OngoingOperations returns the unconfirmed eth operations tracked in memory.
func (s *ETHSender) OngoingOperations() []*optypes.EthOperation {
	ops := make([]*optypes.EthOperation, len(s.ongoing))
	copy(ops, s.ongoing)
	return ops
}

// HaltedOperations returns the revert errors of operations that need operator intervention.
func (s *ETHSender) HaltedOperations() []*OperationRevertedError {
	halted := make([]*OperationRevertedError, 0, len(s.halted))
	for _, op := range s.ongoing {
		if err := s.halted[op.ID]; err != nil {
			halted = append(halted, err)
		}
	}
	return halted
}

func (s *ETHSender) initializeNewOperation(ctx context.Context, queued *optypes.QueuedOperation, currentBlock uint64) error {
	txData, err := s.eth.EncodeTxData(queued.Op)
	if err != nil {
		return fmt.Errorf("failed encoding %v: %w", queued.Op, err)
	}

	gasPrice, err := s.gasAdjuster.GetGasPrice(ctx, s.eth, nil)
	if err != nil {
		return err
	}

	deadlineBlock := currentBlock + s.config.ExpectedWaitBlocks
	inserted, err := s.db.SaveNewEthTx(ctx, queued.Op.ActionType, queued, deadlineBlock, gasPrice, txData)
	if err != nil {
		return err
	}

	aggOpID := queued.ID
	op := &optypes.EthOperation{
		ID:                inserted.ID,
		ActionType:        queued.Op.ActionType,
		AggregatedOpID:    &aggOpID,
		Op:                queued.Op,
		Nonce:             inserted.Nonce,
		LastDeadlineBlock: deadlineBlock,
		LastUsedGasPrice:  gasPrice,
		EncodedTxData:     txData,
	}
	s.ongoing = append(s.ongoing, op)

	first, last := queued.Op.BlockRange()
	s.logger.WithFields(logrus.Fields{
		"ethOp":  op.ID,
		"aggOp":  queued.ID,
		"action": op.ActionType,
		"first":  first,
		"last":   last,
		"nonce":  op.Nonce,
	}).Infof("created eth operation")

	return nil
}

func (s *ETHSender) processOperation(ctx context.Context, op *optypes.EthOperation, currentBlock uint64) error {
	if s.halted[op.ID] != nil {
		return nil
	}

	if !op.IsBroadcast() {
		return s.sendFirstAttempt(ctx, op, currentBlock)
	}

	status, hash, err := s.checkAttempts(ctx, op)
	if err != nil {
		return err
	}

	if status != nil {
		if status.Confirmations < s.config.WaitConfirmations {
			return nil
		}
		if !status.Success {
			s.haltOperation(op, hash)
			return nil
		}
		return s.confirmOperation(ctx, op, hash)
	}

	if op.IsStuck(currentBlock) {
		return s.escalateOperation(ctx, op, currentBlock)
	}
	return nil
}

// checkAttempts returns the status of the newest mined attempt, nil if none is mined.
func (s *ETHSender) checkAttempts(ctx context.Context, op *optypes.EthOperation) (*optypes.ExecutedTxStatus, common.Hash, error) {
	for i := len(op.Attempts) - 1; i >= 0; i-- {
		hash := op.Attempts[i].Hash
		status, err := s.eth.GetTxStatus(ctx, hash)
		if err != nil {
			return nil, hash, fmt.Errorf("failed loading status of tx %v: %w", hash.Hex(), err)
		}
		if status != nil {
			return status, hash, nil
		}
	}
	return nil, common.Hash{}, nil
}

func (s *ETHSender) sendFirstAttempt(ctx context.Context, op *optypes.EthOperation, currentBlock uint64) error {
	if s.config.StrictOrdering {
		confirmed, err := s.db.IsPreviousOperationConfirmed(ctx, op)
		if err != nil {
			return err
		}
		if !confirmed {
			s.logger.Debugf("eth operation %v waits for previous operations", op.ID)
			return nil
		}
	}

	// the operation may have waited for a while, give the first attempt its full wait period
	if minDeadline := currentBlock + s.config.ExpectedWaitBlocks; op.LastDeadlineBlock < minDeadline {
		if err := s.db.UpdateEthTx(ctx, op.ID, minDeadline, op.LastUsedGasPrice); err != nil {
			return err
		}
		op.LastDeadlineBlock = minDeadline
	}

	return s.sendAttempt(ctx, op)
}

func (s *ETHSender) escalateOperation(ctx context.Context, op *optypes.EthOperation, currentBlock uint64) error {
	newGasPrice, err := s.gasAdjuster.GetGasPrice(ctx, s.eth, op.LastUsedGasPrice)
	if err != nil {
		return err
	}

	newDeadline := currentBlock + s.config.ExpectedWaitBlocks

	// a replacement needs a strictly higher price, at the limit only the deadline moves
	if newGasPrice.Cmp(op.LastUsedGasPrice) <= 0 {
		if err := s.db.UpdateEthTx(ctx, op.ID, newDeadline, op.LastUsedGasPrice); err != nil {
			return err
		}
		op.LastDeadlineBlock = newDeadline
		s.metrics.escalationsBlocked.WithLabelValues(op.ActionType.String()).Inc()
		s.logger.WithFields(logrus.Fields{
			"ethOp":    op.ID,
			"action":   op.ActionType,
			"gasPrice": op.LastUsedGasPrice.String(),
			"limit":    s.gasAdjuster.GasPriceLimit().String(),
			"deadline": newDeadline,
		}).Warnf("eth operation stuck at gas price limit, waiting")
		return nil
	}

	if err := s.db.UpdateEthTx(ctx, op.ID, newDeadline, newGasPrice); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"ethOp":       op.ID,
		"action":      op.ActionType,
		"oldGasPrice": op.LastUsedGasPrice.String(),
		"newGasPrice": newGasPrice.String(),
		"deadline":    newDeadline,
	}).Infof("eth operation stuck, sending replacement")

	op.LastDeadlineBlock = newDeadline
	op.LastUsedGasPrice = newGasPrice
	s.metrics.txsEscalated.WithLabelValues(op.ActionType.String()).Inc()

	return s.sendAttempt(ctx, op)
}

// sendAttempt signs the operation with its current gas price, records the hash and broadcasts it. The hash
// is recorded before the broadcast so a restart never loses track of a sent transaction.
func (s *ETHSender) sendAttempt(ctx context.Context, op *optypes.EthOperation) error {
	signed, err := s.eth.SignPreparedTx(ctx, op.EncodedTxData, optypes.TxOptions{
		Nonce:    op.Nonce,
		GasPrice: op.LastUsedGasPrice,
		GasLimit: s.txGasLimit(op),
	})
	if err != nil {
		return fmt.Errorf("failed signing tx: %w", err)
	}

	if err := s.db.AddHashEntry(ctx, op.ID, signed.Hash); err != nil {
		return err
	}
	op.Attempts = append(op.Attempts, optypes.TxAttempt{
		Hash:          signed.Hash,
		GasPrice:      new(big.Int).Set(op.LastUsedGasPrice),
		DeadlineBlock: op.LastDeadlineBlock,
	})

	if err := s.eth.SendRawTx(ctx, signed); err != nil {
		// the deadline escalation retries
		s.metrics.broadcastErrors.Inc()
		s.logger.WithError(err).Warnf("failed broadcasting tx %v of eth operation %v", signed.Hash.Hex(), op.ID)
		return nil
	}

	s.metrics.txsSent.WithLabelValues(op.ActionType.String()).Inc()
	s.logger.WithFields(logrus.Fields{
		"ethOp":    op.ID,
		"hash":     signed.Hash.Hex(),
		"nonce":    op.Nonce,
		"gasPrice": op.LastUsedGasPrice.String(),
		"attempt":  len(op.Attempts),
	}).Infof("sent tx")
	return nil
}

func (s *ETHSender) confirmOperation(ctx context.Context, op *optypes.EthOperation, hash common.Hash) error {
	if err := s.db.ConfirmOperation(ctx, hash, op); err != nil {
		return fmt.Errorf("failed confirming operation: %w", err)
	}

	op.Confirmed = true
	op.FinalHash = &hash
	s.removeOngoing(op.ID)
	s.txQueue.ReportCommitment()
	s.metrics.opsConfirmed.WithLabelValues(op.ActionType.String()).Inc()

	fields := logrus.Fields{
		"ethOp":  op.ID,
		"action": op.ActionType,
		"hash":   hash.Hex(),
	}
	if op.Op != nil {
		fields["first"], fields["last"] = op.Op.BlockRange()
	}
	s.logger.WithFields(fields).Infof("eth operation confirmed")
	return nil
}

func (s *ETHSender) haltOperation(op *optypes.EthOperation, hash common.Hash) {
	revertErr := &OperationRevertedError{
		EthOpID:    op.ID,
		ActionType: op.ActionType,
		TxHash:     hash,
	}
	if op.Op != nil {
		revertErr.FirstBlock, revertErr.LastBlock = op.Op.BlockRange()
	}

	s.halted[op.ID] = revertErr
	s.metrics.opsReverted.WithLabelValues(op.ActionType.String()).Inc()
	utils.LogError(revertErr, "eth operation reverted, manual intervention required", 0)
}

func (s *ETHSender) removeOngoing(id int64) {
	for i, op := range s.ongoing {
		if op.ID == id {
			s.ongoing = append(s.ongoing[:i], s.ongoing[i+1:]...)
			return
		}
	}
}

func (s *ETHSender) txGasLimit(op *optypes.EthOperation) uint64 {
	if op.Op == nil {
		return s.config.TxBaseGas
	}

	gasLimit := s.config.TxBaseGas
	switch op.Op.ActionType {
	case optypes.ActionCommitBlocks:
		for _, block := range op.Op.Blocks() {
			gasLimit += block.CommitGasLimit
		}
	case optypes.ActionExecuteBlocks:
		for _, block := range op.Op.Blocks() {
			gasLimit += block.VerifyGasLimit
		}
	case optypes.ActionPublishProofBlocksOnchain:
		gasLimit = s.config.ProofVerificationGas
	}
	return gasLimit
}
