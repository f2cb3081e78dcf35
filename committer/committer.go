package committer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/types"
	"github.com/ethpandaops/zkoperator/utils"
)

// Committer turns sealed blocks into aggregated operations.
type Committer struct {
	logger  logrus.FieldLogger
	config  *types.CommitterConfig
	ledger  BlockLedger
	store   OperationStore
	metrics *committerMetrics
	now     func() time.Time
}

func NewCommitter(logger logrus.FieldLogger, config *types.CommitterConfig, ledger BlockLedger, store OperationStore) *Committer {
	return &Committer{
		logger:  logger,
		config:  config,
		ledger:  ledger,
		store:   store,
		metrics: getMetrics(),
		now:     time.Now,
	}
}

// Run executes an aggregation pass every interval until ctx is cancelled. Invariant violations and corrupt
// operations stop the loop and are returned.
func (c *Committer) Run(ctx context.Context) error {
	interval := c.config.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := c.CreateAggregatedOperations(ctx)
		if err != nil {
			if IsFatal(err) {
				utils.LogError(err, "aggregated operations pass hit an unrecoverable error", 0)
				return err
			}
			if ctx.Err() == nil {
				c.logger.WithError(err).Warnf("aggregated operations pass failed, retrying next tick")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// IsFatal reports whether err indicates inconsistent persisted state.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation) || errors.Is(err, optypes.ErrCorruptOperation)
}

// CreateAggregatedOperations drains commit, create-proof, publish-proof and execute in that order.
func (c *Committer) CreateAggregatedOperations(ctx context.Context) error {
	start := time.Now()
	defer func() {
		c.metrics.passDuration.Observe(time.Since(start).Seconds())
	}()

	steps := []struct {
		actionType optypes.AggregatedActionType
		fn         func(ctx context.Context) (*optypes.AggregatedOperation, error)
	}{
		{optypes.ActionCommitBlocks, c.createCommitOperation},
		{optypes.ActionCreateProofBlocks, c.createProofOperation},
		{optypes.ActionPublishProofBlocksOnchain, c.createPublishOperation},
		{optypes.ActionExecuteBlocks, c.createExecuteOperation},
	}

	for _, step := range steps {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			op, err := step.fn(ctx)
			if err != nil {
				c.metrics.passErrors.Inc()
				return fmt.Errorf("%v step: %w", step.actionType, err)
			}
			if op == nil {
				break
			}

			if err := c.storeOperation(ctx, op); err != nil {
				c.metrics.passErrors.Inc()
				return fmt.Errorf("%v step: %w", step.actionType, err)
			}
		}
	}

	return nil
}

func (c *Committer) storeOperation(ctx context.Context, op *optypes.AggregatedOperation) error {
	id, err := c.store.StoreAggregatedAction(ctx, op)
	if err != nil {
		return fmt.Errorf("failed storing %v: %w", op, err)
	}

	first, last := op.BlockRange()
	c.logger.WithFields(logrus.Fields{
		"id":     id,
		"action": op.ActionType,
		"first":  first,
		"last":   last,
	}).Infof("created aggregated operation")

	c.metrics.operationsCreated.WithLabelValues(op.ActionType.String()).Inc()
	c.metrics.lastAffectedBlock.WithLabelValues(op.ActionType.String()).Set(float64(last))
	return nil
}

// loadBlocks loads the blocks [from, to]. A missing block is an invariant violation.
func (c *Committer) loadBlocks(ctx context.Context, from uint64, to uint64) ([]*optypes.Block, error) {
	blocks := make([]*optypes.Block, 0, to-from+1)
	for number := from; number <= to; number++ {
		block, err := c.ledger.GetBlock(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("failed loading block %v: %w", number, err)
		}
		if block == nil {
			return nil, fmt.Errorf("%w: block %v not found", ErrInvariantViolation, number)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func lastCandidate(first uint64, last uint64, maxBlocks int) uint64 {
	if maxBlocks > 0 && last-first+1 > uint64(maxBlocks) {
		return first + uint64(maxBlocks) - 1
	}
	return last
}

func (c *Committer) createCommitOperation(ctx context.Context) (*optypes.AggregatedOperation, error) {
	lastSealed, err := c.ledger.GetLastCommittedBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading last sealed block: %w", err)
	}
	lastCommitted, err := c.store.GetLastAffectedBlock(ctx, optypes.ActionCommitBlocks)
	if err != nil {
		return nil, fmt.Errorf("failed loading last committed block: %w", err)
	}
	if lastSealed <= lastCommitted {
		return nil, nil
	}

	lastCommittedBlock, err := c.ledger.GetBlock(ctx, lastCommitted)
	if err != nil {
		return nil, fmt.Errorf("failed loading block %v: %w", lastCommitted, err)
	}
	if lastCommittedBlock == nil {
		return nil, fmt.Errorf("%w: committed block %v not found", ErrInvariantViolation, lastCommitted)
	}

	// blocks behind the prefix cannot influence the decision
	newBlocks, err := c.loadBlocks(ctx, lastCommitted+1, lastCandidate(lastCommitted+1, lastSealed, c.config.MaxBlocksToCommit))
	if err != nil {
		return nil, err
	}

	return CreateNewCommitOperation(lastCommittedBlock, newBlocks, c.now(), c.config.MaxBlocksToCommit, c.config.BlockCommitDeadline, c.config.MaxGasForTx)
}

func (c *Committer) createProofOperation(ctx context.Context) (*optypes.AggregatedOperation, error) {
	sizes := c.config.AvailableAggregateProofSizes
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: no aggregate proof sizes configured", ErrInvariantViolation)
	}
	maxSize := sizes[len(sizes)-1]

	lastSealed, err := c.ledger.GetLastCommittedBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading last sealed block: %w", err)
	}
	lastCreated, err := c.store.GetLastAffectedBlock(ctx, optypes.ActionCreateProofBlocks)
	if err != nil {
		return nil, fmt.Errorf("failed loading last proven block: %w", err)
	}

	blocks := make([]*optypes.Block, 0, maxSize)
	for number := lastCreated + 1; number <= lastSealed && len(blocks) < maxSize; number++ {
		proof, err := c.ledger.GetBlockProof(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("failed loading proof of block %v: %w", number, err)
		}
		if proof == nil {
			break
		}

		block, err := c.ledger.GetBlock(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("failed loading block %v: %w", number, err)
		}
		if block == nil {
			return nil, fmt.Errorf("%w: proven block %v not found", ErrInvariantViolation, number)
		}
		blocks = append(blocks, block)
	}

	return CreateNewCreateProofOperation(blocks, sizes, c.now(), c.config.BlockVerifyDeadline)
}

func (c *Committer) createPublishOperation(ctx context.Context) (*optypes.AggregatedOperation, error) {
	lastCreated, err := c.store.GetLastAffectedBlock(ctx, optypes.ActionCreateProofBlocks)
	if err != nil {
		return nil, fmt.Errorf("failed loading last proven block: %w", err)
	}
	lastPublished, err := c.store.GetLastAffectedBlock(ctx, optypes.ActionPublishProofBlocksOnchain)
	if err != nil {
		return nil, fmt.Errorf("failed loading last published block: %w", err)
	}
	if lastCreated <= lastPublished {
		return nil, nil
	}

	_, createOp, err := c.store.GetAggregatedOpThatAffectsBlock(ctx, optypes.ActionCreateProofBlocks, lastPublished+1)
	if err != nil {
		return nil, fmt.Errorf("failed loading create proof operation for block %v: %w", lastPublished+1, err)
	}
	if createOp == nil {
		return nil, fmt.Errorf("%w: no create proof operation covers block %v", ErrInvariantViolation, lastPublished+1)
	}
	if createOp.ActionType != optypes.ActionCreateProofBlocks || createOp.CreateProof == nil {
		return nil, fmt.Errorf("%w: operation covering block %v is %v", ErrInvariantViolation, lastPublished+1, createOp.ActionType)
	}

	first, last := createOp.BlockRange()
	if first != lastPublished+1 {
		return nil, fmt.Errorf("%w: create proof operation starts at %v, expected %v", ErrInvariantViolation, first, lastPublished+1)
	}

	proof, err := c.ledger.GetAggregatedProof(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("failed loading aggregated proof [%v,%v]: %w", first, last, err)
	}
	if proof == nil {
		return nil, nil
	}

	return CreatePublishProofOperation(createOp.CreateProof, proof), nil
}

func (c *Committer) createExecuteOperation(ctx context.Context) (*optypes.AggregatedOperation, error) {
	lastPublished, err := c.store.GetLastAffectedBlock(ctx, optypes.ActionPublishProofBlocksOnchain)
	if err != nil {
		return nil, fmt.Errorf("failed loading last published block: %w", err)
	}
	lastExecuted, err := c.store.GetLastAffectedBlock(ctx, optypes.ActionExecuteBlocks)
	if err != nil {
		return nil, fmt.Errorf("failed loading last executed block: %w", err)
	}
	if lastPublished <= lastExecuted {
		return nil, nil
	}

	blocks, err := c.loadBlocks(ctx, lastExecuted+1, lastCandidate(lastExecuted+1, lastPublished, c.config.MaxBlocksToExecute))
	if err != nil {
		return nil, err
	}

	return CreateExecuteBlocksOperation(blocks, c.now(), c.config.MaxBlocksToExecute, c.config.BlockExecuteDeadline, c.config.MaxGasForTx)
}
