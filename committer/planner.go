package committer

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/zkoperator/optypes"
)

// ErrInvariantViolation signals inconsistent persisted state. The process must not continue.
var ErrInvariantViolation = errors.New("invariant violation")

type gasLimitFn func(block *optypes.Block) uint64

func commitGasLimit(block *optypes.Block) uint64 {
	return block.CommitGasLimit
}

func verifyGasLimit(block *optypes.Block) uint64 {
	return block.VerifyGasLimit
}

func prefixBlocks(blocks []*optypes.Block, maxBlocks int) []*optypes.Block {
	if maxBlocks > 0 && len(blocks) > maxBlocks {
		return blocks[:maxBlocks]
	}
	return blocks
}

func anyBlockPastDeadline(blocks []*optypes.Block, now time.Time, deadline time.Duration) bool {
	deadlineSeconds := int64(deadline / time.Second)
	for _, block := range blocks {
		if block.SecondsSinceCreated(now) > deadlineSeconds {
			return true
		}
	}
	return false
}

// shouldAggregate checks the deadline, gas and count triggers on the prefix of at most maxBlocks blocks.
func shouldAggregate(blocks []*optypes.Block, now time.Time, maxBlocks int, deadline time.Duration, maxGas uint64, gasLimit gasLimitFn) bool {
	if len(blocks) == 0 {
		return false
	}

	if anyBlockPastDeadline(blocks, now, deadline) {
		return true
	}

	totalGas := uint64(0)
	for _, block := range blocks {
		totalGas += gasLimit(block)
	}
	if totalGas >= maxGas {
		return true
	}

	return len(blocks) == maxBlocks
}

// packBlocks takes blocks from the front until the next one would push the gas sum above maxGas.
// The first block is always taken.
func packBlocks(blocks []*optypes.Block, maxGas uint64, gasLimit gasLimitFn) []*optypes.Block {
	packed := make([]*optypes.Block, 0, len(blocks))
	totalGas := uint64(0)
	for _, block := range blocks {
		blockGas := gasLimit(block)
		if len(packed) > 0 && totalGas+blockGas > maxGas {
			break
		}
		totalGas += blockGas
		packed = append(packed, block)
	}
	return packed
}

func selectBlocks(newBlocks []*optypes.Block, now time.Time, maxBlocks int, deadline time.Duration, maxGas uint64, gasLimit gasLimitFn) ([]*optypes.Block, error) {
	candidates := prefixBlocks(newBlocks, maxBlocks)
	if !shouldAggregate(candidates, now, maxBlocks, deadline, maxGas, gasLimit) {
		return nil, nil
	}

	packed := packBlocks(candidates, maxGas, gasLimit)
	if len(packed) == 0 {
		return nil, fmt.Errorf("%w: no blocks packed from %v candidates", ErrInvariantViolation, len(candidates))
	}
	return packed, nil
}

// CreateNewCommitOperation decides whether the pending blocks are committed now. It returns nil if no
// trigger fired.
func CreateNewCommitOperation(lastCommitted *optypes.Block, newBlocks []*optypes.Block, now time.Time, maxBlocks int, deadline time.Duration, maxGas uint64) (*optypes.AggregatedOperation, error) {
	blocks, err := selectBlocks(newBlocks, now, maxBlocks, deadline, maxGas, commitGasLimit)
	if err != nil || blocks == nil {
		return nil, err
	}

	return optypes.NewCommitOperation(&optypes.BlocksCommitOperation{
		LastCommittedBlock: lastCommitted,
		Blocks:             blocks,
	}), nil
}

// CreateNewCreateProofOperation decides whether the blocks with a single-block proof are aggregated into one
// proof now. availableSizes must be ascending.
func CreateNewCreateProofOperation(blocksWithProofs []*optypes.Block, availableSizes []int, now time.Time, deadline time.Duration) (*optypes.AggregatedOperation, error) {
	if len(availableSizes) == 0 {
		return nil, fmt.Errorf("%w: no aggregate proof sizes available", ErrInvariantViolation)
	}

	maxSize := availableSizes[len(availableSizes)-1]
	blocks := prefixBlocks(blocksWithProofs, maxSize)
	if len(blocks) == 0 {
		return nil, nil
	}

	if !anyBlockPastDeadline(blocks, now, deadline) && len(blocks) < maxSize {
		return nil, nil
	}

	selectedSize := 0
	for _, size := range availableSizes {
		if size >= len(blocks) {
			selectedSize = size
			break
		}
	}
	if selectedSize == 0 {
		return nil, fmt.Errorf("%w: no aggregate proof size fits %v blocks", ErrInvariantViolation, len(blocks))
	}

	return optypes.NewCreateProofOperation(&optypes.BlocksCreateProofOperation{
		Blocks:      blocks,
		ProofsToPad: uint64(selectedSize - len(blocks)),
	}), nil
}

// CreatePublishProofOperation wraps the aggregated proof of a create-proof operation for publishing.
func CreatePublishProofOperation(createProofOp *optypes.BlocksCreateProofOperation, proof *optypes.AggregatedProof) *optypes.AggregatedOperation {
	return optypes.NewPublishProofOperation(&optypes.BlocksProofOperation{
		Blocks: createProofOp.Blocks,
		Proof:  proof.Proof,
	})
}

// CreateExecuteBlocksOperation applies the commit triggers to published blocks, using the verify gas limit.
func CreateExecuteBlocksOperation(blocks []*optypes.Block, now time.Time, maxBlocks int, deadline time.Duration, maxGas uint64) (*optypes.AggregatedOperation, error) {
	selected, err := selectBlocks(blocks, now, maxBlocks, deadline, maxGas, verifyGasLimit)
	if err != nil || selected == nil {
		return nil, err
	}

	return optypes.NewExecuteOperation(&optypes.BlocksExecuteOperation{
		Blocks: selected,
	}), nil
}
