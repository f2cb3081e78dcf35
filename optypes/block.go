package optypes

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is a sealed rollup block. Blocks are created by the state keeper and never mutated afterwards.
type Block struct {
	Number         uint64              `json:"number"`
	Timestamp      uint64              `json:"timestamp"`
	ChunksSize     uint64              `json:"chunksSize"`
	FeeAccount     uint64              `json:"feeAccount"`
	CommitGasLimit uint64              `json:"commitGasLimit"`
	VerifyGasLimit uint64              `json:"verifyGasLimit"`
	NewStateRoot   common.Hash         `json:"newStateRoot"`
	Commitment     common.Hash         `json:"commitment"`
	Operations     []ExecutedOperation `json:"operations"`
	AccountUpdates []AccountUpdate     `json:"accountUpdates,omitempty"`
}

// ExecutedOperation is a single rollup transaction or priority operation included in a block.
type ExecutedOperation struct {
	TxHash     common.Hash `json:"txHash"`
	OpType     string      `json:"opType"`
	Success    bool        `json:"success"`
	FailReason string      `json:"failReason,omitempty"`
}

// AccountUpdate is the post-block state of one account. Updates are applied to the account state once
// the block is executed on the base chain.
type AccountUpdate struct {
	AccountID uint64   `json:"accountId"`
	Nonce     uint64   `json:"nonce"`
	Balance   *big.Int `json:"balance"`
}

func (b *Block) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0)
}

// SecondsSinceCreated returns the whole seconds elapsed since the block was sealed, clamped at zero.
func (b *Block) SecondsSinceCreated(now time.Time) int64 {
	seconds := now.Unix() - int64(b.Timestamp)
	if seconds < 0 {
		return 0
	}
	return seconds
}

// BlockProof is the proof of a single block produced by the prover.
type BlockProof struct {
	BlockNumber uint64 `json:"blockNumber"`
	Proof       []byte `json:"proof"`
}

// AggregatedProof is a single proof covering the contiguous range [FirstBlock, LastBlock].
type AggregatedProof struct {
	FirstBlock uint64 `json:"firstBlock"`
	LastBlock  uint64 `json:"lastBlock"`
	Proof      []byte `json:"proof"`
}
