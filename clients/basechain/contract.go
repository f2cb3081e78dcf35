package basechain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ethpandaops/zkoperator/optypes"
)

const rollupContractABI = `[
	{
		"type": "function",
		"name": "commitBlocks",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "lastCommittedBlock", "type": "tuple", "components": [
				{"name": "blockNumber", "type": "uint64"},
				{"name": "timestamp", "type": "uint256"},
				{"name": "stateHash", "type": "bytes32"},
				{"name": "commitment", "type": "bytes32"}
			]},
			{"name": "newBlocks", "type": "tuple[]", "components": [
				{"name": "blockNumber", "type": "uint64"},
				{"name": "timestamp", "type": "uint256"},
				{"name": "newStateHash", "type": "bytes32"},
				{"name": "commitment", "type": "bytes32"},
				{"name": "feeAccount", "type": "uint64"},
				{"name": "chunks", "type": "uint64"}
			]}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "proveBlocks",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "committedBlocks", "type": "tuple[]", "components": [
				{"name": "blockNumber", "type": "uint64"},
				{"name": "timestamp", "type": "uint256"},
				{"name": "stateHash", "type": "bytes32"},
				{"name": "commitment", "type": "bytes32"}
			]},
			{"name": "proof", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "executeBlocks",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "blocks", "type": "tuple[]", "components": [
				{"name": "blockNumber", "type": "uint64"},
				{"name": "timestamp", "type": "uint256"},
				{"name": "stateHash", "type": "bytes32"},
				{"name": "commitment", "type": "bytes32"}
			]}
		],
		"outputs": []
	}
]`

var rollupABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(rollupContractABI))
	if err != nil {
		panic(fmt.Sprintf("invalid rollup contract abi: %v", err))
	}
	rollupABI = parsed
}

// StoredBlockInfo is the block summary the rollup contract keeps for every committed block.
type StoredBlockInfo struct {
	BlockNumber uint64
	Timestamp   *big.Int
	StateHash   [32]byte
	Commitment  [32]byte
}

type CommitBlockInfo struct {
	BlockNumber  uint64
	Timestamp    *big.Int
	NewStateHash [32]byte
	Commitment   [32]byte
	FeeAccount   uint64
	Chunks       uint64
}

func storedBlockInfo(block *optypes.Block) StoredBlockInfo {
	return StoredBlockInfo{
		BlockNumber: block.Number,
		Timestamp:   new(big.Int).SetUint64(block.Timestamp),
		StateHash:   block.NewStateRoot,
		Commitment:  block.Commitment,
	}
}

func storedBlockInfos(blocks []*optypes.Block) []StoredBlockInfo {
	infos := make([]StoredBlockInfo, len(blocks))
	for i, block := range blocks {
		infos[i] = storedBlockInfo(block)
	}
	return infos
}

// EncodeTxData builds the rollup contract calldata for an on-chain aggregated operation.
func EncodeTxData(op *optypes.AggregatedOperation) ([]byte, error) {
	switch op.ActionType {
	case optypes.ActionCommitBlocks:
		if op.Commit == nil || op.Commit.LastCommittedBlock == nil || len(op.Commit.Blocks) == 0 {
			return nil, fmt.Errorf("incomplete commit operation")
		}
		newBlocks := make([]CommitBlockInfo, len(op.Commit.Blocks))
		for i, block := range op.Commit.Blocks {
			newBlocks[i] = CommitBlockInfo{
				BlockNumber:  block.Number,
				Timestamp:    new(big.Int).SetUint64(block.Timestamp),
				NewStateHash: block.NewStateRoot,
				Commitment:   block.Commitment,
				FeeAccount:   block.FeeAccount,
				Chunks:       block.ChunksSize,
			}
		}
		return rollupABI.Pack("commitBlocks", storedBlockInfo(op.Commit.LastCommittedBlock), newBlocks)

	case optypes.ActionPublishProofBlocksOnchain:
		if op.PublishProof == nil || len(op.PublishProof.Blocks) == 0 {
			return nil, fmt.Errorf("incomplete publish proof operation")
		}
		return rollupABI.Pack("proveBlocks", storedBlockInfos(op.PublishProof.Blocks), op.PublishProof.Proof)

	case optypes.ActionExecuteBlocks:
		if op.Execute == nil || len(op.Execute.Blocks) == 0 {
			return nil, fmt.Errorf("incomplete execute operation")
		}
		return rollupABI.Pack("executeBlocks", storedBlockInfos(op.Execute.Blocks))
	}

	return nil, fmt.Errorf("%v operations are not sent to the base chain", op.ActionType)
}
