package committer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/optypes"
)

var testNow = time.Unix(1700001000, 0)

func makeBlock(number uint64, age time.Duration, commitGas uint64, verifyGas uint64) *optypes.Block {
	return &optypes.Block{
		Number:         number,
		Timestamp:      uint64(testNow.Add(-age).Unix()),
		CommitGasLimit: commitGas,
		VerifyGasLimit: verifyGas,
	}
}

func makeBlocks(first uint64, count int, age time.Duration, gas uint64) []*optypes.Block {
	blocks := make([]*optypes.Block, count)
	for i := range blocks {
		blocks[i] = makeBlock(first+uint64(i), age, gas, gas)
	}
	return blocks
}

func blockNumbers(blocks []*optypes.Block) []uint64 {
	numbers := make([]uint64, len(blocks))
	for i, block := range blocks {
		numbers[i] = block.Number
	}
	return numbers
}

func TestCreateNewCommitOperation(t *testing.T) {
	genesis := makeBlock(0, time.Hour, 0, 0)

	tests := []struct {
		name     string
		blocks   []*optypes.Block
		expected []uint64
	}{
		{
			name:     "no pending blocks",
			blocks:   nil,
			expected: nil,
		},
		{
			name:     "fresh blocks below every limit",
			blocks:   makeBlocks(1, 3, time.Second, 1000),
			expected: nil,
		},
		{
			name:     "exactly max blocks",
			blocks:   makeBlocks(1, 5, time.Second, 1000),
			expected: []uint64{1, 2, 3, 4, 5},
		},
		{
			name:     "more than max blocks commits the prefix",
			blocks:   makeBlocks(1, 6, time.Second, 1000),
			expected: []uint64{1, 2, 3, 4, 5},
		},
		{
			name:     "deadline passed",
			blocks:   makeBlocks(1, 2, 11*time.Second, 1000),
			expected: []uint64{1, 2},
		},
		{
			name:     "deadline not passed at exactly the deadline",
			blocks:   makeBlocks(1, 2, 10*time.Second, 1000),
			expected: nil,
		},
		{
			name:     "gas sum reaches the limit",
			blocks:   makeBlocks(1, 2, time.Second, 1_000_000),
			expected: []uint64{1, 2},
		},
		{
			name:     "gas limit packs a partial prefix",
			blocks:   makeBlocks(1, 3, time.Second, 800_000),
			expected: []uint64{1, 2},
		},
		{
			name:     "single block above the gas limit",
			blocks:   []*optypes.Block{makeBlock(1, time.Second, 3_000_000, 0)},
			expected: []uint64{1},
		},
		{
			name: "first block above the gas limit is committed alone",
			blocks: []*optypes.Block{
				makeBlock(1, time.Second, 3_000_000, 0),
				makeBlock(2, time.Second, 10, 0),
			},
			expected: []uint64{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := CreateNewCommitOperation(genesis, tt.blocks, testNow, 5, 10*time.Second, 2_000_000)
			require.NoError(t, err)

			if tt.expected == nil {
				assert.Nil(t, op)
				return
			}

			require.NotNil(t, op)
			assert.Equal(t, optypes.ActionCommitBlocks, op.ActionType)
			assert.Equal(t, genesis, op.Commit.LastCommittedBlock)
			assert.Equal(t, tt.expected, blockNumbers(op.Commit.Blocks))
		})
	}
}

func TestCommitPackingNeverExceedsGasLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	maxGas := uint64(2_000_000)

	for i := 0; i < 500; i++ {
		count := rng.Intn(8) + 1
		blocks := make([]*optypes.Block, count)
		for j := range blocks {
			blocks[j] = makeBlock(uint64(j+1), time.Duration(rng.Intn(20))*time.Second, uint64(rng.Intn(2_500_000)), 0)
		}

		op, err := CreateNewCommitOperation(nil, blocks, testNow, 5, 10*time.Second, maxGas)
		require.NoError(t, err)
		if op == nil {
			continue
		}

		packed := op.Commit.Blocks
		require.NotEmpty(t, packed)
		assert.Equal(t, uint64(1), packed[0].Number)

		totalGas := uint64(0)
		for idx, block := range packed {
			assert.Equal(t, uint64(idx+1), block.Number)
			totalGas += block.CommitGasLimit
		}
		if len(packed) > 1 {
			assert.LessOrEqual(t, totalGas, maxGas)
		}
		assert.LessOrEqual(t, len(packed), 5)
	}
}

func TestCreateNewCreateProofOperation(t *testing.T) {
	sizes := []int{1, 5}

	tests := []struct {
		name        string
		blocks      []*optypes.Block
		expected    []uint64
		proofsToPad uint64
	}{
		{
			name:   "fresh proofs below max size",
			blocks: makeBlocks(1, 3, time.Second, 0),
		},
		{
			name:        "three proven blocks past deadline",
			blocks:      makeBlocks(1, 3, 11*time.Second, 0),
			expected:    []uint64{1, 2, 3},
			proofsToPad: 2,
		},
		{
			name:        "single proven block past deadline",
			blocks:      makeBlocks(4, 1, 11*time.Second, 0),
			expected:    []uint64{4},
			proofsToPad: 0,
		},
		{
			name:        "max size reached",
			blocks:      makeBlocks(1, 5, time.Second, 0),
			expected:    []uint64{1, 2, 3, 4, 5},
			proofsToPad: 0,
		},
		{
			name:        "input capped at max size",
			blocks:      makeBlocks(1, 7, time.Second, 0),
			expected:    []uint64{1, 2, 3, 4, 5},
			proofsToPad: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := CreateNewCreateProofOperation(tt.blocks, sizes, testNow, 10*time.Second)
			require.NoError(t, err)

			if tt.expected == nil {
				assert.Nil(t, op)
				return
			}

			require.NotNil(t, op)
			assert.Equal(t, optypes.ActionCreateProofBlocks, op.ActionType)
			assert.Equal(t, tt.expected, blockNumbers(op.CreateProof.Blocks))
			assert.Equal(t, tt.proofsToPad, op.CreateProof.ProofsToPad)
		})
	}
}

func TestCreateProofPaddingMatchesSelectedSize(t *testing.T) {
	sizes := []int{1, 4, 8, 16}
	for count := 1; count <= 16; count++ {
		op, err := CreateNewCreateProofOperation(makeBlocks(1, count, time.Minute, 0), sizes, testNow, 10*time.Second)
		require.NoError(t, err)
		require.NotNil(t, op)

		total := int(op.CreateProof.ProofsToPad) + len(op.CreateProof.Blocks)
		assert.Contains(t, sizes, total)
		for _, size := range sizes {
			if size >= count {
				assert.Equal(t, size, total, "smallest fitting size for %v blocks", count)
				break
			}
		}
	}

	_, err := CreateNewCreateProofOperation(makeBlocks(1, 1, time.Minute, 0), nil, testNow, 10*time.Second)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestCreateProofPrefersSmallestFittingSize(t *testing.T) {
	op, err := CreateNewCreateProofOperation(makeBlocks(1, 3, time.Minute, 0), []int{1, 4, 8}, testNow, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, op)

	assert.Equal(t, []uint64{1, 2, 3}, blockNumbers(op.CreateProof.Blocks))
	assert.Equal(t, uint64(1), op.CreateProof.ProofsToPad)
}

func TestCreatePublishProofOperation(t *testing.T) {
	createOp := &optypes.BlocksCreateProofOperation{Blocks: makeBlocks(3, 2, 0, 0), ProofsToPad: 3}
	op := CreatePublishProofOperation(createOp, &optypes.AggregatedProof{FirstBlock: 3, LastBlock: 4, Proof: []byte{0x01, 0x02}})

	assert.Equal(t, optypes.ActionPublishProofBlocksOnchain, op.ActionType)
	assert.Equal(t, []uint64{3, 4}, blockNumbers(op.PublishProof.Blocks))
	assert.Equal(t, []byte{0x01, 0x02}, op.PublishProof.Proof)
}

func TestCreateExecuteBlocksOperationUsesVerifyGas(t *testing.T) {
	blocks := []*optypes.Block{
		makeBlock(1, time.Second, 10, 1_200_000),
		makeBlock(2, time.Second, 10, 1_200_000),
	}

	op, err := CreateExecuteBlocksOperation(blocks, testNow, 5, 10*time.Second, 2_000_000)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, optypes.ActionExecuteBlocks, op.ActionType)
	assert.Equal(t, []uint64{1}, blockNumbers(op.Execute.Blocks))

	op, err = CreateExecuteBlocksOperation(makeBlocks(1, 2, time.Second, 10), testNow, 5, 10*time.Second, 2_000_000)
	require.NoError(t, err)
	assert.Nil(t, op)
}
