package optypes

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(number uint64) *Block {
	return &Block{
		Number:         number,
		Timestamp:      1700000000 + number,
		ChunksSize:     100,
		CommitGasLimit: 1_000_000,
		VerifyGasLimit: 1_500_000,
		NewStateRoot:   common.BigToHash(big.NewInt(int64(number))),
		Operations: []ExecutedOperation{
			{TxHash: common.HexToHash("0x01"), OpType: "Transfer", Success: true},
		},
		AccountUpdates: []AccountUpdate{
			{AccountID: 7, Nonce: number, Balance: big.NewInt(1000)},
		},
	}
}

func TestAggregatedOperationRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		op   *AggregatedOperation
	}{
		{
			name: "commit",
			op: NewCommitOperation(&BlocksCommitOperation{
				LastCommittedBlock: testBlock(0),
				Blocks:             []*Block{testBlock(1), testBlock(2)},
			}),
		},
		{
			name: "create proof",
			op: NewCreateProofOperation(&BlocksCreateProofOperation{
				Blocks:      []*Block{testBlock(1), testBlock(2), testBlock(3)},
				ProofsToPad: 2,
			}),
		},
		{
			name: "publish proof",
			op: NewPublishProofOperation(&BlocksProofOperation{
				Blocks: []*Block{testBlock(4)},
				Proof:  []byte{0xde, 0xad},
			}),
		},
		{
			name: "execute",
			op: NewExecuteOperation(&BlocksExecuteOperation{
				Blocks: []*Block{testBlock(5), testBlock(6)},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := tt.op.EncodePayload()
			require.NoError(t, err)

			decoded, err := DecodeAggregatedOperation(tt.op.ActionType.String(), payload)
			require.NoError(t, err)

			assert.Equal(t, tt.op.ActionType, decoded.ActionType)
			first, last := tt.op.BlockRange()
			decodedFirst, decodedLast := decoded.BlockRange()
			assert.Equal(t, first, decodedFirst)
			assert.Equal(t, last, decodedLast)
			assert.Equal(t, tt.op, decoded)
		})
	}
}

func TestDecodeAggregatedOperationCorrupt(t *testing.T) {
	_, err := DecodeAggregatedOperation("Unknown", []byte(`{}`))
	assert.ErrorIs(t, err, ErrCorruptOperation)

	_, err = DecodeAggregatedOperation(ActionCommitBlocks.String(), []byte(`{"blocks":`))
	assert.ErrorIs(t, err, ErrCorruptOperation)

	_, err = DecodeAggregatedOperation(ActionExecuteBlocks.String(), []byte(`{"blocks":[]}`))
	assert.ErrorIs(t, err, ErrCorruptOperation)
}

func TestEncodePayloadRejectsEmptyOperation(t *testing.T) {
	_, err := NewExecuteOperation(&BlocksExecuteOperation{}).EncodePayload()
	assert.Error(t, err)

	_, err = (&AggregatedOperation{ActionType: ActionCommitBlocks}).EncodePayload()
	assert.Error(t, err)
}

func TestSecondsSinceCreated(t *testing.T) {
	block := testBlock(10)
	assert.Equal(t, int64(0), block.SecondsSinceCreated(block.Time().Add(-5e9)))
	assert.Equal(t, int64(11), block.SecondsSinceCreated(block.Time().Add(11e9)))
}
