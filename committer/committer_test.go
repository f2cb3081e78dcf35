package committer

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/types"
)

type memoryLedger struct {
	blocks    map[uint64]*optypes.Block
	proofs    map[uint64]*optypes.BlockProof
	aggProofs map[[2]uint64]*optypes.AggregatedProof
	failNext  error
}

func newMemoryLedger() *memoryLedger {
	ledger := &memoryLedger{
		blocks:    map[uint64]*optypes.Block{},
		proofs:    map[uint64]*optypes.BlockProof{},
		aggProofs: map[[2]uint64]*optypes.AggregatedProof{},
	}
	ledger.blocks[0] = makeBlock(0, time.Hour, 0, 0)
	return ledger
}

func (l *memoryLedger) addBlocks(blocks ...*optypes.Block) {
	for _, block := range blocks {
		l.blocks[block.Number] = block
	}
}

func (l *memoryLedger) addProofs(from uint64, to uint64) {
	for number := from; number <= to; number++ {
		l.proofs[number] = &optypes.BlockProof{BlockNumber: number, Proof: []byte{byte(number)}}
	}
}

func (l *memoryLedger) GetLastCommittedBlock(ctx context.Context) (uint64, error) {
	if err := l.failNext; err != nil {
		l.failNext = nil
		return 0, err
	}
	last := uint64(0)
	for number := range l.blocks {
		if number > last {
			last = number
		}
	}
	return last, nil
}

func (l *memoryLedger) GetBlock(ctx context.Context, number uint64) (*optypes.Block, error) {
	return l.blocks[number], nil
}

func (l *memoryLedger) GetBlockProof(ctx context.Context, number uint64) (*optypes.BlockProof, error) {
	return l.proofs[number], nil
}

func (l *memoryLedger) GetAggregatedProof(ctx context.Context, firstBlock uint64, lastBlock uint64) (*optypes.AggregatedProof, error) {
	return l.aggProofs[[2]uint64{firstBlock, lastBlock}], nil
}

type storedOperation struct {
	id         int64
	actionType string
	payload    []byte
	from, to   uint64
}

// memoryStore persists operations in their encoded form.
type memoryStore struct {
	ops []storedOperation
}

func (s *memoryStore) StoreAggregatedAction(ctx context.Context, op *optypes.AggregatedOperation) (int64, error) {
	payload, err := op.EncodePayload()
	if err != nil {
		return 0, err
	}
	from, to := op.BlockRange()
	id := int64(len(s.ops) + 1)
	s.ops = append(s.ops, storedOperation{id: id, actionType: op.ActionType.String(), payload: payload, from: from, to: to})
	return id, nil
}

func (s *memoryStore) GetLastAffectedBlock(ctx context.Context, actionType optypes.AggregatedActionType) (uint64, error) {
	last := uint64(0)
	for _, op := range s.ops {
		if op.actionType == actionType.String() && op.to > last {
			last = op.to
		}
	}
	return last, nil
}

func (s *memoryStore) GetAggregatedOpThatAffectsBlock(ctx context.Context, actionType optypes.AggregatedActionType, blockNumber uint64) (int64, *optypes.AggregatedOperation, error) {
	for _, op := range s.ops {
		if op.actionType == actionType.String() && op.from <= blockNumber && op.to >= blockNumber {
			decoded, err := optypes.DecodeAggregatedOperation(op.actionType, op.payload)
			return op.id, decoded, err
		}
	}
	return 0, nil, nil
}

func (s *memoryStore) ranges(actionType optypes.AggregatedActionType) [][2]uint64 {
	ranges := [][2]uint64{}
	for _, op := range s.ops {
		if op.actionType == actionType.String() {
			ranges = append(ranges, [2]uint64{op.from, op.to})
		}
	}
	return ranges
}

func testCommitterConfig() *types.CommitterConfig {
	return &types.CommitterConfig{
		Interval:                     10 * time.Millisecond,
		MaxBlocksToCommit:            5,
		MaxBlocksToExecute:           5,
		BlockCommitDeadline:          10 * time.Second,
		BlockVerifyDeadline:          10 * time.Second,
		BlockExecuteDeadline:         10 * time.Second,
		MaxGasForTx:                  2_000_000,
		AvailableAggregateProofSizes: []int{1, 5},
	}
}

func newTestCommitter(ledger *memoryLedger, store *memoryStore) *Committer {
	logger, _ := test.NewNullLogger()
	c := NewCommitter(logger, testCommitterConfig(), ledger, store)
	c.now = func() time.Time { return testNow }
	return c
}

func TestCommitSixBlocksScenario(t *testing.T) {
	ledger := newMemoryLedger()
	store := &memoryStore{}
	ledger.addBlocks(makeBlocks(1, 6, time.Second, 100_000)...)
	c := newTestCommitter(ledger, store)

	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Equal(t, [][2]uint64{{1, 5}}, store.ranges(optypes.ActionCommitBlocks))

	// no trigger for the single remaining block
	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Equal(t, [][2]uint64{{1, 5}}, store.ranges(optypes.ActionCommitBlocks))

	// block 6 passes its deadline
	c.now = func() time.Time { return testNow.Add(20 * time.Second) }
	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Equal(t, [][2]uint64{{1, 5}, {6, 6}}, store.ranges(optypes.ActionCommitBlocks))

	_, op, err := store.GetAggregatedOpThatAffectsBlock(context.Background(), optypes.ActionCommitBlocks, 6)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, uint64(5), op.Commit.LastCommittedBlock.Number)
}

func TestPassIsIdempotentWithoutNewBlocks(t *testing.T) {
	ledger := newMemoryLedger()
	store := &memoryStore{}
	ledger.addBlocks(makeBlocks(1, 12, time.Minute, 100_000)...)
	ledger.addProofs(1, 12)
	c := newTestCommitter(ledger, store)

	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	count := len(store.ops)
	require.NotZero(t, count)

	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Len(t, store.ops, count)
}

func TestFullPipeline(t *testing.T) {
	ledger := newMemoryLedger()
	store := &memoryStore{}
	ledger.addBlocks(makeBlocks(1, 8, time.Minute, 100_000)...)
	ledger.addProofs(1, 8)
	c := newTestCommitter(ledger, store)

	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Equal(t, [][2]uint64{{1, 5}, {6, 8}}, store.ranges(optypes.ActionCommitBlocks))
	assert.Equal(t, [][2]uint64{{1, 5}, {6, 8}}, store.ranges(optypes.ActionCreateProofBlocks))
	assert.Empty(t, store.ranges(optypes.ActionPublishProofBlocksOnchain))
	assert.Empty(t, store.ranges(optypes.ActionExecuteBlocks))

	_, createOp, err := store.GetAggregatedOpThatAffectsBlock(context.Background(), optypes.ActionCreateProofBlocks, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), createOp.CreateProof.ProofsToPad)

	// the second aggregated proof alone cannot be published before the first
	ledger.aggProofs[[2]uint64{6, 8}] = &optypes.AggregatedProof{FirstBlock: 6, LastBlock: 8, Proof: []byte{0x68}}
	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Empty(t, store.ranges(optypes.ActionPublishProofBlocksOnchain))

	ledger.aggProofs[[2]uint64{1, 5}] = &optypes.AggregatedProof{FirstBlock: 1, LastBlock: 5, Proof: []byte{0x15}}
	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Equal(t, [][2]uint64{{1, 5}, {6, 8}}, store.ranges(optypes.ActionPublishProofBlocksOnchain))
	assert.Equal(t, [][2]uint64{{1, 5}, {6, 8}}, store.ranges(optypes.ActionExecuteBlocks))

	_, publishOp, err := store.GetAggregatedOpThatAffectsBlock(context.Background(), optypes.ActionPublishProofBlocksOnchain, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15}, publishOp.PublishProof.Proof)
}

func TestRangesStayContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		ledger := newMemoryLedger()
		store := &memoryStore{}
		c := newTestCommitter(ledger, store)

		next := uint64(1)
		for step := 0; step < 10; step++ {
			count := rng.Intn(6)
			for i := 0; i < count; i++ {
				age := time.Duration(rng.Intn(30)) * time.Second
				ledger.addBlocks(makeBlock(next, age, uint64(rng.Intn(1_500_000)), uint64(rng.Intn(1_500_000))))
				next++
			}
			if next > 1 && rng.Intn(2) == 0 {
				ledger.addProofs(1, next-1)
			}
			for _, createRange := range store.ranges(optypes.ActionCreateProofBlocks) {
				if rng.Intn(2) == 0 {
					ledger.aggProofs[createRange] = &optypes.AggregatedProof{FirstBlock: createRange[0], LastBlock: createRange[1]}
				}
			}

			c.now = func() time.Time { return testNow.Add(time.Duration(step) * 5 * time.Second) }
			require.NoError(t, c.CreateAggregatedOperations(context.Background()))
		}

		for _, actionType := range optypes.AggregatedActionTypes {
			ranges := store.ranges(actionType)
			assert.True(t, sort.SliceIsSorted(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] }))
			expectedFirst := uint64(1)
			for _, r := range ranges {
				assert.Equal(t, expectedFirst, r[0], "%v ranges %v", actionType, ranges)
				assert.LessOrEqual(t, r[0], r[1])
				expectedFirst = r[1] + 1
			}
		}
	}
}

func TestMissingBlockIsInvariantViolation(t *testing.T) {
	ledger := newMemoryLedger()
	store := &memoryStore{}
	ledger.addBlocks(makeBlock(1, time.Minute, 10, 10), makeBlock(3, time.Minute, 10, 10))
	c := newTestCommitter(ledger, store)

	err := c.CreateAggregatedOperations(context.Background())
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.True(t, IsFatal(err))
	assert.Empty(t, store.ops)
}

func TestMissingLastCommittedBlockIsInvariantViolation(t *testing.T) {
	ledger := newMemoryLedger()
	delete(ledger.blocks, 0)
	ledger.addBlocks(makeBlock(1, time.Minute, 10, 10))
	c := newTestCommitter(ledger, &memoryStore{})

	assert.ErrorIs(t, c.CreateAggregatedOperations(context.Background()), ErrInvariantViolation)
}

func TestPublishWithoutCreateProofOperation(t *testing.T) {
	ledger := newMemoryLedger()
	store := &memoryStore{}
	// a create proof range starting past the last published block
	_, err := store.StoreAggregatedAction(context.Background(), optypes.NewCreateProofOperation(&optypes.BlocksCreateProofOperation{
		Blocks: makeBlocks(2, 1, time.Minute, 0),
	}))
	require.NoError(t, err)
	c := newTestCommitter(ledger, store)

	assert.ErrorIs(t, c.CreateAggregatedOperations(context.Background()), ErrInvariantViolation)
}

func TestTransientErrorAbortsPass(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.addBlocks(makeBlocks(1, 5, time.Second, 10)...)
	ledger.failNext = errors.New("connection refused")
	store := &memoryStore{}
	c := newTestCommitter(ledger, store)

	err := c.CreateAggregatedOperations(context.Background())
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.Empty(t, store.ops)

	require.NoError(t, c.CreateAggregatedOperations(context.Background()))
	assert.Len(t, store.ops, 1)
}

func TestRunStopsOnFatalError(t *testing.T) {
	ledger := newMemoryLedger()
	delete(ledger.blocks, 0)
	ledger.addBlocks(makeBlock(1, time.Minute, 10, 10))
	c := newTestCommitter(ledger, &memoryStore{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newTestCommitter(newMemoryLedger(), &memoryStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("committer did not stop")
	}
}
