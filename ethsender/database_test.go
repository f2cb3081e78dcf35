package ethsender

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/cache"
	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/ledger"
	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/types"
)

var (
	_ DatabaseInterface = (*Database)(nil)
	_ DatabaseInterface = (*MemoryDatabase)(nil)
)

func newTestSqlStore(t *testing.T) *ledger.Ledger {
	t.Helper()

	db.MustInitDB(&types.DatabaseConfig{
		Engine: "sqlite",
		Sqlite: &types.SqliteDatabaseConfig{
			File: filepath.Join(t.TempDir(), "ethsender.db"),
		},
	})
	t.Cleanup(db.MustCloseDB)
	require.NoError(t, db.ApplyEmbeddedDbSchema(db.SchemaLatest))

	blockCache, err := cache.NewTieredCache(context.Background(), 1, "", "")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	return ledger.NewLedger(logger, blockCache, time.Minute)
}

func TestDatabaseLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestSqlStore(t)
	for number := uint64(0); number <= 2; number++ {
		require.NoError(t, store.InsertBlock(ctx, senderBlock(number)))
	}
	for _, op := range []*optypes.AggregatedOperation{commitOp(1, 2), publishOp(1, 2), executeOp(1, 2)} {
		_, err := store.StoreAggregatedAction(ctx, op)
		require.NoError(t, err)
	}

	database := NewDatabase()
	require.NoError(t, database.AcquireConnection(ctx))

	require.NoError(t, database.InitializeEthParameters(ctx, 7, gwei(100)))
	require.NoError(t, database.InitializeEthParameters(ctx, 99, gwei(1)))
	limit, err := database.LoadGasPriceLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, gwei(100), limit)

	state, err := database.RestoreState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Operations)
	require.Len(t, state.Unprocessed, 3)

	commit, execute := state.Unprocessed[0], state.Unprocessed[2]
	assert.Equal(t, optypes.ActionExecuteBlocks, execute.Op.ActionType)

	inserted, err := database.SaveNewEthTx(ctx, commit.Op.ActionType, commit, 105, gwei(10), []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), inserted.Nonce)

	insertedExecute, err := database.SaveNewEthTx(ctx, execute.Op.ActionType, execute, 105, gwei(10), []byte{0x02})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), insertedExecute.Nonce)

	_, err = database.SaveNewEthTx(ctx, commit.Op.ActionType, commit, 105, gwei(10), []byte{0x01})
	assert.Error(t, err, "aggregated operation bound twice")

	hashA := common.HexToHash("0xaa")
	hashB := common.HexToHash("0xbb")
	require.NoError(t, database.AddHashEntry(ctx, inserted.ID, hashA))
	require.NoError(t, database.UpdateEthTx(ctx, inserted.ID, 120, gwei(12)))
	require.NoError(t, database.AddHashEntry(ctx, inserted.ID, hashB))

	state, err = database.RestoreState(ctx)
	require.NoError(t, err)
	require.Len(t, state.Operations, 2)
	require.Len(t, state.Unprocessed, 1)
	assert.Equal(t, optypes.ActionPublishProofBlocksOnchain, state.Unprocessed[0].Op.ActionType)

	commitEthOp := state.Operations[0]
	assert.Equal(t, uint64(120), commitEthOp.LastDeadlineBlock)
	assert.Equal(t, gwei(12), commitEthOp.LastUsedGasPrice)
	assert.Equal(t, []byte{0x01}, commitEthOp.EncodedTxData)
	require.Len(t, commitEthOp.Attempts, 2)
	assert.Equal(t, hashA, commitEthOp.Attempts[0].Hash)
	assert.Equal(t, gwei(10), commitEthOp.Attempts[0].GasPrice)
	assert.Equal(t, gwei(12), commitEthOp.Attempts[1].GasPrice)
	first, last := commitEthOp.Op.BlockRange()
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), last)

	stats, err := database.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.SavedOperations)
	assert.Equal(t, uint64(1), stats.CommitOps)
	assert.Equal(t, uint64(2), stats.LastCommittedBlock)
	assert.Equal(t, uint64(0), stats.LastVerifiedBlock)
	assert.Equal(t, uint64(2), stats.LastExecutedBlock)

	executeEthOp := state.Operations[1]
	previousConfirmed, err := database.IsPreviousOperationConfirmed(ctx, executeEthOp)
	require.NoError(t, err)
	assert.False(t, previousConfirmed)

	assert.Error(t, database.ConfirmOperation(ctx, common.HexToHash("0xcc"), commitEthOp), "unknown hash")
	require.NoError(t, database.ConfirmOperation(ctx, hashB, commitEthOp))
	assert.Error(t, database.ConfirmOperation(ctx, hashB, commitEthOp), "confirmed twice")

	previousConfirmed, err = database.IsPreviousOperationConfirmed(ctx, executeEthOp)
	require.NoError(t, err)
	assert.True(t, previousConfirmed)

	hashC := common.HexToHash("0xcc")
	require.NoError(t, database.AddHashEntry(ctx, executeEthOp.ID, hashC))
	require.NoError(t, database.ConfirmOperation(ctx, hashC, executeEthOp))

	account, err := db.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "25", account.Balance)
	assert.Equal(t, uint64(2), account.Nonce)

	executed, err := db.GetLastExecutedBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), executed)

	state, err = database.RestoreState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Operations)
}

func TestSenderAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	store := newTestSqlStore(t)
	for number := uint64(0); number <= 2; number++ {
		require.NoError(t, store.InsertBlock(ctx, senderBlock(number)))
	}
	aggIDs := []int64{}
	for _, op := range []*optypes.AggregatedOperation{commitOp(1, 2), publishOp(1, 2), executeOp(1, 2)} {
		id, err := store.StoreAggregatedAction(ctx, op)
		require.NoError(t, err)
		aggIDs = append(aggIDs, id)
	}

	eth := newFakeEthereum(100)
	sender := newTestSender(t, testSenderConfig(), NewDatabase(), eth)

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Process(ctx))
		sent := eth.sentTxs()
		require.Len(t, sent, i+1)
		assert.Equal(t, uint64(i), sent[i].Nonce)
		eth.mine(sent[i].Hash, true, 1)
	}
	require.NoError(t, sender.Process(ctx))
	assert.Empty(t, sender.OngoingOperations())

	for _, id := range aggIDs {
		aggOp, err := db.GetAggregateOperation(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, aggOp)
		assert.True(t, aggOp.Confirmed, "aggregated operation %v", id)
	}

	executed, err := db.GetLastExecutedBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), executed)
}
