package ethsender

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/types"
)

type fakeEthereum struct {
	mutex sync.Mutex

	blockNumber uint64
	gasPrice    *big.Int
	nonce       uint64
	sendErr     error

	signed   uint64
	sent     []*optypes.SignedCallResult
	statuses map[common.Hash]*optypes.ExecutedTxStatus
}

func newFakeEthereum(blockNumber uint64) *fakeEthereum {
	return &fakeEthereum{
		blockNumber: blockNumber,
		gasPrice:    big.NewInt(10 * params.GWei),
		statuses:    map[common.Hash]*optypes.ExecutedTxStatus{},
	}
}

func (f *fakeEthereum) BlockNumber(ctx context.Context) (uint64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.blockNumber, nil
}

func (f *fakeEthereum) GasPrice(ctx context.Context) (*big.Int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeEthereum) PendingNonce(ctx context.Context) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeEthereum) SendRawTx(ctx context.Context, tx *optypes.SignedCallResult) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEthereum) GetTxStatus(ctx context.Context, hash common.Hash) (*optypes.ExecutedTxStatus, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.statuses[hash], nil
}

func (f *fakeEthereum) EncodeTxData(op *optypes.AggregatedOperation) ([]byte, error) {
	return []byte(op.String()), nil
}

func (f *fakeEthereum) SignPreparedTx(ctx context.Context, data []byte, opts optypes.TxOptions) (*optypes.SignedCallResult, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.signed++
	return &optypes.SignedCallResult{
		RawTx:    append([]byte(fmt.Sprintf("%v:", opts.Nonce)), data...),
		Hash:     common.BigToHash(new(big.Int).SetUint64(f.signed)),
		Nonce:    opts.Nonce,
		GasPrice: new(big.Int).Set(opts.GasPrice),
		GasLimit: opts.GasLimit,
	}, nil
}

func (f *fakeEthereum) setBlock(number uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.blockNumber = number
}

func (f *fakeEthereum) mine(hash common.Hash, success bool, confirmations uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.statuses[hash] = &optypes.ExecutedTxStatus{
		Confirmations: confirmations,
		Success:       success,
		ReceiptBlock:  f.blockNumber,
	}
}

func (f *fakeEthereum) sentTxs() []*optypes.SignedCallResult {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*optypes.SignedCallResult(nil), f.sent...)
}

func testSenderConfig() *types.EthSenderConfig {
	return &types.EthSenderConfig{
		PollInterval:                time.Millisecond,
		MaxInFlight:                 10,
		ExpectedWaitBlocks:          5,
		WaitConfirmations:           1,
		StrictOrdering:              true,
		TxBaseGas:                   21000,
		ProofVerificationGas:        500000,
		GasPriceBumpPercent:         115,
		GasPriceLimitScalePercent:   150,
		GasPriceLimitUpdateInterval: time.Hour,
		DefaultGasPriceLimit:        "100000000000",
		MinGasPriceLimit:            "1000000000",
	}
}

func newTestSender(t *testing.T, config *types.EthSenderConfig, db DatabaseInterface, eth EthereumInterface) *ETHSender {
	t.Helper()

	logger, _ := test.NewNullLogger()
	sender := NewETHSender(logger, config, db, eth)
	require.NoError(t, sender.RestoreState(context.Background()))
	return sender
}

func senderBlock(number uint64) *optypes.Block {
	return &optypes.Block{
		Number:         number,
		Timestamp:      1700000000 + number,
		CommitGasLimit: 1000,
		VerifyGasLimit: 2000,
		NewStateRoot:   common.BigToHash(big.NewInt(int64(number) + 1)),
		AccountUpdates: []optypes.AccountUpdate{
			{AccountID: 1, Nonce: number, Balance: big.NewInt(int64(number)*10 + 5)},
		},
	}
}

func senderBlocks(first, last uint64) []*optypes.Block {
	blocks := []*optypes.Block{}
	for number := first; number <= last; number++ {
		blocks = append(blocks, senderBlock(number))
	}
	return blocks
}

func commitOp(first, last uint64) *optypes.AggregatedOperation {
	return optypes.NewCommitOperation(&optypes.BlocksCommitOperation{
		LastCommittedBlock: senderBlock(first - 1),
		Blocks:             senderBlocks(first, last),
	})
}

func publishOp(first, last uint64) *optypes.AggregatedOperation {
	return optypes.NewPublishProofOperation(&optypes.BlocksProofOperation{
		Blocks: senderBlocks(first, last),
		Proof:  []byte{0xaa, byte(first), byte(last)},
	})
}

func executeOp(first, last uint64) *optypes.AggregatedOperation {
	return optypes.NewExecuteOperation(&optypes.BlocksExecuteOperation{
		Blocks: senderBlocks(first, last),
	})
}
