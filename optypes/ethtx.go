package optypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxOptions are the parameters a prepared transaction is signed with.
type TxOptions struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
}

// SignedCallResult is a signed transaction ready for broadcast.
type SignedCallResult struct {
	RawTx    []byte
	Hash     common.Hash
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
}

// ExecutedTxStatus is the on-chain state of a mined transaction.
type ExecutedTxStatus struct {
	Confirmations uint64
	Success       bool
	ReceiptBlock  uint64
}
