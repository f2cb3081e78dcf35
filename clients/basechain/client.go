package basechain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/ethpandaops/zkoperator/clients/sshtunnel"
	"github.com/ethpandaops/zkoperator/optypes"
	"github.com/ethpandaops/zkoperator/types"
)

// Client talks to the base chain on behalf of the operator account. It implements the ethereum interface of
// the eth sender.
type Client struct {
	logger      logrus.FieldLogger
	endpoint    string
	headers     map[string]string
	callTimeout time.Duration
	limiter     *rate.Limiter
	sshtunnel   *sshtunnel.SSHTunnel

	chainID         *big.Int
	signer          ethtypes.Signer
	contractAddress common.Address
	operatorKey     *ecdsa.PrivateKey
	operatorAddress common.Address

	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

func NewClient(config *types.BaseChainConfig, logger logrus.FieldLogger) (*Client, error) {
	if !common.IsHexAddress(config.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", config.ContractAddress)
	}
	operatorKey, err := crypto.HexToECDSA(strings.TrimPrefix(config.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}

	chainID := new(big.Int).SetUint64(config.ChainID)
	client := &Client{
		logger:          logger,
		endpoint:        config.Endpoint,
		headers:         config.Headers,
		callTimeout:     config.CallTimeout,
		chainID:         chainID,
		signer:          ethtypes.LatestSignerForChainID(chainID),
		contractAddress: common.HexToAddress(config.ContractAddress),
		operatorKey:     operatorKey,
		operatorAddress: crypto.PubkeyToAddress(operatorKey.PublicKey),
	}

	if config.RequestsPerSecond > 0 {
		burst := config.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	if sshcfg := config.Ssh; sshcfg != nil && sshcfg.Host != "" {
		if err := client.startTunnel(sshcfg); err != nil {
			return nil, err
		}
	}

	return client, nil
}

func (c *Client) startTunnel(sshcfg *types.EndpointSshConfig) error {
	sshPort := sshcfg.Port
	if sshPort == "" {
		sshPort = "22"
	}
	sshEndpoint := fmt.Sprintf("%v@%v:%v", sshcfg.User, sshcfg.Host, sshPort)

	var sshAuth ssh.AuthMethod
	if sshcfg.Keyfile != "" {
		var err error
		sshAuth, err = sshtunnel.PrivateKeyFile(sshcfg.Keyfile)
		if err != nil {
			return fmt.Errorf("could not load ssh keyfile: %w", err)
		}
	} else {
		sshAuth = ssh.Password(sshcfg.Password)
	}

	hostKeyCallback, err := sshtunnel.HostKeyCallback(sshcfg.KnownHostsFile)
	if err != nil {
		return fmt.Errorf("could not load known hosts: %w", err)
	}

	// tunnel target from endpoint url
	endpointUrl, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	tunTarget := endpointUrl.Host
	if endpointUrl.Port() == "" {
		tunTargetPort := "80"
		if endpointUrl.Scheme == "https" || endpointUrl.Scheme == "wss" {
			tunTargetPort = "443"
		}
		tunTarget = fmt.Sprintf("%v:%v", endpointUrl.Hostname(), tunTargetPort)
	}

	c.sshtunnel = sshtunnel.NewSSHTunnel(sshEndpoint, sshAuth, hostKeyCallback, tunTarget)
	c.sshtunnel.Log = c.logger.WithField("sshtun", sshcfg.Host)
	if err := c.sshtunnel.Start(); err != nil {
		return fmt.Errorf("could not start ssh tunnel: %w", err)
	}

	// override endpoint to use local tunnel end
	endpointUrl.Host = fmt.Sprintf("localhost:%v", c.sshtunnel.Local.Port)
	c.endpoint = endpointUrl.String()
	return nil
}

func (c *Client) Initialize(ctx context.Context) error {
	if c.ethClient != nil {
		return nil
	}

	rpcClient, err := rpc.DialContext(ctx, c.endpoint)
	if err != nil {
		return err
	}

	for hKey, hVal := range c.headers {
		rpcClient.SetHeader(hKey, hVal)
	}

	c.rpcClient = rpcClient
	c.ethClient = ethclient.NewClient(rpcClient)

	remoteChainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed loading chain id: %w", err)
	}
	if remoteChainID.Cmp(c.chainID) != 0 {
		return fmt.Errorf("base chain id mismatch: configured %v, endpoint reports %v", c.chainID, remoteChainID)
	}

	c.logger.WithFields(logrus.Fields{
		"chainId":  remoteChainID.String(),
		"operator": c.operatorAddress.Hex(),
		"contract": c.contractAddress.Hex(),
	}).Infof("connected to base chain")
	return nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	if c.sshtunnel != nil {
		c.sshtunnel.Stop()
	}
}

func (c *Client) OperatorAddress() common.Address {
	return c.operatorAddress
}

// callContext waits for the rate limiter and applies the call timeout.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.ethClient == nil {
		return nil, nil, fmt.Errorf("base chain client not initialized")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	if c.callTimeout > 0 {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		return callCtx, cancel, nil
	}
	callCtx, cancel := context.WithCancel(ctx)
	return callCtx, cancel, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	return c.ethClient.BlockNumber(callCtx)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	return c.ethClient.SuggestGasPrice(callCtx)
}

func (c *Client) PendingNonce(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	return c.ethClient.PendingNonceAt(callCtx, c.operatorAddress)
}

func (c *Client) SendRawTx(ctx context.Context, signed *optypes.SignedCallResult) error {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(signed.RawTx); err != nil {
		return fmt.Errorf("invalid signed tx: %w", err)
	}

	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	err = c.ethClient.SendTransaction(callCtx, tx)
	if err != nil && strings.Contains(err.Error(), "already known") {
		c.logger.Debugf("tx %v already known to the base chain", tx.Hash().Hex())
		return nil
	}
	return err
}

func (c *Client) GetTxStatus(ctx context.Context, hash common.Hash) (*optypes.ExecutedTxStatus, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	receipt, err := c.ethClient.TransactionReceipt(callCtx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	currentBlock, err := c.ethClient.BlockNumber(callCtx)
	if err != nil {
		return nil, err
	}

	return txStatusFromReceipt(receipt, currentBlock), nil
}

func txStatusFromReceipt(receipt *ethtypes.Receipt, currentBlock uint64) *optypes.ExecutedTxStatus {
	receiptBlock := receipt.BlockNumber.Uint64()
	status := &optypes.ExecutedTxStatus{
		Success:      receipt.Status == ethtypes.ReceiptStatusSuccessful,
		ReceiptBlock: receiptBlock,
	}
	if currentBlock >= receiptBlock {
		status.Confirmations = currentBlock - receiptBlock + 1
	}
	return status
}

func (c *Client) EncodeTxData(op *optypes.AggregatedOperation) ([]byte, error) {
	return EncodeTxData(op)
}

// SignPreparedTx signs a legacy contract call to the rollup contract. No network access is needed.
func (c *Client) SignPreparedTx(ctx context.Context, data []byte, opts optypes.TxOptions) (*optypes.SignedCallResult, error) {
	if opts.GasPrice == nil {
		return nil, fmt.Errorf("missing gas price")
	}

	tx, err := ethtypes.SignTx(ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    opts.Nonce,
		GasPrice: opts.GasPrice,
		Gas:      opts.GasLimit,
		To:       &c.contractAddress,
		Value:    new(big.Int),
		Data:     data,
	}), c.signer, c.operatorKey)
	if err != nil {
		return nil, fmt.Errorf("failed signing tx: %w", err)
	}

	rawTx, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &optypes.SignedCallResult{
		RawTx:    rawTx,
		Hash:     tx.Hash(),
		Nonce:    opts.Nonce,
		GasPrice: new(big.Int).Set(opts.GasPrice),
		GasLimit: opts.GasLimit,
	}, nil
}
