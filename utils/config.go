package utils

import (
	"fmt"
	"math/big"
	"os"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/zkoperator/config"
	"github.com/ethpandaops/zkoperator/types"
)

// Config is the globally accessible configuration
var Config *types.Config

// ReadConfig will process a configuration
func ReadConfig(cfg *types.Config, path string) error {
	err := readConfigFile(cfg, path)
	if err != nil {
		return err
	}

	err = readConfigEnv(cfg)
	if err != nil {
		return fmt.Errorf("error reading config from environment: %w", err)
	}

	if cfg.Committer.MaxBlocksToCommit <= 0 {
		return fmt.Errorf("committer.maxBlocksToCommit must be positive")
	}
	if cfg.Committer.MaxBlocksToExecute <= 0 {
		return fmt.Errorf("committer.maxBlocksToExecute must be positive")
	}
	if len(cfg.Committer.AvailableAggregateProofSizes) == 0 {
		return fmt.Errorf("committer.availableAggregateProofSizes must contain at least one size")
	}
	for i, size := range cfg.Committer.AvailableAggregateProofSizes {
		if size <= 0 || (i > 0 && size <= cfg.Committer.AvailableAggregateProofSizes[i-1]) {
			return fmt.Errorf("committer.availableAggregateProofSizes must be positive and strictly ascending")
		}
	}
	if cfg.Committer.MaxGasForTx == 0 {
		return fmt.Errorf("committer.maxGasForTx must be positive")
	}
	if cfg.EthSender.ExpectedWaitBlocks == 0 {
		return fmt.Errorf("ethSender.expectedWaitBlocks must be positive")
	}
	if cfg.EthSender.GasPriceBumpPercent < 100 {
		return fmt.Errorf("ethSender.gasPriceBumpPercent must be at least 100")
	}
	if _, ok := new(big.Int).SetString(cfg.EthSender.DefaultGasPriceLimit, 10); !ok {
		return fmt.Errorf("invalid ethSender.defaultGasPriceLimit: %v", cfg.EthSender.DefaultGasPriceLimit)
	}
	if _, ok := new(big.Int).SetString(cfg.EthSender.MinGasPriceLimit, 10); !ok {
		return fmt.Errorf("invalid ethSender.minGasPriceLimit: %v", cfg.EthSender.MinGasPriceLimit)
	}

	switch cfg.ProofStore.Engine {
	case "", "none", "pebble", "s3", "tiered":
	default:
		return fmt.Errorf("unknown proofStore.engine: %v", cfg.ProofStore.Engine)
	}

	log.WithFields(log.Fields{
		"chainId":        cfg.BaseChain.ChainID,
		"contract":       cfg.BaseChain.ContractAddress,
		"dbEngine":       cfg.Database.Engine,
		"proofStore":     cfg.ProofStore.Engine,
		"strictOrdering": cfg.EthSender.StrictOrdering,
	}).Infof("did init config")

	return nil
}

func readConfigFile(cfg *types.Config, path string) error {
	err := yaml.Unmarshal([]byte(config.DefaultConfigYml), cfg)
	if err != nil {
		return fmt.Errorf("error decoding default config: %v", err)
	}
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %v", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(cfg)
	if err != nil {
		return fmt.Errorf("error decoding config file %v: %v", path, err)
	}

	return nil
}

func readConfigEnv(cfg *types.Config) error {
	return envconfig.Process("", cfg)
}
