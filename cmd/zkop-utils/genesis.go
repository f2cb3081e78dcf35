package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/zkoperator/cache"
	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/ledger"
	"github.com/ethpandaops/zkoperator/optypes"
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Store the genesis block",
	Long:  "Store block 0 as the last committed block the first commit operation builds on",
	RunE:  runGenesis,
}

func init() {
	rootCmd.AddCommand(genesisCmd)

	genesisCmd.Flags().String("state-root", "", "Genesis state root (hex)")
	genesisCmd.Flags().String("commitment", "", "Genesis block commitment (hex)")
	genesisCmd.Flags().Uint64("timestamp", 0, "Genesis block timestamp, defaults to now")
	genesisCmd.MarkFlagRequired("state-root")
}

func runGenesis(cmd *cobra.Command, args []string) error {
	stateRoot, _ := cmd.Flags().GetString("state-root")
	commitment, _ := cmd.Flags().GetString("commitment")
	timestamp, _ := cmd.Flags().GetUint64("timestamp")
	if timestamp == 0 {
		timestamp = uint64(time.Now().Unix())
	}

	if _, err := openDatabase(cmd); err != nil {
		return err
	}
	defer db.MustCloseDB()

	ctx := context.Background()
	existing, err := db.GetBlock(ctx, 0)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("genesis block already stored")
	}

	blockCache, err := cache.NewTieredCache(ctx, 1, "", "")
	if err != nil {
		return err
	}
	blockLedger := ledger.NewLedger(logrus.WithField("module", "ledger"), blockCache, time.Minute)

	genesis := &optypes.Block{
		Number:       0,
		Timestamp:    timestamp,
		NewStateRoot: common.HexToHash(stateRoot),
		Commitment:   common.HexToHash(commitment),
	}
	if err := blockLedger.InsertBlock(ctx, genesis); err != nil {
		return fmt.Errorf("failed storing genesis block: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"stateRoot": genesis.NewStateRoot.Hex(),
		"timestamp": timestamp,
	}).Info("stored genesis block")
	return nil
}
