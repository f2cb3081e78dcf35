package main

import (
	"context"
	"flag"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/cache"
	"github.com/ethpandaops/zkoperator/clients/basechain"
	"github.com/ethpandaops/zkoperator/committer"
	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/ethsender"
	"github.com/ethpandaops/zkoperator/ledger"
	"github.com/ethpandaops/zkoperator/metrics"
	"github.com/ethpandaops/zkoperator/proofdb"
	"github.com/ethpandaops/zkoperator/types"
	"github.com/ethpandaops/zkoperator/utils"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file, if empty string defaults will be used")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &types.Config{}
	err := utils.ReadConfig(cfg, *configPath)
	if err != nil {
		logrus.Fatalf("error reading config file: %v", err)
	}
	utils.Config = cfg
	logWriter, logger := utils.InitLogger()
	defer logWriter.Dispose()

	logger.WithFields(logrus.Fields{
		"config":  *configPath,
		"version": utils.GetBuildVersion(),
		"release": utils.BuildRelease,
	}).Printf("starting")

	db.MustInitDB(&cfg.Database)
	err = db.ApplyEmbeddedDbSchema(db.SchemaLatest)
	if err != nil {
		logger.Fatalf("error initializing db schema: %v", err)
	}

	if cfg.Metrics.Enabled {
		registerStoreMetrics(logger.WithField("module", "metrics"))
		err = metrics.StartMetricsServer(ctx, logger.WithField("module", "metrics"), cfg.Metrics.Host, cfg.Metrics.Port)
		if err != nil {
			logger.Fatalf("error starting metrics server: %v", err)
		}
	}

	blockCache, err := cache.NewTieredCache(ctx, cfg.BlockCache.LocalCacheSize, cfg.BlockCache.RedisCacheAddr, cfg.BlockCache.RedisCachePrefix)
	if err != nil {
		logger.Fatalf("error initializing block cache: %v", err)
	}
	blockLedger := ledger.NewLedger(logger.WithField("module", "ledger"), blockCache, cfg.BlockCache.Expiration)

	proofStore, err := proofdb.NewProofDb(ctx, &cfg.ProofStore, logger.WithField("module", "proofdb"))
	if err != nil {
		logger.Fatalf("error initializing proof store: %v", err)
	}
	if proofStore != nil {
		blockLedger.SetProofStore(proofStore)
	}

	wg := sync.WaitGroup{}
	failure := newSubsystemFailure(cancel)

	if !cfg.Committer.Disabled {
		aggCommitter := committer.NewCommitter(logger.WithField("module", "committer"), &cfg.Committer, blockLedger, blockLedger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer utils.HandleSubroutinePanic("committer")

			if err := aggCommitter.Run(ctx); err != nil {
				utils.LogError(err, "committer stopped", 0)
				failure.fail("committer", err)
			}
		}()
	}

	var baseChain *basechain.Client
	if !cfg.EthSender.Disabled {
		baseChain, err = basechain.NewClient(&cfg.BaseChain, logger.WithField("module", "basechain"))
		if err != nil {
			logger.Fatalf("error initializing base chain client: %v", err)
		}
		err = baseChain.Initialize(ctx)
		if err != nil {
			logger.Fatalf("error connecting to base chain: %v", err)
		}

		sender := ethsender.NewETHSender(logger.WithField("module", "ethsender"), &cfg.EthSender, ethsender.NewDatabase(), baseChain)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer utils.HandleSubroutinePanic("ethsender")

			if err := sender.Run(ctx); err != nil {
				utils.LogError(err, "eth sender stopped", 0)
				failure.fail("ethsender", err)
			}
		}()
	}

	utils.WaitForCtrlC(ctx)
	logger.Println("exiting...")
	cancel()
	wg.Wait()

	if baseChain != nil {
		baseChain.Close()
	}
	if proofStore != nil {
		if err := proofStore.Close(); err != nil {
			logger.Warnf("error closing proof store: %v", err)
		}
	}
	db.MustCloseDB()

	if name, err := failure.Err(); err != nil {
		logger.Fatalf("%v stopped with fatal error: %v", name, err)
	}
}
