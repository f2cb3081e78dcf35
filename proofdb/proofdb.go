package proofdb

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/proofdb/pebble"
	"github.com/ethpandaops/zkoperator/proofdb/s3"
	"github.com/ethpandaops/zkoperator/proofdb/tiered"
	"github.com/ethpandaops/zkoperator/proofdb/types"
	dtypes "github.com/ethpandaops/zkoperator/types"
)

// ProofDb stores proof blobs outside of the sql database.
type ProofDb struct {
	engine types.ProofDbEngine
}

// NewProofDb opens the configured engine. Returns nil without error when no engine is configured.
func NewProofDb(ctx context.Context, config *dtypes.ProofStoreConfig, logger logrus.FieldLogger) (*ProofDb, error) {
	var engine types.ProofDbEngine

	switch config.Engine {
	case "", "none":
		return nil, nil
	case "pebble":
		pebbleEngine, err := pebble.NewPebbleEngine(config.Pebble)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble proof store: %w", err)
		}
		engine = pebbleEngine
	case "s3":
		s3Engine, err := s3.NewS3Engine(ctx, config.S3)
		if err != nil {
			return nil, err
		}
		engine = s3Engine
	case "tiered":
		pebbleEngine, err := pebble.NewPebbleEngine(config.Pebble)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble proof cache: %w", err)
		}
		s3Engine, err := s3.NewS3Engine(ctx, config.S3)
		if err != nil {
			pebbleEngine.Close()
			return nil, fmt.Errorf("failed to initialize s3 proof store: %w", err)
		}
		engine = tiered.NewTieredEngine(pebbleEngine, s3Engine, logger)
	default:
		return nil, fmt.Errorf("unknown proof store engine %q", config.Engine)
	}

	logger.Infof("proof store initialized (engine: %v)", config.Engine)
	return NewProofDbWithEngine(engine), nil
}

func NewProofDbWithEngine(engine types.ProofDbEngine) *ProofDb {
	return &ProofDb{engine: engine}
}

func (db *ProofDb) Close() error {
	return db.engine.Close()
}

func (db *ProofDb) GetBlockProof(ctx context.Context, number uint64) ([]byte, error) {
	return db.engine.GetProof(ctx, types.BlockProofKey(number))
}

func (db *ProofDb) AddBlockProof(ctx context.Context, number uint64, proof []byte) (bool, error) {
	return db.engine.AddProof(ctx, types.BlockProofKey(number), proof)
}

func (db *ProofDb) GetAggregatedProof(ctx context.Context, firstBlock uint64, lastBlock uint64) ([]byte, error) {
	return db.engine.GetProof(ctx, types.AggregatedProofKey(firstBlock, lastBlock))
}

func (db *ProofDb) AddAggregatedProof(ctx context.Context, firstBlock uint64, lastBlock uint64, proof []byte) (bool, error) {
	return db.engine.AddProof(ctx, types.AggregatedProofKey(firstBlock, lastBlock), proof)
}
