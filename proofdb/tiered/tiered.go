package tiered

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/proofdb/types"
)

// TieredEngine keeps a local cache engine in front of a primary engine.
// Reads check the cache first and fill it from the primary. Writes go to both.
type TieredEngine struct {
	cache   types.ProofDbEngine
	primary types.ProofDbEngine
	logger  logrus.FieldLogger
}

func NewTieredEngine(cache types.ProofDbEngine, primary types.ProofDbEngine, logger logrus.FieldLogger) *TieredEngine {
	return &TieredEngine{
		cache:   cache,
		primary: primary,
		logger:  logger.WithField("component", "tiered-proofdb"),
	}
}

func (e *TieredEngine) Close() error {
	var errs []error
	if err := e.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache close: %w", err))
	}
	if err := e.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close: %w", err))
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (e *TieredEngine) GetProof(ctx context.Context, key types.ProofKey) ([]byte, error) {
	data, err := e.cache.GetProof(ctx, key)
	if err != nil {
		e.logger.WithError(err).Debugf("cache lookup failed for %v proof %v-%v", key.Kind, key.FirstBlock, key.LastBlock)
	} else if data != nil {
		return data, nil
	}

	data, err = e.primary.GetProof(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}

	if _, err := e.cache.AddProof(ctx, key, data); err != nil {
		e.logger.WithError(err).Warnf("failed caching %v proof %v-%v", key.Kind, key.FirstBlock, key.LastBlock)
	}
	return data, nil
}

// AddProof writes the primary engine first, then the cache.
func (e *TieredEngine) AddProof(ctx context.Context, key types.ProofKey, data []byte) (bool, error) {
	added, err := e.primary.AddProof(ctx, key, data)
	if err != nil {
		return false, err
	}

	if _, err := e.cache.AddProof(ctx, key, data); err != nil {
		e.logger.WithError(err).Warnf("failed caching %v proof %v-%v", key.Kind, key.FirstBlock, key.LastBlock)
	}
	return added, nil
}
